package relay

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/daviddao/coedit/pkg/model"
)

// DefaultProbeTimeout bounds an availability probe.
const DefaultProbeTimeout = 2000 * time.Millisecond

// Probe attempts a websocket handshake with the relay and classifies the
// outcome. A failed dial, an error, or no answer within timeout are all
// reported as disconnected; Probe never returns an error.
func Probe(ctx context.Context, relayURL string, timeout time.Duration) model.ProbeStatus {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, relayURL, nil)
	if err != nil {
		return model.ProbeDisconnected
	}
	_ = conn.Close(websocket.StatusNormalClosure, "probe")
	return model.ProbeConnected
}
