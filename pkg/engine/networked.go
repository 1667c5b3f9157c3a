package engine

import (
	"context"
	"fmt"

	"github.com/daviddao/coedit/pkg/clock"
	"github.com/daviddao/coedit/pkg/relay"
	"go.uber.org/zap"
)

// networked connects a TextReplica to a relay room. Local changes are
// published as full-text frames; incoming frames are applied with undo
// tracking suppressed when they are newer (Lamport total order) than
// anything this replica has published or applied.
type networked struct {
	client *relay.Client
	room   string
	clock  *clock.Clock
	last   clock.Stamp
	logger *zap.Logger
}

func dialNetworked(ctx context.Context, r *TextReplica, opts Options) (*networked, error) {
	if opts.Dispatch == nil {
		return nil, fmt.Errorf("engine: networked replica %s requires a dispatcher", opts.AgentID)
	}
	clk := opts.Clock
	if clk == nil {
		clk = &clock.Clock{}
	}
	n := &networked{
		room:   opts.Relay.RoomID,
		clock:  clk,
		logger: r.logger,
	}
	client, err := relay.Dial(ctx, opts.Relay.URL, relay.ClientOptions{
		Room:    opts.Relay.RoomID,
		AgentID: opts.AgentID,
		Logger:  r.logger,
		OnFrame: func(ctx context.Context, f relay.Frame) {
			if err := opts.Dispatch(ctx, func() { r.applyRemote(f) }); err != nil {
				n.logger.Debug("dropping relay frame", zap.Error(err))
			}
		},
	})
	if err != nil {
		return nil, err
	}
	n.client = client
	return n, nil
}

func (n *networked) publish(agentID, text string) {
	n.last = clock.Stamp{TS: n.clock.Tick(), AgentID: agentID}
	n.client.Publish(relay.Frame{Type: relay.FrameUpdate, Room: n.room, Text: text, Stamp: n.last})
}

func (n *networked) close() {
	if err := n.client.Close(); err != nil {
		n.logger.Debug("relay close", zap.Error(err))
	}
}

// applyRemote runs inside a loop turn.
func (r *TextReplica) applyRemote(f relay.Frame) {
	if r.disposed || r.net == nil || f.Type != relay.FrameUpdate {
		return
	}
	if !f.Newer(relay.Frame{Stamp: r.net.last}) {
		r.logger.Debug("ignoring stale frame",
			zap.Int64("ts", f.Stamp.TS), zap.String("from", f.Stamp.AgentID))
		return
	}
	r.net.clock.Receive(f.Stamp.TS)
	r.net.last = f.Stamp
	prev := r.suppress
	r.suppress = true
	defer func() { r.suppress = prev }()
	r.SetText(f.Text)
}
