// Package relay implements the networked synchronization medium: a websocket
// hub that fans out document updates to every peer in a room, a client for
// replicas, and the availability probe used before networked mode may be
// enabled.
package relay

import (
	"fmt"
	"net/url"

	"github.com/daviddao/coedit/pkg/clock"
)

// Default relay endpoint and room.
const (
	DefaultURL  = "ws://localhost:8787"
	DefaultRoom = "demo-room"
)

// FrameType enumerates relay frames.
type FrameType string

const (
	// FrameUpdate carries a replica's full text after a local change.
	FrameUpdate FrameType = "update"
)

// Frame is the unit of relay traffic.
type Frame struct {
	Type  FrameType   `json:"type"`
	Room  string      `json:"room"`
	Text  string      `json:"text"`
	Stamp clock.Stamp `json:"stamp"`
}

// Newer reports whether f supersedes prev under the Lamport total order.
func (f Frame) Newer(prev Frame) bool {
	return prev.Stamp.IsZero() || prev.Stamp.Less(f.Stamp)
}

// RoomURL returns base with the room and agent query parameters set.
func RoomURL(base, room, agentID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse relay url %q: %w", base, err)
	}
	q := u.Query()
	q.Set("room", room)
	if agentID != "" {
		q.Set("agent", agentID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
