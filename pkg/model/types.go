// Package model defines the core domain types for coedit.
//
// Coedit keeps several agents' local document replicas convergent with one
// shared document while every agent keeps its own undo/redo history:
//
//   - Each agent edits a local replica. Its own edits are recorded in its
//     causal undo history; edits that arrive from other agents are applied
//     with recording suppressed, so undo only ever reverts the agent's own
//     work.
//
//   - A room owns the shared document and a bounded operation log. Every
//     user-originated action (insert, delete, undo, redo) is appended to the
//     log stamped with a Lamport timestamp, giving a causal, attributable
//     trail across agents.
package model

import "time"

// EntryKind enumerates the kinds of operation-log entries.
type EntryKind string

const (
	EntryInsert EntryKind = "insert"
	EntryDelete EntryKind = "delete"
	EntryUndo   EntryKind = "undo"
	EntryRedo   EntryKind = "redo"
	EntrySync   EntryKind = "sync"
)

// Valid reports whether k is one of the known entry kinds.
func (k EntryKind) Valid() bool {
	switch k {
	case EntryInsert, EntryDelete, EntryUndo, EntryRedo, EntrySync:
		return true
	}
	return false
}

// Entry is a single operation-log entry. Entries are never mutated after
// they are appended.
type Entry struct {
	AgentID   string    `json:"agent_id"`
	Kind      EntryKind `json:"kind"`
	Content   string    `json:"content,omitempty"`
	Timestamp int64     `json:"timestamp"` // wall clock, unix millis
	LamportTS int64     `json:"lamport_ts"`
}

// Time returns the entry's wall-clock timestamp.
func (e Entry) Time() time.Time { return time.UnixMilli(e.Timestamp) }

// Mode selects how agent replicas converge.
type Mode string

const (
	// ModeLocal converges through the in-process shared document.
	ModeLocal Mode = "local"
	// ModeNetworked converges through the relay; the replica engine is
	// solely responsible for convergence.
	ModeNetworked Mode = "networked"
)

// ProbeStatus is the outcome of a relay availability probe.
type ProbeStatus string

const (
	ProbeUnknown      ProbeStatus = "unknown"
	ProbeConnected    ProbeStatus = "connected"
	ProbeDisconnected ProbeStatus = "disconnected"
)

// SessionRecord is an archived agent session within a room.
type SessionRecord struct {
	Room     string     `json:"room"`
	AgentID  string     `json:"agent_id"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

// Active reports whether the session has not been closed.
func (s SessionRecord) Active() bool { return s.LeftAt == nil }
