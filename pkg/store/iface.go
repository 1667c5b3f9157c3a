// iface.go defines the StoreInterface for dependency injection and testing.
//
// The concrete *Store type satisfies this interface. The room and the cmd
// layer accept StoreInterface instead of *Store, enabling mock injection
// in tests.
package store

import (
	"time"

	"github.com/daviddao/coedit/pkg/model"
)

// StoreInterface defines the full set of store operations.
type StoreInterface interface {
	// Close closes the database connection.
	Close() error

	// --- Sessions ---

	// RecordJoin opens a session record.
	RecordJoin(room, agentID string, at time.Time) error

	// RecordLeave closes the agent's open session, if any.
	RecordLeave(room, agentID string, at time.Time) error

	// ListSessions returns the room's sessions in join order.
	ListSessions(room string) ([]model.SessionRecord, error)

	// --- Entries ---

	// InsertEntry archives an operation-log entry. Returns the row ID.
	InsertEntry(room string, e model.Entry) (int64, error)

	// ListEntries returns entries with lamport_ts >= sinceTS.
	ListEntries(room string, sinceTS int64, limit int) ([]model.Entry, error)

	// ListEntriesForAgent returns entries produced by agentID.
	ListEntriesForAgent(room, agentID string, sinceTS int64, limit int) ([]model.Entry, error)

	// CountEntries returns the number of archived entries for room.
	CountEntries(room string) int64

	// MaxLamport returns the highest archived Lamport timestamp, or 0.
	MaxLamport(room string) int64

	// Rooms lists every archived room.
	Rooms() ([]string, error)
}

// Compile-time check that *Store implements StoreInterface.
var _ StoreInterface = (*Store)(nil)
