// Package engine defines the replica capability that agent documents are
// built on, plus a reference implementation.
//
// A Replica is one agent's copy of the document text together with that
// agent's causal undo/redo history. The synchronization core only relies on
// the Replica interface, so a real merge engine can be swapped in, or a
// stub used in tests.
package engine

import (
	"context"

	"github.com/daviddao/coedit/pkg/clock"
	"go.uber.org/zap"
)

// Replica is the capability surface consumed by the document layer.
//
// All methods are called from inside the owning room's loop turns; a
// Replica need not be goroutine-safe.
type Replica interface {
	AgentID() string

	Text() string
	// SetText replaces the text. Unless tracking is suppressed, the change
	// is recorded as one entry in the undo history and the redo history is
	// cleared.
	SetText(text string)

	Cursor() int
	SetCursor(pos int)

	// Syncing reports whether the replica is connected to a relay. Always
	// false for local replicas.
	Syncing() bool

	CanUndo() bool
	CanRedo() bool
	// Undo and Redo are no-ops when the respective history is empty.
	Undo()
	Redo()

	// SuppressUndoTracking toggles recording of text changes. Replicas
	// that cannot suppress embed NoopSuppression.
	SuppressUndoTracking(on bool)

	// Subscribe registers fn to run synchronously after every change to
	// text or cursor, in registration order. The returned func removes the
	// subscription; calling it more than once is safe.
	Subscribe(fn func()) (unsubscribe func())

	// Dispose releases the replica. Idempotent.
	Dispose()
}

// Options configures a replica.
type Options struct {
	AgentID     string
	UndoEnabled bool

	// Relay enables networked mode when non-nil.
	Relay *RelayOptions
	// Dispatch queues fn as a future loop turn. Required in networked mode:
	// relay frames arrive on a transport goroutine. It must return once ctx
	// is done, which happens when the replica is disposed.
	Dispatch func(ctx context.Context, fn func()) error
	// Clock stamps outgoing relay frames. A private clock is used when nil.
	Clock *clock.Clock

	Logger *zap.Logger
}

// RelayOptions names the relay and room a networked replica joins.
type RelayOptions struct {
	URL    string
	RoomID string
}

// Factory constructs replicas. The context bounds any connection setup.
type Factory func(ctx context.Context, opts Options) (Replica, error)

// DefaultFactory builds reference TextReplicas.
func DefaultFactory(ctx context.Context, opts Options) (Replica, error) {
	return NewTextReplica(ctx, opts)
}

// NoopSuppression is the default SuppressUndoTracking for replicas that
// cannot exclude writes from their history. Embedding it marks the replica
// as degraded: remote writes will land in the agent's undo history.
type NoopSuppression struct{}

// SuppressUndoTracking does nothing.
func (NoopSuppression) SuppressUndoTracking(bool) {}

func (NoopSuppression) suppressionIsNoop() {}

// SupportsSuppression reports whether r really implements undo suppression,
// i.e. it does not rely on the NoopSuppression default.
func SupportsSuppression(r Replica) bool {
	_, noop := r.(interface{ suppressionIsNoop() })
	return !noop
}
