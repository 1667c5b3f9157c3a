// Package document implements the agent document: one agent's local
// replica of the text, its cursor, and its causal undo/redo history.
//
// The document is the only writer of its replica. User edits go through
// SetText and are recorded; writes that originate elsewhere (other agents,
// seeding) go through WithoutUndo and are not.
package document

import (
	"errors"
	"fmt"

	"github.com/daviddao/coedit/pkg/engine"
	"go.uber.org/zap"
)

var (
	// ErrSuppressionUnsupported is returned for a replica that cannot
	// exclude writes from its undo history, unless degraded undo is
	// explicitly allowed.
	ErrSuppressionUnsupported = errors.New("replica cannot suppress undo tracking")
	// ErrDisposed is returned when a disposed replica is wrapped.
	ErrDisposed = errors.New("replica already disposed")
)

// Options configures a Document.
type Options struct {
	// InitialText seeds the document without recording it.
	InitialText string
	// AllowDegradedUndo accepts a replica without undo suppression. Remote
	// writes will then be recorded as the agent's own actions.
	AllowDegradedUndo bool
	Logger            *zap.Logger
}

// Document is an agent's local replica. Not goroutine-safe: documents are
// used from inside the owning room's loop turns.
type Document struct {
	agentID  string
	replica  engine.Replica
	degraded bool

	suppressDepth int
	disposed      bool

	logger *zap.Logger
}

// New wraps replica. The agent id is taken from the replica and never
// changes for the lifetime of the document.
func New(replica engine.Replica, opts Options) (*Document, error) {
	if replica == nil {
		return nil, fmt.Errorf("document: nil replica")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Document{
		agentID: replica.AgentID(),
		replica: replica,
		logger:  logger.With(zap.String("agent", replica.AgentID())),
	}
	if !engine.SupportsSuppression(replica) {
		if !opts.AllowDegradedUndo {
			return nil, fmt.Errorf("document %s: %w", d.agentID, ErrSuppressionUnsupported)
		}
		d.degraded = true
		d.logger.Warn("replica cannot suppress undo tracking; remote edits will be undoable by this agent")
	}
	if opts.InitialText != "" {
		d.WithoutUndo(func() { replica.SetText(opts.InitialText) })
	}
	return d, nil
}

// AgentID returns the id of the agent owning the document.
func (d *Document) AgentID() string { return d.agentID }

// Text returns the current text.
func (d *Document) Text() string { return d.replica.Text() }

// Cursor returns the cursor as a rune offset into Text.
func (d *Document) Cursor() int { return d.replica.Cursor() }

// Syncing reports whether the replica is connected to a relay.
func (d *Document) Syncing() bool { return d.replica.Syncing() }

// CanUndo reports whether Undo would revert a change. Always false after
// Dispose.
func (d *Document) CanUndo() bool { return !d.disposed && d.replica.CanUndo() }

// CanRedo reports whether Redo would re-apply a change. Always false after
// Dispose.
func (d *Document) CanRedo() bool { return !d.disposed && d.replica.CanRedo() }

// Degraded reports whether remote writes may leak into this agent's undo
// history because the replica cannot suppress tracking.
func (d *Document) Degraded() bool { return d.degraded }

// Disposed reports whether Dispose has been called.
func (d *Document) Disposed() bool { return d.disposed }

// SetText replaces the text. Outside WithoutUndo the change becomes one
// entry in the agent's undo history.
func (d *Document) SetText(text string) {
	if d.disposed {
		return
	}
	d.replica.SetText(text)
}

// SetCursor moves the cursor.
func (d *Document) SetCursor(pos int) {
	if d.disposed {
		return
	}
	d.replica.SetCursor(pos)
}

// Undo reverts this agent's most recent change. No-op when CanUndo is false.
func (d *Document) Undo() {
	if d.CanUndo() {
		d.replica.Undo()
	}
}

// Redo re-applies this agent's most recently undone change. No-op when
// CanRedo is false.
func (d *Document) Redo() {
	if d.CanRedo() {
		d.replica.Redo()
	}
}

// WithoutUndo runs fn with undo tracking suppressed. Calls nest; tracking
// is re-enabled when the outermost call returns, including by panic.
func (d *Document) WithoutUndo(fn func()) {
	if d.suppressDepth == 0 {
		d.replica.SuppressUndoTracking(true)
	}
	d.suppressDepth++
	defer func() {
		d.suppressDepth--
		if d.suppressDepth == 0 {
			d.replica.SuppressUndoTracking(false)
		}
	}()
	fn()
}

// Suppressed reports whether a WithoutUndo call is in progress.
func (d *Document) Suppressed() bool { return d.suppressDepth > 0 }

// Subscribe registers fn to run after every text or cursor change.
func (d *Document) Subscribe(fn func()) (unsubscribe func()) {
	if d.disposed {
		return func() {}
	}
	return d.replica.Subscribe(fn)
}

// Dispose releases the replica. Idempotent.
func (d *Document) Dispose() {
	if d.disposed {
		return
	}
	d.disposed = true
	d.replica.Dispose()
	d.logger.Debug("document disposed")
}
