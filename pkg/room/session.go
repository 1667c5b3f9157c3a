package room

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/daviddao/coedit/pkg/bridge"
	"github.com/daviddao/coedit/pkg/document"
	"github.com/daviddao/coedit/pkg/engine"
	"github.com/daviddao/coedit/pkg/model"
	"github.com/daviddao/coedit/pkg/undo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is one agent's editing session. Its methods are safe for
// concurrent use; each runs as a turn of the room's loop.
type Session struct {
	room    *Room
	agentID string

	// Loop-owned; replaced when the room switches mode.
	doc    *document.Document
	undo   *undo.Coordinator
	bridge *bridge.Bridge
	left   bool
}

// Join starts a session for agentID, seeded with initialText. An empty
// agentID gets a generated one.
func (r *Room) Join(ctx context.Context, agentID, initialText string) (*Session, error) {
	if agentID == "" {
		agentID = "agent-" + uuid.NewString()[:8]
	}
	r.admin.Lock()
	defer r.admin.Unlock()

	var mode model.Mode
	if err := r.update(func() error {
		if _, ok := r.sessions[agentID]; ok {
			return fmt.Errorf("room %s: %w: %s", r.id, ErrAgentExists, agentID)
		}
		mode = r.mode
		return nil
	}); err != nil {
		return nil, err
	}

	rep, err := r.newReplica(ctx, agentID, mode)
	if err != nil {
		return nil, fmt.Errorf("room %s: join %s: %w", r.id, agentID, err)
	}

	s := &Session{room: r, agentID: agentID}
	err = r.update(func() error {
		if err := s.mountLocked(rep, validText(initialText)); err != nil {
			return err
		}
		r.sessions[agentID] = s
		r.order = append(r.order, agentID)
		r.metrics.SessionOpened()
		if r.archive != nil {
			if err := r.archive.Joined(agentID, r.opts.Now()); err != nil {
				r.metrics.ArchiveFailed()
				r.logger.Warn("archive join failed", zap.String("agent", agentID), zap.Error(err))
			}
		}
		r.logger.Info("agent joined", zap.String("agent", agentID), zap.String("mode", string(r.mode)))
		return nil
	})
	if err != nil {
		rep.Dispose()
		return nil, err
	}
	return s, nil
}

// Session returns the session of agentID.
func (r *Room) Session(agentID string) (*Session, error) {
	var s *Session
	err := r.update(func() error {
		s = r.sessions[agentID]
		if s == nil {
			return fmt.Errorf("room %s: %w: %s", r.id, ErrUnknownAgent, agentID)
		}
		return nil
	})
	return s, err
}

// Agents returns the ids of the joined agents in join order.
func (r *Room) Agents() []string {
	var ids []string
	r.run(func() { ids = append(ids, r.order...) })
	return ids
}

// Leave ends agentID's session.
func (r *Room) Leave(agentID string) error {
	r.admin.Lock()
	defer r.admin.Unlock()
	return r.update(func() error {
		if _, ok := r.sessions[agentID]; !ok {
			return fmt.Errorf("room %s: %w: %s", r.id, ErrUnknownAgent, agentID)
		}
		r.dropSessionLocked(agentID)
		return nil
	})
}

func (r *Room) dropSessionLocked(agentID string) {
	s := r.sessions[agentID]
	if s == nil {
		return
	}
	s.unmountLocked()
	s.left = true
	delete(r.sessions, agentID)
	for i, id := range r.order {
		if id == agentID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.metrics.SessionClosed()
	if r.archive != nil {
		if err := r.archive.Left(agentID, r.opts.Now()); err != nil {
			r.metrics.ArchiveFailed()
			r.logger.Warn("archive leave failed", zap.String("agent", agentID), zap.Error(err))
		}
	}
	r.logger.Info("agent left", zap.String("agent", agentID))
}

// mountLocked wraps rep and, in local mode, bridges it to the shared
// document. On error rep is disposed.
func (s *Session) mountLocked(rep engine.Replica, initialText string) error {
	r := s.room
	doc, err := document.New(rep, document.Options{
		InitialText:       initialText,
		AllowDegradedUndo: r.opts.AllowDegradedUndo,
		Logger:            r.logger,
	})
	if err != nil {
		rep.Dispose()
		return fmt.Errorf("room %s: %w", r.id, err)
	}
	s.doc = doc
	s.undo = undo.New(doc, r.log, r.opts.Now)
	s.bridge = nil
	if r.mode == model.ModeLocal {
		s.bridge = bridge.New(doc, r.shared, bridge.Options{
			Scheduler:       r.loop,
			OnRemoteApplied: r.onRemoteApplied,
			Metrics:         r.metrics,
			Logger:          r.logger,
		})
		s.bridge.Attach()
	}
	return nil
}

// unmountLocked detaches the bridge before disposing the document, so no
// propagation reaches a disposed replica.
func (s *Session) unmountLocked() {
	if s.bridge != nil {
		s.bridge.Detach()
		s.bridge = nil
	}
	if s.doc != nil {
		s.doc.Dispose()
	}
}

func (r *Room) onRemoteApplied(agentID string, runes int) {
	if r.opts.LogSync {
		r.appendLocked(agentID, model.EntrySync, fmt.Sprintf("%d chars", runes))
	}
}

// AgentID returns the session's agent id.
func (s *Session) AgentID() string { return s.agentID }

// do runs fn as a turn against a live session.
func (s *Session) do(fn func()) error {
	return s.room.update(func() error {
		if s.left {
			return fmt.Errorf("room %s: %w: %s", s.room.id, ErrUnknownAgent, s.agentID)
		}
		fn()
		return nil
	})
}

// Edit replaces the agent's text and moves its cursor, logging the change
// as an insert or a delete. Equal-length replacements log as inserts.
func (s *Session) Edit(text string, cursor int) error {
	text = validText(text)
	return s.do(func() { s.editLocked(text, cursor) })
}

// editLocked logs the edit before applying it, so entries produced by its
// propagation (sync) follow it in the log.
func (s *Session) editLocked(text string, cursor int) {
	if e, ok := document.Classify(s.doc.Text(), text, model.EntryInsert); ok {
		s.room.appendLocked(s.agentID, e.Kind, e.Content)
	}
	s.doc.SetText(text)
	s.doc.SetCursor(cursor)
}

// Type inserts text at the cursor one rune at a time, each as its own edit.
func (s *Session) Type(text string) error {
	for _, c := range text {
		if err := s.do(func() {
			runes := []rune(s.doc.Text())
			pos := s.doc.Cursor()
			next := string(runes[:pos]) + string(c) + string(runes[pos:])
			s.editLocked(next, pos+1)
		}); err != nil {
			return err
		}
	}
	return nil
}

// Backspace deletes up to n runes before the cursor, one edit per rune.
func (s *Session) Backspace(n int) error {
	for i := 0; i < n; i++ {
		if err := s.do(func() {
			pos := s.doc.Cursor()
			if pos == 0 {
				return
			}
			runes := []rune(s.doc.Text())
			next := string(runes[:pos-1]) + string(runes[pos:])
			s.editLocked(next, pos-1)
		}); err != nil {
			return err
		}
	}
	return nil
}

// Select moves the cursor. Negative positions count from the end, so -1
// places it after the last rune.
func (s *Session) Select(pos int) error {
	return s.do(func() {
		if pos < 0 {
			pos = utf8.RuneCountInString(s.doc.Text()) + 1 + pos
		}
		s.doc.SetCursor(pos)
	})
}

// Undo reverts the agent's most recent change. It reports false when there
// was nothing to undo.
func (s *Session) Undo() (bool, error) {
	var done bool
	err := s.do(func() { done = s.undo.Undo() })
	return done, err
}

// Redo re-applies the agent's most recently undone change.
func (s *Session) Redo() (bool, error) {
	var done bool
	err := s.do(func() { done = s.undo.Redo() })
	return done, err
}

// State returns a snapshot of the session.
func (s *Session) State() (SessionState, error) {
	var st SessionState
	err := s.do(func() { st = s.stateLocked() })
	return st, err
}

// Text returns the agent's text. A session that has left reads as "";
// use State to tell the two apart.
func (s *Session) Text() string {
	st, _ := s.State()
	return st.Text
}

// Cursor returns the agent's cursor, or 0 once the session has left.
func (s *Session) Cursor() int {
	st, _ := s.State()
	return st.Cursor
}

// CanUndo reports whether the agent has a change to undo. False once the
// session has left.
func (s *Session) CanUndo() bool {
	st, _ := s.State()
	return st.CanUndo
}

// CanRedo reports whether the agent has an undone change to redo. False
// once the session has left.
func (s *Session) CanRedo() bool {
	st, _ := s.State()
	return st.CanRedo
}

// Close leaves the room.
func (s *Session) Close() error { return s.room.Leave(s.agentID) }
