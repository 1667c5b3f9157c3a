package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// item is one rune of the sequence. Deleted items stay in place as
// tombstones so that history entries can refer to them by id.
type item struct {
	id      uint64
	r       rune
	deleted bool
}

// change is one undoable history entry: the items it inserted and the
// items it deleted.
type change struct {
	inserted []uint64
	deleted  []uint64
}

func (c change) empty() bool { return len(c.inserted) == 0 && len(c.deleted) == 0 }

type subscription struct {
	fn     func()
	active bool
}

// TextReplica is the reference Replica: a tombstoned rune sequence with a
// causal undo history that only references the agent's own changes.
//
// Remote text arrives as a full replacement, which is diffed against the
// current text. Because history entries name items by id rather than by
// position, later remote inserts and deletes never shift or corrupt them:
// undoing an insert hides exactly the runes this agent typed, wherever
// they have moved to.
type TextReplica struct {
	agentID     string
	undoEnabled bool

	items  []item
	nextID uint64
	text   string
	runes  int
	cursor int

	suppress   bool
	undo, redo []change

	subs     []*subscription
	disposed bool

	net    *networked
	logger *zap.Logger
}

var _ Replica = (*TextReplica)(nil)

// NewTextReplica creates a replica. With opts.Relay set it dials the relay
// and keeps the text convergent with the other peers in the room.
func NewTextReplica(ctx context.Context, opts Options) (*TextReplica, error) {
	if opts.AgentID == "" {
		return nil, fmt.Errorf("engine: agent id is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &TextReplica{
		agentID:     opts.AgentID,
		undoEnabled: opts.UndoEnabled,
		logger:      logger.With(zap.String("agent", opts.AgentID)),
	}
	if opts.Relay != nil {
		n, err := dialNetworked(ctx, r, opts)
		if err != nil {
			return nil, err
		}
		r.net = n
	}
	return r, nil
}

func (r *TextReplica) AgentID() string { return r.agentID }
func (r *TextReplica) Text() string    { return r.text }

// Cursor returns the cursor as a rune offset. Remote changes move it along
// with the text around it.
func (r *TextReplica) Cursor() int   { return r.cursor }
func (r *TextReplica) CanUndo() bool { return len(r.undo) > 0 }
func (r *TextReplica) CanRedo() bool { return len(r.redo) > 0 }

// Syncing reports whether the relay connection is up.
func (r *TextReplica) Syncing() bool {
	return r.net != nil && r.net.client.Connected()
}

// SuppressUndoTracking toggles history recording for subsequent writes.
func (r *TextReplica) SuppressUndoTracking(on bool) { r.suppress = on }

// SetText replaces the text, recording the change unless suppressed.
func (r *TextReplica) SetText(text string) {
	if r.disposed || text == r.text {
		return
	}
	ch := r.apply(Diff(r.text, text))
	r.refresh()
	if !r.suppress && r.undoEnabled && !ch.empty() {
		r.undo = append(r.undo, ch)
		r.redo = nil
	}
	if !r.suppress {
		r.publish()
	}
	r.notify()
}

// SetCursor moves the cursor, clamped to the text bounds.
func (r *TextReplica) SetCursor(pos int) {
	if r.disposed {
		return
	}
	pos = clamp(pos, 0, r.runes)
	if pos == r.cursor {
		return
	}
	r.cursor = pos
	r.notify()
}

// Undo reverts the most recent recorded change.
func (r *TextReplica) Undo() {
	if r.disposed || len(r.undo) == 0 {
		return
	}
	ch := r.undo[len(r.undo)-1]
	r.undo = r.undo[:len(r.undo)-1]
	r.setDeleted(ch.inserted, true)
	r.setDeleted(ch.deleted, false)
	r.redo = append(r.redo, ch)
	r.afterHistoryMove(ch.inserted, ch.deleted)
}

// Redo re-applies the most recently undone change.
func (r *TextReplica) Redo() {
	if r.disposed || len(r.redo) == 0 {
		return
	}
	ch := r.redo[len(r.redo)-1]
	r.redo = r.redo[:len(r.redo)-1]
	r.setDeleted(ch.inserted, false)
	r.setDeleted(ch.deleted, true)
	r.undo = append(r.undo, ch)
	r.afterHistoryMove(ch.deleted, ch.inserted)
}

// Subscribe registers fn for change notifications.
func (r *TextReplica) Subscribe(fn func()) func() {
	s := &subscription{fn: fn, active: !r.disposed}
	if s.active {
		r.subs = append(r.subs, s)
	}
	return func() {
		if !s.active {
			return
		}
		s.active = false
		r.subs = slices.DeleteFunc(r.subs, func(x *subscription) bool { return x == s })
	}
}

// Dispose drops all subscriptions and closes the relay connection.
func (r *TextReplica) Dispose() {
	if r.disposed {
		return
	}
	r.disposed = true
	for _, s := range r.subs {
		s.active = false
	}
	r.subs = nil
	if r.net != nil {
		r.net.close()
	}
}

// apply walks the diff over the visible items, tombstoning deleted runs and
// splicing in new items for inserted runs. The cursor keeps its place in the
// text: runs inserted before it push it right, deleted runs before it pull it
// left. An insert exactly at the cursor lands after it.
func (r *TextReplica) apply(ops []Op) change {
	var ch change
	idx, pos := 0, 0
	for _, op := range ops {
		n := op.Runes()
		switch op.Kind {
		case OpEqual:
			for seen := 0; seen < n; idx++ {
				if !r.items[idx].deleted {
					seen++
				}
			}
			pos += n
		case OpDelete:
			for seen := 0; seen < n; idx++ {
				if !r.items[idx].deleted {
					r.items[idx].deleted = true
					ch.deleted = append(ch.deleted, r.items[idx].id)
					seen++
				}
			}
			if r.cursor > pos {
				r.cursor -= min(n, r.cursor-pos)
			}
		case OpInsert:
			fresh := make([]item, 0, n)
			for _, c := range op.Text {
				r.nextID++
				fresh = append(fresh, item{id: r.nextID, r: c})
				ch.inserted = append(ch.inserted, r.nextID)
			}
			r.items = slices.Insert(r.items, idx, fresh...)
			idx += len(fresh)
			if r.cursor > pos {
				r.cursor += len(fresh)
			}
			pos += len(fresh)
		}
	}
	return ch
}

func (r *TextReplica) setDeleted(ids []uint64, deleted bool) {
	if len(ids) == 0 {
		return
	}
	want := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	for i := range r.items {
		if _, ok := want[r.items[i].id]; ok {
			r.items[i].deleted = deleted
		}
	}
}

// afterHistoryMove refreshes derived state after undo/redo and places the
// cursor after the first restored item, or where the first hidden item was.
func (r *TextReplica) afterHistoryMove(hidden, shown []uint64) {
	r.refresh()
	if pos, ok := r.visiblePos(shown, true); ok {
		r.cursor = pos
	} else if pos, ok := r.visiblePos(hidden, false); ok {
		r.cursor = pos
	}
	r.cursor = clamp(r.cursor, 0, r.runes)
	r.publish()
	r.notify()
}

// visiblePos returns the visible offset of the first item among ids. With
// after set it returns the offset just past the last such visible item.
func (r *TextReplica) visiblePos(ids []uint64, after bool) (int, bool) {
	if len(ids) == 0 {
		return 0, false
	}
	want := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	pos, found, last := 0, false, 0
	for _, it := range r.items {
		if _, ok := want[it.id]; ok {
			if !after {
				return pos, true
			}
			if !it.deleted {
				found, last = true, pos+1
			}
		}
		if !it.deleted {
			pos++
		}
	}
	return last, found
}

func (r *TextReplica) refresh() {
	var b strings.Builder
	for _, it := range r.items {
		if !it.deleted {
			b.WriteRune(it.r)
		}
	}
	r.text = b.String()
	r.runes = utf8.RuneCountInString(r.text)
	r.cursor = clamp(r.cursor, 0, r.runes)
}

func (r *TextReplica) notify() {
	if r.disposed || len(r.subs) == 0 {
		return
	}
	snapshot := slices.Clone(r.subs)
	for _, s := range snapshot {
		if s.active && !r.disposed {
			s.fn()
		}
	}
}

func (r *TextReplica) publish() {
	if r.net != nil {
		r.net.publish(r.agentID, r.text)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
