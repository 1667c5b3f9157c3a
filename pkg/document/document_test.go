package document

import (
	"context"
	"testing"

	"github.com/daviddao/coedit/pkg/engine"
	"github.com/daviddao/coedit/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDoc(t *testing.T, agent string, opts Options) *Document {
	t.Helper()
	r, err := engine.NewTextReplica(context.Background(), engine.Options{AgentID: agent, UndoEnabled: true})
	require.NoError(t, err)
	d, err := New(r, opts)
	require.NoError(t, err)
	t.Cleanup(d.Dispose)
	return d
}

// countingReplica wraps a TextReplica and counts suppression toggles.
type countingReplica struct {
	*engine.TextReplica
	toggles []bool
}

func (c *countingReplica) SuppressUndoTracking(on bool) {
	c.toggles = append(c.toggles, on)
	c.TextReplica.SuppressUndoTracking(on)
}

// noSuppress is a replica that relies on the no-op suppression default.
type noSuppress struct {
	*engine.TextReplica
	engine.NoopSuppression
}

func (n *noSuppress) SuppressUndoTracking(on bool) { n.NoopSuppression.SuppressUndoTracking(on) }

func TestNewRejectsNilReplica(t *testing.T) {
	_, err := New(nil, Options{})
	assert.Error(t, err)
}

func TestInitialTextIsNotUndoable(t *testing.T) {
	d := newDoc(t, "alice", Options{InitialText: `(\x.x) 42`})
	assert.Equal(t, `(\x.x) 42`, d.Text())
	assert.False(t, d.CanUndo())
	assert.False(t, d.Suppressed())
}

func TestUserEditsAreUndoable(t *testing.T) {
	d := newDoc(t, "alice", Options{})
	d.SetText("a")
	d.SetText("ab")
	require.True(t, d.CanUndo())
	d.Undo()
	assert.Equal(t, "a", d.Text())
	d.Redo()
	assert.Equal(t, "ab", d.Text())
}

func TestUndoRedoInertWhenUnavailable(t *testing.T) {
	d := newDoc(t, "alice", Options{})
	calls := 0
	d.Subscribe(func() { calls++ })
	d.Undo()
	d.Redo()
	assert.Zero(t, calls)
}

func TestWithoutUndoExcludesWrites(t *testing.T) {
	d := newDoc(t, "bob", Options{})
	d.WithoutUndo(func() {
		assert.True(t, d.Suppressed())
		d.SetText("remote")
		d.SetCursor(3)
	})
	assert.Equal(t, "remote", d.Text())
	assert.Equal(t, 3, d.Cursor())
	assert.False(t, d.CanUndo())
}

func TestWithoutUndoNestsAndRestoresOnce(t *testing.T) {
	r, err := engine.NewTextReplica(context.Background(), engine.Options{AgentID: "bob", UndoEnabled: true})
	require.NoError(t, err)
	cr := &countingReplica{TextReplica: r}
	d, err := New(cr, Options{})
	require.NoError(t, err)
	defer d.Dispose()

	d.WithoutUndo(func() {
		d.WithoutUndo(func() { d.SetText("x") })
		d.SetText("xy")
	})
	assert.Equal(t, []bool{true, false}, cr.toggles)
	assert.False(t, d.CanUndo())
}

func TestWithoutUndoReenablesAfterPanic(t *testing.T) {
	d := newDoc(t, "bob", Options{})
	assert.Panics(t, func() {
		d.WithoutUndo(func() {
			d.SetText("remote")
			panic("observer failed")
		})
	})
	assert.False(t, d.Suppressed())
	d.SetText("remote!")
	assert.True(t, d.CanUndo(), "tracking is back on after the panic")
}

func TestDegradedReplicaRejectedByDefault(t *testing.T) {
	r, err := engine.NewTextReplica(context.Background(), engine.Options{AgentID: "eve", UndoEnabled: true})
	require.NoError(t, err)
	defer r.Dispose()

	_, err = New(&noSuppress{TextReplica: r}, Options{})
	assert.ErrorIs(t, err, ErrSuppressionUnsupported)
}

func TestDegradedReplicaAllowedLeaksRemoteWrites(t *testing.T) {
	r, err := engine.NewTextReplica(context.Background(), engine.Options{AgentID: "eve", UndoEnabled: true})
	require.NoError(t, err)
	d, err := New(&noSuppress{TextReplica: r}, Options{AllowDegradedUndo: true})
	require.NoError(t, err)
	defer d.Dispose()

	assert.True(t, d.Degraded())
	d.WithoutUndo(func() { d.SetText("remote") })
	assert.True(t, d.CanUndo(), "degraded suppression records remote writes")
}

func TestDisposeIsIdempotent(t *testing.T) {
	d := newDoc(t, "alice", Options{})
	d.SetText("abc")
	d.Dispose()
	d.Dispose()
	assert.True(t, d.Disposed())
	assert.False(t, d.CanUndo())
	d.SetText("ignored")
	d.SetCursor(1)
	assert.Equal(t, "alice", d.AgentID())

	called := false
	unsub := d.Subscribe(func() { called = true })
	unsub()
	assert.False(t, called)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		old, new string
		tie      model.EntryKind
		want     Edit
		ok       bool
	}{
		{"unchanged", "abc", "abc", model.EntryInsert, Edit{}, false},
		{"single insert", "Hell", "Hello", model.EntryInsert, Edit{model.EntryInsert, "o"}, true},
		{"middle insert", "Ho", "Hello", model.EntryInsert, Edit{model.EntryInsert, "ell"}, true},
		{"paste", "", "Hello World", model.EntryInsert, Edit{model.EntryInsert, "+11 chars"}, true},
		{"delete", "Hello World", "Hello", model.EntryInsert, Edit{model.EntryDelete, "6 chars"}, true},
		{"replace grows", "cat", "dogs", model.EntryInsert, Edit{model.EntryInsert, "+1 chars"}, true},
		{"equal length default", "cat", "cut", model.EntryInsert, Edit{model.EntryInsert, "u"}, true},
		{"equal length as delete", "cat", "cut", model.EntryDelete, Edit{model.EntryDelete, "1 chars"}, true},
		{"unicode", "h", "hé", model.EntryInsert, Edit{model.EntryInsert, "é"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Classify(tc.old, tc.new, tc.tie)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
