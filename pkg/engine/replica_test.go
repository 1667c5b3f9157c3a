package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReplica(t *testing.T, agent string) *TextReplica {
	t.Helper()
	r, err := NewTextReplica(context.Background(), Options{AgentID: agent, UndoEnabled: true})
	require.NoError(t, err)
	t.Cleanup(r.Dispose)
	return r
}

// typeInto appends s rune by rune, one recorded change per rune.
func typeInto(r *TextReplica, s string) {
	for _, c := range s {
		r.SetText(r.Text() + string(c))
	}
}

// mirror copies src's text into dst with tracking suppressed.
func mirror(dst, src *TextReplica) {
	dst.SuppressUndoTracking(true)
	dst.SetText(src.Text())
	dst.SuppressUndoTracking(false)
}

func TestNewTextReplicaRequiresAgent(t *testing.T) {
	_, err := NewTextReplica(context.Background(), Options{})
	assert.Error(t, err)
}

func TestSetTextRecordsOneChangePerWrite(t *testing.T) {
	r := newReplica(t, "alice")
	typeInto(r, "Hi!")
	assert.Equal(t, "Hi!", r.Text())

	for _, want := range []string{"Hi", "H", ""} {
		require.True(t, r.CanUndo())
		r.Undo()
		assert.Equal(t, want, r.Text())
	}
	assert.False(t, r.CanUndo())
	assert.True(t, r.CanRedo())

	r.Redo()
	r.Redo()
	assert.Equal(t, "Hi", r.Text())
}

func TestUndoRedoOnEmptyHistoryAreNoOps(t *testing.T) {
	r := newReplica(t, "alice")
	calls := 0
	r.Subscribe(func() { calls++ })
	r.Undo()
	r.Redo()
	assert.Equal(t, "", r.Text())
	assert.Zero(t, calls)
}

func TestNewEditClearsRedo(t *testing.T) {
	r := newReplica(t, "alice")
	typeInto(r, "ab")
	r.Undo()
	require.True(t, r.CanRedo())
	r.SetText("ax")
	assert.False(t, r.CanRedo())
}

func TestSuppressedWritesAreNotRecorded(t *testing.T) {
	r := newReplica(t, "bob")
	r.SuppressUndoTracking(true)
	r.SetText("seeded")
	r.SuppressUndoTracking(false)
	assert.Equal(t, "seeded", r.Text())
	assert.False(t, r.CanUndo())
}

func TestUndoDisabledNeverRecords(t *testing.T) {
	r, err := NewTextReplica(context.Background(), Options{AgentID: "viewer"})
	require.NoError(t, err)
	defer r.Dispose()
	r.SetText("abc")
	assert.False(t, r.CanUndo())
}

func TestUndoOnlyRevertsOwnEditsAcrossReplicas(t *testing.T) {
	alice := newReplica(t, "alice")
	bob := newReplica(t, "bob")

	for _, c := range "Hello" {
		alice.SetText(alice.Text() + string(c))
		mirror(bob, alice)
	}
	for _, c := range " World" {
		bob.SetText(bob.Text() + string(c))
		mirror(alice, bob)
	}
	require.Equal(t, "Hello World", alice.Text())

	alice.Undo()
	assert.Equal(t, "Hell World", alice.Text())
	mirror(bob, alice)
	assert.Equal(t, "Hell World", bob.Text())

	bob.Undo()
	assert.Equal(t, "Hell Worl", bob.Text())
	mirror(alice, bob)

	alice.Redo()
	assert.Equal(t, "Hello Worl", alice.Text())
}

func TestUndoSurvivesRemoteInsertInsideOwnRun(t *testing.T) {
	alice := newReplica(t, "alice")
	alice.SetText("abcd") // one change

	// A remote agent inserts inside alice's run.
	alice.SuppressUndoTracking(true)
	alice.SetText("abXYcd")
	alice.SuppressUndoTracking(false)

	alice.Undo()
	assert.Equal(t, "XY", alice.Text(), "undo removes exactly alice's runes")
	alice.Redo()
	assert.Equal(t, "abXYcd", alice.Text())
}

func TestUndoDeleteRestoresRunes(t *testing.T) {
	r := newReplica(t, "alice")
	r.SetText("Hello World")
	r.SetText("Hello")
	r.Undo()
	assert.Equal(t, "Hello World", r.Text())
	assert.Equal(t, 11, r.Cursor(), "cursor follows the restored run")
}

func TestCursorClampsAndNotifies(t *testing.T) {
	r := newReplica(t, "alice")
	r.SetText("abc")
	calls := 0
	r.Subscribe(func() { calls++ })

	r.SetCursor(10)
	assert.Equal(t, 3, r.Cursor())
	r.SetCursor(-4)
	assert.Equal(t, 0, r.Cursor())
	r.SetCursor(0)
	assert.Equal(t, 2, calls, "unchanged cursor does not notify")

	r.SetCursor(3)
	r.SetText("a")
	assert.Equal(t, 1, r.Cursor())
}

func TestRemoteChangesKeepCursorInPlace(t *testing.T) {
	r := newReplica(t, "alice")
	r.SetText("abc")
	r.SetCursor(3)

	remote := func(text string) {
		r.SuppressUndoTracking(true)
		r.SetText(text)
		r.SuppressUndoTracking(false)
	}

	remote("Xabc")
	assert.Equal(t, 4, r.Cursor(), "insert before the cursor pushes it right")
	remote("Xabcd")
	assert.Equal(t, 4, r.Cursor(), "insert after the cursor leaves it")
	remote("bcd")
	assert.Equal(t, 2, r.Cursor(), "delete before the cursor pulls it left")
	remote("d")
	assert.Equal(t, 0, r.Cursor(), "delete spanning the cursor lands at the run start")
	remote("Yd")
	assert.Equal(t, 0, r.Cursor(), "insert at the cursor lands after it")
}

func TestSubscribersRunInRegistrationOrder(t *testing.T) {
	r := newReplica(t, "alice")
	var order []int
	r.Subscribe(func() { order = append(order, 1) })
	unsub := r.Subscribe(func() { order = append(order, 2) })
	r.Subscribe(func() { order = append(order, 3) })

	r.SetText("x")
	assert.Equal(t, []int{1, 2, 3}, order)

	order = nil
	unsub()
	unsub()
	r.SetText("xy")
	assert.Equal(t, []int{1, 3}, order)
}

func TestSetSameTextDoesNotNotify(t *testing.T) {
	r := newReplica(t, "alice")
	r.SetText("same")
	calls := 0
	r.Subscribe(func() { calls++ })
	r.SetText("same")
	assert.Zero(t, calls)
	assert.Equal(t, 1, len(r.undo))
}

func TestDisposeIsIdempotentAndSilencesReplica(t *testing.T) {
	r := newReplica(t, "alice")
	calls := 0
	r.Subscribe(func() { calls++ })
	r.Dispose()
	r.Dispose()
	r.SetText("ignored")
	assert.Equal(t, "", r.Text())
	assert.Zero(t, calls)

	unsub := r.Subscribe(func() { calls++ })
	unsub()
	assert.Zero(t, calls)
}

func TestNoopSuppressionMarksReplica(t *testing.T) {
	assert.True(t, SupportsSuppression(newReplica(t, "alice")))
	assert.False(t, SupportsSuppression(&degradedReplica{TextReplica: newReplica(t, "bob")}))
}

// degradedReplica forwards to a TextReplica but cannot suppress tracking.
type degradedReplica struct {
	*TextReplica
	NoopSuppression
}

func (d *degradedReplica) SuppressUndoTracking(on bool) { d.NoopSuppression.SuppressUndoTracking(on) }

func TestDefaultFactory(t *testing.T) {
	r, err := DefaultFactory(context.Background(), Options{AgentID: "alice", UndoEnabled: true})
	require.NoError(t, err)
	defer r.Dispose()
	assert.Equal(t, "alice", r.AgentID())
	assert.False(t, r.Syncing())
}
