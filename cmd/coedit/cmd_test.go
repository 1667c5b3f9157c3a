package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/daviddao/coedit/pkg/model"
	"github.com/daviddao/coedit/pkg/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- parseScript tests ---

func TestParseScript(t *testing.T) {
	src := `
# comment
alice join
bob join (\x.x) 1
alice type Hello
bob type  World
bob backspace
bob backspace 3
bob cursor end
alice cursor 2
alice undo
reset
load
load abc def
mode networked
expect Hell World
show
`
	steps, err := parseScript(strings.NewReader(src))
	require.NoError(t, err)

	got := make([]step, len(steps))
	for i, st := range steps {
		st.Line = 0
		got[i] = st
	}
	want := []step{
		{Agent: "alice", Verb: "join"},
		{Agent: "bob", Verb: "join", Arg: `(\x.x) 1`},
		{Agent: "alice", Verb: "type", Arg: "Hello"},
		{Agent: "bob", Verb: "type", Arg: " World"},
		{Agent: "bob", Verb: "backspace"},
		{Agent: "bob", Verb: "backspace", Arg: "3"},
		{Agent: "bob", Verb: "cursor", Arg: "end"},
		{Agent: "alice", Verb: "cursor", Arg: "2"},
		{Agent: "alice", Verb: "undo"},
		{Verb: "reset"},
		{Verb: "load"},
		{Verb: "load", Arg: "abc def"},
		{Verb: "mode", Arg: "networked"},
		{Verb: "expect", Arg: "Hell World"},
		{Verb: "show"},
	}
	assert.Equal(t, want, got)
	assert.Equal(t, 3, steps[0].Line)
}

func TestParseScriptErrors(t *testing.T) {
	for _, src := range []string{
		"alice",
		"alice dance",
		"alice type",
		"alice backspace lots",
		"alice backspace -1",
		"alice cursor middle",
		"mode",
	} {
		t.Run(src, func(t *testing.T) {
			_, err := parseScript(strings.NewReader(src))
			assert.ErrorContains(t, err, "line 1")
		})
	}
}

// --- runner tests ---

func runScript(t *testing.T, src string) (string, error) {
	t.Helper()
	r, err := room.New(room.Options{ID: "test"})
	require.NoError(t, err)
	defer r.Close()

	steps, err := parseScript(strings.NewReader(src))
	require.NoError(t, err)
	var out bytes.Buffer
	err = (&runner{room: r, out: &out}).run(context.Background(), steps)
	return out.String(), err
}

func TestRunnerScenario(t *testing.T) {
	out, err := runScript(t, demoScript)
	require.NoError(t, err)
	assert.Contains(t, out, `text: "Hell World"`)
	assert.Contains(t, out, `text: "Hello World"`)
}

func TestRunnerExpectFails(t *testing.T) {
	_, err := runScript(t, "alice join\nalice type abc\nexpect abd\n")
	assert.ErrorContains(t, err, "line 3")
	assert.ErrorContains(t, err, `"abd"`)
}

func TestRunnerUnknownAgent(t *testing.T) {
	_, err := runScript(t, "ghost type x\n")
	assert.ErrorIs(t, err, room.ErrUnknownAgent)
}

func TestRunnerNothingToUndo(t *testing.T) {
	out, err := runScript(t, "alice join\nalice undo\nalice redo\nshow\n")
	require.NoError(t, err)
	assert.Contains(t, out, "alice: nothing to undo")
	assert.Contains(t, out, "alice: nothing to redo")
	assert.Contains(t, out, "log (2):")
	assert.Contains(t, out, "[ts=1] alice undo\n")
	assert.Contains(t, out, "[ts=2] alice redo\n")
}

func TestRunnerResetAndLoad(t *testing.T) {
	_, err := runScript(t, `
a join
a type xyz
reset
expect 
load
expect (\x.\y.x + y) 10 5
a leave
`)
	require.NoError(t, err)
}

// --- command tests ---

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDemoCommand(t *testing.T) {
	t.Setenv("COEDIT_LOG_LEVEL", "error")
	out, err := execute(t, "demo")
	require.NoError(t, err)
	assert.Contains(t, out, `text: "Hell World"`)
}

func TestRunThenLog(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("COEDIT_STORE_PATH", filepath.Join(dir, "archive.db"))
	t.Setenv("COEDIT_ROOM_ID", "logged")
	t.Setenv("COEDIT_LOG_LEVEL", "error")

	script := filepath.Join(dir, "edit.txt")
	require.NoError(t, os.WriteFile(script, []byte("alice join\nalice type hi\nalice undo\n"), 0o644))
	_, err := execute(t, "run", script)
	require.NoError(t, err)

	out, err := execute(t, "log")
	require.NoError(t, err)
	assert.Contains(t, out, `alice insert "h"`)
	assert.Contains(t, out, "alice undo")

	out, err = execute(t, "log", "--kind", "undo")
	require.NoError(t, err)
	assert.NotContains(t, out, "insert")

	out, err = execute(t, "log", "--sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "alice joined")
}

func TestProbeAgainstRelay(t *testing.T) {
	t.Setenv("COEDIT_LOG_LEVEL", "error")
	a := &app{}
	require.NoError(t, a.open("", &bytes.Buffer{}))
	defer a.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveRelay(ctx, a, ln) }()

	url := "ws://" + ln.Addr().String()
	out, err := execute(t, "probe", "--url", url)
	require.NoError(t, err)
	assert.Contains(t, out, string(model.ProbeConnected))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop")
	}

	_, err = execute(t, "probe", "--url", url)
	assert.ErrorContains(t, err, string(model.ProbeDisconnected))
}
