package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/daviddao/coedit/pkg/model"
	"github.com/daviddao/coedit/pkg/room"
)

// step is one line of an edit script.
//
// Room-level lines:
//
//	reset | load [text] | show | probe | mode local|networked | expect <text>
//
// Agent lines, "<agent> <verb> [arg]":
//
//	join [text] | type <text> | backspace [n] | cursor <n|end> | undo | redo | leave
//
// The argument is everything after the verb and one space, so
// "bob type  World" types " World". Trailing whitespace is dropped. Blank
// lines and lines starting with '#' are skipped.
type step struct {
	Line  int
	Agent string
	Verb  string
	Arg   string
}

var roomVerbs = map[string]bool{
	"reset": true, "load": true, "show": true, "probe": true, "mode": true, "expect": true,
}

var agentVerbs = map[string]bool{
	"join": true, "type": true, "backspace": true, "cursor": true,
	"undo": true, "redo": true, "leave": true,
}

// parseScript reads an edit script.
func parseScript(r io.Reader) ([]step, error) {
	var steps []step
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimRight(sc.Text(), " \t\r")
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		st, err := parseLine(trimmed)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		st.Line = n
		steps = append(steps, st)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return steps, nil
}

func parseLine(line string) (step, error) {
	head, rest := cut(line)
	if roomVerbs[head] {
		if head == "mode" && rest == "" {
			return step{}, fmt.Errorf("mode needs local or networked")
		}
		return step{Verb: head, Arg: rest}, nil
	}
	verb, arg := cut(rest)
	if verb == "" {
		return step{}, fmt.Errorf("%q: missing verb", line)
	}
	if !agentVerbs[verb] {
		return step{}, fmt.Errorf("%q: unknown verb %q", line, verb)
	}
	switch verb {
	case "type":
		if arg == "" {
			return step{}, fmt.Errorf("%q: type needs text", line)
		}
	case "backspace":
		if arg != "" {
			if n, err := strconv.Atoi(arg); err != nil || n < 0 {
				return step{}, fmt.Errorf("%q: bad count %q", line, arg)
			}
		}
	case "cursor":
		if arg != "end" {
			if _, err := strconv.Atoi(arg); err != nil {
				return step{}, fmt.Errorf("%q: bad position %q", line, arg)
			}
		}
	}
	return step{Agent: head, Verb: verb, Arg: arg}, nil
}

// cut splits s at its first space. The remainder keeps any further
// leading spaces.
func cut(s string) (head, rest string) {
	head, rest, _ = strings.Cut(s, " ")
	return head, rest
}

// runner executes steps against a room.
type runner struct {
	room    *room.Room
	out     io.Writer
	jsonOut bool
}

func (r *runner) run(ctx context.Context, steps []step) error {
	for _, st := range steps {
		if err := r.exec(ctx, st); err != nil {
			return fmt.Errorf("line %d: %w", st.Line, err)
		}
	}
	return nil
}

func (r *runner) exec(ctx context.Context, st step) error {
	if st.Agent == "" {
		return r.execRoom(ctx, st)
	}
	if st.Verb == "join" {
		_, err := r.room.Join(ctx, st.Agent, st.Arg)
		return err
	}
	s, err := r.room.Session(st.Agent)
	if err != nil {
		return err
	}
	switch st.Verb {
	case "type":
		return s.Type(st.Arg)
	case "backspace":
		n := 1
		if st.Arg != "" {
			n, _ = strconv.Atoi(st.Arg)
		}
		return s.Backspace(n)
	case "cursor":
		if st.Arg == "end" {
			return s.Select(-1)
		}
		pos, _ := strconv.Atoi(st.Arg)
		return s.Select(pos)
	case "undo":
		done, err := s.Undo()
		if err == nil && !done {
			fmt.Fprintf(r.out, "%s: nothing to undo\n", st.Agent)
		}
		return err
	case "redo":
		done, err := s.Redo()
		if err == nil && !done {
			fmt.Fprintf(r.out, "%s: nothing to redo\n", st.Agent)
		}
		return err
	case "leave":
		return s.Close()
	}
	return fmt.Errorf("unknown verb %q", st.Verb)
}

func (r *runner) execRoom(ctx context.Context, st step) error {
	switch st.Verb {
	case "reset":
		return r.room.Reset()
	case "load":
		return r.room.Load(st.Arg)
	case "show":
		snap := r.room.Snapshot()
		if r.jsonOut {
			printJSON(r.out, snap)
		} else {
			printSnapshot(r.out, snap)
		}
		return nil
	case "probe":
		status := r.room.ProbeRelay(ctx)
		fmt.Fprintf(r.out, "relay %s\n", status)
		return nil
	case "mode":
		return r.room.SetMode(ctx, model.Mode(st.Arg))
	case "expect":
		if got := r.room.Text(); got != st.Arg {
			return fmt.Errorf("expected text %q, got %q", st.Arg, got)
		}
		return nil
	}
	return fmt.Errorf("unknown command %q", st.Verb)
}
