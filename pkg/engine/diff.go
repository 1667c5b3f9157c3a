package engine

import (
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// OpKind classifies a run in a text diff.
type OpKind int

const (
	OpEqual OpKind = iota
	OpInsert
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpDelete:
		return "delete"
	default:
		return "equal"
	}
}

// Op is one run of a diff between two texts.
type Op struct {
	Kind OpKind
	Text string
}

// Runes returns the length of the run in runes.
func (o Op) Runes() int { return utf8.RuneCountInString(o.Text) }

// Diff returns the runs that turn old into new. Applying the equal and
// delete runs in order consumes old exactly; equal and insert runs
// produce new.
func Diff(old, new string) []Op {
	if old == new {
		if old == "" {
			return nil
		}
		return []Op{{Kind: OpEqual, Text: old}}
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(old, new, false)
	ops := make([]Op, 0, len(diffs))
	for _, d := range diffs {
		if d.Text == "" {
			continue
		}
		var kind OpKind
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			kind = OpInsert
		case diffmatchpatch.DiffDelete:
			kind = OpDelete
		default:
			kind = OpEqual
		}
		ops = append(ops, Op{Kind: kind, Text: d.Text})
	}
	return ops
}

// Summary totals the inserted and deleted runs of a diff.
type Summary struct {
	Inserted      string // concatenated inserted text
	InsertedRunes int
	DeletedRunes  int
}

// Summarize totals ops.
func Summarize(ops []Op) Summary {
	var s Summary
	for _, op := range ops {
		switch op.Kind {
		case OpInsert:
			s.Inserted += op.Text
			s.InsertedRunes += op.Runes()
		case OpDelete:
			s.DeletedRunes += op.Runes()
		}
	}
	return s
}
