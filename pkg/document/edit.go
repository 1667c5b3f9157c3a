package document

import (
	"fmt"
	"unicode/utf8"

	"github.com/daviddao/coedit/pkg/engine"
	"github.com/daviddao/coedit/pkg/model"
)

// maxInlineContent is the longest insert quoted verbatim in an edit summary.
const maxInlineContent = 5

// Edit summarizes a user edit for the operation log.
type Edit struct {
	Kind    model.EntryKind
	Content string
}

// Classify compares old and new text by length: growth is an insert,
// shrinkage a delete. An equal-length replacement is classified as tie.
// ok is false when the texts are identical.
//
// Insert content is the inserted text when it is at most five runes long,
// otherwise "+N chars"; delete content is "N chars".
func Classify(old, new string, tie model.EntryKind) (e Edit, ok bool) {
	if old == new {
		return Edit{}, false
	}
	oldLen, newLen := utf8.RuneCountInString(old), utf8.RuneCountInString(new)
	kind := tie
	switch {
	case newLen > oldLen:
		kind = model.EntryInsert
	case newLen < oldLen:
		kind = model.EntryDelete
	}
	sum := engine.Summarize(engine.Diff(old, new))

	switch kind {
	case model.EntryDelete:
		n := oldLen - newLen
		if n <= 0 {
			n = sum.DeletedRunes
		}
		return Edit{Kind: kind, Content: fmt.Sprintf("%d chars", n)}, true
	default:
		n := newLen - oldLen
		if n <= 0 {
			n = sum.InsertedRunes
		}
		if sum.InsertedRunes <= maxInlineContent && sum.InsertedRunes == n {
			return Edit{Kind: kind, Content: sum.Inserted}, true
		}
		return Edit{Kind: kind, Content: fmt.Sprintf("+%d chars", n)}, true
	}
}
