// Package undo wires an agent's undo/redo to the room's operation log.
//
// Only user-invoked undo and redo pass through a Coordinator, and every one
// of them is logged, so each undo/redo entry is attributable to the agent
// that asked for it.
// Remote applications reach the document through the bridge with tracking
// suppressed and are never logged here.
package undo

import (
	"time"

	"github.com/daviddao/coedit/pkg/document"
	"github.com/daviddao/coedit/pkg/model"
	"github.com/daviddao/coedit/pkg/oplog"
)

// Coordinator pairs one agent document with the room log.
type Coordinator struct {
	doc *document.Document
	log *oplog.Log
	now func() time.Time
}

// New returns a Coordinator. now defaults to time.Now.
func New(doc *document.Document, log *oplog.Log, now func() time.Time) *Coordinator {
	if now == nil {
		now = time.Now
	}
	return &Coordinator{doc: doc, log: log, now: now}
}

func (c *Coordinator) CanUndo() bool { return c.doc.CanUndo() }
func (c *Coordinator) CanRedo() bool { return c.doc.CanRedo() }

// Undo logs the request and then reverts the agent's most recent change.
// The request is logged even when there is nothing to undo; the document
// call is then inert and Undo reports false.
func (c *Coordinator) Undo() bool {
	ok := c.doc.CanUndo()
	c.record(model.EntryUndo)
	c.doc.Undo()
	return ok
}

// Redo logs the request and then re-applies the agent's most recently
// undone change, reporting false when there was nothing to redo.
func (c *Coordinator) Redo() bool {
	ok := c.doc.CanRedo()
	c.record(model.EntryRedo)
	c.doc.Redo()
	return ok
}

func (c *Coordinator) record(kind model.EntryKind) {
	c.log.Append(model.Entry{
		AgentID:   c.doc.AgentID(),
		Kind:      kind,
		Timestamp: c.now().UnixMilli(),
	})
}
