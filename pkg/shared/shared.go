// Package shared holds the room's single authoritative text.
//
// Every bridge in a room reads and writes the same Document; a write
// notifies every subscriber synchronously, in subscription order.
package shared

import "slices"

// Observer is called with the new text after every effective write.
type Observer func(text string)

type subscription struct {
	id uint64
	fn Observer
}

// Document is the shared text. Not goroutine-safe: used from inside the
// owning room's loop turns.
type Document struct {
	text   string
	subs   []subscription
	nextID uint64
	writes int
}

// New returns a shared document holding text.
func New(text string) *Document {
	return &Document{text: text}
}

// Text returns the current text.
func (d *Document) Text() string { return d.text }

// Set replaces the text and notifies subscribers. Writing the current text
// again is a no-op and reports false.
func (d *Document) Set(text string) bool {
	if text == d.text {
		return false
	}
	d.text = text
	d.writes++
	// Observers may subscribe or unsubscribe while being notified.
	for _, s := range slices.Clone(d.subs) {
		if d.subscribed(s.id) {
			s.fn(text)
		}
	}
	return true
}

// Writes returns the number of effective writes since creation.
func (d *Document) Writes() int { return d.writes }

// Subscribe registers fn. The returned func removes it; calling it more
// than once is safe.
func (d *Document) Subscribe(fn Observer) (unsubscribe func()) {
	d.nextID++
	id := d.nextID
	d.subs = append(d.subs, subscription{id: id, fn: fn})
	return func() {
		d.subs = slices.DeleteFunc(d.subs, func(s subscription) bool { return s.id == id })
	}
}

// Subscribers returns the number of registered observers.
func (d *Document) Subscribers() int { return len(d.subs) }

func (d *Document) subscribed(id uint64) bool {
	return slices.ContainsFunc(d.subs, func(s subscription) bool { return s.id == id })
}
