// Package oplog implements the room's bounded operation log.
//
// The log keeps the most recent entries in append order and evicts the
// oldest once the capacity is exceeded. Each appended entry is stamped with
// the room's Lamport clock and, when an Archiver is configured, written
// through to durable storage.
package oplog

import (
	"github.com/daviddao/coedit/pkg/clock"
	"github.com/daviddao/coedit/pkg/metrics"
	"github.com/daviddao/coedit/pkg/model"
	"go.uber.org/zap"
)

// DefaultCapacity is the number of entries a log retains.
const DefaultCapacity = 15

// Archiver receives every appended entry.
type Archiver interface {
	ArchiveEntry(e model.Entry) error
}

// Options configures a Log.
type Options struct {
	Capacity int
	// Clock stamps entries. A private clock is used when nil.
	Clock    *clock.Clock
	Archiver Archiver
	Metrics  *metrics.Collector
	Logger   *zap.Logger
}

// Log is a FIFO-bounded list of entries. Not goroutine-safe: the room only
// touches it from inside loop turns.
type Log struct {
	entries  []model.Entry
	capacity int
	clock    *clock.Clock
	archiver Archiver
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// New creates an empty log.
func New(opts Options) *Log {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Clock == nil {
		opts.Clock = &clock.Clock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Log{
		entries:  make([]model.Entry, 0, opts.Capacity+1),
		capacity: opts.Capacity,
		clock:    opts.Clock,
		archiver: opts.Archiver,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
}

// Append stamps e with the next Lamport timestamp, adds it to the end and
// evicts from the front while the log is over capacity. Archive failures
// are logged, never returned. Returns the stamped entry.
func (l *Log) Append(e model.Entry) model.Entry {
	e.LamportTS = l.clock.Tick()
	l.entries = append(l.entries, e)
	for len(l.entries) > l.capacity {
		l.entries[0] = model.Entry{}
		l.entries = l.entries[1:]
		l.metrics.EntryEvicted()
	}
	l.metrics.EntryAppended(string(e.Kind))

	if l.archiver != nil {
		if err := l.archiver.ArchiveEntry(e); err != nil {
			l.metrics.ArchiveFailed()
			l.logger.Warn("archive entry failed",
				zap.String("agent", e.AgentID),
				zap.String("kind", string(e.Kind)),
				zap.Int64("lamport_ts", e.LamportTS),
				zap.Error(err))
		}
	}
	return e
}

// Reset removes every entry. The clock keeps counting.
func (l *Log) Reset() {
	clear(l.entries)
	l.entries = l.entries[:0]
}

// Entries returns a copy of the entries, oldest first.
func (l *Log) Entries() []model.Entry {
	out := make([]model.Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Tail returns a copy of the last n entries, oldest first.
func (l *Log) Tail(n int) []model.Entry {
	if n <= 0 {
		return nil
	}
	if n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]model.Entry, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

// Len returns the number of entries held.
func (l *Log) Len() int { return len(l.entries) }

// Capacity returns the maximum number of entries held.
func (l *Log) Capacity() int { return l.capacity }
