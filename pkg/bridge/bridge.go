// Package bridge keeps one agent document and the room's shared document
// convergent.
//
// Local changes are published to the shared document; shared changes made
// by other agents are applied to the local document with undo tracking
// suppressed, so they never become part of this agent's history. A Guard
// and the last value the bridge itself propagated stop the two directions
// from feeding each other.
package bridge

import (
	"unicode/utf8"

	"github.com/daviddao/coedit/pkg/document"
	"github.com/daviddao/coedit/pkg/metrics"
	"github.com/daviddao/coedit/pkg/shared"
	"go.uber.org/zap"
)

// Options configures a Bridge.
type Options struct {
	// Scheduler runs the guard's deferred exits. Required.
	Scheduler Scheduler
	// OnRemoteApplied runs after a genuine remote change has been written
	// to the local document.
	OnRemoteApplied func(agentID string, runes int)
	Metrics         *metrics.Collector
	Logger          *zap.Logger
}

// Bridge links one Document to the shared document. Not goroutine-safe.
type Bridge struct {
	doc    *document.Document
	shared *shared.Document
	guard  *Guard

	lastSynced string
	unsubs     []func()
	attached   bool

	onRemote func(agentID string, runes int)
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// New creates a detached bridge.
func New(doc *document.Document, sh *shared.Document, opts Options) *Bridge {
	if opts.Scheduler == nil {
		panic("bridge: nil scheduler")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		doc:      doc,
		shared:   sh,
		guard:    NewGuard(opts.Scheduler),
		onRemote: opts.OnRemoteApplied,
		metrics:  opts.Metrics,
		logger:   logger.With(zap.String("agent", doc.AgentID())),
	}
}

// Attach subscribes to both documents and reconciles them once. A seeded
// local text is published when the shared document is still empty;
// otherwise the shared text wins.
func (b *Bridge) Attach() {
	if b.attached {
		return
	}
	b.attached = true
	b.unsubs = append(b.unsubs,
		b.shared.Subscribe(b.onShared),
		b.doc.Subscribe(b.onLocal),
	)
	if b.shared.Text() == "" && b.doc.Text() != "" {
		b.onLocal()
		return
	}
	b.onShared(b.shared.Text())
}

// Detach removes both subscriptions. Idempotent. Must be called before the
// document is disposed.
func (b *Bridge) Detach() {
	for _, unsub := range b.unsubs {
		unsub()
	}
	b.unsubs = nil
	b.attached = false
}

// Attached reports whether the bridge is subscribed.
func (b *Bridge) Attached() bool { return b.attached }

// Guard exposes the bridge's guard.
func (b *Bridge) Guard() *Guard { return b.guard }

// LastSynced returns the last text this bridge propagated in either
// direction.
func (b *Bridge) LastSynced() string { return b.lastSynced }

func (b *Bridge) onShared(text string) {
	if b.guard.IsActive() {
		b.skip(metrics.SharedToLocal, metrics.SkipGuard)
		return
	}
	if text == b.doc.Text() {
		b.skip(metrics.SharedToLocal, metrics.SkipUnchanged)
		return
	}
	if text == b.lastSynced {
		b.skip(metrics.SharedToLocal, metrics.SkipEcho)
		return
	}

	b.guard.Enter()
	b.doc.WithoutUndo(func() { b.doc.SetText(text) })
	b.lastSynced = text
	b.guard.ExitAsync()

	b.metrics.Propagated(metrics.SharedToLocal)
	b.logger.Debug("applied remote text", zap.Int("len", utf8.RuneCountInString(text)))
	if b.onRemote != nil {
		b.onRemote(b.doc.AgentID(), utf8.RuneCountInString(text))
	}
}

func (b *Bridge) onLocal() {
	if b.guard.IsActive() {
		b.skip(metrics.LocalToShared, metrics.SkipGuard)
		return
	}
	text := b.doc.Text()
	if text == b.shared.Text() {
		b.skip(metrics.LocalToShared, metrics.SkipUnchanged)
		return
	}
	b.lastSynced = text
	b.metrics.Propagated(metrics.LocalToShared)
	b.logger.Debug("published local text", zap.Int("len", utf8.RuneCountInString(text)))
	b.shared.Set(text)
}

func (b *Bridge) skip(direction, reason string) {
	b.metrics.Skip(direction, reason)
}
