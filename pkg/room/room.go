// Package room owns one collaborative editing room: the shared document,
// the operation log, and the sessions of the agents editing it.
//
// Everything a room touches is mutated from turns of a single loop, so the
// synchronization core never needs locks. Public methods are safe for
// concurrent use: each one runs as a turn and waits for it to finish,
// including the deferred guard exits it schedules.
package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/daviddao/coedit/pkg/clock"
	"github.com/daviddao/coedit/pkg/engine"
	"github.com/daviddao/coedit/pkg/loop"
	"github.com/daviddao/coedit/pkg/metrics"
	"github.com/daviddao/coedit/pkg/model"
	"github.com/daviddao/coedit/pkg/oplog"
	"github.com/daviddao/coedit/pkg/relay"
	"github.com/daviddao/coedit/pkg/shared"
	"github.com/daviddao/coedit/pkg/store"
	"go.uber.org/zap"
)

var (
	ErrAgentExists      = errors.New("agent already joined")
	ErrUnknownAgent     = errors.New("unknown agent")
	ErrClosed           = errors.New("room closed")
	ErrRelayUnavailable = errors.New("relay unavailable")
)

// DefaultExample is the text Load writes when given none.
const DefaultExample = `(\x.\y.x + y) 10 5`

// Options configures a Room.
type Options struct {
	ID           string
	RelayURL     string
	ProbeTimeout time.Duration
	// Capacity bounds the operation log.
	Capacity int
	// LogSync adds a sync entry whenever a remote change is applied to an
	// agent's document.
	LogSync bool
	// AllowDegradedUndo admits replicas that cannot suppress undo tracking.
	AllowDegradedUndo bool

	Factory engine.Factory
	// Store archives log entries and sessions when set.
	Store   store.StoreInterface
	Metrics *metrics.Collector
	Logger  *zap.Logger
	Now     func() time.Time
}

// Room is a collaborative editing room.
type Room struct {
	id   string
	opts Options

	loop   *loop.Loop
	cancel context.CancelFunc
	served chan struct{}

	// admin serializes operations that build replicas outside a turn.
	admin sync.Mutex

	// Loop-owned state.
	clock    *clock.Clock
	shared   *shared.Document
	log      *oplog.Log
	archive  *store.RoomArchive
	sessions map[string]*Session
	order    []string
	mode     model.Mode
	status   model.ProbeStatus
	closed   bool

	metrics *metrics.Collector
	logger  *zap.Logger
}

// New starts a room in local mode with an empty shared document.
func New(opts Options) (*Room, error) {
	if opts.ID == "" {
		opts.ID = relay.DefaultRoom
	}
	if opts.RelayURL == "" {
		opts.RelayURL = relay.DefaultURL
	}
	if opts.ProbeTimeout < 0 {
		return nil, fmt.Errorf("room %s: negative probe timeout %v", opts.ID, opts.ProbeTimeout)
	}
	if opts.ProbeTimeout == 0 {
		opts.ProbeTimeout = relay.DefaultProbeTimeout
	}
	if opts.Factory == nil {
		opts.Factory = engine.DefaultFactory
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.With(zap.String("room", opts.ID))

	r := &Room{
		id:       opts.ID,
		opts:     opts,
		clock:    &clock.Clock{},
		shared:   shared.New(""),
		sessions: make(map[string]*Session),
		mode:     model.ModeLocal,
		status:   model.ProbeUnknown,
		served:   make(chan struct{}),
		metrics:  opts.Metrics,
		logger:   logger,
	}
	var archiver oplog.Archiver
	if opts.Store != nil {
		r.archive = store.NewRoomArchive(opts.Store, opts.ID)
		r.clock.Set(r.archive.MaxLamport())
		archiver = r.archive
	}
	r.log = oplog.New(oplog.Options{
		Capacity: opts.Capacity,
		Clock:    r.clock,
		Archiver: archiver,
		Metrics:  opts.Metrics,
		Logger:   logger,
	})

	r.loop = loop.New(loop.Options{Logger: logger})
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go func() {
		defer close(r.served)
		_ = r.loop.Serve(ctx)
	}()
	logger.Info("room started", zap.Int("log_capacity", r.log.Capacity()))
	return r, nil
}

// ID returns the room id.
func (r *Room) ID() string { return r.id }

// run executes fn as a turn and waits for it.
func (r *Room) run(fn func()) error {
	if err := r.loop.Do(context.Background(), fn); err != nil {
		if errors.Is(err, loop.ErrClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// update is run for turns that mutate state; it rejects a closed room.
func (r *Room) update(fn func() error) error {
	var err error
	if runErr := r.run(func() {
		if r.closed {
			err = ErrClosed
			return
		}
		err = fn()
	}); runErr != nil {
		return runErr
	}
	return err
}

// Text returns the room's text: the shared document in local mode, the
// first session's replica in networked mode.
func (r *Room) Text() string {
	var text string
	r.run(func() { text = r.textLocked() })
	return text
}

func (r *Room) textLocked() string {
	if r.mode == model.ModeNetworked {
		if len(r.order) == 0 {
			return ""
		}
		return r.sessions[r.order[0]].doc.Text()
	}
	return r.shared.Text()
}

// Entries returns the operation log, oldest first.
func (r *Room) Entries() []model.Entry {
	var entries []model.Entry
	r.run(func() { entries = r.log.Entries() })
	return entries
}

// Reset clears the text and the operation log in one turn.
func (r *Room) Reset() error {
	return r.update(func() error {
		r.replaceTextLocked("")
		r.log.Reset()
		r.logger.Info("room reset")
		return nil
	})
}

// Load replaces the text with an example and clears the operation log.
// An empty text loads DefaultExample.
func (r *Room) Load(text string) error {
	if text == "" {
		text = DefaultExample
	}
	text = validText(text)
	return r.update(func() error {
		r.replaceTextLocked(text)
		r.log.Reset()
		r.logger.Info("example loaded", zap.Int("len", len(text)))
		return nil
	})
}

// replaceTextLocked writes text on behalf of the room rather than an
// agent. Locally the bridges carry it to every session; in networked mode
// it is applied to each replica directly.
func (r *Room) replaceTextLocked(text string) {
	if r.mode == model.ModeLocal {
		r.shared.Set(text)
		return
	}
	for _, id := range r.order {
		doc := r.sessions[id].doc
		doc.WithoutUndo(func() { doc.SetText(text) })
	}
}

// Mode returns the current synchronization mode.
func (r *Room) Mode() model.Mode {
	var m model.Mode
	r.run(func() { m = r.mode })
	return m
}

// RelayStatus returns the outcome of the last probe.
func (r *Room) RelayStatus() model.ProbeStatus {
	status := model.ProbeUnknown
	r.run(func() { status = r.status })
	return status
}

// ProbeRelay checks whether the relay accepts connections and records the
// result. A disconnected relay disables networked mode.
func (r *Room) ProbeRelay(ctx context.Context) model.ProbeStatus {
	status := relay.Probe(ctx, r.opts.RelayURL, r.opts.ProbeTimeout)
	r.metrics.Probed(string(status))
	r.run(func() { r.status = status })
	r.logger.Info("relay probed", zap.String("url", r.opts.RelayURL), zap.String("status", string(status)))
	return status
}

// SetMode switches between local and networked synchronization. Every
// session is remounted on a fresh replica with an empty history, keeping
// its agent id. Networked mode requires a connected probe result.
func (r *Room) SetMode(ctx context.Context, mode model.Mode) error {
	if mode != model.ModeLocal && mode != model.ModeNetworked {
		return fmt.Errorf("room %s: unknown mode %q", r.id, mode)
	}
	r.admin.Lock()
	defer r.admin.Unlock()

	var (
		ids     []string
		current model.Mode
		status  model.ProbeStatus
	)
	if err := r.update(func() error {
		ids = append(ids, r.order...)
		current, status = r.mode, r.status
		return nil
	}); err != nil {
		return err
	}
	if mode == current {
		return nil
	}
	if mode == model.ModeNetworked && status != model.ProbeConnected {
		return fmt.Errorf("room %s: %w (status %s)", r.id, ErrRelayUnavailable, status)
	}

	replicas := make(map[string]engine.Replica, len(ids))
	for _, id := range ids {
		rep, err := r.newReplica(ctx, id, mode)
		if err != nil {
			for _, built := range replicas {
				built.Dispose()
			}
			return fmt.Errorf("room %s: remount %s: %w", r.id, id, err)
		}
		replicas[id] = rep
	}

	err := r.update(func() error {
		r.mode = mode
		var errs []error
		for _, id := range ids {
			s := r.sessions[id]
			s.unmountLocked()
			if err := s.mountLocked(replicas[id], ""); err != nil {
				errs = append(errs, err)
				r.dropSessionLocked(id)
			}
		}
		r.logger.Info("mode switched", zap.String("mode", string(mode)), zap.Int("sessions", len(ids)))
		return errors.Join(errs...)
	})
	if errors.Is(err, ErrClosed) {
		for _, rep := range replicas {
			rep.Dispose()
		}
	}
	return err
}

// newReplica builds a replica for agentID in mode. It may dial the relay
// and must not run inside a turn.
func (r *Room) newReplica(ctx context.Context, agentID string, mode model.Mode) (engine.Replica, error) {
	opts := engine.Options{
		AgentID:     agentID,
		UndoEnabled: true,
		Logger:      r.logger,
	}
	if mode == model.ModeNetworked {
		opts.Relay = &engine.RelayOptions{URL: r.opts.RelayURL, RoomID: r.id}
		opts.Dispatch = r.loop.PostContext
		opts.Clock = r.clock
	}
	return r.opts.Factory(ctx, opts)
}

// Converged reports whether every session holds the same text as the room
// and no propagation is in flight.
func (r *Room) Converged() bool {
	var ok bool
	r.run(func() { ok = r.convergedLocked() })
	return ok
}

func (r *Room) convergedLocked() bool {
	text := r.textLocked()
	for _, id := range r.order {
		s := r.sessions[id]
		if s.doc.Text() != text {
			return false
		}
		if s.bridge != nil && s.bridge.Guard().IsActive() {
			return false
		}
	}
	return true
}

// Close disposes every session and stops the room's loop. Idempotent.
func (r *Room) Close() error {
	r.admin.Lock()
	defer r.admin.Unlock()

	err := r.run(func() {
		if r.closed {
			return
		}
		for _, id := range append([]string(nil), r.order...) {
			r.dropSessionLocked(id)
		}
		r.closed = true
	})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	r.loop.Close()
	r.cancel()
	<-r.served
	r.logger.Info("room closed")
	return err
}

func (r *Room) appendLocked(agentID string, kind model.EntryKind, content string) {
	r.log.Append(model.Entry{
		AgentID:   agentID,
		Kind:      kind,
		Content:   content,
		Timestamp: r.opts.Now().UnixMilli(),
	})
}

// validText replaces invalid UTF-8 with U+FFFD, as replicas store runes.
// Text entering the room goes through it so the shared document and the
// replicas hold the same bytes.
func validText(s string) string {
	return strings.ToValidUTF8(s, string(utf8.RuneError))
}
