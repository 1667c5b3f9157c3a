package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/daviddao/coedit/pkg/config"
	"github.com/daviddao/coedit/pkg/logging"
	"github.com/daviddao/coedit/pkg/metrics"
	"github.com/daviddao/coedit/pkg/model"
	"github.com/daviddao/coedit/pkg/room"
	"github.com/daviddao/coedit/pkg/store"
	"go.uber.org/zap"
)

// app holds shared state for all CLI subcommands.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *store.Store
	metrics *metrics.Collector
	out     io.Writer
	jsonOut bool
}

// open loads configuration and opens the archive.
func (a *app) open(configPath string, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	s, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("cannot open archive %q: %w", cfg.Store.Path, err)
	}
	a.cfg = cfg
	a.logger = logger
	a.store = s
	a.metrics = metrics.New(true)
	a.out = out
	return nil
}

// Close releases the archive and flushes the logger.
func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// newRoom starts a room configured from a.cfg.
func (a *app) newRoom() (*room.Room, error) {
	return room.New(room.Options{
		ID:                a.cfg.Room.ID,
		RelayURL:          a.cfg.Relay.URL,
		ProbeTimeout:      a.cfg.Relay.ProbeTimeout,
		Capacity:          a.cfg.Room.LogCapacity,
		LogSync:           a.cfg.Room.LogSync,
		AllowDegradedUndo: a.cfg.Room.AllowDegradedUndo,
		Store:             a.store,
		Metrics:           a.metrics,
		Logger:            a.logger,
	})
}

// serveMetrics exposes /metrics on metrics.listen until ctx is done. It is
// a no-op when no address is configured.
func (a *app) serveMetrics(ctx context.Context) {
	addr := a.cfg.Metrics.Listen
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics server", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	a.logger.Info("serving metrics", zap.String("addr", addr))
}

// printJSON writes v to w as indented JSON.
func printJSON(w io.Writer, v interface{}) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// printEntries prints log entries one per line.
func printEntries(w io.Writer, entries []model.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no entries")
		return
	}
	for _, e := range entries {
		if e.Content != "" {
			fmt.Fprintf(w, "[ts=%d] %s %s %q\n", e.LamportTS, e.AgentID, e.Kind, e.Content)
		} else {
			fmt.Fprintf(w, "[ts=%d] %s %s\n", e.LamportTS, e.AgentID, e.Kind)
		}
	}
}

// printSnapshot prints a room snapshot.
func printSnapshot(w io.Writer, snap room.Snapshot) {
	fmt.Fprintf(w, "room %s (%s, relay %s)\n", snap.Room, snap.Mode, snap.RelayStatus)
	fmt.Fprintf(w, "  text: %q\n", snap.Text)
	for _, s := range snap.Sessions {
		flags := ""
		if s.CanUndo {
			flags += " undo"
		}
		if s.CanRedo {
			flags += " redo"
		}
		if s.Syncing {
			flags += " syncing"
		}
		fmt.Fprintf(w, "  %-8s cursor=%d %q%s\n", s.AgentID, s.Cursor, s.Text, flags)
	}
	if !snap.Converged {
		fmt.Fprintln(w, "  (not converged)")
	}
	fmt.Fprintf(w, "  log (%d):\n", len(snap.Entries))
	for _, e := range snap.Entries {
		if e.Content != "" {
			fmt.Fprintf(w, "    [ts=%d] %s %s %q\n", e.LamportTS, e.AgentID, e.Kind, e.Content)
		} else {
			fmt.Fprintf(w, "    [ts=%d] %s %s\n", e.LamportTS, e.AgentID, e.Kind)
		}
	}
}
