package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/daviddao/coedit/pkg/relay"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRelayCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Serve the websocket relay for networked rooms",
		Long: `Serves the relay hub. Peers connect to /?room=<id>&agent=<id>; each
update frame is forwarded to the other peers in the room and the newest one
is replayed to late joiners. Prometheus metrics are served on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen == "" {
				listen = a.cfg.Relay.Listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return err
			}
			return serveRelay(ctx, a, ln)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from relay.listen)")
	return cmd
}

// serveRelay runs the hub on ln until ctx is done.
func serveRelay(ctx context.Context, a *app, ln net.Listener) error {
	hub := relay.NewHub(relay.HubOptions{Metrics: a.metrics, Logger: a.logger})
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	mux.Handle("/", hub)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	a.logger.Info("relay listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		hub.Close()
		return err
	case <-ctx.Done():
	}
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if serveErr := <-errc; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	a.logger.Info("relay stopped")
	return err
}
