package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/wedding-invite-backend/internal/config"
	httpapi "github.com/tbourn/wedding-invite-backend/internal/http"
	"github.com/tbourn/wedding-invite-backend/internal/observability"
	"github.com/tbourn/wedding-invite-backend/internal/services"
)

// shutdownGrace bounds in-flight requests on shutdown, and separately the
// final flush.
var shutdownGrace = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background RSVP sync loop",
		Long: `Run the HTTP API and flush queued RSVPs to the remote store every
SYNC_INTERVAL. SIGINT or SIGTERM drains in-flight requests, attempts one
last flush and exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default :$PORT)")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	cfg := opts.cfg
	st, err := openStores(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer st.Close()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, observability.Build{
		Version:      Version,
		LocalBackend: st.backend,
		RemoteDriver: cfg.RemoteDriver,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "setup tracing", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	srv, sc := newServer(cfg, st, opts.Addr)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sc.Run(ctx, cfg.SyncInterval)
	}()

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "listen", err)
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	log.Info().
		Str("addr", ln.Addr().String()).
		Str("version", Version).
		Str("local_backend", st.backend).
		Str("remote_driver", cfg.RemoteDriver).
		Dur("sync_interval", cfg.SyncInterval).
		Msg("server started")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "http server", err)
		}
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	wg.Wait()

	fctx, cancelFlush := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancelFlush()
	res, err := sc.Flush(fctx)
	if err != nil {
		log.Warn().Err(err).Msg("final flush")
	} else if res.Attempted > 0 {
		log.Info().Int("synced", res.Synced).Int("failed", res.Failed).Msg("final flush")
	}
	return nil
}

// newServer builds the HTTP server and the sync coordinator it shares with
// the background loop. Request contexts derive from a base context that is
// cancelled as soon as Shutdown starts, so open event streams end instead of
// holding Shutdown for the whole grace period.
func newServer(cfg config.Config, st *stores, addr string) (*http.Server, *services.SyncCoordinator) {
	gin.SetMode(cfg.GinMode)
	r := gin.New()

	sc := services.NewSyncCoordinator(st.local, st.remote, cfg.RemoteTimeout)
	sc.IdempotencyTTL = cfg.IdempotencyTTL

	httpapi.RegisterRoutes(r, httpapi.Services{
		Invitations: services.NewInvitationService(st.local, st.remote, cfg.RemoteTimeout),
		RSVPs:       sc,
		Admin:       services.NewAdminService(st.local, st.remote),
		Ready:       st.ping,
	}, cfg)

	if addr == "" {
		addr = ":" + cfg.Port
	}
	base, cancelStreams := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancelStreams)
	return srv, sc
}
