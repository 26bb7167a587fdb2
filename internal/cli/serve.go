package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/ephemeral/relay"
	"github.com/ephemeral/relay/api"
	"github.com/ephemeral/relay/internal/config"
	"github.com/ephemeral/relay/observability"
	"github.com/ephemeral/relay/store/memory"
	"github.com/ephemeral/relay/transport/ws"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay",
		Long: `Run the relay on HOST:PORT.

Settings come from flags, then environment variables, then a .env file
(override its path with ENV_FILE).

Example:
  relay serve --port 7447 --purge-interval 30m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return Serve(cmd.Context(), cfg, cfg.NewLogger(os.Stderr))
		},
	}

	cmd.Flags().Int("port", 8080, "listen port")
	cmd.Flags().Duration("purge-interval", time.Hour, "how often stored events are discarded (0 disables)")
	cmd.Flags().String("log-level", "info", "log level (debug|info|warn|error)")
	_ = v.BindPFlag("PORT", cmd.Flags().Lookup("port"))
	_ = v.BindPFlag("PURGE_INTERVAL", cmd.Flags().Lookup("purge-interval"))
	_ = v.BindPFlag("LOG_LEVEL", cmd.Flags().Lookup("log-level"))

	return cmd
}

// Serve runs the relay until ctx is canceled or the listener fails.
func Serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var (
		metrics *observability.Metrics
		reg     *prometheus.Registry
	)
	if cfg.MetricsEnabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = observability.NewMetrics(reg)
	}

	st := memory.New(memory.WithMaxLimit(cfg.MaxLimit))
	defer st.Close()

	r, err := relay.New(
		relay.WithStore(st),
		relay.WithLogger(logger),
		relay.WithPurgeInterval(cfg.PurgeInterval),
		relay.WithVerifyIDs(cfg.VerifyEventID),
		relay.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("create relay: %w", err)
	}

	apiOpts := []api.Option{api.WithLogger(logger)}
	if reg != nil {
		apiOpts = append(apiOpts, api.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}
	info := api.Info{
		Name:        cfg.RelayName,
		Description: cfg.RelayDescription,
		PubKey:      cfg.RelayPubKey,
		Contact:     cfg.RelayContact,
		Version:     Version,
	}

	wsServer := ws.NewServer(r,
		ws.WithConfig(ws.Config{
			SendBuffer:     cfg.SendBuffer,
			MaxMessageSize: cfg.MaxMessageSize,
		}),
		ws.WithFallback(api.NewHandler(r, info, apiOpts...)),
		ws.WithLogger(logger),
		ws.WithMetrics(metrics),
	)
	httpServer := &http.Server{
		Handler:           wsServer,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr(), err)
	}
	logger.InfoContext(ctx, "running on port",
		"addr", ln.Addr().String(), "pid", r.InstanceID(), "purge_interval", cfg.PurgeInterval)

	g, gctx := errgroup.WithContext(ctx)
	r.Start(gctx)

	g.Go(func() error {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		logger.InfoContext(shutdownCtx, "shutting down")
		err := httpServer.Shutdown(shutdownCtx)
		if wsErr := wsServer.Shutdown(shutdownCtx); wsErr != nil && !errors.Is(wsErr, ws.ErrServerClosed) {
			err = errors.Join(err, wsErr)
		}
		r.Stop(shutdownCtx)
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
