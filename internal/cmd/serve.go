package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Iron-Ham/collabd/internal/config"
	"github.com/Iron-Ham/collabd/internal/coordination"
	"github.com/Iron-Ham/collabd/internal/event"
	"github.com/Iron-Ham/collabd/internal/gateway"
	"github.com/Iron-Ham/collabd/internal/logging"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the collaboration server",
	Long: `Run the websocket gateway and admin API.

Clients connect to /ws behind an authenticating proxy that injects the
identity headers. The config file is watched while the server runs:
changes to logging.level and lock.duration_minutes apply immediately,
everything else needs a restart.`,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

// app is one fully wired server.
type app struct {
	mu  sync.Mutex
	cfg *config.Config

	logger *logging.Logger
	bus    *event.Bus
	hub    *coordination.Hub
	server *gateway.Server
}

// newApp builds the hub and gateway described by cfg.
func newApp(cfg *config.Config, logger *logging.Logger) (*app, error) {
	bus := event.NewBus(event.WithLogger(logger.With("component", "bus")))

	hub, err := coordination.NewHub(
		coordination.Config{Bus: bus, Logger: logger.With("component", "hub")},
		coordination.WithLockDuration(cfg.Lock.Duration()),
		coordination.WithIdleTimeout(cfg.Session.IdleTimeout()),
		coordination.WithSweepInterval(cfg.Session.SweepInterval()),
		coordination.WithHistoryLimit(cfg.Session.HistoryLimit),
		coordination.WithLockEnforcement(cfg.Lock.Enforce),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create hub: %w", err)
	}

	server, err := gateway.NewServer(hub,
		gateway.WithLogger(logger.With("component", "gateway")),
		gateway.WithAllowedOrigins(cfg.Gateway.AllowedOrigins...),
		gateway.WithSendBuffer(cfg.Gateway.SendBuffer),
		gateway.WithIdentityHeaders(gateway.IdentityHeaders{
			UserID:   cfg.Gateway.Identity.UserIDHeader,
			UserName: cfg.Gateway.Identity.UserNameHeader,
			Email:    cfg.Gateway.Identity.EmailHeader,
			Avatar:   cfg.Gateway.Identity.AvatarHeader,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	return &app{cfg: cfg, logger: logger, bus: bus, hub: hub, server: server}, nil
}

// reload applies the settings that can change without a restart. Invalid
// configurations are logged and ignored.
func (a *app) reload(next *config.Config, err error) {
	if err != nil {
		a.logger.Warn("ignoring invalid config change", "error", err.Error())
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if next.Logging.Level != a.cfg.Logging.Level {
		a.logger.SetLevel(next.Logging.Level)
		a.logger.Info("log level changed", "level", next.Logging.Level)
	}
	if next.Lock.DurationMinutes != a.cfg.Lock.DurationMinutes {
		a.hub.SetLockDuration(next.Lock.Duration())
		a.logger.Info("lock duration changed", "duration", next.Lock.Duration().String())
	}
	a.cfg = next
}

// run serves on ln until ctx is cancelled, then shuts down gracefully.
func (a *app) run(ctx context.Context, ln net.Listener) error {
	if err := a.hub.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = a.hub.Stop() }()

	srv := &http.Server{
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		a.server.Close()
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	a.mu.Lock()
	timeout := a.cfg.Server.ShutdownTimeout()
	a.mu.Unlock()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	a.server.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	if viper.ConfigFileUsed() != "" {
		viper.OnConfigChange(func(e fsnotify.Event) {
			logger.Debug("config file changed", "file", e.Name, "op", e.Op.String())
			a.reload(config.Load())
		})
		viper.WatchConfig()
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Addr, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "collabd listening on %s\n", ln.Addr())
	return a.run(ctx, ln)
}
