package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/cmdgate/internal/approval"
	"github.com/opencode-ai/cmdgate/internal/audit"
	"github.com/opencode-ai/cmdgate/internal/config"
	"github.com/opencode-ai/cmdgate/internal/gate"
	"github.com/opencode-ai/cmdgate/internal/logging"
	"github.com/opencode-ai/cmdgate/internal/notify"
	"github.com/opencode-ai/cmdgate/internal/server"
	"github.com/opencode-ai/cmdgate/internal/settings"
	"github.com/opencode-ai/cmdgate/internal/storage"
)

var (
	servePort     int
	serveHostname string
	serveDir      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the cmdgate daemon",
	Long: `Start cmdgate as a daemon that exposes an HTTP API.

Agent runtimes POST commands to /evaluate; operator UIs list and
resolve approvals, stream events over SSE, and manage per-project
settings.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "", "Hostname to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	if err := config.GetPaths().EnsurePaths(); err != nil {
		return err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if serveHostname != "" {
		cfg.Hostname = serveHostname
	}

	logging.Info().
		Str("version", Version).
		Str("dataDir", cfg.DataDir).
		Msg("starting cmdgate")

	store := storage.New(cfg.DataDir)
	settingsStore := settings.NewStore(store)
	auditLog := audit.NewLogger(store)

	// Invalidate cached settings when another process edits them on disk.
	watcher, err := settings.NewWatcher(settingsStore)
	if err != nil {
		logging.Warn().Err(err).Msg("settings watcher unavailable; external edits need a restart")
	} else {
		watcher.Start()
		defer watcher.Stop()
	}

	var coordinatorOpts []approval.CoordinatorOption
	if cfg.ApprovalTimeoutSeconds > 0 {
		coordinatorOpts = append(coordinatorOpts,
			approval.WithTimeout(time.Duration(cfg.ApprovalTimeoutSeconds)*time.Second))
	}
	coordinator := approval.NewCoordinator(coordinatorOpts...)

	gateSvc := gate.NewService(settingsStore, coordinator, auditLog)

	if cfg.WebhookURL != "" {
		webhook := notify.NewWebhook(cfg.WebhookURL)
		webhook.Start()
		defer webhook.Stop()
	}

	serverConfig := server.DefaultConfig()
	serverConfig.Port = cfg.Port
	serverConfig.Hostname = cfg.Hostname

	srv := server.New(serverConfig, gateSvc, settingsStore, auditLog)

	errCh := make(chan error, 1)
	go func() {
		logging.Info().
			Str("hostname", cfg.Hostname).
			Int("port", cfg.Port).
			Msg("server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logging.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	// Pending approvals resolve to cancel when their callers' HTTP
	// requests are torn down.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}

	logging.Info().Msg("server stopped")
	return nil
}
