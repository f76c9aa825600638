package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/foldrank/internal/config"
	"github.com/Aman-CERP/foldrank/internal/logging"
	"github.com/Aman-CERP/foldrank/internal/mcp"
)

// serveFlags override the server section of the configuration.
type serveFlags struct {
	transport   string
	addr        string
	metricsAddr string
	logFile     string
	logLevel    string
	noWatch     bool
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	sf := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server exposing suggest_folders, suggest_tags, rank_candidates
and ranker_status.

With the stdio transport, stdout carries JSON-RPC only and logs go to
~/.foldrank/logs/server.log. Edits to the config files change the live
search weights without a restart.`,
		Example: `  # stdio, for editor plugins and agents
  foldrank serve

  # Streamable HTTP with Prometheus metrics
  foldrank serve --transport http --addr 127.0.0.1:8765 --metrics-addr 127.0.0.1:9090`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			sf.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd, flags, cfg, sf.noWatch)
		},
	}

	cmd.Flags().StringVar(&sf.transport, "transport", "", "Transport: stdio or http (default: server.transport)")
	cmd.Flags().StringVar(&sf.addr, "addr", "", "Listen address for the http transport")
	cmd.Flags().StringVar(&sf.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&sf.logFile, "log-file", "", "Log file path (default: ~/.foldrank/logs/server.log)")
	cmd.Flags().StringVar(&sf.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.Flags().BoolVar(&sf.noWatch, "no-watch", false, "Do not reload configuration on change")

	return cmd
}

// apply copies explicitly set flags over cfg.
func (sf *serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	set := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
		}
	}
	set("transport", &cfg.Server.Transport, sf.transport)
	set("addr", &cfg.Server.Addr, sf.addr)
	set("metrics-addr", &cfg.Server.MetricsAddr, sf.metricsAddr)
	set("log-file", &cfg.Server.LogFile, sf.logFile)
	set("log-level", &cfg.Server.LogLevel, sf.logLevel)
}

func runServe(cmd *cobra.Command, flags *globalFlags, cfg *config.Config, noWatch bool) error {
	ctx := cmd.Context()
	stdio := cfg.Server.Transport == "stdio"

	level := cfg.Server.LogLevel
	if flags.debug {
		level = "debug"
	}
	cleanup, err := logging.SetupServerMode(level, cfg.Server.LogFile, stdio, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("serve_init_failed", slog.String("error", err.Error()))
		return err
	}
	defer a.Close()

	server, err := mcp.NewServer(a.ranker, a.embedder,
		mcp.WithDefaultCounts(cfg.Search.DefaultTopK, cfg.Search.TagTopK),
		mcp.WithToolRecorder(a.metrics),
		mcp.WithHTTPMiddleware(a.metrics.Middleware),
		mcp.WithLogger(slog.Default()))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Server.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.Server.MetricsAddr, a.metrics.Handler())
	}

	if !noWatch {
		watcher, err := config.NewWatcher(flags.dir, config.DefaultReloadDebounce, func(next *config.Config) {
			applyReload(a, next)
		})
		if err != nil {
			slog.Warn("config_watch_disabled", slog.String("error", err.Error()))
		} else {
			defer func() { _ = watcher.Close() }()
			go func() { _ = watcher.Run(ctx) }()
		}
	}

	return server.Serve(ctx, cfg.Server.Transport, cfg.Server.Addr)
}

// applyReload publishes reloaded search settings to the live ranker. Other
// sections need a restart.
func applyReload(a *app, next *config.Config) {
	settings, err := searchSettings(next)
	if err == nil {
		err = a.ranker.SetSettings(settings)
	}
	if err != nil {
		slog.Warn("ranker_settings_rejected", slog.String("error", err.Error()))
		return
	}
	slog.Info("ranker_settings_updated",
		slog.String("fusion", string(settings.Fusion)),
		slog.Float64("keyword_weight", settings.Weights.Keyword),
		slog.Float64("embedding_weight", settings.Weights.Embedding))
}

// serveMetrics exposes /metrics until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics_server_starting", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics_server_failed", slog.String("error", err.Error()))
	}
}
