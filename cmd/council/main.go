// Package main provides the council binary entry point. It serves the
// three-stage LLM council over HTTP, backed by OpenRouter.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/llmcouncil/council/config"
	"github.com/llmcouncil/council/council"
	"github.com/llmcouncil/council/gateway"
	"github.com/llmcouncil/council/service"
	"github.com/llmcouncil/council/storage"
	"github.com/llmcouncil/council/vision"
)

const (
	Version = "0.1.0"
	appName = "council"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "LLM council orchestration service",
		Long: `Council fans a prompt out to several language models, has them
anonymously rank each other's answers, and has a chairman model synthesize
one final answer from the whole deliberation.`,
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", appName, Version)
		},
	}
}

func serveCmd() *cobra.Command {
	var configPath string
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the council HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if debug {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)

			cfg, err := loadConfig(configPath, logger)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, configPath, logger)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path (default: layered lookup)")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	return cmd
}

func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	if path != "" {
		cfg, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		if key := os.Getenv(config.APIKeyEnv); key != "" {
			cfg.Gateway.APIKey = key
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.NewLoader(logger).Load()
}

func serve(ctx context.Context, cfg *config.Config, configPath string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw := gateway.New(gateway.Config{
		BaseURL:    cfg.Gateway.BaseURL,
		APIKey:     cfg.Gateway.APIKey,
		Referer:    cfg.Gateway.Referer,
		AppTitle:   cfg.Gateway.AppTitle,
		CatalogTTL: cfg.Gateway.CatalogTTL,
	}, gateway.WithLogger(logger))

	engineCfg := council.Config{
		Members:     cfg.Council.Members,
		Chairman:    cfg.Council.Chairman,
		TitleModel:  cfg.Council.TitleModel,
		CallTimeout: cfg.Council.CallTimeout,
	}
	if err := engineCfg.Validate(); err != nil {
		return err
	}
	engine := council.NewEngine(gw, engineCfg, council.WithLogger(logger))

	extractor := vision.NewExtractor(gw, vision.Config{
		DefaultModel: cfg.Vision.DefaultModel,
		Fallbacks:    cfg.Vision.Fallbacks,
		CallTimeout:  cfg.Vision.CallTimeout,
	}, vision.WithLogger(logger))

	store, closeStore, err := newStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	component := service.NewComponent(engine, extractor, gw, store,
		service.WithLogger(logger),
		service.WithDefaultAPIKey(cfg.Gateway.APIKey))

	mux := http.NewServeMux()
	component.RegisterHTTPHandlers("api", mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Hot-reload the council roster when an explicit config file is given.
	if configPath != "" {
		watcher := config.NewWatcher(configPath, func(next *config.Config) {
			engine.SetRoster(next.Council.Members, next.Council.Chairman)
		}, logger)
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("Config watcher stopped", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Council service listening", "addr", cfg.HTTP.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// newStore builds the conversation store: NATS JetStream KV when a server
// is configured, in-process memory otherwise.
func newStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.ConversationStore, func(), error) {
	if cfg.NATS.URL == "" {
		logger.Info("No NATS configured, conversations held in memory")
		return storage.NewMemoryStore(), func() {}, nil
	}

	conn, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}
	store, err := storage.NewNATSStore(ctx, js)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	logger.Info("Conversation storage on NATS", "url", cfg.NATS.URL)
	return store, conn.Close, nil
}
