package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/codefionn/chatd/internal/config"
	"github.com/codefionn/chatd/internal/consts"
	"github.com/codefionn/chatd/internal/llm"
	"github.com/codefionn/chatd/internal/lockfile"
	"github.com/codefionn/chatd/internal/logger"
	"github.com/codefionn/chatd/internal/metrics"
	"github.com/codefionn/chatd/internal/pprof"
	"github.com/codefionn/chatd/internal/securemem"
	"github.com/codefionn/chatd/internal/socketserver"
	"github.com/codefionn/chatd/internal/state"
	"github.com/codefionn/chatd/internal/store"
)

// serveCmd runs the chat server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat server",
	Long:  "Start the TCP chat server and, if configured, the Prometheus metrics endpoint.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runServe(cmd.Context(), cfg)
	},
}

var profileFlags struct {
	cpu   string
	heap  string
	mutex string
	http  bool
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "Listen address (host:port)")
	serveCmd.Flags().String("data-dir", "", "Directory for tables and shared files")
	serveCmd.Flags().String("storage", "", "Storage backend: json or sqlite")
	serveCmd.Flags().String("log-level", "", "Log file level: debug, info, warn, error, none")
	serveCmd.Flags().Int("max-connections", 0, "Maximum concurrent connections (0 = unlimited)")
	serveCmd.Flags().String("metrics-addr", "", "Address for the /metrics endpoint (empty = disabled)")
	serveCmd.Flags().StringVar(&profileFlags.cpu, "cpuprofile", "", "Write a CPU profile to this file")
	serveCmd.Flags().StringVar(&profileFlags.heap, "memprofile", "", "Write a heap profile to this file on exit")
	serveCmd.Flags().StringVar(&profileFlags.mutex, "mutexprofile", "", "Write a mutex contention profile to this file on exit")
	serveCmd.Flags().BoolVar(&profileFlags.http, "pprof", false, "Serve /debug/pprof on the metrics endpoint")
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if err := logger.Init(logger.Options{
		Level:        logger.ParseLevel(cfg.LogLevel),
		Path:         cfg.LogPath,
		Console:      os.Stderr,
		ConsoleLevel: logger.ParseLevel(cfg.ConsoleLevel),
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		if closeErr := logger.Global().Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", closeErr)
		}
	}()
	defer securemem.Purge()

	profiler := pprof.New(pprof.Config{
		CPUProfile:   profileFlags.cpu,
		HeapProfile:  profileFlags.heap,
		MutexProfile: profileFlags.mutex,
	})
	if err := profiler.Start(); err != nil {
		return err
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			logger.Error("Failed to write profiles: %v", err)
		}
	}()

	lock := lockfile.ForDir(cfg.DataDir)
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer lock.Release()

	backend, err := openBackend(cfg)
	if err != nil {
		return err
	}
	tables := store.New(backend)
	defer tables.Close()

	shared, err := state.New(state.Options{
		Store:    tables,
		FilesDir: cfg.ResolvedFilesDir(),
	})
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	keys, password, err := apiKeys(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ai := llm.NewRotatingClient(ctx, geminiFactory(cfg.AI), keys, cfg.AITimeout())
	defer ai.Close()
	if !ai.Available() {
		logger.Warn("No Gemini API keys configured; the ai command is disabled")
	}

	srv := socketserver.NewServer(socketserver.Options{
		ListenAddr:     cfg.ListenAddr,
		MaxConnections: cfg.MaxConnections,
		Limits: socketserver.Limits{
			ChatViewDefault: cfg.ChatViewDefault,
			AIHistoryWindow: cfg.AI.HistoryWindow,
			MaxUploadBytes:  cfg.MaxUploadBytes,
			UploadTimeout:   cfg.UploadTimeout(),
		},
	}, shared, ai)
	if err := srv.Listen(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "chatd listening on %s\n", srv.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})

	if cfg.MetricsAddr != "" {
		metricsSrv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux(profileFlags.http),
			ReadHeaderTimeout: consts.Timeout10Seconds,
		}
		g.Go(func() error {
			logger.Info("Metrics endpoint on http://%s/metrics", cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), consts.Timeout5Seconds)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	if _, err := os.Stat(configFile); err == nil {
		g.Go(func() error {
			err := config.Watch(gctx, configFile, func(next *config.Config) {
				reloadKeys(gctx, ai, next, password)
			})
			if err != nil {
				logger.Warn("Config hot reload disabled: %v", err)
			}
			return nil
		})
	}

	err = g.Wait()
	logger.Info("chatd stopped")
	return err
}

func openBackend(cfg *config.Config) (store.Backend, error) {
	switch cfg.Storage.Backend {
	case config.StorageSQLite:
		backend, err := store.NewSQLiteBackend(cfg.ResolvedSQLitePath())
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return backend, nil
	default:
		backend, err := store.NewDirBackend(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open data directory: %w", err)
		}
		return backend, nil
	}
}

// geminiFactory builds one throttled Gemini backend per API key.
func geminiFactory(ai config.AIConfig) llm.Factory {
	return func(ctx context.Context, apiKey string) (llm.Backend, error) {
		backend, err := llm.NewGeminiBackend(ctx, apiKey, ai.Model)
		if err != nil {
			return nil, err
		}
		return llm.NewRateLimitedBackend(backend, ai.RequestsPerMinute, 1), nil
	}
}

// keySetter is the part of the rotation proxy a reload touches.
type keySetter interface {
	SetKeys(ctx context.Context, keys []string)
}

func reloadKeys(ctx context.Context, ai keySetter, next *config.Config, password string) {
	keys, err := next.DecryptAPIKeys(password)
	if err != nil {
		logger.Warn("Keeping previous API keys, cannot decrypt reloaded ones: %v", err)
		return
	}
	ai.SetKeys(ctx, keys)
	logger.Info("Reloaded %d API keys", len(keys))
}

func metricsMux(withPprof bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if withPprof {
		pprof.Register(mux)
	}
	return mux
}
