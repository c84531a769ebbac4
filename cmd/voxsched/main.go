package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/voxsched/voxsched/internal/db"
	"github.com/voxsched/voxsched/internal/dotenv"
	"github.com/voxsched/voxsched/pkg/auth"
	"github.com/voxsched/voxsched/pkg/extract"
	"github.com/voxsched/voxsched/pkg/gateway/config"
	gatewayserver "github.com/voxsched/voxsched/pkg/gateway/server"
	"github.com/voxsched/voxsched/pkg/pipeline"
)

type deps struct {
	loadConfig   func() (config.Config, error)
	newExtractor func(ctx context.Context, cfg config.Config) (pipeline.Extractor, error)
	newStore     func(ctx context.Context, cfg config.Config, logger *slog.Logger) (auth.Store, func(), error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultDeps() deps {
	return deps{
		loadConfig: config.LoadFromEnv,
		newExtractor: func(ctx context.Context, cfg config.Config) (pipeline.Extractor, error) {
			client, err := extract.New(ctx, cfg.GeminiAPIKey, extract.WithModel(cfg.GeminiModel))
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		newStore: openStore,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

// openStore returns the token store: Postgres when DATABASE_URL is set,
// otherwise an in-memory store that loses everything on restart.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (auth.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory token store")
		return auth.NewMemoryStore(), func() {}, nil
	}

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	return auth.NewPostgresStore(pool), pool.Close, nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func run(ctx context.Context, logger *slog.Logger, d deps) error {
	if d.loadConfig == nil || d.newExtractor == nil || d.newStore == nil {
		return errors.New("missing dependency")
	}
	if d.signalNotify == nil || d.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := d.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	extractor, err := d.newExtractor(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init extractor: %w", err)
	}

	store, closeStore, err := d.newStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init token store: %w", err)
	}
	defer closeStore()

	gw := gatewayserver.New(cfg, logger, extractor, store)
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway", "addr", cfg.Addr, "public_host", cfg.PublicHost)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	d.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer d.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, d deps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.Load(); err != nil {
		fmt.Fprintf(stderr, "voxsched: %v\n", err)
		return 1
	}

	if err := run(ctx, logger, d); err != nil {
		fmt.Fprintf(stderr, "voxsched: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultDeps()))
}
