package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HanTheDev/chem-render-api/internal/config"
	"github.com/HanTheDev/chem-render-api/internal/db"
	"github.com/HanTheDev/chem-render-api/internal/logging"
	"github.com/HanTheDev/chem-render-api/internal/middleware"
	"github.com/HanTheDev/chem-render-api/internal/ratelimit"
	"github.com/HanTheDev/chem-render-api/internal/render"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load config")
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	middleware.SetTrustProxyHeaders(cfg.TrustProxyHeaders)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server failed")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	// Without REDIS_URL anonymous throttling counts in process memory.
	var limiter *ratelimit.RateLimiter
	if cfg.RedisURL != "" {
		limiter, err = ratelimit.NewRateLimiter(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer limiter.Close()

		if err := limiter.Ping(ctx); err != nil {
			logging.Warn().Err(err).Msg("Redis unreachable, throttling will fail open until it recovers")
		}
	}

	router := newRouter(cfg, dependencies{
		store:   store,
		toolkit: render.NewIndigoClient(cfg.IndigoURL, cfg.RenderTimeout),
		limiter: limiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logging.Info().
			Str("addr", srv.Addr).
			Str("indigo_url", cfg.IndigoURL).
			Bool("redis_throttle", limiter != nil).
			Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logging.Info().Msg("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logging.Info().Msg("Server exited gracefully")
	return nil
}
