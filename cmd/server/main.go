// Command server runs the leaderboard API: proof-gated score submission,
// ranked reads, the live SSE stream and the score audit trail.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	_ "github.com/tbourn/go-leaderboard-backend/docs"
	"github.com/tbourn/go-leaderboard-backend/internal/app"
	"github.com/tbourn/go-leaderboard-backend/internal/config"
	"github.com/tbourn/go-leaderboard-backend/internal/observability"
	"github.com/tbourn/go-leaderboard-backend/internal/stream"
)

var version = "dev"

const shutdownTimeout = 15 * time.Second

// @title       Leaderboard API
// @version     1.0
// @description Proof-gated score submission, live leaderboard and score audit.
// @BasePath    /api/v1
func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	fx.New(
		app.Module,
		fx.Invoke(setupTracing),
		fx.Invoke(runServer),
	).Run()
}

func setupTracing(lc fx.Lifecycle, cfg config.Config, logger zerolog.Logger) error {
	shutdown, err := observability.SetupOTel(context.Background(), cfg.OTEL, version)
	if err != nil {
		return err
	}
	if cfg.OTEL.Enabled {
		logger.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("tracing enabled")
	}
	lc.Append(fx.StopHook(shutdown))
	return nil
}

func runServer(lc fx.Lifecycle, cfg config.Config, engine *gin.Engine, hub *stream.Hub, logger zerolog.Logger) {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	// live streams never go idle on their own
	srv.RegisterOnShutdown(hub.Close)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			go func() {
				logger.Info().Str("addr", srv.Addr).Str("version", version).Msg("server starting")
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
				return err
			}
			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
