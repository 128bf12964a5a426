// Package app assembles the leaderboard service with fx: configuration,
// storage, the score pipeline, the live stream and the HTTP engine, plus the
// lifecycle of the background workers that keep the projection current.
package app

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-leaderboard-backend/internal/config"
	httpapi "github.com/tbourn/go-leaderboard-backend/internal/http"
	"github.com/tbourn/go-leaderboard-backend/internal/http/handlers"
	"github.com/tbourn/go-leaderboard-backend/internal/ranking"
	"github.com/tbourn/go-leaderboard-backend/internal/repo"
	"github.com/tbourn/go-leaderboard-backend/internal/services"
	"github.com/tbourn/go-leaderboard-backend/internal/stream"
	"github.com/tbourn/go-leaderboard-backend/internal/sysutil"
	"github.com/tbourn/go-leaderboard-backend/internal/token"
)

// ProvideLogger builds the service logger from the configured level and format.
func ProvideLogger(cfg config.Config) zerolog.Logger {
	return sysutil.SetupLogging(cfg.LogLevel, cfg.LogPretty, os.Stdout)
}

// ProvideDB opens the ledger database and closes it on stop.
func ProvideDB(lc fx.Lifecycle, cfg config.Config) (*gorm.DB, error) {
	db, err := repo.Open(cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}))
	return db, nil
}

// ProvideSigner builds the proof signer with the current and rotated secrets.
func ProvideSigner(cfg config.Config) (*token.Signer, error) {
	return token.NewSigner(cfg.Token.Secret, cfg.Token.PreviousSecrets, cfg.Token.MaxTTL)
}

// ProvideIndex returns an index that stays unavailable until the reconciler
// has warmed it from the ledger.
func ProvideIndex() *ranking.Guarded {
	return ranking.NewGuarded()
}

// ProvideHub builds the broadcast hub and, when enabled, mirrors its events
// to Kafka.
func ProvideHub(lc fx.Lifecycle, cfg config.Config, log zerolog.Logger) (*stream.Hub, error) {
	var sinks []stream.Sink
	if cfg.Kafka.Enabled {
		sink, err := stream.NewKafkaSink(cfg.Kafka, log)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				sink.Start(context.Background())
				return nil
			},
			OnStop: func(context.Context) error { return sink.Stop() },
		})
		sinks = append(sinks, sink)
	}
	return stream.NewHub(stream.Options{
		Buffer:         cfg.Stream.Buffer,
		Policy:         cfg.Stream.OverflowPolicy,
		MaxPerIdentity: cfg.Stream.MaxPerIdentity,
		Heartbeat:      cfg.Stream.Heartbeat,
	}, log, sinks...), nil
}

// ProvideLedger wraps db as the authoritative score store.
func ProvideLedger(cfg config.Config, db *gorm.DB, log zerolog.Logger) *services.Ledger {
	return services.NewLedger(db, cfg.Pipeline.LockTimeout, log)
}

// ProvideProjector builds the async projection from ledger commits to the
// index and the live stream.
func ProvideProjector(cfg config.Config, idx *ranking.Guarded, hub *stream.Hub, log zerolog.Logger) *services.Projector {
	return services.NewProjector(idx, hub, services.ProjectorOptions{
		Queue:      cfg.Leaderboard.ProjectorQueue,
		MaxRetries: cfg.Leaderboard.ProjectorMaxRetries,
		Backoff:    cfg.Leaderboard.ProjectorBackoff,
		Window:     cfg.Leaderboard.Window,
	}, log)
}

// ProvideScoreService assembles the score submission pipeline.
func ProvideScoreService(cfg config.Config, signer *token.Signer, guard *services.Guard, ledger *services.Ledger, proj *services.Projector, log zerolog.Logger) *services.ScoreService {
	return services.NewScoreService(signer, guard, ledger, proj, cfg.Pipeline, log)
}

// ProvideLeaderboardService serves reads from the index with ledger fallback.
func ProvideLeaderboardService(cfg config.Config, idx *ranking.Guarded, ledger *services.Ledger, log zerolog.Logger) *services.LeaderboardService {
	return services.NewLeaderboardService(idx, ledger, cfg.Leaderboard.MaxLimit, log)
}

// ProvideReconciler compares the index with the ledger and repairs drift.
func ProvideReconciler(cfg config.Config, idx *ranking.Guarded, ledger *services.Ledger, proj *services.Projector, log zerolog.Logger) *services.Reconciler {
	return services.NewReconciler(idx, ledger, proj, cfg.Leaderboard.ReconcileWindow, cfg.Leaderboard.ReconcileTolerance, log)
}

// ProvideHandlers binds the services to the HTTP handlers.
func ProvideHandlers(cfg config.Config, scores *services.ScoreService, signer *token.Signer, board *services.LeaderboardService, hub *stream.Hub) *handlers.Handlers {
	return handlers.New(scores, &services.IssueService{Tokens: signer}, board, hub, handlers.Limits{
		LeaderboardMax: cfg.Leaderboard.MaxLimit,
	})
}

// ProvideEngine returns a Gin engine with every route registered.
func ProvideEngine(cfg config.Config, h *handlers.Handlers) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, cfg, h)
	return r
}

// Workers are the long-running loops behind the request path.
type Workers struct {
	fx.In

	Config     config.Config
	Log        zerolog.Logger
	Guard      *services.Guard
	Projector  *services.Projector
	Hub        *stream.Hub
	Reconciler *services.Reconciler
}

// RunWorkers warms the index and starts the projector, the reconciler, the
// stream heartbeats and the marker pruner. They stop together on shutdown.
func RunWorkers(lc fx.Lifecycle, w Workers) {
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			// a cold index is not fatal: reads fall back to the ledger until
			// the next reconcile pass rebuilds it
			if err := w.Reconciler.Warm(startCtx); err != nil {
				w.Log.Warn().Err(err).Msg("leaderboard index warm-up failed")
			}
			g.Go(func() error { w.Projector.Run(gctx); return nil })
			g.Go(func() error { w.Hub.Run(gctx); return nil })
			g.Go(func() error {
				w.Reconciler.Run(gctx, w.Config.Leaderboard.ReconcileInterval)
				return nil
			})
			g.Go(func() error {
				w.Guard.RunPruner(gctx, w.Config.Leaderboard.MarkerPruneInterval)
				return nil
			})
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return g.Wait()
		},
	})
}

// Module provides every component of the service.
var Module = fx.Options(
	fx.Provide(config.Load),
	fx.Provide(ProvideLogger),
	fx.Provide(ProvideDB),
	fx.Provide(ProvideSigner),
	fx.Provide(ProvideIndex),
	fx.Provide(ProvideHub),
	// pipeline
	fx.Provide(services.NewGuard),
	fx.Provide(ProvideLedger),
	fx.Provide(ProvideProjector),
	fx.Provide(ProvideScoreService),
	fx.Provide(ProvideLeaderboardService),
	fx.Provide(ProvideReconciler),
	// transport
	fx.Provide(ProvideHandlers),
	fx.Provide(ProvideEngine),
	fx.Invoke(RunWorkers),
)
