// Package services – Reconciler
//
// Reconciler bounds drift between the ledger and the ranking index. Each pass
// compares the top window of both stores position by position; past the
// configured tolerance it raises an alert and rebuilds the whole index from
// the ledger. Index members without a backing score record are removed.
//
// Only one Reconciler may run against an index at a time; the caller owns
// that guarantee.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/go-leaderboard-backend/internal/domain"
	"github.com/tbourn/go-leaderboard-backend/internal/observability"
)

// Report summarizes one reconciliation pass.
type Report struct {
	Checked    int
	Mismatches int
	Orphans    int
	Rebuilt    bool
}

// Reconciler compares and repairs the index against the ledger.
type Reconciler struct {
	Index     RankIndex
	Ledger    *Ledger
	Projector *Projector // optional; refreshed after a rebuild
	Window    int
	Tolerance int
	Log       zerolog.Logger
}

// NewReconciler wires a Reconciler.
func NewReconciler(idx RankIndex, ledger *Ledger, proj *Projector, window, tolerance int, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		Index:     idx,
		Ledger:    ledger,
		Projector: proj,
		Window:    window,
		Tolerance: tolerance,
		Log:       log.With().Str("component", "reconciler").Logger(),
	}
}

// Warm loads the index from the ledger. Reads use the ledger until it succeeds.
func (r *Reconciler) Warm(ctx context.Context) error {
	start := time.Now()
	if err := r.Index.Rebuild(ctx, r.Ledger.LoadAll); err != nil {
		return err
	}
	r.Log.Info().Dur("took", time.Since(start)).Msg("ranking index loaded")
	if r.Projector != nil {
		r.Projector.Refresh()
	}
	return nil
}

// Check runs one pass.
func (r *Reconciler) Check(ctx context.Context) (Report, error) {
	ctx, span := otel.Tracer("services/Reconciler").Start(ctx, "Check")
	defer span.End()

	if !r.Index.Available() {
		// never loaded, or a previous rebuild failed
		if err := r.Warm(ctx); err != nil {
			observability.ReconcilerRuns.WithLabelValues(observability.ReconcileErrored).Inc()
			return Report{}, err
		}
		observability.ReconcilerRuns.WithLabelValues(observability.ReconcileRebuilt).Inc()
		return Report{Rebuilt: true}, nil
	}

	var fromIndex, fromLedger []domain.Entry
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fromIndex, err = r.Index.TopN(r.Window)
		return err
	})
	g.Go(func() error {
		var err error
		fromLedger, err = r.Ledger.TopN(gctx, r.Window)
		return err
	})
	if err := g.Wait(); err != nil {
		observability.ReconcilerRuns.WithLabelValues(observability.ReconcileErrored).Inc()
		return Report{}, err
	}

	rep := Report{Checked: max(len(fromIndex), len(fromLedger))}
	rep.Mismatches = countMismatches(fromIndex, fromLedger)
	span.SetAttributes(attribute.Int("reconcile.mismatches", rep.Mismatches))

	if rep.Mismatches > r.Tolerance {
		observability.ReconcilerDrift.Inc()
		r.Log.Error().
			Int("mismatches", rep.Mismatches).
			Int("tolerance", r.Tolerance).
			Int("window", r.Window).
			Msg("leaderboard drift detected, rebuilding index")
		if err := r.Index.Rebuild(ctx, r.Ledger.LoadAll); err != nil {
			observability.ReconcilerRuns.WithLabelValues(observability.ReconcileErrored).Inc()
			return rep, err
		}
		rep.Rebuilt = true
		if r.Projector != nil {
			r.Projector.Refresh()
		}
		observability.ReconcilerRuns.WithLabelValues(observability.ReconcileRebuilt).Inc()
		return rep, nil
	}

	orphans, err := r.removeOrphans(ctx)
	if err != nil {
		observability.ReconcilerRuns.WithLabelValues(observability.ReconcileErrored).Inc()
		return rep, err
	}
	rep.Orphans = orphans

	if rep.Mismatches > 0 || orphans > 0 {
		// drift within tolerance: repair the visible window in place
		for _, e := range fromLedger {
			_, _ = r.Index.Upsert(e)
		}
		if r.Projector != nil {
			r.Projector.Refresh()
		}
		observability.ReconcilerRuns.WithLabelValues(observability.ReconcileRepaired).Inc()
		r.Log.Warn().Int("mismatches", rep.Mismatches).Int("orphans", orphans).Msg("reconcile repaired minor drift")
		return rep, nil
	}

	observability.ReconcilerRuns.WithLabelValues(observability.ReconcileClean).Inc()
	r.Log.Debug().Int("checked", rep.Checked).Msg("reconcile clean")
	return rep, nil
}

func (r *Reconciler) removeOrphans(ctx context.Context) (int, error) {
	members, err := r.Index.Members()
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}
	found, err := r.Ledger.Existing(ctx, members)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range members {
		if _, ok := found[id]; ok {
			continue
		}
		if err := r.Index.Remove(id); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Run calls Check every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := r.Check(ctx); err != nil && ctx.Err() == nil {
				r.Log.Warn().Err(err).Msg("reconcile pass failed")
			}
		}
	}
}

func countMismatches(a, b []domain.Entry) int {
	n := max(len(a), len(b))
	mismatches := 0
	for i := 0; i < n; i++ {
		if i >= len(a) || i >= len(b) || a[i] != b[i] {
			mismatches++
		}
	}
	return mismatches
}
