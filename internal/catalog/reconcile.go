package catalog

import (
	"context"
	"log/slog"

	"reelstream/internal/encoder"
	"reelstream/internal/logging"
	"reelstream/internal/metrics"
	"reelstream/internal/queue"
)

// ReconcileStats summarizes one reconciliation pass.
type ReconcileStats struct {
	Checked        int `json:"checked"`
	MarkedReady    int `json:"markedReady"`
	MarkedNotReady int `json:"markedNotReady"`
	Unmatched      int `json:"unmatched"`
}

// Reconciler compares completed on-disk outputs against catalog ready
// flags and heals mismatches. Runs are idempotent and safe to repeat, so
// a persistence failure after a successful encode is corrected on the
// next pass.
type Reconciler struct {
	catalog        *Store
	jobs           *queue.Store
	matchers       []Matcher
	manifestExists func(outputDir string) bool
	logger         *slog.Logger
}

// NewReconciler wires a reconciler over the catalog and job stores.
func NewReconciler(catalogStore *Store, jobStore *queue.Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		catalog:        catalogStore,
		jobs:           jobStore,
		matchers:       DefaultMatchers(),
		manifestExists: encoder.ManifestExists,
		logger:         logging.WithComponent(logger, "catalog"),
	}
}

// Run executes one reconciliation pass.
func (r *Reconciler) Run(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats
	metrics.ReconcileRunsTotal.Inc()

	entries, err := r.catalog.List(ctx)
	if err != nil {
		return stats, err
	}
	completed, err := r.jobs.List(ctx, queue.StatusCompleted)
	if err != nil {
		return stats, err
	}

	for _, job := range completed {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if job.OutputDir == "" {
			continue
		}
		stats.Checked++

		entry, matcherName := Resolve(r.matchers, job.SourcePath, entries)
		if entry == nil {
			stats.Unmatched++
			r.logger.Error("completed job has no catalog entry",
				logging.Int64("job_id", job.ID),
				logging.String("source", job.SourcePath),
			)
			continue
		}

		present := r.manifestExists(job.OutputDir)
		if entry.Ready == present {
			continue
		}
		if err := r.catalog.SetReady(ctx, entry.ID, present); err != nil {
			r.logger.Error("failed to heal catalog ready flag",
				logging.Int64("entry_id", entry.ID),
				logging.Error(err),
			)
			continue
		}
		entry.Ready = present
		if present {
			stats.MarkedReady++
			metrics.ReconcileHealedTotal.WithLabelValues("ready").Inc()
		} else {
			stats.MarkedNotReady++
			metrics.ReconcileHealedTotal.WithLabelValues("not_ready").Inc()
		}
		r.logger.Warn("healed catalog ready flag",
			logging.Int64("entry_id", entry.ID),
			logging.String("path", entry.Path),
			logging.String("matched_by", matcherName),
			logging.Bool("ready", present),
		)
	}

	return stats, nil
}
