package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/sectorbl/internal/metrics"
	"github.com/aristath/sectorbl/internal/prices"
	"github.com/rs/zerolog"
)

const reloadTimeout = 2 * time.Minute

// Reloader refreshes the price snapshot from its store.
type Reloader interface {
	Reload(ctx context.Context) error
	Current() *prices.Matrix
}

// ReloadPricesJob rebuilds the price snapshot and publishes its size.
type ReloadPricesJob struct {
	snapshot Reloader
	metrics  metrics.Recorder
	log      zerolog.Logger
}

// NewReloadPricesJob creates the job. rec may be nil.
func NewReloadPricesJob(snapshot Reloader, rec metrics.Recorder, log zerolog.Logger) *ReloadPricesJob {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &ReloadPricesJob{
		snapshot: snapshot,
		metrics:  rec,
		log:      log.With().Str("job", "reload_prices").Logger(),
	}
}

// Name returns the job name
func (j *ReloadPricesJob) Name() string {
	return "reload_prices"
}

// Run reloads the snapshot. On failure the previous snapshot keeps serving.
func (j *ReloadPricesJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()

	started := time.Now()
	if err := j.snapshot.Reload(ctx); err != nil {
		return fmt.Errorf("price reload failed: %w", err)
	}

	m := j.snapshot.Current()
	if m == nil || m.Len() == 0 {
		return nil
	}
	j.metrics.RecordSnapshot(m.Len(), m.LastDate().Unix())
	j.log.Info().
		Int("rows", m.Len()).
		Dur("duration", time.Since(started)).
		Msg("Prices reloaded")
	return nil
}
