package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Pruner drops expired entries from a store.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// PruneCacheJob removes expired backtest results from the result cache.
type PruneCacheJob struct {
	cache Pruner
	log   zerolog.Logger
}

// NewPruneCacheJob creates the job.
func NewPruneCacheJob(cache Pruner, log zerolog.Logger) *PruneCacheJob {
	return &PruneCacheJob{
		cache: cache,
		log:   log.With().Str("job", "prune_result_cache").Logger(),
	}
}

// Name returns the job name
func (j *PruneCacheJob) Name() string {
	return "prune_result_cache"
}

// Run deletes expired rows.
func (j *PruneCacheJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := j.cache.Prune(ctx)
	if err != nil {
		return fmt.Errorf("result cache prune failed: %w", err)
	}
	if n > 0 {
		j.log.Info().Int64("removed", n).Msg("Pruned expired backtest results")
	}
	return nil
}
