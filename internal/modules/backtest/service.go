package backtest

import (
	"context"
	"time"

	"github.com/aristath/sectorbl/internal/metrics"
	"github.com/rs/zerolog"
)

// Service fronts the engine with the result cache and run metrics.
type Service struct {
	engine  *Engine
	cache   ResultCache
	metrics metrics.Recorder
	log     zerolog.Logger
}

// NewService creates a service. cache and rec may be nil.
func NewService(e *Engine, cache ResultCache, rec metrics.Recorder, log zerolog.Logger) *Service {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Service{
		engine:  e,
		cache:   cache,
		metrics: rec,
		log:     log.With().Str("component", "backtest_service").Logger(),
	}
}

// Engine returns the wrapped engine.
func (s *Service) Engine() *Engine {
	return s.engine
}

// Ready reports whether a non-empty price snapshot is loaded.
func (s *Service) Ready() bool {
	_, err := s.engine.snapshot()
	return err == nil
}

// Scenario runs a scenario and records its outcome.
func (s *Service) Scenario(ctx context.Context, req ScenarioRequest) (*ScenarioResult, error) {
	started := time.Now()
	res, err := s.engine.RunScenario(ctx, req)
	s.metrics.RecordRun(metrics.KindScenario, outcome(err), time.Since(started).Seconds())
	return res, err
}

// Backtest serves a cached result when one exists for the request and the
// current snapshot, replaying its rebalances to any progress observer.
// cached reports whether the result came from the cache.
func (s *Service) Backtest(ctx context.Context, req BacktestRequest, opts ...Option) (res *BacktestResult, cached bool, err error) {
	started := time.Now()
	defer func() {
		result := outcome(err)
		if cached {
			result = metrics.OutcomeCached
		}
		s.metrics.RecordRun(metrics.KindBacktest, result, time.Since(started).Seconds())
	}()

	key := s.cacheKey(req)
	if key != "" {
		hit, ok, getErr := s.cache.Get(ctx, key)
		if getErr != nil {
			s.log.Warn().Err(getErr).Msg("Result cache read failed")
		}
		if ok {
			o := runOptions{}
			for _, opt := range opts {
				opt(&o)
			}
			if o.progress != nil {
				for _, ev := range hit.Rebalances {
					o.progress(ev)
				}
			}
			return hit, true, nil
		}
	}

	res, err = s.engine.RunBacktest(ctx, req, opts...)
	if err != nil {
		return nil, false, err
	}
	if key != "" {
		if putErr := s.cache.Put(ctx, key, res); putErr != nil {
			s.log.Warn().Err(putErr).Msg("Result cache write failed")
		}
	}
	return res, false, nil
}

func (s *Service) cacheKey(req BacktestRequest) string {
	if s.cache == nil {
		return ""
	}
	m, err := s.engine.snapshot()
	if err != nil {
		return ""
	}
	key, err := CacheKey(req, m.Version())
	if err != nil {
		s.log.Warn().Err(err).Msg("Could not derive cache key")
		return ""
	}
	return key
}

func outcome(err error) string {
	if err != nil {
		return metrics.OutcomeError
	}
	return metrics.OutcomeOK
}
