package prices

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aristath/sectorbl/internal/config"
	"github.com/rs/zerolog"
)

// Snapshot holds the current prepared Matrix. Reload swaps in a new matrix
// atomically, so concurrent readers always see a complete one.
type Snapshot struct {
	store    Store
	cfg      config.Engine
	current  atomic.Pointer[Matrix]
	loadedAt atomic.Int64
	log      zerolog.Logger
}

// NewSnapshot creates an empty snapshot backed by store.
func NewSnapshot(store Store, cfg config.Engine, log zerolog.Logger) *Snapshot {
	return &Snapshot{
		store: store,
		cfg:   cfg,
		log:   log.With().Str("component", "price_snapshot").Logger(),
	}
}

// Current returns the loaded matrix, nil before the first successful Reload.
func (s *Snapshot) Current() *Matrix {
	return s.current.Load()
}

// LoadedAt returns when the current matrix was swapped in.
func (s *Snapshot) LoadedAt() time.Time {
	ns := s.loadedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Set installs m directly (used by the CLI and tests).
func (s *Snapshot) Set(m *Matrix) {
	s.current.Store(m)
	s.loadedAt.Store(time.Now().UnixNano())
}

// Reload reads the store, prepares a new matrix and swaps it in. The previous
// matrix stays in place when loading fails.
func (s *Snapshot) Reload(ctx context.Context) error {
	table, err := s.store.LoadTable(ctx, s.cfg.Symbols())
	if err != nil {
		return fmt.Errorf("failed to load price table: %w", err)
	}
	m, err := Prepare(table, s.cfg)
	if err != nil {
		return fmt.Errorf("failed to prepare price matrix: %w", err)
	}
	s.Set(m)
	s.log.Info().
		Int("rows", m.Len()).
		Str("first", m.Dates[0].Format(DateLayout)).
		Str("last", m.LastDate().Format(DateLayout)).
		Str("version", m.Version()).
		Msg("Price snapshot reloaded")
	return nil
}
