package prices

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/sectorbl/internal/database"
	"github.com/rs/zerolog"
)

// Store loads raw close series.
type Store interface {
	LoadTable(ctx context.Context, symbols []string) (*Table, error)
}

// Point is one daily close.
type Point struct {
	Date  time.Time
	Close float64
}

// SQLiteStore keeps closes in the daily_prices table.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSQLiteStore creates a store over an already migrated database
func NewSQLiteStore(db *sql.DB, log zerolog.Logger) *SQLiteStore {
	return &SQLiteStore{
		db:  db,
		log: log.With().Str("component", "price_store").Logger(),
	}
}

// UpsertPrices writes closes for one symbol, replacing existing dates.
func (s *SQLiteStore) UpsertPrices(ctx context.Context, symbol string, points []Point) error {
	if symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	return database.WithTransaction(s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO daily_prices (symbol, date, close) VALUES (?, ?, ?)
			ON CONFLICT(symbol, date) DO UPDATE SET close = excluded.close
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, p := range points {
			if _, err := stmt.ExecContext(ctx, symbol, p.Date.UTC().Format(DateLayout), p.Close); err != nil {
				return fmt.Errorf("failed to upsert %s %s: %w", symbol, p.Date.Format(DateLayout), err)
			}
		}
		return nil
	})
}

// LoadTable reads all closes for the given symbols. Symbols without rows are
// absent from the result's Columns.
func (s *SQLiteStore) LoadTable(ctx context.Context, symbols []string) (*Table, error) {
	if len(symbols) == 0 {
		return NewTable(nil), nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(symbols)), ",")
	args := make([]interface{}, len(symbols))
	for i, sym := range symbols {
		args[i] = sym
	}

	query := `SELECT symbol, date, close FROM daily_prices WHERE symbol IN (` + placeholders + `) ORDER BY date`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	series := make(map[string]map[time.Time]float64)
	count := 0
	for rows.Next() {
		var symbol, date string
		var closePrice float64
		if err := rows.Scan(&symbol, &date, &closePrice); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		d, err := ParseDate(date)
		if err != nil {
			s.log.Warn().Str("symbol", symbol).Str("date", date).Msg("Skipping row with malformed date")
			continue
		}
		if series[symbol] == nil {
			series[symbol] = make(map[time.Time]float64)
		}
		series[symbol][d] = closePrice
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	s.log.Debug().Int("rows", count).Int("symbols", len(series)).Msg("Loaded price table")
	return NewTable(series), nil
}

// Symbols lists the symbols that have at least one close.
func (s *SQLiteStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM daily_prices ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}
