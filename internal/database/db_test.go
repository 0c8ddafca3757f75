package database

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: ":memory:", Profile: ProfileCache, Name: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newMemoryDB(t)
	require.NoError(t, db.Migrate())

	var count int
	err := db.Conn().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('daily_prices','result_cache')`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNew_FileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prices.db")
	db, err := New(Config{Path: path, Name: "prices"})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, path, db.Path())
	assert.Equal(t, "prices", db.Name())
	require.NoError(t, db.Migrate())
}

func TestWithTransaction(t *testing.T) {
	db := newMemoryDB(t)

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO daily_prices(symbol, date, close) VALUES ('SPY', '2020-01-02', 300)`)
		return err
	})
	require.NoError(t, err)

	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO daily_prices(symbol, date, close) VALUES ('SPY', '2020-01-03', 301)`); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		panic("bad")
	})
	require.Error(t, err)

	var count int
	require.NoError(t, db.Conn().QueryRow(`SELECT COUNT(*) FROM daily_prices`).Scan(&count))
	assert.Equal(t, 1, count)

	assert.Error(t, WithTransaction(nil, func(*sql.Tx) error { return nil }))
}
