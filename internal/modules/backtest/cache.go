package backtest

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// ResultCache stores finished backtest results by key. A miss returns
// (nil, false, nil).
type ResultCache interface {
	Get(ctx context.Context, key string) (*BacktestResult, bool, error)
	Put(ctx context.Context, key string, res *BacktestResult) error
}

// CacheKey identifies a request against a specific price snapshot version.
func CacheKey(req BacktestRequest, version string) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}
	h := sha256.New()
	h.Write(body)
	h.Write([]byte{0})
	h.Write([]byte(version))
	return hex.EncodeToString(h.Sum(nil)), nil
}

func encodeResult(res *BacktestResult) ([]byte, error) {
	payload, err := msgpack.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return payload, nil
}

func decodeResult(payload []byte) (*BacktestResult, error) {
	var res BacktestResult
	if err := msgpack.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("failed to decode cached result: %w", err)
	}
	return &res, nil
}

// SQLiteCache keeps results in the result_cache table.
type SQLiteCache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
	log zerolog.Logger
}

// NewSQLiteCache creates a cache over a migrated database. ttl <= 0 keeps
// entries forever.
func NewSQLiteCache(db *sql.DB, ttl time.Duration, log zerolog.Logger) *SQLiteCache {
	return &SQLiteCache{
		db:  db,
		ttl: ttl,
		now: time.Now,
		log: log.With().Str("component", "result_cache").Str("backend", "sqlite").Logger(),
	}
}

// Get implements ResultCache. Expired rows are treated as misses.
func (c *SQLiteCache) Get(ctx context.Context, key string) (*BacktestResult, bool, error) {
	var (
		payload   []byte
		createdAt int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT payload, created_at FROM result_cache WHERE key = ?`, key,
	).Scan(&payload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read result cache: %w", err)
	}
	if c.ttl > 0 && c.now().Sub(time.Unix(createdAt, 0)) > c.ttl {
		return nil, false, nil
	}

	res, err := decodeResult(payload)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

// Put implements ResultCache.
func (c *SQLiteCache) Put(ctx context.Context, key string, res *BacktestResult) error {
	payload, err := encodeResult(res)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO result_cache (key, payload, created_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at
	`, key, payload, c.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write result cache: %w", err)
	}
	c.log.Debug().Str("key", key).Int("bytes", len(payload)).Msg("Cached backtest result")
	return nil
}

// Prune deletes expired rows and returns how many were removed.
func (c *SQLiteCache) Prune(ctx context.Context) (int64, error) {
	if c.ttl <= 0 {
		return 0, nil
	}
	cutoff := c.now().Add(-c.ttl).Unix()
	out, err := c.db.ExecContext(ctx, `DELETE FROM result_cache WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune result cache: %w", err)
	}
	return out.RowsAffected()
}

// RedisCache keeps results in Redis with a native expiry.
type RedisCache struct {
	client  *redis.Client
	ttl     time.Duration
	prefix  string
	timeout time.Duration
}

// NewRedisCache creates a cache on client. Keys are namespaced by prefix.
func NewRedisCache(client *redis.Client, ttl time.Duration, prefix string) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: prefix, timeout: 500 * time.Millisecond}
}

// Get implements ResultCache.
func (c *RedisCache) Get(ctx context.Context, key string) (*BacktestResult, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read result cache: %w", err)
	}
	res, err := decodeResult(payload)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

// Put implements ResultCache.
func (c *RedisCache) Put(ctx context.Context, key string, res *BacktestResult) error {
	payload, err := encodeResult(res)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Set(ctx, c.prefix+key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write result cache: %w", err)
	}
	return nil
}
