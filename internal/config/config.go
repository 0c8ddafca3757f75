// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds application configuration
type Config struct {
	DataDir        string // Base directory for databases and reports (always absolute)
	PricesDB       string // SQLite file holding daily closes and the result cache
	EngineConfig   string // Optional YAML file overriding engine constants
	LogLevel       string
	Port           int
	DevMode        bool
	ReloadSchedule string // cron spec with seconds field
	BacktestRPS    float64
	BacktestBurst  int
	ResultCacheTTL time.Duration
	RedisAddr      string   // host:port; when set, backtest results are cached in Redis instead of SQLite
	WSOrigins      []string // extra Origin host patterns accepted by the backtest stream
	Reports        *ReportArchiveConfig
}

// ReportArchiveConfig holds the S3-compatible bucket used to archive backtest reports.
// Archiving is disabled when Bucket is empty.
type ReportArchiveConfig struct {
	Bucket    string
	Endpoint  string // Custom endpoint for R2/MinIO, empty for AWS
	Region    string
	AccessKey string
	SecretKey string
}

// Enabled reports whether a bucket is configured.
func (r *ReportArchiveConfig) Enabled() bool {
	return r != nil && r.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:        absDataDir,
		PricesDB:       getEnv("PRICES_DB", filepath.Join(absDataDir, "prices.db")),
		EngineConfig:   getEnv("ENGINE_CONFIG", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Port:           getEnvAsInt("PORT", 8000),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		ReloadSchedule: getEnv("RELOAD_SCHEDULE", "0 30 22 * * MON-FRI"),
		BacktestRPS:    getEnvAsFloat("BACKTEST_RPS", 1.0),
		BacktestBurst:  getEnvAsInt("BACKTEST_BURST", 3),
		ResultCacheTTL: getEnvAsDuration("RESULT_CACHE_TTL", 24*time.Hour),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		WSOrigins:      getEnvAsList("WS_ORIGIN_PATTERNS"),
		Reports:        loadReportArchiveConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that values are usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.PricesDB == "" {
		return fmt.Errorf("PRICES_DB must not be empty")
	}
	if c.BacktestRPS <= 0 {
		return fmt.Errorf("BACKTEST_RPS must be positive, got %g", c.BacktestRPS)
	}
	if c.BacktestBurst < 1 {
		return fmt.Errorf("BACKTEST_BURST must be at least 1, got %d", c.BacktestBurst)
	}
	if c.ResultCacheTTL < 0 {
		return fmt.Errorf("RESULT_CACHE_TTL must not be negative")
	}
	if c.ReloadSchedule != "" {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(c.ReloadSchedule); err != nil {
			return fmt.Errorf("invalid RELOAD_SCHEDULE %q: %w", c.ReloadSchedule, err)
		}
	}
	for _, p := range c.WSOrigins {
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("invalid WS_ORIGIN_PATTERNS entry %q: %w", p, err)
		}
	}
	if c.Reports.Enabled() && c.Reports.Region == "" {
		return fmt.Errorf("REPORT_S3_REGION is required when REPORT_S3_BUCKET is set")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blank entries.
func getEnvAsList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func loadReportArchiveConfig() *ReportArchiveConfig {
	return &ReportArchiveConfig{
		Bucket:    getEnv("REPORT_S3_BUCKET", ""),
		Endpoint:  getEnv("REPORT_S3_ENDPOINT", ""),
		Region:    getEnv("REPORT_S3_REGION", "auto"),
		AccessKey: getEnv("REPORT_S3_ACCESS_KEY", ""),
		SecretKey: getEnv("REPORT_S3_SECRET_KEY", ""),
	}
}
