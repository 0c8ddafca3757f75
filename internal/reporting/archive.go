package reporting

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aristath/sectorbl/internal/config"
	"github.com/aristath/sectorbl/internal/modules/backtest"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Archiver stores a finished report under key.
type Archiver interface {
	Archive(ctx context.Context, key string, body io.Reader, contentType string) error
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archiver uploads reports to an S3-compatible bucket behind a circuit
// breaker, so a dead endpoint fails fast instead of stalling callers.
type S3Archiver struct {
	bucket   string
	uploader uploader
	breaker  *gobreaker.CircuitBreaker
	log      zerolog.Logger
}

// NewS3Archiver builds an archiver from the report archive settings. A custom
// endpoint (R2, MinIO) switches to path-style addressing. Without static keys
// the default AWS credential chain is used.
func NewS3Archiver(ctx context.Context, cfg *config.ReportArchiveConfig, log zerolog.Logger) (*S3Archiver, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("report archive bucket is not configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Archiver(cfg.Bucket, manager.NewUploader(client), log), nil
}

func newS3Archiver(bucket string, up uploader, log zerolog.Logger) *S3Archiver {
	st := gobreaker.Settings{Name: "report_archive"}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 3
	}
	l := log.With().Str("component", "report_archive").Logger()
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		l.Warn().Str("from", from.String()).Str("to", to.String()).Msg("Archive circuit breaker changed state")
	}

	return &S3Archiver{
		bucket:   bucket,
		uploader: up,
		breaker:  gobreaker.NewCircuitBreaker(st),
		log:      l,
	}
}

// Archive uploads body to bucket/key.
func (a *S3Archiver) Archive(ctx context.Context, key string, body io.Reader, contentType string) error {
	_, err := a.breaker.Execute(func() (interface{}, error) {
		return a.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        body,
			ContentType: aws.String(contentType),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", key, err)
	}
	a.log.Info().Str("bucket", a.bucket).Str("key", key).Msg("Report archived")
	return nil
}

// ReportKey is the object key of a run's workbook: backtests/<last date>/<run id>.xlsx.
func ReportKey(res *backtest.BacktestResult) string {
	last := "undated"
	if len(res.Dates) > 0 {
		last = res.Dates[len(res.Dates)-1]
	}
	return fmt.Sprintf("backtests/%s/%s.xlsx", last, res.RunID)
}

// ArchiveBacktest renders the workbook and archives it under ReportKey.
func ArchiveBacktest(ctx context.Context, a Archiver, res *backtest.BacktestResult) (string, error) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, res); err != nil {
		return "", err
	}
	key := ReportKey(res)
	if err := a.Archive(ctx, key, &buf, XLSXContentType); err != nil {
		return "", err
	}
	return key, nil
}
