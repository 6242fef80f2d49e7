// Package publish uploads sweep artifacts (data files, manifests, plots and
// exports) to object storage. Targets are URLs: s3://bucket/prefix or
// gs://bucket/prefix.
package publish

import (
	"context"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/sweepline/pkg/compression"
	"github.com/ajitpratap0/sweepline/pkg/errors"
)

// Config configures the publisher
type Config struct {
	// Target is s3://bucket/prefix or gs://bucket/prefix. Empty disables
	// publishing.
	Target string `yaml:"target" mapstructure:"target"`
	// Region is the S3 region
	Region string `yaml:"region,omitempty" mapstructure:"region"`
	// Endpoint overrides the S3 endpoint for compatible stores
	Endpoint string `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	// PathStyle addresses S3 buckets by path rather than host
	PathStyle bool `yaml:"path_style,omitempty" mapstructure:"path_style"`
	// PartSize is the S3 multipart part size in bytes
	PartSize int64 `yaml:"part_size,omitempty" mapstructure:"part_size"`
	// Concurrency is the number of parts uploaded in parallel
	Concurrency int `yaml:"concurrency,omitempty" mapstructure:"concurrency"`
	// CredentialsFile is a GCS service account key file
	CredentialsFile string `yaml:"credentials_file,omitempty" mapstructure:"credentials_file"`
	// Retry applies to each file
	Retry Retry `yaml:"retry" mapstructure:"retry"`
}

// DefaultConfig returns a disabled publisher config
func DefaultConfig() Config {
	return Config{
		Region:      "us-east-1",
		PartSize:    5 * 1024 * 1024,
		Concurrency: 4,
		Retry:       Retry{Attempts: 3, Backoff: 500 * time.Millisecond, MaxBackoff: 10 * time.Second},
	}
}

// Enabled reports whether a target is configured
func (c Config) Enabled() bool {
	return c.Target != ""
}

// Target is a parsed upload destination
type Target struct {
	Scheme string
	Bucket string
	Prefix string
}

// String renders the target URL
func (t Target) String() string {
	if t.Prefix == "" {
		return t.Scheme + "://" + t.Bucket
	}
	return t.Scheme + "://" + t.Bucket + "/" + t.Prefix
}

// Key joins the prefix and name into an object key
func (t Target) Key(name string) string {
	if t.Prefix == "" {
		return name
	}
	return path.Join(t.Prefix, name)
}

// ParseTarget parses s3:// and gs:// URLs
func ParseTarget(raw string) (Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, errors.Wrap(err, errors.ErrorTypeConfig, "invalid publish target").
			WithDetail("target", raw)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "gcs" {
		scheme = "gs"
	}
	if scheme != "s3" && scheme != "gs" {
		return Target{}, errors.New(errors.ErrorTypeConfig, "publish target must be s3:// or gs://").
			WithDetail("target", raw)
	}
	if u.Host == "" {
		return Target{}, errors.New(errors.ErrorTypeConfig, "publish target has no bucket").
			WithDetail("target", raw)
	}
	return Target{
		Scheme: scheme,
		Bucket: u.Host,
		Prefix: strings.Trim(u.Path, "/"),
	}, nil
}

// Object describes one upload
type Object struct {
	Key         string
	ContentType string
	Metadata    map[string]string
}

// Uploader writes objects to one bucket
type Uploader interface {
	Upload(ctx context.Context, obj Object, body io.Reader) (location string, err error)
	Close() error
}

// Publisher uploads local files under a target prefix
type Publisher struct {
	target   Target
	uploader Uploader
	retry    Retry
	logger   *zap.Logger
}

// New builds a publisher for cfg.Target using the matching cloud SDK
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Publisher, error) {
	target, err := ParseTarget(cfg.Target)
	if err != nil {
		return nil, err
	}
	var up Uploader
	switch target.Scheme {
	case "s3":
		up, err = NewS3Uploader(ctx, cfg, target.Bucket)
	case "gs":
		up, err = NewGCSUploader(ctx, cfg, target.Bucket)
	}
	if err != nil {
		return nil, err
	}
	return NewWithUploader(target, up, logger).WithRetry(cfg.Retry), nil
}

// NewWithUploader wraps an existing uploader
func NewWithUploader(target Target, up Uploader, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		target:   target,
		uploader: up,
		logger:   logger.With(zap.String("component", "publish"), zap.Stringer("target", target)),
	}
}

// WithRetry sets the retry policy of every upload. Publishers start with a
// single attempt.
func (p *Publisher) WithRetry(r Retry) *Publisher {
	p.retry = r
	return p
}

// Target returns the destination
func (p *Publisher) Target() Target {
	return p.target
}

// PublishFile uploads one file under the target prefix, keyed by its base
// name, and returns the object location
func (p *Publisher) PublishFile(ctx context.Context, file string, metadata map[string]string) (string, error) {
	f, err := os.Open(file) //nolint:gosec // path comes from the command line
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to open artifact").
			WithDetail("file", file)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to stat artifact").
			WithDetail("file", file)
	}

	meta := map[string]string{
		"source":   filepath.Base(file),
		"size":     strconv.FormatInt(info.Size(), 10),
		"uploaded": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range metadata {
		meta[k] = v
	}

	obj := Object{
		Key:         p.target.Key(filepath.Base(file)),
		ContentType: ContentType(file),
		Metadata:    meta,
	}
	start := time.Now()
	var location string
	var lastErr error
	err = p.retry.do(ctx, func(attempt int) error {
		if attempt > 0 {
			p.logger.Warn("retrying upload",
				zap.String("file", file),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr))
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return err
			}
		}
		location, lastErr = p.uploader.Upload(ctx, obj, f)
		return lastErr
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConnection, "failed to upload artifact").
			WithDetail("file", file).
			WithDetail("key", obj.Key)
	}
	p.logger.Info("published artifact",
		zap.String("file", file),
		zap.String("location", location),
		zap.Int64("bytes", info.Size()),
		zap.Duration("duration", time.Since(start)))
	return location, nil
}

// PublishAll uploads files in order and stops at the first failure
func (p *Publisher) PublishAll(ctx context.Context, files []string, metadata map[string]string) ([]string, error) {
	locations := make([]string, 0, len(files))
	for _, f := range files {
		loc, err := p.PublishFile(ctx, f, metadata)
		if err != nil {
			return locations, err
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

// Close releases the uploader
func (p *Publisher) Close() error {
	return p.uploader.Close()
}

// ContentType guesses an artifact's content type from its extension.
// Compressed files report the compression's type.
func ContentType(file string) string {
	switch compression.FromPath(file) {
	case compression.Gzip:
		return "application/gzip"
	case compression.Zstd:
		return "application/zstd"
	case compression.None:
	default:
		return "application/octet-stream"
	}
	switch strings.ToLower(filepath.Ext(file)) {
	case ".dat", ".gp":
		return "text/plain; charset=utf-8"
	case ".jsonl":
		return "application/x-ndjson"
	case ".arrow":
		return "application/vnd.apache.arrow.file"
	case ".avro":
		return "application/avro"
	}
	if t := mime.TypeByExtension(filepath.Ext(file)); t != "" {
		return t
	}
	return "application/octet-stream"
}
