// Package objectstore uploads ask results and their Markdown reports to
// S3-compatible storage.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/couchcryptid/flood-context-service/internal/domain"
	"github.com/couchcryptid/flood-context-service/internal/report"
)

// Config holds the S3 endpoint and bucket.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type objectPutter interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, r *bytes.Reader, size int64, contentType string) error
}

// minioPutter narrows *minio.Client to what ReportStore uses.
type minioPutter struct{ client *minio.Client }

func (m minioPutter) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return m.client.BucketExists(ctx, bucket)
}

func (m minioPutter) MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error {
	return m.client.MakeBucket(ctx, bucket, opts)
}

func (m minioPutter) PutObject(ctx context.Context, bucket, key string, r *bytes.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	return err
}

// ReportStore writes report.md, report.pdf and result.json under
// <yyyy/mm/dd>/<query_id>/.
// It implements domain.ResultSink.
type ReportStore struct {
	client objectPutter
	bucket string
	region string
	logger *slog.Logger

	mu          sync.Mutex
	bucketReady bool
}

// NewReportStore creates a store for cfg.Bucket. The bucket is created on
// first use if it does not exist.
func NewReportStore(cfg Config, logger *slog.Logger) (*ReportStore, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &ReportStore{client: minioPutter{client}, bucket: bucket, region: region, logger: logger}, nil
}

// ensureBucket creates the bucket if needed. A failed check is retried on
// the next publish; only success is remembered.
func (s *ReportStore) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bucketReady {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return err
		}
	}
	s.bucketReady = true
	return nil
}

// Publish uploads the rendered reports and the raw result.
func (s *ReportStore) Publish(ctx context.Context, result domain.AskResult) error {
	if result.QueryID == "" {
		return fmt.Errorf("query_id is required")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket %s: %w", s.bucket, err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize ask result: %w", err)
	}
	pdf, err := report.RenderPDF(result)
	if err != nil {
		return err
	}
	objects := []struct {
		name        string
		body        []byte
		contentType string
	}{
		{"report.md", []byte(report.Render(result)), "text/markdown; charset=utf-8"},
		{"report.pdf", pdf, "application/pdf"},
		{"result.json", data, "application/json"},
	}
	for _, obj := range objects {
		key := ObjectKey(result, obj.name)
		if err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(obj.body), int64(len(obj.body)), obj.contentType); err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
	}
	s.logger.Debug("report uploaded", "query_id", result.QueryID, "bucket", s.bucket)
	return nil
}

// ObjectKey returns the key for one file of a result.
func ObjectKey(result domain.AskResult, name string) string {
	return fmt.Sprintf("%s/%s/%s", result.CreatedAt.UTC().Format("2006/01/02"), result.QueryID, name)
}
