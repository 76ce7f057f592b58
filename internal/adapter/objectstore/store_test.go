package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-context-service/internal/domain"
)

type fakeS3 struct {
	exists      bool
	made        int
	existsCalls int
	existsErrs  []error
	objects     map[string]string
	types       map[string]string
	putErr      error
}

// BucketExists returns existsErrs in order, then succeeds.
func (f *fakeS3) BucketExists(context.Context, string) (bool, error) {
	f.existsCalls++
	if len(f.existsErrs) > 0 {
		err := f.existsErrs[0]
		f.existsErrs = f.existsErrs[1:]
		return false, err
	}
	return f.exists, nil
}

func (f *fakeS3) MakeBucket(context.Context, string, minio.MakeBucketOptions) error {
	f.made++
	f.exists = true
	return nil
}

func (f *fakeS3) PutObject(_ context.Context, _, key string, r *bytes.Reader, size int64, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	body, _ := io.ReadAll(r)
	if int64(len(body)) != size {
		return errors.New("size mismatch")
	}
	if f.objects == nil {
		f.objects = map[string]string{}
		f.types = map[string]string{}
	}
	f.objects[key] = string(body)
	f.types[key] = contentType
	return nil
}

func newTestStore(f *fakeS3) *ReportStore {
	return &ReportStore{client: f, bucket: "reports", region: "us-east-1", logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func sampleResult() domain.AskResult {
	return domain.AskResult{
		QueryID:   "q-42",
		Query:     "flood risk in Mobile",
		Answer:    "Low.",
		CreatedAt: time.Date(2026, 10, 18, 23, 30, 0, 0, time.UTC),
	}
}

func TestPublish_UploadsReportAndResult(t *testing.T) {
	f := &fakeS3{}
	s := newTestStore(f)

	require.NoError(t, s.Publish(context.Background(), sampleResult()))

	assert.Equal(t, 1, f.made)
	require.Len(t, f.objects, 3)
	assert.Contains(t, f.objects["2026/10/18/q-42/report.md"], "# Flood Information Report")
	assert.True(t, strings.HasPrefix(f.objects["2026/10/18/q-42/report.pdf"], "%PDF-"))
	assert.Equal(t, "application/pdf", f.types["2026/10/18/q-42/report.pdf"])
	assert.Contains(t, f.objects["2026/10/18/q-42/result.json"], `"query_id": "q-42"`)
	assert.Equal(t, "application/json", f.types["2026/10/18/q-42/result.json"])
}

func TestPublish_BucketCheckedOnce(t *testing.T) {
	f := &fakeS3{exists: true}
	s := newTestStore(f)

	require.NoError(t, s.Publish(context.Background(), sampleResult()))
	require.NoError(t, s.Publish(context.Background(), sampleResult()))
	assert.Zero(t, f.made)
	assert.Equal(t, 1, f.existsCalls)
}

func TestPublish_BucketCheckRetriedAfterFailure(t *testing.T) {
	f := &fakeS3{existsErrs: []error{errors.New("dial tcp: connection refused")}}
	s := newTestStore(f)

	err := s.Publish(context.Background(), sampleResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensure bucket reports")
	assert.Empty(t, f.objects)

	require.NoError(t, s.Publish(context.Background(), sampleResult()))
	assert.Equal(t, 2, f.existsCalls)
	assert.Equal(t, 1, f.made)
	assert.Len(t, f.objects, 3)

	require.NoError(t, s.Publish(context.Background(), sampleResult()))
	assert.Equal(t, 2, f.existsCalls)
}

func TestPublish_Errors(t *testing.T) {
	s := newTestStore(&fakeS3{})
	r := sampleResult()
	r.QueryID = ""
	require.Error(t, s.Publish(context.Background(), r))

	s = newTestStore(&fakeS3{putErr: errors.New("denied")})
	err := s.Publish(context.Background(), sampleResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report.md")
}

func TestNewReportStore_Validation(t *testing.T) {
	_, err := NewReportStore(Config{Bucket: "b"}, slog.Default())
	require.Error(t, err)
	_, err = NewReportStore(Config{Endpoint: "localhost:9000"}, slog.Default())
	require.Error(t, err)

	s, err := NewReportStore(Config{Endpoint: "localhost:9000", Bucket: "b", AccessKey: "k", SecretKey: "s"}, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", s.region)
}
