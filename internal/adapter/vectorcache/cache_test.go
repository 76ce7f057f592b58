package vectorcache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-context-service/internal/adapter/llmstub"
	"github.com/couchcryptid/flood-context-service/internal/observability"
)

func TestEmbed_MemoryTier(t *testing.T) {
	stub := llmstub.New()
	m := observability.NewMetricsForTesting()
	c, err := Open(context.Background(), stub, "stub", "", 8, m)
	require.NoError(t, err)
	defer c.Close()

	first, err := c.Embed(context.Background(), []string{"flood", "poverty"})
	require.NoError(t, err)
	second, err := c.Embed(context.Background(), []string{"poverty", "flood", "elderly"})
	require.NoError(t, err)

	assert.Equal(t, first[0], second[1])
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, 3, stub.EmbeddedTexts())
	assert.Equal(t, 2, stub.Calls("embed"))
	assert.Equal(t, 3, c.Len())
	assert.InDelta(t, 2, testutil.ToFloat64(m.EmbeddingCache.WithLabelValues("memory", "hit")), 0)
}

func TestEmbed_DiskTierSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.db")
	ctx := context.Background()

	stub := llmstub.New()
	c, err := Open(ctx, stub, "stub", path, 8, nil)
	require.NoError(t, err)
	want, err := c.Embed(ctx, []string{"Persons below poverty"})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	fresh := llmstub.New()
	m := observability.NewMetricsForTesting()
	reopened, err := Open(ctx, fresh, "stub", path, 8, m)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Embed(ctx, []string{"Persons below poverty"})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 0, fresh.Calls("embed"))
	assert.InDelta(t, 1, testutil.ToFloat64(m.EmbeddingCache.WithLabelValues("disk", "hit")), 0)
}

func TestEmbed_ModelIsPartOfKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.db")
	ctx := context.Background()

	a, err := Open(ctx, llmstub.New(), "model-a", path, 8, nil)
	require.NoError(t, err)
	_, err = a.Embed(ctx, []string{"text"})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	stub := llmstub.New()
	b, err := Open(ctx, stub, "model-b", path, 8, nil)
	require.NoError(t, err)
	defer b.Close()
	_, err = b.Embed(ctx, []string{"text"})
	require.NoError(t, err)
	assert.Equal(t, 1, stub.EmbeddedTexts())
}

func TestEmbed_InnerErrorIsNotCached(t *testing.T) {
	stub := llmstub.New()
	stub.EmbedErr = assert.AnError
	c, err := Open(context.Background(), stub, "stub", "", 8, nil)
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), []string{"x"})
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, c.Len())
}

func TestEncodeDecode(t *testing.T) {
	v := []float32{0, 1.5, -2.25, 3e-8}
	got, err := decode(encode(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decode([]byte{1, 2, 3})
	require.Error(t, err)
}
