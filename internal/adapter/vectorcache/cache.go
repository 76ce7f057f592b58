// Package vectorcache memoises embeddings in two tiers: an in-process LRU and
// an optional SQLite file that survives restarts. SVI variable descriptions
// are embedded once per model and then served from cache for every query.
package vectorcache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/couchcryptid/flood-context-service/internal/domain"
	"github.com/couchcryptid/flood-context-service/internal/observability"
)

const schema = `
CREATE TABLE IF NOT EXISTS embeddings (
	key        TEXT PRIMARY KEY,
	model      TEXT NOT NULL,
	dims       INTEGER NOT NULL,
	vector     BLOB NOT NULL,
	created_at INTEGER NOT NULL
)`

// Cache wraps an Embedder. It is safe for concurrent use.
type Cache struct {
	inner   domain.Embedder
	model   string
	mem     *lru.Cache[string, []float32]
	db      *sql.DB
	metrics *observability.Metrics
}

// Open builds a cache for one embedding model. An empty path disables the
// disk tier.
func Open(ctx context.Context, inner domain.Embedder, model, path string, memEntries int, metrics *observability.Metrics) (*Cache, error) {
	mem, err := lru.New[string, []float32](memEntries)
	if err != nil {
		return nil, fmt.Errorf("create embedding lru: %w", err)
	}
	c := &Cache{inner: inner, model: model, mem: mem, metrics: metrics}
	if path == "" {
		return c, nil
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache %s: %w", path, err)
	}
	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", schema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init embedding cache: %w", err)
		}
	}
	c.db = db
	return c, nil
}

// Close releases the disk tier.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Embed returns one vector per text. Cached vectors are served from memory or
// disk; the remainder go to the inner embedder in a single batch.
func (c *Cache) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		key := c.key(text)
		if v, ok := c.mem.Get(key); ok {
			c.observe("memory", "hit")
			out[i] = v
			continue
		}
		c.observe("memory", "miss")

		if c.db != nil {
			v, err := c.load(ctx, key)
			if err != nil {
				return nil, err
			}
			if v != nil {
				c.observe("disk", "hit")
				c.mem.Add(key, v)
				out[i] = v
				continue
			}
			c.observe("disk", "miss")
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return out, nil
	}
	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missTexts))
	}
	for j, i := range missIdx {
		key := c.key(missTexts[j])
		c.mem.Add(key, vecs[j])
		if c.db != nil {
			if err := c.store(ctx, key, vecs[j]); err != nil {
				return nil, err
			}
		}
		out[i] = vecs[j]
	}
	return out, nil
}

// Len returns the number of vectors held in memory.
func (c *Cache) Len() int { return c.mem.Len() }

func (c *Cache) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) load(ctx context.Context, key string) ([]float32, error) {
	var blob []byte
	err := c.db.QueryRowContext(ctx, `SELECT vector FROM embeddings WHERE key = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cached embedding: %w", err)
	}
	return decode(blob)
}

func (c *Cache) store(ctx context.Context, key string, v []float32) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO embeddings (key, model, dims, vector, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`, key, c.model, len(v), encode(v), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("write cached embedding: %w", err)
	}
	return nil
}

func (c *Cache) observe(tier, result string) {
	if c.metrics != nil {
		c.metrics.EmbeddingCache.WithLabelValues(tier, result).Inc()
	}
}

// encode packs v as little-endian float32s.
func encode(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decode(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("corrupt cached embedding: %d bytes", len(blob))
	}
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return v, nil
}
