package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nextlevelbuilder/memhub/internal/store"
	"github.com/nextlevelbuilder/memhub/internal/tracing"
)

// Cached memoizes single-text embeddings keyed by model and text hash.
type Cached struct {
	provider store.EmbeddingProvider
	cache    *lru.Cache[string, []float32]
}

func NewCached(p store.EmbeddingProvider, size int) (*Cached, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &Cached{provider: p, cache: c}, nil
}

func (c *Cached) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.provider.Name() + ":" + c.provider.Model() + ":" + hex.EncodeToString(sum[:])
}

// EmbedQuery returns the vector for text, calling the provider on a miss.
func (c *Cached) EmbedQuery(ctx context.Context, text string) (vec []float32, err error) {
	k := c.key(text)
	if v, ok := c.cache.Get(k); ok {
		return v, nil
	}
	ctx, span := tracing.Start(ctx, tracing.StageEmbedding)
	defer func() { tracing.End(span, err) }()

	vecs, err := c.provider.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding provider returned %d vectors, want 1", len(vecs))
	}
	c.cache.Add(k, vecs[0])
	return vecs[0], nil
}

// Len is the number of cached vectors.
func (c *Cached) Len() int { return c.cache.Len() }
