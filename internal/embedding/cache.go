package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Result is an embedding together with the model that produced it.
type Result struct {
	Vector    []float32
	Model     string
	Dimension int
}

// Hash returns the cache key for text: hex-encoded SHA-256 of the content.
// The same value is stored on memories as content_hash.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// call tracks one in-flight computation for a content hash. Waiters block on
// done and share the outcome.
type call struct {
	done chan struct{}
	res  Result
	err  error
}

// entryKey identifies a cached vector by the model that produced it and
// the content hash. Vectors from different models are not comparable, so a
// model switch (a fallback excursion, say) simply stops matching the other
// model's entries instead of flushing them; they are served again when the
// model switches back.
type entryKey struct {
	model string
	hash  string
}

// Cache memoizes embeddings by (model, content hash). At most one
// computation runs per hash at a time; concurrent requests for the same
// hash wait and share the result, while distinct hashes proceed in
// parallel. Entries never expire.
type Cache struct {
	gen Generator

	mu       sync.Mutex
	entries  map[entryKey]Result
	inflight map[string]*call
}

// NewCache wraps gen with memoization.
func NewCache(gen Generator) *Cache {
	return &Cache{
		gen:      gen,
		entries:  make(map[entryKey]Result),
		inflight: make(map[string]*call),
	}
}

// Embed returns the cached embedding for text, computing it once on miss.
func (c *Cache) Embed(ctx context.Context, text string) (Result, error) {
	if text == "" {
		return Result{}, ErrEmptyText
	}
	hash := Hash(text)

	c.mu.Lock()
	if res, ok := c.entries[entryKey{model: c.gen.Model(), hash: hash}]; ok {
		c.mu.Unlock()
		return res, nil
	}
	if cl, ok := c.inflight[hash]; ok {
		c.mu.Unlock()
		select {
		case <-cl.done:
			return cl.res, cl.err
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	cl := &call{done: make(chan struct{})}
	c.inflight[hash] = cl
	c.mu.Unlock()

	vec, model, err := c.compute(ctx, text)
	res := Result{Vector: vec, Model: model, Dimension: len(vec)}

	c.mu.Lock()
	delete(c.inflight, hash)
	if err == nil {
		c.entries[entryKey{model: model, hash: hash}] = res
	}
	c.mu.Unlock()

	cl.res, cl.err = res, err
	close(cl.done)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (c *Cache) compute(ctx context.Context, text string) ([]float32, string, error) {
	if tg, ok := c.gen.(TaggedGenerator); ok {
		return tg.EmbedTagged(ctx, text)
	}
	vec, err := c.gen.Embed(ctx, text)
	if err != nil {
		return nil, "", err
	}
	return vec, c.gen.Model(), nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
