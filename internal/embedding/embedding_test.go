package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicIsReproducible(t *testing.T) {
	gen := NewDeterministic()
	ctx := context.Background()

	a, err := gen.Embed(ctx, "hello world")
	require.NoError(t, err)
	b, err := gen.Embed(ctx, "hello world")
	require.NoError(t, err)

	assert.Equal(t, a, b, "same input must produce bit-identical vectors")
	assert.Len(t, a, DeterministicDimension)

	c, err := gen.Embed(ctx, "hello worlds")
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "different inputs must produce different vectors")
}

func TestDeterministicIsNormalized(t *testing.T) {
	gen := NewDeterministic()
	vec, err := gen.Embed(context.Background(), "normalize me")
	require.NoError(t, err)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestDeterministicRejectsEmpty(t *testing.T) {
	_, err := NewDeterministic().Embed(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestModelGeneratorParsesFlatAndBatch(t *testing.T) {
	for _, body := range []string{
		"[0.1, 0.2, 0.3]",
		"[[0.1, 0.2, 0.3]]",
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			fmt.Fprint(w, body)
		}))

		gen := NewModelGenerator(ModelConfig{URL: srv.URL, Model: "test-model", Dimension: 3})
		vec, err := gen.Embed(context.Background(), "some text")
		require.NoError(t, err)
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
		srv.Close()
	}
}

func TestModelGeneratorRejectsWrongDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[0.1, 0.2]")
	}))
	defer srv.Close()

	gen := NewModelGenerator(ModelConfig{URL: srv.URL, Model: "test-model", Dimension: 3})
	_, err := gen.Embed(context.Background(), "some text")
	assert.ErrorContains(t, err, "expected 3 dimensions")
}

func TestModelGeneratorCircuitOpensAfterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	gen := NewModelGenerator(ModelConfig{URL: srv.URL, Model: "test-model", Dimension: 3, MaxFailures: 2})
	ctx := context.Background()

	// Warm-up plus the first calls trip the breaker.
	for i := 0; i < 3; i++ {
		gen.Embed(ctx, "text")
	}
	_, err := gen.Embed(ctx, "text")
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

// failingGenerator always errors, for exercising the fallback path.
type failingGenerator struct{}

func (failingGenerator) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("model service unavailable")
}
func (failingGenerator) Model() string  { return "broken-model" }
func (failingGenerator) Dimension() int { return 3 }

func TestFallbackTagReflectsStrategy(t *testing.T) {
	ctx := context.Background()

	fb := NewFallback(failingGenerator{}, NewDeterministic())
	vec, model, err := fb.EmbedTagged(ctx, "some text")
	require.NoError(t, err)
	assert.Len(t, vec, DeterministicDimension)
	assert.Equal(t, DeterministicModel, model)
	assert.Equal(t, DeterministicModel, fb.Model())

	// Empty input surfaces directly, no fallback.
	_, _, err = fb.EmbedTagged(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyText)
}

// countingGenerator records how many embeds actually ran.
type countingGenerator struct {
	calls atomic.Int64
	gate  chan struct{}
}

func (g *countingGenerator) Embed(_ context.Context, text string) ([]float32, error) {
	g.calls.Add(1)
	if g.gate != nil {
		<-g.gate
	}
	return []float32{float32(len(text)), 0, 0}, nil
}
func (g *countingGenerator) Model() string  { return "counting-model" }
func (g *countingGenerator) Dimension() int { return 3 }

func TestCacheComputesOncePerHash(t *testing.T) {
	gen := &countingGenerator{}
	cache := NewCache(gen)
	ctx := context.Background()

	a, err := cache.Embed(ctx, "same content")
	require.NoError(t, err)
	b, err := cache.Embed(ctx, "same content")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, int64(1), gen.calls.Load())
	assert.Equal(t, "counting-model", a.Model)
	assert.Equal(t, 1, cache.Len())
}

func TestCacheSingleComputationUnderConcurrency(t *testing.T) {
	gen := &countingGenerator{gate: make(chan struct{})}
	cache := NewCache(gen)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]Result, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := cache.Embed(ctx, "contended content")
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}

	close(gen.gate)
	wg.Wait()

	assert.Equal(t, int64(1), gen.calls.Load(), "only one computation per hash")
	for _, res := range results {
		assert.Equal(t, results[0], res)
	}
}

// switchableGenerator changes its model tag on demand and counts
// computations.
type switchableGenerator struct {
	mu    sync.Mutex
	model string
	calls atomic.Int64
}

func (g *switchableGenerator) Embed(context.Context, string) ([]float32, error) {
	g.calls.Add(1)
	return []float32{1, 2, 3}, nil
}
func (g *switchableGenerator) Model() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.model
}
func (g *switchableGenerator) Dimension() int { return 3 }

func (g *switchableGenerator) setModel(model string) {
	g.mu.Lock()
	g.model = model
	g.mu.Unlock()
}

func TestCacheKeysEntriesByModel(t *testing.T) {
	gen := &switchableGenerator{model: "model-a"}
	cache := NewCache(gen)
	ctx := context.Background()

	_, err := cache.Embed(ctx, "content")
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())

	// A different active model never sees the other model's vector.
	gen.setModel("model-b")
	res, err := cache.Embed(ctx, "content")
	require.NoError(t, err)
	assert.Equal(t, "model-b", res.Model)
	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, int64(2), gen.calls.Load())

	// Switching back serves the retained entry without recomputing, so a
	// transient fallback excursion doesn't cost the whole cache.
	gen.setModel("model-a")
	res, err = cache.Embed(ctx, "content")
	require.NoError(t, err)
	assert.Equal(t, "model-a", res.Model)
	assert.Equal(t, int64(2), gen.calls.Load(), "no recompute after switching back")
}

func TestHashIsStable(t *testing.T) {
	assert.Equal(t, Hash("abc"), Hash("abc"))
	assert.NotEqual(t, Hash("abc"), Hash("abd"))
	assert.Len(t, Hash("abc"), 64)
}
