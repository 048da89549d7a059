package embedding

import (
	"context"
	"log"
	"sync/atomic"
)

// Fallback tries a primary generator and degrades to a secondary when the
// primary fails. The reported model tag always reflects the generator that
// actually produced the last vector, so stored memories carry an accurate
// embedding_model.
type Fallback struct {
	primary   Generator
	secondary Generator

	// usingFallback is 1 while the last Embed went through the secondary.
	usingFallback atomic.Bool
}

// NewFallback wraps primary with secondary as the degradation path. Both
// generators must emit the same dimension.
func NewFallback(primary, secondary Generator) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

// Embed tries the primary generator and falls back on any error except
// empty input or caller cancellation.
func (f *Fallback) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, _, err := f.EmbedTagged(ctx, text)
	return vec, err
}

// EmbedTagged embeds the text and reports which generator produced the
// vector, so the tag cannot go stale between concurrent calls.
func (f *Fallback) EmbedTagged(ctx context.Context, text string) ([]float32, string, error) {
	vec, err := f.primary.Embed(ctx, text)
	if err == nil {
		f.usingFallback.Store(false)
		return vec, f.primary.Model(), nil
	}
	if err == ErrEmptyText || ctx.Err() != nil {
		return nil, "", err
	}

	log.Printf("embedding: primary generator failed, using fallback: %v", err)
	vec, ferr := f.secondary.Embed(ctx, text)
	if ferr != nil {
		return nil, "", ferr
	}
	f.usingFallback.Store(true)
	return vec, f.secondary.Model(), nil
}

// Model returns the tag of the generator used by the most recent Embed.
func (f *Fallback) Model() string {
	if f.usingFallback.Load() {
		return f.secondary.Model()
	}
	return f.primary.Model()
}

// Dimension returns the primary generator's dimension.
func (f *Fallback) Dimension() int { return f.primary.Dimension() }

var _ Generator = (*Fallback)(nil)
