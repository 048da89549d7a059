// Package embedding generates and caches vector embeddings for memory
// content. A model-backed generator is preferred; a deterministic local
// generator keeps ingestion working when no model service is reachable.
package embedding

import (
	"context"
	"errors"
)

// ErrEmptyText is returned when an embedding is requested for empty content.
var ErrEmptyText = errors.New("embedding: text is empty")

// Generator produces fixed-dimension embeddings for text.
type Generator interface {
	// Embed returns an embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model returns the tag of the model that produced the vectors.
	Model() string

	// Dimension returns the vector dimension this generator emits.
	Dimension() int
}

// TaggedGenerator is implemented by generators whose model tag can vary per
// call (e.g. a fallback chain). EmbedTagged returns the vector together with
// the tag of the generator that actually produced it.
type TaggedGenerator interface {
	EmbedTagged(ctx context.Context, text string) ([]float32, string, error)
}
