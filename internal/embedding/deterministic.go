package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// DeterministicModel is the model tag reported by the deterministic generator.
const DeterministicModel = "deterministic-fnv1a-384"

// DeterministicDimension matches the dimension of common sentence-transformer
// models so vectors stay interchangeable with the model-backed generator.
const DeterministicDimension = 384

// Deterministic produces pseudo-embeddings from a rolling FNV-1a hash of the
// input. The output depends only on the text: same input, same vector,
// bit-for-bit, across runs and hosts. No randomness, no clock.
type Deterministic struct{}

// NewDeterministic creates a deterministic generator.
func NewDeterministic() *Deterministic {
	return &Deterministic{}
}

// Embed hashes the text into a 384-dimension L2-normalized vector.
func (d *Deterministic) Embed(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	vec := make([]float32, DeterministicDimension)
	h := fnv.New64a()
	h.Write([]byte(text))
	state := h.Sum64()

	for i := range vec {
		// xorshift64 over the seed gives a full-period stream per input.
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		// Map to [-1, 1).
		vec[i] = float32(int64(state)) / float32(math.MaxInt64)
	}

	normalize(vec)
	return vec, nil
}

// Model returns the deterministic model tag.
func (d *Deterministic) Model() string { return DeterministicModel }

// Dimension returns 384.
func (d *Deterministic) Dimension() int { return DeterministicDimension }

// normalize scales vec to unit length in place. Zero vectors are left as-is.
func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}

var _ Generator = (*Deterministic)(nil)
