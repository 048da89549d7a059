package vector

import (
	"fmt"

	"github.com/scrypster/xmem/internal/storage"
	"github.com/scrypster/xmem/pkg/types"
)

// NewAdapter builds the adapter for a source. Dispatch is a closed switch
// over the source type; unknown kinds are rejected at validation time, so
// hitting the default arm means a store/enum mismatch.
func NewAdapter(source *types.MemorySource, dimension int) (Adapter, error) {
	switch source.Type {
	case types.SourceQdrant:
		return NewQdrantAdapter(source), nil
	case types.SourcePinecone:
		return NewPineconeAdapter(source), nil
	case types.SourceMongoDB:
		return NewMongoAdapter(source), nil
	case types.SourceChromaDB:
		return NewChromaAdapter(source), nil
	case types.SourcePgvector:
		return NewPgvectorAdapter(source, dimension)
	case types.SourceChromem:
		return NewChromemAdapter(source)
	default:
		return nil, fmt.Errorf("%w: unsupported source type %q", storage.ErrInvalidInput, source.Type)
	}
}
