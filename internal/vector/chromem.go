package vector

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"

	"github.com/scrypster/xmem/pkg/types"
)

const chromemBackend = "chromem"

// ChromemAdapter keeps vectors in an embedded chromem-go collection. No
// network, exact counts, always connected. Used for offline operation and
// as the test double for the HTTP backends.
type ChromemAdapter struct {
	collection *chromem.Collection
}

// NewChromemAdapter creates an in-process collection. When the source URL
// is set it is treated as a persistence directory; otherwise the collection
// lives in memory only.
func NewChromemAdapter(source *types.MemorySource) (*ChromemAdapter, error) {
	var db *chromem.DB
	var err error
	if source.URL != "" {
		db, err = chromem.NewPersistentDB(source.URL, false)
		if err != nil {
			return nil, permanentErr(chromemBackend, "connect", err)
		}
	} else {
		db = chromem.NewDB()
	}

	name := source.Collection
	if name == "" {
		name = "memories"
	}
	// The embedding func is never used: vectors arrive precomputed.
	collection, err := db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, permanentErr(chromemBackend, "connect", err)
	}
	return &ChromemAdapter{collection: collection}, nil
}

// Upsert stores the vector and metadata.
func (a *ChromemAdapter) Upsert(ctx context.Context, id string, vec []float32, metadata map[string]interface{}) error {
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = fmt.Sprint(v)
	}

	content, _ := metadata["content"].(string)
	if content == "" {
		// chromem requires non-empty content per document.
		content = id
	}

	doc := chromem.Document{
		ID:        id,
		Embedding: vec,
		Metadata:  meta,
		Content:   content,
	}
	if err := a.collection.AddDocument(ctx, doc); err != nil {
		return permanentErr(chromemBackend, "upsert", err)
	}
	return nil
}

// Delete removes the document. Missing documents are fine.
func (a *ChromemAdapter) Delete(ctx context.Context, id string) error {
	if err := a.collection.Delete(ctx, nil, nil, id); err != nil {
		return permanentErr(chromemBackend, "delete", err)
	}
	return nil
}

// Query returns the k nearest documents.
func (a *ChromemAdapter) Query(ctx context.Context, vec []float32, k int) ([]Match, error) {
	// chromem errors when asked for more results than documents exist.
	if count := a.collection.Count(); k > count {
		k = count
	}
	if k == 0 {
		return nil, nil
	}

	results, err := a.collection.QueryEmbedding(ctx, vec, k, nil, nil)
	if err != nil {
		return nil, permanentErr(chromemBackend, "query", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{ID: r.ID, Score: float64(r.Similarity)})
	}
	return matches, nil
}

// HealthCheck reports exact counts; an embedded store cannot disconnect.
func (a *ChromemAdapter) HealthCheck(ctx context.Context) Health {
	count := int64(a.collection.Count())
	return Health{
		Status: types.BackendConnected,
		Counts: types.BackendCounts{
			Points:         int64Ptr(count),
			IndexedVectors: int64Ptr(count),
		},
	}
}

var _ Adapter = (*ChromemAdapter)(nil)
