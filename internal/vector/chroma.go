package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/scrypster/xmem/pkg/types"
)

const chromaBackend = "chromadb"

// ChromaAdapter speaks the ChromaDB v1 HTTP API against a named collection.
type ChromaAdapter struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client
}

// NewChromaAdapter creates an adapter for one ChromaDB collection.
func NewChromaAdapter(source *types.MemorySource) *ChromaAdapter {
	return &ChromaAdapter{
		baseURL:    strings.TrimRight(source.URL, "/"),
		apiKey:     source.APIKey,
		collection: source.Collection,
		client:     &http.Client{Timeout: defaultTimeout},
	}
}

func (a *ChromaAdapter) headers() map[string]string {
	if a.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + a.apiKey}
}

func (a *ChromaAdapter) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/api/v1/collections/%s/%s", a.baseURL, url.PathEscape(a.collection), suffix)
}

// Upsert writes the embedding and metadata.
func (a *ChromaAdapter) Upsert(ctx context.Context, id string, vec []float32, metadata map[string]interface{}) error {
	body := map[string]interface{}{
		"ids":        []string{id},
		"embeddings": [][]float32{vec},
		"metadatas":  []map[string]interface{}{metadata},
	}

	status, data, err := doRequest(ctx, a.client, http.MethodPost, a.collectionURL("upsert"), a.headers(), body)
	if err != nil {
		return classifyNetErr(chromaBackend, "upsert", err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return classifyHTTPStatus(chromaBackend, "upsert", status, string(data))
	}
	return nil
}

// Delete removes the embedding by ID.
func (a *ChromaAdapter) Delete(ctx context.Context, id string) error {
	body := map[string]interface{}{"ids": []string{id}}

	status, data, err := doRequest(ctx, a.client, http.MethodPost, a.collectionURL("delete"), a.headers(), body)
	if err != nil {
		return classifyNetErr(chromaBackend, "delete", err)
	}
	if status != http.StatusOK && status != http.StatusNotFound {
		return classifyHTTPStatus(chromaBackend, "delete", status, string(data))
	}
	return nil
}

// Query returns the k nearest embeddings. ChromaDB reports distances;
// scores are returned as 1-distance so higher stays closer.
func (a *ChromaAdapter) Query(ctx context.Context, vec []float32, k int) ([]Match, error) {
	body := map[string]interface{}{
		"query_embeddings": [][]float32{vec},
		"n_results":        k,
	}

	status, data, err := doRequest(ctx, a.client, http.MethodPost, a.collectionURL("query"), a.headers(), body)
	if err != nil {
		return nil, classifyNetErr(chromaBackend, "query", err)
	}
	if status != http.StatusOK {
		return nil, classifyHTTPStatus(chromaBackend, "query", status, string(data))
	}

	var parsed struct {
		IDs       [][]string  `json:"ids"`
		Distances [][]float64 `json:"distances"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, permanentErr(chromaBackend, "query", fmt.Errorf("invalid response: %w", err))
	}
	if len(parsed.IDs) == 0 {
		return nil, nil
	}

	matches := make([]Match, 0, len(parsed.IDs[0]))
	for i, id := range parsed.IDs[0] {
		score := 0.0
		if len(parsed.Distances) > 0 && i < len(parsed.Distances[0]) {
			score = 1 - parsed.Distances[0][i]
		}
		matches = append(matches, Match{ID: id, Score: score})
	}
	return matches, nil
}

// HealthCheck counts embeddings in the collection.
func (a *ChromaAdapter) HealthCheck(ctx context.Context) Health {
	status, data, err := doRequest(ctx, a.client, http.MethodGet, a.collectionURL("count"), a.headers(), nil)
	if err != nil {
		return Health{Status: types.BackendDisconnected, Error: err.Error()}
	}
	if status != http.StatusOK {
		return Health{Status: types.BackendDisconnected, Error: fmt.Sprintf("status %d", status)}
	}

	var count int64
	if err := json.Unmarshal(data, &count); err != nil {
		return Health{Status: types.BackendDegraded, Error: fmt.Sprintf("invalid count: %v", err)}
	}

	return Health{
		Status: types.BackendConnected,
		Counts: types.BackendCounts{Points: int64Ptr(count)},
	}
}

var _ Adapter = (*ChromaAdapter)(nil)
