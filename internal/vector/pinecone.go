package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/scrypster/xmem/pkg/types"
)

const pineconeBackend = "pinecone"

// PineconeAdapter speaks the Pinecone index HTTP API. The source URL is the
// index endpoint; the collection maps to a namespace.
type PineconeAdapter struct {
	baseURL   string
	apiKey    string
	namespace string
	client    *http.Client
}

// NewPineconeAdapter creates an adapter for one Pinecone index.
func NewPineconeAdapter(source *types.MemorySource) *PineconeAdapter {
	return &PineconeAdapter{
		baseURL:   strings.TrimRight(source.URL, "/"),
		apiKey:    source.APIKey,
		namespace: source.Collection,
		client:    &http.Client{Timeout: defaultTimeout},
	}
}

func (a *PineconeAdapter) headers() map[string]string {
	return map[string]string{"Api-Key": a.apiKey}
}

// Upsert writes the vector into the namespace.
func (a *PineconeAdapter) Upsert(ctx context.Context, id string, vec []float32, metadata map[string]interface{}) error {
	body := map[string]interface{}{
		"vectors": []map[string]interface{}{
			{"id": id, "values": vec, "metadata": metadata},
		},
		"namespace": a.namespace,
	}

	status, data, err := doRequest(ctx, a.client, http.MethodPost, a.baseURL+"/vectors/upsert", a.headers(), body)
	if err != nil {
		return classifyNetErr(pineconeBackend, "upsert", err)
	}
	if status != http.StatusOK {
		return classifyHTTPStatus(pineconeBackend, "upsert", status, string(data))
	}
	return nil
}

// Delete removes the vector by ID.
func (a *PineconeAdapter) Delete(ctx context.Context, id string) error {
	body := map[string]interface{}{
		"ids":       []string{id},
		"namespace": a.namespace,
	}

	status, data, err := doRequest(ctx, a.client, http.MethodPost, a.baseURL+"/vectors/delete", a.headers(), body)
	if err != nil {
		return classifyNetErr(pineconeBackend, "delete", err)
	}
	if status != http.StatusOK && status != http.StatusNotFound {
		return classifyHTTPStatus(pineconeBackend, "delete", status, string(data))
	}
	return nil
}

// Query returns the k nearest vectors in the namespace.
func (a *PineconeAdapter) Query(ctx context.Context, vec []float32, k int) ([]Match, error) {
	body := map[string]interface{}{
		"vector":    vec,
		"topK":      k,
		"namespace": a.namespace,
	}

	status, data, err := doRequest(ctx, a.client, http.MethodPost, a.baseURL+"/query", a.headers(), body)
	if err != nil {
		return nil, classifyNetErr(pineconeBackend, "query", err)
	}
	if status != http.StatusOK {
		return nil, classifyHTTPStatus(pineconeBackend, "query", status, string(data))
	}

	var parsed struct {
		Matches []struct {
			ID    string  `json:"id"`
			Score float64 `json:"score"`
		} `json:"matches"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, permanentErr(pineconeBackend, "query", fmt.Errorf("invalid response: %w", err))
	}

	matches := make([]Match, 0, len(parsed.Matches))
	for _, m := range parsed.Matches {
		matches = append(matches, Match{ID: m.ID, Score: m.Score})
	}
	return matches, nil
}

// HealthCheck calls describe_index_stats. Pinecone reports a total vector
// count; the other counters stay unknown.
func (a *PineconeAdapter) HealthCheck(ctx context.Context) Health {
	status, data, err := doRequest(ctx, a.client, http.MethodPost, a.baseURL+"/describe_index_stats", a.headers(), map[string]interface{}{})
	if err != nil {
		return Health{Status: types.BackendDisconnected, Error: err.Error()}
	}
	if status != http.StatusOK {
		return Health{Status: types.BackendDisconnected, Error: fmt.Sprintf("status %d", status)}
	}

	var parsed struct {
		TotalVectorCount *int64 `json:"totalVectorCount"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Health{Status: types.BackendDegraded, Error: fmt.Sprintf("invalid stats: %v", err)}
	}

	return Health{
		Status: types.BackendConnected,
		Counts: types.BackendCounts{Points: parsed.TotalVectorCount},
	}
}

var _ Adapter = (*PineconeAdapter)(nil)
