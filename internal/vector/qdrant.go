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

const qdrantBackend = "qdrant"

// QdrantAdapter speaks the Qdrant HTTP API. Writes use wait=true so an
// acknowledged upsert is durable before the sync status flips to synced.
type QdrantAdapter struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client
}

// NewQdrantAdapter creates an adapter for one Qdrant collection.
func NewQdrantAdapter(source *types.MemorySource) *QdrantAdapter {
	return &QdrantAdapter{
		baseURL:    strings.TrimRight(source.URL, "/"),
		apiKey:     source.APIKey,
		collection: source.Collection,
		client:     &http.Client{Timeout: defaultTimeout},
	}
}

func (a *QdrantAdapter) headers() map[string]string {
	if a.apiKey == "" {
		return nil
	}
	return map[string]string{"api-key": a.apiKey}
}

// Upsert writes the point with wait=true.
func (a *QdrantAdapter) Upsert(ctx context.Context, id string, vec []float32, metadata map[string]interface{}) error {
	endpoint := fmt.Sprintf("%s/collections/%s/points?wait=true", a.baseURL, url.PathEscape(a.collection))
	body := map[string]interface{}{
		"points": []map[string]interface{}{
			{"id": id, "vector": vec, "payload": metadata},
		},
	}

	status, data, err := doRequest(ctx, a.client, http.MethodPut, endpoint, a.headers(), body)
	if err != nil {
		return classifyNetErr(qdrantBackend, "upsert", err)
	}
	if status != http.StatusOK {
		return classifyHTTPStatus(qdrantBackend, "upsert", status, string(data))
	}
	return nil
}

// Delete removes the point with wait=true. Missing points are fine.
func (a *QdrantAdapter) Delete(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", a.baseURL, url.PathEscape(a.collection))
	body := map[string]interface{}{"points": []string{id}}

	status, data, err := doRequest(ctx, a.client, http.MethodPost, endpoint, a.headers(), body)
	if err != nil {
		return classifyNetErr(qdrantBackend, "delete", err)
	}
	if status != http.StatusOK && status != http.StatusNotFound {
		return classifyHTTPStatus(qdrantBackend, "delete", status, string(data))
	}
	return nil
}

// Query runs a similarity search returning the k nearest points.
func (a *QdrantAdapter) Query(ctx context.Context, vec []float32, k int) ([]Match, error) {
	endpoint := fmt.Sprintf("%s/collections/%s/points/search", a.baseURL, url.PathEscape(a.collection))
	body := map[string]interface{}{
		"vector": vec,
		"limit":  k,
	}

	status, data, err := doRequest(ctx, a.client, http.MethodPost, endpoint, a.headers(), body)
	if err != nil {
		return nil, classifyNetErr(qdrantBackend, "query", err)
	}
	if status != http.StatusOK {
		return nil, classifyHTTPStatus(qdrantBackend, "query", status, string(data))
	}

	var parsed struct {
		Result []struct {
			ID    interface{} `json:"id"`
			Score float64     `json:"score"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, permanentErr(qdrantBackend, "query", fmt.Errorf("invalid response: %w", err))
	}

	matches := make([]Match, 0, len(parsed.Result))
	for _, r := range parsed.Result {
		matches = append(matches, Match{ID: fmt.Sprint(r.ID), Score: r.Score})
	}
	return matches, nil
}

// HealthCheck reads collection info. Qdrant exposes point, indexed-vector
// and segment counts plus an optimizer status; a non-ok optimizer degrades
// the backend without disconnecting it.
func (a *QdrantAdapter) HealthCheck(ctx context.Context) Health {
	endpoint := fmt.Sprintf("%s/collections/%s", a.baseURL, url.PathEscape(a.collection))

	status, data, err := doRequest(ctx, a.client, http.MethodGet, endpoint, a.headers(), nil)
	if err != nil {
		return Health{Status: types.BackendDisconnected, Error: err.Error()}
	}
	if status != http.StatusOK {
		return Health{Status: types.BackendDisconnected, Error: fmt.Sprintf("status %d", status)}
	}

	var parsed struct {
		Result struct {
			PointsCount         *int64 `json:"points_count"`
			IndexedVectorsCount *int64 `json:"indexed_vectors_count"`
			SegmentsCount       *int64 `json:"segments_count"`
			OptimizerStatus     any    `json:"optimizer_status"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Health{Status: types.BackendDegraded, Error: fmt.Sprintf("invalid collection info: %v", err)}
	}

	// optimizer_status is "ok" or {"error": "..."}.
	optimizer := ""
	healthStatus := types.BackendConnected
	switch v := parsed.Result.OptimizerStatus.(type) {
	case string:
		optimizer = v
		if v != "ok" {
			healthStatus = types.BackendDegraded
		}
	case map[string]interface{}:
		if msg, ok := v["error"].(string); ok {
			optimizer = msg
			healthStatus = types.BackendDegraded
		}
	}

	return Health{
		Status: healthStatus,
		Counts: types.BackendCounts{
			Points:          parsed.Result.PointsCount,
			IndexedVectors:  parsed.Result.IndexedVectorsCount,
			Segments:        parsed.Result.SegmentsCount,
			OptimizerStatus: optimizer,
		},
	}
}

var _ Adapter = (*QdrantAdapter)(nil)
