package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/scrypster/xmem/pkg/types"
)

const mongoBackend = "mongodb"

// MongoAdapter speaks the Atlas Data API. Vectors live in a collection with
// an Atlas Vector Search index named "vector_index" over the $vector field.
type MongoAdapter struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client
}

// NewMongoAdapter creates an adapter for one Atlas collection. The source
// URL is the Data API endpoint including the data source and database.
func NewMongoAdapter(source *types.MemorySource) *MongoAdapter {
	return &MongoAdapter{
		baseURL:    strings.TrimRight(source.URL, "/"),
		apiKey:     source.APIKey,
		collection: source.Collection,
		client:     &http.Client{Timeout: defaultTimeout},
	}
}

func (a *MongoAdapter) headers() map[string]string {
	return map[string]string{"api-key": a.apiKey}
}

// Upsert writes the vector document keyed by memory ID.
func (a *MongoAdapter) Upsert(ctx context.Context, id string, vec []float32, metadata map[string]interface{}) error {
	body := map[string]interface{}{
		"collection": a.collection,
		"filter":     map[string]interface{}{"_id": id},
		"update": map[string]interface{}{
			"$set": map[string]interface{}{
				"vector":   vec,
				"metadata": metadata,
			},
		},
		"upsert": true,
	}

	status, data, err := doRequest(ctx, a.client, http.MethodPost, a.baseURL+"/action/updateOne", a.headers(), body)
	if err != nil {
		return classifyNetErr(mongoBackend, "upsert", err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return classifyHTTPStatus(mongoBackend, "upsert", status, string(data))
	}
	return nil
}

// Delete removes the document for a memory ID.
func (a *MongoAdapter) Delete(ctx context.Context, id string) error {
	body := map[string]interface{}{
		"collection": a.collection,
		"filter":     map[string]interface{}{"_id": id},
	}

	status, data, err := doRequest(ctx, a.client, http.MethodPost, a.baseURL+"/action/deleteOne", a.headers(), body)
	if err != nil {
		return classifyNetErr(mongoBackend, "delete", err)
	}
	if status != http.StatusOK {
		return classifyHTTPStatus(mongoBackend, "delete", status, string(data))
	}
	return nil
}

// Query runs a $vectorSearch aggregation.
func (a *MongoAdapter) Query(ctx context.Context, vec []float32, k int) ([]Match, error) {
	body := map[string]interface{}{
		"collection": a.collection,
		"pipeline": []map[string]interface{}{
			{
				"$vectorSearch": map[string]interface{}{
					"index":         "vector_index",
					"path":          "vector",
					"queryVector":   vec,
					"numCandidates": k * 10,
					"limit":         k,
				},
			},
			{
				"$project": map[string]interface{}{
					"_id":   1,
					"score": map[string]interface{}{"$meta": "vectorSearchScore"},
				},
			},
		},
	}

	status, data, err := doRequest(ctx, a.client, http.MethodPost, a.baseURL+"/action/aggregate", a.headers(), body)
	if err != nil {
		return nil, classifyNetErr(mongoBackend, "query", err)
	}
	if status != http.StatusOK {
		return nil, classifyHTTPStatus(mongoBackend, "query", status, string(data))
	}

	var parsed struct {
		Documents []struct {
			ID    string  `json:"_id"`
			Score float64 `json:"score"`
		} `json:"documents"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, permanentErr(mongoBackend, "query", fmt.Errorf("invalid response: %w", err))
	}

	matches := make([]Match, 0, len(parsed.Documents))
	for _, d := range parsed.Documents {
		matches = append(matches, Match{ID: d.ID, Score: d.Score})
	}
	return matches, nil
}

// HealthCheck counts documents in the collection. Atlas exposes no index
// metrics through the Data API, so only the point count is known.
func (a *MongoAdapter) HealthCheck(ctx context.Context) Health {
	body := map[string]interface{}{
		"collection": a.collection,
		"pipeline": []map[string]interface{}{
			{"$count": "total"},
		},
	}

	status, data, err := doRequest(ctx, a.client, http.MethodPost, a.baseURL+"/action/aggregate", a.headers(), body)
	if err != nil {
		return Health{Status: types.BackendDisconnected, Error: err.Error()}
	}
	if status != http.StatusOK {
		return Health{Status: types.BackendDisconnected, Error: fmt.Sprintf("status %d", status)}
	}

	var parsed struct {
		Documents []struct {
			Total int64 `json:"total"`
		} `json:"documents"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Health{Status: types.BackendDegraded, Error: fmt.Sprintf("invalid response: %v", err)}
	}

	health := Health{Status: types.BackendConnected}
	if len(parsed.Documents) > 0 {
		health.Counts.Points = int64Ptr(parsed.Documents[0].Total)
	} else {
		// $count emits no document for an empty collection.
		health.Counts.Points = int64Ptr(0)
	}
	return health
}

var _ Adapter = (*MongoAdapter)(nil)
