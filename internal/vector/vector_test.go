package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/xmem/internal/storage"
	"github.com/scrypster/xmem/pkg/types"
)

func qdrantSource(url string) *types.MemorySource {
	return &types.MemorySource{
		ID: "src-1", Name: "test-qdrant", Type: types.SourceQdrant,
		URL: url, APIKey: "test-key", Collection: "memories",
	}
}

func TestQdrantUpsertAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("api-key"))

		switch r.URL.Path {
		case "/collections/memories/points":
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "true", r.URL.Query().Get("wait"))
			fmt.Fprint(w, `{"status":"ok"}`)
		case "/collections/memories/points/search":
			var req map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.EqualValues(t, 5, req["limit"])
			fmt.Fprint(w, `{"result":[{"id":"mem-1","score":0.92},{"id":"mem-2","score":0.71}]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	adapter := NewQdrantAdapter(qdrantSource(srv.URL))
	ctx := context.Background()

	require.NoError(t, adapter.Upsert(ctx, "mem-1", []float32{1, 2, 3}, map[string]interface{}{"user_id": "u1"}))

	matches, err := adapter.Query(ctx, []float32{1, 2, 3}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, Match{ID: "mem-1", Score: 0.92}, matches[0])
}

func TestQdrantHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/memories", r.URL.Path)
		fmt.Fprint(w, `{"result":{"points_count":120,"indexed_vectors_count":118,"segments_count":4,"optimizer_status":"ok"}}`)
	}))
	defer srv.Close()

	health := NewQdrantAdapter(qdrantSource(srv.URL)).HealthCheck(context.Background())
	assert.Equal(t, types.BackendConnected, health.Status)
	require.NotNil(t, health.Counts.Points)
	assert.EqualValues(t, 120, *health.Counts.Points)
	require.NotNil(t, health.Counts.IndexedVectors)
	assert.EqualValues(t, 118, *health.Counts.IndexedVectors)
	assert.Equal(t, "ok", health.Counts.OptimizerStatus)
}

func TestQdrantHealthDegradedOnOptimizerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"points_count":10,"optimizer_status":{"error":"out of disk"}}}`)
	}))
	defer srv.Close()

	health := NewQdrantAdapter(qdrantSource(srv.URL)).HealthCheck(context.Background())
	assert.Equal(t, types.BackendDegraded, health.Status)
	assert.Equal(t, "out of disk", health.Counts.OptimizerStatus)
	assert.Nil(t, health.Counts.Segments, "absent counters stay unknown")
}

func TestQdrantHealthDisconnected(t *testing.T) {
	adapter := NewQdrantAdapter(qdrantSource("http://127.0.0.1:1"))
	health := adapter.HealthCheck(context.Background())
	assert.Equal(t, types.BackendDisconnected, health.Status)
	assert.NotEmpty(t, health.Error)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"server error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
		{"rate limited", http.StatusTooManyRequests, true},
		{"unauthorized", http.StatusUnauthorized, false},
		{"bad request", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			err := NewQdrantAdapter(qdrantSource(srv.URL)).Upsert(
				context.Background(), "mem-1", []float32{1}, nil)
			require.Error(t, err)

			var be *BackendError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tt.transient, be.Transient)
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestIsTransientDefaultsTrue(t *testing.T) {
	assert.True(t, IsTransient(errors.New("some unclassified failure")))
	assert.False(t, IsTransient(permanentErr("x", "op", errors.New("denied"))))
}

func TestPineconeAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pk-123", r.Header.Get("Api-Key"))

		switch r.URL.Path {
		case "/vectors/upsert":
			var req map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "ns", req["namespace"])
			fmt.Fprint(w, `{"upsertedCount":1}`)
		case "/query":
			fmt.Fprint(w, `{"matches":[{"id":"mem-1","score":0.88}]}`)
		case "/vectors/delete":
			fmt.Fprint(w, `{}`)
		case "/describe_index_stats":
			fmt.Fprint(w, `{"totalVectorCount":42}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	adapter := NewPineconeAdapter(&types.MemorySource{
		Type: types.SourcePinecone, URL: srv.URL, APIKey: "pk-123", Collection: "ns",
	})
	ctx := context.Background()

	require.NoError(t, adapter.Upsert(ctx, "mem-1", []float32{1, 2}, nil))

	matches, err := adapter.Query(ctx, []float32{1, 2}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "mem-1", matches[0].ID)

	require.NoError(t, adapter.Delete(ctx, "mem-1"))

	health := adapter.HealthCheck(ctx)
	assert.Equal(t, types.BackendConnected, health.Status)
	require.NotNil(t, health.Counts.Points)
	assert.EqualValues(t, 42, *health.Counts.Points)
	assert.Nil(t, health.Counts.Segments)
}

func TestChromaAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		switch r.URL.Path {
		case "/api/v1/collections/memories/upsert":
			fmt.Fprint(w, `true`)
		case "/api/v1/collections/memories/query":
			fmt.Fprint(w, `{"ids":[["mem-1","mem-2"]],"distances":[[0.1,0.4]]}`)
		case "/api/v1/collections/memories/count":
			fmt.Fprint(w, `7`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	adapter := NewChromaAdapter(&types.MemorySource{
		Type: types.SourceChromaDB, URL: srv.URL, APIKey: "tok", Collection: "memories",
	})
	ctx := context.Background()

	require.NoError(t, adapter.Upsert(ctx, "mem-1", []float32{1}, nil))

	matches, err := adapter.Query(ctx, []float32{1}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.InDelta(t, 0.9, matches[0].Score, 1e-9)

	health := adapter.HealthCheck(ctx)
	assert.Equal(t, types.BackendConnected, health.Status)
	require.NotNil(t, health.Counts.Points)
	assert.EqualValues(t, 7, *health.Counts.Points)
}

func TestMongoAdapterQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "mk", r.Header.Get("api-key"))

		switch r.URL.Path {
		case "/action/updateOne":
			fmt.Fprint(w, `{"matchedCount":0,"upsertedId":"mem-1"}`)
		case "/action/aggregate":
			fmt.Fprint(w, `{"documents":[{"_id":"mem-1","score":0.95}]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	adapter := NewMongoAdapter(&types.MemorySource{
		Type: types.SourceMongoDB, URL: srv.URL, APIKey: "mk", Collection: "memories",
	})
	ctx := context.Background()

	require.NoError(t, adapter.Upsert(ctx, "mem-1", []float32{1}, nil))

	matches, err := adapter.Query(ctx, []float32{1}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "mem-1", matches[0].ID)
}

func TestChromemRoundTrip(t *testing.T) {
	adapter, err := NewChromemAdapter(&types.MemorySource{
		Type: types.SourceChromem, Collection: "test",
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, adapter.Upsert(ctx, "mem-1", []float32{1, 0, 0}, map[string]interface{}{"content": "first"}))
	require.NoError(t, adapter.Upsert(ctx, "mem-2", []float32{0, 1, 0}, map[string]interface{}{"content": "second"}))

	// k beyond the document count is clamped, not an error.
	matches, err := adapter.Query(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "mem-1", matches[0].ID)

	health := adapter.HealthCheck(ctx)
	assert.Equal(t, types.BackendConnected, health.Status)
	require.NotNil(t, health.Counts.Points)
	assert.EqualValues(t, 2, *health.Counts.Points)

	require.NoError(t, adapter.Delete(ctx, "mem-1"))
	health = adapter.HealthCheck(ctx)
	assert.EqualValues(t, 1, *health.Counts.Points)

	// Empty store answers queries with no matches.
	require.NoError(t, adapter.Delete(ctx, "mem-2"))
	matches, err = adapter.Query(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFactoryDispatch(t *testing.T) {
	adapter, err := NewAdapter(&types.MemorySource{Type: types.SourceQdrant, URL: "http://x", Collection: "c"}, 384)
	require.NoError(t, err)
	assert.IsType(t, (*QdrantAdapter)(nil), adapter)

	adapter, err = NewAdapter(&types.MemorySource{Type: types.SourceChromem, Collection: "c"}, 384)
	require.NoError(t, err)
	assert.IsType(t, (*ChromemAdapter)(nil), adapter)

	_, err = NewAdapter(&types.MemorySource{Type: types.SourceType("redis")}, 384)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
