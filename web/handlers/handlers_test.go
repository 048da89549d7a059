package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/xmem/internal/config"
	"github.com/scrypster/xmem/internal/embedding"
	"github.com/scrypster/xmem/internal/engine"
	"github.com/scrypster/xmem/internal/sources"
	"github.com/scrypster/xmem/internal/storage/sqlite"
	"github.com/scrypster/xmem/pkg/types"
)

type testHarness struct {
	store       *sqlite.Store
	manager     *sources.Manager
	coordinator *engine.Coordinator
	importer    *engine.Importer
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := time.Now().UTC()
	source := &types.MemorySource{
		ID: "local", Name: "local", Type: types.SourceChromem,
		Collection: "memories", Enabled: true, SyncInterval: time.Minute,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.StoreSource(context.Background(), source))

	manager := sources.NewManager(store, embedding.DeterministicDimension)
	manager.SetDefault("local")

	cache := embedding.NewCache(embedding.NewDeterministic())
	coordinator := engine.NewCoordinator(store, cache, manager, engine.CoordinatorConfig{
		BaseBackoff: time.Millisecond,
	})

	return &testHarness{
		store:       store,
		manager:     manager,
		coordinator: coordinator,
		importer:    engine.NewImporter(coordinator, 2),
	}
}

func TestImportHandlerJSON(t *testing.T) {
	h := newTestHarness(t)
	handler := NewImportHandler(h.importer)

	body := `{"ownerId":"u1","rows":[{"content":"hello"},{"content":""},{"content":"snippet","type":"code"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ImportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Created, 2)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, 1, resp.Errors[0].Row)
	assert.Equal(t, "empty content", resp.Errors[0].Reason)
}

func TestImportHandlerCSV(t *testing.T) {
	h := newTestHarness(t)
	handler := NewImportHandler(h.importer)

	csv := "content,title\nhello,Greeting\n"
	req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader(csv))
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("X-Owner-ID", "u1")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ImportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Created, 1)

	mem, err := h.store.Get(context.Background(), resp.Created[0])
	require.NoError(t, err)
	assert.Equal(t, "Greeting", mem.Metadata["title"])
}

func TestImportHandlerRequiresOwner(t *testing.T) {
	h := newTestHarness(t)
	handler := NewImportHandler(h.importer)

	req := httptest.NewRequest(http.MethodPost, "/api/import",
		strings.NewReader(`{"rows":[{"content":"x"}]}`))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncHandler(t *testing.T) {
	h := newTestHarness(t)
	handler := NewSyncHandler(h.coordinator)
	ctx := context.Background()

	mem, err := engine.Normalize(map[string]interface{}{"content": "sync me"}, "u1")
	require.NoError(t, err)
	require.NoError(t, h.store.Store(ctx, mem))

	req := httptest.NewRequest(http.MethodPost, "/api/memories/"+mem.ID+"/sync", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result engine.SyncResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, types.SyncSynced, result.Status)

	// Unknown memory is a 404.
	req = httptest.NewRequest(http.MethodPost, "/api/memories/ghost/sync", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncHandlerDelete(t *testing.T) {
	h := newTestHarness(t)
	handler := NewSyncHandler(h.coordinator)
	ctx := context.Background()

	mem, err := engine.Normalize(map[string]interface{}{"content": "delete me"}, "u1")
	require.NoError(t, err)
	_, err = h.coordinator.CreateAndSync(ctx, mem)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/api/memories/"+mem.ID, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	stored, err := h.store.Get(ctx, mem.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted())
}

func TestStatsHandler(t *testing.T) {
	h := newTestHarness(t)
	handler := NewStatsHandler(engine.NewStatsAggregator(h.store, h.manager))

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot types.StatsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, 0, snapshot.ActiveMemories)
	assert.Equal(t, types.BackendConnected, snapshot.Backend)
}

func TestSourceHealthHandler(t *testing.T) {
	h := newTestHarness(t)
	handler := NewHealthHandler(h.manager)

	req := httptest.NewRequest(http.MethodGet, "/api/sources/local/health", nil)
	rec := httptest.NewRecorder()
	handler.SourceHealth(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "connected", body.Status)

	req = httptest.NewRequest(http.MethodGet, "/api/sources/ghost/health", nil)
	rec = httptest.NewRecorder()
	handler.SourceHealth(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequireAuth(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	devCfg := &config.Config{}
	devCfg.Security.SecurityMode = "development"
	prodCfg := &config.Config{}
	prodCfg.Security.SecurityMode = "production"
	prodCfg.Security.APIToken = "secret"

	// Development mode passes without a token.
	rec := httptest.NewRecorder()
	RequireAuth(next, devCfg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Production mode rejects missing and wrong tokens.
	rec = httptest.NewRecorder()
	RequireAuth(next, prodCfg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	RequireAuth(next, prodCfg).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	RequireAuth(next, prodCfg).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	limited := RateLimitMiddleware(next, NewRateLimiter(1, 1))

	rec := httptest.NewRecorder()
	limited.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	limited.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

// mockClient lets hub tests run without a real websocket connection.
type mockClient struct {
	send chan []byte
}

func (m *mockClient) getSendChannel() chan []byte { return m.send }
func (m *mockClient) close()                      {}

func TestWebSocketHubUnregisterAfterStop(t *testing.T) {
	hub := NewWebSocketHub()
	go hub.Run()

	client := &mockClient{send: make(chan []byte, 4)}
	hub.Register(client)

	hub.Stop()

	// Pump goroutines defer Unregister during teardown; after Stop the
	// hub loop is gone and the call must return instead of blocking.
	done := make(chan struct{})
	go func() {
		hub.Unregister(client)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Unregister blocked after Stop")
	}
}

func TestWebSocketHubBroadcastsSyncEvents(t *testing.T) {
	hub := NewWebSocketHub()
	go hub.Run()
	defer hub.Stop()

	client := &mockClient{send: make(chan []byte, 4)}
	hub.Register(client)

	hub.BroadcastSyncComplete("mem:abc", types.SyncSynced)

	select {
	case data := <-client.send:
		var event SyncEvent
		require.NoError(t, json.Unmarshal(data, &event))
		assert.Equal(t, "sync_complete", event.Type)
		assert.Equal(t, "mem:abc", event.MemoryID)
		assert.Equal(t, types.SyncSynced, event.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("no broadcast received")
	}
}
