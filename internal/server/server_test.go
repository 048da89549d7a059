package server

import (
	"context"
	"encoding/json"
	"net/http"
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

func startTestServer(t *testing.T) (string, context.CancelFunc) {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := time.Now().UTC()
	require.NoError(t, store.StoreSource(context.Background(), &types.MemorySource{
		ID: "local", Name: "local", Type: types.SourceChromem,
		Collection: "memories", Enabled: true, SyncInterval: time.Minute,
		CreatedAt: now, UpdatedAt: now,
	}))

	manager := sources.NewManager(store, embedding.DeterministicDimension)
	manager.SetDefault("local")

	cache := embedding.NewCache(embedding.NewDeterministic())
	coordinator := engine.NewCoordinator(store, cache, manager, engine.CoordinatorConfig{
		BaseBackoff: time.Millisecond,
	})

	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Security.SecurityMode = "development"

	ctx, cancel := context.WithCancel(context.Background())
	addr, _, err := Start(ctx, cfg, Deps{
		Coordinator: coordinator,
		Importer:    engine.NewImporter(coordinator, 2),
		Stats:       engine.NewStatsAggregator(store, manager),
		Sources:     manager,
	})
	require.NoError(t, err)
	t.Cleanup(cancel)

	return "http://" + addr, cancel
}

func TestServerEndToEnd(t *testing.T) {
	base, _ := startTestServer(t)
	client := &http.Client{Timeout: 5 * time.Second}

	// Liveness comes up without auth.
	resp, err := client.Get(base + "/api/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	resp.Body.Close()

	// Import two rows, then confirm the stats reflect them.
	body := `{"ownerId":"u1","rows":[{"content":"alpha"},{"content":"beta"}]}`
	resp, err = client.Post(base+"/api/import", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var imported struct {
		Created []string `json:"created"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&imported))
	resp.Body.Close()
	require.Len(t, imported.Created, 2)

	resp, err = client.Get(base + "/api/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snapshot types.StatsSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
	resp.Body.Close()
	assert.Equal(t, 2, snapshot.ActiveMemories)
	assert.Equal(t, types.BackendConnected, snapshot.Backend)

	// Source health resolves through the manager.
	resp, err = client.Get(base + "/api/sources/local/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Deleting one of the imported memories tombstones it.
	req, err := http.NewRequest(http.MethodDelete, base+"/api/memories/"+imported.Created[0], nil)
	require.NoError(t, err)
	resp, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
}

func TestServerShutdown(t *testing.T) {
	base, cancel := startTestServer(t)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(base + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()

	cancel()

	require.Eventually(t, func() bool {
		_, err := client.Get(base + "/api/health")
		return err != nil
	}, 5*time.Second, 50*time.Millisecond)
}
