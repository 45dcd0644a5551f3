package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptkit/pkg/prompt"
)

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
	gets int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}}
}

func (m *memoryCache) Get(_ context.Context, key string, dest any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	raw, ok := m.data[key]
	if !ok {
		return context.Canceled // any error counts as a miss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func fakeService(t *testing.T) (*httptest.Server, *chi.Mux) {
	t.Helper()
	r := chi.NewRouter()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestClientGetPrompt(t *testing.T) {
	srv, r := fakeService(t)
	r.Get("/api/v1/prompts/{id}", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "test-key", req.Header.Get("X-API-Key"))
		writeJSON(w, prompt.Data{ID: chi.URLParam(req, "id"), Name: "greeting", Type: "text"})
	})

	c := NewClient(srv.URL, WithAPIKey("test-key"))
	data, err := c.GetPrompt(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", data.ID)
	assert.Equal(t, "greeting", data.Name)
}

func TestClientNotFoundMapsToSentinel(t *testing.T) {
	srv, r := fakeService(t)
	r.Get("/api/v1/prompts/{id}", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	})

	c := NewClient(srv.URL)
	_, err := c.GetPrompt(context.Background(), "missing")
	require.ErrorIs(t, err, prompt.ErrNotFound)
}

func TestClientServerErrorIsStatusError(t *testing.T) {
	srv, r := fakeService(t)
	r.Get("/api/v1/prompts/{id}", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	c := NewClient(srv.URL)
	_, err := c.GetPrompt(context.Background(), "p1")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
	assert.Contains(t, statusErr.Body, "boom")
}

func TestClientUpdatePromptSendsFullTuple(t *testing.T) {
	srv, r := fakeService(t)
	var got prompt.UpdateRequest
	r.Patch("/api/v1/prompts/{id}", func(w http.ResponseWriter, req *http.Request) {
		require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
		writeJSON(w, prompt.Data{ID: chi.URLParam(req, "id")})
	})

	name := "renamed"
	desc := "new description"
	c := NewClient(srv.URL)
	_, err := c.UpdatePrompt(context.Background(), "p1", prompt.UpdateRequest{
		Name:        &name,
		Description: &desc,
		Tags:        []string{"a", "b"},
	})
	require.NoError(t, err)
	require.NotNil(t, got.Name)
	assert.Equal(t, "renamed", *got.Name)
	assert.Equal(t, []string{"a", "b"}, got.Tags)
}

func TestClientListVersionsQuery(t *testing.T) {
	srv, r := fakeService(t)
	r.Get("/api/v1/prompts/{id}/versions", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "100", q.Get("size"))
		assert.Equal(t, "fix", q.Get("search"))
		assert.Equal(t, "alice", q.Get("filter.created_by"))
		writeJSON(w, map[string]any{"items": []prompt.VersionData{
			{ID: "v1", Commit: "abc"},
			{ID: "v2", Commit: "def"},
		}})
	})

	c := NewClient(srv.URL)
	items, err := c.ListVersions(context.Background(), "p1", 2, 100, prompt.ListVersionsOptions{
		Search:  "fix",
		Filters: map[string]string{"created_by": "alice"},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "abc", items[0].Commit)
}

func TestClientVersionByCommitReadThroughCache(t *testing.T) {
	srv, r := fakeService(t)
	var hits int
	r.Get("/api/v1/prompts/{id}/versions/{commit}", func(w http.ResponseWriter, req *http.Request) {
		hits++
		writeJSON(w, prompt.VersionData{
			ID:     "v1",
			Commit: chi.URLParam(req, "commit"),
		})
	})

	cache := newMemoryCache()
	c := NewClient(srv.URL, WithCache(cache, time.Minute))

	first, err := c.GetVersionByCommit(context.Background(), "p1", "abc123")
	require.NoError(t, err)
	second, err := c.GetVersionByCommit(context.Background(), "p1", "abc123")
	require.NoError(t, err)

	assert.Equal(t, 1, hits, "second lookup is served from the cache")
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, first.Commit, second.Commit)
	assert.Equal(t, first.ID, second.ID)
}

func TestClientRestoreVersion(t *testing.T) {
	srv, r := fakeService(t)
	r.Post("/api/v1/prompts/{id}/versions/{versionID}/restore", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, prompt.Data{ID: chi.URLParam(req, "id"), VersionID: chi.URLParam(req, "versionID")})
	})

	c := NewClient(srv.URL)
	data, err := c.RestoreVersion(context.Background(), "p1", "v42")
	require.NoError(t, err)
	assert.Equal(t, "v42", data.VersionID)
}

func TestClientDeletePrompt(t *testing.T) {
	srv, r := fakeService(t)
	r.Delete("/api/v1/prompts/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	c := NewClient(srv.URL)
	require.NoError(t, c.DeletePrompt(context.Background(), "p1"))
}
