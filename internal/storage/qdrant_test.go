package storage_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-analyzer/internal/config"
	"resume-analyzer/internal/storage"
)

// fakeQdrant 模拟 Qdrant REST 接口中会话集合相关的部分
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string][]map[string]any
	apiKeys     []string
}

func newFakeQdrant(t *testing.T) (*fakeQdrant, *httptest.Server) {
	f := &fakeQdrant{collections: make(map[string][]map[string]any)}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /collections", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var list []map[string]string
		for name := range f.collections {
			list = append(list, map[string]string{"name": name})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"collections": list}})
	})
	mux.HandleFunc("PUT /collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))
		f.collections[r.PathValue("name")] = nil
		_, _ = w.Write([]byte(`{"result":true,"status":"ok"}`))
	})
	mux.HandleFunc("DELETE /collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		name := r.PathValue("name")
		if _, ok := f.collections[name]; !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":{"error":"Not found"}}`))
			return
		}
		delete(f.collections, name)
		_, _ = w.Write([]byte(`{"result":true}`))
	})
	mux.HandleFunc("PUT /collections/{name}/points", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Points []map[string]any `json:"points"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		defer f.mu.Unlock()
		name := r.PathValue("name")
		f.collections[name] = append(f.collections[name], body.Points...)
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	})
	mux.HandleFunc("POST /collections/{name}/points/search", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		points := f.collections[r.PathValue("name")]
		var hits []map[string]any
		for i, p := range points {
			hits = append(hits, map[string]any{"id": p["id"], "score": 1.0 - float64(i)*0.1, "payload": p["payload"]})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": hits})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func TestQdrant_SessionCollectionLifecycle(t *testing.T) {
	fake, srv := newFakeQdrant(t)
	ctx := context.Background()

	q, err := storage.NewQdrant(&config.QdrantConfig{Endpoint: srv.URL, APIKey: "secret"},
		storage.WithHttpTimeout(5*time.Second))
	require.NoError(t, err)

	require.NoError(t, q.Create(ctx, "resume_abc", 3))
	assert.Equal(t, []string{"secret"}, fake.apiKeys)

	docs := []*schema.Document{
		{ID: "0", Content: "Education: BSc", MetaData: map[string]any{storage.MetaChunkIndex: 0, storage.MetaChunkStart: 0}},
		{ID: "1", Content: "Skills: Go", MetaData: map[string]any{storage.MetaChunkIndex: 1, storage.MetaChunkStart: 800}},
	}
	require.NoError(t, q.Upsert(ctx, "resume_abc", docs, [][]float64{{1, 0, 0}, {0, 1, 0}}))

	hits, err := q.Search(ctx, "resume_abc", []float64{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Education: BSc", hits[0].Content)
	assert.Equal(t, 800, hits[1].MetaData[storage.MetaChunkStart])
	assert.InDelta(t, 1.0, hits[0].Score(), 1e-9)

	names, err := q.List(ctx, "resume_")
	require.NoError(t, err)
	assert.Equal(t, []string{"resume_abc"}, names)

	require.NoError(t, q.Drop(ctx, "resume_abc"))
	// 再次删除不存在的集合视为成功
	require.NoError(t, q.Drop(ctx, "resume_abc"))
}

func TestQdrant_PointIDsAreDeterministic(t *testing.T) {
	fake, srv := newFakeQdrant(t)
	ctx := context.Background()
	q, err := storage.NewQdrant(&config.QdrantConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	docs := []*schema.Document{{ID: "0", Content: "x"}}
	require.NoError(t, q.Create(ctx, "resume_a", 1))
	require.NoError(t, q.Upsert(ctx, "resume_a", docs, [][]float64{{1}}))
	require.NoError(t, q.Upsert(ctx, "resume_a", docs, [][]float64{{1}}))

	points := fake.collections["resume_a"]
	require.Len(t, points, 2)
	assert.Equal(t, points[0]["id"], points[1]["id"])
}

func TestQdrant_UpsertValidatesInput(t *testing.T) {
	_, srv := newFakeQdrant(t)
	q, err := storage.NewQdrant(&config.QdrantConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	err = q.Upsert(context.Background(), "resume_a", []*schema.Document{{ID: "0"}}, nil)
	assert.Error(t, err)
}

func TestQdrant_ServerErrorIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	q, err := storage.NewQdrant(&config.QdrantConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	err = q.Create(context.Background(), "resume_a", 3)
	var statusErr *storage.QdrantStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}
