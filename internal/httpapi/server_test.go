package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eeslabs/embedding-core/internal/observability"
	"github.com/eeslabs/embedding-core/internal/providers"
	"github.com/eeslabs/embedding-core/internal/registry"
	"github.com/eeslabs/embedding-core/internal/repository"
	"github.com/eeslabs/embedding-core/internal/service"
	"github.com/eeslabs/embedding-core/internal/storage"
	"github.com/eeslabs/embedding-core/internal/storage/migrations"
	syncpkg "github.com/eeslabs/embedding-core/internal/sync"
)

// stubProvider is a minimal in-memory Provider, grounded on the Application
// Service's own test double (internal/service/service_test.go), used here
// so httpapi tests never make network calls.
type stubProvider struct {
	tag        string
	dimensions int
	models     []providers.ModelInfo
}

func (p *stubProvider) Tag() string { return p.tag }

func (p *stubProvider) GenerateEmbedding(_ context.Context, req providers.GenerateRequest) (*providers.GenerateResponse, error) {
	model := req.ModelName
	if model == "" {
		model = p.DefaultModel()
	}
	vec := make([]float32, p.dimensions)
	for i := range vec {
		vec[i] = float32(len(req.Text)%7) + float32(i)*0.01
	}
	return &providers.GenerateResponse{Vector: vec, ResolvedModel: model, ProviderTag: p.tag, Dimensions: p.dimensions}, nil
}

func (p *stubProvider) ListModels() []providers.ModelInfo { return p.models }

func (p *stubProvider) IsModelAvailable(modelName string) bool {
	_, ok := p.GetModelInfo(modelName)
	return ok
}

func (p *stubProvider) GetModelInfo(modelName string) (providers.ModelInfo, bool) {
	for _, m := range p.models {
		if m.Name == modelName {
			return m, true
		}
	}
	return providers.ModelInfo{}, false
}

func (p *stubProvider) DefaultModel() string {
	if len(p.models) > 0 {
		return p.models[0].Name
	}
	return "stub-model"
}

type fakeProviderRegistry struct {
	tag string
	p   providers.Provider
}

func (f *fakeProviderRegistry) Get(tag string) (providers.Provider, bool) {
	if tag == f.tag {
		return f.p, true
	}
	return nil, false
}

func (f *fakeProviderRegistry) Default() providers.Provider { return f.p }
func (f *fakeProviderRegistry) Tags() []string              { return []string{f.tag} }

type fakeModelRegistry struct {
	dims map[string]int
}

func (f *fakeModelRegistry) ModelDimensions(_ context.Context, modelName string) (int, bool, error) {
	d, ok := f.dims[modelName]
	return d, ok, nil
}

func testServer(t *testing.T) *Server {
	t.Helper()
	logger := observability.NoopLogger{}

	engine, err := storage.Open(context.Background(), ":memory:", 3, logger, observability.NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	repo := repository.New(engine, logger, observability.NewMetrics(prometheus.NewRegistry()))

	stub := &stubProvider{tag: "stub", dimensions: 3, models: []providers.ModelInfo{{Name: "stub-model", Dimensions: 3}}}
	svc := service.New(&fakeProviderRegistry{tag: "stub", p: stub}, repo, &fakeModelRegistry{dims: map[string]int{"stub-model": 3, "other-model": 3}}, logger, observability.NewMetrics(prometheus.NewRegistry()), 4)

	regDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = regDB.Close() })
	mgr, err := migrations.NewManager(regDB)
	require.NoError(t, err)
	require.NoError(t, mgr.Up())

	cache, err := registry.NewLRUCache(64)
	require.NoError(t, err)
	reg := registry.New(regDB, cache, logger, nil)

	dirs := syncpkg.NewDirectoryStore(regDB)
	jobs := syncpkg.NewJobStore(regDB)
	syncEngine := syncpkg.NewEngine(dirs, jobs, svc, repo, nil, logger, nil)

	return NewServer(svc, repo, reg, dirs, jobs, syncEngine, logger)
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.Routes().ServeHTTP(w, req)
	return w
}

func TestCreateAndGetEmbedding(t *testing.T) {
	s := testServer(t)

	w := doRequest(t, s, http.MethodPost, "/embeddings/", map[string]any{"uri": "doc1", "text": "hello world"})
	require.Equal(t, http.StatusOK, w.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "doc1", created["uri"])
	assert.Equal(t, "stub-model", created["model_name"])

	w = doRequest(t, s, http.MethodGet, "/embeddings/doc1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var fetched map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, "doc1", fetched["URI"])
}

func TestGetEmbeddingByURI_NotFound(t *testing.T) {
	s := testServer(t)
	w := doRequest(t, s, http.MethodGet, "/embeddings/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateEmbedding_RejectsEmptyBody(t *testing.T) {
	s := testServer(t)
	w := doRequest(t, s, http.MethodPost, "/embeddings/", map[string]any{"uri": "", "text": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateBatchEmbeddings(t *testing.T) {
	s := testServer(t)
	body := map[string]any{
		"texts": []map[string]any{
			{"uri": "a", "text": "one"},
			{"uri": "b", "text": "two"},
		},
	}
	w := doRequest(t, s, http.MethodPost, "/embeddings/batch", body)
	require.Equal(t, http.StatusOK, w.Code)

	var res map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, float64(2), res["total"])
	assert.Equal(t, float64(2), res["successful"])
}

func TestDeleteEmbedding_RejectsNonIntegerID(t *testing.T) {
	s := testServer(t)
	w := doRequest(t, s, http.MethodDelete, "/embeddings/not-a-number", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearch(t *testing.T) {
	s := testServer(t)
	doRequest(t, s, http.MethodPost, "/embeddings/", map[string]any{"uri": "doc1", "text": "hello world"})

	w := doRequest(t, s, http.MethodPost, "/search", map[string]any{"query": "hello", "limit": 5})
	require.Equal(t, http.StatusOK, w.Code)

	var res map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "stub-model", res["effective_model"])
}

func TestSearch_RejectsEmptyQuery(t *testing.T) {
	s := testServer(t)
	w := doRequest(t, s, http.MethodPost, "/search", map[string]any{"query": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckCompatibility_SameModelAlwaysCompatible(t *testing.T) {
	s := testServer(t)
	w := doRequest(t, s, http.MethodPost, "/models/compatibility", map[string]any{"sourceModel": "stub-model", "targetModel": "stub-model"})
	require.Equal(t, http.StatusOK, w.Code)

	var res map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, true, res["compatible"])
}

func TestCheckCompatibility_UnregisteredModelReturns404(t *testing.T) {
	s := testServer(t)
	w := doRequest(t, s, http.MethodPost, "/models/compatibility", map[string]any{"sourceModel": "stub-model", "targetModel": "unknown"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProviderAndModelCRUD(t *testing.T) {
	s := testServer(t)

	w := doRequest(t, s, http.MethodPost, "/providers/", map[string]any{"name": "p1", "type": "openai-compatible", "base_url": "http://x"})
	require.Equal(t, http.StatusOK, w.Code)
	var created map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	providerID := int64(created["id"].(float64))

	w = doRequest(t, s, http.MethodPost, "/models/", map[string]any{"provider_id": providerID, "name": "m1", "dimensions": 3})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	modelID := int64(created["id"].(float64))

	w = doRequest(t, s, http.MethodPost, fmt.Sprintf("/models/%d/activate", modelID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, s, http.MethodGet, "/models/", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, s, http.MethodDelete, fmt.Sprintf("/providers/%d", providerID), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterDirectoryAndSync(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, writeFile(root+"/a.md", "hello"))

	s := testServer(t)
	w := doRequest(t, s, http.MethodPost, "/upload-directories/", map[string]any{"name": "docs", "path": root, "model_name": "stub-model"})
	require.Equal(t, http.StatusOK, w.Code)

	var dir map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dir))
	id := dir["ID"].(string)

	w = doRequest(t, s, http.MethodPost, "/upload-directories/"+id+"/sync", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		w := doRequest(t, s, http.MethodGet, "/upload-directories/"+id+"/sync/jobs", nil)
		var res map[string]any
		_ = json.Unmarshal(w.Body.Bytes(), &res)
		items, _ := res["items"].([]any)
		if len(items) == 0 {
			return false
		}
		job := items[0].(map[string]any)
		return job["Status"] == "completed"
	}, 2*time.Second, 10*time.Millisecond)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
