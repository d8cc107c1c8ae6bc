package registry

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
	"github.com/eeslabs/embedding-core/internal/observability"
	"github.com/eeslabs/embedding-core/internal/storage/migrations"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mgr, err := migrations.NewManager(db)
	require.NoError(t, err)
	require.NoError(t, mgr.Up())

	cache, err := NewLRUCache(64)
	require.NoError(t, err)

	return New(db, cache, observability.NoopLogger{}, nil)
}

func seedProviderAndModel(t *testing.T, r *Registry, modelName string, dimensions int) int64 {
	t.Helper()
	ctx := context.Background()
	providerID, err := r.CreateProvider(ctx, "test provider", "local-http-runtime", "http://localhost:9000", nil, nil)
	require.NoError(t, err)

	meta := []byte(fmt.Sprintf(`{"dimensions": %d}`, dimensions))
	modelID, err := r.CreateModel(ctx, providerID, modelName, nil, meta)
	require.NoError(t, err)
	return modelID
}

func TestCreateAndGetProvider(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	key := "secret"
	id, err := r.CreateProvider(ctx, "openai-prod", "openai", "https://api.openai.com", &key, []byte(`{"region": "us"}`))
	require.NoError(t, err)

	p, err := r.GetProvider(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "openai-prod", p.Name)
	assert.Equal(t, "openai", p.Type)
	assert.True(t, p.APIKey.Valid)
	assert.Equal(t, "secret", p.APIKey.String)
}

func TestGetProvider_NotFound(t *testing.T) {
	r := testRegistry(t)
	_, err := r.GetProvider(context.Background(), 999)
	assert.ErrorIs(t, err, eeserrors.ErrNotFound)
}

func TestListProviders(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	_, err := r.CreateProvider(ctx, "p1", "openai", "http://a", nil, nil)
	require.NoError(t, err)
	_, err = r.CreateProvider(ctx, "p2", "cohere", "http://b", nil, nil)
	require.NoError(t, err)

	ps, err := r.ListProviders(ctx)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, "p1", ps[0].Name)
	assert.Equal(t, "p2", ps[1].Name)
}

func TestDeleteProvider(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	id, err := r.CreateProvider(ctx, "p1", "openai", "http://a", nil, nil)
	require.NoError(t, err)

	deleted, err := r.DeleteProvider(ctx, id)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = r.DeleteProvider(ctx, id)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestCreateAndGetModel(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	providerID, err := r.CreateProvider(ctx, "p1", "openai", "http://a", nil, nil)
	require.NoError(t, err)

	display := "Ada v2"
	id, err := r.CreateModel(ctx, providerID, "text-embedding-ada-002", &display, []byte(`{"dimensions": 1536}`))
	require.NoError(t, err)

	m, err := r.GetModel(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-ada-002", m.Name)
	assert.True(t, m.DisplayName.Valid)
	assert.Equal(t, "Ada v2", m.DisplayName.String)
	assert.False(t, m.IsActive)
}

func TestListModels_ScopedByProvider(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	p1, err := r.CreateProvider(ctx, "p1", "openai", "http://a", nil, nil)
	require.NoError(t, err)
	p2, err := r.CreateProvider(ctx, "p2", "cohere", "http://b", nil, nil)
	require.NoError(t, err)

	_, err = r.CreateModel(ctx, p1, "m1", nil, []byte(`{}`))
	require.NoError(t, err)
	_, err = r.CreateModel(ctx, p2, "m2", nil, []byte(`{}`))
	require.NoError(t, err)

	all, err := r.ListModels(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := r.ListModels(ctx, p1)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "m1", scoped[0].Name)
}

func TestActivateModel_DeactivatesOthers(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	providerID, err := r.CreateProvider(ctx, "p1", "openai", "http://a", nil, nil)
	require.NoError(t, err)

	m1, err := r.CreateModel(ctx, providerID, "m1", nil, []byte(`{}`))
	require.NoError(t, err)
	m2, err := r.CreateModel(ctx, providerID, "m2", nil, []byte(`{}`))
	require.NoError(t, err)

	require.NoError(t, r.ActivateModel(ctx, m1))
	one, err := r.GetModel(ctx, m1)
	require.NoError(t, err)
	assert.True(t, one.IsActive)

	require.NoError(t, r.ActivateModel(ctx, m2))
	one, err = r.GetModel(ctx, m1)
	require.NoError(t, err)
	assert.False(t, one.IsActive, "activating m2 must deactivate m1")

	two, err := r.GetModel(ctx, m2)
	require.NoError(t, err)
	assert.True(t, two.IsActive)
}

func TestActivateModel_UnknownIDReturnsNotFound(t *testing.T) {
	r := testRegistry(t)
	err := r.ActivateModel(context.Background(), 999)
	assert.ErrorIs(t, err, eeserrors.ErrNotFound)
}

func TestDeleteModel(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	providerID, err := r.CreateProvider(ctx, "p1", "openai", "http://a", nil, nil)
	require.NoError(t, err)
	id, err := r.CreateModel(ctx, providerID, "m1", nil, []byte(`{}`))
	require.NoError(t, err)

	deleted, err := r.DeleteModel(ctx, id)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = r.GetModel(ctx, id)
	assert.ErrorIs(t, err, eeserrors.ErrNotFound)
}

func TestModelDimensions_FoundAndCached(t *testing.T) {
	r := testRegistry(t)
	seedProviderAndModel(t, r, "text-embedding-3-small", 1536)

	dims, found, err := r.ModelDimensions(context.Background(), "text-embedding-3-small")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1536, dims)

	// second call should hit the warm cache path and return the same value.
	dims, found, err = r.ModelDimensions(context.Background(), "text-embedding-3-small")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1536, dims)
}

func TestModelDimensions_NotFound(t *testing.T) {
	r := testRegistry(t)
	dims, found, err := r.ModelDimensions(context.Background(), "nonexistent-model")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, dims)
}

func TestModelDimensions_CacheWarmedAfterFirstLookup(t *testing.T) {
	r := testRegistry(t)
	seedProviderAndModel(t, r, "embed-v4", 768)

	_, _, err := r.ModelDimensions(context.Background(), "embed-v4")
	require.NoError(t, err)

	cached, ok := r.cache.Get(context.Background(), dimensionsCacheKey("embed-v4"))
	require.True(t, ok)
	assert.Equal(t, "768", cached)
}

func TestRedisCache_SetAndGet(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cache, err := NewRedisCache(fmt.Sprintf("redis://%s/0", mr.Addr()), observability.NoopLogger{})
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	_, ok := cache.Get(ctx, "dims:missing")
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "dims:text-embedding-3-small", "1536", time.Minute))
	v, ok := cache.Get(ctx, "dims:text-embedding-3-small")
	require.True(t, ok)
	assert.Equal(t, "1536", v)
}

func TestRedisCache_TreatsNilAsMiss(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := &RedisCache{client: client, logger: observability.NoopLogger{}}

	_, ok := cache.Get(context.Background(), "dims:absent")
	assert.False(t, ok)
}
