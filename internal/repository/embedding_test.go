package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
	"github.com/eeslabs/embedding-core/internal/observability"
	"github.com/eeslabs/embedding-core/internal/storage"
)

func testRepository(t *testing.T) *Repository {
	t.Helper()
	engine, err := storage.Open(context.Background(), ":memory:", 3, observability.NoopLogger{}, observability.NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return New(engine, observability.NoopLogger{}, observability.NewMetrics(prometheus.NewRegistry()))
}

func TestSave_InsertsNewRow(t *testing.T) {
	r := testRepository(t)
	ctx := context.Background()

	id, err := r.Save(ctx, "doc1", "hello", "model-a", []float32{1, 2, 3}, nil, nil)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	e, err := r.FindByURI(ctx, "doc1", "model-a")
	require.NoError(t, err)
	assert.Equal(t, "hello", e.Text)
	assert.Equal(t, []float32{1, 2, 3}, e.Vector)
}

func TestSave_UpsertOnURI_ReplacesTextAndAdvancesUpdatedAt(t *testing.T) {
	r := testRepository(t)
	ctx := context.Background()

	id1, err := r.Save(ctx, "doc1", "first version", "model-a", []float32{1, 0, 0}, nil, nil)
	require.NoError(t, err)

	first, err := r.FindByURI(ctx, "doc1", "model-a")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	id2, err := r.Save(ctx, "doc1", "second version", "model-a", []float32{0, 1, 0}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "upsert must reuse the existing row id")

	second, err := r.FindByURI(ctx, "doc1", "model-a")
	require.NoError(t, err)
	assert.Equal(t, "second version", second.Text)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt), "upsert must advance updated_at")

	page, err := r.FindAll(ctx, FindAllParams{ModelName: "model-a", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total, "upsert must leave exactly one row")
}

// TestSave_ConcurrentUpsertSameURI_SerializesToOneRow exercises Save's
// BEGIN IMMEDIATE transaction under concurrent callers racing to upsert the
// same (uri, model_name): every call must succeed (none may surface
// idx_embeddings_uri_model's unique constraint as a DatabaseError) and
// exactly one row must remain, per spec.md §5's last-writer-wins semantics.
func TestSave_ConcurrentUpsertSameURI_SerializesToOneRow(t *testing.T) {
	r := testRepository(t)
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Save(ctx, "doc1", "version", "model-a", []float32{float32(i), 0, 0}, nil, nil)
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}

	page, err := r.FindAll(ctx, FindAllParams{ModelName: "model-a", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total, "concurrent upserts to the same uri/model must leave exactly one row")
}

func TestFindByURI_NotFound(t *testing.T) {
	r := testRepository(t)
	_, err := r.FindByURI(context.Background(), "missing", "model-a")
	require.ErrorIs(t, err, eeserrors.ErrNotFound)
}

func TestFindAll_PaginatesAndFiltersBySubstring(t *testing.T) {
	r := testRepository(t)
	ctx := context.Background()

	for _, uri := range []string{"docs/a.md", "docs/b.md", "notes/c.md"} {
		_, err := r.Save(ctx, uri, "text", "model-a", []float32{1, 2, 3}, nil, nil)
		require.NoError(t, err)
	}

	page, err := r.FindAll(ctx, FindAllParams{URI: "docs/", ModelName: "model-a", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Items, 2)
	assert.False(t, page.HasNext)
	assert.False(t, page.HasPrev)
}

func TestFindAll_ClampsLimit(t *testing.T) {
	r := testRepository(t)
	page, err := r.FindAll(context.Background(), FindAllParams{Page: 1, Limit: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Limit)

	page, err = r.FindAll(context.Background(), FindAllParams{Page: 1, Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, 100, page.Limit)
}

func TestDeleteByID(t *testing.T) {
	r := testRepository(t)
	ctx := context.Background()

	id, err := r.Save(ctx, "doc1", "hello", "model-a", []float32{1, 2, 3}, nil, nil)
	require.NoError(t, err)

	deleted, err := r.DeleteByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, deleted)

	deletedAgain, err := r.DeleteByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, deletedAgain)
}

func TestUpdateByID(t *testing.T) {
	r := testRepository(t)
	ctx := context.Background()

	id, err := r.Save(ctx, "doc1", "hello", "model-a", []float32{1, 2, 3}, nil, nil)
	require.NoError(t, err)

	updated, err := r.UpdateByID(ctx, id, "updated text", []float32{4, 5, 6})
	require.NoError(t, err)
	assert.True(t, updated)

	e, err := r.FindByURI(ctx, "doc1", "model-a")
	require.NoError(t, err)
	assert.Equal(t, "updated text", e.Text)
	assert.Equal(t, []float32{4, 5, 6}, e.Vector)
}
