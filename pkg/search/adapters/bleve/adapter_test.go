package bleve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niranworks/compass/pkg/search"
)

func newTestAdapter(t *testing.T) *Adapter {
	adapter, err := NewAdapter(&Config{IndexPath: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })
	return adapter
}

func testDocument(objectID, shardKey string) *search.Document {
	return &search.Document{
		ObjectID:   objectID,
		UUID:       "c3c4f280-3d5a-4a5c-a3dc-2a9a51981d67",
		Collection: "entities",
		ShardKey:   shardKey,
		Fields: map[string]interface{}{
			"entityType": "Person",
			"entityId":   "42",
		},
	}
}

func TestNewAdapter(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		adapter := newTestAdapter(t)
		assert.Equal(t, "bleve", adapter.Name())
	})

	t.Run("missing index path", func(t *testing.T) {
		_, err := NewAdapter(&Config{})
		assert.Error(t, err)
	})
}

func TestAdapter_IndexAndGet(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	doc := testDocument("doc-1", "Person!42")
	require.NoError(t, adapter.Index(ctx, doc))

	got, err := adapter.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", got.ObjectID)
	assert.Equal(t, "entities", got.Collection)
	assert.Equal(t, "Person!42", got.ShardKey)
	assert.Equal(t, "Person", got.Fields["entityType"])
	assert.NotZero(t, got.IndexedAt)
}

func TestAdapter_Index_RequiresObjectID(t *testing.T) {
	adapter := newTestAdapter(t)

	err := adapter.Index(context.Background(), &search.Document{})
	require.Error(t, err)
	assert.ErrorIs(t, err, search.ErrIndexingFailed)
}

func TestAdapter_Upsert_ReplacesByKey(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	first := testDocument("", "Person!42")
	require.NoError(t, adapter.Upsert(ctx, first))

	// Second write with the same shard key replaces the first object.
	second := testDocument("", "Person!42")
	second.Fields["entityType"] = "Employee"
	require.NoError(t, adapter.Upsert(ctx, second))

	stats, err := adapter.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Documents)

	got, err := adapter.Get(ctx, "Person!42")
	require.NoError(t, err)
	assert.Equal(t, "Employee", got.Fields["entityType"])
}

func TestAdapter_Upsert_RequiresShardKey(t *testing.T) {
	adapter := newTestAdapter(t)

	err := adapter.Upsert(context.Background(), testDocument("doc-1", ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, search.ErrIndexingFailed)
}

func TestAdapter_Index_Accumulates(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.Index(ctx, testDocument("doc-1", "")))
	require.NoError(t, adapter.Index(ctx, testDocument("doc-2", "")))

	stats, err := adapter.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.Documents)
}

func TestAdapter_Delete(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.Upsert(ctx, testDocument("", "Person!42")))
	require.NoError(t, adapter.Delete(ctx, "Person!42"))

	_, err := adapter.Get(ctx, "Person!42")
	require.Error(t, err)
	assert.ErrorIs(t, err, search.ErrNotFound)
}

func TestAdapter_ImplementsProvider(t *testing.T) {
	var _ search.Provider = (*Adapter)(nil)
}
