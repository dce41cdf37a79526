package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestField_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		f := Field{Name: "entityType", Type: TypeString, Indexed: true}
		assert.NoError(t, f.Validate())
	})

	t.Run("missing name", func(t *testing.T) {
		f := Field{Type: TypeString}
		assert.Error(t, f.Validate())
	})

	t.Run("unknown type", func(t *testing.T) {
		f := Field{Name: "entityType", Type: "varchar"}
		assert.Error(t, f.Validate())
	})

	t.Run("empty type is allowed", func(t *testing.T) {
		f := Field{Name: "entityType"}
		assert.NoError(t, f.Validate())
	})
}

func TestNewCatalog(t *testing.T) {
	t.Run("valid fields", func(t *testing.T) {
		cat, err := NewCatalog([]Field{
			{Name: "entityType", Type: TypeString, Indexed: true},
			{Name: "entityId", Type: TypeInt, Indexed: true},
			{Name: "notes", Type: TypeText},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, cat.Len())
	})

	t.Run("duplicate names", func(t *testing.T) {
		_, err := NewCatalog([]Field{
			{Name: "entityType"},
			{Name: "entityType"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "declared more than once")
	})

	t.Run("collects all problems", func(t *testing.T) {
		_, err := NewCatalog([]Field{
			{Name: "", Type: TypeString},
			{Name: "region"},
			{Name: "region"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "2 errors occurred")
	})

	t.Run("empty type defaults to string", func(t *testing.T) {
		cat, err := NewCatalog([]Field{{Name: "entityType"}})
		require.NoError(t, err)

		f, ok := cat.Lookup("entityType")
		require.True(t, ok)
		assert.Equal(t, TypeString, f.Type)
	})
}

func TestCatalog_Queries(t *testing.T) {
	cat, err := NewCatalog([]Field{
		{Name: "entityType", Indexed: true},
		{Name: "notes"},
	})
	require.NoError(t, err)

	assert.True(t, cat.Exists("entityType"))
	assert.True(t, cat.Exists("notes"))
	assert.False(t, cat.Exists("shardRegion"))

	assert.True(t, cat.IsIndexed("entityType"))
	assert.False(t, cat.IsIndexed("notes"))
	assert.False(t, cat.IsIndexed("shardRegion"))
}

func TestCatalog_Fields(t *testing.T) {
	cat, err := NewCatalog([]Field{
		{Name: "region"},
		{Name: "entityType"},
	})
	require.NoError(t, err)

	fields := cat.Fields()
	require.Len(t, fields, 2)
	assert.Equal(t, "entityType", fields[0].Name)
	assert.Equal(t, "region", fields[1].Name)
}
