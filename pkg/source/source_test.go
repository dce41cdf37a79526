package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupported(t *testing.T) {
	assert.True(t, Supported("people/alice.json"))
	assert.True(t, Supported("people/alice.yaml"))
	assert.True(t, Supported("people/alice.yml"))
	assert.True(t, Supported("people/ALICE.JSON"))
	assert.False(t, Supported("people/alice.txt"))
	assert.False(t, Supported("people/alice"))
	assert.False(t, Supported("README.md"))
}

func TestDecodeFields(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		fields, err := DecodeFields("alice.json",
			[]byte(`{"entityType": "Person", "entityId": 42}`))
		require.NoError(t, err)
		assert.Equal(t, "Person", fields["entityType"])
		assert.Equal(t, float64(42), fields["entityId"])
	})

	t.Run("yaml", func(t *testing.T) {
		fields, err := DecodeFields("alice.yaml",
			[]byte("entityType: Person\nentityId: 42\n"))
		require.NoError(t, err)
		assert.Equal(t, "Person", fields["entityType"])
		assert.Equal(t, 42, fields["entityId"])
	})

	t.Run("yml extension", func(t *testing.T) {
		fields, err := DecodeFields("alice.yml", []byte("region: emea\n"))
		require.NoError(t, err)
		assert.Equal(t, "emea", fields["region"])
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := DecodeFields("broken.json", []byte(`{"entityType":`))
		assert.Error(t, err)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := DecodeFields("doc.txt", []byte("entityType: Person"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported document format")
	})

	t.Run("empty document", func(t *testing.T) {
		_, err := DecodeFields("empty.json", []byte(`{}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no fields")
	})
}

func TestCollectionFromPath(t *testing.T) {
	assert.Equal(t, "people", CollectionFromPath("people/alice.json"))
	assert.Equal(t, "people", CollectionFromPath("people/2024/alice.json"))
	assert.Equal(t, "people", CollectionFromPath("/people/alice.json"))
	assert.Equal(t, "", CollectionFromPath("alice.json"))
	assert.Equal(t, "", CollectionFromPath(""))
}
