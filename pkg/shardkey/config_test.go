package shardkey

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCatalog maps field names to whether they are indexed. A field is
// known to the catalog if it has an entry at all.
type fakeCatalog map[string]bool

func (c fakeCatalog) Exists(field string) bool {
	_, ok := c[field]
	return ok
}

func (c fakeCatalog) IsIndexed(field string) bool {
	return c[field]
}

func TestParseOptions(t *testing.T) {
	t.Run("explicit options", func(t *testing.T) {
		cfg, err := ParseOptions(map[string]interface{}{
			OptionCompositeIDField: "id",
			OptionPrefixFields:     "entityType",
			OptionPostfixField:     "entityId",
			OptionOverwriteDupes:   true,
			OptionEnabled:          true,
		})
		require.NoError(t, err)
		assert.Equal(t, "id", cfg.CompositeIDField)
		assert.Equal(t, []string{"entityType"}, cfg.PrefixFields)
		assert.Equal(t, "entityId", cfg.PostfixField)
		assert.True(t, cfg.OverwriteDupes)
		assert.True(t, cfg.Enabled)
	})

	t.Run("absent options fall back to their own names", func(t *testing.T) {
		cfg, err := ParseOptions(map[string]interface{}{})
		require.NoError(t, err)
		assert.Equal(t, "compositeIdField", cfg.CompositeIDField)
		assert.Equal(t, []string{"prefixFields"}, cfg.PrefixFields)
		assert.Equal(t, "postfixField", cfg.PostfixField)
		assert.True(t, cfg.OverwriteDupes)
		assert.True(t, cfg.Enabled)
	})

	t.Run("prefix list splits on commas and trims", func(t *testing.T) {
		cfg, err := ParseOptions(map[string]interface{}{
			OptionPrefixFields: " entityType , region ",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"entityType", "region"}, cfg.PrefixFields)
	})

	t.Run("prefix list is sorted by field name", func(t *testing.T) {
		cfg, err := ParseOptions(map[string]interface{}{
			OptionPrefixFields: "region,entityType",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"entityType", "region"}, cfg.PrefixFields)
	})

	t.Run("empty entries are dropped", func(t *testing.T) {
		cfg, err := ParseOptions(map[string]interface{}{
			OptionPrefixFields: "entityType,,region,",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"entityType", "region"}, cfg.PrefixFields)
	})

	t.Run("prefix list of only separators is invalid", func(t *testing.T) {
		_, err := ParseOptions(map[string]interface{}{
			OptionPrefixFields: " , ,",
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})

	t.Run("bool options accept strings", func(t *testing.T) {
		cfg, err := ParseOptions(map[string]interface{}{
			OptionOverwriteDupes: "false",
			OptionEnabled:        "true",
		})
		require.NoError(t, err)
		assert.False(t, cfg.OverwriteDupes)
		assert.True(t, cfg.Enabled)
	})

	t.Run("bool option rejects garbage", func(t *testing.T) {
		_, err := ParseOptions(map[string]interface{}{
			OptionOverwriteDupes: "sometimes",
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})

	t.Run("string option rejects non-string value", func(t *testing.T) {
		_, err := ParseOptions(map[string]interface{}{
			OptionPostfixField: 42,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})
}

func TestConfig_Validate(t *testing.T) {
	catalog := fakeCatalog{
		"id":         true,
		"entityType": true,
		"entityId":   true,
		"region":     true,
		"notes":      false,
	}

	valid := Config{
		CompositeIDField: "id",
		PrefixFields:     []string{"entityType", "region"},
		PostfixField:     "entityId",
		OverwriteDupes:   true,
		Enabled:          true,
	}

	t.Run("valid configuration", func(t *testing.T) {
		assert.NoError(t, valid.Validate(catalog))
	})

	t.Run("unknown prefix field", func(t *testing.T) {
		cfg := valid
		cfg.PrefixFields = []string{"entityType", "shardRegion"}

		err := cfg.Validate(catalog)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingField)

		var serr *Error
		require.True(t, errors.As(err, &serr))
		assert.Equal(t, []string{"shardRegion"}, serr.Fields)
	})

	t.Run("unknown postfix field", func(t *testing.T) {
		cfg := valid
		cfg.PostfixField = "entityNumber"

		err := cfg.Validate(catalog)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingField)

		var serr *Error
		require.True(t, errors.As(err, &serr))
		assert.Equal(t, []string{"entityNumber"}, serr.Fields)
	})

	t.Run("unknown composite id field", func(t *testing.T) {
		cfg := valid
		cfg.CompositeIDField = "documentKey"

		err := cfg.Validate(catalog)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingField)
	})

	t.Run("empty prefix list", func(t *testing.T) {
		cfg := valid
		cfg.PrefixFields = nil

		err := cfg.Validate(catalog)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})

	t.Run("overwrite requires indexed fields", func(t *testing.T) {
		cfg := valid
		cfg.PostfixField = "notes"

		err := cfg.Validate(catalog)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfiguration)

		var serr *Error
		require.True(t, errors.As(err, &serr))
		assert.Equal(t, []string{"notes"}, serr.Fields)
	})

	t.Run("unindexed fields are fine without overwrite", func(t *testing.T) {
		cfg := valid
		cfg.PostfixField = "notes"
		cfg.OverwriteDupes = false

		assert.NoError(t, cfg.Validate(catalog))
	})

	t.Run("missing field reported before indexing", func(t *testing.T) {
		cfg := valid
		cfg.PrefixFields = []string{"shardRegion"}
		cfg.PostfixField = "notes"

		err := cfg.Validate(catalog)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingField)
	})
}
