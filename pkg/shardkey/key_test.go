package shardkey

import (
	"database/sql/driver"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKey(t *testing.T) {
	t.Run("valid parts", func(t *testing.T) {
		k, err := NewKey("PersonEU", "7")
		require.NoError(t, err)
		assert.Equal(t, "PersonEU", k.Prefix())
		assert.Equal(t, "7", k.Postfix())
		assert.Equal(t, "PersonEU!7", k.String())
		assert.False(t, k.IsZero())
	})

	t.Run("empty prefix", func(t *testing.T) {
		_, err := NewKey("", "7")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("empty postfix", func(t *testing.T) {
		_, err := NewKey("PersonEU", "")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantPrefix  string
		wantPostfix string
		wantErr     bool
	}{
		{
			name:        "simple key",
			input:       "Person!42",
			wantPrefix:  "Person",
			wantPostfix: "42",
		},
		{
			name:        "multi-field prefix",
			input:       "PersonEU!7",
			wantPrefix:  "PersonEU",
			wantPostfix: "7",
		},
		{
			name:        "postfix containing separator splits on first",
			input:       "tenant!order!2024",
			wantPrefix:  "tenant",
			wantPostfix: "order!2024",
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
		{
			name:    "no separator",
			input:   "Person42",
			wantErr: true,
		},
		{
			name:    "empty prefix part",
			input:   "!42",
			wantErr: true,
		},
		{
			name:    "empty postfix part",
			input:   "Person!",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPrefix, k.Prefix())
			assert.Equal(t, tt.wantPostfix, k.Postfix())
			assert.Equal(t, tt.input, k.String())
		})
	}
}

func TestMustParse(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		k := MustParse("Person!42")
		assert.Equal(t, "Person!42", k.String())
	})

	t.Run("panics on invalid", func(t *testing.T) {
		assert.Panics(t, func() {
			MustParse("no-separator")
		})
	})
}

func TestKey_Equal(t *testing.T) {
	a := MustParse("Person!42")
	b := MustParse("Person!42")
	c := MustParse("Person!43")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.True(t, Key{}.Equal(Key{}))
	assert.False(t, a.Equal(Key{}))
}

func TestKey_ZeroValue(t *testing.T) {
	var k Key
	assert.True(t, k.IsZero())
	assert.Equal(t, "", k.String())
}

func TestKey_JSON(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		orig := MustParse("PersonEU!7")

		data, err := json.Marshal(orig)
		require.NoError(t, err)
		assert.Equal(t, `"PersonEU!7"`, string(data))

		var parsed Key
		require.NoError(t, json.Unmarshal(data, &parsed))
		assert.True(t, orig.Equal(parsed))
	})

	t.Run("zero key marshals as null", func(t *testing.T) {
		data, err := json.Marshal(Key{})
		require.NoError(t, err)
		assert.Equal(t, "null", string(data))
	})

	t.Run("null unmarshals as zero key", func(t *testing.T) {
		var k Key
		require.NoError(t, json.Unmarshal([]byte("null"), &k))
		assert.True(t, k.IsZero())
	})

	t.Run("invalid key string", func(t *testing.T) {
		var k Key
		err := json.Unmarshal([]byte(`"no-separator"`), &k)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}

func TestKey_SQL(t *testing.T) {
	t.Run("value and scan round trip", func(t *testing.T) {
		orig := MustParse("Person!42")

		v, err := orig.Value()
		require.NoError(t, err)
		assert.Equal(t, driver.Value("Person!42"), v)

		var scanned Key
		require.NoError(t, scanned.Scan(v))
		assert.True(t, orig.Equal(scanned))
	})

	t.Run("zero key stores as NULL", func(t *testing.T) {
		v, err := Key{}.Value()
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("scan nil", func(t *testing.T) {
		var k Key
		require.NoError(t, k.Scan(nil))
		assert.True(t, k.IsZero())
	})

	t.Run("scan bytes", func(t *testing.T) {
		var k Key
		require.NoError(t, k.Scan([]byte("Person!42")))
		assert.Equal(t, "Person!42", k.String())
	})

	t.Run("scan unsupported type", func(t *testing.T) {
		var k Key
		assert.Error(t, k.Scan(42))
	})
}
