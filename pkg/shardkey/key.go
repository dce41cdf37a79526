package shardkey

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Separator divides the routing prefix from the per-document postfix in a
// composite key. The downstream sharding layer hashes everything before
// the first occurrence, so it must appear exactly once and unescaped.
const Separator = "!"

// Key is an immutable composite routing key of the form
// "<prefix>!<postfix>". The prefix selects the index partition; the
// postfix carries the document's unique identifier within it.
//
// The zero Key is usable and renders as the empty string.
type Key struct {
	prefix  string
	postfix string
}

// NewKey builds a Key from its two parts. Both parts must be non-empty.
func NewKey(prefix, postfix string) (Key, error) {
	if prefix == "" || postfix == "" {
		return Key{}, &Error{
			Op:  "NewKey",
			Err: ErrInvalidKey,
			Msg: "both key parts must be non-empty",
		}
	}
	return Key{prefix: prefix, postfix: postfix}, nil
}

// Parse parses a composite key string. Everything before the first
// separator is the routing prefix, matching how the sharding layer routes;
// the remainder is the postfix.
func Parse(s string) (Key, error) {
	if s == "" {
		return Key{}, &Error{
			Op:  "Parse",
			Err: ErrInvalidKey,
			Msg: "composite key string cannot be empty",
		}
	}
	i := strings.Index(s, Separator)
	if i < 0 {
		return Key{}, &Error{
			Op:  "Parse",
			Err: ErrInvalidKey,
			Msg: fmt.Sprintf("missing %q separator in %q", Separator, s),
		}
	}
	return NewKey(s[:i], s[i+len(Separator):])
}

// MustParse parses a composite key string and panics on failure. Intended
// for tests and fixtures.
func MustParse(s string) Key {
	k, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return k
}

// Prefix returns the routing prefix.
func (k Key) Prefix() string {
	return k.prefix
}

// Postfix returns the per-document postfix.
func (k Key) Postfix() string {
	return k.postfix
}

// IsZero returns true if this is the zero Key.
func (k Key) IsZero() bool {
	return k.prefix == "" && k.postfix == ""
}

// Equal returns true if two Keys are equal.
func (k Key) Equal(other Key) bool {
	return k.prefix == other.prefix && k.postfix == other.postfix
}

// String returns the canonical "<prefix>!<postfix>" form, or the empty
// string for the zero Key.
func (k Key) String() string {
	if k.IsZero() {
		return ""
	}
	return k.prefix + Separator + k.postfix
}

// MarshalJSON implements json.Marshaler. The zero Key serializes as null.
func (k Key) MarshalJSON() ([]byte, error) {
	if k.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(k.String())
}

// UnmarshalJSON implements json.Unmarshaler. Accepts null and the empty
// string as the zero Key.
func (k *Key) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid composite key JSON: %w", err)
	}
	if s == nil || *s == "" {
		*k = Key{}
		return nil
	}
	parsed, err := Parse(*s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Value implements driver.Valuer for database storage. The zero Key stores
// as NULL.
func (k Key) Value() (driver.Value, error) {
	if k.IsZero() {
		return nil, nil
	}
	return k.String(), nil
}

// Scan implements sql.Scanner.
func (k *Key) Scan(value interface{}) error {
	if value == nil {
		*k = Key{}
		return nil
	}

	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into shardkey.Key", value)
	}

	if s == "" {
		*k = Key{}
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
