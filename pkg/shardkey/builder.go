package shardkey

import (
	"fmt"
	"strings"
)

// nullLiteral is the display form of an absent or nil field value. A
// present value whose display form equals it is treated as absent, for
// compatibility with existing field payloads.
const nullLiteral = "null"

// FieldSource supplies document field values to Build. The boolean return
// reports whether the field is present at all. Lookups are in-memory; the
// builder performs no I/O.
type FieldSource interface {
	Field(name string) (interface{}, bool)
}

// FieldMap is a map-backed FieldSource for callers holding plain field
// maps.
type FieldMap map[string]interface{}

// Field implements FieldSource.
func (m FieldMap) Field(name string) (interface{}, bool) {
	v, ok := m[name]
	return v, ok
}

// Result is the outcome of one composite key build.
type Result struct {
	// Key is the computed composite key. Zero when Skipped.
	Key Key

	// Overwrite instructs the caller to issue an update-by-key (upsert)
	// downstream instead of a plain insert.
	Overwrite bool

	// Skipped reports that key construction is disabled and the document
	// should be forwarded unchanged.
	Skipped bool
}

// Builder constructs composite keys for documents against one validated
// Config. Builders are immutable and safe for concurrent use.
type Builder struct {
	cfg Config
}

// NewBuilder returns a Builder over the given configuration. The
// configuration is expected to have passed Validate.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg}
}

// Config returns the builder's configuration.
func (b *Builder) Config() Config {
	return b.cfg
}

// Build computes the composite key for one document.
//
// Prefix field values are concatenated in the configuration's canonical
// order with no delimiter between them, followed by the separator and the
// postfix value. Build reads field values only: writing the key into the
// document under CompositeIDField and issuing the overwrite instruction
// downstream are the caller's responsibility.
//
// A missing, nil, empty or whitespace-only value for any contributing
// field rejects the document with ErrInvalidFieldValue and produces no
// partial key. When the configuration is disabled, Build returns a
// skipped Result and never an error.
func (b *Builder) Build(doc FieldSource) (Result, error) {
	if !b.cfg.Enabled {
		return Result{Skipped: true}, nil
	}

	var prefix strings.Builder
	for _, name := range b.cfg.PrefixFields {
		value, err := b.fieldValue(doc, name, "prefix field")
		if err != nil {
			return Result{}, err
		}
		prefix.WriteString(value)
	}

	postfix, err := b.fieldValue(doc, b.cfg.PostfixField, "postfix field")
	if err != nil {
		return Result{}, err
	}

	if prefix.Len() == 0 || postfix == "" {
		fields := make([]string, 0, len(b.cfg.PrefixFields)+1)
		fields = append(fields, b.cfg.PrefixFields...)
		fields = append(fields, b.cfg.PostfixField)
		return Result{}, &Error{
			Op:     "Build",
			Fields: fields,
			Err:    ErrInvalidFieldValue,
			Msg:    "both the prefix and postfix parts must be non-empty",
		}
	}

	key, err := NewKey(prefix.String(), postfix)
	if err != nil {
		return Result{}, err
	}
	return Result{Key: key, Overwrite: b.cfg.OverwriteDupes}, nil
}

// fieldValue reads one contributing field and converts it to its display
// string. The untrimmed value participates in the key; trimming applies
// only to the emptiness check.
func (b *Builder) fieldValue(doc FieldSource, name, role string) (string, error) {
	raw, ok := doc.Field(name)
	value := displayString(raw, ok)
	if value == nullLiteral || strings.TrimSpace(value) == "" {
		return "", &Error{
			Op:     "Build",
			Fields: []string{name},
			Err:    ErrInvalidFieldValue,
			Msg:    role + " has no usable value",
		}
	}
	return value, nil
}

// displayString converts a field value to the string form that
// participates in the composite key. Absent and nil values read as the
// null literal.
func displayString(v interface{}, present bool) string {
	if !present || v == nil {
		return nullLiteral
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
