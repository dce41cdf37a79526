package shardkey

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Option names recognized by ParseOptions. The string options fall back to
// a default literally equal to the option's own name when absent. That
// reads oddly but reproduces long-standing defaulting behavior existing
// deployments depend on, so it is preserved and covered by tests.
const (
	OptionCompositeIDField = "compositeIdField"
	OptionPrefixFields     = "prefixFields"
	OptionPostfixField     = "postfixField"
	OptionOverwriteDupes   = "overwriteDupes"
	OptionEnabled          = "enabled"
)

// Catalog is the schema lookup consulted during configuration validation.
// It is never consulted on the per-document path; values needed at build
// time come from the document itself.
type Catalog interface {
	// Exists reports whether the named field is defined in the schema.
	Exists(field string) bool

	// IsIndexed reports whether the named field is indexed.
	// Overwrite-by-key requires every contributing field to be indexed.
	IsIndexed(field string) bool
}

// Config holds the composite key construction rules for one collection.
//
// Build a Config with ParseOptions, validate it once with Validate, then
// treat it as immutable: a validated Config is shared read-only state and
// any number of concurrent Build calls need no coordination.
type Config struct {
	// CompositeIDField is the destination field for the computed key.
	CompositeIDField string

	// PrefixFields are the fields whose values are concatenated to form
	// the shard prefix, held in canonical ascending order. The order is
	// re-established at configuration time, never per document, so the
	// same field set always yields the same prefix.
	PrefixFields []string

	// PostfixField supplies the unique per-document identifier appended
	// after the separator.
	PostfixField string

	// OverwriteDupes selects update-in-place by key over plain insert
	// when a duplicate composite key appears downstream.
	OverwriteDupes bool

	// Enabled turns key construction on. When false, Build passes
	// documents through untouched.
	Enabled bool
}

// ParseOptions builds a Config from a flat option map.
//
// Recognized keys: compositeIdField (string), prefixFields
// (comma-separated string), postfixField (string), overwriteDupes (bool,
// default true), enabled (bool, default true). The prefix field list is
// split on commas with whitespace trimmed and empty segments dropped, then
// sorted ascending.
func ParseOptions(opts map[string]interface{}) (Config, error) {
	cfg := Config{}

	var err error
	if cfg.CompositeIDField, err = stringOption(opts, OptionCompositeIDField); err != nil {
		return Config{}, err
	}
	if cfg.PostfixField, err = stringOption(opts, OptionPostfixField); err != nil {
		return Config{}, err
	}
	if cfg.OverwriteDupes, err = boolOption(opts, OptionOverwriteDupes, true); err != nil {
		return Config{}, err
	}
	if cfg.Enabled, err = boolOption(opts, OptionEnabled, true); err != nil {
		return Config{}, err
	}

	spec, err := stringOption(opts, OptionPrefixFields)
	if err != nil {
		return Config{}, err
	}
	cfg.PrefixFields = splitSmart(spec)
	sort.Strings(cfg.PrefixFields)

	if len(cfg.PrefixFields) == 0 {
		return Config{}, &Error{
			Op:  "ParseOptions",
			Err: ErrInvalidConfiguration,
			Msg: "at least one prefix field must be configured",
		}
	}
	if err := validation.ValidateStruct(&cfg,
		validation.Field(&cfg.CompositeIDField, validation.Required),
		validation.Field(&cfg.PostfixField, validation.Required),
		validation.Field(&cfg.PrefixFields, validation.Required, validation.Each(validation.Required)),
	); err != nil {
		return Config{}, &Error{
			Op:  "ParseOptions",
			Err: ErrInvalidConfiguration,
			Msg: err.Error(),
		}
	}

	return cfg, nil
}

// Validate checks the configuration against the field catalog. This is the
// one-time startup check and the only step permitted to fail fatally; it
// must complete before any Build call and is never retried.
func (c Config) Validate(cat Catalog) error {
	if len(c.PrefixFields) == 0 {
		return &Error{
			Op:  "Validate",
			Err: ErrInvalidConfiguration,
			Msg: "at least one prefix field must be configured",
		}
	}

	for _, field := range c.PrefixFields {
		if !cat.Exists(field) {
			return &Error{
				Op:     "Validate",
				Fields: []string{field},
				Err:    ErrMissingField,
				Msg:    "prefix field",
			}
		}
	}
	if !cat.Exists(c.PostfixField) {
		return &Error{
			Op:     "Validate",
			Fields: []string{c.PostfixField},
			Err:    ErrMissingField,
			Msg:    "postfix field",
		}
	}
	if !cat.Exists(c.CompositeIDField) {
		return &Error{
			Op:     "Validate",
			Fields: []string{c.CompositeIDField},
			Err:    ErrMissingField,
			Msg:    "composite id field",
		}
	}

	if c.OverwriteDupes {
		var unindexed []string
		for _, field := range c.PrefixFields {
			if !cat.IsIndexed(field) {
				unindexed = append(unindexed, field)
			}
		}
		if !cat.IsIndexed(c.PostfixField) {
			unindexed = append(unindexed, c.PostfixField)
		}
		if len(unindexed) > 0 {
			return &Error{
				Op:     "Validate",
				Fields: unindexed,
				Err:    ErrInvalidConfiguration,
				Msg:    "overwrite-by-key requires every contributing field to be indexed",
			}
		}
	}

	return nil
}

// stringOption reads a string option, falling back to the option's own
// name when absent.
func stringOption(opts map[string]interface{}, name string) (string, error) {
	raw, ok := opts[name]
	if !ok {
		return name, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", &Error{
			Op:  "ParseOptions",
			Err: ErrInvalidConfiguration,
			Msg: fmt.Sprintf("option %q: expected string, got %T", name, raw),
		}
	}
	return s, nil
}

// boolOption reads a bool option, accepting bool values and parseable
// strings.
func boolOption(opts map[string]interface{}, name string, def bool) (bool, error) {
	raw, ok := opts[name]
	if !ok {
		return def, nil
	}
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, &Error{
				Op:  "ParseOptions",
				Err: ErrInvalidConfiguration,
				Msg: fmt.Sprintf("option %q: %q is not a boolean", name, v),
			}
		}
		return b, nil
	default:
		return false, &Error{
			Op:  "ParseOptions",
			Err: ErrInvalidConfiguration,
			Msg: fmt.Sprintf("option %q: expected bool, got %T", name, raw),
		}
	}
}

// splitSmart splits a comma-separated field list, trimming whitespace and
// dropping empty segments.
func splitSmart(s string) []string {
	parts := strings.Split(s, ",")
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			fields = append(fields, p)
		}
	}
	return fields
}
