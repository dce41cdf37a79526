package steps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/forPelevin/gomoji"
	"github.com/hashicorp/go-hclog"
	"github.com/iancoleman/strcase"
	"github.com/mitchellh/mapstructure"

	"github.com/niranworks/compass/pkg/models"
	"github.com/niranworks/compass/pkg/router"
)

// NormalizeStep cleans up a document's field map before key construction:
// canonical lowerCamel field names, trimmed strings, parsed timestamps and
// stripped emoji. Key configurations name fields in canonical form, so
// this step should run before composite_key in a chain.
type NormalizeStep struct {
	logger hclog.Logger
}

// normalizeConfig is the per-route step configuration. HCL carries values
// as strings; the decoder is weakly typed.
type normalizeConfig struct {
	// CanonicalKeys rewrites field names to lowerCamel. On by default.
	CanonicalKeys bool `mapstructure:"canonical_keys"`

	// TrimSpace trims surrounding whitespace from string values. On by
	// default.
	TrimSpace bool `mapstructure:"trim_space"`

	// TimeFields is a comma-separated list of fields to parse as
	// timestamps and rewrite in TimeLayout.
	TimeFields string `mapstructure:"time_fields"`

	// TimeLayout is the output layout for TimeFields (default RFC 3339).
	TimeLayout string `mapstructure:"time_layout"`

	// StripEmoji is a comma-separated list of fields to strip emoji from.
	StripEmoji string `mapstructure:"strip_emoji"`
}

// NewNormalizeStep creates a new normalize step.
func NewNormalizeStep(logger hclog.Logger) *NormalizeStep {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &NormalizeStep{
		logger: logger.Named("normalize-step"),
	}
}

// Name returns the step name.
func (s *NormalizeStep) Name() string {
	return "normalize"
}

// Execute normalizes the update's working field map in place.
func (s *NormalizeStep) Execute(ctx context.Context, update *router.Update, config map[string]interface{}) error {
	cfg, err := s.decodeConfig(config)
	if err != nil {
		return err
	}

	if cfg.CanonicalKeys {
		update.Fields = canonicalizeKeys(update.Fields)
	}

	if cfg.TrimSpace {
		for name, value := range update.Fields {
			if str, ok := value.(string); ok {
				update.Fields[name] = strings.TrimSpace(str)
			}
		}
	}

	for _, name := range splitList(cfg.TimeFields) {
		if err := s.normalizeTime(update, name, cfg.TimeLayout); err != nil {
			return err
		}
	}

	for _, name := range splitList(cfg.StripEmoji) {
		value, ok := update.Field(name)
		if !ok {
			continue
		}
		if str, ok := value.(string); ok {
			update.SetField(name, strings.TrimSpace(gomoji.RemoveEmojis(str)))
		}
	}

	return nil
}

// IsRetryable determines if an error should trigger a retry.
// Normalization is pure computation over the field map; failures are
// permanent for the document.
func (s *NormalizeStep) IsRetryable(err error) bool {
	return false
}

// decodeConfig applies defaults then overlays the route's step config.
func (s *NormalizeStep) decodeConfig(config map[string]interface{}) (normalizeConfig, error) {
	cfg := normalizeConfig{
		CanonicalKeys: true,
		TrimSpace:     true,
		TimeLayout:    time.RFC3339,
	}
	if len(config) == 0 {
		return cfg, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return cfg, fmt.Errorf("failed to build normalize config decoder: %w", err)
	}
	if err := decoder.Decode(config); err != nil {
		return cfg, fmt.Errorf("invalid normalize config: %w", err)
	}
	if cfg.TimeLayout == "" {
		cfg.TimeLayout = time.RFC3339
	}

	return cfg, nil
}

// normalizeTime parses a field with any recognizable date format and
// rewrites it in the configured layout. Absent fields are left alone;
// unparseable values fail the document.
func (s *NormalizeStep) normalizeTime(update *router.Update, name, layout string) error {
	value, ok := update.Field(name)
	if !ok || value == nil {
		return nil
	}

	str, ok := value.(string)
	if !ok {
		// Numeric timestamps pass through dateparse via their string form.
		str = fmt.Sprint(value)
	}
	if strings.TrimSpace(str) == "" {
		return nil
	}

	parsed, err := dateparse.ParseAny(str)
	if err != nil {
		return fmt.Errorf("field %q is not a recognizable time: %w", name, err)
	}

	update.SetField(name, parsed.UTC().Format(layout))
	return nil
}

// canonicalizeKeys rewrites every field name to lowerCamel. On collisions
// the later key wins; collections should not rely on names that differ
// only in separators.
func canonicalizeKeys(fields models.JSONMap) models.JSONMap {
	canonical := make(models.JSONMap, len(fields))
	for name, value := range fields {
		canonical[strcase.ToLowerCamel(name)] = value
	}
	return canonical
}

// splitList splits a comma-separated config value into trimmed names.
func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}
