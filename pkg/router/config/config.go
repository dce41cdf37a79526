// Package config loads and validates the compass configuration file.
//
// The file is HCL. It declares the server surface, the database and broker
// connections, the search backend, the collection schemas with their key
// rules, and the route table. Validation runs once at load time; a config
// that passes produces ready-to-use catalogs and key builders, and a config
// that fails never reaches the routing path.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/niranworks/compass/pkg/database"
	"github.com/niranworks/compass/pkg/router/ruleset"
	"github.com/niranworks/compass/pkg/schema"
	"github.com/niranworks/compass/pkg/shardkey"
)

// Config is the root of the compass configuration file.
type Config struct {
	// LogLevel sets the minimum log level (trace, debug, info, warn, error).
	LogLevel string `hcl:"log_level,optional"`

	// ListenAddr is the API server bind address.
	ListenAddr string `hcl:"listen_addr,optional"`

	// AuthDisabled turns off service-token checks on the API. Local
	// development only.
	AuthDisabled bool `hcl:"auth_disabled,optional"`

	// Database connection. Optional: agents can run stateless, routing
	// events straight from the broker into the search backend.
	Database *DatabaseConfig `hcl:"database,block"`

	// Kafka broker connection for the outbox relay and routing agents.
	Kafka *KafkaConfig `hcl:"kafka,block"`

	// Search backend receiving routed documents.
	Search *SearchConfig `hcl:"search,block"`

	// Collections define the document schemas and their key rules.
	Collections []Collection `hcl:"collection,block"`

	// Routes is the ordered route table. First match wins.
	Routes []ruleset.Route `hcl:"route,block"`

	// Built during Validate.
	catalogs map[string]*schema.Catalog
	builders map[string]*shardkey.Builder
}

// DatabaseConfig mirrors database.Config with HCL tags.
type DatabaseConfig struct {
	Driver   string `hcl:"driver,optional"`
	Host     string `hcl:"host,optional"`
	Port     int    `hcl:"port,optional"`
	User     string `hcl:"user,optional"`
	Password string `hcl:"password,optional"`
	DBName   string `hcl:"dbname,optional"`
	SSLMode  string `hcl:"sslmode,optional"`
	Path     string `hcl:"path,optional"`
	DSN      string `hcl:"dsn,optional"`

	MaxIdleConns   int `hcl:"max_idle_conns,optional"`
	MaxOpenConns   int `hcl:"max_open_conns,optional"`
	ConnectTimeout int `hcl:"connect_timeout_seconds,optional"`
}

// ToDatabase converts to the connection config used by pkg/database.
func (d *DatabaseConfig) ToDatabase() database.Config {
	return database.Config{
		Driver:         d.Driver,
		Host:           d.Host,
		Port:           d.Port,
		User:           d.User,
		Password:       d.Password,
		DBName:         d.DBName,
		SSLMode:        d.SSLMode,
		Path:           d.Path,
		DSN:            d.DSN,
		MaxIdleConns:   d.MaxIdleConns,
		MaxOpenConns:   d.MaxOpenConns,
		ConnectTimeout: time.Duration(d.ConnectTimeout) * time.Second,
	}
}

// KafkaConfig is the broker connection for the relay and routing agents.
type KafkaConfig struct {
	Brokers       []string `hcl:"brokers"`
	Topic         string   `hcl:"topic,optional"`
	ConsumerGroup string   `hcl:"consumer_group,optional"`
}

// SearchConfig selects and configures the search backend.
type SearchConfig struct {
	// Provider is one of "bleve", "algolia", "meilisearch".
	Provider string `hcl:"provider"`

	Bleve       *BleveConfig       `hcl:"bleve,block"`
	Algolia     *AlgoliaConfig     `hcl:"algolia,block"`
	Meilisearch *MeilisearchConfig `hcl:"meilisearch,block"`
}

// BleveConfig configures the embedded Bleve index.
type BleveConfig struct {
	IndexPath string `hcl:"index_path"`
}

// AlgoliaConfig configures the hosted Algolia backend.
type AlgoliaConfig struct {
	AppID        string `hcl:"app_id"`
	WriteAPIKey  string `hcl:"write_api_key"`
	SearchAPIKey string `hcl:"search_api_key,optional"`
	IndexName    string `hcl:"index_name"`
}

// MeilisearchConfig configures a Meilisearch server.
type MeilisearchConfig struct {
	Host      string `hcl:"host"`
	APIKey    string `hcl:"api_key,optional"`
	IndexName string `hcl:"index_name"`
}

// Collection declares one document collection: its field schema and,
// optionally, its composite key rules.
type Collection struct {
	Name   string         `hcl:"name,label"`
	Fields []schema.Field `hcl:"field,block"`

	// Key configures composite key construction for this collection.
	// Collections without a key block route documents unkeyed.
	Key *KeyConfig `hcl:"key,block"`
}

// KeyConfig carries the raw key options for one collection. Fields are
// pointers so an absent option stays absent: the option parser applies
// its own defaults, and writing explicit zero values here would mask them.
type KeyConfig struct {
	CompositeIDField *string `hcl:"composite_id_field,optional"`
	PrefixFields     *string `hcl:"prefix_fields,optional"`
	PostfixField     *string `hcl:"postfix_field,optional"`
	OverwriteDupes   *bool   `hcl:"overwrite_dupes,optional"`
	Enabled          *bool   `hcl:"enabled,optional"`
}

// Options returns the option map for the key parser, containing only the
// options actually present in the file.
func (k *KeyConfig) Options() map[string]interface{} {
	opts := make(map[string]interface{})
	if k.CompositeIDField != nil {
		opts[shardkey.OptionCompositeIDField] = *k.CompositeIDField
	}
	if k.PrefixFields != nil {
		opts[shardkey.OptionPrefixFields] = *k.PrefixFields
	}
	if k.PostfixField != nil {
		opts[shardkey.OptionPostfixField] = *k.PostfixField
	}
	if k.OverwriteDupes != nil {
		opts[shardkey.OptionOverwriteDupes] = *k.OverwriteDupes
	}
	if k.Enabled != nil {
		opts[shardkey.OptionEnabled] = *k.Enabled
	}
	return opts
}

// LoadConfig loads, defaults, and validates a configuration file. The
// returned config has catalogs and key builders ready for every collection.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("configuration file path is required")
	}

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", filename)
	}

	var cfg Config
	if err := hclsimple.DecodeFile(filename, nil, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults fills in defaults for optional top-level settings.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8000"
	}
	if c.Kafka != nil {
		if c.Kafka.Topic == "" {
			c.Kafka.Topic = "compass.documents"
		}
		if c.Kafka.ConsumerGroup == "" {
			c.Kafka.ConsumerGroup = "compass-routing-agents"
		}
	}
}

// Validate checks the whole configuration and builds the per-collection
// catalogs and key builders. All problems are reported together rather
// than one at a time.
//
// Key rules are validated here, once, against the collection schema. A
// misconfigured collection fails startup; it must never surface later as
// per-document errors.
func (c *Config) Validate() error {
	var result *multierror.Error

	if len(c.Collections) == 0 {
		result = multierror.Append(result, fmt.Errorf("at least one collection must be defined"))
	}

	c.catalogs = make(map[string]*schema.Catalog, len(c.Collections))
	c.builders = make(map[string]*shardkey.Builder, len(c.Collections))

	seen := make(map[string]bool, len(c.Collections))
	for _, col := range c.Collections {
		if col.Name == "" {
			result = multierror.Append(result, fmt.Errorf("collection with empty name"))
			continue
		}
		if seen[col.Name] {
			result = multierror.Append(result, fmt.Errorf("duplicate collection name: %s", col.Name))
			continue
		}
		seen[col.Name] = true

		catalog, err := schema.NewCatalog(col.Fields)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("collection %s: %w", col.Name, err))
			continue
		}
		c.catalogs[col.Name] = catalog

		if col.Key == nil {
			continue
		}

		keyCfg, err := shardkey.ParseOptions(col.Key.Options())
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("collection %s: %w", col.Name, err))
			continue
		}
		if err := keyCfg.Validate(catalog); err != nil {
			result = multierror.Append(result, fmt.Errorf("collection %s: %w", col.Name, err))
			continue
		}
		c.builders[col.Name] = shardkey.NewBuilder(keyCfg)
	}

	routes := ruleset.Routes(c.Routes)
	if err := routes.ValidateAll(); err != nil {
		result = multierror.Append(result, err)
	}
	for _, route := range c.Routes {
		if route.Collection == "" {
			continue
		}
		if !seen[route.Collection] {
			result = multierror.Append(result, fmt.Errorf("route %s: unknown collection %q", route.Name, route.Collection))
			continue
		}
		// A route cannot build keys for a collection that has none configured.
		if c.builders[route.Collection] == nil && routeHasStep(route, "composite_key") {
			result = multierror.Append(result, fmt.Errorf(
				"route %s: collection %q has no key block but the route runs composite_key", route.Name, route.Collection))
		}
	}

	if err := c.validateSearch(); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

func (c *Config) validateSearch() error {
	if c.Search == nil {
		return nil
	}

	switch c.Search.Provider {
	case "bleve":
		if c.Search.Bleve == nil || c.Search.Bleve.IndexPath == "" {
			return fmt.Errorf("search provider bleve requires a bleve block with index_path")
		}
	case "algolia":
		if c.Search.Algolia == nil {
			return fmt.Errorf("search provider algolia requires an algolia block")
		}
	case "meilisearch":
		if c.Search.Meilisearch == nil {
			return fmt.Errorf("search provider meilisearch requires a meilisearch block")
		}
	default:
		return fmt.Errorf("unknown search provider: %s", c.Search.Provider)
	}

	return nil
}

func routeHasStep(route ruleset.Route, name string) bool {
	for _, step := range route.Steps {
		if step == name {
			return true
		}
	}
	return false
}

// RouteTable returns the route table in declaration order.
func (c *Config) RouteTable() ruleset.Routes {
	return ruleset.Routes(c.Routes)
}

// Catalog returns the schema catalog for a collection, or nil if the
// collection is not defined. Valid after Validate.
func (c *Config) Catalog(name string) *schema.Catalog {
	return c.catalogs[name]
}

// Builder returns the key builder for a collection, or nil if the
// collection has no key block. Valid after Validate.
func (c *Config) Builder(name string) *shardkey.Builder {
	return c.builders[name]
}

// Catalogs returns every collection catalog keyed by collection name.
func (c *Config) Catalogs() map[string]*schema.Catalog {
	return c.catalogs
}

// Builders returns every key builder keyed by collection name.
func (c *Config) Builders() map[string]*shardkey.Builder {
	return c.builders
}
