package server

import (
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/niranworks/compass/pkg/router/config"
	"github.com/niranworks/compass/pkg/search"
	"github.com/niranworks/compass/pkg/search/adapters/algolia"
	"github.com/niranworks/compass/pkg/search/adapters/bleve"
	"github.com/niranworks/compass/pkg/search/adapters/meilisearch"
)

// NewSearchProvider builds the search backend named by the configuration.
// A nil provider with a nil error means no search block is configured and
// the indexing step is skipped during routing.
func NewSearchProvider(cfg *config.Config, log hclog.Logger) (search.Provider, error) {
	if cfg == nil || cfg.Search == nil {
		return nil, nil
	}

	switch cfg.Search.Provider {
	case "bleve":
		if cfg.Search.Bleve == nil {
			return nil, fmt.Errorf("search provider is bleve but no bleve block is configured")
		}
		provider, err := bleve.NewAdapter(&bleve.Config{
			IndexPath: cfg.Search.Bleve.IndexPath,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating bleve adapter: %w", err)
		}
		log.Info("initialized search provider",
			"provider", provider.Name(),
			"index_path", cfg.Search.Bleve.IndexPath,
		)
		return provider, nil

	case "algolia":
		if cfg.Search.Algolia == nil {
			return nil, fmt.Errorf("search provider is algolia but no algolia block is configured")
		}
		provider, err := algolia.NewAdapter(&algolia.Config{
			AppID:        cfg.Search.Algolia.AppID,
			WriteAPIKey:  cfg.Search.Algolia.WriteAPIKey,
			SearchAPIKey: cfg.Search.Algolia.SearchAPIKey,
			IndexName:    cfg.Search.Algolia.IndexName,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating algolia adapter: %w", err)
		}
		log.Info("initialized search provider",
			"provider", provider.Name(),
			"index", cfg.Search.Algolia.IndexName,
		)
		return provider, nil

	case "meilisearch":
		if cfg.Search.Meilisearch == nil {
			return nil, fmt.Errorf("search provider is meilisearch but no meilisearch block is configured")
		}
		provider, err := meilisearch.NewAdapter(&meilisearch.Config{
			Host:      cfg.Search.Meilisearch.Host,
			APIKey:    cfg.Search.Meilisearch.APIKey,
			IndexName: cfg.Search.Meilisearch.IndexName,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating meilisearch adapter: %w", err)
		}
		log.Info("initialized search provider",
			"provider", provider.Name(),
			"host", cfg.Search.Meilisearch.Host,
			"index", cfg.Search.Meilisearch.IndexName,
		)
		return provider, nil

	default:
		return nil, fmt.Errorf("unsupported search provider: %q", cfg.Search.Provider)
	}
}
