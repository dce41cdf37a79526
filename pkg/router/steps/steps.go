// Package steps holds the routing step implementations routes can name:
// normalize, composite_key, persist and search_index.
package steps

import (
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/niranworks/compass/pkg/router"
	"github.com/niranworks/compass/pkg/search"
	"github.com/niranworks/compass/pkg/shardkey"
)

// NewDefaultSteps returns the standard step set wired to the given
// dependencies, in the order routes usually run them. A nil database or
// provider leaves the corresponding step in skip mode.
func NewDefaultSteps(db *gorm.DB, builders map[string]*shardkey.Builder, provider search.Provider, logger hclog.Logger) []router.Step {
	return []router.Step{
		NewNormalizeStep(logger),
		NewCompositeKeyStep(builders, logger),
		NewPersistStep(db, logger),
		NewSearchIndexStep(provider, logger),
	}
}
