package server

import (
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/niranworks/compass/pkg/router/config"
	"github.com/niranworks/compass/pkg/router/ruleset"
	"github.com/niranworks/compass/pkg/schema"
	"github.com/niranworks/compass/pkg/search"
	"github.com/niranworks/compass/pkg/shardkey"
)

// Server contains the assembled service dependencies handed to API
// handlers.
type Server struct {
	// Config is the loaded service configuration.
	Config *config.Config

	// DB is the database for the server.
	DB *gorm.DB

	// SearchProvider is the search backend receiving routed documents.
	SearchProvider search.Provider

	// Routes is the ordered routing table. First match wins.
	Routes ruleset.Routes

	// Catalogs holds the field catalog for each collection.
	Catalogs map[string]*schema.Catalog

	// Builders holds the validated key builder for each collection that
	// configures one.
	Builders map[string]*shardkey.Builder

	// Logger is the logger for the server.
	Logger hclog.Logger
}
