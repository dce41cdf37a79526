// Package api implements the HTTP surface of the routing service:
// document ingest, stored-document lookup, key previews, routing table
// introspection, and health/statistics endpoints.
package api

import (
	"net/http"

	"github.com/niranworks/compass/internal/server"
)

// New returns the handler tree for the API. All /api/v1 endpoints
// require a service token unless auth is disabled in the configuration;
// /health is always open so load balancers can probe it.
func New(srv server.Server) http.Handler {
	mux := http.NewServeMux()

	protect := func(next http.Handler) http.Handler {
		if srv.Config != nil && srv.Config.AuthDisabled {
			return next
		}
		return TokenAuthMiddleware(srv, next)
	}

	mux.Handle("/health", HealthHandler(srv))
	mux.Handle("/api/v1/collections/", protect(CollectionDocumentsHandler(srv)))
	mux.Handle("/api/v1/documents/", protect(DocumentHandler(srv)))
	mux.Handle("/api/v1/keys/preview", protect(KeyPreviewHandler(srv)))
	mux.Handle("/api/v1/routes", protect(RoutesHandler(srv)))
	mux.Handle("/api/v1/stats", protect(StatsHandler(srv)))

	return mux
}
