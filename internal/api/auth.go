package api

import (
	"net/http"
	"strings"

	"github.com/niranworks/compass/internal/server"
	"github.com/niranworks/compass/pkg/models"
)

// TokenAuthMiddleware validates service tokens on API requests.
// Uses Bearer token authentication with the service_tokens table.
//
// Token validation:
//   - Checks Authorization: Bearer <token> header
//   - Validates token exists and is not expired/revoked
//   - Verifies token type is one of the allowed types
//
// Usage:
//
//	handler := TokenAuthMiddleware(srv, CollectionDocumentsHandler(srv),
//	    models.TokenTypeAPI, models.TokenTypeOperator)
func TokenAuthMiddleware(srv server.Server, next http.Handler, allowedTypes ...string) http.Handler {
	if len(allowedTypes) == 0 {
		allowedTypes = []string{models.TokenTypeAPI, models.TokenTypeOperator}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			srv.Logger.Warn("auth: missing authorization header",
				"path", r.URL.Path,
				"method", r.Method,
			)
			http.Error(w, "Missing authorization header", http.StatusUnauthorized)
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			srv.Logger.Warn("auth: invalid authorization header format",
				"path", r.URL.Path,
				"method", r.Method,
			)
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == "" {
			srv.Logger.Warn("auth: empty bearer token",
				"path", r.URL.Path,
				"method", r.Method,
			)
			http.Error(w, "Empty bearer token", http.StatusUnauthorized)
			return
		}

		// Validate token against database
		var serviceToken models.ServiceToken
		if err := serviceToken.GetByToken(srv.DB, token); err != nil {
			srv.Logger.Warn("auth: invalid service token",
				"error", err,
				"path", r.URL.Path,
				"method", r.Method,
			)
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		// Check if token is valid (not expired or revoked)
		if !serviceToken.IsValid() {
			srv.Logger.Warn("auth: token expired or revoked",
				"token_id", serviceToken.ID,
				"path", r.URL.Path,
				"method", r.Method,
			)
			http.Error(w, "Token has expired or been revoked", http.StatusUnauthorized)
			return
		}

		allowed := false
		for _, t := range allowedTypes {
			if serviceToken.TokenType == t {
				allowed = true
				break
			}
		}
		if !allowed {
			srv.Logger.Warn("auth: invalid token type",
				"token_type", serviceToken.TokenType,
				"token_id", serviceToken.ID,
				"path", r.URL.Path,
				"method", r.Method,
			)
			http.Error(w, "Invalid token type for this endpoint", http.StatusForbidden)
			return
		}

		srv.Logger.Debug("auth: authenticated request",
			"token_id", serviceToken.ID,
			"token_type", serviceToken.TokenType,
			"path", r.URL.Path,
			"method", r.Method,
		)

		next.ServeHTTP(w, r)
	})
}
