package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/niranworks/compass/internal/server"
	"github.com/niranworks/compass/pkg/shardkey"
)

// KeyPreviewRequest asks for a dry-run key construction against a
// collection's configured rules.
type KeyPreviewRequest struct {
	Collection string                 `json:"collection"`
	Fields     map[string]interface{} `json:"fields"`
}

// KeyPreviewResponse is the outcome of a dry-run key construction.
// Nothing is persisted or routed on this path.
type KeyPreviewResponse struct {
	Key       string `json:"key,omitempty"`
	Prefix    string `json:"prefix,omitempty"`
	Postfix   string `json:"postfix,omitempty"`
	Overwrite bool   `json:"overwrite"`

	// Skipped reports that key construction is disabled for the
	// collection and the document would pass through unkeyed.
	Skipped bool `json:"skipped"`

	// Rejected reports that this document would be refused by the
	// routing pipeline, with the offending fields and reason.
	Rejected bool     `json:"rejected,omitempty"`
	Fields   []string `json:"fields,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// KeyPreviewHandler runs the composite key builder for a collection and
// field map without touching storage. Operators use it to check what key
// a document would route under before ingesting it.
func KeyPreviewHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req KeyPreviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			srv.Logger.Error("error decoding key preview request", "error", err)
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		if req.Collection == "" {
			http.Error(w, "Collection is required", http.StatusBadRequest)
			return
		}
		if _, ok := srv.Catalogs[req.Collection]; !ok {
			http.Error(w,
				fmt.Sprintf("Unknown collection %q", req.Collection),
				http.StatusNotFound)
			return
		}

		builder := srv.Builders[req.Collection]
		if builder == nil {
			// No key block configured: documents pass through unkeyed.
			writeJSON(w, srv, KeyPreviewResponse{Skipped: true})
			return
		}

		result, err := builder.Build(shardkey.FieldMap(req.Fields))
		if err != nil {
			response := KeyPreviewResponse{Rejected: true, Reason: err.Error()}
			var keyErr *shardkey.Error
			if errors.As(err, &keyErr) {
				response.Fields = keyErr.Fields
			}
			// A rejection is a valid preview outcome, not a handler failure.
			writeJSON(w, srv, response)
			return
		}

		response := KeyPreviewResponse{
			Overwrite: result.Overwrite,
			Skipped:   result.Skipped,
		}
		if !result.Skipped {
			response.Key = result.Key.String()
			response.Prefix = result.Key.Prefix()
			response.Postfix = result.Key.Postfix()
		}

		writeJSON(w, srv, response)
	})
}

// writeJSON encodes v as the 200 response body.
func writeJSON(w http.ResponseWriter, srv server.Server, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		srv.Logger.Error("error encoding response", "error", err)
	}
}
