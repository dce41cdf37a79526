package api

import (
	"encoding/json"
	"net/http"

	"github.com/niranworks/compass/internal/server"
	"github.com/niranworks/compass/pkg/database"
	"github.com/niranworks/compass/pkg/models"
	"github.com/niranworks/compass/pkg/search"
)

// HealthResponse reports liveness and the state of the dependencies the
// process can check cheaply.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

// HealthHandler reports process liveness. The database check pings the
// pool; the broker is deliberately not probed here because the relay
// retries on its own and a broker blip should not fail readiness.
func HealthHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		response := HealthResponse{Status: "ok"}
		code := http.StatusOK

		if srv.DB != nil {
			response.Database = "ok"
			if sqlDB, err := srv.DB.DB(); err != nil || sqlDB.Ping() != nil {
				response.Status = "degraded"
				response.Database = "unreachable"
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(response); err != nil {
			srv.Logger.Error("error encoding response", "error", err)
		}
	})
}

// StatsResponse reports routing throughput state: how many documents sit
// in each status, the outbox backlog, connection pool pressure, and the
// search index size when the backend reports one.
type StatsResponse struct {
	Documents map[string]int64    `json:"documents"`
	Outbox    map[string]int64    `json:"outbox"`
	Pool      *database.PoolStats `json:"pool,omitempty"`
	Search    *search.Stats       `json:"search,omitempty"`
}

// StatsHandler reports document, outbox, pool and index statistics.
func StatsHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		response := StatsResponse{
			Documents: make(map[string]int64),
			Outbox:    make(map[string]int64),
		}

		docStatuses := []string{
			models.DocumentStatusReceived,
			models.DocumentStatusRouted,
			models.DocumentStatusRejected,
		}
		for _, status := range docStatuses {
			count, err := models.CountDocumentsByStatus(srv.DB, status)
			if err != nil {
				srv.Logger.Error("error counting documents",
					"error", err,
					"status", status,
				)
				http.Error(w, "Error gathering statistics", http.StatusInternalServerError)
				return
			}
			response.Documents[status] = count
		}

		outboxStatuses := []string{
			models.OutboxStatusPending,
			models.OutboxStatusPublished,
			models.OutboxStatusFailed,
		}
		for _, status := range outboxStatuses {
			count, err := models.CountOutboxByStatus(srv.DB, status)
			if err != nil {
				srv.Logger.Error("error counting outbox entries",
					"error", err,
					"status", status,
				)
				http.Error(w, "Error gathering statistics", http.StatusInternalServerError)
				return
			}
			response.Outbox[status] = count
		}

		if pool, err := database.GetPoolStats(srv.DB); err == nil {
			response.Pool = pool
		}

		if srv.SearchProvider != nil {
			if stats, err := srv.SearchProvider.Stats(r.Context()); err == nil {
				response.Search = stats
			} else {
				srv.Logger.Warn("error getting search index stats", "error", err)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(response); err != nil {
			srv.Logger.Error("error encoding response", "error", err)
		}
	})
}
