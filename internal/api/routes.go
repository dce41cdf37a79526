package api

import (
	"encoding/json"
	"net/http"

	"github.com/niranworks/compass/internal/server"
)

// RouteView is one routing rule as reported by the API.
type RouteView struct {
	Name       string            `json:"name"`
	Collection string            `json:"collection,omitempty"`
	Conditions map[string]string `json:"conditions,omitempty"`
	Steps      []string          `json:"steps"`
}

// RoutesResponse is the ordered routing table. First match wins.
type RoutesResponse struct {
	Routes []RouteView `json:"routes"`
}

// RoutesHandler reports the routing table the service is running with,
// in match order.
func RoutesHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		response := RoutesResponse{Routes: []RouteView{}}
		for _, route := range srv.Routes {
			response.Routes = append(response.Routes, RouteView{
				Name:       route.Name,
				Collection: route.Collection,
				Conditions: route.Conditions,
				Steps:      route.Steps,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(response); err != nil {
			srv.Logger.Error("error encoding response", "error", err)
		}
	})
}
