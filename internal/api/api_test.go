package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/niranworks/compass/internal/server"
	"github.com/niranworks/compass/pkg/models"
	"github.com/niranworks/compass/pkg/router/config"
	"github.com/niranworks/compass/pkg/router/ruleset"
	"github.com/niranworks/compass/pkg/schema"
	"github.com/niranworks/compass/pkg/shardkey"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(models.ModelsToAutoMigrate()...)
	require.NoError(t, err)

	return db
}

// createTestServer builds a server over one keyed "entities" collection.
// Prefix fields are held in canonical order, so documents with
// entityId=42 and entityType=Person key as "42Person!<docId>".
func createTestServer(t *testing.T, db *gorm.DB) server.Server {
	catalog, err := schema.NewCatalog([]schema.Field{
		{Name: "entityType", Type: schema.TypeString, Indexed: true, Required: true},
		{Name: "entityId", Type: schema.TypeInt, Indexed: true, Required: true},
		{Name: "docId", Type: schema.TypeString, Indexed: true, Required: true},
		{Name: "region", Type: schema.TypeString, Indexed: true},
	})
	require.NoError(t, err)

	builder := shardkey.NewBuilder(shardkey.Config{
		CompositeIDField: "compositeIdField",
		PrefixFields:     []string{"entityId", "entityType"},
		PostfixField:     "docId",
		OverwriteDupes:   true,
		Enabled:          true,
	})

	return server.Server{
		DB:       db,
		Logger:   hclog.NewNullLogger(),
		Catalogs: map[string]*schema.Catalog{"entities": catalog},
		Builders: map[string]*shardkey.Builder{"entities": builder},
		Routes: ruleset.Routes{
			{
				Name:       "entities-to-index",
				Collection: "entities",
				Steps:      []string{"normalize", "composite_key", "persist", "search_index"},
			},
			{
				Name:  "catch-all",
				Steps: []string{"search_index"},
			},
		},
	}
}

// decodeJSON unmarshals a recorded response body.
func decodeJSON(w *httptest.ResponseRecorder, v interface{}) error {
	return json.Unmarshal(w.Body.Bytes(), v)
}

// issueTestToken creates a valid service token and returns its plaintext.
func issueTestToken(t *testing.T, db *gorm.DB, tokenType string) string {
	token, err := models.GenerateToken(tokenType)
	require.NoError(t, err)

	st := models.ServiceToken{TokenType: tokenType}
	require.NoError(t, st.Create(db, token))

	return token
}

func TestNew_AuthRequired(t *testing.T) {
	db := setupTestDB(t)
	srv := createTestServer(t, db)
	handler := New(srv)

	t.Run("health is open", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("api endpoints require a token", func(t *testing.T) {
		for _, path := range []string{
			"/api/v1/routes",
			"/api/v1/stats",
		} {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
			assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		}
	})

	t.Run("valid token is accepted", func(t *testing.T) {
		token := issueTestToken(t, db, models.TokenTypeAPI)

		req := httptest.NewRequest("GET", "/api/v1/routes", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestNew_AuthDisabled(t *testing.T) {
	db := setupTestDB(t)
	srv := createTestServer(t, db)
	srv.Config = &config.Config{AuthDisabled: true}
	handler := New(srv)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/routes", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutesHandler(t *testing.T) {
	db := setupTestDB(t)

	t.Run("reports routes in match order", func(t *testing.T) {
		srv := createTestServer(t, db)
		handler := RoutesHandler(srv)

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/routes", nil))

		require.Equal(t, http.StatusOK, w.Code)

		var response RoutesResponse
		require.NoError(t, decodeJSON(w, &response))
		require.Len(t, response.Routes, 2)
		assert.Equal(t, "entities-to-index", response.Routes[0].Name)
		assert.Equal(t, "entities", response.Routes[0].Collection)
		assert.Equal(t,
			[]string{"normalize", "composite_key", "persist", "search_index"},
			response.Routes[0].Steps)
		assert.Equal(t, "catch-all", response.Routes[1].Name)
	})

	t.Run("empty table is an empty list", func(t *testing.T) {
		srv := createTestServer(t, db)
		srv.Routes = nil
		handler := RoutesHandler(srv)

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/routes", nil))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"routes":[]`)
	})

	t.Run("rejects non-GET", func(t *testing.T) {
		srv := createTestServer(t, db)
		handler := RoutesHandler(srv)

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/routes", strings.NewReader("{}")))

		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}
