package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	"github.com/niranworks/compass/internal/server"
	"github.com/niranworks/compass/pkg/models"
	"github.com/niranworks/compass/pkg/router/publisher"
	"github.com/niranworks/compass/pkg/search"
)

// IngestRequest is the body of a document ingest call.
type IngestRequest struct {
	// UUID optionally names an existing document to update. A new
	// identity is minted when absent.
	UUID string `json:"uuid,omitempty"`

	// Fields is the document field map.
	Fields map[string]interface{} `json:"fields"`
}

// IngestResponse acknowledges an accepted document. Routing happens
// asynchronously after the response is sent.
type IngestResponse struct {
	UUID       string `json:"uuid"`
	Collection string `json:"collection"`
	Status     string `json:"status"`

	// Event is the routing event queued for this body, or empty when the
	// body was an exact duplicate and nothing was queued.
	Event string `json:"event,omitempty"`
}

// CollectionDocumentsHandler serves a collection's documents: POST
// ingests a document body, GET lists the most recently stored ones.
func CollectionDocumentsHandler(srv server.Server) http.Handler {
	pub := publisher.New(srv.DB, srv.Logger)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		collection, err := parseCollectionFromURL(r.URL.Path)
		if err != nil {
			http.Error(w, "Invalid URL path", http.StatusBadRequest)
			return
		}

		switch r.Method {
		case http.MethodPost:
			ingestDocument(w, r, srv, pub, collection)
		case http.MethodGet:
			listDocuments(w, r, srv, collection)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

// ingestDocument accepts a document into a collection. The document and
// its routing event are stored in one transaction, so a 202 means the
// document will be routed, not that it has been.
func ingestDocument(w http.ResponseWriter, r *http.Request, srv server.Server, pub *publisher.Publisher, collection string) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		srv.Logger.Error("error decoding ingest request",
			"error", err,
			"collection", collection,
		)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	docUUID, err := req.validate(srv, collection)
	if err != nil {
		http.Error(w,
			fmt.Sprintf("Invalid ingest request: %v", err),
			http.StatusBadRequest)
		return
	}

	result, err := pub.Ingest(r.Context(), collection, docUUID, req.Fields, "api")
	if err != nil {
		srv.Logger.Error("error ingesting document",
			"error", err,
			"collection", collection,
		)
		http.Error(w, "Error ingesting document", http.StatusInternalServerError)
		return
	}

	response := IngestResponse{
		UUID:       result.Document.UUID.String(),
		Collection: collection,
		Status:     result.Document.Status,
		Event:      result.Event,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		srv.Logger.Error("error encoding response", "error", err)
	}
}

// ListDocumentsResponse is a page of a collection's most recent
// documents.
type ListDocumentsResponse struct {
	Collection string             `json:"collection"`
	Documents  []DocumentResponse `json:"documents"`
}

// listDocuments returns the most recently stored documents of a
// collection, newest first.
func listDocuments(w http.ResponseWriter, r *http.Request, srv server.Server, collection string) {
	if _, ok := srv.Catalogs[collection]; !ok {
		http.Error(w,
			fmt.Sprintf("Unknown collection %q", collection),
			http.StatusNotFound)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 100 {
			http.Error(w, "Invalid limit (want 1-100)", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	docs, err := models.FindDocumentsByCollection(srv.DB, collection, limit)
	if err != nil {
		srv.Logger.Error("error listing documents",
			"error", err,
			"collection", collection,
		)
		http.Error(w, "Error listing documents", http.StatusInternalServerError)
		return
	}

	response := ListDocumentsResponse{
		Collection: collection,
		Documents:  make([]DocumentResponse, 0, len(docs)),
	}
	for _, doc := range docs {
		response.Documents = append(response.Documents, DocumentResponse{
			UUID:         doc.UUID.String(),
			Collection:   doc.Collection,
			Fields:       doc.Fields,
			ShardKey:     doc.ShardKey,
			Status:       doc.Status,
			RejectReason: doc.RejectReason,
			CreatedAt:    doc.CreatedAt,
			UpdatedAt:    doc.UpdatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		srv.Logger.Error("error encoding response", "error", err)
	}
}

// validate accumulates every problem with the request so the caller sees
// all of them in a single response.
func (req *IngestRequest) validate(srv server.Server, collection string) (uuid.UUID, error) {
	var result *multierror.Error

	docUUID := uuid.Nil
	if req.UUID != "" {
		parsed, err := uuid.Parse(req.UUID)
		if err != nil {
			result = multierror.Append(result,
				fmt.Errorf("invalid document UUID: %w", err))
		} else {
			docUUID = parsed
		}
	}

	if len(req.Fields) == 0 {
		result = multierror.Append(result, fmt.Errorf("fields are required"))
	}

	if _, ok := srv.Catalogs[collection]; !ok {
		result = multierror.Append(result,
			fmt.Errorf("unknown collection %q", collection))
	}

	return docUUID, result.ErrorOrNil()
}

// DocumentResponse is the stored state of a document.
type DocumentResponse struct {
	UUID         string                 `json:"uuid"`
	Collection   string                 `json:"collection"`
	Fields       map[string]interface{} `json:"fields"`
	ShardKey     string                 `json:"shardKey,omitempty"`
	Status       string                 `json:"status"`
	RejectReason string                 `json:"rejectReason,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`

	// Index reports search index agreement, present with ?verify=1.
	Index *IndexVerification `json:"index,omitempty"`
}

// IndexVerification reports whether the search index copy of a document
// agrees with the database row.
type IndexVerification struct {
	Present    bool     `json:"present"`
	Consistent bool     `json:"consistent"`
	Problems   []string `json:"problems,omitempty"`
}

// DocumentHandler serves stored documents. GET returns the document with
// its shard key and routing status; with ?verify=1 the search index copy
// is fetched and compared against the database row. DELETE removes the
// document and queues a deletion event so consumers clear the index.
func DocumentHandler(srv server.Server) http.Handler {
	pub := publisher.New(srv.DB, srv.Logger)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := parseResourceIDFromURL(r.URL.Path, "documents")
		if err != nil {
			http.Error(w, "Invalid URL path", http.StatusBadRequest)
			return
		}

		docUUID, err := uuid.Parse(id)
		if err != nil {
			http.Error(w, "Invalid document UUID", http.StatusBadRequest)
			return
		}

		switch r.Method {
		case http.MethodGet:
			getDocument(w, r, srv, docUUID)
		case http.MethodDelete:
			deleteDocument(w, r, srv, pub, docUUID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func getDocument(w http.ResponseWriter, r *http.Request, srv server.Server, docUUID uuid.UUID) {
	doc, err := models.GetDocumentByUUID(srv.DB, docUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Document not found", http.StatusNotFound)
			return
		}
		srv.Logger.Error("error getting document",
			"error", err,
			"document_uuid", docUUID,
		)
		http.Error(w, "Error getting document", http.StatusInternalServerError)
		return
	}

	response := DocumentResponse{
		UUID:         doc.UUID.String(),
		Collection:   doc.Collection,
		Fields:       doc.Fields,
		ShardKey:     doc.ShardKey,
		Status:       doc.Status,
		RejectReason: doc.RejectReason,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}

	if r.URL.Query().Get("verify") != "" && srv.SearchProvider != nil {
		response.Index = verifyIndexedDocument(r.Context(), srv, doc)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		srv.Logger.Error("error encoding response", "error", err)
	}
}

// deleteDocument removes the row and queues the deletion event in one
// transaction. The index entry disappears when a consumer processes the
// event, not when this returns.
func deleteDocument(w http.ResponseWriter, r *http.Request, srv server.Server, pub *publisher.Publisher, docUUID uuid.UUID) {
	if err := pub.Delete(r.Context(), docUUID, "api"); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Document not found", http.StatusNotFound)
			return
		}
		srv.Logger.Error("error deleting document",
			"error", err,
			"document_uuid", docUUID,
		)
		http.Error(w, "Error deleting document", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// verifyIndexedDocument fetches the search index copy of a document and
// compares it with the database row. The sink identity is the shard key
// for overwrite-by-key collections, the UUID otherwise.
func verifyIndexedDocument(ctx context.Context, srv server.Server, doc *models.Document) *IndexVerification {
	objectID := doc.UUID.String()
	if b := srv.Builders[doc.Collection]; b != nil &&
		b.Config().OverwriteDupes && doc.ShardKey != "" {
		objectID = doc.ShardKey
	}

	searchDoc, err := srv.SearchProvider.Get(ctx, objectID)
	if err != nil {
		if search.IsNotFound(err) {
			return &IndexVerification{Present: false}
		}
		srv.Logger.Error("error fetching search document",
			"error", err,
			"object_id", objectID,
		)
		return &IndexVerification{Problems: []string{err.Error()}}
	}

	verification := &IndexVerification{Present: true, Consistent: true}
	if err := compareSearchAndDatabaseDocument(searchDoc, doc); err != nil {
		verification.Consistent = false
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, e := range merr.Errors {
				verification.Problems = append(verification.Problems, e.Error())
			}
		} else {
			verification.Problems = append(verification.Problems, err.Error())
		}
	}

	return verification
}
