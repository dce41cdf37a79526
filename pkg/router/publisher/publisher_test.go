package publisher

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/niranworks/compass/pkg/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(models.ModelsToAutoMigrate()...))

	return db
}

func personFields() map[string]interface{} {
	return map[string]interface{}{
		"entityType": "Person",
		"region":     "EU",
		"id":         7,
	}
}

func outboxEntries(t *testing.T, db *gorm.DB) []models.RoutingOutbox {
	var entries []models.RoutingOutbox
	require.NoError(t, db.Order("id").Find(&entries).Error)
	return entries
}

func TestIngest_NewDocument(t *testing.T) {
	db := setupTestDB(t)
	p := New(db, hclog.NewNullLogger())

	result, err := p.Ingest(context.Background(), "people", uuid.Nil, personFields(), "api")
	require.NoError(t, err)

	doc := result.Document
	assert.NotEqual(t, uuid.Nil, doc.UUID)
	assert.Equal(t, "people", doc.Collection)
	assert.Equal(t, models.DocumentStatusReceived, doc.Status)
	assert.NotEmpty(t, doc.ContentHash)
	assert.Equal(t, models.DocumentEventReceived, result.Event)

	entries := outboxEntries(t, db)
	require.Len(t, entries, 1)
	assert.Equal(t, models.DocumentEventReceived, entries[0].EventType)
	assert.Equal(t, models.OutboxStatusPending, entries[0].Status)
	assert.Equal(t, doc.UUID, entries[0].DocumentUUID)
	assert.Equal(t, "api", entries[0].Source)

	fields, ok := entries[0].Payload["fields"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Person", fields["entityType"])
}

func TestIngest_ZeroUUIDAlwaysCreates(t *testing.T) {
	db := setupTestDB(t)
	p := New(db, nil)

	first, err := p.Ingest(context.Background(), "people", uuid.Nil, personFields(), "api")
	require.NoError(t, err)
	second, err := p.Ingest(context.Background(), "people", uuid.Nil, personFields(), "api")
	require.NoError(t, err)

	assert.NotEqual(t, first.Document.UUID, second.Document.UUID)

	var count int64
	require.NoError(t, db.Model(&models.Document{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestIngest_UpdateChangedBody(t *testing.T) {
	db := setupTestDB(t)
	p := New(db, nil)

	first, err := p.Ingest(context.Background(), "people", uuid.Nil, personFields(), "api")
	require.NoError(t, err)
	docUUID := first.Document.UUID

	// Simulate the document having been routed already
	require.NoError(t, first.Document.MarkAsRouted(db, "PersonEU!7"))

	changed := personFields()
	changed["region"] = "US"

	result, err := p.Ingest(context.Background(), "people", docUUID, changed, "api")
	require.NoError(t, err)
	assert.Equal(t, models.DocumentEventUpdated, result.Event)

	stored, err := models.GetDocumentByUUID(db, docUUID)
	require.NoError(t, err)
	assert.Equal(t, "US", stored.Fields["region"])
	assert.Equal(t, models.DocumentStatusReceived, stored.Status, "changed bodies are re-routed")
	assert.Empty(t, stored.ShardKey)
	assert.NotEqual(t, first.Document.ContentHash, stored.ContentHash)

	entries := outboxEntries(t, db)
	require.Len(t, entries, 2)
	assert.Equal(t, models.DocumentEventUpdated, entries[1].EventType)
}

func TestIngest_UnchangedBodyDedupes(t *testing.T) {
	db := setupTestDB(t)
	p := New(db, nil)

	first, err := p.Ingest(context.Background(), "people", uuid.Nil, personFields(), "api")
	require.NoError(t, err)

	result, err := p.Ingest(context.Background(), "people", first.Document.UUID, personFields(), "file")
	require.NoError(t, err)
	assert.Empty(t, result.Event, "unchanged bodies queue nothing")
	assert.Equal(t, first.Document.UUID, result.Document.UUID)

	assert.Len(t, outboxEntries(t, db), 1)
}

func TestIngest_Validation(t *testing.T) {
	p := New(setupTestDB(t), nil)

	_, err := p.Ingest(context.Background(), "", uuid.Nil, personFields(), "api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collection is required")

	_, err = p.Ingest(context.Background(), "people", uuid.Nil, nil, "api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fields are required")
}

func TestDelete(t *testing.T) {
	db := setupTestDB(t)
	p := New(db, nil)

	first, err := p.Ingest(context.Background(), "people", uuid.Nil, personFields(), "api")
	require.NoError(t, err)
	require.NoError(t, first.Document.MarkAsRouted(db, "PersonEU!7"))

	require.NoError(t, p.Delete(context.Background(), first.Document.UUID, "api"))

	_, err = models.GetDocumentByUUID(db, first.Document.UUID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	entries := outboxEntries(t, db)
	require.Len(t, entries, 2)
	assert.Equal(t, models.DocumentEventDeleted, entries[1].EventType)
	assert.Equal(t, "PersonEU!7", entries[1].Payload["shardKey"], "delete events carry the indexed key")
}

func TestDelete_UnknownDocument(t *testing.T) {
	p := New(setupTestDB(t), nil)

	err := p.Delete(context.Background(), uuid.New(), "api")
	require.Error(t, err)
}

func TestWithTransaction(t *testing.T) {
	db := setupTestDB(t)
	p := New(db, nil)

	t.Run("commit writes document and event together", func(t *testing.T) {
		err := p.WithTransaction(context.Background(), func(tx *gorm.DB) (*models.Document, string, error) {
			doc := &models.Document{
				Collection: "people",
				Fields:     models.JSONMap(personFields()),
			}
			if err := tx.Create(doc).Error; err != nil {
				return nil, "", err
			}
			return doc, models.DocumentEventReceived, nil
		})
		require.NoError(t, err)

		assert.Len(t, outboxEntries(t, db), 1)
	})

	t.Run("rollback drops both", func(t *testing.T) {
		err := p.WithTransaction(context.Background(), func(tx *gorm.DB) (*models.Document, string, error) {
			doc := &models.Document{
				Collection: "people",
				Fields:     models.JSONMap{"id": 99},
			}
			if err := tx.Create(doc).Error; err != nil {
				return nil, "", err
			}
			return doc, "", errors.New("boom")
		})
		require.Error(t, err)

		var count int64
		require.NoError(t, db.Model(&models.Document{}).Where("collection = ?", "people").Count(&count).Error)
		assert.Equal(t, int64(1), count, "only the committed document remains")
		assert.Len(t, outboxEntries(t, db), 1)
	})

	t.Run("duplicate events are skipped", func(t *testing.T) {
		var doc models.Document
		require.NoError(t, db.Where("collection = ?", "people").First(&doc).Error)

		err := p.WithTransaction(context.Background(), func(tx *gorm.DB) (*models.Document, string, error) {
			return &doc, models.DocumentEventReceived, nil
		})
		require.NoError(t, err)

		assert.Len(t, outboxEntries(t, db), 1, "same document and event type queue once")
	})
}
