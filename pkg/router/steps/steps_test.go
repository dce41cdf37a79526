package steps

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
	"github.com/niranworks/compass/pkg/router"
	"github.com/niranworks/compass/pkg/search"
	"github.com/niranworks/compass/pkg/shardkey"
)

// mockProvider is a test implementation of the search sink.
type mockProvider struct {
	indexed  []*search.Document
	upserted []*search.Document
	failWith error
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Index(ctx context.Context, doc *search.Document) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.indexed = append(m.indexed, doc)
	return nil
}

func (m *mockProvider) Upsert(ctx context.Context, doc *search.Document) error {
	if m.failWith != nil {
		return m.failWith
	}
	doc.ObjectID = doc.ShardKey
	m.upserted = append(m.upserted, doc)
	return nil
}

func (m *mockProvider) Delete(ctx context.Context, objectID string) error { return nil }

func (m *mockProvider) Get(ctx context.Context, objectID string) (*search.Document, error) {
	return nil, search.ErrNotFound
}

func (m *mockProvider) Stats(ctx context.Context) (*search.Stats, error) {
	return &search.Stats{Provider: "mock"}, nil
}

func (m *mockProvider) Close() error { return nil }

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(models.ModelsToAutoMigrate()...))

	return db
}

// personBuilder returns a builder over region+entityType prefix and id
// postfix, keyed into the shardId field.
func personBuilder(t *testing.T) *shardkey.Builder {
	cfg, err := shardkey.ParseOptions(map[string]interface{}{
		shardkey.OptionCompositeIDField: "shardId",
		shardkey.OptionPrefixFields:     "region, entityType",
		shardkey.OptionPostfixField:     "id",
	})
	require.NoError(t, err)
	return shardkey.NewBuilder(cfg)
}

func personUpdate() *router.Update {
	return router.NewUpdate(uuid.New(), "people", map[string]interface{}{
		"entityType": "Person",
		"region":     "EU",
		"id":         7,
	})
}

func TestCompositeKeyStep_BuildsKey(t *testing.T) {
	step := NewCompositeKeyStep(map[string]*shardkey.Builder{"people": personBuilder(t)}, hclog.NewNullLogger())
	update := personUpdate()

	err := step.Execute(context.Background(), update, nil)
	require.NoError(t, err)

	// Prefix values concatenate in canonical sorted field order
	assert.Equal(t, "PersonEU!7", update.KeyResult.Key.String())
	assert.True(t, update.KeyResult.Overwrite, "overwrite defaults on")
	assert.False(t, update.KeyResult.Skipped)

	// The key lands in the working field map under the configured field
	keyField, ok := update.Field("shardId")
	require.True(t, ok)
	assert.Equal(t, "PersonEU!7", keyField)
}

func TestCompositeKeyStep_RejectsDocumentMissingValue(t *testing.T) {
	step := NewCompositeKeyStep(map[string]*shardkey.Builder{"people": personBuilder(t)}, hclog.NewNullLogger())

	update := personUpdate()
	delete(update.Fields, "region")

	err := step.Execute(context.Background(), update, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shardkey.ErrInvalidFieldValue))
	assert.True(t, update.Rejected(), "missing value should reject the document")
	assert.False(t, step.IsRetryable(err), "value errors are permanent")

	_, ok := update.Field("shardId")
	assert.False(t, ok, "no partial key may be written")
}

func TestCompositeKeyStep_SkippedWhenDisabled(t *testing.T) {
	cfg, err := shardkey.ParseOptions(map[string]interface{}{
		shardkey.OptionPrefixFields: "entityType",
		shardkey.OptionPostfixField: "id",
		shardkey.OptionEnabled:      false,
	})
	require.NoError(t, err)

	step := NewCompositeKeyStep(map[string]*shardkey.Builder{"people": shardkey.NewBuilder(cfg)}, nil)
	update := personUpdate()

	require.NoError(t, step.Execute(context.Background(), update, nil))
	assert.True(t, update.KeyResult.Skipped)
	assert.False(t, update.Rejected())
}

func TestCompositeKeyStep_UnknownCollection(t *testing.T) {
	step := NewCompositeKeyStep(map[string]*shardkey.Builder{}, nil)

	err := step.Execute(context.Background(), personUpdate(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no key configuration")
}

func TestNormalizeStep_Defaults(t *testing.T) {
	step := NewNormalizeStep(hclog.NewNullLogger())
	update := router.NewUpdate(uuid.New(), "people", map[string]interface{}{
		"entity_type": "  Person  ",
		"Region":      "EU",
	})

	require.NoError(t, step.Execute(context.Background(), update, nil))

	entityType, ok := update.Field("entityType")
	require.True(t, ok, "snake_case keys should become lowerCamel")
	assert.Equal(t, "Person", entityType, "string values should be trimmed")

	_, ok = update.Field("Region")
	assert.False(t, ok)
	region, ok := update.Field("region")
	require.True(t, ok)
	assert.Equal(t, "EU", region)
}

func TestNormalizeStep_TimeFields(t *testing.T) {
	step := NewNormalizeStep(nil)
	update := router.NewUpdate(uuid.New(), "people", map[string]interface{}{
		"createdAt": "May 8, 2009 5:57:51 PM",
	})

	err := step.Execute(context.Background(), update, map[string]interface{}{
		"time_fields": "createdAt",
	})
	require.NoError(t, err)

	createdAt, _ := update.Field("createdAt")
	assert.Equal(t, "2009-05-08T17:57:51Z", createdAt)
}

func TestNormalizeStep_UnparseableTimeFails(t *testing.T) {
	step := NewNormalizeStep(nil)
	update := router.NewUpdate(uuid.New(), "people", map[string]interface{}{
		"createdAt": "not a date",
	})

	err := step.Execute(context.Background(), update, map[string]interface{}{
		"time_fields": "createdAt",
	})
	require.Error(t, err)
	assert.False(t, step.IsRetryable(err))
}

func TestNormalizeStep_StripEmoji(t *testing.T) {
	step := NewNormalizeStep(nil)
	update := router.NewUpdate(uuid.New(), "people", map[string]interface{}{
		"title": "Launch plan \U0001F680",
	})

	err := step.Execute(context.Background(), update, map[string]interface{}{
		"strip_emoji": "title",
	})
	require.NoError(t, err)

	title, _ := update.Field("title")
	assert.Equal(t, "Launch plan", title)
}

func TestNormalizeStep_ConfigIsWeaklyTyped(t *testing.T) {
	step := NewNormalizeStep(nil)
	update := router.NewUpdate(uuid.New(), "people", map[string]interface{}{
		"entity_type": "Person",
	})

	// HCL step config arrives as strings
	err := step.Execute(context.Background(), update, map[string]interface{}{
		"canonical_keys": "false",
		"trim_space":     "false",
	})
	require.NoError(t, err)

	_, ok := update.Field("entity_type")
	assert.True(t, ok, "canonical_keys=false should leave names alone")
}

func TestPersistStep_SavesOutcome(t *testing.T) {
	db := setupTestDB(t)
	doc := &models.Document{
		Collection: "people",
		Fields:     models.JSONMap{"entityType": "Person", "region": "EU", "id": 7},
	}
	require.NoError(t, db.Create(doc).Error)

	update := router.FromDocument(doc)
	update.SetField("shardId", "PersonEU!7")
	update.KeyResult = shardkey.Result{Key: shardkey.MustParse("PersonEU!7"), Overwrite: true}

	step := NewPersistStep(db, hclog.NewNullLogger())
	require.NoError(t, step.Execute(context.Background(), update, nil))

	stored, err := models.GetDocumentByUUID(db, doc.UUID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusRouted, stored.Status)
	assert.Equal(t, "PersonEU!7", stored.ShardKey)
	assert.Equal(t, "PersonEU!7", stored.Fields["shardId"], "normalized working copy should be written back")
}

func TestPersistStep_StatelessMode(t *testing.T) {
	step := NewPersistStep(nil, nil)
	require.NoError(t, step.Execute(context.Background(), personUpdate(), nil))
}

func TestPersistStep_MissingDocumentRow(t *testing.T) {
	db := setupTestDB(t)
	step := NewPersistStep(db, nil)

	// Update references a document that was never stored
	require.NoError(t, step.Execute(context.Background(), personUpdate(), nil))
}

func TestPersistStep_IsRetryable(t *testing.T) {
	step := NewPersistStep(nil, nil)

	assert.True(t, step.IsRetryable(errors.New("connection refused")))
	assert.True(t, step.IsRetryable(errors.New("database is locked")))
	assert.False(t, step.IsRetryable(errors.New("constraint violation")))
	assert.False(t, step.IsRetryable(nil))
}

func TestSearchIndexStep_UpsertByKey(t *testing.T) {
	provider := &mockProvider{}
	step := NewSearchIndexStep(provider, hclog.NewNullLogger())

	update := personUpdate()
	update.KeyResult = shardkey.Result{Key: shardkey.MustParse("PersonEU!7"), Overwrite: true}

	require.NoError(t, step.Execute(context.Background(), update, nil))

	require.Len(t, provider.upserted, 1)
	assert.Empty(t, provider.indexed)
	assert.Equal(t, "PersonEU!7", provider.upserted[0].ObjectID, "upsert identity is the shard key")
	assert.Equal(t, "people", provider.upserted[0].Collection)
}

func TestSearchIndexStep_IndexWhenNoOverwrite(t *testing.T) {
	provider := &mockProvider{}
	step := NewSearchIndexStep(provider, nil)

	update := personUpdate()
	update.KeyResult = shardkey.Result{Key: shardkey.MustParse("PersonEU!7"), Overwrite: false}

	require.NoError(t, step.Execute(context.Background(), update, nil))

	require.Len(t, provider.indexed, 1)
	assert.Empty(t, provider.upserted)
	assert.Equal(t, update.DocumentUUID.String(), provider.indexed[0].ObjectID, "index identity is the document UUID")
}

func TestSearchIndexStep_SkippedKeyStillIndexes(t *testing.T) {
	provider := &mockProvider{}
	step := NewSearchIndexStep(provider, nil)

	update := personUpdate()
	update.KeyResult = shardkey.Result{Skipped: true}

	require.NoError(t, step.Execute(context.Background(), update, nil))
	require.Len(t, provider.indexed, 1)
	assert.Empty(t, provider.indexed[0].ShardKey)
}

func TestSearchIndexStep_IsRetryable(t *testing.T) {
	step := NewSearchIndexStep(&mockProvider{}, nil)

	assert.True(t, step.IsRetryable(errors.New("request timeout")))
	assert.True(t, step.IsRetryable(errors.New("connection refused")))
	assert.True(t, step.IsRetryable(errors.New("429 too many requests")))
	assert.True(t, step.IsRetryable(&search.Error{Op: "Upsert", Err: search.ErrBackendUnavailable}))
	assert.False(t, step.IsRetryable(errors.New("document is malformed")))
	assert.False(t, step.IsRetryable(nil))
}

func TestNewDefaultSteps(t *testing.T) {
	db := setupTestDB(t)
	steps := NewDefaultSteps(db, map[string]*shardkey.Builder{"people": personBuilder(t)}, &mockProvider{}, hclog.NewNullLogger())

	require.Len(t, steps, 4)
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name()
	}
	assert.Equal(t, []string{"normalize", "composite_key", "persist", "search_index"}, names)
}
