package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaxtrack/vaxtrack-core/internal/models"
)

const testDB = "vaxtrack"

func seededStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	s.EnsureCollection(testDB, "patients", models.GrantSet{
		models.RoleGrant(models.GrantRead, "administrator"),
	})
	return s
}

func TestDocumentLifecycle(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	grants := models.GrantSet{models.RoleGrant(models.GrantWrite, "doctor")}
	doc, err := s.CreateDocument(ctx, testDB, "patients", "", map[string]interface{}{
		"facilityId": "1", "name": "a",
	}, grants)
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "1", doc.FacilityID)
	assert.Equal(t, grants, doc.Grants)

	got, err := s.GetDocument(ctx, testDB, "patients", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Data, got.Data)

	// Updating without grants keeps the existing grant list.
	updated, err := s.UpdateDocument(ctx, testDB, "patients", doc.ID, map[string]interface{}{
		"facilityId": "2", "name": "b",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "2", updated.FacilityID)
	assert.Equal(t, grants, updated.Grants)

	require.NoError(t, s.DeleteDocument(ctx, testDB, "patients", doc.ID))
	_, err = s.GetDocument(ctx, testDB, "patients", doc.ID)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestCreateRejectsDuplicatesAndUnknownCollections(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	_, err := s.CreateDocument(ctx, testDB, "patients", "p1", map[string]interface{}{"facilityId": "1"}, nil)
	require.NoError(t, err)
	_, err = s.CreateDocument(ctx, testDB, "patients", "p1", map[string]interface{}{"facilityId": "1"}, nil)
	require.Error(t, err)

	_, err = s.CreateDocument(ctx, testDB, "spaceships", "x", nil, nil)
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}

func TestListDocumentsFilters(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	for _, data := range []map[string]interface{}{
		{"facilityId": "1", "status": "active"},
		{"facilityId": "1", "status": "archived"},
		{"facilityId": "2", "status": "active"},
	} {
		_, err := s.CreateDocument(ctx, testDB, "patients", "", data, nil)
		require.NoError(t, err)
	}

	docs, err := s.ListDocuments(ctx, testDB, "patients", []models.QueryFilter{
		models.FilterEq("facilityId", "1"),
		models.FilterEq("status", "active"),
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "1", docs[0].FacilityID)

	all, err := s.ListDocuments(ctx, testDB, "patients", nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDocumentsAreCopiedOut(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	doc, err := s.CreateDocument(ctx, testDB, "patients", "p1", map[string]interface{}{"facilityId": "1"}, nil)
	require.NoError(t, err)

	// Mutating the returned copy must not leak into the store.
	doc.Data["facilityId"] = "99"
	got, err := s.GetDocument(ctx, testDB, "patients", "p1")
	require.NoError(t, err)
	assert.Equal(t, "1", got.Data["facilityId"])
}

func TestCollectionAdmin(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	s.EnsureCollection(testDB, "vaccines", nil)

	colls, err := s.ListCollections(ctx, testDB)
	require.NoError(t, err)
	assert.Len(t, colls, 2)

	grants := models.GrantSet{
		models.RoleGrant(models.GrantRead, "administrator"),
		models.RoleGrant(models.GrantRead, "doctor"),
	}
	require.NoError(t, s.UpdateCollection(ctx, testDB, "vaccines", grants))

	coll, err := s.GetCollection(ctx, testDB, "vaccines")
	require.NoError(t, err)
	assert.Equal(t, grants, coll.Grants)

	_, err = s.GetCollection(ctx, testDB, "spaceships")
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}
