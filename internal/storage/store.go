package storage

import (
	"context"
	"errors"

	"github.com/vaxtrack/vaxtrack-core/internal/models"
)

// The production document store lives outside this repository; the engine
// only depends on these interfaces. Grants travel with every write so the
// store can translate them into its native access-control primitives.

var (
	ErrDocumentNotFound   = errors.New("storage: document not found")
	ErrCollectionNotFound = errors.New("storage: collection not found")
)

// DocumentStore is the CRUD surface used on the hot path.
type DocumentStore interface {
	CreateDocument(ctx context.Context, database, collection, id string, data map[string]interface{}, grants models.GrantSet) (*models.Document, error)
	GetDocument(ctx context.Context, database, collection, id string) (*models.Document, error)
	UpdateDocument(ctx context.Context, database, collection, id string, data map[string]interface{}, grants models.GrantSet) (*models.Document, error)
	DeleteDocument(ctx context.Context, database, collection, id string) error
	ListDocuments(ctx context.Context, database, collection string, filters []models.QueryFilter) ([]*models.Document, error)
}

// CollectionAdmin is the administrative surface used only by the permissions
// migrator.
type CollectionAdmin interface {
	ListCollections(ctx context.Context, database string) ([]*models.Collection, error)
	GetCollection(ctx context.Context, database, collection string) (*models.Collection, error)
	UpdateCollection(ctx context.Context, database, collection string, grants models.GrantSet) error
}

// Store is the full storage contract.
type Store interface {
	DocumentStore
	CollectionAdmin
}
