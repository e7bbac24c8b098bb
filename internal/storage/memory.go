package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaxtrack/vaxtrack-core/internal/models"
)

// MemoryStore is the in-process Store used by the development profile and by
// tests. It honors the same filter and grant semantics the production
// adapter implements.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection // key: database/collection
}

type memoryCollection struct {
	database string
	name     string
	grants   models.GrantSet
	docs     map[string]*models.Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

func collectionKey(database, collection string) string {
	return database + "/" + collection
}

// EnsureCollection registers a collection so List/Get succeed before the
// first document write. Tests and the dev profile seed with this.
func (s *MemoryStore) EnsureCollection(database, collection string, grants models.GrantSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := collectionKey(database, collection)
	if _, ok := s.collections[key]; !ok {
		s.collections[key] = &memoryCollection{
			database: database,
			name:     collection,
			grants:   grants,
			docs:     make(map[string]*models.Document),
		}
	}
}

func (s *MemoryStore) getCollection(database, collection string) (*memoryCollection, error) {
	c, ok := s.collections[collectionKey(database, collection)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrCollectionNotFound, database, collection)
	}
	return c, nil
}

func (s *MemoryStore) CreateDocument(ctx context.Context, database, collection, id string, data map[string]interface{}, grants models.GrantSet) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.getCollection(database, collection)
	if err != nil {
		return nil, err
	}

	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := c.docs[id]; exists {
		return nil, fmt.Errorf("document %s already exists in %s/%s", id, database, collection)
	}

	now := time.Now()
	doc := &models.Document{
		ID:         id,
		FacilityID: facilityFromData(data),
		Data:       data,
		Grants:     grants,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	c.docs[id] = doc
	return cloneDocument(doc), nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, database, collection, id string) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.getCollection(database, collection)
	if err != nil {
		return nil, err
	}
	doc, ok := c.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	return cloneDocument(doc), nil
}

func (s *MemoryStore) UpdateDocument(ctx context.Context, database, collection, id string, data map[string]interface{}, grants models.GrantSet) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.getCollection(database, collection)
	if err != nil {
		return nil, err
	}
	doc, ok := c.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}

	doc.Data = data
	doc.FacilityID = facilityFromData(data)
	if grants != nil {
		doc.Grants = grants
	}
	doc.UpdatedAt = time.Now()
	return cloneDocument(doc), nil
}

func (s *MemoryStore) DeleteDocument(ctx context.Context, database, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.getCollection(database, collection)
	if err != nil {
		return err
	}
	if _, ok := c.docs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	delete(c.docs, id)
	return nil
}

func (s *MemoryStore) ListDocuments(ctx context.Context, database, collection string, filters []models.QueryFilter) ([]*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.getCollection(database, collection)
	if err != nil {
		return nil, err
	}

	var out []*models.Document
	for _, doc := range c.docs {
		if matchesFilters(doc, filters) {
			out = append(out, cloneDocument(doc))
		}
	}
	return out, nil
}

func (s *MemoryStore) ListCollections(ctx context.Context, database string) ([]*models.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Collection
	for _, c := range s.collections {
		if c.database != database {
			continue
		}
		out = append(out, &models.Collection{
			Database: c.database,
			Name:     c.name,
			Grants:   append(models.GrantSet(nil), c.grants...),
		})
	}
	return out, nil
}

func (s *MemoryStore) GetCollection(ctx context.Context, database, collection string) (*models.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.getCollection(database, collection)
	if err != nil {
		return nil, err
	}
	return &models.Collection{
		Database: c.database,
		Name:     c.name,
		Grants:   append(models.GrantSet(nil), c.grants...),
	}, nil
}

func (s *MemoryStore) UpdateCollection(ctx context.Context, database, collection string, grants models.GrantSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.getCollection(database, collection)
	if err != nil {
		return err
	}
	c.grants = append(models.GrantSet(nil), grants...)
	return nil
}

func matchesFilters(doc *models.Document, filters []models.QueryFilter) bool {
	for _, f := range filters {
		if f.Op != "eq" {
			return false
		}
		var have interface{}
		if f.Field == "facilityId" {
			have = doc.FacilityID
		} else {
			have = doc.Data[f.Field]
		}
		if fmt.Sprintf("%v", have) != fmt.Sprintf("%v", f.Value) {
			return false
		}
	}
	return true
}

func facilityFromData(data map[string]interface{}) string {
	if data == nil {
		return ""
	}
	if v, ok := data["facilityId"]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func cloneDocument(doc *models.Document) *models.Document {
	copied := *doc
	copied.Grants = append(models.GrantSet(nil), doc.Grants...)
	dataCopy := make(map[string]interface{}, len(doc.Data))
	for k, v := range doc.Data {
		dataCopy[k] = v
	}
	copied.Data = dataCopy
	return &copied
}
