package scopedquery

import (
	"context"
	"fmt"

	"github.com/vaxtrack/vaxtrack-core/internal/authz/catalog"
	"github.com/vaxtrack/vaxtrack-core/internal/models"
	"github.com/vaxtrack/vaxtrack-core/internal/storage"
	"github.com/vaxtrack/vaxtrack-core/pkg/logger"
)

// Builder rewrites list queries so facility-scoped roles can only ever see
// their own facility's documents, no matter what filters the caller supplied.
type Builder struct {
	catalog  *catalog.Store
	store    storage.DocumentStore
	database string
	logger   logger.Logger
}

func New(cat *catalog.Store, store storage.DocumentStore, database string, log logger.Logger) *Builder {
	return &Builder{catalog: cat, store: store, database: database, logger: log}
}

// BuildSecureQuery returns the query that may actually be executed on behalf
// of the user. For globally-scoped roles the caller's filters pass through
// untouched. For facility-scoped roles any caller-supplied facility filter is
// discarded and replaced with an equality filter on the user's own facility;
// the caller can never widen its view by naming a different facility.
func (b *Builder) BuildSecureQuery(info *models.RoleInfo, resource models.Resource, filters []models.QueryFilter) (*models.QueryDescriptor, error) {
	if info == nil || info.UserID == "" {
		return nil, fmt.Errorf("cannot build query without a user context")
	}

	cat := b.catalog.Catalog()
	role, err := cat.Role(info.Role)
	if err != nil {
		return nil, fmt.Errorf("cannot build query for unknown role %q: %w", info.Role, err)
	}
	if !cat.HasResource(resource) {
		return nil, fmt.Errorf("cannot build query for unknown resource %q", resource)
	}

	if role.Unrestricted || role.DataAccess == models.DataAccessAllFacilities {
		return &models.QueryDescriptor{
			Resource: resource,
			Filters:  append([]models.QueryFilter(nil), filters...),
		}, nil
	}

	if !models.IsValidFacilityID(info.FacilityID) {
		return nil, fmt.Errorf("facility-scoped role %q requires a facility assignment for user %s", info.Role, info.UserID)
	}

	scoped := make([]models.QueryFilter, 0, len(filters)+1)
	for _, f := range filters {
		if f.Field == "facilityId" {
			// Whatever the caller asked for, the scope filter below wins.
			b.logger.Debug("dropping caller-supplied facility filter",
				"userId", info.UserID, "requested", f.Value)
			continue
		}
		scoped = append(scoped, f)
	}
	scoped = append(scoped, models.FilterEq("facilityId", info.FacilityID))

	return &models.QueryDescriptor{
		Resource:       resource,
		Filters:        scoped,
		FacilityScoped: true,
	}, nil
}

// ExecuteSecureQuery builds and runs a scoped list against the document
// store.
func (b *Builder) ExecuteSecureQuery(ctx context.Context, info *models.RoleInfo, resource models.Resource, filters []models.QueryFilter) ([]*models.Document, error) {
	q, err := b.BuildSecureQuery(info, resource, filters)
	if err != nil {
		return nil, err
	}
	return b.store.ListDocuments(ctx, b.database, string(q.Resource), q.Filters)
}
