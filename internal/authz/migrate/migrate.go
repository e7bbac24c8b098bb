package migrate

import (
	"context"
	"fmt"
	"sort"

	"github.com/vaxtrack/vaxtrack-core/internal/authz/catalog"
	"github.com/vaxtrack/vaxtrack-core/internal/authz/docsecurity"
	"github.com/vaxtrack/vaxtrack-core/internal/models"
	"github.com/vaxtrack/vaxtrack-core/internal/monitoring"
	"github.com/vaxtrack/vaxtrack-core/internal/storage"
	"github.com/vaxtrack/vaxtrack-core/pkg/logger"
)

// Migrator rewrites collection-level grants in the document store so they
// match the role catalog. Run after any catalog change that adds roles or
// alters a permission matrix.
type Migrator struct {
	catalog  *catalog.Store
	store    storage.Store
	database string
	logger   logger.Logger

	// DryRun computes and reports the target grants without touching the
	// store.
	DryRun bool
}

func New(cat *catalog.Store, store storage.Store, database string, log logger.Logger) *Migrator {
	return &Migrator{catalog: cat, store: store, database: database, logger: log}
}

// ValidationReport summarizes the drift between the catalog and the store.
type ValidationReport struct {
	Known   []string `json:"known"`   // collections present in both
	Unknown []string `json:"unknown"` // collections in the store the catalog does not name
	Missing []string `json:"missing"` // catalog resources with no collection
}

// MigrationResult is the outcome for a single collection.
type MigrationResult struct {
	Resource models.Resource `json:"resource"`
	Grants   models.GrantSet `json:"grants"`
	Applied  bool            `json:"applied"`
}

// BuildCollectionPermissions computes the full grant set for one resource's
// collection from the role catalog. Pure: same catalog in, same grants out.
//
//   - the administrator role reads and writes everything,
//   - every role that may read the resource gets a read grant,
//   - every role that may update the resource gets a write grant,
//   - security_rules.extra_collection_read_roles adds read grants on top.
func BuildCollectionPermissions(resource models.Resource, roles []*models.Role, rules catalog.SecurityRules) models.GrantSet {
	var grants models.GrantSet
	add := func(g models.Grant) {
		if !grants.Contains(g) {
			grants = append(grants, g)
		}
	}

	add(models.RoleGrant(models.GrantRead, rules.AdministratorRole))
	add(models.RoleGrant(models.GrantWrite, rules.AdministratorRole))

	for _, role := range roles {
		if docsecurity.RoleAllows(role, resource, models.OpRead) {
			add(models.RoleGrant(models.GrantRead, role.Name))
		}
		if docsecurity.RoleAllows(role, resource, models.OpUpdate) {
			add(models.RoleGrant(models.GrantWrite, role.Name))
		}
	}

	for _, extra := range rules.ExtraCollectionReadRoles[string(resource)] {
		add(models.RoleGrant(models.GrantRead, extra))
	}

	return grants
}

// ValidateCurrentState reports catalog/store drift without modifying
// anything.
func (m *Migrator) ValidateCurrentState(ctx context.Context) (*ValidationReport, error) {
	cat := m.catalog.Catalog()

	stored, err := m.store.ListCollections(ctx, m.database)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	report := &ValidationReport{}
	seen := make(map[models.Resource]bool, len(stored))
	for _, c := range stored {
		resource := models.Resource(c.Name)
		seen[resource] = true
		if cat.HasResource(resource) {
			report.Known = append(report.Known, c.Name)
		} else {
			report.Unknown = append(report.Unknown, c.Name)
		}
	}
	for _, resource := range cat.Resources() {
		if !seen[resource] {
			report.Missing = append(report.Missing, string(resource))
		}
	}

	sort.Strings(report.Known)
	sort.Strings(report.Unknown)
	sort.Strings(report.Missing)
	return report, nil
}

// MigrateCollectionPermissions brings one collection's grants in line with
// the catalog. In dry-run mode it returns the exact grants a real run would
// apply and performs no writes.
func (m *Migrator) MigrateCollectionPermissions(ctx context.Context, resource models.Resource) (*MigrationResult, error) {
	cat := m.catalog.Catalog()
	if !cat.HasResource(resource) {
		return nil, fmt.Errorf("unknown resource %q", resource)
	}

	grants := BuildCollectionPermissions(resource, cat.Roles(), cat.Rules())
	result := &MigrationResult{Resource: resource, Grants: grants}

	if m.DryRun {
		m.logger.Info("dry run: would update collection grants",
			"resource", resource, "grants", len(grants))
		monitoring.RecordMigration(string(resource), "dry-run", true)
		return result, nil
	}

	if err := m.store.UpdateCollection(ctx, m.database, string(resource), grants); err != nil {
		monitoring.RecordMigration(string(resource), "apply", false)
		return nil, fmt.Errorf("failed to update collection %q: %w", resource, err)
	}

	m.logger.Info("updated collection grants", "resource", resource, "grants", len(grants))
	monitoring.RecordMigration(string(resource), "apply", true)
	result.Applied = true
	return result, nil
}

// MigrateAll migrates every resource the catalog names, in sorted order.
func (m *Migrator) MigrateAll(ctx context.Context) ([]*MigrationResult, error) {
	var results []*MigrationResult
	for _, resource := range m.catalog.Catalog().Resources() {
		result, err := m.MigrateCollectionPermissions(ctx, resource)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}
