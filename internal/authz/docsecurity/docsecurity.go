package docsecurity

import (
	"context"
	"fmt"
	"time"

	"github.com/vaxtrack/vaxtrack-core/internal/authz/catalog"
	"github.com/vaxtrack/vaxtrack-core/internal/authz/validator"
	"github.com/vaxtrack/vaxtrack-core/internal/models"
	"github.com/vaxtrack/vaxtrack-core/pkg/logger"
)

// Service translates allow decisions into concrete per-document grants at
// creation time and re-checks existing documents at access time.
type Service struct {
	validator *validator.Validator
	catalog   *catalog.Store
	logger    logger.Logger
}

func New(v *validator.Validator, cat *catalog.Store, log logger.Logger) *Service {
	return &Service{validator: v, catalog: cat, logger: log}
}

// RoleAllows mirrors the decision point's matrix evaluation for a single
// role: unrestricted and globally-scoped roles pass everything, delete
// requires an explicit matrix entry, everything else follows the matrix.
// Grant construction and permission checking both build on this predicate,
// which is what keeps them provably consistent.
func RoleAllows(role *models.Role, resource models.Resource, op models.Operation) bool {
	if role.Unrestricted || role.DataAccess == models.DataAccessAllFacilities {
		return true
	}
	if op == models.OpDelete {
		return role.MatrixAllowsExplicit(resource, models.OpDelete)
	}
	return role.MatrixAllows(resource, op)
}

// GenerateDocumentPermissions derives the grant set attached to a new
// document. Construction rules:
//
//   - administrator read is always present,
//   - read is scoped to the creating facility's group,
//   - write is scoped to the creating role iff that role may update the
//     resource per the matrix.
//
// The grant set never exceeds what CheckPermission would allow for the
// creating role.
func (s *Service) GenerateDocumentPermissions(info *models.RoleInfo, resource models.Resource) (models.GrantSet, error) {
	if info == nil || info.UserID == "" {
		return nil, fmt.Errorf("cannot generate permissions without a user context")
	}

	cat := s.catalog.Catalog()
	role, err := cat.Role(info.Role)
	if err != nil {
		return nil, fmt.Errorf("cannot generate permissions for unknown role %q: %w", info.Role, err)
	}
	if !cat.HasResource(resource) {
		return nil, fmt.Errorf("cannot generate permissions for unknown resource %q", resource)
	}

	adminRole := cat.AdministratorRole()
	grants := models.GrantSet{models.RoleGrant(models.GrantRead, adminRole)}

	if models.IsValidFacilityID(info.FacilityID) {
		grants = append(grants, models.GroupGrant(models.GrantRead, info.FacilityID))
	}

	if RoleAllows(role, resource, models.OpUpdate) {
		grants = append(grants, models.RoleGrant(models.GrantWrite, info.Role))
	}

	return grants, nil
}

// CheckDocumentAccess decides whether the user may perform operation on an
// existing document. Administrators always pass; everyone else must match the
// document's facility and hold the matrix permission. A document with a
// missing or unparseable facility is inaccessible to every non-administrator
// role.
func (s *Service) CheckDocumentAccess(ctx context.Context, info *models.RoleInfo, resource models.Resource, doc *models.Document, operation string) (models.PermissionDecision, error) {
	if doc == nil || !models.IsValidFacilityID(doc.FacilityID) {
		if s.isGloballyScoped(info) {
			return s.validator.CheckPermission(ctx, userID(info), string(resource), operation, &validator.Options{
				UserContext: info,
			})
		}
		return models.PermissionDecision{
			Allowed:     false,
			Scope:       models.ScopeNone,
			Reason:      models.ReasonFacilityRestriction,
			EvaluatedAt: time.Now(),
		}, nil
	}

	return s.validator.CheckPermission(ctx, userID(info), string(resource), operation, &validator.Options{
		UserContext:     info,
		ResourceContext: &models.ResourceContext{FacilityID: doc.FacilityID},
	})
}

// GrantsAllow evaluates a document's stored grant list against a user, the
// way the storage layer interprets the vocabulary. Exposed so adapters and
// audits can verify stored ACLs without re-deriving the engine's decision.
func (s *Service) GrantsAllow(info *models.RoleInfo, doc *models.Document, op models.GrantOp) bool {
	if info == nil || doc == nil {
		return false
	}
	for _, g := range doc.Grants {
		if g.Op != op {
			continue
		}
		switch {
		case g.Principal == models.PrincipalRolePrefix+info.Role:
			return true
		case g.Principal == models.PrincipalUserPrefix+info.UserID:
			return true
		case info.FacilityID != "" && g.Principal == models.PrincipalGroupPrefix+info.FacilityID:
			return true
		}
	}
	return false
}

func (s *Service) isGloballyScoped(info *models.RoleInfo) bool {
	if info == nil {
		return false
	}
	role, err := s.catalog.Role(info.Role)
	if err != nil {
		return false
	}
	return role.Unrestricted || role.DataAccess == models.DataAccessAllFacilities
}

func userID(info *models.RoleInfo) string {
	if info == nil {
		return ""
	}
	return info.UserID
}
