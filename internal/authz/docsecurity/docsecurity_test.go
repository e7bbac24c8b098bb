package docsecurity

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaxtrack/vaxtrack-core/internal/authz/catalog"
	"github.com/vaxtrack/vaxtrack-core/internal/authz/rolemanager"
	"github.com/vaxtrack/vaxtrack-core/internal/authz/validator"
	"github.com/vaxtrack/vaxtrack-core/internal/identity"
	"github.com/vaxtrack/vaxtrack-core/internal/models"
	"github.com/vaxtrack/vaxtrack-core/pkg/cache"
	"github.com/vaxtrack/vaxtrack-core/pkg/logger"
)

const testCatalog = `
resources:
  - patients
  - immunizations
  - vaccines
  - reports

roles:
  administrator:
    level: 100
    data_access: all_facilities
    unrestricted: true

  supervisor:
    level: 50
    data_access: facility_only
    permissions:
      patients: ["*"]
      immunizations: ["*"]
      vaccines: ["*"]
      reports: [create, read]

  doctor:
    level: 30
    data_access: facility_only
    permissions:
      patients: [create, read, update]
      immunizations: [create, read, update]
      vaccines: [read]
      reports: [read]
`

type env struct {
	catalog   *catalog.Store
	roles     *rolemanager.Manager
	validator *validator.Validator
	service   *Service
}

func newEnv(t *testing.T) *env {
	t.Helper()

	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o644))
	store, err := catalog.NewStore(path, time.Minute, logger.NewNop())
	require.NoError(t, err)

	provider := identity.NewStaticProvider(
		&identity.User{ID: "admin1", Status: "active", Role: "administrator"},
		&identity.User{ID: "sup1", Status: "active", Role: "supervisor", FacilityID: "1"},
		&identity.User{ID: "doc1", Status: "active", Role: "doctor", FacilityID: "1"},
	)

	roles, err := rolemanager.NewManager(store, provider, 16, logger.NewNop())
	require.NoError(t, err)
	v := validator.New(roles, store, cache.NewNoop(), time.Minute, logger.NewNop())

	return &env{
		catalog:   store,
		roles:     roles,
		validator: v,
		service:   New(v, store, logger.NewNop()),
	}
}

func (e *env) roleInfo(t *testing.T, userID string) *models.RoleInfo {
	t.Helper()
	info, err := e.roles.GetUserRoleInfo(context.Background(), userID)
	require.NoError(t, err)
	return info
}

func TestGeneratedGrantsMatchCheckPermission(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// For every role and resource: a write grant is generated exactly when
	// an update check within the creator's facility would be allowed. Grants
	// and checks must never drift apart.
	for _, userID := range []string{"sup1", "doc1"} {
		info := e.roleInfo(t, userID)
		for _, resource := range e.catalog.Catalog().Resources() {
			grants, err := e.service.GenerateDocumentPermissions(info, resource)
			require.NoError(t, err)

			decision, err := e.validator.CheckPermission(ctx, info.UserID, string(resource), "update", &validator.Options{
				ResourceContext: &models.ResourceContext{FacilityID: info.FacilityID},
			})
			require.NoError(t, err)

			assert.Equal(t, decision.Allowed, grants.GrantsRole(models.GrantWrite, info.Role),
				"role %s, resource %s: write grant and update decision disagree", info.Role, resource)
		}
	}
}

func TestGeneratedGrantShape(t *testing.T) {
	e := newEnv(t)

	grants, err := e.service.GenerateDocumentPermissions(e.roleInfo(t, "doc1"), "patients")
	require.NoError(t, err)

	assert.True(t, grants.GrantsRole(models.GrantRead, "administrator"), "administrator read must be on every document")
	assert.True(t, grants.Contains(models.GroupGrant(models.GrantRead, "1")), "read is scoped to the creating facility")
	assert.True(t, grants.GrantsRole(models.GrantWrite, "doctor"))

	// A doctor cannot update vaccines, so no write grant is minted.
	grants, err = e.service.GenerateDocumentPermissions(e.roleInfo(t, "doc1"), "vaccines")
	require.NoError(t, err)
	assert.False(t, grants.GrantsRole(models.GrantWrite, "doctor"))
	assert.True(t, grants.GrantsRole(models.GrantRead, "administrator"))

	// Administrators have no facility, so no group grant appears.
	grants, err = e.service.GenerateDocumentPermissions(e.roleInfo(t, "admin1"), "patients")
	require.NoError(t, err)
	assert.True(t, grants.GrantsRole(models.GrantWrite, "administrator"))
	for _, g := range grants {
		assert.NotContains(t, g.Principal, models.PrincipalGroupPrefix)
	}
}

func TestGenerateRejectsUnknownInputs(t *testing.T) {
	e := newEnv(t)

	_, err := e.service.GenerateDocumentPermissions(nil, "patients")
	require.Error(t, err)

	unknown := &models.RoleInfo{UserContext: models.UserContext{UserID: "x", Role: "janitor", FacilityID: "1"}}
	_, err = e.service.GenerateDocumentPermissions(unknown, "patients")
	require.Error(t, err)

	_, err = e.service.GenerateDocumentPermissions(e.roleInfo(t, "doc1"), "spaceships")
	require.Error(t, err)
}

func TestCheckDocumentAccess(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	doctor := e.roleInfo(t, "doc1")
	admin := e.roleInfo(t, "admin1")

	ownDoc := &models.Document{ID: "d1", FacilityID: "1"}
	decision, err := e.service.CheckDocumentAccess(ctx, doctor, "patients", ownDoc, "read")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, models.ScopeOwnFacility, decision.Scope)

	foreignDoc := &models.Document{ID: "d2", FacilityID: "2"}
	decision, err = e.service.CheckDocumentAccess(ctx, doctor, "patients", foreignDoc, "read")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, models.ReasonFacilityRestriction, decision.Reason)

	decision, err = e.service.CheckDocumentAccess(ctx, admin, "patients", foreignDoc, "delete")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestDocumentWithoutFacilityFailsClosed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	orphan := &models.Document{ID: "d3"}
	mangled := &models.Document{ID: "d4", FacilityID: "fac-1"}

	for _, doc := range []*models.Document{orphan, mangled, nil} {
		decision, err := e.service.CheckDocumentAccess(ctx, e.roleInfo(t, "doc1"), "patients", doc, "read")
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, models.ReasonFacilityRestriction, decision.Reason)
		assert.False(t, decision.EvaluatedAt.IsZero(), "every decision carries its evaluation time")

		// Administrators still pass.
		decision, err = e.service.CheckDocumentAccess(ctx, e.roleInfo(t, "admin1"), "patients", doc, "read")
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	}
}

func TestGrantsAllow(t *testing.T) {
	e := newEnv(t)
	doctor := e.roleInfo(t, "doc1")

	doc := &models.Document{
		ID:         "d1",
		FacilityID: "1",
		Grants: models.GrantSet{
			models.RoleGrant(models.GrantRead, "administrator"),
			models.GroupGrant(models.GrantRead, "1"),
			models.RoleGrant(models.GrantWrite, "doctor"),
		},
	}

	assert.True(t, e.service.GrantsAllow(doctor, doc, models.GrantRead), "facility group grant covers read")
	assert.True(t, e.service.GrantsAllow(doctor, doc, models.GrantWrite), "role grant covers write")

	supervisor := e.roleInfo(t, "sup1")
	assert.True(t, e.service.GrantsAllow(supervisor, doc, models.GrantRead), "same facility reads via the group")
	assert.False(t, e.service.GrantsAllow(supervisor, doc, models.GrantWrite), "write stays with the creating role")

	assert.False(t, e.service.GrantsAllow(nil, doc, models.GrantRead))
	assert.False(t, e.service.GrantsAllow(doctor, nil, models.GrantRead))
}
