package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaxtrack/vaxtrack-core/internal/authz/catalog"
	"github.com/vaxtrack/vaxtrack-core/internal/authz/rolemanager"
	"github.com/vaxtrack/vaxtrack-core/internal/authz/validator"
	"github.com/vaxtrack/vaxtrack-core/internal/config"
	"github.com/vaxtrack/vaxtrack-core/internal/identity"
	"github.com/vaxtrack/vaxtrack-core/internal/models"
	"github.com/vaxtrack/vaxtrack-core/pkg/cache"
	"github.com/vaxtrack/vaxtrack-core/pkg/logger"
)

const testCatalog = `
resources:
  - patients
  - immunizations
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
      reports: [create, read]

  doctor:
    level: 30
    data_access: facility_only
    permissions:
      patients: [create, read, update]
      immunizations: [create, read, update]
`

const testSecret = "test-secret"

type testAPI struct {
	server   *Server
	provider *identity.StaticProvider
}

func newTestAPI(t *testing.T) *testAPI {
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

	cfg := &config.Config{
		Environment: "production",
		Port:        0,
		Auth:        config.AuthConfig{JWTSecret: testSecret},
	}
	handlers := NewHandlers(v, roles, store, logger.NewNop())
	return &testAPI{server: NewServer(cfg, handlers, logger.NewNop()), provider: provider}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (a *testAPI) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	a.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/v1/authz/check", "", map[string]string{
		"resource": "patients", "operation": "read",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/authz/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	a.server.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health and metrics stay open.
	rec = a.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckPermissionEndpoint(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/v1/authz/check", "doc1", map[string]string{
		"resource": "patients", "operation": "read", "facilityId": "1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var decision models.PermissionDecision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.True(t, decision.Allowed)
	assert.Equal(t, models.ScopeOwnFacility, decision.Scope)

	// Denials are 200s carrying a deny decision, not HTTP errors.
	rec = a.do(t, http.MethodPost, "/api/v1/authz/check", "doc1", map[string]string{
		"resource": "patients", "operation": "delete",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.False(t, decision.Allowed)
	assert.Equal(t, models.ReasonDeleteNotPermitted, decision.Reason)

	// Missing fields are the caller's mistake.
	rec = a.do(t, http.MethodPost, "/api/v1/authz/check", "doc1", map[string]string{
		"resource": "patients",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// An administrator may check on behalf of another user.
	rec = a.do(t, http.MethodPost, "/api/v1/authz/check", "admin1", map[string]string{
		"userId": "doc1", "resource": "immunizations", "operation": "update", "facilityId": "2",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.False(t, decision.Allowed)
	assert.Equal(t, models.ReasonFacilityRestriction, decision.Reason)
}

func TestAssignRoleEndpoint(t *testing.T) {
	a := newTestAPI(t)
	a.provider.AddUser(&identity.User{ID: "u9", Status: "active", Role: "doctor", FacilityID: "1"})

	// Supervisor promoting to administrator is an escalation.
	rec := a.do(t, http.MethodPost, "/api/v1/authz/roles/assign", "sup1", map[string]string{
		"userId": "u9", "role": "administrator",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "above your own")

	// Supervisor assigning into a foreign facility.
	rec = a.do(t, http.MethodPost, "/api/v1/authz/roles/assign", "sup1", map[string]string{
		"userId": "u9", "role": "doctor", "facilityId": "2",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "outside your facility")

	// Unknown role.
	rec = a.do(t, http.MethodPost, "/api/v1/authz/roles/assign", "admin1", map[string]string{
		"userId": "u9", "role": "janitor",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Facility-scoped role without a facility.
	rec = a.do(t, http.MethodPost, "/api/v1/authz/roles/assign", "admin1", map[string]string{
		"userId": "u9", "role": "doctor",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "requires a facility")

	// Target user missing from the identity store.
	rec = a.do(t, http.MethodPost, "/api/v1/authz/roles/assign", "admin1", map[string]string{
		"userId": "ghost", "role": "doctor", "facilityId": "1",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Missing fields.
	rec = a.do(t, http.MethodPost, "/api/v1/authz/roles/assign", "admin1", map[string]string{
		"role": "doctor",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A valid assignment by an administrator.
	rec = a.do(t, http.MethodPost, "/api/v1/authz/roles/assign", "admin1", map[string]string{
		"userId": "u9", "role": "supervisor", "facilityId": "1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"assigned"`)
}

func TestCollectionAccessEndpoint(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/v1/authz/collections/patients", "doc1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var access validator.CollectionAccess
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &access))
	assert.True(t, access.HasAccess)
	assert.NotContains(t, access.Operations, models.OpDelete)

	rec = a.do(t, http.MethodGet, "/api/v1/authz/collections/spaceships", "doc1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Doctor has no entry for reports at all.
	rec = a.do(t, http.MethodGet, "/api/v1/authz/collections/reports", "doc1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &access))
	assert.False(t, access.HasAccess)
}

func TestWhoamiEndpoint(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/v1/authz/me", "doc1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var info models.RoleInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "doc1", info.UserID)
	assert.Equal(t, "doctor", info.Role)
	assert.Equal(t, 30, info.Level)

	rec = a.do(t, http.MethodGet, "/api/v1/authz/me", "ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
