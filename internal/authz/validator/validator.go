package validator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vaxtrack/vaxtrack-core/internal/authz/catalog"
	"github.com/vaxtrack/vaxtrack-core/internal/authz/rolemanager"
	"github.com/vaxtrack/vaxtrack-core/internal/identity"
	"github.com/vaxtrack/vaxtrack-core/internal/models"
	"github.com/vaxtrack/vaxtrack-core/internal/monitoring"
	"github.com/vaxtrack/vaxtrack-core/pkg/cache"
	"github.com/vaxtrack/vaxtrack-core/pkg/logger"
)

// PrivilegeEscalationError reports an assignment attempt above the
// requester's own authority.
type PrivilegeEscalationError struct {
	RequesterRole string
	TargetRole    string
}

func (e *PrivilegeEscalationError) Error() string {
	return fmt.Sprintf("privilege escalation: role %s may not assign role %s", e.RequesterRole, e.TargetRole)
}

// Options carries optional pre-resolved context for a check.
type Options struct {
	// UserContext skips the identity lookup when the caller already holds a
	// resolved RoleInfo for the acting user.
	UserContext *models.RoleInfo

	// ResourceContext is the facility of the resource being accessed, when
	// known (e.g. an existing document).
	ResourceContext *models.ResourceContext
}

// CollectionAccess is the batch answer for "what can this role even attempt"
// on a resource, used to render UI affordances.
type CollectionAccess struct {
	HasAccess  bool               `json:"hasAccess"`
	Operations []models.Operation `json:"operations"`
}

// Validator is the request-level decision point. Safe for concurrent use; the
// decision cache is the only shared mutable state.
type Validator struct {
	roles   *rolemanager.Manager
	catalog *catalog.Store
	cache   cache.Cache
	ttl     time.Duration
	logger  logger.Logger
}

func New(roles *rolemanager.Manager, cat *catalog.Store, c cache.Cache, decisionTTL time.Duration, log logger.Logger) *Validator {
	if decisionTTL <= 0 {
		decisionTTL = 30 * time.Second
	}
	v := &Validator{
		roles:   roles,
		catalog: cat,
		cache:   c,
		ttl:     decisionTTL,
		logger:  log,
	}
	// Role changes must drop this user's cached decisions before AssignRole
	// returns.
	roles.RegisterInvalidationHook(v.InvalidateUser)
	return v
}

// CheckPermission decides whether userID may perform operation on the
// resource named by resourcePath. Policy refusals come back as deny decisions
// with a machine-distinguishable reason and a nil error; infrastructure
// failures (identity store unreachable, cancelled context) come back as a
// deny decision plus a non-nil error so callers can retry or surface a 5xx
// instead of misreporting "access denied".
func (v *Validator) CheckPermission(ctx context.Context, userID, resourcePath, operation string, opts *Options) (models.PermissionDecision, error) {
	start := time.Now()
	if opts == nil {
		opts = &Options{}
	}

	// Step 1: resolve and validate the acting user.
	info := opts.UserContext
	if info == nil {
		resolved, err := v.roles.GetUserRoleInfo(ctx, userID)
		switch {
		case err == nil:
			info = resolved
		case errors.Is(err, identity.ErrUserNotFound):
			return v.finish(resourcePath, operation, deny(models.ReasonInvalidUserContext), start), nil
		default:
			// Unreachable identity store is not a policy outcome.
			return deny(models.ReasonConfigurationError), err
		}
	}

	if !v.userContextValid(info) {
		return v.finish(resourcePath, operation, deny(models.ReasonInvalidUserContext), start), nil
	}

	// Step 2: parse the request shape. Distinct from step 1 so tests can
	// tell a malformed request apart from a bad user.
	resource, ok := v.parseResource(resourcePath)
	if !ok {
		return v.finish(resourcePath, operation, deny(models.ReasonInvalidResourceOrOperation), start), nil
	}
	op, ok := models.ParseOperation(operation)
	if !ok {
		return v.finish(resourcePath, operation, deny(models.ReasonInvalidResourceOrOperation), start), nil
	}

	ctxFacility := ""
	if opts.ResourceContext != nil {
		ctxFacility = opts.ResourceContext.FacilityID
	}

	key := decisionKey(info.UserID, resource, op, ctxFacility)
	if cached, ok := v.cachedDecision(ctx, key); ok {
		monitoring.RecordCacheOperation("decision", "hit")
		return cached, nil
	}
	monitoring.RecordCacheOperation("decision", "miss")

	decision := v.evaluate(info, resource, op, ctxFacility)
	v.storeDecision(ctx, key, decision)
	return v.finish(string(resource), string(op), decision, start), nil
}

// evaluate runs steps 3-7 of the decision algorithm on a validated context.
func (v *Validator) evaluate(info *models.RoleInfo, resource models.Resource, op models.Operation, ctxFacility string) models.PermissionDecision {
	role, err := v.catalog.Role(info.Role)
	if err != nil {
		return deny(models.ReasonInvalidUserContext)
	}

	// Step 3: administrator (or any globally-scoped role) short-circuit.
	if role.Unrestricted || role.DataAccess == models.DataAccessAllFacilities {
		return models.PermissionDecision{
			Allowed:     true,
			Scope:       models.ScopeAllFacilities,
			Reason:      models.ReasonAdministratorAccess,
			EvaluatedAt: time.Now(),
		}
	}

	// Step 4: roles below administrator never get implicit delete, even
	// when other operations are wildcarded.
	if op == models.OpDelete && !role.MatrixAllowsExplicit(resource, models.OpDelete) {
		return deny(models.ReasonDeleteNotPermitted)
	}

	// Step 5: the permission matrix.
	if !role.MatrixAllows(resource, op) {
		return deny(models.ReasonPermissionDeniedForRole)
	}

	// Step 6: facility scoping against the resource context. An absent or
	// unparseable facility on the resource fails closed.
	if ctxFacility != "" {
		if !models.IsValidFacilityID(ctxFacility) || ctxFacility != info.FacilityID {
			return deny(models.ReasonFacilityRestriction)
		}
	}

	// Step 7: allowed within the user's own facility.
	return models.PermissionDecision{
		Allowed:     true,
		Scope:       models.ScopeOwnFacility,
		Reason:      models.ReasonAccessGranted,
		EvaluatedAt: time.Now(),
	}
}

// ValidateCollectionAccess is the batch form of the matrix lookup without the
// facility-context step. Delete follows the same explicit-grant rule as
// CheckPermission, so the two can never disagree about what a role may
// attempt.
func (v *Validator) ValidateCollectionAccess(info *models.RoleInfo, resource models.Resource) CollectionAccess {
	if !v.userContextValid(info) || !v.catalog.Catalog().HasResource(resource) {
		return CollectionAccess{}
	}

	role, err := v.catalog.Role(info.Role)
	if err != nil {
		return CollectionAccess{}
	}

	all := []models.Operation{models.OpCreate, models.OpRead, models.OpUpdate, models.OpDelete}
	if role.Unrestricted || role.DataAccess == models.DataAccessAllFacilities {
		return CollectionAccess{HasAccess: true, Operations: all}
	}

	var ops []models.Operation
	for _, op := range all {
		if op == models.OpDelete {
			if role.MatrixAllowsExplicit(resource, models.OpDelete) {
				ops = append(ops, op)
			}
			continue
		}
		if role.MatrixAllows(resource, op) {
			ops = append(ops, op)
		}
	}

	return CollectionAccess{HasAccess: len(ops) > 0, Operations: ops}
}

// AuthorizeAssignment enforces the hierarchy tie-break rule for the role
// assignment surface: equal levels assign laterally, lower never assigns
// higher.
func (v *Validator) AuthorizeAssignment(requester *models.RoleInfo, targetRole string) error {
	if !v.userContextValid(requester) {
		return &PrivilegeEscalationError{RequesterRole: "", TargetRole: targetRole}
	}

	ok, err := v.catalog.Catalog().AssignableBy(requester.Role, targetRole)
	if err != nil {
		return &rolemanager.InvalidRoleError{Role: targetRole}
	}
	if !ok {
		return &PrivilegeEscalationError{RequesterRole: requester.Role, TargetRole: targetRole}
	}
	return nil
}

// InvalidateUser drops every cached decision for a user. Registered as a
// RoleManager invalidation hook; runs inside the user's mutation window.
func (v *Validator) InvalidateUser(ctx context.Context, userID string) {
	if err := v.cache.DeletePattern(ctx, decisionPattern(userID)); err != nil {
		v.logger.Warn("decision cache invalidation failed", "userId", userID, "error", err)
	}
}

// userContextValid applies the UserContext invariants: known role, active
// status, and a facility for every facility-scoped role.
func (v *Validator) userContextValid(info *models.RoleInfo) bool {
	if info == nil || info.UserID == "" {
		return false
	}
	role, err := v.catalog.Role(info.Role)
	if err != nil {
		return false
	}
	if info.Status != "" && info.Status != "active" {
		return false
	}
	if role.DataAccess != models.DataAccessAllFacilities && info.FacilityID == "" {
		return false
	}
	return true
}

// parseResource accepts either a bare resource name ("patients") or a dotted
// path whose final segment names the resource ("records.patients"), and
// requires the result to be registered in the catalog.
func (v *Validator) parseResource(path string) (models.Resource, bool) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", false
	}
	if idx := strings.LastIndex(trimmed, "."); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	resource := models.Resource(trimmed)
	if !v.catalog.Catalog().HasResource(resource) {
		return "", false
	}
	return resource, true
}

func decisionKey(userID string, resource models.Resource, op models.Operation, ctxFacility string) string {
	return fmt.Sprintf("authz:decision:%s:%s:%s:%s", userID, resource, op, ctxFacility)
}

func decisionPattern(userID string) string {
	return fmt.Sprintf("authz:decision:%s:*", userID)
}

func (v *Validator) cachedDecision(ctx context.Context, key string) (models.PermissionDecision, bool) {
	data, err := v.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			v.logger.Warn("decision cache read failed", "key", key, "error", err)
		}
		return models.PermissionDecision{}, false
	}

	var decision models.PermissionDecision
	if err := json.Unmarshal(data, &decision); err != nil {
		v.logger.Warn("failed to unmarshal cached decision", "key", key, "error", err)
		return models.PermissionDecision{}, false
	}
	return decision, true
}

func (v *Validator) storeDecision(ctx context.Context, key string, decision models.PermissionDecision) {
	if err := v.cache.Set(ctx, key, decision, v.ttl); err != nil {
		v.logger.Warn("decision cache write failed", "key", key, "error", err)
	}
}

func (v *Validator) finish(resource, operation string, decision models.PermissionDecision, start time.Time) models.PermissionDecision {
	monitoring.RecordDecision(resource, operation, decision.Allowed, time.Since(start))
	if !decision.Allowed {
		v.logger.Debug("permission denied", "resource", resource, "operation", operation, "reason", decision.Reason)
	}
	return decision
}

func deny(reason string) models.PermissionDecision {
	return models.PermissionDecision{
		Allowed:     false,
		Scope:       models.ScopeNone,
		Reason:      reason,
		EvaluatedAt: time.Now(),
	}
}
