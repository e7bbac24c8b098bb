package models

import (
	"strings"
	"time"
)

// Authorization models for the facility-scoped permission engine.

// Operation is the closed set of actions the permission matrix knows about.
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"

	// OpAny is only valid inside a role's permission matrix ("every
	// operation on this resource"). It never appears in a request.
	OpAny Operation = "*"
)

// ParseOperation maps a request string onto the closed enum. OpAny is not a
// requestable operation.
func ParseOperation(s string) (Operation, bool) {
	switch Operation(strings.ToLower(strings.TrimSpace(s))) {
	case OpCreate:
		return OpCreate, true
	case OpRead:
		return OpRead, true
	case OpUpdate:
		return OpUpdate, true
	case OpDelete:
		return OpDelete, true
	}
	return "", false
}

// Resource names a registered collection (patients, immunizations, ...).
// The set of valid resources lives in the role catalog, so an unknown
// resource is a detectable error rather than a silently-false map lookup.
type Resource string

// ResourceAny is the matrix wildcard counterpart of OpAny.
const ResourceAny Resource = "*"

// DataAccess is a role's data-visibility tier.
type DataAccess string

const (
	DataAccessAllFacilities DataAccess = "all_facilities"
	DataAccessFacilityOnly  DataAccess = "facility_only"
)

// Scope is the breadth of data a single allow decision authorizes.
type Scope string

const (
	ScopeAllFacilities Scope = "all_facilities"
	ScopeOwnFacility   Scope = "own_facility"
	ScopeNone          Scope = "none"
)

// Machine-distinguishable decision reasons. These strings are the contract
// with consumers and tests; end users only ever see a generic denial.
const (
	ReasonInvalidUserContext         = "invalid_user_context"
	ReasonInvalidResourceOrOperation = "invalid_resource_or_operation"
	ReasonAdministratorAccess        = "administrator access granted"
	ReasonDeleteNotPermitted         = "delete operation not permitted"
	ReasonPermissionDeniedForRole    = "permission_denied_for_role"
	ReasonFacilityRestriction        = "facility access restriction"
	ReasonConfigurationError         = "configuration_error"
	ReasonAccessGranted              = "access granted"
)

// Role is an immutable catalog entry. The catalog replaces roles wholesale on
// reload; nothing mutates a Role after load.
type Role struct {
	Name  string `json:"name" yaml:"name"`
	Level int    `json:"level" yaml:"level"`

	// Permissions maps resource -> allowed operations. OpAny inside a
	// resource entry means every operation; a ResourceAny key applies to
	// every resource. Unrestricted roles skip the matrix entirely.
	Permissions map[Resource][]Operation `json:"permissions" yaml:"permissions"`

	DataAccess         DataAccess `json:"dataAccess" yaml:"data_access"`
	SpecialPermissions []string   `json:"specialPermissions" yaml:"special_permissions"`

	// Unrestricted replaces the legacy "*:*" magic string: the role passes
	// every matrix check without lookup.
	Unrestricted bool `json:"unrestricted" yaml:"unrestricted"`

	CanAccessMultipleFacilities bool `json:"canAccessMultipleFacilities" yaml:"can_access_multiple_facilities"`
}

// HasSpecialPermission reports whether the role carries a named capability
// outside the resource matrix, e.g. "user_management".
func (r *Role) HasSpecialPermission(name string) bool {
	for _, p := range r.SpecialPermissions {
		if p == name {
			return true
		}
	}
	return false
}

// MatrixAllows checks the permission matrix only. It intentionally knows
// nothing about Unrestricted or the administrator short-circuit; those live
// one layer up.
func (r *Role) MatrixAllows(resource Resource, op Operation) bool {
	if opsAllow(r.Permissions[resource], op) {
		return true
	}
	return opsAllow(r.Permissions[ResourceAny], op)
}

// MatrixAllowsExplicit requires the operation to be listed verbatim, either
// for the resource itself or under the resource wildcard. OpAny never
// satisfies it; delete checks use this, so an operation wildcard confers
// everything except delete while a spelled-out delete entry always counts.
func (r *Role) MatrixAllowsExplicit(resource Resource, op Operation) bool {
	for _, o := range r.Permissions[resource] {
		if o == op {
			return true
		}
	}
	for _, o := range r.Permissions[ResourceAny] {
		if o == op {
			return true
		}
	}
	return false
}

func opsAllow(ops []Operation, op Operation) bool {
	for _, o := range ops {
		if o == op || o == OpAny {
			return true
		}
	}
	return false
}

// UserContext is the transient per-request projection of a resolved identity.
// It is cached keyed by user ID and never persisted.
type UserContext struct {
	UserID     string   `json:"userId"`
	Role       string   `json:"role"`
	FacilityID string   `json:"facilityId"` // empty only valid for all_facilities roles
	Labels     []string `json:"labels"`
}

// RoleInfo decorates a UserContext with catalog-derived capabilities.
type RoleInfo struct {
	UserContext

	Email                       string     `json:"email"`
	Status                      string     `json:"status"`
	Level                       int        `json:"level"`
	DataAccess                  DataAccess `json:"dataAccess"`
	SpecialPermissions          []string   `json:"specialPermissions"`
	CanAccessMultipleFacilities bool       `json:"canAccessMultipleFacilities"`
	Unrestricted                bool       `json:"unrestricted"`
}

// PermissionDecision is the output of a single check. Pure value; discarded
// after use.
type PermissionDecision struct {
	Allowed     bool      `json:"allowed"`
	Scope       Scope     `json:"scope"`
	Reason      string    `json:"reason"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// ResourceContext is an optional hint accompanying a check, typically the
// facility of the document being accessed. It never mutates the user context.
type ResourceContext struct {
	FacilityID string `json:"facilityId"`
}

// IsValidFacilityID reports whether a stored facility identifier is usable
// for scope comparison. Facility IDs in this system are decimal strings; a
// document carrying anything else is treated as having no facility at all
// (fail closed for non-administrators).
func IsValidFacilityID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
