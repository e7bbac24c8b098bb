package models

import (
	"fmt"
	"time"
)

// Grant vocabulary. Grants are (operation, principal) pairs attached to a
// stored document or collection; the storage layer interprets them as its
// native access-control primitives.

// GrantOp is the closed set of grant operations.
type GrantOp string

const (
	GrantRead  GrantOp = "read"
	GrantWrite GrantOp = "write"
)

// Principal kinds. Principals are rendered as "<kind>:<id>".
const (
	PrincipalRolePrefix  = "role:"
	PrincipalGroupPrefix = "group:"
	PrincipalUserPrefix  = "user:"
)

// Grant is a single stored access-control entry.
type Grant struct {
	Op        GrantOp `json:"op"`
	Principal string  `json:"principal"`
}

func RoleGrant(op GrantOp, role string) Grant {
	return Grant{Op: op, Principal: PrincipalRolePrefix + role}
}

func GroupGrant(op GrantOp, groupID string) Grant {
	return Grant{Op: op, Principal: PrincipalGroupPrefix + groupID}
}

func UserGrant(op GrantOp, userID string) Grant {
	return Grant{Op: op, Principal: PrincipalUserPrefix + userID}
}

func (g Grant) String() string {
	return fmt.Sprintf("%s(%s)", g.Op, g.Principal)
}

// GrantSet is the full access-control list written at creation time. Written
// once, replaced wholesale by migration, never incrementally patched.
type GrantSet []Grant

// Contains reports whether an identical grant is present.
func (gs GrantSet) Contains(g Grant) bool {
	for _, have := range gs {
		if have == g {
			return true
		}
	}
	return false
}

// GrantsRole reports whether the set carries op for the named role principal.
func (gs GrantSet) GrantsRole(op GrantOp, role string) bool {
	return gs.Contains(RoleGrant(op, role))
}

// Document is the stored-document projection the engine cares about: identity,
// facility scoping and the grant list. Payload fields stay opaque.
type Document struct {
	ID         string                 `json:"id"`
	FacilityID string                 `json:"facilityId"`
	Data       map[string]interface{} `json:"data"`
	Grants     GrantSet               `json:"grants"`
	CreatedBy  string                 `json:"createdBy"`
	CreatedAt  time.Time              `json:"createdAt"`
	UpdatedAt  time.Time              `json:"updatedAt"`
}

// Collection is the storage layer's collection descriptor, used by the
// permissions migrator when rewriting baseline ACLs.
type Collection struct {
	Database string   `json:"database"`
	Name     string   `json:"name"`
	Grants   GrantSet `json:"grants"`
}

// QueryFilter is a single equality predicate in a query descriptor.
type QueryFilter struct {
	Field string      `json:"field"`
	Op    string      `json:"op"` // only "eq" today
	Value interface{} `json:"value"`
}

// FilterEq builds the one filter shape the storage layer executes.
func FilterEq(field string, value interface{}) QueryFilter {
	return QueryFilter{Field: field, Op: "eq", Value: value}
}

// QueryDescriptor is a rewritten query ready for the storage layer. The
// facility filter, when present, was injected by the engine and must never be
// removed downstream.
type QueryDescriptor struct {
	Resource Resource      `json:"resource"`
	Filters  []QueryFilter `json:"filters"`

	// FacilityScoped records whether a facility filter was injected, so
	// callers can audit that scoping happened without re-parsing filters.
	FacilityScoped bool `json:"facilityScoped"`
}
