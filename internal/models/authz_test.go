package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOperation(t *testing.T) {
	for _, valid := range []string{"create", "read", "update", "delete", " Read ", "DELETE"} {
		op, ok := ParseOperation(valid)
		assert.True(t, ok, "expected %q to parse", valid)
		assert.NotEmpty(t, op)
	}

	for _, invalid := range []string{"", "*", "browse", "read,write"} {
		_, ok := ParseOperation(invalid)
		assert.False(t, ok, "expected %q to be rejected", invalid)
	}
}

func TestMatrixAllowsWildcards(t *testing.T) {
	role := &Role{
		Name: "supervisor",
		Permissions: map[Resource][]Operation{
			"patients":  {OpAny},
			"reports":   {OpCreate, OpRead},
			ResourceAny: {OpRead},
		},
	}

	assert.True(t, role.MatrixAllows("patients", OpDelete), "op wildcard covers delete in the raw matrix")
	assert.True(t, role.MatrixAllows("reports", OpCreate))
	assert.False(t, role.MatrixAllows("reports", OpUpdate))
	// The resource wildcard applies to resources with no entry at all.
	assert.True(t, role.MatrixAllows("vaccines", OpRead))
	assert.False(t, role.MatrixAllows("vaccines", OpUpdate))
}

func TestMatrixAllowsExplicitIgnoresOpWildcards(t *testing.T) {
	role := &Role{
		Name: "supervisor",
		Permissions: map[Resource][]Operation{
			"patients":  {OpAny},
			"vaccines":  {OpRead, OpDelete},
			ResourceAny: {OpAny},
		},
	}

	assert.False(t, role.MatrixAllowsExplicit("patients", OpDelete), "op wildcard must not satisfy an explicit check")
	assert.False(t, role.MatrixAllowsExplicit("reports", OpDelete), "op wildcard under the resource wildcard must not either")
	assert.True(t, role.MatrixAllowsExplicit("vaccines", OpDelete))

	// A spelled-out delete under the resource wildcard is an explicit grant.
	wild := &Role{
		Name: "archivist",
		Permissions: map[Resource][]Operation{
			ResourceAny: {OpRead, OpDelete},
		},
	}
	assert.True(t, wild.MatrixAllowsExplicit("patients", OpDelete))
	assert.False(t, wild.MatrixAllowsExplicit("patients", OpUpdate))
}

func TestIsValidFacilityID(t *testing.T) {
	assert.True(t, IsValidFacilityID("1"))
	assert.True(t, IsValidFacilityID("0042"))

	assert.False(t, IsValidFacilityID(""))
	assert.False(t, IsValidFacilityID("fac-1"))
	assert.False(t, IsValidFacilityID("1 "))
	assert.False(t, IsValidFacilityID("-1"))
}

func TestGrantSetContains(t *testing.T) {
	gs := GrantSet{
		RoleGrant(GrantRead, "administrator"),
		GroupGrant(GrantRead, "1"),
		RoleGrant(GrantWrite, "doctor"),
	}

	assert.True(t, gs.Contains(RoleGrant(GrantRead, "administrator")))
	assert.True(t, gs.GrantsRole(GrantWrite, "doctor"))
	assert.False(t, gs.GrantsRole(GrantWrite, "user"))
	assert.False(t, gs.Contains(GroupGrant(GrantWrite, "1")))
}
