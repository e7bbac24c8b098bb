package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticProviderLookup(t *testing.T) {
	p := NewStaticProvider(&User{ID: "u1", Status: "active", Role: "doctor", FacilityID: "1"})
	ctx := context.Background()

	u, err := p.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "doctor", u.Role)

	// Callers get copies, not the stored value.
	u.Role = "administrator"
	again, err := p.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "doctor", again.Role)

	_, err = p.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestStaticProviderSaveRoleAssignment(t *testing.T) {
	p := NewStaticProvider(&User{ID: "u1", Status: "active", Role: "doctor", FacilityID: "1"})
	ctx := context.Background()

	require.NoError(t, p.SaveRoleAssignment(ctx, "u1", "supervisor", "2"))
	u, err := p.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "supervisor", u.Role)
	assert.Equal(t, "2", u.FacilityID)

	err = p.SaveRoleAssignment(ctx, "ghost", "doctor", "1")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestStaticProviderRespectsCancellation(t *testing.T) {
	p := NewStaticProvider(&User{ID: "u1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.GetUser(ctx, "u1")
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)

	err = p.SaveRoleAssignment(ctx, "u1", "doctor", "1")
	require.ErrorAs(t, err, &netErr)
}
