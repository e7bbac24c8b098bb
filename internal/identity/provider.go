package identity

import (
	"context"
	"errors"
	"fmt"
)

// User is the identity store's view of a person: who they are plus the
// persisted role/facility association the engine layers authorization on.
type User struct {
	ID         string   `json:"id"`
	Email      string   `json:"email"`
	Labels     []string `json:"labels"`
	Status     string   `json:"status"` // active, suspended, deactivated
	Role       string   `json:"role"`
	FacilityID string   `json:"facilityId"`
}

// ErrUserNotFound is returned when the identity store has no such user.
var ErrUserNotFound = errors.New("identity: user not found")

// NetworkError wraps transport failures talking to the identity store, so
// callers can distinguish "unreachable" from "denied" and surface a retryable
// error instead of a silent denial.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("identity %s failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Provider resolves users and persists role assignments. Implementations may
// block on the network; both methods must respect ctx cancellation.
type Provider interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	SaveRoleAssignment(ctx context.Context, userID, role, facilityID string) error
}
