package rolemanager

import "fmt"

// InvalidRoleError reports an assignment naming a role absent from the
// catalog.
type InvalidRoleError struct {
	Role string
}

func (e *InvalidRoleError) Error() string {
	return fmt.Sprintf("invalid role: %s", e.Role)
}

// MissingFacilityError reports an assignment of a facility-scoped role
// without a facility.
type MissingFacilityError struct {
	Role string
}

func (e *MissingFacilityError) Error() string {
	return fmt.Sprintf("facility ID is required for role %s", e.Role)
}

// InvalidFacilityError reports a facility identifier that does not parse.
type InvalidFacilityError struct {
	FacilityID string
}

func (e *InvalidFacilityError) Error() string {
	return fmt.Sprintf("invalid facility ID: %q", e.FacilityID)
}
