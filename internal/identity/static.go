package identity

import (
	"context"
	"sync"
)

// StaticProvider is an in-memory identity store for development and tests.
type StaticProvider struct {
	mu    sync.RWMutex
	users map[string]*User
}

func NewStaticProvider(users ...*User) *StaticProvider {
	p := &StaticProvider{users: make(map[string]*User, len(users))}
	for _, u := range users {
		copied := *u
		p.users[u.ID] = &copied
	}
	return p
}

func (p *StaticProvider) GetUser(ctx context.Context, userID string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, &NetworkError{Op: "lookup", Err: err}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	u, ok := p.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (p *StaticProvider) SaveRoleAssignment(ctx context.Context, userID, role, facilityID string) error {
	if err := ctx.Err(); err != nil {
		return &NetworkError{Op: "assign", Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Role = role
	u.FacilityID = facilityID
	return nil
}

// AddUser registers or replaces a user fixture.
func (p *StaticProvider) AddUser(u *User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	copied := *u
	p.users[u.ID] = &copied
}
