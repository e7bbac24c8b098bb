package rolemanager

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vaxtrack/vaxtrack-core/internal/authz/catalog"
	"github.com/vaxtrack/vaxtrack-core/internal/identity"
	"github.com/vaxtrack/vaxtrack-core/internal/models"
	"github.com/vaxtrack/vaxtrack-core/internal/monitoring"
	"github.com/vaxtrack/vaxtrack-core/pkg/logger"
)

// InvalidationHook is called after a user's cached role information is
// dropped, so downstream caches (decision cache) can drop theirs too.
// Hooks run inside the user's mutation window: by the time AssignRole
// returns, every registered hook has completed.
type InvalidationHook func(ctx context.Context, userID string)

// Manager resolves identities to role/facility/capability projections and
// answers the core permission and facility-scope questions.
type Manager struct {
	catalog  *catalog.Store
	identity identity.Provider
	cache    *lru.Cache[string, *models.RoleInfo]
	locks    *userLocks
	hooks    []InvalidationHook
	logger   logger.Logger

	// gen is bumped inside every invalidation's critical section. A resolve
	// that read the identity store before the bump discards its cache write,
	// so an in-flight lookup can never resurrect pre-assignment state after
	// AssignRole has returned.
	gen atomic.Uint64
}

const defaultCacheSize = 4096

// NewManager builds a Manager with an in-process RoleInfo cache of the given
// size (0 picks the default).
func NewManager(cat *catalog.Store, id identity.Provider, cacheSize int, log logger.Logger) (*Manager, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	c, err := lru.New[string, *models.RoleInfo](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create role info cache: %w", err)
	}
	return &Manager{
		catalog:  cat,
		identity: id,
		cache:    c,
		locks:    newUserLocks(),
		logger:   log,
	}, nil
}

// RegisterInvalidationHook adds a hook. Call during wiring, before the
// manager starts serving requests.
func (m *Manager) RegisterInvalidationHook(h InvalidationHook) {
	m.hooks = append(m.hooks, h)
}

// HasPermission answers the raw matrix question for a user context. Unknown
// roles deny everything; unrestricted roles allow everything.
func (m *Manager) HasPermission(userCtx *models.UserContext, resource models.Resource, op models.Operation) bool {
	if userCtx == nil {
		return false
	}
	role, err := m.catalog.Role(userCtx.Role)
	if err != nil {
		return false
	}
	if role.Unrestricted {
		return true
	}
	return role.MatrixAllows(resource, op)
}

// ValidateFacilityAccess reports whether the user may touch data belonging to
// facilityID. Roles with all-facility access always pass; everyone else must
// match exactly, and a user without a facility never matches anything.
func (m *Manager) ValidateFacilityAccess(userCtx *models.UserContext, facilityID string) bool {
	if userCtx == nil {
		return false
	}
	role, err := m.catalog.Role(userCtx.Role)
	if err != nil {
		return false
	}
	if role.DataAccess == models.DataAccessAllFacilities {
		return true
	}
	if userCtx.FacilityID == "" {
		return false
	}
	return userCtx.FacilityID == facilityID
}

// CanAccessMultipleFacilities is a pure function of the role definition.
func (m *Manager) CanAccessMultipleFacilities(userCtx *models.UserContext) bool {
	if userCtx == nil {
		return false
	}
	role, err := m.catalog.Role(userCtx.Role)
	if err != nil {
		return false
	}
	return role.CanAccessMultipleFacilities
}

// GetUserRoleInfo resolves the external identity into a decorated RoleInfo,
// serving from the per-user cache when possible. Identity-store failures
// propagate as errors so callers can retry instead of reporting a denial.
func (m *Manager) GetUserRoleInfo(ctx context.Context, userID string) (*models.RoleInfo, error) {
	if info, ok := m.cache.Get(userID); ok {
		monitoring.RecordCacheOperation("role_info", "hit")
		return info, nil
	}
	monitoring.RecordCacheOperation("role_info", "miss")

	gen := m.gen.Load()

	start := time.Now()
	user, err := m.identity.GetUser(ctx, userID)
	monitoring.RecordIdentityLookup(time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}

	info := m.buildRoleInfo(user)

	// Funnel the cache write through the user's mutation point so it cannot
	// race a concurrent AssignRole invalidation for the same user. If an
	// invalidation ran while this resolve was at the identity store, the
	// snapshot is suspect: return it to the caller (the resolve began before
	// the mutation) but never cache it.
	unlock := m.locks.lock(userID)
	if m.gen.Load() == gen {
		m.cache.Add(userID, info)
	}
	unlock()

	return info, nil
}

func (m *Manager) buildRoleInfo(user *identity.User) *models.RoleInfo {
	info := &models.RoleInfo{
		UserContext: models.UserContext{
			UserID:     user.ID,
			Role:       user.Role,
			FacilityID: user.FacilityID,
			Labels:     user.Labels,
		},
		Email:  user.Email,
		Status: user.Status,
	}

	// A role missing from the catalog leaves the decorations zeroed; every
	// downstream check treats that as unauthenticated.
	role, err := m.catalog.Role(user.Role)
	if err != nil {
		m.logger.Warn("user carries unknown role, treating as unauthenticated",
			"userId", user.ID, "role", user.Role)
		return info
	}

	info.Level = role.Level
	info.DataAccess = role.DataAccess
	info.SpecialPermissions = role.SpecialPermissions
	info.CanAccessMultipleFacilities = role.CanAccessMultipleFacilities
	info.Unrestricted = role.Unrestricted
	return info
}

// AssignRole validates and persists a role/facility association, then
// synchronously invalidates the user's cached state. Hierarchy enforcement
// (who may assign what) happens one layer up, at the decision point.
func (m *Manager) AssignRole(ctx context.Context, userID, roleName, facilityID string) error {
	role, err := m.catalog.Role(roleName)
	if err != nil {
		return &InvalidRoleError{Role: roleName}
	}

	if role.DataAccess != models.DataAccessAllFacilities {
		if facilityID == "" {
			return &MissingFacilityError{Role: roleName}
		}
		if !models.IsValidFacilityID(facilityID) {
			return &InvalidFacilityError{FacilityID: facilityID}
		}
	}

	if err := m.identity.SaveRoleAssignment(ctx, userID, roleName, facilityID); err != nil {
		return err
	}

	m.InvalidateUser(ctx, userID)
	m.logger.Info("role assigned", "userId", userID, "role", roleName, "facilityId", facilityID)
	return nil
}

// InvalidateUser drops the user's cached RoleInfo and fans out to registered
// hooks. Checks racing the invalidation may observe old or new state, but a
// check issued after this returns always sees the new assignment.
func (m *Manager) InvalidateUser(ctx context.Context, userID string) {
	unlock := m.locks.lock(userID)
	defer unlock()

	m.gen.Add(1)
	m.cache.Remove(userID)
	for _, h := range m.hooks {
		h(ctx, userID)
	}
}

// StartLockSweeper runs the periodic cleanup of idle per-user lock entries.
// It blocks until ctx is cancelled.
func (m *Manager) StartLockSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := m.locks.sweep(10 * interval)
			if removed > 0 {
				m.logger.Debug("swept idle user locks", "removed", removed)
			}
		}
	}
}
