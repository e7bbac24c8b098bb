package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vaxtrack/vaxtrack-core/internal/authz/catalog"
	"github.com/vaxtrack/vaxtrack-core/internal/authz/rolemanager"
	"github.com/vaxtrack/vaxtrack-core/internal/authz/validator"
	"github.com/vaxtrack/vaxtrack-core/internal/identity"
	"github.com/vaxtrack/vaxtrack-core/internal/models"
	"github.com/vaxtrack/vaxtrack-core/pkg/logger"
)

// Handlers owns the authorization HTTP surface.
type Handlers struct {
	validator *validator.Validator
	roles     *rolemanager.Manager
	catalog   *catalog.Store
	logger    logger.Logger
}

func NewHandlers(v *validator.Validator, roles *rolemanager.Manager, cat *catalog.Store, log logger.Logger) *Handlers {
	return &Handlers{validator: v, roles: roles, catalog: cat, logger: log}
}

type checkRequest struct {
	UserID     string `json:"userId"`
	Resource   string `json:"resource" binding:"required"`
	Operation  string `json:"operation" binding:"required"`
	FacilityID string `json:"facilityId"`
}

// CheckPermission answers POST /api/v1/authz/check. Policy refusals are 200
// responses carrying a deny decision; only infrastructure failures surface as
// 5xx so clients never mistake an outage for a denial.
func (h *Handlers) CheckPermission(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "resource and operation are required"})
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = authenticatedUser(c)
	}

	var opts validator.Options
	if req.FacilityID != "" {
		opts.ResourceContext = &models.ResourceContext{FacilityID: req.FacilityID}
	}

	decision, err := h.validator.CheckPermission(c.Request.Context(), userID, req.Resource, req.Operation, &opts)
	if err != nil {
		h.logger.Error("permission check failed", "userId", userID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "authorization backend unavailable"})
		return
	}

	c.JSON(http.StatusOK, decision)
}

type assignRoleRequest struct {
	UserID     string `json:"userId"`
	Role       string `json:"role"`
	FacilityID string `json:"facilityId"`
}

// AssignRole answers POST /api/v1/authz/roles/assign. Every refusal carries a
// distinguishable error string so operators can tell a missing field from an
// escalation attempt from a backend outage.
func (h *Handlers) AssignRole(c *gin.Context) {
	var req assignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" || req.Role == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and role are required"})
		return
	}

	ctx := c.Request.Context()

	requester, err := h.roles.GetUserRoleInfo(ctx, authenticatedUser(c))
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			c.JSON(http.StatusForbidden, gin.H{"error": "requesting user is not recognized"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "identity backend unavailable"})
		return
	}

	if err := h.validator.AuthorizeAssignment(requester, req.Role); err != nil {
		var escalation *validator.PrivilegeEscalationError
		if errors.As(err, &escalation) {
			c.JSON(http.StatusForbidden, gin.H{"error": "cannot assign a role above your own"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role: " + req.Role})
		return
	}

	// Facility-scoped requesters may only assign within their own facility.
	if !requester.Unrestricted && requester.DataAccess != models.DataAccessAllFacilities &&
		req.FacilityID != "" && req.FacilityID != requester.FacilityID {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot assign roles outside your facility"})
		return
	}

	if err := h.roles.AssignRole(ctx, req.UserID, req.Role, req.FacilityID); err != nil {
		h.respondAssignError(c, req, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "assigned",
		"userId":     req.UserID,
		"role":       req.Role,
		"facilityId": req.FacilityID,
	})
}

func (h *Handlers) respondAssignError(c *gin.Context, req assignRoleRequest, err error) {
	var (
		invalidRole     *rolemanager.InvalidRoleError
		missingFacility *rolemanager.MissingFacilityError
		invalidFacility *rolemanager.InvalidFacilityError
		netErr          *identity.NetworkError
	)
	switch {
	case errors.As(err, &invalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role: " + req.Role})
	case errors.As(err, &missingFacility):
		c.JSON(http.StatusBadRequest, gin.H{"error": "role " + req.Role + " requires a facility"})
	case errors.As(err, &invalidFacility):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid facility id: " + req.FacilityID})
	case errors.Is(err, identity.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found: " + req.UserID})
	case errors.As(err, &netErr):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "identity backend unavailable"})
	default:
		h.logger.Error("role assignment failed", "userId", req.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "role assignment failed"})
	}
}

// CollectionAccess answers GET /api/v1/authz/collections/:resource for the
// authenticated user: which operations the role may even attempt.
func (h *Handlers) CollectionAccess(c *gin.Context) {
	resource := models.Resource(c.Param("resource"))
	if !h.catalog.Catalog().HasResource(resource) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown resource: " + string(resource)})
		return
	}

	info, err := h.roles.GetUserRoleInfo(c.Request.Context(), authenticatedUser(c))
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			c.JSON(http.StatusOK, validator.CollectionAccess{})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "identity backend unavailable"})
		return
	}

	c.JSON(http.StatusOK, h.validator.ValidateCollectionAccess(info, resource))
}

// Whoami answers GET /api/v1/authz/me with the caller's resolved role
// projection, mainly for debugging assignments.
func (h *Handlers) Whoami(c *gin.Context) {
	info, err := h.roles.GetUserRoleInfo(c.Request.Context(), authenticatedUser(c))
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "identity backend unavailable"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// Health answers GET /health. Reports the catalog version so operators can
// confirm a reload took effect.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"catalogVersion": h.catalog.Version(),
	})
}
