package catalog

import (
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vaxtrack/vaxtrack-core/internal/models"
)

// ConfigError reports a malformed catalog definition. At startup it is fatal;
// on reload the previous good catalog stays in place.
type ConfigError struct {
	Section string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog config error [%s]: %s: %v", e.Section, e.Message, e.Err)
	}
	return fmt.Sprintf("catalog config error [%s]: %s", e.Section, e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NotFoundError reports a role absent from the catalog. Callers treat the
// bearer of such a role as unauthenticated.
type NotFoundError struct {
	Role string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("role not found in catalog: %s", e.Role)
}

// SecurityRules are catalog-level settings outside the role matrix.
type SecurityRules struct {
	// AdministratorRole names the unrestricted top role. Every generated
	// grant set carries a read grant for it.
	AdministratorRole string `yaml:"administrator_role"`

	// ExtraCollectionReadRoles adds baseline read grants on specific
	// collections beyond what the matrix implies, e.g. reporting jobs.
	ExtraCollectionReadRoles map[string][]string `yaml:"extra_collection_read_roles"`
}

// Catalog is an immutable snapshot of the role/resource/security-rule
// configuration. Reload builds a fresh Catalog and swaps it in whole; readers
// never observe a half-applied state.
type Catalog struct {
	roles     map[string]*models.Role
	resources map[models.Resource]struct{}
	rules     SecurityRules

	Version  int64
	LoadedAt time.Time
}

// Role returns the definition for a role name.
func (c *Catalog) Role(name string) (*models.Role, error) {
	role, ok := c.roles[name]
	if !ok {
		return nil, &NotFoundError{Role: name}
	}
	return role, nil
}

// HasRole reports catalog membership without the error allocation.
func (c *Catalog) HasRole(name string) bool {
	_, ok := c.roles[name]
	return ok
}

// HasResource reports whether a resource name is registered.
func (c *Catalog) HasResource(r models.Resource) bool {
	_, ok := c.resources[r]
	return ok
}

// Resources returns the registered resource names, sorted for stable output.
func (c *Catalog) Resources() []models.Resource {
	out := make([]models.Resource, 0, len(c.resources))
	for r := range c.resources {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Roles returns every role definition, sorted by descending level.
func (c *Catalog) Roles() []*models.Role {
	out := make([]*models.Role, 0, len(c.roles))
	for _, r := range c.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level > out[j].Level
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Rules returns the catalog-level security rules.
func (c *Catalog) Rules() SecurityRules { return c.rules }

// AdministratorRole returns the configured top-role name.
func (c *Catalog) AdministratorRole() string { return c.rules.AdministratorRole }

// AssignableBy implements the hierarchy tie-break rule: equal levels may
// assign each other laterally, a strictly lower level may never assign a
// strictly higher one.
func (c *Catalog) AssignableBy(assignerRole, targetRole string) (bool, error) {
	assigner, err := c.Role(assignerRole)
	if err != nil {
		return false, err
	}
	target, err := c.Role(targetRole)
	if err != nil {
		return false, err
	}
	return assigner.Level >= target.Level, nil
}

// catalogFile is the on-disk YAML shape.
type catalogFile struct {
	Roles         map[string]roleEntry `yaml:"roles"`
	Resources     []string             `yaml:"resources"`
	SecurityRules SecurityRules        `yaml:"security_rules"`
}

type roleEntry struct {
	Level                       int                 `yaml:"level"`
	DataAccess                  string              `yaml:"data_access"`
	Unrestricted                bool                `yaml:"unrestricted"`
	SpecialPermissions          []string            `yaml:"special_permissions"`
	Permissions                 map[string][]string `yaml:"permissions"`
	CanAccessMultipleFacilities *bool               `yaml:"can_access_multiple_facilities"`
}

// parse validates raw YAML into an immutable Catalog. Any inconsistency is a
// ConfigError; a catalog is either fully valid or rejected.
func parse(data []byte, version int64) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &ConfigError{Section: "catalog", Message: "invalid YAML", Err: err}
	}

	if len(file.Roles) == 0 {
		return nil, &ConfigError{Section: "roles", Message: "no roles defined"}
	}
	if len(file.Resources) == 0 {
		return nil, &ConfigError{Section: "resources", Message: "no resources registered"}
	}

	resources := make(map[models.Resource]struct{}, len(file.Resources))
	for _, name := range file.Resources {
		r := models.Resource(name)
		if r == models.ResourceAny || name == "" {
			return nil, &ConfigError{Section: "resources", Message: fmt.Sprintf("invalid resource name %q", name)}
		}
		if _, dup := resources[r]; dup {
			return nil, &ConfigError{Section: "resources", Message: fmt.Sprintf("duplicate resource %q", name)}
		}
		resources[r] = struct{}{}
	}

	roles := make(map[string]*models.Role, len(file.Roles))
	for name, entry := range file.Roles {
		role, err := buildRole(name, entry, resources)
		if err != nil {
			return nil, err
		}
		roles[name] = role
	}

	rules := file.SecurityRules
	if rules.AdministratorRole == "" {
		rules.AdministratorRole = "administrator"
	}
	admin, ok := roles[rules.AdministratorRole]
	if !ok {
		return nil, &ConfigError{Section: "security_rules", Message: fmt.Sprintf("administrator_role %q is not a defined role", rules.AdministratorRole)}
	}
	if !admin.Unrestricted || admin.DataAccess != models.DataAccessAllFacilities {
		return nil, &ConfigError{Section: "security_rules", Message: fmt.Sprintf("administrator_role %q must be unrestricted with all_facilities access", rules.AdministratorRole)}
	}
	for collection, extraRoles := range rules.ExtraCollectionReadRoles {
		if _, ok := resources[models.Resource(collection)]; !ok {
			return nil, &ConfigError{Section: "security_rules", Message: fmt.Sprintf("extra_collection_read_roles references unknown resource %q", collection)}
		}
		for _, r := range extraRoles {
			if _, ok := roles[r]; !ok {
				return nil, &ConfigError{Section: "security_rules", Message: fmt.Sprintf("extra_collection_read_roles references unknown role %q", r)}
			}
		}
	}

	return &Catalog{
		roles:     roles,
		resources: resources,
		rules:     rules,
		Version:   version,
		LoadedAt:  time.Now(),
	}, nil
}

func buildRole(name string, entry roleEntry, resources map[models.Resource]struct{}) (*models.Role, error) {
	if name == "" {
		return nil, &ConfigError{Section: "roles", Message: "role with empty name"}
	}
	if entry.Level <= 0 {
		return nil, &ConfigError{Section: "roles", Message: fmt.Sprintf("role %q: level must be positive", name)}
	}

	var access models.DataAccess
	switch entry.DataAccess {
	case "", string(models.DataAccessFacilityOnly):
		access = models.DataAccessFacilityOnly
	case string(models.DataAccessAllFacilities):
		access = models.DataAccessAllFacilities
	default:
		return nil, &ConfigError{Section: "roles", Message: fmt.Sprintf("role %q: invalid data_access %q", name, entry.DataAccess)}
	}

	if entry.Unrestricted && access != models.DataAccessAllFacilities {
		return nil, &ConfigError{Section: "roles", Message: fmt.Sprintf("role %q: unrestricted roles require all_facilities access", name)}
	}

	// can_access_multiple_facilities is derived from data_access; an
	// explicit value is only accepted when it agrees.
	multi := access == models.DataAccessAllFacilities
	if entry.CanAccessMultipleFacilities != nil && *entry.CanAccessMultipleFacilities != multi {
		return nil, &ConfigError{Section: "roles", Message: fmt.Sprintf("role %q: can_access_multiple_facilities contradicts data_access", name)}
	}

	perms := make(map[models.Resource][]models.Operation, len(entry.Permissions))
	for resName, ops := range entry.Permissions {
		res := models.Resource(resName)
		if res != models.ResourceAny {
			if _, ok := resources[res]; !ok {
				return nil, &ConfigError{Section: "roles", Message: fmt.Sprintf("role %q: permissions reference unknown resource %q", name, resName)}
			}
		}
		parsed := make([]models.Operation, 0, len(ops))
		for _, opName := range ops {
			if opName == string(models.OpAny) {
				parsed = append(parsed, models.OpAny)
				continue
			}
			op, ok := models.ParseOperation(opName)
			if !ok {
				return nil, &ConfigError{Section: "roles", Message: fmt.Sprintf("role %q: unknown operation %q on %q", name, opName, resName)}
			}
			parsed = append(parsed, op)
		}
		perms[res] = parsed
	}

	return &models.Role{
		Name:                        name,
		Level:                       entry.Level,
		Permissions:                 perms,
		DataAccess:                  access,
		SpecialPermissions:          entry.SpecialPermissions,
		Unrestricted:                entry.Unrestricted,
		CanAccessMultipleFacilities: multi,
	}, nil
}
