package config

import "time"

type Config struct {
	Environment string `mapstructure:"environment" yaml:"environment"`
	Port        int    `mapstructure:"port" yaml:"port"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`

	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Catalog  CatalogConfig  `mapstructure:"catalog" yaml:"catalog"`
	Identity IdentityConfig `mapstructure:"identity" yaml:"identity"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
}

// CacheConfig configures the Redis/Valkey-backed decision cache.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
	DB      int    `mapstructure:"db" yaml:"db"`
	// TTL is the default entry lifetime in seconds.
	TTL int `mapstructure:"ttl" yaml:"ttl"`
	// DecisionTTL is the (short) lifetime for permission decisions in seconds.
	DecisionTTL int `mapstructure:"decision_ttl" yaml:"decision_ttl"`
}

func (c CacheConfig) TTLDuration() time.Duration         { return time.Duration(c.TTL) * time.Second }
func (c CacheConfig) DecisionTTLDuration() time.Duration { return time.Duration(c.DecisionTTL) * time.Second }

// CatalogConfig locates the role-catalog file and controls its refresh policy.
type CatalogConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
	// TTL is the section-cache lifetime in seconds. The catalog changes
	// rarely, so the default is generous.
	TTL int `mapstructure:"ttl" yaml:"ttl"`
	// Watch enables an fsnotify watcher that reloads the catalog when the
	// file changes. A failed reload keeps the last good catalog.
	Watch bool `mapstructure:"watch" yaml:"watch"`
}

func (c CatalogConfig) TTLDuration() time.Duration { return time.Duration(c.TTL) * time.Second }

// IdentityConfig selects and configures the identity provider backend.
type IdentityConfig struct {
	// Backend is "ldap" or "static" (dev/test fixture).
	Backend string     `mapstructure:"backend" yaml:"backend"`
	LDAP    LDAPConfig `mapstructure:"ldap" yaml:"ldap"`
}

type LDAPConfig struct {
	URL          string `mapstructure:"url" yaml:"url"`
	BindDN       string `mapstructure:"bind_dn" yaml:"bind_dn"`
	BindPassword string `mapstructure:"bind_password" yaml:"bind_password"`
	BaseDN       string `mapstructure:"base_dn" yaml:"base_dn"`
	// RoleAttribute holds the assigned role name, FacilityAttribute the
	// facility association.
	RoleAttribute     string `mapstructure:"role_attribute" yaml:"role_attribute"`
	FacilityAttribute string `mapstructure:"facility_attribute" yaml:"facility_attribute"`
}

// AuthConfig carries request-authentication settings for the HTTP surface.
// Token issuance happens elsewhere; we only verify.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

// StorageConfig selects the document-store backend.
type StorageConfig struct {
	// Backend is "memory" today; the production adapter lives outside this
	// repository and is injected by the host process.
	Backend  string `mapstructure:"backend" yaml:"backend"`
	Database string `mapstructure:"database" yaml:"database"`
}
