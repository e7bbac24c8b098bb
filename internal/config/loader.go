package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration with priority order:
// 1. Environment variables (VAXTRACK_*)
// 2. Configuration file (config.yaml)
// 3. Default values
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/vaxtrack/")
	v.AddConfigPath("./configs/")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("VAXTRACK")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file: env vars and defaults only.
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", 300)
	v.SetDefault("cache.decision_ttl", 30)

	v.SetDefault("catalog.path", "configs/roles.yaml")
	v.SetDefault("catalog.ttl", 300)
	v.SetDefault("catalog.watch", false)

	v.SetDefault("identity.backend", "static")
	v.SetDefault("identity.ldap.role_attribute", "employeeType")
	v.SetDefault("identity.ldap.facility_attribute", "departmentNumber")

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.database", "vaxtrack")
}

func validateConfig(config *Config) error {
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("invalid port: %d", config.Port)
	}

	switch config.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %s", config.LogLevel)
	}

	if config.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}

	switch config.Identity.Backend {
	case "ldap":
		if config.Identity.LDAP.URL == "" {
			return fmt.Errorf("identity.ldap.url is required for the ldap backend")
		}
	case "static":
	default:
		return fmt.Errorf("invalid identity.backend: %s", config.Identity.Backend)
	}

	if config.Cache.Enabled && config.Cache.Addr == "" {
		return fmt.Errorf("cache.addr is required when cache is enabled")
	}

	return nil
}
