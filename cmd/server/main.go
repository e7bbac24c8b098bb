package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vaxtrack/vaxtrack-core/internal/api"
	"github.com/vaxtrack/vaxtrack-core/internal/authz/catalog"
	"github.com/vaxtrack/vaxtrack-core/internal/authz/rolemanager"
	"github.com/vaxtrack/vaxtrack-core/internal/authz/validator"
	"github.com/vaxtrack/vaxtrack-core/internal/config"
	"github.com/vaxtrack/vaxtrack-core/internal/identity"
	"github.com/vaxtrack/vaxtrack-core/pkg/cache"
	"github.com/vaxtrack/vaxtrack-core/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.Info("starting vaxtrack-core", "environment", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	decisionCache := buildCache(cfg, log)

	provider, err := buildIdentityProvider(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize identity provider", "error", err)
	}

	catalogStore, err := catalog.NewStore(cfg.Catalog.Path, cfg.Catalog.TTLDuration(), log)
	if err != nil {
		log.Fatal("failed to load role catalog", "error", err)
	}

	roles, err := rolemanager.NewManager(catalogStore, provider, 0, log)
	if err != nil {
		log.Fatal("failed to initialize role manager", "error", err)
	}

	checker := validator.New(roles, catalogStore, decisionCache, cfg.Cache.DecisionTTLDuration(), log)

	go roles.StartLockSweeper(ctx, time.Minute)
	if cfg.Catalog.Watch {
		go func() {
			if err := catalogStore.Watch(ctx); err != nil && ctx.Err() == nil {
				log.Error("catalog watcher stopped", "error", err)
			}
		}()
	}

	handlers := api.NewHandlers(checker, roles, catalogStore, log)
	server := api.NewServer(cfg, handlers, log)

	if err := server.Start(ctx); err != nil {
		log.Fatal("server error", "error", err)
	}
	log.Info("shutdown complete")
}

func buildCache(cfg *config.Config, log logger.Logger) cache.Cache {
	if !cfg.Cache.Enabled {
		log.Warn("decision cache disabled, every check hits the evaluator")
		return cache.NewNoop()
	}
	c, err := cache.NewRedis(cfg.Cache.Addr, cfg.Cache.DB, cfg.Cache.TTLDuration(), log)
	if err != nil {
		log.Warn("cache unavailable, continuing without decision caching", "error", err)
		return cache.NewNoop()
	}
	return c
}

func buildIdentityProvider(cfg *config.Config, log logger.Logger) (identity.Provider, error) {
	switch cfg.Identity.Backend {
	case "ldap":
		return identity.NewLDAPProvider(cfg.Identity.LDAP, log), nil
	case "static":
		log.Warn("using static identity provider; intended for development only")
		return identity.NewStaticProvider(), nil
	default:
		return nil, fmt.Errorf("unknown identity backend %q", cfg.Identity.Backend)
	}
}
