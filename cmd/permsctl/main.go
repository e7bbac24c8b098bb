// permsctl rewrites collection-level grants so the document store matches the
// role catalog. Run it after editing the catalog: first with -dry-run to
// review the target grants, then without to apply them.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/vaxtrack/vaxtrack-core/internal/authz/catalog"
	"github.com/vaxtrack/vaxtrack-core/internal/authz/migrate"
	"github.com/vaxtrack/vaxtrack-core/internal/config"
	"github.com/vaxtrack/vaxtrack-core/internal/models"
	"github.com/vaxtrack/vaxtrack-core/internal/storage"
	"github.com/vaxtrack/vaxtrack-core/pkg/logger"
)

func main() {
	var (
		dryRun   = flag.Bool("dry-run", false, "compute and print target grants without writing")
		all      = flag.Bool("all", false, "migrate every resource in the catalog")
		validate = flag.Bool("validate", false, "report catalog/store drift and exit")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	catalogStore, err := catalog.NewStore(cfg.Catalog.Path, cfg.Catalog.TTLDuration(), log)
	if err != nil {
		log.Fatal("failed to load role catalog", "error", err)
	}

	store := buildStore(cfg, catalogStore)
	migrator := migrate.New(catalogStore, store, cfg.Storage.Database, log)
	migrator.DryRun = *dryRun

	ctx := context.Background()

	if *validate {
		report, err := migrator.ValidateCurrentState(ctx)
		if err != nil {
			log.Fatal("validation failed", "error", err)
		}
		printJSON(report)
		return
	}

	var results []*migrate.MigrationResult
	switch {
	case *all:
		results, err = migrator.MigrateAll(ctx)
	case flag.NArg() > 0:
		for _, arg := range flag.Args() {
			result, migErr := migrator.MigrateCollectionPermissions(ctx, models.Resource(arg))
			if migErr != nil {
				err = migErr
				break
			}
			results = append(results, result)
		}
	default:
		fmt.Fprintln(os.Stderr, "usage: permsctl [-dry-run] [-validate] -all | <resource>...")
		os.Exit(2)
	}

	if err != nil {
		log.Fatal("migration failed", "error", err)
	}
	printJSON(results)
}

// buildStore returns the configured document store. The memory backend seeds
// a collection per catalog resource so a fresh dev environment can be
// migrated end to end.
func buildStore(cfg *config.Config, cat *catalog.Store) storage.Store {
	mem := storage.NewMemoryStore()
	for _, resource := range cat.Catalog().Resources() {
		mem.EnsureCollection(cfg.Storage.Database, string(resource), nil)
	}
	return mem
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode output: %v\n", err)
		os.Exit(1)
	}
}
