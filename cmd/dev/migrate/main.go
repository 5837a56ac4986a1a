package main

import (
	"context"
	"fmt"
	"os"

	"busbooking/pkg/config"
	"busbooking/pkg/db"
)

func main() {
	cfg := config.Load()
	if cfg.MigrationsPath == "" {
		cfg.MigrationsPath = "file://migrations"
	}

	// Uses DIRECT_URL when set so migrations bypass a pooler.
	version, err := db.Migrate(cfg.MigrationsPath, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate failed: %v\n", err)
		os.Exit(1)
	}

	// Check the runtime connection too. DSNs are never printed.
	pool, err := db.Open(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "runtime db open failed: %v\n", err)
		os.Exit(1)
	}
	pool.Close()

	fmt.Printf("schema at version %d\n", version)
}
