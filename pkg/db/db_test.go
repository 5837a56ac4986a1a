package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"busbooking/pkg/config"
)

func TestConnStrings(t *testing.T) {
	cfg := config.Config{DB: config.DBConfig{Host: "h", Port: "1", Name: "n", User: "u", Password: "p"}}
	if got := runtimeConnString(cfg); got != "postgres://u:p@h:1/n?sslmode=disable" {
		t.Fatalf("unexpected dsn %q", got)
	}

	cfg.DatabaseURL = "postgres://pooler"
	if got := migrationConnString(cfg); got != "postgres://pooler" {
		t.Fatalf("migrations should fall back to runtime url, got %q", got)
	}
	cfg.DirectURL = "postgres://direct"
	if got := migrationConnString(cfg); got != "postgres://direct" {
		t.Fatalf("expected direct url, got %q", got)
	}
}

func TestPoolConfig(t *testing.T) {
	cfg := config.Config{
		DatabaseURL: "postgres://u:p@pooler:6543/n?pgbouncer=true",
		DB:          config.DBConfig{MaxConns: 7},
	}
	pcfg, err := poolConfig(cfg)
	if err != nil {
		t.Fatalf("pool config: %v", err)
	}
	if pcfg.MaxConns != 7 {
		t.Fatalf("max conns=%d", pcfg.MaxConns)
	}
	if pcfg.ConnConfig.DefaultQueryExecMode != pgx.QueryExecModeSimpleProtocol || pcfg.ConnConfig.StatementCacheCapacity != 0 {
		t.Fatalf("pooler url should disable prepared statements")
	}
	if pcfg.ConnConfig.RuntimeParams["timezone"] != "UTC" || pcfg.ConnConfig.RuntimeParams["application_name"] != applicationName {
		t.Fatalf("runtime params: %v", pcfg.ConnConfig.RuntimeParams)
	}

	direct, err := poolConfig(config.Config{DatabaseURL: "postgres://u:p@db:5432/n"})
	if err != nil {
		t.Fatalf("pool config: %v", err)
	}
	if direct.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeSimpleProtocol {
		t.Fatalf("direct url should keep prepared statements")
	}

	if _, err := poolConfig(config.Config{DatabaseURL: "::not a url"}); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("attach: %w", &pgconn.PgError{Code: "23505", ConstraintName: "booking_buses_bus_date_key"})
	if !IsUniqueViolation(err, "") {
		t.Fatalf("expected unique violation")
	}
	if !IsUniqueViolation(err, "booking_buses_bus_date_key") {
		t.Fatalf("expected named constraint match")
	}
	if IsUniqueViolation(err, "other") {
		t.Fatalf("constraint name should be compared")
	}
	if IsUniqueViolation(errors.New("boom"), "") {
		t.Fatalf("plain error is not a unique violation")
	}
}
