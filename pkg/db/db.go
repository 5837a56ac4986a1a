package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"busbooking/pkg/config"
)

const applicationName = "busbooking-api"

// Open connects the booking store's pool and pings it before returning.
func Open(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	pcfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping booking store: %w", err)
	}
	return pool, nil
}

// poolConfig sizes the pool from DB_MAX_CONNS and pins the session time zone to UTC
// so trip_date and timestamp columns round-trip without a local offset. Behind a
// transaction pooler (DATABASE_URL carrying pgbouncer=true) statements are sent
// unprepared.
func poolConfig(cfg config.Config) (*pgxpool.Config, error) {
	connString := runtimeConnString(cfg)
	pcfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse booking store url: %w", err)
	}
	if cfg.DB.MaxConns > 0 {
		pcfg.MaxConns = cfg.DB.MaxConns
	}
	pcfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	pcfg.ConnConfig.RuntimeParams["timezone"] = "UTC"

	if behindPooler(connString) {
		pcfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
		pcfg.ConnConfig.StatementCacheCapacity = 0
		pcfg.ConnConfig.DescriptionCacheCapacity = 0
	}
	return pcfg, nil
}

func behindPooler(connString string) bool {
	return strings.Contains(strings.ToLower(connString), "pgbouncer=true")
}

// WithTx runs fn in one transaction. Booking and bus repositories take their row
// locks inside fn; the rollback is a no-op once Commit has succeeded.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// IsUniqueViolation reports whether err is a unique_violation, optionally on a named
// constraint such as booking_buses_bus_date_key.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func runtimeConnString(cfg config.Config) string {
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		return cfg.DatabaseURL
	}
	return dsn(cfg.DB)
}

// migrationConnString prefers DIRECT_URL: golang-migrate takes a session advisory
// lock, which a transaction pooler does not keep across statements.
func migrationConnString(cfg config.Config) string {
	if strings.TrimSpace(cfg.DirectURL) != "" {
		return cfg.DirectURL
	}
	return runtimeConnString(cfg)
}

func dsn(cfg config.DBConfig) string {
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, sslmode,
	)
}
