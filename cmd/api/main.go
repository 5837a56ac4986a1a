package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"busbooking/internal/booking"
	"busbooking/internal/bus"
	"busbooking/internal/dashboard"
	"busbooking/internal/httpapi"
	"busbooking/internal/memstore"
	"busbooking/internal/notify"
	"busbooking/internal/session"
	"busbooking/internal/user"
	"busbooking/pkg/config"
	"busbooking/pkg/db"
	"busbooking/pkg/logger"
	"busbooking/pkg/metrics"
)

func main() {
	cfg := config.Load()

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	var lg logger.Logger = zl

	if cfg.Session.Secret == "" {
		lg.Error("SESSION_SECRET is required")
		os.Exit(1)
	}
	scope, err := dashboard.ParseDriverScope(cfg.DriverScope)
	if err != nil {
		lg.Error("invalid DRIVER_SCOPE", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(cfg.MetricsNamespace, reg)

	deps := httpapi.Dependencies{
		Cfg:         cfg,
		Log:         lg,
		Metrics:     m,
		Gatherer:    reg,
		DriverScope: scope,
	}

	switch cfg.StoreDriver {
	case "memory":
		store := memstore.New()
		seedDemoUsers(store)
		deps.Buses, deps.Bookings, deps.Users = store.Buses(), store.Bookings(), store.Users()
		lg.Warn("using in-memory store; data is lost on restart")
	case "postgres":
		pool, err := db.Open(ctx, cfg)
		if err != nil {
			lg.Error("db open failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if cfg.MigrationsPath != "" {
			version, err := db.Migrate(cfg.MigrationsPath, cfg)
			if err != nil {
				lg.Error("migrate failed", "error", err)
				os.Exit(1)
			}
			lg.Info("schema migrated", "version", version)
		}
		deps.Buses = bus.NewRepository(pool)
		deps.Bookings = booking.NewRepository(pool)
		deps.Users = user.NewRepository(pool)
		deps.Ping = pool.Ping
	default:
		lg.Error("unknown STORE_DRIVER", "driver", cfg.StoreDriver)
		os.Exit(1)
	}

	sinks := notify.Multi{notify.NewLogSink(lg)}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			lg.Warn("redis unreachable, notifications will fail until it recovers", "addr", cfg.Redis.Addr, "error", err)
		}
		sinks = append(sinks, notify.NewRedisSink(rdb, cfg.Redis.Channel))
	}
	deps.Sink = sinks

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		lg.Info("http listening", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver, "driver_scope", scope)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Error("http serve failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http shutdown", "error", err)
	}
}

// seedDemoUsers gives the memory store one account per role so tokens from
// cmd/dev/token work out of the box.
func seedDemoUsers(store *memstore.Store) {
	now := time.Now().UTC()
	for _, u := range []user.User{
		{ID: "admin-1", Name: "School Admin", Role: session.RoleAdmin},
		{ID: "teacher-1", Name: "Demo Teacher", Role: session.RoleTeacher},
		{ID: "deputy-1", Name: "Deputy Head", Role: session.RoleDeputy},
		{ID: "principal-1", Name: "Principal", Role: session.RolePrincipal},
		{ID: "driver-1", Name: "Bus Driver", Role: session.RoleDriver},
	} {
		u.Active = true
		u.CreatedAt = now
		store.PutUser(u)
	}
}
