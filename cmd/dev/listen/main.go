// Command listen prints booking notifications published on the redis channel.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"busbooking/internal/notify"
	"busbooking/pkg/config"
	"busbooking/pkg/logger"
)

func main() {
	cfg := config.Load()
	if cfg.Redis.Addr == "" {
		fmt.Fprintln(os.Stderr, "missing REDIS_ADDR")
		os.Exit(2)
	}

	lg, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer func() { _ = rdb.Close() }()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	err = notify.Listen(ctx, rdb, cfg.Redis.Channel, lg, func(ev notify.Event) {
		_ = enc.Encode(ev)
	})
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "listen: %v\n", err)
		os.Exit(1)
	}
}
