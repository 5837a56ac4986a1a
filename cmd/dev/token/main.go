package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"busbooking/internal/session"
	"busbooking/pkg/config"
)

func main() {
	var (
		id   = flag.String("id", "", "actor id, e.g. teacher-1")
		role = flag.String("role", "", "teacher, admin, deputy, principal or driver")
		ttl  = flag.Duration("ttl", 0, "token lifetime (defaults to SESSION_TTL)")
	)
	flag.Parse()

	if *id == "" || *role == "" {
		fmt.Fprintln(os.Stderr, "missing -id or -role")
		os.Exit(2)
	}
	r, err := session.ParseRole(*role)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := config.Load()
	if cfg.Session.Secret == "" {
		fmt.Fprintln(os.Stderr, "missing SESSION_SECRET (env or .env)")
		os.Exit(2)
	}
	if *ttl == 0 {
		*ttl = cfg.Session.TTL
	}

	tok, err := session.IssueToken(session.Actor{ID: *id, Role: r}, cfg.Session.Secret, *ttl, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
