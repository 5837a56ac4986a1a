package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "PORT", "STORE_DRIVER", "STORE_TIMEOUT", "DRIVER_SCOPE", "SCHOOL_TIMEZONE"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	if cfg.HTTPAddr != ":8081" {
		t.Fatalf("expected :8081, got %q", cfg.HTTPAddr)
	}
	if cfg.StoreDriver != "postgres" {
		t.Fatalf("expected postgres store, got %q", cfg.StoreDriver)
	}
	if cfg.StoreTimeout != 5*time.Second {
		t.Fatalf("expected 5s store timeout, got %s", cfg.StoreTimeout)
	}
	if cfg.SchoolTimezone != time.UTC {
		t.Fatalf("expected UTC, got %v", cfg.SchoolTimezone)
	}
	if cfg.DriverScope != "all" {
		t.Fatalf("expected driver scope all, got %q", cfg.DriverScope)
	}
}

func TestLoad_PortFallbackAndLists(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("STORE_TIMEOUT", "750ms")
	t.Setenv("SCHOOL_TIMEZONE", "Not/AZone")

	cfg := Load()
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("expected :9090, got %q", cfg.HTTPAddr)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %#v", cfg.AllowedOrigins)
	}
	if cfg.StoreTimeout != 750*time.Millisecond {
		t.Fatalf("expected 750ms, got %s", cfg.StoreTimeout)
	}
	if cfg.SchoolTimezone != time.UTC {
		t.Fatalf("invalid zone should fall back to UTC")
	}
}
