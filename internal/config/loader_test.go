package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "console.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	return path
}

func TestLoader_Environment(t *testing.T) {
	t.Run("applies defaults without a config file", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("CONSOLE_CONFIG_PATH", "")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.HTTP.Port != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTP.Port)
		}
		if cfg.Store.Driver != DriverSQLite || cfg.Store.SQLitePath != "console.db" {
			t.Fatalf("unexpected default store %#v", cfg.Store)
		}
		if cfg.Session.TTL != 24*time.Hour {
			t.Fatalf("expected session TTL 24h, got %s", cfg.Session.TTL)
		}
		if cfg.Supplies.Catalog != "current" || cfg.Jobs.LowStockSchedule != "0 8 * * *" {
			t.Fatalf("unexpected defaults %#v / %#v", cfg.Supplies, cfg.Jobs)
		}
		if cfg.HTTP.ReadHeaderTimeout != 10*time.Second || cfg.HTTP.IdleTimeout != time.Minute {
			t.Fatalf("unexpected timeouts %#v", cfg.HTTP)
		}
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("CONSOLE_CONFIG_PATH", "")
		t.Setenv("CONSOLE_HTTP_PORT", "9090")
		t.Setenv("CONSOLE_STORE_DRIVER", "memory")
		t.Setenv("CONSOLE_SESSION_TTL", "2h")
		t.Setenv("CONSOLE_TIMEZONE", "America/Chicago")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.HTTP.Port != 9090 || cfg.Store.Driver != DriverMemory || cfg.Session.TTL != 2*time.Hour {
			t.Fatalf("unexpected config %#v", cfg)
		}
		loc, err := cfg.Location()
		if err != nil || loc.String() != "America/Chicago" {
			t.Fatalf("unexpected location %v (%v)", loc, err)
		}
	})

	t.Run("reports invalid values together", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("CONSOLE_CONFIG_PATH", "")
		t.Setenv("CONSOLE_STORE_DRIVER", "postgres")
		t.Setenv("CONSOLE_LOG_FORMAT", "xml")
		t.Setenv("CONSOLE_LOW_STOCK_SCHEDULE", "every day")

		_, err := Load()
		if !errors.Is(err, ErrInvalid) {
			t.Fatalf("expected ErrInvalid, got %v", err)
		}
		for _, field := range []string{"jobs.low_stock_schedule", "log.format", "store.postgres_dsn"} {
			if !strings.Contains(err.Error(), field) {
				t.Fatalf("expected %s in %q", field, err.Error())
			}
		}
	})
}

func TestLoader_File(t *testing.T) {
	t.Run("reads yaml with environment precedence", func(t *testing.T) {
		path := writeYAML(t, `
http:
  port: 7070
store:
  driver: firestore
  firestore_project: clinic-prod
supplies:
  catalog: legacy
log:
  level: debug
  format: text
bootstrap:
  admin_email: admin@example.com
  admin_password_hash: stored-hash
`)
		t.Setenv("CONSOLE_CONFIG_PATH", path)
		t.Setenv("CONSOLE_HTTP_PORT", "7171")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.HTTP.Port != 7171 {
			t.Fatalf("expected env to win over file, got %d", cfg.HTTP.Port)
		}
		if cfg.Store.Driver != DriverFirestore || cfg.Store.FirestoreProject != "clinic-prod" {
			t.Fatalf("unexpected store %#v", cfg.Store)
		}
		if cfg.Supplies.Catalog != "legacy" || cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
			t.Fatalf("unexpected config %#v", cfg)
		}
		if cfg.Bootstrap.AdminEmail != "admin@example.com" || cfg.Bootstrap.AdminDisplayName != "Administrator" {
			t.Fatalf("unexpected bootstrap %#v", cfg.Bootstrap)
		}
	})

	t.Run("explicit missing file is an error", func(t *testing.T) {
		t.Setenv("CONSOLE_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for missing explicit file")
		}
	})

	t.Run("admin email requires a hash", func(t *testing.T) {
		path := writeYAML(t, "bootstrap:\n  admin_email: admin@example.com\n")
		t.Setenv("CONSOLE_CONFIG_PATH", path)
		t.Setenv("CONSOLE_ADMIN_PASSWORD_HASH", "")

		_, err := Load()
		if err == nil || !strings.Contains(err.Error(), "bootstrap.admin_password_hash") {
			t.Fatalf("expected bootstrap error, got %v", err)
		}
	})
}
