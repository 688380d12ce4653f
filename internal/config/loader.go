package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
	_ "time/tzdata" // embedded zone database for minimal images

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/robfig/cron/v3"
)

// DefaultPath is read when CONSOLE_CONFIG_PATH is not set.
const DefaultPath = "./console.yaml"

// Config captures file and environment driven configuration for the console.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Store     StoreConfig     `yaml:"store"`
	Session   SessionConfig   `yaml:"session"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Supplies  SuppliesConfig  `yaml:"supplies"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Log       LogConfig       `yaml:"log"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Port              int           `yaml:"port"                env:"CONSOLE_HTTP_PORT"                env-default:"8080"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"CONSOLE_HTTP_READ_HEADER_TIMEOUT" env-default:"10s"`
	ReadTimeout       time.Duration `yaml:"read_timeout"        env:"CONSOLE_HTTP_READ_TIMEOUT"        env-default:"30s"`
	WriteTimeout      time.Duration `yaml:"write_timeout"       env:"CONSOLE_HTTP_WRITE_TIMEOUT"       env-default:"30s"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"        env:"CONSOLE_HTTP_IDLE_TIMEOUT"        env-default:"60s"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"    env:"CONSOLE_HTTP_SHUTDOWN_TIMEOUT"    env-default:"10s"`
	MetricsEnabled    bool          `yaml:"metrics_enabled"     env:"CONSOLE_METRICS_ENABLED"          env-default:"true"`
}

// Store drivers.
const (
	DriverMemory    = "memory"
	DriverSQLite    = "sqlite"
	DriverPostgres  = "postgres"
	DriverFirestore = "firestore"
)

// StoreConfig selects and configures the document store.
type StoreConfig struct {
	Driver           string `yaml:"driver"            env:"CONSOLE_STORE_DRIVER"      env-default:"sqlite"`
	SQLitePath       string `yaml:"sqlite_path"       env:"CONSOLE_SQLITE_PATH"       env-default:"console.db"`
	PostgresDSN      string `yaml:"postgres_dsn"      env:"CONSOLE_POSTGRES_DSN"`
	FirestoreProject string `yaml:"firestore_project" env:"CONSOLE_FIRESTORE_PROJECT"`
}

// SessionConfig holds session settings.
type SessionConfig struct {
	TTL time.Duration `yaml:"ttl" env:"CONSOLE_SESSION_TTL" env-default:"24h"`
}

// ScheduleConfig holds calendar settings.
type ScheduleConfig struct {
	Timezone string `yaml:"timezone" env:"CONSOLE_TIMEZONE" env-default:"UTC"`
}

// SuppliesConfig selects the supply catalog. CatalogFile, when set, replaces
// the named built-in catalog.
type SuppliesConfig struct {
	Catalog     string `yaml:"catalog"      env:"CONSOLE_SUPPLY_CATALOG"      env-default:"current"`
	CatalogFile string `yaml:"catalog_file" env:"CONSOLE_SUPPLY_CATALOG_FILE"`
}

// JobsConfig holds background job settings.
type JobsConfig struct {
	LowStockSchedule string `yaml:"low_stock_schedule" env:"CONSOLE_LOW_STOCK_SCHEDULE" env-default:"0 8 * * *"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"CONSOLE_LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"CONSOLE_LOG_FORMAT" env-default:"json"`
}

// BootstrapConfig describes the administrator account created at startup.
// Leave AdminEmail empty to skip it.
type BootstrapConfig struct {
	AdminEmail        string `yaml:"admin_email"         env:"CONSOLE_ADMIN_EMAIL"`
	AdminDisplayName  string `yaml:"admin_display_name"  env:"CONSOLE_ADMIN_DISPLAY_NAME" env-default:"Administrator"`
	AdminPasswordHash string `yaml:"admin_password_hash" env:"CONSOLE_ADMIN_PASSWORD_HASH"`
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(strings.TrimSpace(c.Schedule.Timezone))
}

// Load reads configuration from the YAML file named by CONSOLE_CONFIG_PATH
// (default ./console.yaml) with environment overrides. A missing default file
// is not an error; the environment and defaults are used instead.
func Load() (Config, error) {
	var cfg Config

	path := strings.TrimSpace(os.Getenv("CONSOLE_CONFIG_PATH"))
	explicitPath := path != ""
	if !explicitPath {
		path = DefaultPath
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicitPath {
		return Config{}, fmt.Errorf("config: file %s: %w", path, err)
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	invalid := make([]string, 0, 4)

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		invalid = append(invalid, "http.port")
	}
	for name, d := range map[string]time.Duration{
		"http.read_header_timeout": c.HTTP.ReadHeaderTimeout,
		"http.read_timeout":        c.HTTP.ReadTimeout,
		"http.write_timeout":       c.HTTP.WriteTimeout,
		"http.idle_timeout":        c.HTTP.IdleTimeout,
		"http.shutdown_timeout":    c.HTTP.ShutdownTimeout,
	} {
		if d <= 0 {
			invalid = append(invalid, name)
		}
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			invalid = append(invalid, "store.sqlite_path")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Store.PostgresDSN) == "" {
			invalid = append(invalid, "store.postgres_dsn")
		}
	case DriverFirestore:
		if strings.TrimSpace(c.Store.FirestoreProject) == "" {
			invalid = append(invalid, "store.firestore_project")
		}
	default:
		invalid = append(invalid, "store.driver")
	}

	if c.Session.TTL <= 0 {
		invalid = append(invalid, "session.ttl")
	}
	if _, err := c.Location(); err != nil {
		invalid = append(invalid, "schedule.timezone")
	}
	if strings.TrimSpace(c.Jobs.LowStockSchedule) != "" {
		if _, err := cron.ParseStandard(c.Jobs.LowStockSchedule); err != nil {
			invalid = append(invalid, "jobs.low_stock_schedule")
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		invalid = append(invalid, "log.level")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		invalid = append(invalid, "log.format")
	}
	if c.Bootstrap.AdminEmail != "" && c.Bootstrap.AdminPasswordHash == "" {
		invalid = append(invalid, "bootstrap.admin_password_hash")
	}

	if len(invalid) > 0 {
		sort.Strings(invalid)
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(invalid, ", "))
	}
	return nil
}

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid values")
