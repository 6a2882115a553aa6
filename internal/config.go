package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/postcards/internal/store"
	"github.com/starford/postcards/internal/verses"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Database DatabaseConfig    `yaml:"database"`
	Lookup   LookupConfig      `yaml:"lookup"`
	Auth     AuthConfig        `yaml:"auth"`
	Vault    VaultConfig       `yaml:"vault"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Lookup.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.ReadTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.WriteTimeout, validation.Min(time.Duration(0))),
	)
}

// DatabaseConfig selects and locates the postcard store.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// Target returns the driver-specific connection target.
func (c *DatabaseConfig) Target() string {
	if c.Driver == store.DriverPostgres {
		return c.Postgres.DSN
	}
	return c.SQLite.Path
}

// Validate validates the database configuration.
func (c *DatabaseConfig) Validate() error {
	if c.Driver == "" {
		c.Driver = store.DriverSQLite
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(store.DriverSQLite, store.DriverPostgres)),
		validation.Field(&c.SQLite, validation.Skip.When(c.Driver != store.DriverSQLite)),
		validation.Field(&c.Postgres, validation.Skip.When(c.Driver != store.DriverPostgres)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c SQLiteConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Path, validation.Required),
	)
}

// PostgresConfig holds the PostgreSQL connection string.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// Validate validates the PostgreSQL configuration.
func (c PostgresConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.DSN, validation.Required),
	)
}

// LookupConfig configures the verse upstream.
type LookupConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Translation string        `yaml:"translation"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Validate validates the lookup configuration.
func (c *LookupConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
	)
}

// VaultConfig locates the Markdown mirror. Both paths are optional.
type VaultConfig struct {
	Path  string `yaml:"path"`
	Inbox string `yaml:"inbox"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	if c.Inbox != "" && c.Inbox == c.Path {
		return fmt.Errorf("vault: inbox must differ from path %q", c.Path)
	}
	return nil
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port:         8080,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 0,
			},
		},
		Database: DatabaseConfig{
			Driver: store.DriverSQLite,
			SQLite: SQLiteConfig{
				Path: "./postcards.db",
			},
		},
		Lookup: LookupConfig{
			BaseURL:     verses.DefaultBaseURL,
			Translation: verses.DefaultTranslation,
			Timeout:     5 * time.Second,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
