package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/caarlos0/env/v8"
)

type Config struct {
	// Transfer settings
	Workers   int `env:"WORKERS" envDefault:"4"`
	BatchSize int `env:"BATCH_SIZE" envDefault:"10000"`

	// ToSafe allows a destination that is not on the local machine.
	ToSafe    bool   `env:"TO_SAFE" envDefault:"false"`
	RulesFile string `env:"RULES_FILE" envDefault:".tablesync.yml"`

	// Connection establishment
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"5s"`
	MaxRetries     int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryInterval  time.Duration `env:"RETRY_INTERVAL" envDefault:"5s"`

	// Observability & Debugging
	DebugMode           bool `env:"DEBUG_MODE" envDefault:"false"`
	EnableJsonLogging   bool `env:"ENABLE_JSON_LOGGING" envDefault:"false"`
	EnableMetricsServer bool `env:"ENABLE_METRICS_SERVER" envDefault:"false"`
	EnablePprof         bool `env:"ENABLE_PPROF" envDefault:"false"`
	MetricsPort         int  `env:"METRICS_PORT" envDefault:"9091"`

	// Vault (KV v2) credentials
	VaultEnabled    bool   `env:"VAULT_ENABLED" envDefault:"false"`
	VaultAddr       string `env:"VAULT_ADDR" envDefault:"http://127.0.0.1:8200"`
	VaultToken      string `env:"VAULT_TOKEN"`
	VaultCACert     string `env:"VAULT_CACERT"`
	VaultSkipVerify bool   `env:"VAULT_SKIP_VERIFY" envDefault:"false"`
	VaultMountPath  string `env:"VAULT_MOUNT_PATH" envDefault:"secret"`

	SrcDB DatabaseConfig `envPrefix:"SRC_"`
	DstDB DatabaseConfig `envPrefix:"DST_"`
}

type DatabaseConfig struct {
	Dialect  string `env:"DIALECT" envDefault:"postgres"`
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT"`
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
	DBName   string `env:"DBNAME"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`

	SecretPath  string `env:"SECRET_PATH"`
	UsernameKey string `env:"USERNAME_KEY" envDefault:"username"`
	PasswordKey string `env:"PASSWORD_KEY" envDefault:"password"`
}

// Describe renders the database without credentials, for log lines.
func (d DatabaseConfig) Describe() string {
	if d.Dialect == "sqlite" {
		return "sqlite:" + d.DBName
	}
	return fmt.Sprintf("%s://%s:%d/%s", d.Dialect, d.Host, d.Port, d.DBName)
}

// IsLocal reports whether the database lives on this machine.
func (d DatabaseConfig) IsLocal() bool {
	if d.Dialect == "sqlite" {
		return true
	}
	switch strings.ToLower(d.Host) {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	if strings.HasPrefix(d.Host, "/") { // unix socket directory
		return true
	}
	ip := net.ParseIP(d.Host)
	return ip != nil && ip.IsLoopback()
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config parsing error: %w", err)
	}
	applyDefaultPorts(&cfg.SrcDB)
	applyDefaultPorts(&cfg.DstDB)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaultPorts(d *DatabaseConfig) {
	d.Dialect = strings.ToLower(d.Dialect)
	if d.Port != 0 {
		return
	}
	switch d.Dialect {
	case "postgres":
		d.Port = 5432
	case "mysql":
		d.Port = 3306
	}
}

func validateConfig(cfg *Config) error {
	for _, side := range []struct {
		name string
		db   DatabaseConfig
	}{{"source", cfg.SrcDB}, {"destination", cfg.DstDB}} {
		if err := validateDatabase(side.name, side.db, cfg.VaultEnabled); err != nil {
			return err
		}
	}
	if cfg.MetricsPort < 1 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if cfg.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	return nil
}

func validateDatabase(name string, d DatabaseConfig, vault bool) error {
	switch d.Dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported %s dialect: %q (valid: postgres, mysql, sqlite)", name, d.Dialect)
	}
	if d.DBName == "" {
		return fmt.Errorf("%s database name is required", name)
	}
	if d.Dialect == "sqlite" {
		return nil
	}
	if d.Port < 1 || d.Port > 65535 {
		return fmt.Errorf("invalid %s port: %d", name, d.Port)
	}
	if d.Password == "" && !(vault && d.SecretPath != "") {
		return fmt.Errorf("%s database needs a password or a Vault secret path", name)
	}
	if d.Dialect == "postgres" {
		validSSL := map[string]bool{
			"disable": true, "allow": true, "prefer": true,
			"require": true, "verify-ca": true, "verify-full": true,
		}
		if !validSSL[strings.ToLower(d.SSLMode)] {
			return fmt.Errorf("invalid SSL mode for %s DB: %s", name, d.SSLMode)
		}
	}
	return nil
}
