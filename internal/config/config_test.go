package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arwahdevops/tablesync/internal/rules"
)

func validConfig() *Config {
	return &Config{
		Workers:        4,
		BatchSize:      1000,
		ConnectTimeout: 5 * time.Second,
		MetricsPort:    9091,
		SrcDB:          DatabaseConfig{Dialect: "postgres", Host: "db.prod", Port: 5432, DBName: "app", Password: "x", SSLMode: "require"},
		DstDB:          DatabaseConfig{Dialect: "postgres", Host: "localhost", Port: 5432, DBName: "app_dev", Password: "y", SSLMode: "disable"},
	}
}

func TestValidateConfig(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"Valid", func(c *Config) {}, ""},
		{"Bad Dialect", func(c *Config) { c.SrcDB.Dialect = "oracle" }, "unsupported source dialect"},
		{"Missing DB Name", func(c *Config) { c.DstDB.DBName = "" }, "destination database name is required"},
		{"Bad Port", func(c *Config) { c.SrcDB.Port = 70000 }, "invalid source port"},
		{"No Password", func(c *Config) { c.SrcDB.Password = "" }, "needs a password"},
		{"Vault Path Instead Of Password", func(c *Config) {
			c.SrcDB.Password = ""
			c.SrcDB.SecretPath = "db/prod"
			c.VaultEnabled = true
		}, ""},
		{"Bad SSL Mode", func(c *Config) { c.SrcDB.SSLMode = "sometimes" }, "invalid SSL mode"},
		{"SQLite Needs No Host", func(c *Config) { c.DstDB = DatabaseConfig{Dialect: "sqlite", DBName: "dev.db"} }, ""},
		{"Zero Batch", func(c *Config) { c.BatchSize = 0 }, "batch size must be positive"},
		{"Zero Workers", func(c *Config) { c.Workers = 0 }, "workers must be positive"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(c)
			err := validateConfig(c)
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}

func TestIsLocal(t *testing.T) {
	assert.True(t, DatabaseConfig{Dialect: "postgres", Host: "localhost"}.IsLocal())
	assert.True(t, DatabaseConfig{Dialect: "postgres", Host: "127.0.0.1"}.IsLocal())
	assert.True(t, DatabaseConfig{Dialect: "postgres", Host: "/var/run/postgresql"}.IsLocal())
	assert.True(t, DatabaseConfig{Dialect: "sqlite", DBName: "x.db"}.IsLocal())
	assert.False(t, DatabaseConfig{Dialect: "postgres", Host: "db.example.com"}.IsLocal())
	assert.False(t, DatabaseConfig{Dialect: "mysql", Host: "10.0.0.5"}.IsLocal())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SRC_DBNAME", "app")
	t.Setenv("SRC_PASSWORD", "secret")
	t.Setenv("DST_DIALECT", "mysql")
	t.Setenv("DST_DBNAME", "app_dev")
	t.Setenv("DST_PASSWORD", "secret")
	t.Setenv("WORKERS", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.SrcDB.Port)
	assert.Equal(t, 3306, cfg.DstDB.Port)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, ".tablesync.yml", cfg.RulesFile)
}

func TestLoadRulesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_rules:
  email: unique_email
  "users.*": untouched
rename_tables:
  public.users: public.users_copy
groups:
  core: [public.users, public.accounts]
  billing: [public.invoices, public.users]
exclude:
  - public.schema_migrations
`), 0o644))

	rf, err := LoadRulesFile(path, true)
	require.NoError(t, err)
	require.Len(t, rf.DataRules, 2)
	assert.Equal(t, "email", rf.DataRules[0].Pattern)
	assert.Equal(t, rules.NamedGenerator(rules.Untouched), rf.DataRules[1].Strategy)

	assert.Equal(t, "public.users_copy", rf.DestinationTable("public.users"))
	assert.Equal(t, "public.orders", rf.DestinationTable("public.orders"))

	tables, err := rf.ExpandGroups([]string{"core", "billing"})
	require.NoError(t, err)
	assert.Equal(t, []string{"public.users", "public.accounts", "public.invoices"}, tables)

	_, err = rf.ExpandGroups([]string{"nope"})
	assert.ErrorContains(t, err, "group not found: nope")

	assert.True(t, rf.IsExcluded("public.schema_migrations"))
}

func TestLoadRulesFileMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yml")

	rf, err := LoadRulesFile(missing, false)
	require.NoError(t, err)
	assert.Empty(t, rf.DataRules)

	_, err = LoadRulesFile(missing, true)
	assert.Error(t, err)
}

func TestWriteRulesTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".tablesync.yml")
	require.NoError(t, WriteRulesTemplate(path))

	rf, err := LoadRulesFile(path, true)
	require.NoError(t, err)
	assert.NotEmpty(t, rf.DataRules)

	assert.ErrorContains(t, WriteRulesTemplate(path), "exists")
}
