//go:build integration

package integration

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	gormlogger "gorm.io/gorm/logger"

	"github.com/arwahdevops/tablesync/internal/config"
	"github.com/arwahdevops/tablesync/internal/db"
	"github.com/arwahdevops/tablesync/internal/logger"
	tsync "github.com/arwahdevops/tablesync/internal/sync"
)

const postgresImage = "postgres:15-alpine"

// TestDBInstance is one database inside a test container.
type TestDBInstance struct {
	Container testcontainers.Container
	Host      string
	Port      nat.Port
	Username  string
	Password  string
	DBName    string
}

func (i *TestDBInstance) Config() config.DatabaseConfig {
	return config.DatabaseConfig{
		Dialect: "postgres",
		Host:    i.Host,
		Port:    mustPortInt(i.Port),
		DBName:  i.DBName,
		SSLMode: "disable",
	}
}

func mustPortInt(port nat.Port) int {
	p, err := strconv.Atoi(port.Port())
	if err != nil {
		panic(fmt.Sprintf("invalid port %s: %v", port, err))
	}
	return p
}

// startPostgres runs one container and returns two databases in it: the
// container's default database and a second one created next to it.
func startPostgres(ctx context.Context, t *testing.T) (src, dst *TestDBInstance) {
	t.Helper()
	const user, password = "tablesync", "tablesync"

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        postgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "src",
				"POSTGRES_USER":     user,
				"POSTGRES_PASSWORD": password,
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	t.Logf("PostgreSQL container started. Host: %s, Port: %s", host, port.Port())

	src = &TestDBInstance{Container: container, Host: host, Port: port, Username: user, Password: password, DBName: "src"}
	dst = &TestDBInstance{Container: container, Host: host, Port: port, Username: user, Password: password, DBName: "dst"}

	admin := connect(ctx, t, "source", src)
	require.NoError(t, admin.Connector().DB.Exec(`CREATE DATABASE dst`).Error)
	require.NoError(t, admin.Close())
	return src, dst
}

func connectSource(ctx context.Context, role string, inst *TestDBInstance) (*db.Source, error) {
	conn, err := db.ConnectWithRetry(ctx, db.ConnectOptions{
		Role:          role,
		DB:            inst.Config(),
		Username:      inst.Username,
		Password:      inst.Password,
		Timeout:       10 * time.Second,
		MaxRetries:    5,
		RetryInterval: time.Second,
	}, logger.Log)
	if err != nil {
		return nil, err
	}
	if err := conn.Pin(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db.NewSource(conn, role), nil
}

func connect(ctx context.Context, t *testing.T, role string, inst *TestDBInstance) *db.Source {
	t.Helper()
	s, err := connectSource(ctx, role, inst)
	require.NoError(t, err)
	s.Connector().DB.Logger = logger.GetGormLogger().LogMode(gormlogger.Silent)
	return s
}

// opener hands every table sync a fresh connection pair.
func opener(src, dst *TestDBInstance) tsync.Opener {
	return func(ctx context.Context, _ string) (tsync.DataSource, tsync.DataSource, error) {
		s, err := connectSource(ctx, "source", src)
		if err != nil {
			return nil, nil, err
		}
		d, err := connectSource(ctx, "destination", dst)
		if err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return s, d, nil
	}
}

func execAll(t *testing.T, s *db.Source, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		require.NoError(t, s.Connector().DB.Exec(stmt).Error, stmt)
	}
}
