package db

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/arwahdevops/tablesync/internal/logger"
)

type Connector struct {
	DB      *gorm.DB
	Dialect string

	closeOnce sync.Once
	closeErr  error
}

func New(dialect, dsn string, gl logger.GormLoggerInterface) (*Connector, error) {
	var dialector gorm.Dialector

	lcDialect := strings.ToLower(dialect)
	switch lcDialect {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gl,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database (%s): %w", lcDialect, err)
	}
	return &Connector{DB: db, Dialect: lcDialect}, nil
}

// Pin limits the pool to a single long-lived session. Temporary staging
// tables are per session, so every statement must run on the same one.
func (c *Connector) Pin() error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB to pin session: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)
	return nil
}

// Optimize sizes the pool of a shared control connection.
func (c *Connector) Optimize(poolSize int, maxLifetime time.Duration) error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB for optimization: %w", err)
	}
	if poolSize <= 0 {
		poolSize = 2
	}
	if c.Dialect == "sqlite" {
		poolSize = 1
	}
	sqlDB.SetMaxOpenConns(poolSize)
	sqlDB.SetMaxIdleConns(poolSize)
	sqlDB.SetConnMaxLifetime(maxLifetime)
	return nil
}

func (c *Connector) Ping(ctx context.Context) error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB for ping: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return sqlDB.PingContext(pingCtx)
}

// Close is safe to call more than once.
func (c *Connector) Close() error {
	c.closeOnce.Do(func() {
		sqlDB, err := c.DB.DB()
		if err != nil {
			c.closeErr = fmt.Errorf("failed to get sql.DB handle to close: %w", err)
			return
		}
		logger.Log.Debug("Closing database connection pool", zap.String("dialect", c.Dialect))
		c.closeErr = sqlDB.Close()
	})
	return c.closeErr
}
