package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arwahdevops/tablesync/internal/config"
	"github.com/arwahdevops/tablesync/internal/logger"
	"github.com/arwahdevops/tablesync/internal/metrics"
)

// ConnectOptions describes how to reach one side of a transfer.
type ConnectOptions struct {
	Role          string // "source" or "destination"
	DB            config.DatabaseConfig
	Username      string
	Password      string
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
	Metrics       *metrics.Store
}

// ConnectWithRetry opens and pings a connection, retrying failed attempts.
func ConnectWithRetry(ctx context.Context, opts ConnectOptions, log *zap.Logger) (*Connector, error) {
	log = log.With(zap.String("db", opts.Role))
	dsn, err := BuildDSN(opts.DB, opts.Username, opts.Password, opts.Timeout)
	if err != nil {
		opts.count("invalid")
		return nil, fmt.Errorf("could not build DSN for %s DB: %w", opts.Role, err)
	}

	var lastErr error
	for i := 0; i <= opts.MaxRetries; i++ {
		if i > 0 {
			log.Warn("Retrying database connection",
				zap.Int("attempt", i+1),
				zap.Int("max_attempts", opts.MaxRetries+1),
				zap.Duration("wait_interval", opts.RetryInterval),
				zap.NamedError("previous_error", lastErr))
			timer := time.NewTimer(opts.RetryInterval)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				opts.count("cancelled")
				return nil, fmt.Errorf("connect to %s DB cancelled: %w (last error: %v)", opts.Role, ctx.Err(), lastErr)
			}
		}

		conn, err := New(opts.DB.Dialect, dsn, logger.GetGormLogger())
		if err != nil {
			lastErr = err
			opts.count("error")
			continue
		}
		pingCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		err = conn.Ping(pingCtx)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("ping failed: %w", err)
			_ = conn.Close()
			opts.count("error")
			continue
		}
		opts.count("ok")
		log.Debug("Database connection established", zap.String("target", opts.DB.Describe()))
		return conn, nil
	}
	return nil, fmt.Errorf("failed to connect to %s DB (%s) after %d attempts: %w",
		opts.Role, opts.DB.Describe(), opts.MaxRetries+1, lastErr)
}

func (o ConnectOptions) count(result string) {
	if o.Metrics != nil {
		o.Metrics.ConnectionsAttempts.WithLabelValues(o.Role, result).Inc()
	}
}
