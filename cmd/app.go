package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/arwahdevops/tablesync/internal/config"
	"github.com/arwahdevops/tablesync/internal/db"
	"github.com/arwahdevops/tablesync/internal/logger"
	"github.com/arwahdevops/tablesync/internal/metrics"
	"github.com/arwahdevops/tablesync/internal/secrets"
	tsync "github.com/arwahdevops/tablesync/internal/sync"
)

var _ tsync.DataSource = (*db.Source)(nil)
var _ tsync.CopyStreamer = (*db.Source)(nil)

// app holds what every command needs once the environment is loaded.
type app struct {
	cfg      *config.Config
	rules    *config.RulesFile
	metrics  *metrics.Store
	log      *zap.Logger
	srcCreds *secrets.Credentials
	dstCreds *secrets.Credentials
}

func newApp(ctx context.Context, c *config.Config, rulesPath string) (*app, error) {
	if rulesPath == "" {
		rulesPath = c.RulesFile
	}
	rf, err := config.LoadRulesFile(rulesPath, false)
	if err != nil {
		return nil, usageFailure(err)
	}

	vm, err := secrets.NewVaultManager(c, logger.Log)
	if err != nil {
		return nil, usageFailure(fmt.Errorf("failed to initialize Vault: %w", err))
	}
	managers := []secrets.SecretManager{vm}

	a := &app{cfg: c, rules: rf, metrics: metrics.NewMetricsStore(), log: logger.Log}
	if a.srcCreds, err = secrets.Resolve(ctx, c.SrcDB, "src", managers, a.log); err != nil {
		return nil, usageFailure(err)
	}
	if a.dstCreds, err = secrets.Resolve(ctx, c.DstDB, "dst", managers, a.log); err != nil {
		return nil, usageFailure(err)
	}
	return a, nil
}

func (a *app) connect(ctx context.Context, role string) (*db.Connector, error) {
	dbCfg, creds := a.cfg.SrcDB, a.srcCreds
	if role == "destination" {
		dbCfg, creds = a.cfg.DstDB, a.dstCreds
	}
	return db.ConnectWithRetry(ctx, db.ConnectOptions{
		Role:          role,
		DB:            dbCfg,
		Username:      creds.Username,
		Password:      creds.Password,
		Timeout:       a.cfg.ConnectTimeout,
		MaxRetries:    a.cfg.MaxRetries,
		RetryInterval: a.cfg.RetryInterval,
		Metrics:       a.metrics,
	}, a.log)
}

func (a *app) source(ctx context.Context, role, label string) (*db.Source, error) {
	conn, err := a.connect(ctx, role)
	if err != nil {
		return nil, err
	}
	if err := conn.Pin(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db.NewSource(conn, label), nil
}

// opener gives each table sync its own pair of single-session connections.
func (a *app) opener() tsync.Opener {
	return func(ctx context.Context, table string) (tsync.DataSource, tsync.DataSource, error) {
		src, err := a.source(ctx, "source", "source")
		if err != nil {
			return nil, nil, err
		}
		dst, err := a.source(ctx, "destination", "destination")
		if err != nil {
			_ = src.Close()
			return nil, nil, err
		}
		return src, dst, nil
	}
}

// control opens the shared connections used for table discovery and
// readiness checks.
func (a *app) control(ctx context.Context) (src, dst *db.Source, err error) {
	poolSize := a.cfg.Workers + 1
	open := func(role, label string) (*db.Source, error) {
		conn, err := a.connect(ctx, role)
		if err != nil {
			return nil, err
		}
		if err := conn.Optimize(poolSize, 30*time.Minute); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return db.NewSource(conn, label), nil
	}
	if src, err = open("source", "source"); err != nil {
		return nil, nil, err
	}
	if dst, err = open("destination", "destination"); err != nil {
		_ = src.Close()
		return nil, nil, err
	}
	return src, dst, nil
}

func closeSources(log *zap.Logger, sources ...*db.Source) {
	var errs error
	for _, s := range sources {
		if s != nil {
			errs = multierr.Append(errs, s.Close())
		}
	}
	if errs != nil {
		log.Warn("Failed to close control connections", zap.Error(errs))
	}
}

// checkDestination refuses to write to a remote database unless TO_SAFE is set.
func checkDestination(c *config.Config) error {
	if c.DstDB.IsLocal() || c.ToSafe {
		return nil
	}
	return &tsync.UsageError{Reason: fmt.Sprintf(
		"destination %s is not local; set TO_SAFE=true to allow writing to it", c.DstDB.Describe())}
}

// resolveTables turns table arguments and groups into the list to sync.
// With neither, every source table not excluded by the rules file is used.
// Explicitly named tables are never excluded.
func resolveTables(ctx context.Context, lister func(context.Context) ([]string, error),
	rf *config.RulesFile, args, groups []string) ([]string, error) {
	var tables []string
	seen := make(map[string]bool)
	add := func(t string, explicit bool) {
		if seen[t] || (!explicit && rf.IsExcluded(t)) {
			return
		}
		seen[t] = true
		tables = append(tables, t)
	}

	if len(groups) > 0 {
		grouped, err := rf.ExpandGroups(groups)
		if err != nil {
			return nil, usageFailure(err)
		}
		for _, t := range grouped {
			add(t, false)
		}
	}
	for _, t := range args {
		add(t, true)
	}
	if len(args) == 0 && len(groups) == 0 {
		all, err := lister(ctx)
		if err != nil {
			return nil, failure(err)
		}
		for _, t := range all {
			add(t, false)
		}
	}
	if len(tables) == 0 {
		return nil, usageFailure(errors.New("no tables to sync"))
	}
	return tables, nil
}

// confirmTables checks that every table exists on both sides.
func confirmTables(ctx context.Context, src, dst tsync.DataSource, tables []string, destination func(string) string) error {
	for _, t := range tables {
		ok, err := src.TableExists(ctx, t)
		if err != nil {
			return failure(err)
		}
		if !ok {
			return usageFailure(fmt.Errorf("table not found in source: %s", t))
		}
		to := destination(t)
		if ok, err = dst.TableExists(ctx, to); err != nil {
			return failure(err)
		}
		if !ok {
			return usageFailure(fmt.Errorf("table not found in destination: %s", to))
		}
	}
	return nil
}
