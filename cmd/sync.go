package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/arwahdevops/tablesync/internal/config"
	"github.com/arwahdevops/tablesync/internal/logger"
	"github.com/arwahdevops/tablesync/internal/server"
	tsync "github.com/arwahdevops/tablesync/internal/sync"
)

func runSync(parent context.Context, c *config.Config, args, groups []string, opts tsync.Options) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { _ = logger.Log.Sync() }()

	started := time.Now()
	if err := checkDestination(c); err != nil {
		return usageFailure(err)
	}
	a, err := newApp(ctx, c, viper.GetString("rules-file"))
	if err != nil {
		return err
	}

	src, dst, err := a.control(ctx)
	if err != nil {
		return failure(err)
	}
	defer closeSources(a.log, src, dst)

	tables, err := resolveTables(ctx, src.Tables, a.rules, args, groups)
	if err != nil {
		return err
	}
	if err := confirmTables(ctx, src, dst, tables, a.rules.DestinationTable); err != nil {
		return err
	}

	a.log.Info("From: " + c.SrcDB.Describe())
	a.log.Info("To:   " + c.DstDB.Describe())

	if c.EnableMetricsServer {
		srvCtx, cancelSrv := context.WithCancel(ctx)
		defer cancelSrv()
		checks := map[string]server.Pinger{"source": src.Connector(), "destination": dst.Connector()}
		go server.RunHTTPServer(srvCtx, c, a.metrics, checks, a.log)
	}

	results := syncTables(ctx, a, tables, opts)
	tsync.LogSummary(a.log, results)
	a.log.Info(fmt.Sprintf("Completed in %.1fs", time.Since(started).Seconds()))

	if code := tsync.ExitCode(results); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

func syncTables(ctx context.Context, a *app, tables []string, opts tsync.Options) map[string]tsync.Outcome {
	blocks := logger.NewBlockLogger(a.log)
	syncer := tsync.NewTableSyncer(a.opener(), a.rules.DataRules, a.rules.RenameTables, blocks, a.metrics)
	coord := tsync.NewCoordinator(syncer, a.log, a.metrics)
	a.log.Debug("Dispatching tables", zap.Strings("tables", tables), zap.Int("workers", opts.Workers))
	return coord.Run(ctx, tables, opts)
}
