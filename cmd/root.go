package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arwahdevops/tablesync/internal/config"
	"github.com/arwahdevops/tablesync/internal/logger"
	tsync "github.com/arwahdevops/tablesync/internal/sync"
)

var (
	cfgFile string
	envFile string
	cfg     *config.Config
)

var RootCmd = &cobra.Command{
	Use:   "tablesync [tables...]",
	Short: "Copy tables between databases",
	Long: `tablesync copies table data from a source database into a destination
database, anonymizing columns on the way out according to the rules file.

With no table arguments every table of the source is synced.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == initCmd.Name() {
			return nil
		}
		return bootstrap()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := optionsFromFlags(cfg)
		if err != nil {
			return usageFailure(err)
		}
		return runSync(cmd.Context(), cfg, args, viper.GetStringSlice("groups"), opts)
	},
}

// Execute runs the root command and exits with its status.
func Execute() {
	err := RootCmd.Execute()
	if err == nil {
		return
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(os.Stderr, "Error:", ee.err)
		}
		os.Exit(ee.code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(2)
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := RootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file for flag defaults (default is ./tablesync.yaml)")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file loaded over the environment")
	pf.String("rules-file", "", "rules file (default RULES_FILE or .tablesync.yml)")
	pf.StringSlice("groups", nil, "sync the tables of these rules-file groups")

	f := RootCmd.Flags()
	f.Int("batch-size", 0, "rows per batch window (default BATCH_SIZE)")
	f.Bool("truncate", false, "truncate destination tables before copying")
	f.Bool("preserve", false, "keep destination rows whose primary key already exists")
	f.Bool("overwrite", false, "replace destination rows whose primary key already exists")
	f.Bool("ignore-same-size", false, "skip tables whose row counts already match")
	f.Bool("in-batches", false, "copy by primary key windows, resuming from the destination max id")
	f.String("sql", "", "clause appended to the source select, e.g. \"WHERE created_at > '2024-01-01'\"")
	f.Float64("sleep", 0, "seconds to sleep between batch windows")
	f.Bool("no-rules", false, "copy columns unchanged, ignoring data_rules")
	f.Bool("sequential", false, "sync one table at a time")
	f.Int("workers", 0, "tables synced in parallel (default WORKERS)")

	_ = viper.BindPFlags(pf)
	_ = viper.BindPFlags(f)
}

// initConfig reads the optional config file and TABLESYNC_* variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("tablesync")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("tablesync")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// bootstrap loads the environment and builds the logger.
func bootstrap() error {
	if err := godotenv.Overload(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return usageFailure(fmt.Errorf("load %s: %w", envFile, err))
	}
	loaded, err := config.Load()
	if err != nil {
		return usageFailure(err)
	}
	if err := logger.Init(loaded.DebugMode, loaded.EnableJsonLogging); err != nil {
		return usageFailure(err)
	}
	cfg = loaded
	return nil
}

// optionsFromFlags merges flags over the environment configuration.
func optionsFromFlags(c *config.Config) (tsync.Options, error) {
	opts := tsync.Options{
		BatchSize:      c.BatchSize,
		Workers:        c.Workers,
		SQL:            viper.GetString("sql"),
		Truncate:       viper.GetBool("truncate"),
		Preserve:       viper.GetBool("preserve"),
		Overwrite:      viper.GetBool("overwrite"),
		IgnoreSameSize: viper.GetBool("ignore-same-size"),
		InBatches:      viper.GetBool("in-batches"),
		NoRules:        viper.GetBool("no-rules"),
		Sequential:     viper.GetBool("sequential") || c.DebugMode,
	}
	if viper.IsSet("batch-size") {
		opts.BatchSize = viper.GetInt("batch-size")
	}
	if viper.IsSet("workers") {
		opts.Workers = viper.GetInt("workers")
	}
	if opts.BatchSize < 1 {
		return opts, errors.New("--batch-size must be positive")
	}
	if opts.Workers < 1 {
		return opts, errors.New("--workers must be positive")
	}
	sleep := viper.GetFloat64("sleep")
	if sleep < 0 {
		return opts, errors.New("--sleep cannot be negative")
	}
	opts.Sleep = time.Duration(sleep * float64(time.Second))
	if opts.InBatches && opts.Overwrite {
		return opts, &tsync.UsageError{Reason: "cannot use --overwrite with --in-batches"}
	}
	return opts, nil
}

// exitError carries the process status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// usageFailure is a usage or configuration problem found before dispatch.
func usageFailure(err error) error { return &exitError{code: 2, err: err} }

func failure(err error) error { return &exitError{code: 1, err: err} }
