package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	tsync "github.com/arwahdevops/tablesync/internal/sync"
)

var listTablesCmd = &cobra.Command{
	Use:   "list-tables [tables...]",
	Short: "Show how each table would be synced, without changing anything",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, viper.GetString("rules-file"))
		if err != nil {
			return err
		}
		src, dst, err := a.control(ctx)
		if err != nil {
			return failure(err)
		}
		defer closeSources(a.log, src, dst)

		tables, err := resolveTables(ctx, src.Tables, a.rules, args, viper.GetStringSlice("groups"))
		if err != nil {
			return err
		}
		return listTables(ctx, cmd.OutOrStdout(), a.log, src, dst, tables, a.rules.DestinationTable)
	},
}

func init() {
	RootCmd.AddCommand(listTablesCmd)
}

var classOrder = []tsync.Classification{
	tsync.ClassInSync,
	tsync.ClassTimestampSync,
	tsync.ClassNormalSync,
	tsync.ClassFullSync,
	tsync.ClassError,
}

func listTables(ctx context.Context, out io.Writer, log *zap.Logger, src, dst tsync.DataSource,
	tables []string, destination func(string) string) error {
	results, inspectErr := tsync.Inspect(ctx, src, dst, tables, destination)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tSOURCE\tDESTINATION\tPRIMARY KEY\tUPDATED_AT\tSTATUS")
	for _, r := range results {
		name := r.Table
		if r.DestTable != r.Table {
			name = r.Table + " -> " + r.DestTable
		}
		status := string(r.Class)
		if r.TruncateRequired {
			status += " (truncate required)"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\n",
			name, r.SourceCount, r.DestCount, yesNo(r.HasPrimaryKey), yesNo(r.TimestampTracked), status)
	}
	if err := tw.Flush(); err != nil {
		return failure(err)
	}

	groups := tsync.GroupByClass(results)
	fmt.Fprintln(out)
	for _, class := range classOrder {
		if names := groups[class]; len(names) > 0 {
			fmt.Fprintf(out, "%s (%d): %s\n", class, len(names), strings.Join(names, " "))
		}
	}

	if inspectErr != nil {
		log.Warn("Some tables could not be inspected", zap.Error(inspectErr))
		return &exitError{code: 1}
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
