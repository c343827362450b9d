package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arwahdevops/tablesync/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter rules file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := viper.GetString("rules-file")
		if path == "" {
			path = os.Getenv("RULES_FILE")
		}
		if path == "" {
			path = ".tablesync.yml"
		}
		if err := config.WriteRulesTemplate(path); err != nil {
			return usageFailure(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s created. Add your rules.\n", path)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(initCmd)
}
