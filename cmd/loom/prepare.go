package main

import (
	"github.com/loomhq/loom/server/config"
	"github.com/loomhq/loom/server/datastore/mysql"
	"github.com/spf13/cobra"
)

func createPrepareCmd(configManager config.Manager) *cobra.Command {
	prepareCmd := &cobra.Command{
		Use:   "prepare",
		Short: "Subcommands for initializing loom infrastructure",
		Long: `
Subcommands for initializing loom infrastructure

To setup loom infrastructure, use one of the available commands.
`,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Given correct database configurations, prepare the database for use",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := configManager.LoadConfig()

			ds, err := mysql.New(cfg.Mysql)
			if err != nil {
				initFatal(err, "creating db connection")
			}
			defer ds.Close()

			if err := ds.MigrateTables(cmd.Context()); err != nil {
				initFatal(err, "migrating db schema")
			}
		},
	}

	prepareCmd.AddCommand(dbCmd)
	return prepareCmd
}
