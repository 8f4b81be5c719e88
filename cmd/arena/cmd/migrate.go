package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, cancel := commandContext(cmd)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			return err
		}

		logger.Info("Schema is up to date")
		fmt.Printf("Migrations applied on %s\n", store.Driver())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
