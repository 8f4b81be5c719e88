package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "arena",
	Short: "Multi-agent crypto trading tournaments",
	Long: `Arena runs trading tournaments between autonomous agents.

Each agent holds a portfolio, asks its decision engine for at most one trade
per cycle and is ranked by portfolio value. Agent state is persisted after
every cycle and recovered from the database after a restart.

Configuration is read from .env and the environment (see internal/config).`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}
