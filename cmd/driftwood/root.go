package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the driftwood CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "driftwood",
		Short: "driftwood - personal-website backend",
		Long: `driftwood serves a personal website: static pages, a blog,
user accounts with sessions, and the arcade leaderboard.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewStopCmd())

	return cmd
}
