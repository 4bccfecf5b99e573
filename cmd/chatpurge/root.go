package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatpurge",
	Short: "Bulk-delete your own messages from a chat channel",
	Long: `chatpurge walks a Discord or Slack channel from newest to oldest and deletes
every message authored by the token's owner, adapting its pace to the
service's rate limits. A run can be paused, resumed and stopped through
signals or the optional control API.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CHATPURGE_CONFIG"), "path to a YAML config file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
}
