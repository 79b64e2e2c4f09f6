// Package cli implements the gitcred command-line interface using Cobra.
// It speaks the git credential-helper protocol (get, store, erase) and adds
// login, refresh, and validate commands for managing Team Services PATs.
package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/majorcontext/gitcred/internal/config"
	"github.com/majorcontext/gitcred/internal/log"
	"github.com/majorcontext/gitcred/internal/vsts"
)

var (
	verbose bool
	jsonOut bool
	compact bool

	globalCfg *config.GlobalConfig
)

var rootCmd = &cobra.Command{
	Use:   "gitcred",
	Short: "Git credential helper for Visual Studio Team Services",
	Long: `gitcred is a git credential helper for Visual Studio Team Services.
It classifies the account backing a *.visualstudio.com host (Microsoft
account or Azure directory tenant), exchanges a stored refresh token for a
fresh access token, and mints a scoped personal access token that git can
use in place of a password.

Configure it in git with:
  git config --global credential.helper gitcred`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		globalCfg, _ = config.LoadGlobal()
		vsts.SetUserAgent(globalCfg.UserAgent)

		if err := log.Init(log.Options{
			Verbose:       verbose,
			JSONFormat:    jsonOut,
			DebugDir:      filepath.Join(config.GlobalConfigDir(), "debug"),
			RetentionDays: globalCfg.Debug.RetentionDays,
		}); err != nil {
			// Non-fatal: credentials still work without debug logs.
			cmd.PrintErrf("Warning: failed to initialize debug logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Close()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "log in JSON format")
	rootCmd.PersistentFlags().BoolVar(&compact, "compact", false, "request compact personal access tokens")
}
