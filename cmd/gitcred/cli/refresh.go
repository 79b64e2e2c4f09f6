package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/majorcontext/gitcred/internal/secret"
	"github.com/majorcontext/gitcred/internal/vsts"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh <url>",
	Short: "Mint a fresh personal access token for a host",
	Args:  cobra.ExactArgs(1),
	RunE:  runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	target, err := url.Parse(args[0])
	if err != nil {
		return fmt.Errorf("parsing target URL: %w", err)
	}

	patStore, refreshStore, err := openStores(globalCfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	broker, err := vsts.GetAuthentication(ctx, target, secret.Scope(globalCfg.Scope), patStore, refreshStore, brokerOptions(globalCfg)...)
	if err != nil {
		return err
	}
	if broker == nil {
		return fmt.Errorf("%s is not a Team Services host", target.Host)
	}

	if !broker.RefreshCredentials(ctx, target, compact) {
		return fmt.Errorf("refresh failed for %s; run 'gitcred login %s' to sign in again", target.Host, target)
	}
	cmd.PrintErrf("Personal access token refreshed for %s.\n", target.Host)
	return nil
}
