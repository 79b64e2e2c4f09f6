package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/majorcontext/gitcred/internal/azure"
	"github.com/majorcontext/gitcred/internal/secret"
	"github.com/majorcontext/gitcred/internal/vsts"
)

var loginCmd = &cobra.Command{
	Use:   "login <url>",
	Short: "Sign in to a Team Services host interactively",
	Long: `Run the browser-based Azure sign-in flow for a Team Services host,
persist the resulting refresh token, and mint an initial personal access
token.

Example:
  gitcred login https://example.visualstudio.com`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
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

	authority := azure.NewAuthority(broker.TenantID, globalCfg.ClientID, globalCfg.Resource)
	pair, err := authority.Authorize(ctx, func(authURL string) {
		cmd.PrintErrln("Open this URL in your browser to sign in:")
		cmd.PrintErrln()
		cmd.PrintErrln("  " + authURL)
		cmd.PrintErrln()
	})
	if err != nil {
		return fmt.Errorf("sign-in failed: %w", err)
	}

	if pair.RefreshToken == nil {
		return fmt.Errorf("sign-in produced no refresh token")
	}
	if err := broker.StoreRefreshToken(target, pair.RefreshToken); err != nil {
		return fmt.Errorf("storing refresh token: %w", err)
	}

	if !broker.RefreshCredentials(ctx, target, compact) {
		return fmt.Errorf("signed in, but minting a personal access token failed")
	}
	cmd.PrintErrf("Signed in to %s.\n", target.Host)
	return nil
}
