package cli

import (
	"github.com/spf13/cobra"

	"github.com/majorcontext/gitcred/internal/log"
	"github.com/majorcontext/gitcred/internal/secret"
	"github.com/majorcontext/gitcred/internal/vsts"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Retrieve credentials for a host (git credential-helper protocol)",
	Long: `Read a credential request from stdin and print a matching credential.

A stored PAT is returned when one exists. Otherwise a stored refresh token
is exchanged and a fresh PAT minted. When the host is not a Team Services
host, or nothing can be produced, the command exits quietly so git can fall
back to its other helpers.`,
	Args: cobra.NoArgs,
	RunE: runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	req, err := readHelperRequest(cmd.InOrStdin())
	if err != nil {
		return err
	}
	target, err := req.targetURL()
	if err != nil {
		return err
	}

	patStore, refreshStore, err := openStores(globalCfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	broker, err := vsts.GetAuthentication(ctx, target, secret.Scope(globalCfg.Scope), patStore, refreshStore, brokerOptions(globalCfg)...)
	if err != nil {
		log.Warn("authority detection failed", "target", target.Host, "error", err)
		return nil
	}
	if broker == nil {
		log.Debug("no authentication available", "target", target.Host)
		return nil
	}

	cred, err := broker.GetCredentials(target)
	if err != nil {
		return err
	}
	if cred == nil && broker.RefreshCredentials(ctx, target, compact) {
		cred, err = broker.GetCredentials(target)
		if err != nil {
			return err
		}
	}
	if cred == nil {
		log.Debug("no credential produced", "target", target.Host)
		return nil
	}

	writeHelperResponse(cmd.OutOrStdout(), cred)
	return nil
}
