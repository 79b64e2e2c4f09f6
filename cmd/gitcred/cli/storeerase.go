package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/majorcontext/gitcred/internal/log"
	"github.com/majorcontext/gitcred/internal/secret"
	"github.com/majorcontext/gitcred/internal/vsts"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Store credentials for a host (git credential-helper protocol)",
	Args:  cobra.NoArgs,
	RunE:  runStore,
}

var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Erase credentials for a host (git credential-helper protocol)",
	Long: `Read a credential request from stdin and delete the stored secret for
its host. The PAT store takes priority; the refresh-token store is only
touched when no PAT was stored.`,
	Args: cobra.NoArgs,
	RunE: runErase,
}

func init() {
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(eraseCmd)
}

func runStore(cmd *cobra.Command, args []string) error {
	req, err := readHelperRequest(cmd.InOrStdin())
	if err != nil {
		return err
	}
	if req.Username == "" || req.Password == "" {
		return fmt.Errorf("store request has no username or password")
	}
	target, err := req.targetURL()
	if err != nil {
		return err
	}

	patStore, _, err := openStores(globalCfg)
	if err != nil {
		return err
	}
	cred, err := secret.NewCredential(req.Username, req.Password)
	if err != nil {
		return err
	}
	if err := patStore.WriteCredentials(target, cred); err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}
	log.Debug("credential stored", "target", target.Host)
	return nil
}

func runErase(cmd *cobra.Command, args []string) error {
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
	// Deletion does not depend on the tenant; skip authority detection.
	broker := vsts.NewBroker(uuid.Nil, secret.Scope(globalCfg.Scope), patStore, refreshStore)
	if err := broker.DeleteCredentials(target); err != nil {
		return fmt.Errorf("erasing credential: %w", err)
	}
	log.Debug("credential erased", "target", target.Host)
	return nil
}
