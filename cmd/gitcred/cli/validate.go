package cli

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/majorcontext/gitcred/internal/secret"
	"github.com/majorcontext/gitcred/internal/vsts"
)

var validateUsername string

var validateCmd = &cobra.Command{
	Use:   "validate <url>",
	Short: "Check stored or supplied credentials against a host",
	Long: `Validate the stored credential for a host. With --username, prompt for
a password and validate that pair instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVarP(&validateUsername, "username", "u", "", "validate this username with a prompted password")
}

func runValidate(cmd *cobra.Command, args []string) error {
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

	var cred *secret.Credential
	if validateUsername != "" {
		password, err := promptPassword(cmd, fmt.Sprintf("Password for %s@%s: ", validateUsername, target.Host))
		if err != nil {
			return err
		}
		cred, err = secret.NewCredential(validateUsername, password)
		if err != nil {
			return err
		}
	} else {
		cred, err = broker.GetCredentials(target)
		if err != nil {
			return err
		}
		if cred == nil {
			return fmt.Errorf("no credential stored for %s", target.Host)
		}
	}

	valid, err := broker.ValidateCredentials(ctx, target, cred)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	if !valid {
		return fmt.Errorf("credential for %s is not valid", target.Host)
	}
	cmd.PrintErrf("Credential for %s is valid.\n", target.Host)
	return nil
}

// promptPassword reads a password without echo when stdin is a terminal,
// falling back to a plain line read otherwise (pipes, tests).
func promptPassword(cmd *cobra.Command, prompt string) (string, error) {
	cmd.PrintErr(prompt)
	defer cmd.PrintErrln()

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(raw), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
