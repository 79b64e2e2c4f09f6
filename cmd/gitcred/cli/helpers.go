package cli

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/majorcontext/gitcred/internal/config"
	"github.com/majorcontext/gitcred/internal/secret"
	"github.com/majorcontext/gitcred/internal/store"
	"github.com/majorcontext/gitcred/internal/vsts"
)

// helperRequest holds the fields git passes over the credential-helper
// protocol: key=value lines terminated by a blank line.
type helperRequest struct {
	Protocol string
	Host     string
	Path     string
	Username string
	Password string
}

// readHelperRequest parses a credential-helper request. Unknown keys are
// ignored; the request ends at the first blank line or EOF.
func readHelperRequest(r io.Reader) (*helperRequest, error) {
	req := &helperRequest{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("malformed input line %q", line)
		}
		switch key {
		case "protocol":
			req.Protocol = value
		case "host":
			req.Host = value
		case "path":
			req.Path = value
		case "username":
			req.Username = value
		case "password":
			req.Password = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading credential request: %w", err)
	}
	if req.Host == "" {
		return nil, fmt.Errorf("credential request has no host")
	}
	return req, nil
}

// targetURL builds the target URI the stores and the protocol client key
// on. The protocol defaults to https.
func (h *helperRequest) targetURL() (*url.URL, error) {
	scheme := h.Protocol
	if scheme == "" {
		scheme = "https"
	}
	raw := scheme + "://" + h.Host
	if h.Path != "" {
		raw += "/" + strings.TrimPrefix(h.Path, "/")
	}
	target, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("building target URI: %w", err)
	}
	return target, nil
}

// writeHelperResponse emits the credential in the helper protocol's output
// format.
func writeHelperResponse(w io.Writer, cred *secret.Credential) {
	fmt.Fprintf(w, "username=%s\n", cred.Username)
	fmt.Fprintf(w, "password=%s\n", cred.Password)
}

// openStores builds the PAT and refresh-token stores for the configured
// backend.
func openStores(cfg *config.GlobalConfig) (store.CredentialStore, store.TokenStore, error) {
	switch cfg.Store.Backend {
	case "", "keyring":
		return store.NewKeyring(store.NamespacePAT), store.NewKeyring(store.NamespaceRefresh), nil
	case "file":
		baseDir := config.GlobalConfigDir()
		key, err := store.DefaultEncryptionKey(baseDir)
		if err != nil {
			return nil, nil, fmt.Errorf("getting encryption key: %w", err)
		}
		patStore, err := store.NewFileStore(filepath.Join(baseDir, "secrets", store.NamespacePAT), key)
		if err != nil {
			return nil, nil, fmt.Errorf("opening PAT store: %w", err)
		}
		refreshStore, err := store.NewFileStore(filepath.Join(baseDir, "secrets", store.NamespaceRefresh), key)
		if err != nil {
			return nil, nil, fmt.Errorf("opening refresh token store: %w", err)
		}
		return patStore, refreshStore, nil
	case "memory":
		return store.NewSecretCache(store.NamespacePAT), store.NewSecretCache(store.NamespaceRefresh), nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// brokerOptions carries configured application overrides into broker
// construction.
func brokerOptions(cfg *config.GlobalConfig) []vsts.BrokerOption {
	return []vsts.BrokerOption{vsts.WithApplication(cfg.ClientID, cfg.Resource)}
}
