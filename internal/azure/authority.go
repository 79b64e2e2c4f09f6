// Package azure implements the Azure Active Directory side of VSTS
// authentication: interactive sign-in and the refresh-token exchange that
// produces the access tokens used to mint personal access tokens.
package azure

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/majorcontext/gitcred/internal/log"
	"github.com/majorcontext/gitcred/internal/secret"
)

// Defaults for the VSTS application identity.
const (
	// DefaultClientID is the application client identity by which access
	// is requested.
	DefaultClientID = "97877f11-0fc6-4aee-b1ff-febb0519dd00"
	// DefaultResource is the Azure resource for which access is requested.
	DefaultResource = "499b84ac-1321-427f-aa17-267ca6975798"
)

// callbackTimeout is how long interactive sign-in waits for the browser
// redirect before giving up.
const callbackTimeout = 5 * time.Minute

// Authority exchanges tokens with an Azure Active Directory tenant. The
// zero tenant uses the "common" authority shared by consumer accounts.
type Authority struct {
	ClientID string
	Resource string
	Tenant   uuid.UUID

	// Endpoint overrides the AAD endpoints. For testing.
	Endpoint oauth2.Endpoint
	// HTTPClient overrides the client used for token requests. For testing.
	HTTPClient *http.Client
}

// NewAuthority creates an authority for the given tenant. Empty clientID or
// resource fall back to the VSTS defaults.
func NewAuthority(tenant uuid.UUID, clientID, resource string) *Authority {
	if clientID == "" {
		clientID = DefaultClientID
	}
	if resource == "" {
		resource = DefaultResource
	}
	return &Authority{ClientID: clientID, Resource: resource, Tenant: tenant}
}

func (a *Authority) tenantSegment() string {
	if a.Tenant == uuid.Nil {
		return "common"
	}
	return a.Tenant.String()
}

func (a *Authority) endpoint() oauth2.Endpoint {
	if a.Endpoint.TokenURL != "" {
		return a.Endpoint
	}
	return microsoft.AzureADEndpoint(a.tenantSegment())
}

func (a *Authority) oauthConfig(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    a.ClientID,
		Endpoint:    a.endpoint(),
		RedirectURL: redirectURL,
		Scopes:      []string{a.Resource + "/.default", "offline_access"},
	}
}

// contextWithClient routes oauth2's requests through the override client.
func (a *Authority) contextWithClient(ctx context.Context) context.Context {
	if a.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, a.HTTPClient)
	}
	return ctx
}

// AcquireTokenByRefreshToken exchanges a stored refresh token for a fresh
// access/refresh token pair. The exchange is attempted exactly once. The
// resulting access token is scoped to the authority's tenant.
func (a *Authority) AcquireTokenByRefreshToken(ctx context.Context, refreshToken *secret.Token) (*secret.TokenPair, error) {
	if refreshToken == nil || refreshToken.Value == "" {
		return nil, fmt.Errorf("refresh token is empty")
	}

	cfg := a.oauthConfig("")
	src := cfg.TokenSource(a.contextWithClient(ctx), &oauth2.Token{RefreshToken: refreshToken.Value})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token exchange for tenant %s: %w", a.tenantSegment(), err)
	}

	// The authority may rotate the refresh token; keep the old one when it
	// does not.
	refreshValue := tok.RefreshToken
	if refreshValue == "" {
		refreshValue = refreshToken.Value
	}

	pair, err := secret.NewTokenPair(tok.AccessToken, refreshValue)
	if err != nil {
		return nil, fmt.Errorf("refresh exchange response: %w", err)
	}
	pair.AccessToken.TargetIdentity = a.Tenant

	log.Debug("refresh token exchange succeeded", "tenant", a.tenantSegment())
	return pair, nil
}

// Authorize runs the interactive authorization code flow: it starts a
// localhost callback server, hands the authorization URL to notify (the
// caller opens or prints it), waits for the redirect, and exchanges the
// code for a token pair.
func (a *Authority) Authorize(ctx context.Context, notify func(authURL string)) (*secret.TokenPair, error) {
	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}
	state := hex.EncodeToString(stateBytes)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("starting callback server: %w", err)
	}
	defer listener.Close()

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		return nil, fmt.Errorf("unexpected listener address type: %T", listener.Addr())
	}
	redirectURL := fmt.Sprintf("http://localhost:%d/callback", tcpAddr.Port)

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			errCh <- fmt.Errorf("invalid state parameter")
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}
		if errMsg := r.URL.Query().Get("error"); errMsg != "" {
			if desc := r.URL.Query().Get("error_description"); desc != "" {
				errMsg += ": " + desc
			}
			errCh <- fmt.Errorf("authorization error: %s", errMsg)
			http.Error(w, "Authorization failed", http.StatusBadRequest)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			errCh <- fmt.Errorf("no authorization code in callback")
			http.Error(w, "No authorization code", http.StatusBadRequest)
			return
		}
		codeCh <- code
		fmt.Fprint(w, "<html><body><h1>Sign-in complete</h1><p>You can close this tab and return to the terminal.</p></body></html>")
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- fmt.Errorf("callback server: %w", serveErr)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	cfg := a.oauthConfig(redirectURL)
	notify(cfg.AuthCodeURL(state))

	timeoutCtx, cancel := context.WithTimeout(ctx, callbackTimeout)
	defer cancel()

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return nil, err
	case <-timeoutCtx.Done():
		return nil, fmt.Errorf("sign-in timed out after %s", callbackTimeout)
	}

	tok, err := cfg.Exchange(a.contextWithClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("authorization code exchange: %w", err)
	}

	pair, err := secret.NewTokenPair(tok.AccessToken, tok.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("authorization response: %w", err)
	}
	pair.AccessToken.TargetIdentity = a.Tenant

	log.Debug("interactive sign-in succeeded", "tenant", a.tenantSegment())
	return pair, nil
}
