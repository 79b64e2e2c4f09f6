// Package vsts implements the Visual Studio Team Services credential
// protocol: authority detection, personal access token issuance, and the
// broker that ties the secret stores and the Azure authority together.
package vsts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/majorcontext/gitcred/internal/log"
	"github.com/majorcontext/gitcred/internal/secret"
	"github.com/majorcontext/gitcred/internal/store"
)

// ErrNotImplemented marks an operation the service contract does not define
// yet. Callers must surface it, not map it to valid or invalid.
var ErrNotImplemented = errors.New("operation not implemented")

// requestTimeout bounds connection establishment for every outbound
// request. Responses are not separately bounded; cancel via context.
const requestTimeout = 15 * time.Second

// locationServiceID identifies the token-service entry in the service
// definition catalog.
const locationServiceID = "951917AC-A960-4999-8464-E3F0AA25B381"

// defaultUserAgent identifies this process on every request. Set once at
// startup via SetUserAgent before any authority is used.
var defaultUserAgent = "gitcred"

// SetUserAgent configures the client identification string sent with every
// request. Not safe to call concurrently with in-flight requests.
func SetUserAgent(ua string) {
	if ua != "" {
		defaultUserAgent = ua
	}
}

// Authority is the stateless protocol client for a Team Services host.
// Every operation is attempted exactly once; there is no retry policy.
type Authority struct {
	// UserAgent overrides the process-wide client identification string.
	UserAgent string
	// HTTPClient overrides the default client. For testing.
	HTTPClient *http.Client

	// baseHost redirects requests away from the target's own host. For
	// testing against local servers.
	baseHost string
}

// NewAuthority creates a protocol client with the default HTTP client.
func NewAuthority() *Authority {
	return &Authority{}
}

var defaultClient = &http.Client{
	Transport: &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: requestTimeout,
		}).DialContext,
		TLSHandshakeTimeout: requestTimeout,
	},
}

func (a *Authority) client() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return defaultClient
}

func (a *Authority) userAgent() string {
	if a.UserAgent != "" {
		return a.UserAgent
	}
	return defaultUserAgent
}

func (a *Authority) requestHost(target *url.URL) string {
	if a.baseHost != "" {
		return a.baseHost
	}
	return target.Host
}

func (a *Authority) newRequest(ctx context.Context, method, requestURL string, body io.Reader, auth secret.Authorizer) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, fmt.Errorf("building %s %s: %w", method, requestURL, err)
	}
	req.Header.Set("User-Agent", a.userAgent())
	if auth != nil {
		auth.ContributeHeader(req.Header)
	}
	return req, nil
}

// do issues the request and returns the status code and full body.
// Transport failures are fatal to the caller; status codes are not.
func (a *Authority) do(req *http.Request) (int, string, error) {
	resp, err := a.client().Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", fmt.Errorf("reading %s %s response: %w", req.Method, req.URL, err)
	}
	return resp.StatusCode, string(body), nil
}

type patRequest struct {
	Scope          string   `json:"scope"`
	TargetAccounts []string `json:"targetAccounts"`
	DisplayName    string   `json:"displayName"`
}

// GeneratePersonalAccessToken mints a PAT for the target using an access or
// federated token. The token's target identity is resolved first via the
// connection-data lookup; the service instance id it reports is what the
// issuance request targets, overriding anything stamped on the token
// earlier (a refreshed token carries the directory tenant, which is not a
// service instance). When the lookup fails no issuance is attempted. A nil
// token with a nil error means the service declined (protocol failure);
// transport failures return an error.
func (a *Authority) GeneratePersonalAccessToken(ctx context.Context, target *url.URL, accessToken *secret.Token, scope secret.Scope, requireCompact bool) (*secret.Token, error) {
	if err := store.ValidateTargetURI(target); err != nil {
		return nil, err
	}
	if accessToken == nil || accessToken.Value == "" {
		return nil, fmt.Errorf("access token is empty")
	}
	if accessToken.Type != secret.TokenTypeAccess && accessToken.Type != secret.TokenTypeFederated {
		return nil, fmt.Errorf("cannot mint a personal access token with a %s token", accessToken.Type)
	}
	if scope == "" {
		return nil, fmt.Errorf("token scope is empty")
	}

	ok, err := a.PopulateTokenTargetID(ctx, target, accessToken)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Debug("target identity lookup failed, skipping token issuance", "target", target.Host)
		return nil, nil
	}

	base, err := a.discoverTokenServiceURL(ctx, target, accessToken)
	if err != nil {
		return nil, err
	}
	if base == "" {
		return nil, nil
	}

	issueURL := base + "/_apis/token/sessiontokens?api-version=1.0"
	if requireCompact {
		issueURL += "&tokentype=compact"
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "localhost"
	}
	body, err := json.Marshal(patRequest{
		Scope:          string(scope),
		TargetAccounts: []string{accessToken.TargetIdentity.String()},
		DisplayName:    fmt.Sprintf("Git: %s on %s", target, hostname),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding token request: %w", err)
	}

	req, err := a.newRequest(ctx, http.MethodPost, issueURL, bytes.NewReader(body), accessToken)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	status, respBody, err := a.do(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		log.Debug("token issuance declined", "target", target.Host, "status", status)
		return nil, nil
	}

	value, ok := extractField("token", respBody)
	if !ok {
		log.Debug("token issuance response missing token field", "target", target.Host)
		return nil, nil
	}

	pat, err := secret.NewToken(value, secret.TokenTypePersonal)
	if err != nil {
		return nil, fmt.Errorf("token issuance response: %w", err)
	}
	log.Debug("personal access token issued", "target", target.Host, "compact", requireCompact)
	return pat, nil
}

// discoverTokenServiceURL resolves the token service base URL through the
// host's location service. Empty with a nil error means the host declined
// or the response had no location.
func (a *Authority) discoverTokenServiceURL(ctx context.Context, target *url.URL, auth secret.Authorizer) (string, error) {
	discoveryURL := fmt.Sprintf("https://%s/_apis/ServiceDefinitions/LocationService2/%s?api-version=1.0",
		a.requestHost(target), locationServiceID)

	req, err := a.newRequest(ctx, http.MethodGet, discoveryURL, nil, auth)
	if err != nil {
		return "", err
	}
	status, body, err := a.do(req)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		log.Debug("location service lookup failed", "target", target.Host, "status", status)
		return "", nil
	}
	location, ok := extractField("location", body)
	if !ok {
		log.Debug("location service response missing location field", "target", target.Host)
		return "", nil
	}
	// The catalog reports locations with a trailing slash.
	for len(location) > 0 && location[len(location)-1] == '/' {
		location = location[:len(location)-1]
	}
	return location, nil
}

// PopulateTokenTargetID resolves the service instance identity backing the
// target and stamps it onto the token. Returns false when the host declines
// or the response carries no parsable instance identity.
func (a *Authority) PopulateTokenTargetID(ctx context.Context, target *url.URL, token *secret.Token) (bool, error) {
	if err := store.ValidateTargetURI(target); err != nil {
		return false, err
	}
	if token == nil || token.Value == "" {
		return false, fmt.Errorf("access token is empty")
	}

	status, body, err := a.connectionData(ctx, target, token)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		log.Debug("connection data lookup failed", "target", target.Host, "status", status)
		return false, nil
	}
	raw, ok := extractField("instanceId", body)
	if !ok {
		log.Debug("connection data missing instanceId", "target", target.Host)
		return false, nil
	}
	instance, err := uuid.Parse(raw)
	if err != nil {
		log.Debug("connection data instanceId is not a UUID", "target", target.Host, "instanceId", raw)
		return false, nil
	}
	token.TargetIdentity = instance
	return true, nil
}

// ValidateCredentials checks a credential against the target. HTTP 200 is
// the sole success criterion; transport failures are returned as errors,
// never mapped to invalid.
func (a *Authority) ValidateCredentials(ctx context.Context, target *url.URL, cred *secret.Credential) (bool, error) {
	if err := store.ValidateTargetURI(target); err != nil {
		return false, err
	}
	if cred == nil {
		return false, fmt.Errorf("credential is nil")
	}
	status, _, err := a.connectionData(ctx, target, cred)
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

// ValidateAccessToken checks an access or federated token against the
// target, with the same contract as ValidateCredentials.
func (a *Authority) ValidateAccessToken(ctx context.Context, target *url.URL, token *secret.Token) (bool, error) {
	if err := store.ValidateTargetURI(target); err != nil {
		return false, err
	}
	if token == nil || token.Value == "" {
		return false, fmt.Errorf("access token is empty")
	}
	status, _, err := a.connectionData(ctx, target, token)
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

// ValidateToken would validate an arbitrary token, but the service contract
// for it is undefined. It always returns ErrNotImplemented.
func (a *Authority) ValidateToken(ctx context.Context, target *url.URL, token *secret.Token) error {
	return fmt.Errorf("validate token: %w", ErrNotImplemented)
}

func (a *Authority) connectionData(ctx context.Context, target *url.URL, auth secret.Authorizer) (int, string, error) {
	requestURL := fmt.Sprintf("https://%s/_apis/connectiondata", a.requestHost(target))
	req, err := a.newRequest(ctx, http.MethodGet, requestURL, nil, auth)
	if err != nil {
		return 0, "", err
	}
	return a.do(req)
}

// extractField pulls a single string field out of a JSON body by targeted
// text search: the first case-insensitive `"field": "value"` match wins.
// This is a deliberate minimal extraction, tolerant of whatever else the
// body contains, not a JSON parser.
func extractField(field, body string) (string, bool) {
	re := regexp.MustCompile(`(?i)"` + regexp.QuoteMeta(field) + `"\s*:\s*"([^"]+)"`)
	m := re.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return m[1], true
}
