// Package store provides the secret stores backing the credential broker:
// an in-process cache, an OS keychain store, and an encrypted file store.
// Secrets are keyed by the target URI's host, so every path under one
// service instance shares credentials.
package store

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/majorcontext/gitcred/internal/secret"
)

// ErrNotFound indicates the store holds no secret for the target. It is
// distinct from an I/O failure reading the backing storage.
var ErrNotFound = errors.New("secret not found")

// Store namespaces used by the broker.
const (
	// NamespacePAT holds generated personal access tokens.
	NamespacePAT = "pat"
	// NamespaceRefresh holds Azure Directory refresh tokens.
	NamespaceRefresh = "ada"
	// NamespaceIDECache mirrors the federated tokens captured by an IDE.
	NamespaceIDECache = "registry"
)

// CredentialStore persists username/password credentials keyed by target.
type CredentialStore interface {
	ReadCredentials(target *url.URL) (*secret.Credential, error)
	WriteCredentials(target *url.URL, cred *secret.Credential) error
	DeleteCredentials(target *url.URL) error
}

// TokenStore persists tokens keyed by target.
type TokenStore interface {
	ReadToken(target *url.URL) (*secret.Token, error)
	WriteToken(target *url.URL, token *secret.Token) error
	DeleteToken(target *url.URL) error
}

// ValidateTargetURI rejects targets that cannot serve as a store key.
func ValidateTargetURI(target *url.URL) error {
	if target == nil {
		return fmt.Errorf("target URI is nil")
	}
	if !target.IsAbs() || target.Hostname() == "" {
		return fmt.Errorf("target URI %q must be absolute with a host", target)
	}
	return nil
}

// targetKey derives the lookup key for a target.
func targetKey(target *url.URL) (string, error) {
	if err := ValidateTargetURI(target); err != nil {
		return "", err
	}
	return strings.ToLower(target.Hostname()), nil
}

// SecretCache is an in-process store for both credentials and tokens.
// It backs the IDE token cache default and tests. Not persisted.
type SecretCache struct {
	namespace string

	mu          sync.Mutex
	credentials map[string]secret.Credential
	tokens      map[string]secret.Token
}

// NewSecretCache creates an empty cache for the given namespace.
func NewSecretCache(namespace string) *SecretCache {
	return &SecretCache{
		namespace:   namespace,
		credentials: make(map[string]secret.Credential),
		tokens:      make(map[string]secret.Token),
	}
}

// ReadCredentials returns the cached credential or ErrNotFound.
func (s *SecretCache) ReadCredentials(target *url.URL) (*secret.Credential, error) {
	key, err := targetKey(target)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.credentials[key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", s.namespace, key, ErrNotFound)
	}
	return &cred, nil
}

// WriteCredentials caches a credential for the target.
func (s *SecretCache) WriteCredentials(target *url.URL, cred *secret.Credential) error {
	key, err := targetKey(target)
	if err != nil {
		return err
	}
	if cred == nil {
		return fmt.Errorf("credential is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[key] = *cred
	return nil
}

// DeleteCredentials removes the cached credential, if any.
func (s *SecretCache) DeleteCredentials(target *url.URL) error {
	key, err := targetKey(target)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.credentials, key)
	return nil
}

// ReadToken returns the cached token or ErrNotFound.
func (s *SecretCache) ReadToken(target *url.URL) (*secret.Token, error) {
	key, err := targetKey(target)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", s.namespace, key, ErrNotFound)
	}
	return &tok, nil
}

// WriteToken caches a token for the target.
func (s *SecretCache) WriteToken(target *url.URL, token *secret.Token) error {
	key, err := targetKey(target)
	if err != nil {
		return err
	}
	if token == nil {
		return fmt.Errorf("token is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[key] = *token
	return nil
}

// DeleteToken removes the cached token, if any.
func (s *SecretCache) DeleteToken(target *url.URL) error {
	key, err := targetKey(target)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, key)
	return nil
}

var (
	_ CredentialStore = (*SecretCache)(nil)
	_ TokenStore      = (*SecretCache)(nil)
)
