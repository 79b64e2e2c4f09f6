package store

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/zalando/go-keyring"

	"github.com/majorcontext/gitcred/internal/secret"
)

// Keyring stores secrets in the OS keychain.
//
// Platform support follows go-keyring: macOS Keychain, Windows Credential
// Manager, and libsecret/kwallet/pass on Linux. Headless environments
// without a keychain should use FileStore instead.
type Keyring struct {
	service string
}

// NewKeyring creates a keychain-backed store. Entries are stored under the
// service name "gitcred:<namespace>" with the target host as the account.
func NewKeyring(namespace string) *Keyring {
	return &Keyring{service: "gitcred:" + namespace}
}

func (k *Keyring) read(target *url.URL) ([]byte, error) {
	key, err := targetKey(target)
	if err != nil {
		return nil, err
	}
	val, err := keyring.Get(k.service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, fmt.Errorf("%s/%s: %w", k.service, key, ErrNotFound)
		}
		return nil, fmt.Errorf("keychain get: %w", err)
	}
	return []byte(val), nil
}

func (k *Keyring) write(target *url.URL, data []byte) error {
	key, err := targetKey(target)
	if err != nil {
		return err
	}
	if err := keyring.Set(k.service, key, string(data)); err != nil {
		return fmt.Errorf("keychain set: %w", err)
	}
	return nil
}

func (k *Keyring) delete(target *url.URL) error {
	key, err := targetKey(target)
	if err != nil {
		return err
	}
	if err := keyring.Delete(k.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keychain delete: %w", err)
	}
	return nil
}

// ReadCredentials returns the stored credential or ErrNotFound.
func (k *Keyring) ReadCredentials(target *url.URL) (*secret.Credential, error) {
	data, err := k.read(target)
	if err != nil {
		return nil, err
	}
	return decodeCredential(data)
}

// WriteCredentials stores a credential in the keychain.
func (k *Keyring) WriteCredentials(target *url.URL, cred *secret.Credential) error {
	data, err := encodeCredential(cred)
	if err != nil {
		return err
	}
	return k.write(target, data)
}

// DeleteCredentials removes the stored credential, if any.
func (k *Keyring) DeleteCredentials(target *url.URL) error {
	return k.delete(target)
}

// ReadToken returns the stored token or ErrNotFound.
func (k *Keyring) ReadToken(target *url.URL) (*secret.Token, error) {
	data, err := k.read(target)
	if err != nil {
		return nil, err
	}
	return decodeToken(data)
}

// WriteToken stores a token in the keychain.
func (k *Keyring) WriteToken(target *url.URL, token *secret.Token) error {
	data, err := encodeToken(token)
	if err != nil {
		return err
	}
	return k.write(target, data)
}

// DeleteToken removes the stored token, if any.
func (k *Keyring) DeleteToken(target *url.URL) error {
	return k.delete(target)
}

var (
	_ CredentialStore = (*Keyring)(nil)
	_ TokenStore      = (*Keyring)(nil)
)
