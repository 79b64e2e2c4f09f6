package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	zkeyring "github.com/zalando/go-keyring"

	"github.com/majorcontext/gitcred/internal/secret"
)

// KeySize is the encryption key size in bytes (AES-256).
const KeySize = 32

// FileStore persists secrets as AES-GCM encrypted files. It is the
// fallback for hosts without a usable OS keychain.
type FileStore struct {
	dir    string
	cipher cipher.AEAD
}

// NewFileStore creates a file-backed store rooted at dir. key must be
// KeySize bytes; use DefaultEncryptionKey to obtain one.
func NewFileStore(dir string, key []byte) (*FileStore, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating secret dir: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &FileStore{dir: dir, cipher: gcm}, nil
}

func (s *FileStore) path(key string) string {
	// IPv6 literals contain colons; keep filenames portable.
	return filepath.Join(s.dir, strings.ReplaceAll(key, ":", "_")+".enc")
}

func (s *FileStore) read(target *url.URL) ([]byte, error) {
	key, err := targetKey(target)
	if err != nil {
		return nil, err
	}
	encrypted, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("reading secret file: %w", err)
	}

	nonceSize := s.cipher.NonceSize()
	if len(encrypted) < nonceSize {
		return nil, fmt.Errorf("secret file for %s is truncated", key)
	}
	nonce, ciphertext := encrypted[:nonceSize], encrypted[nonceSize:]
	data, err := s.cipher.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting secret for %s: %w", key, err)
	}
	return data, nil
}

func (s *FileStore) write(target *url.URL, data []byte) error {
	key, err := targetKey(target)
	if err != nil {
		return err
	}
	nonce := make([]byte, s.cipher.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}
	encrypted := s.cipher.Seal(nonce, nonce, data, nil)
	if err := os.WriteFile(s.path(key), encrypted, 0600); err != nil {
		return fmt.Errorf("writing secret file: %w", err)
	}
	return nil
}

func (s *FileStore) delete(target *url.URL) error {
	key, err := targetKey(target)
	if err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting secret file: %w", err)
	}
	return nil
}

// ReadCredentials returns the stored credential or ErrNotFound.
func (s *FileStore) ReadCredentials(target *url.URL) (*secret.Credential, error) {
	data, err := s.read(target)
	if err != nil {
		return nil, err
	}
	return decodeCredential(data)
}

// WriteCredentials stores an encrypted credential.
func (s *FileStore) WriteCredentials(target *url.URL, cred *secret.Credential) error {
	data, err := encodeCredential(cred)
	if err != nil {
		return err
	}
	return s.write(target, data)
}

// DeleteCredentials removes the stored credential, if any.
func (s *FileStore) DeleteCredentials(target *url.URL) error {
	return s.delete(target)
}

// ReadToken returns the stored token or ErrNotFound.
func (s *FileStore) ReadToken(target *url.URL) (*secret.Token, error) {
	data, err := s.read(target)
	if err != nil {
		return nil, err
	}
	return decodeToken(data)
}

// WriteToken stores an encrypted token.
func (s *FileStore) WriteToken(target *url.URL, token *secret.Token) error {
	data, err := encodeToken(token)
	if err != nil {
		return err
	}
	return s.write(target, data)
}

// DeleteToken removes the stored token, if any.
func (s *FileStore) DeleteToken(target *url.URL) error {
	return s.delete(target)
}

var (
	_ CredentialStore = (*FileStore)(nil)
	_ TokenStore      = (*FileStore)(nil)
)

const (
	keyService = "gitcred"
	keyAccount = "encryption-key"
)

// ErrInsecurePermissions is returned when the fallback key file is readable
// by other users. A loosened key file may mean the key was exposed.
var ErrInsecurePermissions = errors.New("key file has insecure permissions")

// DefaultEncryptionKey retrieves the file-store encryption key, creating it
// on first use. The key lives in the OS keychain when one is available and
// falls back to ~/.gitcred/encryption.key with 0600 permissions.
func DefaultEncryptionKey(dir string) ([]byte, error) {
	if encoded, err := zkeyring.Get(keyService, keyAccount); err == nil {
		return decodeKey(encoded)
	}

	keyPath := filepath.Join(dir, "encryption.key")
	if key, err := readKeyFile(keyPath); err == nil {
		return key, nil
	} else if errors.Is(err, ErrInsecurePermissions) {
		return nil, err
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating encryption key: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)

	if err := zkeyring.Set(keyService, keyAccount, encoded); err == nil {
		return key, nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(encoded), 0600); err != nil {
		return nil, fmt.Errorf("writing key file: %w", err)
	}
	// Re-read so concurrent first runs converge on whichever key won.
	return readKeyFile(keyPath)
}

func readKeyFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return nil, fmt.Errorf("%w: %s has permissions %04o (expected 0600)", ErrInsecurePermissions, path, perm)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	return decodeKey(strings.TrimSpace(string(data)))
}

func decodeKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid key encoding: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key length: expected %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}
