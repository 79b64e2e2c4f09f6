package store

import (
	"errors"
	"net/url"
	"testing"

	"github.com/google/uuid"

	"github.com/majorcontext/gitcred/internal/secret"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", raw, err)
	}
	return u
}

func TestSecretCacheCredentialsRoundTrip(t *testing.T) {
	cache := NewSecretCache(NamespacePAT)
	target := mustURL(t, "https://example.visualstudio.com/DefaultCollection")

	if _, err := cache.ReadCredentials(target); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	cred := &secret.Credential{Username: "PersonalAccessToken", Password: "abc"}
	if err := cache.WriteCredentials(target, cred); err != nil {
		t.Fatalf("WriteCredentials: %v", err)
	}

	got, err := cache.ReadCredentials(target)
	if err != nil {
		t.Fatalf("ReadCredentials: %v", err)
	}
	if *got != *cred {
		t.Errorf("ReadCredentials = %+v, want %+v", got, cred)
	}

	if err := cache.DeleteCredentials(target); err != nil {
		t.Fatalf("DeleteCredentials: %v", err)
	}
	if _, err := cache.ReadCredentials(target); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSecretCacheKeyedByHost(t *testing.T) {
	cache := NewSecretCache(NamespaceRefresh)
	tok := &secret.Token{Value: "rt", Type: secret.TokenTypeRefresh}

	if err := cache.WriteToken(mustURL(t, "https://Example.visualstudio.com/a/b"), tok); err != nil {
		t.Fatalf("WriteToken: %v", err)
	}

	// Same host, different path and case: one entry.
	got, err := cache.ReadToken(mustURL(t, "https://example.visualstudio.com/other"))
	if err != nil {
		t.Fatalf("ReadToken: %v", err)
	}
	if got.Value != "rt" {
		t.Errorf("ReadToken value = %q, want %q", got.Value, "rt")
	}

	// Different host: separate entry.
	if _, err := cache.ReadToken(mustURL(t, "https://other.visualstudio.com/")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for different host, got %v", err)
	}
}

func TestSecretCacheRejectsInvalidTarget(t *testing.T) {
	cache := NewSecretCache(NamespacePAT)

	if _, err := cache.ReadCredentials(nil); err == nil {
		t.Error("expected error for nil target")
	}
	if err := cache.WriteCredentials(mustURL(t, "/relative/only"), &secret.Credential{Username: "u"}); err == nil {
		t.Error("expected error for relative target")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	fs, err := NewFileStore(t.TempDir(), key)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	target := mustURL(t, "https://team.visualstudio.com/")

	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	tok := &secret.Token{Value: "secret-token", Type: secret.TokenTypeFederated, TargetIdentity: id}
	if err := fs.WriteToken(target, tok); err != nil {
		t.Fatalf("WriteToken: %v", err)
	}

	got, err := fs.ReadToken(target)
	if err != nil {
		t.Fatalf("ReadToken: %v", err)
	}
	if got.Value != tok.Value || got.Type != tok.Type || got.TargetIdentity != id {
		t.Errorf("ReadToken = %+v, want %+v", got, tok)
	}

	if err := fs.DeleteToken(target); err != nil {
		t.Fatalf("DeleteToken: %v", err)
	}
	if _, err := fs.ReadToken(target); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting again is not an error.
	if err := fs.DeleteToken(target); err != nil {
		t.Errorf("DeleteToken on missing entry: %v", err)
	}
}

func TestFileStoreWrongKeyFailsClosed(t *testing.T) {
	dir := t.TempDir()
	key1 := make([]byte, KeySize)
	key2 := make([]byte, KeySize)
	key2[0] = 1

	fs1, err := NewFileStore(dir, key1)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	target := mustURL(t, "https://team.visualstudio.com/")
	if err := fs1.WriteCredentials(target, &secret.Credential{Username: "u", Password: "p"}); err != nil {
		t.Fatalf("WriteCredentials: %v", err)
	}

	fs2, err := NewFileStore(dir, key2)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := fs2.ReadCredentials(target); err == nil {
		t.Error("expected decryption failure with wrong key")
	}
}

func TestFileStoreRejectsShortKey(t *testing.T) {
	if _, err := NewFileStore(t.TempDir(), []byte("short")); err == nil {
		t.Error("expected error for short key")
	}
}

func TestFileStoreIPv6Host(t *testing.T) {
	key := make([]byte, KeySize)
	fs, err := NewFileStore(t.TempDir(), key)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	// IPv6 hosts must not produce invalid filenames.
	target := mustURL(t, "https://[::1]:8080/collection")
	if err := fs.WriteCredentials(target, &secret.Credential{Username: "u", Password: "p"}); err != nil {
		t.Fatalf("WriteCredentials: %v", err)
	}
	if _, err := fs.ReadCredentials(target); err != nil {
		t.Fatalf("ReadCredentials: %v", err)
	}
}
