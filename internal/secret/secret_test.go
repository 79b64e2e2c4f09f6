package secret

import (
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/google/uuid"
)

func TestCredentialContributeHeader(t *testing.T) {
	cred := &Credential{Username: "alice", Password: "s3cret"}
	h := http.Header{}
	cred.ContributeHeader(h)

	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("alice:s3cret"))
	if got := h.Get("Authorization"); got != want {
		t.Errorf("Authorization = %q, want %q", got, want)
	}
}

func TestTokenContributeHeader(t *testing.T) {
	tests := []struct {
		name string
		typ  TokenType
		want string
	}{
		{"access token", TokenTypeAccess, "Bearer abc"},
		{"federated token", TokenTypeFederated, "Bearer abc"},
		{"personal token", TokenTypePersonal, "Bearer abc"},
		{"refresh token contributes nothing", TokenTypeRefresh, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := &Token{Value: "abc", Type: tt.typ}
			h := http.Header{}
			tok.ContributeHeader(h)
			if got := h.Get("Authorization"); got != tt.want {
				t.Errorf("Authorization = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewTokenRejectsBlankValue(t *testing.T) {
	if _, err := NewToken("   ", TokenTypeAccess); err == nil {
		t.Error("expected error for blank token value")
	}
	if _, err := NewToken("", TokenTypePersonal); err == nil {
		t.Error("expected error for empty token value")
	}
}

func TestNewCredentialRejectsBlankUsername(t *testing.T) {
	if _, err := NewCredential(" ", "pw"); err == nil {
		t.Error("expected error for blank username")
	}
}

func TestToCredential(t *testing.T) {
	tok := &Token{Value: "pat-value", Type: TokenTypePersonal}
	cred := tok.ToCredential()
	if cred.Username != PATUsername {
		t.Errorf("Username = %q, want %q", cred.Username, PATUsername)
	}
	if cred.Password != "pat-value" {
		t.Errorf("Password = %q, want %q", cred.Password, "pat-value")
	}
}

func TestParseTokenTypeRoundTrip(t *testing.T) {
	for _, typ := range []TokenType{TokenTypeAccess, TokenTypeRefresh, TokenTypeFederated, TokenTypePersonal} {
		parsed, err := ParseTokenType(typ.String())
		if err != nil {
			t.Fatalf("ParseTokenType(%q): %v", typ.String(), err)
		}
		if parsed != typ {
			t.Errorf("ParseTokenType(%q) = %v, want %v", typ.String(), parsed, typ)
		}
	}

	if _, err := ParseTokenType("bogus"); err == nil {
		t.Error("expected error for unknown type name")
	}
}

func TestNewTokenPair(t *testing.T) {
	pair, err := NewTokenPair("access-v", "refresh-v")
	if err != nil {
		t.Fatalf("NewTokenPair: %v", err)
	}
	if pair.AccessToken.Type != TokenTypeAccess || pair.AccessToken.Value != "access-v" {
		t.Errorf("AccessToken = %+v", pair.AccessToken)
	}
	if pair.RefreshToken == nil || pair.RefreshToken.Type != TokenTypeRefresh {
		t.Errorf("RefreshToken = %+v", pair.RefreshToken)
	}
	if pair.AccessToken.TargetIdentity != uuid.Nil {
		t.Errorf("fresh access token should have no target identity")
	}

	pair, err = NewTokenPair("access-v", "")
	if err != nil {
		t.Fatalf("NewTokenPair without refresh: %v", err)
	}
	if pair.RefreshToken != nil {
		t.Error("expected nil RefreshToken when exchange did not rotate it")
	}

	if _, err := NewTokenPair("", "r"); err == nil {
		t.Error("expected error for empty access value")
	}
}
