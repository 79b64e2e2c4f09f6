// Package secret defines the credential and token values exchanged with
// Visual Studio Team Services: basic-auth credentials, Azure Directory
// tokens, and the token pairs produced by a refresh exchange.
package secret

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// PATUsername is the username written alongside a personal access token.
// VSTS ignores the username when a PAT is presented as the password.
const PATUsername = "PersonalAccessToken"

// Authorizer contributes an Authorization header to an outbound request.
// Credential contributes basic auth; Token contributes a bearer token.
type Authorizer interface {
	ContributeHeader(h http.Header)
}

// TokenType classifies a Token.
type TokenType int

const (
	TokenTypeUnknown TokenType = iota
	// TokenTypeAccess is an Azure Directory access token.
	TokenTypeAccess
	// TokenTypeRefresh is an Azure Directory refresh token. Refresh tokens
	// cannot grant access and never contribute an authorization header.
	TokenTypeRefresh
	// TokenTypeFederated is a federated (MSA) authentication token.
	TokenTypeFederated
	// TokenTypePersonal is a VSTS personal access token.
	TokenTypePersonal
)

var tokenTypeNames = map[TokenType]string{
	TokenTypeUnknown:   "unknown",
	TokenTypeAccess:    "access",
	TokenTypeRefresh:   "refresh",
	TokenTypeFederated: "federated",
	TokenTypePersonal:  "personal",
}

func (t TokenType) String() string {
	if name, ok := tokenTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tokentype(%d)", int(t))
}

// ParseTokenType converts a stored type name back to a TokenType.
func ParseTokenType(name string) (TokenType, error) {
	for t, n := range tokenTypeNames {
		if n == name {
			return t, nil
		}
	}
	return TokenTypeUnknown, fmt.Errorf("unknown token type %q", name)
}

// Credential is a username and password pair.
type Credential struct {
	Username string
	Password string
}

// NewCredential returns a credential. The username must be non-empty; an
// empty password is allowed (some servers accept token-as-username).
func NewCredential(username, password string) (*Credential, error) {
	if strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("credential username is empty")
	}
	return &Credential{Username: username, Password: password}, nil
}

// ContributeHeader adds a basic authorization header for the credential.
func (c *Credential) ContributeHeader(h http.Header) {
	raw := c.Username + ":" + c.Password
	h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(raw)))
}

// Token is a typed secret. TargetIdentity, when set, scopes the token to a
// single service instance; it must be populated before an access or
// federated token is used to request a personal access token.
type Token struct {
	Value          string
	Type           TokenType
	TargetIdentity uuid.UUID
}

// NewToken returns a token of the given type. The value must be non-blank.
func NewToken(value string, t TokenType) (*Token, error) {
	if strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("%s token value is empty", t)
	}
	return &Token{Value: value, Type: t}, nil
}

// ContributeHeader adds a bearer authorization header for the token.
// Refresh tokens cannot grant access and contribute nothing.
func (t *Token) ContributeHeader(h http.Header) {
	if t.Type == TokenTypeRefresh {
		return
	}
	h.Set("Authorization", "Bearer "+t.Value)
}

// ToCredential converts a personal access token to the credential form git
// submits over basic auth.
func (t *Token) ToCredential() *Credential {
	return &Credential{Username: PATUsername, Password: t.Value}
}

// TokenPair is the access and refresh token issued together by a
// refresh-token exchange.
type TokenPair struct {
	AccessToken  *Token
	RefreshToken *Token
}

// NewTokenPair wraps raw exchange results. An empty refresh value leaves
// RefreshToken nil (the authority did not rotate it).
func NewTokenPair(accessValue, refreshValue string) (*TokenPair, error) {
	access, err := NewToken(accessValue, TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	pair := &TokenPair{AccessToken: access}
	if refreshValue != "" {
		pair.RefreshToken = &Token{Value: refreshValue, Type: TokenTypeRefresh}
	}
	return pair, nil
}
