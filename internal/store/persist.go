package store

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/majorcontext/gitcred/internal/secret"
)

// Persisted secret forms shared by the keyring and file backends. Token
// types are stored by name so the on-disk format survives reordering of
// the TokenType constants.

type storedCredential struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type storedToken struct {
	Value  string `json:"value"`
	Type   string `json:"type"`
	Target string `json:"target,omitempty"`
}

func encodeCredential(cred *secret.Credential) ([]byte, error) {
	if cred == nil {
		return nil, fmt.Errorf("credential is nil")
	}
	return json.Marshal(storedCredential{Username: cred.Username, Password: cred.Password})
}

func decodeCredential(data []byte) (*secret.Credential, error) {
	var sc storedCredential
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("unmarshaling credential: %w", err)
	}
	return &secret.Credential{Username: sc.Username, Password: sc.Password}, nil
}

func encodeToken(token *secret.Token) ([]byte, error) {
	if token == nil {
		return nil, fmt.Errorf("token is nil")
	}
	st := storedToken{Value: token.Value, Type: token.Type.String()}
	if token.TargetIdentity != uuid.Nil {
		st.Target = token.TargetIdentity.String()
	}
	return json.Marshal(st)
}

func decodeToken(data []byte) (*secret.Token, error) {
	var st storedToken
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshaling token: %w", err)
	}
	typ, err := secret.ParseTokenType(st.Type)
	if err != nil {
		return nil, err
	}
	tok := &secret.Token{Value: st.Value, Type: typ}
	if st.Target != "" {
		id, err := uuid.Parse(st.Target)
		if err != nil {
			return nil, fmt.Errorf("parsing token target identity: %w", err)
		}
		tok.TargetIdentity = id
	}
	return tok, nil
}
