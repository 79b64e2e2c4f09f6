package vsts

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/majorcontext/gitcred/internal/azure"
	"github.com/majorcontext/gitcred/internal/log"
	"github.com/majorcontext/gitcred/internal/secret"
	"github.com/majorcontext/gitcred/internal/store"
)

// authorityClient is the protocol surface the broker drives. Satisfied by
// *Authority; narrowed so tests can fake the network.
type authorityClient interface {
	GeneratePersonalAccessToken(ctx context.Context, target *url.URL, accessToken *secret.Token, scope secret.Scope, requireCompact bool) (*secret.Token, error)
	ValidateCredentials(ctx context.Context, target *url.URL, cred *secret.Credential) (bool, error)
	ValidateAccessToken(ctx context.Context, target *url.URL, token *secret.Token) (bool, error)
}

// tokenExchanger exchanges a refresh token for a fresh token pair.
// Satisfied by *azure.Authority.
type tokenExchanger interface {
	AcquireTokenByRefreshToken(ctx context.Context, refreshToken *secret.Token) (*secret.TokenPair, error)
}

// Broker orchestrates credential lookups, refresh-token exchange, and PAT
// generation for one tenant. Concurrent calls for the same target may race
// on store writes; callers needing isolation must serialize externally.
type Broker struct {
	ClientID   string
	Resource   string
	TokenScope secret.Scope

	// TenantID scopes the broker to one directory tenant. The zero UUID is
	// the consumer (MSA) variant. Updated by RefreshCredentials when an
	// exchange reveals the access token's real target identity.
	TenantID uuid.UUID

	patStore     store.CredentialStore
	refreshStore store.TokenStore
	ideCache     store.TokenStore
	authority    authorityClient
	exchanger    tokenExchanger
}

// BrokerOption adjusts broker construction.
type BrokerOption func(*Broker)

// WithAuthority overrides the protocol client. For testing.
func WithAuthority(a authorityClient) BrokerOption {
	return func(b *Broker) { b.authority = a }
}

// WithExchanger overrides the refresh-token exchanger. For testing.
func WithExchanger(e tokenExchanger) BrokerOption {
	return func(b *Broker) { b.exchanger = e }
}

// WithIDETokenCache overrides the IDE federated-token cache.
func WithIDETokenCache(s store.TokenStore) BrokerOption {
	return func(b *Broker) { b.ideCache = s }
}

// WithApplication overrides the Azure application identity used for
// refresh-token exchange. Empty values keep the defaults.
func WithApplication(clientID, resource string) BrokerOption {
	return func(b *Broker) {
		if clientID != "" {
			b.ClientID = clientID
		}
		if resource != "" {
			b.Resource = resource
		}
	}
}

// NewBroker creates a broker for the given tenant. A nil refresh store
// falls back to an in-process cache, as does the IDE token cache; an empty
// scope falls back to profile read.
func NewBroker(tenant uuid.UUID, scope secret.Scope, patStore store.CredentialStore, refreshStore store.TokenStore, opts ...BrokerOption) *Broker {
	if scope == "" {
		scope = secret.ScopeProfileRead
	}
	if refreshStore == nil {
		refreshStore = store.NewSecretCache(store.NamespaceRefresh)
	}
	b := &Broker{
		ClientID:     azure.DefaultClientID,
		Resource:     azure.DefaultResource,
		TokenScope:   scope,
		TenantID:     tenant,
		patStore:     patStore,
		refreshStore: refreshStore,
		ideCache:     store.NewSecretCache(store.NamespaceIDECache),
		authority:    NewAuthority(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.exchanger == nil {
		b.exchanger = azure.NewAuthority(tenant, b.ClientID, b.Resource)
	}
	return b
}

// GetCredentials reads the PAT store. No network calls; nil without error
// when nothing is stored.
func (b *Broker) GetCredentials(target *url.URL) (*secret.Credential, error) {
	if err := store.ValidateTargetURI(target); err != nil {
		return nil, err
	}
	cred, err := b.patStore.ReadCredentials(target)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading stored credentials: %w", err)
	}
	return cred, nil
}

// DeleteCredentials removes the stored secret for the target. The PAT
// store takes priority; the refresh store is only consulted when the PAT
// store had nothing. At most one store is mutated.
func (b *Broker) DeleteCredentials(target *url.URL) error {
	if err := store.ValidateTargetURI(target); err != nil {
		return err
	}
	_, err := b.patStore.ReadCredentials(target)
	if err == nil {
		return b.patStore.DeleteCredentials(target)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("reading stored credentials: %w", err)
	}
	_, err = b.refreshStore.ReadToken(target)
	if err == nil {
		return b.refreshStore.DeleteToken(target)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("reading stored refresh token: %w", err)
	}
	return nil
}

// RefreshCredentials mints and stores a new PAT for the target. A stored
// refresh token is exchanged first; if the exchange succeeds the broker's
// tenant follows the access token's target identity and the PAT attempt's
// result is final, with no further fallback. The IDE federated cache is
// consulted only when no stored refresh token existed at all. Every failure
// along the way is logged and reported as false; this method never returns
// an error to its caller. An invalid target is a programming error and
// panics.
func (b *Broker) RefreshCredentials(ctx context.Context, target *url.URL, requireCompact bool) bool {
	if err := store.ValidateTargetURI(target); err != nil {
		panic(fmt.Sprintf("vsts: RefreshCredentials: %v", err))
	}

	refreshToken, err := b.refreshStore.ReadToken(target)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Warn("reading refresh token store failed", "target", target.Host, "error", err)
		return false
	}

	if refreshToken != nil {
		pair, err := b.exchanger.AcquireTokenByRefreshToken(ctx, refreshToken)
		if err != nil {
			log.Warn("refresh token exchange failed", "target", target.Host, "error", err)
			return false
		}
		b.TenantID = pair.AccessToken.TargetIdentity
		ok, err := b.generatePersonalAccessToken(ctx, target, pair.AccessToken, requireCompact)
		if err != nil {
			log.Warn("personal access token generation failed", "target", target.Host, "error", err)
			return false
		}
		return ok
	}

	federatedToken, err := b.ideCache.ReadToken(target)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn("reading IDE token cache failed", "target", target.Host, "error", err)
		}
		return false
	}
	ok, err := b.generatePersonalAccessToken(ctx, target, federatedToken, requireCompact)
	if err != nil {
		log.Warn("personal access token generation failed", "target", target.Host, "error", err)
		return false
	}
	return ok
}

// ValidateCredentials checks a stored or supplied credential against the
// target. Transport failures propagate; they are not the same as invalid.
func (b *Broker) ValidateCredentials(ctx context.Context, target *url.URL, cred *secret.Credential) (bool, error) {
	if err := store.ValidateTargetURI(target); err != nil {
		return false, err
	}
	if cred == nil {
		return false, fmt.Errorf("credential is nil")
	}
	return b.authority.ValidateCredentials(ctx, target, cred)
}

// ValidateAccessToken checks an access or federated token against the
// target with the same contract as ValidateCredentials.
func (b *Broker) ValidateAccessToken(ctx context.Context, target *url.URL, token *secret.Token) (bool, error) {
	if err := store.ValidateTargetURI(target); err != nil {
		return false, err
	}
	if token == nil {
		return false, fmt.Errorf("token is nil")
	}
	return b.authority.ValidateAccessToken(ctx, target, token)
}

// StoreRefreshToken persists a refresh token for later exchange. Used
// after interactive sign-in.
func (b *Broker) StoreRefreshToken(target *url.URL, token *secret.Token) error {
	if err := store.ValidateTargetURI(target); err != nil {
		return err
	}
	if token == nil || token.Value == "" {
		return fmt.Errorf("refresh token is empty")
	}
	return b.refreshStore.WriteToken(target, token)
}

// generatePersonalAccessToken mints a PAT and persists it as a credential.
// The PAT store is written only on successful issuance.
func (b *Broker) generatePersonalAccessToken(ctx context.Context, target *url.URL, accessToken *secret.Token, requireCompact bool) (bool, error) {
	pat, err := b.authority.GeneratePersonalAccessToken(ctx, target, accessToken, b.TokenScope, requireCompact)
	if err != nil {
		return false, err
	}
	if pat == nil {
		return false, nil
	}
	if err := b.patStore.WriteCredentials(target, pat.ToCredential()); err != nil {
		return false, fmt.Errorf("storing personal access token: %w", err)
	}
	log.Info("personal access token stored", "target", target.Host)
	return true, nil
}

// GetAuthentication detects the target's authority and, for managed hosts,
// builds a broker bound to the detected tenant. A nil broker with a nil
// error means the host is not part of the managed platform and no
// authentication applies.
func (a *Authority) GetAuthentication(ctx context.Context, target *url.URL, scope secret.Scope, patStore store.CredentialStore, refreshStore store.TokenStore, opts ...BrokerOption) (*Broker, error) {
	managed, tenant, err := a.DetectAuthority(ctx, target)
	if err != nil {
		return nil, err
	}
	if !managed {
		return nil, nil
	}
	opts = append([]BrokerOption{WithAuthority(a)}, opts...)
	return NewBroker(tenant, scope, patStore, refreshStore, opts...), nil
}

// GetAuthentication detects and constructs using the default client.
func GetAuthentication(ctx context.Context, target *url.URL, scope secret.Scope, patStore store.CredentialStore, refreshStore store.TokenStore, opts ...BrokerOption) (*Broker, error) {
	return NewAuthority().GetAuthentication(ctx, target, scope, patStore, refreshStore, opts...)
}
