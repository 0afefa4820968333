package outbound

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mcpmux/pkg/logging"
	"mcpmux/pkg/oauth"
)

// FileTokenStore persists one oauth.Token per normalized resource URL as a
// JSON file under dir, named by a filesystem-safe hash of the URL. The
// directory is caller-supplied, so one process can isolate tokens per
// profile or run multiple proxy instances against disjoint token stores.
type FileTokenStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileTokenStore creates the token directory if needed and returns a
// store rooted there.
func NewFileTokenStore(dir string) (*FileTokenStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("oauth token store: create %q: %w", dir, err)
	}
	return &FileTokenStore{dir: dir}, nil
}

func (s *FileTokenStore) path(resource string) string {
	return filepath.Join(s.dir, tokenFileName(resource)+".json")
}

// Load returns the stored token for a resource, if one exists.
func (s *FileTokenStore) Load(resource string) (*oauth.Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(resource))
	if err != nil {
		return nil, false
	}
	var tok oauth.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, false
	}
	return &tok, true
}

// Save writes a resource's token to disk, replacing any prior one.
func (s *FileTokenStore) Save(resource string, tok *oauth.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("oauth token store: marshal token for %q: %w", resource, err)
	}
	return os.WriteFile(s.path(resource), data, 0o600)
}

// pendingAuthorization is the PKCE state carried between GetToken (which
// builds the authorization URL) and FinishAuth (which exchanges the
// resulting code), keyed by normalized resource URL.
type pendingAuthorization struct {
	verifier      string
	tokenEndpoint string
}

// PKCEAuthProvider implements AuthProvider against a real OAuth 2.1
// authorization server, using RFC 8414 discovery and PKCE per RFC 7636.
// Client ID, redirect URI, and scope are all caller-supplied so the proxy
// is not tied to one identity provider registration.
type PKCEAuthProvider struct {
	client      *oauth.Client
	store       *FileTokenStore
	clientID    string
	redirectURI string
	scope       string

	mu      sync.Mutex
	pending map[string]pendingAuthorization
}

// NewPKCEAuthProvider creates a PKCEAuthProvider backed by a shared
// oauth.Client (so metadata discovery is cached and deduplicated across
// servers) and a FileTokenStore.
func NewPKCEAuthProvider(client *oauth.Client, store *FileTokenStore, clientID, redirectURI, scope string) *PKCEAuthProvider {
	return &PKCEAuthProvider{
		client:      client,
		store:       store,
		clientID:    clientID,
		redirectURI: redirectURI,
		scope:       scope,
		pending:     make(map[string]pendingAuthorization),
	}
}

// GetToken returns a cached, unexpired token for resource, or starts a new
// PKCE authorization-code flow and returns the URL the caller must visit.
func (p *PKCEAuthProvider) GetToken(resource string) (token string, authURL string, needsAuth bool, err error) {
	norm := oauth.NormalizeServerURL(resource)

	if tok, ok := p.store.Load(norm); ok && !tok.IsExpired() {
		return tok.AccessToken, "", false, nil
	}

	ctx := context.Background()
	meta, err := p.client.DiscoverMetadata(ctx, norm)
	if err != nil {
		return "", "", false, fmt.Errorf("discover oauth metadata for %q: %w", resource, err)
	}

	pkce, err := oauth.GeneratePKCE()
	if err != nil {
		return "", "", false, err
	}
	state, err := oauth.GenerateState()
	if err != nil {
		return "", "", false, err
	}

	authURL, err = p.client.BuildAuthorizationURL(meta.AuthorizationEndpoint, p.clientID, p.redirectURI, state, p.scope, pkce)
	if err != nil {
		return "", "", false, err
	}

	p.mu.Lock()
	p.pending[norm] = pendingAuthorization{verifier: pkce.CodeVerifier, tokenEndpoint: meta.TokenEndpoint}
	p.mu.Unlock()

	logging.Info("outbound.auth", "authorization required for %q: %s", resource, authURL)
	return "", authURL, true, nil
}

// FinishAuth exchanges an authorization code for a token against the
// pending flow started by GetToken, and persists the result.
func (p *PKCEAuthProvider) FinishAuth(resource, code string) (token string, err error) {
	norm := oauth.NormalizeServerURL(resource)

	p.mu.Lock()
	pending, ok := p.pending[norm]
	delete(p.pending, norm)
	p.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("no pending authorization for %q", resource)
	}

	tok, err := p.client.ExchangeCode(context.Background(), pending.tokenEndpoint, code, p.redirectURI, p.clientID, pending.verifier)
	if err != nil {
		return "", fmt.Errorf("exchange authorization code for %q: %w", resource, err)
	}
	tok.SetExpiresAtFromExpiresIn()

	if err := p.store.Save(norm, tok); err != nil {
		logging.Warn("outbound.auth", "persisting token for %q: %v", resource, err)
	}
	return tok.AccessToken, nil
}

func tokenFileName(resource string) string {
	h := fnvHash32(resource)
	return fmt.Sprintf("%08x", h)
}

func fnvHash32(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
