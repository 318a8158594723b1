// Package mock provides canned AuthProvider implementations for tests. The
// base Provider deliberately satisfies only the minimal interface, so code
// paths that probe for refresh or app-token capabilities can be exercised
// against a provider that lacks them.
package mock

import (
	"context"
	"fmt"
	"sync"

	twitchbridge "github.com/opengovern/twitch-bridge"
)

// Provider serves tokens from an in-memory table keyed by user ID; the empty
// key holds the token returned for app-level context. It records the last
// lookup so tests can assert which user context a call resolved to.
type Provider struct {
	ID string

	mu     sync.Mutex
	tokens map[string]*twitchbridge.AccessToken

	// LastUserID and LastScopes record the most recent token lookup.
	LastUserID string
	LastScopes []string
}

func NewProvider(clientID string) *Provider {
	return &Provider{
		ID:     clientID,
		tokens: make(map[string]*twitchbridge.AccessToken),
	}
}

// SetToken installs the token returned for the given user ID; use the empty
// ID for the app-level token.
func (p *Provider) SetToken(userID string, token *twitchbridge.AccessToken) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens[userID] = token
}

func (p *Provider) ClientID() string {
	return p.ID
}

func (p *Provider) AuthorizationType() string {
	return "Bearer"
}

func (p *Provider) GetAnyAccessToken(_ context.Context, userID string) (*twitchbridge.AccessToken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LastUserID = userID
	p.LastScopes = nil
	tok, ok := p.tokens[userID]
	if !ok {
		return nil, fmt.Errorf("mock provider holds no token for user %q", userID)
	}
	copied := *tok
	return &copied, nil
}

func (p *Provider) GetAccessTokenForUser(_ context.Context, userID string, scopes []string) (*twitchbridge.AccessToken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LastUserID = userID
	p.LastScopes = scopes
	tok, ok := p.tokens[userID]
	if !ok {
		return nil, fmt.Errorf("mock provider holds no token for user %q", userID)
	}
	copied := *tok
	return &copied, nil
}

// RefreshingProvider extends Provider with refresh and app-token
// capabilities, delegating to the configurable RefreshFunc and AppFunc and
// counting how often each is invoked.
type RefreshingProvider struct {
	*Provider

	RefreshFunc func(userID string) (*twitchbridge.AccessToken, error)
	AppFunc     func(forceRefresh bool) (*twitchbridge.AccessToken, error)

	callMu       sync.Mutex
	refreshCalls int
	appCalls     int
}

func NewRefreshingProvider(clientID string) *RefreshingProvider {
	return &RefreshingProvider{Provider: NewProvider(clientID)}
}

func (p *RefreshingProvider) RefreshAccessTokenForUser(_ context.Context, userID string) (*twitchbridge.AccessToken, error) {
	p.callMu.Lock()
	p.refreshCalls++
	p.callMu.Unlock()
	if p.RefreshFunc == nil {
		return nil, fmt.Errorf("mock provider has no refresh behavior configured")
	}
	return p.RefreshFunc(userID)
}

func (p *RefreshingProvider) GetAppAccessToken(_ context.Context, forceRefresh bool) (*twitchbridge.AccessToken, error) {
	p.callMu.Lock()
	p.appCalls++
	p.callMu.Unlock()
	if p.AppFunc == nil {
		return nil, fmt.Errorf("mock provider has no app token behavior configured")
	}
	return p.AppFunc(forceRefresh)
}

// RefreshCalls reports how many times RefreshAccessTokenForUser ran.
func (p *RefreshingProvider) RefreshCalls() int {
	p.callMu.Lock()
	defer p.callMu.Unlock()
	return p.refreshCalls
}

// AppCalls reports how many times GetAppAccessToken ran.
func (p *RefreshingProvider) AppCalls() int {
	p.callMu.Lock()
	defer p.callMu.Unlock()
	return p.appCalls
}
