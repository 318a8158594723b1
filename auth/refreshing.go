package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	twitchbridge "github.com/opengovern/twitch-bridge"
)

// RefreshingProvider manages per-user refresh tokens, exchanging them for
// fresh access tokens on demand. It also mints app tokens from the same
// application credentials, so it satisfies every capability the dispatch
// pipeline can ask for.
type RefreshingProvider struct {
	clientID string
	conf     *oauth2.Config
	appConf  *clientcredentials.Config

	mu      sync.Mutex
	users   map[string]*userTokens
	intents map[string]string // intent -> user ID
	app     *twitchbridge.AccessToken
}

type userTokens struct {
	refreshToken string
	scopes       []string
	current      *twitchbridge.AccessToken
}

// NewRefreshingProvider builds a provider for the given application
// credentials. tokenURL overrides the Twitch token endpoint, mainly for
// tests; pass empty for the default.
func NewRefreshingProvider(clientID, clientSecret, tokenURL string) *RefreshingProvider {
	if tokenURL == "" {
		tokenURL = twitchTokenURL
	}
	return &RefreshingProvider{
		clientID: clientID,
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
		},
		appConf: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
		},
		users:   make(map[string]*userTokens),
		intents: make(map[string]string),
	}
}

// AddUser registers a user's refresh token and the scopes it was granted.
// Optional intents name the user for GetAccessTokenForIntent lookups.
func (p *RefreshingProvider) AddUser(userID, refreshToken string, scopes []string, intents ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[userID] = &userTokens{refreshToken: refreshToken, scopes: scopes}
	for _, intent := range intents {
		p.intents[intent] = userID
	}
}

// RemoveUser forgets a user's tokens and intents.
func (p *RefreshingProvider) RemoveUser(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.users, userID)
	for intent, id := range p.intents {
		if id == userID {
			delete(p.intents, intent)
		}
	}
}

func (p *RefreshingProvider) ClientID() string {
	return p.clientID
}

func (p *RefreshingProvider) AuthorizationType() string {
	return "Bearer"
}

func (p *RefreshingProvider) GetAnyAccessToken(ctx context.Context, userID string) (*twitchbridge.AccessToken, error) {
	if userID == "" {
		return p.GetAppAccessToken(ctx, false)
	}
	return p.GetAccessTokenForUser(ctx, userID, nil)
}

func (p *RefreshingProvider) GetAccessTokenForUser(ctx context.Context, userID string, scopes []string) (*twitchbridge.AccessToken, error) {
	p.mu.Lock()
	u, ok := p.users[userID]
	if !ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("user %s is not registered with this provider", userID)
	}
	if missing := missingScopes(u.scopes, scopes); len(missing) > 0 {
		p.mu.Unlock()
		return nil, fmt.Errorf("user %s was not granted scopes %v", userID, missing)
	}
	if u.current != nil {
		token := *u.current
		p.mu.Unlock()
		return &token, nil
	}
	p.mu.Unlock()
	return p.RefreshAccessTokenForUser(ctx, userID)
}

// RefreshAccessTokenForUser exchanges the user's refresh token for a fresh
// access token, storing the rotated refresh token Twitch returns.
func (p *RefreshingProvider) RefreshAccessTokenForUser(ctx context.Context, userID string) (*twitchbridge.AccessToken, error) {
	p.mu.Lock()
	u, ok := p.users[userID]
	if !ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("user %s is not registered with this provider", userID)
	}
	refreshToken := u.refreshToken
	scopes := u.scopes
	p.mu.Unlock()

	tok, err := p.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing token for user %s: %w", userID, err)
	}

	token := &twitchbridge.AccessToken{
		Value:     tok.AccessToken,
		TokenType: twitchbridge.TokenTypeUser,
		UserID:    userID,
		Scopes:    scopes,
		ExpiresAt: tok.Expiry,
	}

	p.mu.Lock()
	if u, ok := p.users[userID]; ok {
		u.current = token
		if tok.RefreshToken != "" {
			u.refreshToken = tok.RefreshToken
		}
	}
	p.mu.Unlock()

	copied := *token
	return &copied, nil
}

// GetAppAccessToken mints an app token via client credentials, caching it
// until expiry.
func (p *RefreshingProvider) GetAppAccessToken(ctx context.Context, forceRefresh bool) (*twitchbridge.AccessToken, error) {
	p.mu.Lock()
	if !forceRefresh && p.app != nil && !p.app.Expired(time.Now()) {
		token := *p.app
		p.mu.Unlock()
		return &token, nil
	}
	p.mu.Unlock()

	tok, err := p.appConf.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching app access token: %w", err)
	}
	token := &twitchbridge.AccessToken{
		Value:     tok.AccessToken,
		TokenType: twitchbridge.TokenTypeApp,
		ExpiresAt: tok.Expiry,
	}
	p.mu.Lock()
	p.app = token
	p.mu.Unlock()
	copied := *token
	return &copied, nil
}

// GetAccessTokenForIntent resolves the user registered under the given
// intent and returns their token.
func (p *RefreshingProvider) GetAccessTokenForIntent(ctx context.Context, intent string) (*twitchbridge.AccessToken, error) {
	p.mu.Lock()
	userID, ok := p.intents[intent]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no user registered for intent %q", intent)
	}
	return p.GetAccessTokenForUser(ctx, userID, nil)
}
