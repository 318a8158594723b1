package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	twitchbridge "github.com/opengovern/twitch-bridge"
)

// AppTokenProvider obtains app access tokens via the OAuth client-credentials
// flow and caches one until it expires. It serves no user tokens.
type AppTokenProvider struct {
	clientID string
	conf     *clientcredentials.Config

	mu      sync.Mutex
	current *twitchbridge.AccessToken
}

// NewAppTokenProvider builds a provider minting app tokens for the given
// application credentials. tokenURL overrides the Twitch token endpoint,
// mainly for tests; pass empty for the default.
func NewAppTokenProvider(clientID, clientSecret, tokenURL string) *AppTokenProvider {
	if tokenURL == "" {
		tokenURL = twitchTokenURL
	}
	return &AppTokenProvider{
		clientID: clientID,
		conf: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
		},
	}
}

func (p *AppTokenProvider) ClientID() string {
	return p.clientID
}

func (p *AppTokenProvider) AuthorizationType() string {
	return "Bearer"
}

// GetAppAccessToken returns the cached app token, fetching a new one when
// none is held, the held one expired, or forceRefresh is set.
func (p *AppTokenProvider) GetAppAccessToken(ctx context.Context, forceRefresh bool) (*twitchbridge.AccessToken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !forceRefresh && p.current != nil && !p.current.Expired(time.Now()) {
		token := *p.current
		return &token, nil
	}

	tok, err := p.conf.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching app access token: %w", err)
	}
	p.current = &twitchbridge.AccessToken{
		Value:     tok.AccessToken,
		TokenType: twitchbridge.TokenTypeApp,
		ExpiresAt: tok.Expiry,
	}
	token := *p.current
	return &token, nil
}

func (p *AppTokenProvider) GetAnyAccessToken(ctx context.Context, userID string) (*twitchbridge.AccessToken, error) {
	if userID != "" {
		return nil, fmt.Errorf("app token provider holds no token for user %s", userID)
	}
	return p.GetAppAccessToken(ctx, false)
}

func (p *AppTokenProvider) GetAccessTokenForUser(_ context.Context, userID string, _ []string) (*twitchbridge.AccessToken, error) {
	return nil, fmt.Errorf("app token provider cannot serve user tokens (requested user %s)", userID)
}
