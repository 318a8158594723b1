// Package auth provides AuthProvider implementations for the core client: a
// static provider for fixed tokens, an app-token provider running the OAuth
// client-credentials flow, and a refreshing provider that manages per-user
// refresh tokens. Token endpoints are driven through golang.org/x/oauth2.
package auth

import (
	"context"
	"fmt"

	twitchbridge "github.com/opengovern/twitch-bridge"
)

// twitchTokenURL is the Twitch OAuth token endpoint.
const twitchTokenURL = "https://id.twitch.tv/oauth2/token"

// StaticProvider serves one fixed token. It cannot refresh and cannot mint
// app tokens, so it suits short-lived tools holding a user token.
type StaticProvider struct {
	clientID string
	token    twitchbridge.AccessToken
}

// NewStaticProvider wraps a fixed access token.
func NewStaticProvider(clientID string, token twitchbridge.AccessToken) *StaticProvider {
	if token.TokenType == "" {
		if token.UserID != "" {
			token.TokenType = twitchbridge.TokenTypeUser
		} else {
			token.TokenType = twitchbridge.TokenTypeApp
		}
	}
	return &StaticProvider{clientID: clientID, token: token}
}

func (p *StaticProvider) ClientID() string {
	return p.clientID
}

func (p *StaticProvider) AuthorizationType() string {
	return "Bearer"
}

func (p *StaticProvider) GetAnyAccessToken(_ context.Context, userID string) (*twitchbridge.AccessToken, error) {
	if userID != "" && userID != p.token.UserID {
		return nil, fmt.Errorf("no token available for user %s", userID)
	}
	token := p.token
	return &token, nil
}

func (p *StaticProvider) GetAccessTokenForUser(_ context.Context, userID string, scopes []string) (*twitchbridge.AccessToken, error) {
	if p.token.UserID == "" || (userID != "" && userID != p.token.UserID) {
		return nil, fmt.Errorf("no user token available for user %s", userID)
	}
	if missing := missingScopes(p.token.Scopes, scopes); len(missing) > 0 {
		return nil, fmt.Errorf("token for user %s is missing scopes %v", userID, missing)
	}
	token := p.token
	return &token, nil
}

func missingScopes(have, want []string) []string {
	held := make(map[string]struct{}, len(have))
	for _, s := range have {
		held[s] = struct{}{}
	}
	var missing []string
	for _, s := range want {
		if _, ok := held[s]; !ok {
			missing = append(missing, s)
		}
	}
	return missing
}
