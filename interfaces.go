// interfaces.go
// -------------
// Contracts between the core pipeline and its collaborators: the auth
// provider that owns tokens, and the rate limiter strategy the dispatcher
// sends Helix calls through. Optional provider capabilities (app tokens,
// refresh, intents) are modeled as separate interfaces checked by assertion,
// so a minimal provider stays minimal.
package twitchbridge

import "context"

// AuthProvider supplies access tokens for API calls. The core never persists
// tokens itself; caching and refresh policy belong to the provider.
type AuthProvider interface {
	// ClientID returns the application's client ID, sent with every call.
	ClientID() string

	// AuthorizationType returns the Authorization header scheme, normally
	// "Bearer".
	AuthorizationType() string

	// GetAnyAccessToken returns the best available token for the given user,
	// or a context-free token (an app token, if the provider supports one)
	// when userID is empty.
	GetAnyAccessToken(ctx context.Context, userID string) (*AccessToken, error)

	// GetAccessTokenForUser returns a token for the given user carrying at
	// least the given scopes.
	GetAccessTokenForUser(ctx context.Context, userID string, scopes []string) (*AccessToken, error)
}

// AppTokenSource is implemented by providers able to obtain app access
// tokens. Calls with ForceType app require this capability.
type AppTokenSource interface {
	GetAppAccessToken(ctx context.Context, forceRefresh bool) (*AccessToken, error)
}

// TokenRefresher is implemented by providers able to refresh a user's token.
// The dispatcher's single-shot 401 recovery uses it when available.
type TokenRefresher interface {
	RefreshAccessTokenForUser(ctx context.Context, userID string) (*AccessToken, error)
}

// IntentTokenSource is implemented by providers that map named intents (e.g.
// "chat") to user tokens.
type IntentTokenSource interface {
	GetAccessTokenForIntent(ctx context.Context, intent string) (*AccessToken, error)
}

// SendFunc performs one HTTP exchange.
type SendFunc func(ctx context.Context) (*APIResponse, error)

// RateLimiter throttles request volume per partition. Implementations must
// never reject a request purely due to rate limiting: they queue until the
// request can be sent or the context is canceled. Requests for different
// partitions must not block one another.
type RateLimiter interface {
	Do(ctx context.Context, partition string, send SendFunc) (*APIResponse, error)
}

// RateLimitReporter is implemented by limiter strategies whose state can be
// introspected for diagnostics.
type RateLimitReporter interface {
	Stats(partition string) (RateLimitInfo, bool)
}
