// auth_context.go
// ---------------
// Token-context resolution: decides, for each call descriptor, which token
// to fetch from the auth provider. Scoped calls demand a user context;
// moderator-style endpoints may let the ambient context user override the
// descriptor's user; everything else falls through to the provider's best
// available token. A token found expired before the send is refreshed once
// here, and marked so the 401 path never refreshes a second time.
package twitchbridge

import (
	"context"
	"fmt"
)

// resolvedToken carries the token chosen for one call plus bookkeeping for
// the single-shot refresh rule.
type resolvedToken struct {
	token     *AccessToken
	refreshed bool
}

// userID returns the resolved context user, or empty for app context or
// unauthenticated calls.
func (rt *resolvedToken) userID() string {
	if rt == nil || rt.token == nil {
		return ""
	}
	return rt.token.UserID
}

func (c *Client) resolveToken(ctx context.Context, req APIRequest) (*resolvedToken, error) {
	if req.Unauthenticated {
		return &resolvedToken{}, nil
	}

	tok, err := c.fetchToken(ctx, req)
	if err != nil {
		return nil, err
	}

	rt := &resolvedToken{token: tok}
	if tok != nil && tok.Expired(c.clock.Now()) && tok.UserID != "" {
		if refresher, ok := c.authProvider.(TokenRefresher); ok {
			fresh, err := refresher.RefreshAccessTokenForUser(ctx, tok.UserID)
			if err != nil {
				return nil, &InvalidTokenError{Err: err}
			}
			rt.token = fresh
			rt.refreshed = true
		}
	}
	return rt, nil
}

func (c *Client) fetchToken(ctx context.Context, req APIRequest) (*AccessToken, error) {
	switch {
	case req.ForceType == TokenTypeApp:
		source, ok := c.authProvider.(AppTokenSource)
		if !ok {
			return nil, &ConfigError{Reason: fmt.Sprintf("the endpoint %q requires an app access token, but the auth provider cannot supply one", req.URL)}
		}
		return source.GetAppAccessToken(ctx, false)

	case req.ForceType == TokenTypeUser || len(req.Scopes) > 0:
		userID := c.scopedUserID(req)
		if userID == "" {
			return nil, &ConfigError{Reason: fmt.Sprintf("the endpoint %q requires a user context, but no user could be resolved", req.URL)}
		}
		return c.authProvider.GetAccessTokenForUser(ctx, userID, req.Scopes)

	default:
		userID := c.contextUserID
		if userID == "" {
			userID = req.UserID
		}
		return c.authProvider.GetAnyAccessToken(ctx, userID)
	}
}

// scopedUserID resolves the effective user for a scoped call: the
// descriptor's user, unless the descriptor allows the ambient context user
// to take precedence.
func (c *Client) scopedUserID(req APIRequest) string {
	if req.CanOverrideScopedUserContext && c.contextUserID != "" {
		return c.contextUserID
	}
	return req.UserID
}

// refreshAfter401 performs the single refresh the 401 recovery path is
// allowed: the specific user's token when one is known, else a forced app
// token.
func (c *Client) refreshAfter401(ctx context.Context, rt *resolvedToken) (*AccessToken, error) {
	if userID := rt.userID(); userID != "" {
		refresher, ok := c.authProvider.(TokenRefresher)
		if !ok {
			return nil, fmt.Errorf("auth provider cannot refresh tokens for user %s", userID)
		}
		return refresher.RefreshAccessTokenForUser(ctx, userID)
	}
	source, ok := c.authProvider.(AppTokenSource)
	if !ok {
		return nil, fmt.Errorf("auth provider cannot supply a fresh app access token")
	}
	return source.GetAppAccessToken(ctx, true)
}
