// request_response.go
// -------------------
// Defines the normalized request and response types that flow through the
// dispatch pipeline. An APIRequest is an immutable description of one logical
// Twitch API call: the caller builds it, hands it to the client, and never
// mutates it afterwards. An APIResponse is the raw result of one HTTP
// exchange before any endpoint-specific decoding.
package twitchbridge

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// CallType selects which API surface a request targets. Helix calls are
// rate-limited; auth and custom calls bypass the limiter.
type CallType string

const (
	CallTypeHelix  CallType = "helix"
	CallTypeAuth   CallType = "auth"
	CallTypeCustom CallType = "custom"
)

// TokenType distinguishes app access tokens from user access tokens.
type TokenType string

const (
	TokenTypeApp  TokenType = "app"
	TokenTypeUser TokenType = "user"
)

// APIRequest describes one logical API call. The zero value of Type means
// CallTypeHelix and the zero value of Method means GET.
type APIRequest struct {
	Type   CallType
	URL    string // resource path for helix/auth calls, absolute URL for custom calls
	Method string
	Query  url.Values
	Body   any // marshaled to JSON when non-nil

	// Scopes lists the OAuth scopes the endpoint requires. A non-empty list
	// makes user context mandatory.
	Scopes []string

	// ForceType pins the token type regardless of ambient context.
	ForceType TokenType

	// UserID associates the call with a user for token resolution and rate
	// limit partitioning.
	UserID string

	// CanOverrideScopedUserContext lets an ambient context user take
	// precedence over UserID for scoped calls (e.g. moderator endpoints
	// acting as the broadcaster).
	CanOverrideScopedUserContext bool

	// Unauthenticated skips token resolution entirely; only the Client-Id
	// header is sent.
	Unauthenticated bool

	// RawResponse marks endpoints that do not answer with JSON (e.g. the
	// iCal rendering of a channel's schedule).
	RawResponse bool
}

func (r APIRequest) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

func (r APIRequest) callType() CallType {
	if r.Type == "" {
		return CallTypeHelix
	}
	return r.Type
}

// APIResponse is the raw outcome of one HTTP exchange.
type APIResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the response body into v.
func (r *APIResponse) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// AccessToken is a token resolved from the auth provider for one call. The
// core never caches these; the provider owns caching and refresh.
type AccessToken struct {
	Value     string
	TokenType TokenType
	UserID    string // empty for app tokens
	Scopes    []string
	ExpiresAt time.Time // zero means unknown or non-expiring
}

// Expired reports whether the token's known expiry has passed.
func (t *AccessToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// RateLimitInfo is a snapshot of one partition's server-reported limit state,
// exposed for diagnostics by the adaptive limiter.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// RequestEvent is published to registered observers after each successful
// dispatch.
type RequestEvent struct {
	Request    APIRequest
	StatusCode int

	// UserID is the resolved context user, or empty for app-context calls.
	UserID string
}
