// Package extension signs and verifies the JWTs a Twitch Extension Backend
// Service exchanges with Twitch. Tokens are HMAC-SHA256 signed with the
// base64-decoded extension secret from the developer console.
package extension

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Claims is the claim set Twitch expects in extension JWTs.
type Claims struct {
	// UserID identifies the acting user; for server-issued tokens this is
	// the extension owner's user ID.
	UserID string `json:"user_id"`

	// Role is the caller's role; server-issued tokens use "external".
	Role string `json:"role"`

	// ChannelID scopes the token to one channel, when set.
	ChannelID string `json:"channel_id,omitempty"`

	// PubsubPerms lists the pubsub targets the token may send to.
	PubsubPerms *PubsubPerms `json:"pubsub_perms,omitempty"`

	jwt.RegisteredClaims
}

// PubsubPerms enumerates pubsub send/listen targets, e.g. "broadcast".
type PubsubPerms struct {
	Send   []string `json:"send,omitempty"`
	Listen []string `json:"listen,omitempty"`
}

// Signer mints and verifies extension JWTs for one extension secret.
type Signer struct {
	key []byte
}

// NewSigner decodes the base64-encoded extension secret into a signing key.
func NewSigner(secret string) (*Signer, error) {
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("decoding extension secret: %w", err)
	}
	return &Signer{key: key}, nil
}

// Sign issues a token for the extension owner acting as an external service,
// valid for the given duration. channelID may be empty for tokens that are
// not channel-scoped.
func (s *Signer) Sign(ownerUserID, channelID string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID:    ownerUserID,
		Role:      "external",
		ChannelID: channelID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return s.SignClaims(claims)
}

// SignBroadcast issues a token permitted to send pubsub broadcast messages
// to the given channel.
func (s *Signer) SignBroadcast(ownerUserID, channelID string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID:      ownerUserID,
		Role:        "external",
		ChannelID:   channelID,
		PubsubPerms: &PubsubPerms{Send: []string{"broadcast"}},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return s.SignClaims(claims)
}

// SignClaims signs an arbitrary claim set with the extension secret.
func (s *Signer) SignClaims(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signing extension token: %w", err)
	}
	return signed, nil
}

// Verify parses a token string, checking the signature and expiry, and
// returns its claims. Tokens signed with any method other than HMAC-SHA256
// are rejected.
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing extension token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("extension token is not valid")
	}
	return &claims, nil
}
