// config.go
// ---------
// ClientConfig carries everything the core client needs at construction
// time: the auth provider, the rate limiter strategy, retry and batching
// knobs, and an injectable clock. Limiter strategy selection is a caller
// decision; the core never inspects its environment.
package twitchbridge

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	defaultHelixBaseURL = "https://api.twitch.tv/helix/"
	defaultAuthBaseURL  = "https://id.twitch.tv/oauth2/"

	defaultMaxAttempts = 3
	defaultBaseBackoff = 500 * time.Millisecond
	defaultBatchDelay  = 10 * time.Millisecond
)

// ClientConfig configures a Client. AuthProvider is required; everything
// else has a usable default.
type ClientConfig struct {
	AuthProvider AuthProvider

	// RateLimiter is the strategy Helix calls are sent through. Defaults to
	// an AdaptiveRateLimiter; pass a BucketRateLimiter for constrained
	// environments where response headers cannot be inspected.
	RateLimiter RateLimiter

	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client

	// BaseURL and AuthBaseURL override the Helix and OAuth endpoints,
	// mainly for tests.
	BaseURL     string
	AuthBaseURL string

	// MaxAttempts bounds the retry loop for transient failures, including
	// the first try. Defaults to 3.
	MaxAttempts int

	// BaseBackoff is the first retry delay; it doubles per attempt.
	// Defaults to 500ms.
	BaseBackoff time.Duration

	// BatchDelay is how long single-ID lookups wait for more IDs to
	// coalesce before flushing. Defaults to 10ms.
	BatchDelay time.Duration

	// Logger receives debug-level request tracing; nil discards.
	Logger *slog.Logger

	// Clock is used for all delays and timers. Defaults to the real clock.
	Clock clockwork.Clock
}

func (cfg *ClientConfig) applyDefaults() {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.RateLimiter == nil {
		cfg.RateLimiter = NewAdaptiveRateLimiter(cfg.Clock)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultHelixBaseURL
	}
	if cfg.AuthBaseURL == "" {
		cfg.AuthBaseURL = defaultAuthBaseURL
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.BatchDelay == 0 {
		cfg.BatchDelay = defaultBatchDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(discardHandler{})
	}
}
