// client.go
// ---------
// The Client is the entry point of the SDK: it ties the auth provider, rate
// limiter, and retry policy together into the dispatch pipeline that every
// endpoint wrapper calls. WithContextUser derives a view of the client that
// carries an ambient context user for token resolution; both views share the
// same limiter, HTTP client, and observers.
package twitchbridge

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type Client struct {
	authProvider AuthProvider
	limiter      RateLimiter
	httpClient   *http.Client
	baseURL      string
	authBaseURL  string
	maxAttempts  int
	baseBackoff  time.Duration
	batchDelay   time.Duration
	logger       *slog.Logger
	clock        clockwork.Clock

	// contextUserID is the ambient context user; empty means app-level
	// context. Set only via WithContextUser.
	contextUserID string

	// obs is shared across all WithContextUser views.
	obs *observers
}

type observers struct {
	mu        sync.Mutex
	onRequest []func(RequestEvent)
}

// NewClient builds a Client. It fails with a ConfigError when no auth
// provider is supplied.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.AuthProvider == nil {
		return nil, &ConfigError{Reason: "an auth provider is required"}
	}
	cfg.applyDefaults()
	return &Client{
		authProvider: cfg.AuthProvider,
		limiter:      cfg.RateLimiter,
		httpClient:   cfg.HTTPClient,
		baseURL:      cfg.BaseURL,
		authBaseURL:  cfg.AuthBaseURL,
		maxAttempts:  cfg.MaxAttempts,
		baseBackoff:  cfg.BaseBackoff,
		batchDelay:   cfg.BatchDelay,
		logger:       cfg.Logger,
		clock:        cfg.Clock,
		obs:          &observers{},
	}, nil
}

// WithContextUser returns a view of the client whose calls resolve tokens in
// the given user's context. An empty userID returns a view with app-level
// context. The view shares the limiter, HTTP client, and observers with the
// receiver.
func (c *Client) WithContextUser(userID string) *Client {
	view := *c
	view.contextUserID = userID
	return &view
}

// ContextUserID returns the ambient context user, or empty for app-level
// context.
func (c *Client) ContextUserID() string {
	return c.contextUserID
}

// AuthProvider returns the provider the client resolves tokens from.
func (c *Client) AuthProvider() AuthProvider {
	return c.authProvider
}

// BatchDelay returns the configured coalescing window for batched lookups.
func (c *Client) BatchDelay() time.Duration {
	return c.batchDelay
}

// Clock returns the client's time source.
func (c *Client) Clock() clockwork.Clock {
	return c.clock
}

// RateLimitStats reports the adaptive limiter's last known state for a user
// partition (empty userID means the app-wide partition). The second return
// is false when the configured strategy does not expose statistics or the
// partition has not been seen yet.
func (c *Client) RateLimitStats(userID string) (RateLimitInfo, bool) {
	reporter, ok := c.limiter.(RateLimitReporter)
	if !ok {
		return RateLimitInfo{}, false
	}
	return reporter.Stats(userID)
}

// OnRequest registers an observer invoked after every successful dispatch.
// Observers are shared across WithContextUser views.
func (c *Client) OnRequest(fn func(RequestEvent)) {
	c.obs.mu.Lock()
	defer c.obs.mu.Unlock()
	c.obs.onRequest = append(c.obs.onRequest, fn)
}

func (c *Client) emitRequestEvent(ev RequestEvent) {
	c.obs.mu.Lock()
	callbacks := make([]func(RequestEvent), len(c.obs.onRequest))
	copy(callbacks, c.obs.onRequest)
	c.obs.mu.Unlock()
	for _, fn := range callbacks {
		fn(ev)
	}
}

// CallJSON dispatches a request and decodes the JSON response body into out.
// It returns a ConfigError when used with a RawResponse request.
func (c *Client) CallJSON(ctx context.Context, req APIRequest, out any) error {
	if req.RawResponse {
		return &ConfigError{Reason: "CallJSON used with a raw (non-JSON) request"}
	}
	resp, err := c.SendRequest(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.DecodeJSON(out)
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
