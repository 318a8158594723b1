package eventsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	twitchbridge "github.com/opengovern/twitch-bridge"
	"github.com/opengovern/twitch-bridge/helix"
)

// ListenerConfig configures a webhook Listener.
type ListenerConfig struct {
	// API is the Helix client used to manage subscriptions server-side.
	API *helix.API

	// Secret is the shared listener secret from which per-subscription
	// signing secrets derive. Required; refuse obvious placeholders.
	Secret string

	// BaseURL is the public HTTPS origin Twitch calls back, without the
	// /event suffix, e.g. "https://example.com/twitch".
	BaseURL string

	// Logger defaults to discarding.
	Logger *slog.Logger
}

// Listener serves EventSub webhook deliveries at POST {BaseURL}/event/{id}
// and owns the registry of client-side subscriptions.
type Listener struct {
	api     *helix.API
	secret  string
	baseURL string
	logger  *slog.Logger
	router  *mux.Router

	mu               sync.Mutex
	subs             map[string]*Subscription
	resumeCandidates map[string]*helix.EventSubSubscription
	started          bool
	server           *http.Server

	cbMu     sync.Mutex
	onVerify []func(*Subscription)
	onRevoke []func(*Subscription)
}

// NewListener builds a Listener. It fails when the secret is missing or a
// placeholder, or when no API client is given.
func NewListener(cfg ListenerConfig) (*Listener, error) {
	if cfg.API == nil {
		return nil, &twitchbridge.ConfigError{Reason: "eventsub listener requires a helix API client"}
	}
	if cfg.Secret == "" || cfg.Secret == "default" || cfg.Secret == "changeme" {
		return nil, &twitchbridge.ConfigError{Reason: "eventsub listener requires a real webhook secret"}
	}
	if cfg.BaseURL == "" {
		return nil, &twitchbridge.ConfigError{Reason: "eventsub listener requires a public base URL"}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	l := &Listener{
		api:              cfg.API,
		secret:           cfg.Secret,
		baseURL:          strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:           cfg.Logger,
		router:           mux.NewRouter(),
		subs:             make(map[string]*Subscription),
		resumeCandidates: make(map[string]*helix.EventSubSubscription),
	}
	l.router.HandleFunc("/event/{id}", l.handleDelivery).Methods(http.MethodPost)
	return l, nil
}

// Handler returns the HTTP handler serving webhook deliveries, for embedding
// the listener in an existing server.
func (l *Listener) Handler() http.Handler {
	return l.router
}

// OnVerify registers a callback invoked when a subscription completes its
// challenge handshake.
func (l *Listener) OnVerify(fn func(*Subscription)) {
	l.cbMu.Lock()
	defer l.cbMu.Unlock()
	l.onVerify = append(l.onVerify, fn)
}

// OnRevoke registers a callback invoked when Twitch revokes a subscription.
func (l *Listener) OnRevoke(fn func(*Subscription)) {
	l.cbMu.Lock()
	defer l.cbMu.Unlock()
	l.onRevoke = append(l.onRevoke, fn)
}

// Start fetches existing Twitch-side subscriptions pointed at this listener
// and starts every registered subscription, resuming where a matching record
// survived. A subscription that fails to start does not block the others;
// the first error is returned after every registered subscription has been
// attempted. Use Start when serving Handler from your own HTTP server;
// otherwise use Listen.
func (l *Listener) Start(ctx context.Context) error {
	if err := l.fetchResumeCandidates(ctx); err != nil {
		return fmt.Errorf("listing existing subscriptions: %w", err)
	}

	l.mu.Lock()
	l.started = true
	pending := make([]*Subscription, 0, len(l.subs))
	for _, sub := range l.subs {
		pending = append(pending, sub)
	}
	l.mu.Unlock()

	var firstErr error
	for _, sub := range pending {
		if err := sub.start(ctx, l.takeResumeCandidate(sub.id)); err != nil {
			l.logger.Warn("failed to start subscription", "subscription", sub.id, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("starting subscription %s: %w", sub.id, err)
			}
		}
	}
	return firstErr
}

// Listen starts the listener and serves it on addr until the context is
// canceled, then shuts down via Unlisten.
func (l *Listener) Listen(ctx context.Context, addr string) error {
	if err := l.Start(ctx); err != nil {
		return err
	}

	server := &http.Server{Addr: addr, Handler: l.router}
	l.mu.Lock()
	l.server = server
	l.mu.Unlock()

	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return l.Unlisten(context.Background())
	}
}

// Unlisten suspends every active subscription first, so no dangling
// server-side subscriptions survive a clean shutdown, then stops the HTTP
// server if Listen started one.
func (l *Listener) Unlisten(ctx context.Context) error {
	l.mu.Lock()
	subs := make([]*Subscription, 0, len(l.subs))
	for _, sub := range l.subs {
		subs = append(subs, sub)
	}
	server := l.server
	l.server = nil
	l.started = false
	l.mu.Unlock()

	var firstErr error
	for _, sub := range subs {
		if err := sub.Suspend(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if server != nil {
		if err := server.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// OnEvent registers a handler for an arbitrary event type. The identity
// parameters scope the subscription: identical type and parameters always
// derive the same subscription identity. The handler receives the raw event
// payload of each verified notification.
func (l *Listener) OnEvent(ctx context.Context, subscriptionType, version string, condition map[string]string, idParams []string, handler func(json.RawMessage)) (*Subscription, error) {
	id := subscriptionID(subscriptionType, idParams...)

	l.mu.Lock()
	if _, exists := l.subs[id]; exists {
		l.mu.Unlock()
		return nil, fmt.Errorf("subscription %s is already registered", id)
	}
	sub := &Subscription{
		listener:  l,
		id:        id,
		subType:   subscriptionType,
		version:   version,
		condition: condition,
		handler:   handler,
		state:     StateCreated,
	}
	l.subs[id] = sub
	started := l.started
	l.mu.Unlock()

	if started {
		if err := sub.start(ctx, l.takeResumeCandidate(id)); err != nil {
			l.remove(id)
			return nil, err
		}
	}
	return sub, nil
}

func (l *Listener) remove(id string) {
	l.mu.Lock()
	delete(l.subs, id)
	l.mu.Unlock()
}

func (l *Listener) callbackURL(id string) string {
	return l.baseURL + "/event/" + id
}

// fetchResumeCandidates lists all Twitch-side subscriptions whose transport
// is a webhook callback under this listener's base URL and keys them by the
// trailing path segment (the local subscription identity).
func (l *Listener) fetchResumeCandidates(ctx context.Context) error {
	records, err := l.api.EventSub.GetSubscriptions(helix.SubscriptionsParams{}).All(ctx)
	if err != nil {
		return err
	}

	prefix := l.baseURL + "/event/"
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, record := range records {
		if record.Transport.Method != "webhook" {
			continue
		}
		if !strings.HasPrefix(record.Transport.Callback, prefix) {
			continue
		}
		localID := path.Base(record.Transport.Callback)
		l.resumeCandidates[localID] = record
	}
	return nil
}

func (l *Listener) takeResumeCandidate(id string) *helix.EventSubSubscription {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.resumeCandidates[id]
	if !ok {
		return nil
	}
	delete(l.resumeCandidates, id)
	return record
}

// deliveryPayload is the JSON body of every EventSub webhook delivery.
type deliveryPayload struct {
	Subscription helix.EventSubSubscription `json:"subscription"`
	Challenge    string                     `json:"challenge"`
	Event        json.RawMessage            `json:"event"`
}

func (l *Listener) handleDelivery(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	l.mu.Lock()
	sub := l.subs[id]
	l.mu.Unlock()
	if sub == nil {
		// Deliveries for subscriptions we no longer know tell Twitch to
		// stop sending.
		w.WriteHeader(http.StatusGone)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		l.logger.Warn("failed to read delivery body", "subscription", id, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	signature := r.Header.Get(headerMessageSignature)
	messageID := r.Header.Get(headerMessageID)
	timestamp := r.Header.Get(headerMessageTimestamp)
	if signature == "" || !verifySignature(sub.secret(), signature, messageID, timestamp, body) {
		l.logger.Warn("rejected delivery with bad signature", "subscription", id, "messageId", messageID)
		w.WriteHeader(http.StatusGone)
		return
	}

	var payload deliveryPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		l.logger.Warn("failed to decode delivery body", "subscription", id, "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch r.Header.Get(headerMessageType) {
	case messageTypeVerification:
		sub.markVerified()
		l.emitVerify(sub)
		l.logger.Info("subscription verified", "subscription", id)
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Length", strconv.Itoa(len(payload.Challenge)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(payload.Challenge))

	case messageTypeNotification:
		sub.handler(payload.Event)
		w.WriteHeader(http.StatusAccepted)

	case messageTypeRevocation:
		sub.markRevoked()
		l.remove(id)
		l.emitRevoke(sub)
		l.logger.Info("subscription revoked", "subscription", id, "status", payload.Subscription.Status)
		w.WriteHeader(http.StatusAccepted)

	default:
		l.logger.Warn("unknown message type", "subscription", id, "messageType", r.Header.Get(headerMessageType))
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (l *Listener) emitVerify(sub *Subscription) {
	l.cbMu.Lock()
	callbacks := make([]func(*Subscription), len(l.onVerify))
	copy(callbacks, l.onVerify)
	l.cbMu.Unlock()
	for _, fn := range callbacks {
		fn(sub)
	}
}

func (l *Listener) emitRevoke(sub *Subscription) {
	l.cbMu.Lock()
	callbacks := make([]func(*Subscription), len(l.onRevoke))
	copy(callbacks, l.onRevoke)
	l.cbMu.Unlock()
	for _, fn := range callbacks {
		fn(sub)
	}
}
