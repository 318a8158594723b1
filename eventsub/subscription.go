package eventsub

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/opengovern/twitch-bridge/helix"
)

// State is a subscription's position in its lifecycle.
type State int

const (
	// StateCreated: handler registered, not yet subscribed.
	StateCreated State = iota
	// StateSubscribing: subscribe call in flight.
	StateSubscribing
	// StateUnverified: Twitch-side record exists, challenge not yet answered.
	StateUnverified
	// StateVerified: challenge succeeded, notifications flowing.
	StateVerified
	// StateSuspended: temporarily torn down (e.g. listener shutdown).
	StateSuspended
	// StateStopped: terminal; removed from the listener's registry.
	StateStopped
	// StateRevoked: terminal; Twitch revoked the subscription.
	StateRevoked
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSubscribing:
		return "subscribing"
	case StateUnverified:
		return "unverified"
	case StateVerified:
		return "verified"
	case StateSuspended:
		return "suspended"
	case StateStopped:
		return "stopped"
	case StateRevoked:
		return "revoked"
	}
	return "unknown"
}

// Subscription is the client-side object for one EventSub subscription. Its
// identity derives deterministically from the event type and scoping
// parameters, so re-registering the same logical subscription yields the
// same identity and can be matched against a resumed Twitch-side record.
type Subscription struct {
	listener  *Listener
	id        string
	subType   string
	version   string
	condition map[string]string
	handler   func(json.RawMessage)

	mu     sync.Mutex
	state  State
	remote *helix.EventSubSubscription
}

// subscriptionID joins the event type and scoping parameters into the
// deterministic identity string, e.g. "channel.ban.12345".
func subscriptionID(subscriptionType string, params ...string) string {
	return strings.Join(append([]string{subscriptionType}, params...), ".")
}

// ID returns the subscription's derived identity.
func (s *Subscription) ID() string {
	return s.id
}

// Type returns the event type the subscription covers.
func (s *Subscription) Type() string {
	return s.subType
}

// State returns the subscription's current lifecycle state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Verified reports whether the webhook challenge has completed.
func (s *Subscription) Verified() bool {
	return s.State() == StateVerified
}

// TwitchSubscription returns the associated Twitch-side record, or nil when
// none is held.
func (s *Subscription) TwitchSubscription() *helix.EventSubSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

// secret returns the subscription's derived signing secret.
func (s *Subscription) secret() string {
	return deriveSecret(s.id, s.listener.secret)
}

// start subscribes, resuming against the given Twitch-side record when one
// is passed: an enabled record is adopted without a new subscribe call; a
// broken record is unsubscribed first, then replaced with a fresh
// subscription.
func (s *Subscription) start(ctx context.Context, resume *helix.EventSubSubscription) error {
	s.mu.Lock()
	s.state = StateSubscribing
	s.mu.Unlock()

	if resume != nil {
		if resume.Status == helix.SubscriptionStatusEnabled {
			s.mu.Lock()
			s.remote = resume
			s.state = StateVerified
			s.mu.Unlock()
			s.listener.logger.Info("resumed subscription", "subscription", s.id, "twitchId", resume.ID)
			return nil
		}
		// Any non-enabled status means the old record is unusable.
		s.listener.logger.Info("replacing broken subscription",
			"subscription", s.id, "twitchId", resume.ID, "status", resume.Status)
		if err := s.listener.api.EventSub.DeleteSubscription(ctx, resume.ID); err != nil {
			s.listener.logger.Warn("failed to remove stale subscription",
				"subscription", s.id, "twitchId", resume.ID, "error", err)
		}
	}

	created, err := s.listener.api.EventSub.CreateSubscription(ctx, s.subType, s.version, s.condition, helix.EventSubTransport{
		Method:   "webhook",
		Callback: s.listener.callbackURL(s.id),
		Secret:   s.secret(),
	})
	if err != nil {
		s.mu.Lock()
		s.state = StateCreated
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.remote = created
	s.state = StateUnverified
	s.mu.Unlock()
	s.listener.logger.Info("created subscription", "subscription", s.id, "twitchId", created.ID)
	return nil
}

// Suspend deletes the Twitch-side subscription and then clears the local
// association, keeping the handler registered. A failed delete leaves the
// association and state untouched so the suspension can be retried. It is a
// no-op when no record is associated.
func (s *Subscription) Suspend(ctx context.Context) error {
	s.mu.Lock()
	remote := s.remote
	s.mu.Unlock()

	if remote != nil {
		if err := s.listener.api.EventSub.DeleteSubscription(ctx, remote.ID); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.remote = nil
	s.state = StateSuspended
	s.mu.Unlock()

	if remote != nil {
		s.listener.logger.Info("suspended subscription", "subscription", s.id, "twitchId", remote.ID)
	}
	return nil
}

// Stop suspends the subscription and removes it from the listener's
// registry. The subscription cannot be restarted afterwards.
func (s *Subscription) Stop(ctx context.Context) error {
	if err := s.Suspend(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	s.listener.remove(s.id)
	return nil
}

// markVerified records a completed challenge handshake.
func (s *Subscription) markVerified() {
	s.mu.Lock()
	s.state = StateVerified
	if s.remote != nil {
		s.remote.Status = helix.SubscriptionStatusEnabled
	}
	s.mu.Unlock()
}

// markRevoked records an externally triggered revocation and drops the
// Twitch-side association.
func (s *Subscription) markRevoked() {
	s.mu.Lock()
	s.state = StateRevoked
	s.remote = nil
	s.mu.Unlock()
}
