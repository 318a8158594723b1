package helix

import (
	"context"
	"net/url"
	"time"

	twitchbridge "github.com/opengovern/twitch-bridge"
)

// EventSub subscription statuses reported by Twitch.
const (
	SubscriptionStatusEnabled             = "enabled"
	SubscriptionStatusPending             = "webhook_callback_verification_pending"
	SubscriptionStatusVerificationFailed  = "webhook_callback_verification_failed"
	SubscriptionStatusNotificationFailure = "notification_failures_exceeded"
	SubscriptionStatusAuthRevoked         = "authorization_revoked"
	SubscriptionStatusModeratorRemoved    = "moderator_removed"
	SubscriptionStatusUserRemoved         = "user_removed"
	SubscriptionStatusVersionRemoved      = "version_removed"
)

// EventSubTransport describes where notifications for a subscription are
// delivered.
type EventSubTransport struct {
	Method    string `json:"method"`
	Callback  string `json:"callback,omitempty"`
	Secret    string `json:"secret,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	ConduitID string `json:"conduit_id,omitempty"`
}

// EventSubSubscription mirrors a Twitch-side subscription record. The core
// treats it as authoritative server state.
type EventSubSubscription struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	Condition map[string]string `json:"condition"`
	CreatedAt time.Time         `json:"created_at"`
	Transport EventSubTransport `json:"transport"`
	Cost      int               `json:"cost"`
}

// SubscriptionCost summarizes the account's EventSub subscription budget as
// reported alongside a subscription listing.
type SubscriptionCost struct {
	Total        int `json:"total"`
	TotalCost    int `json:"total_cost"`
	MaxTotalCost int `json:"max_total_cost"`
}

// SubscriptionsParams filters GetSubscriptions.
type SubscriptionsParams struct {
	Status string
	Type   string
	UserID string
}

// EventSubAPI wraps the eventsub/subscriptions management endpoints. All of
// them require an app access token for webhook transports.
type EventSubAPI struct {
	client *twitchbridge.Client
}

// CreateSubscription registers a new subscription and returns the created
// record (status pending until the callback handshake completes).
func (a *EventSubAPI) CreateSubscription(ctx context.Context, subscriptionType, version string, condition map[string]string, transport EventSubTransport) (*EventSubSubscription, error) {
	body := struct {
		Type      string            `json:"type"`
		Version   string            `json:"version"`
		Condition map[string]string `json:"condition"`
		Transport EventSubTransport `json:"transport"`
	}{subscriptionType, version, condition, transport}

	sub, err := getFirst[EventSubSubscription](ctx, a.client, twitchbridge.APIRequest{
		URL:       "eventsub/subscriptions",
		Method:    "POST",
		Body:      body,
		ForceType: twitchbridge.TokenTypeApp,
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// DeleteSubscription removes a subscription by its Twitch-side ID.
func (a *EventSubAPI) DeleteSubscription(ctx context.Context, id string) error {
	_, err := a.client.SendRequest(ctx, twitchbridge.APIRequest{
		URL:       "eventsub/subscriptions",
		Method:    "DELETE",
		Query:     url.Values{"id": {id}},
		ForceType: twitchbridge.TokenTypeApp,
	})
	return err
}

// GetSubscriptions returns a paginator over the account's subscriptions,
// including the reported total.
func (a *EventSubAPI) GetSubscriptions(params SubscriptionsParams) *twitchbridge.Paginator[EventSubSubscription, *EventSubSubscription] {
	query := url.Values{}
	if params.Status != "" {
		query.Set("status", params.Status)
	}
	if params.Type != "" {
		query.Set("type", params.Type)
	}
	if params.UserID != "" {
		query.Set("user_id", params.UserID)
	}
	return twitchbridge.NewPaginator(a.client, twitchbridge.APIRequest{
		URL:       "eventsub/subscriptions",
		Query:     query,
		ForceType: twitchbridge.TokenTypeApp,
	}, func(d EventSubSubscription) *EventSubSubscription {
		sub := d
		return &sub
	})
}

// GetSubscriptionCost fetches the account's subscription cost summary.
func (a *EventSubAPI) GetSubscriptionCost(ctx context.Context) (*SubscriptionCost, error) {
	var cost SubscriptionCost
	err := a.client.CallJSON(ctx, twitchbridge.APIRequest{
		URL:       "eventsub/subscriptions",
		ForceType: twitchbridge.TokenTypeApp,
	}, &cost)
	if err != nil {
		return nil, err
	}
	return &cost, nil
}
