package eventsub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	twitchbridge "github.com/opengovern/twitch-bridge"
	"github.com/opengovern/twitch-bridge/helix"
	"github.com/opengovern/twitch-bridge/mock"
)

const testBaseURL = "https://example.com/hooks"

// fakeTwitch emulates the eventsub/subscriptions management endpoints.
type fakeTwitch struct {
	mu             sync.Mutex
	nextID         int
	subs           map[string]helix.EventSubSubscription
	created        []helix.EventSubSubscription
	deleted        []string
	secrets        map[string]string // twitch ID -> transport secret from create
	failDeletes    bool
	failCreateType string // creates for this event type answer 403
}

func newFakeTwitch() *fakeTwitch {
	return &fakeTwitch{
		subs:    make(map[string]helix.EventSubSubscription),
		secrets: make(map[string]string),
	}
}

// seed installs a pre-existing Twitch-side record.
func (f *fakeTwitch) seed(status, subType, version, callback string, condition map[string]string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("tw-%d", f.nextID)
	f.subs[id] = helix.EventSubSubscription{
		ID:        id,
		Status:    status,
		Type:      subType,
		Version:   version,
		Condition: condition,
		CreatedAt: time.Now(),
		Transport: helix.EventSubTransport{Method: "webhook", Callback: callback},
	}
	return id
}

func (f *fakeTwitch) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/eventsub/subscriptions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			f.mu.Lock()
			records := make([]helix.EventSubSubscription, 0, len(f.subs))
			for _, sub := range f.subs {
				records = append(records, sub)
			}
			f.mu.Unlock()
			total := len(records)
			json.NewEncoder(w).Encode(map[string]any{
				"data":       records,
				"pagination": map[string]any{},
				"total":      total,
			})

		case http.MethodPost:
			var body struct {
				Type      string                  `json:"type"`
				Version   string                  `json:"version"`
				Condition map[string]string       `json:"condition"`
				Transport helix.EventSubTransport `json:"transport"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.mu.Lock()
			if f.failCreateType != "" && body.Type == f.failCreateType {
				f.mu.Unlock()
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(map[string]any{"status": 403, "message": "subscription missing proper authorization"})
				return
			}
			f.nextID++
			sub := helix.EventSubSubscription{
				ID:        fmt.Sprintf("tw-%d", f.nextID),
				Status:    helix.SubscriptionStatusPending,
				Type:      body.Type,
				Version:   body.Version,
				Condition: body.Condition,
				CreatedAt: time.Now(),
				Transport: helix.EventSubTransport{Method: body.Transport.Method, Callback: body.Transport.Callback},
			}
			f.subs[sub.ID] = sub
			f.created = append(f.created, sub)
			f.secrets[sub.ID] = body.Transport.Secret
			f.mu.Unlock()
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]any{"data": []helix.EventSubSubscription{sub}})

		case http.MethodDelete:
			id := r.URL.Query().Get("id")
			f.mu.Lock()
			if f.failDeletes {
				f.mu.Unlock()
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			delete(f.subs, id)
			f.deleted = append(f.deleted, id)
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func (f *fakeTwitch) setFailDeletes(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failDeletes = fail
}

func (f *fakeTwitch) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeTwitch) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func newTestListener(t *testing.T, fake *fakeTwitch) *Listener {
	t.Helper()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	provider := mock.NewRefreshingProvider("cid")
	provider.AppFunc = func(bool) (*twitchbridge.AccessToken, error) {
		return &twitchbridge.AccessToken{Value: "app-tok", TokenType: twitchbridge.TokenTypeApp}, nil
	}
	client, err := twitchbridge.NewClient(twitchbridge.ClientConfig{
		AuthProvider: provider,
		BaseURL:      server.URL,
		BaseBackoff:  time.Millisecond,
	})
	require.NoError(t, err)

	listener, err := NewListener(ListenerConfig{
		API:     helix.New(client),
		Secret:  "s3cret-value",
		BaseURL: testBaseURL,
	})
	require.NoError(t, err)
	return listener
}

// deliver simulates one webhook delivery, signed with the given secret.
func deliver(l *Listener, localID, messageType, secret string, body []byte) *httptest.ResponseRecorder {
	const messageID = "msg-0001"
	timestamp := time.Now().UTC().Format(time.RFC3339)

	req := httptest.NewRequest(http.MethodPost, "/event/"+localID, bytes.NewReader(body))
	req.Header.Set(headerMessageID, messageID)
	req.Header.Set(headerMessageTimestamp, timestamp)
	req.Header.Set(headerMessageType, messageType)
	req.Header.Set(headerMessageSignature, Sign(secret, messageID, timestamp, body))

	rec := httptest.NewRecorder()
	l.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewListenerValidation(t *testing.T) {
	api := helix.New(mustClient(t))
	for name, cfg := range map[string]ListenerConfig{
		"missing api":        {Secret: "s3cret", BaseURL: testBaseURL},
		"missing secret":     {API: api, BaseURL: testBaseURL},
		"placeholder secret": {API: api, Secret: "default", BaseURL: testBaseURL},
		"changeme secret":    {API: api, Secret: "changeme", BaseURL: testBaseURL},
		"missing base url":   {API: api, Secret: "s3cret"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewListener(cfg)
			var cfgErr *twitchbridge.ConfigError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func mustClient(t *testing.T) *twitchbridge.Client {
	t.Helper()
	client, err := twitchbridge.NewClient(twitchbridge.ClientConfig{AuthProvider: mock.NewProvider("cid")})
	require.NoError(t, err)
	return client
}

func TestStartCreatesSubscription(t *testing.T) {
	fake := newFakeTwitch()
	listener := newTestListener(t, fake)

	sub, err := listener.OnEvent(context.Background(), "channel.ban", "1",
		map[string]string{"broadcaster_user_id": "44"}, []string{"44"}, func(json.RawMessage) {})
	require.NoError(t, err)
	assert.Equal(t, "channel.ban.44", sub.ID())
	assert.Equal(t, StateCreated, sub.State())

	require.NoError(t, listener.Start(context.Background()))
	assert.Equal(t, StateUnverified, sub.State())
	require.Equal(t, 1, fake.createdCount())

	created := fake.created[0]
	assert.Equal(t, "channel.ban", created.Type)
	assert.Equal(t, "1", created.Version)
	assert.Equal(t, map[string]string{"broadcaster_user_id": "44"}, created.Condition)
	assert.Equal(t, testBaseURL+"/event/channel.ban.44", created.Transport.Callback)
	assert.Equal(t, deriveSecret("channel.ban.44", "s3cret-value"), fake.secrets[created.ID])
}

func TestChallengeHandshake(t *testing.T) {
	fake := newFakeTwitch()
	listener := newTestListener(t, fake)

	sub, err := listener.OnEvent(context.Background(), "channel.ban", "1",
		map[string]string{"broadcaster_user_id": "44"}, []string{"44"}, func(json.RawMessage) {})
	require.NoError(t, err)
	require.NoError(t, listener.Start(context.Background()))

	var verified []*Subscription
	listener.OnVerify(func(s *Subscription) { verified = append(verified, s) })

	body := []byte(`{"challenge":"pogchamp-kappa-360noscope","subscription":{"id":"tw-1","status":"webhook_callback_verification_pending"}}`)
	rec := deliver(listener, sub.ID(), messageTypeVerification, sub.secret(), body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pogchamp-kappa-360noscope", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.True(t, sub.Verified())
	require.Len(t, verified, 1)
	assert.Same(t, sub, verified[0])
}

func TestNotificationDispatchesToHandler(t *testing.T) {
	fake := newFakeTwitch()
	listener := newTestListener(t, fake)

	var got json.RawMessage
	sub, err := listener.OnEvent(context.Background(), "channel.ban", "1",
		map[string]string{"broadcaster_user_id": "44"}, []string{"44"}, func(raw json.RawMessage) {
			got = raw
		})
	require.NoError(t, err)
	require.NoError(t, listener.Start(context.Background()))

	body := []byte(`{"subscription":{"id":"tw-1","status":"enabled"},"event":{"user_id":"99","reason":"spam"}}`)
	rec := deliver(listener, sub.ID(), messageTypeNotification, sub.secret(), body)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"user_id":"99","reason":"spam"}`, string(got))
}

func TestUnknownSubscriptionIsGone(t *testing.T) {
	fake := newFakeTwitch()
	listener := newTestListener(t, fake)

	rec := deliver(listener, "channel.ban.999", messageTypeNotification, "whatever", []byte(`{}`))
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestBadSignatureIsGone(t *testing.T) {
	fake := newFakeTwitch()
	listener := newTestListener(t, fake)

	handled := false
	sub, err := listener.OnEvent(context.Background(), "channel.ban", "1",
		map[string]string{"broadcaster_user_id": "44"}, []string{"44"}, func(json.RawMessage) {
			handled = true
		})
	require.NoError(t, err)
	require.NoError(t, listener.Start(context.Background()))

	rec := deliver(listener, sub.ID(), messageTypeNotification, "not-the-secret", []byte(`{"event":{}}`))
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.False(t, handled, "handler must not run for an unverified delivery")
}

func TestMissingSignatureIsGone(t *testing.T) {
	fake := newFakeTwitch()
	listener := newTestListener(t, fake)

	sub, err := listener.OnEvent(context.Background(), "channel.ban", "1",
		map[string]string{"broadcaster_user_id": "44"}, []string{"44"}, func(json.RawMessage) {})
	require.NoError(t, err)
	require.NoError(t, listener.Start(context.Background()))

	req := httptest.NewRequest(http.MethodPost, "/event/"+sub.ID(), bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	listener.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestUnknownMessageTypeIsBadRequest(t *testing.T) {
	fake := newFakeTwitch()
	listener := newTestListener(t, fake)

	sub, err := listener.OnEvent(context.Background(), "channel.ban", "1",
		map[string]string{"broadcaster_user_id": "44"}, []string{"44"}, func(json.RawMessage) {})
	require.NoError(t, err)
	require.NoError(t, listener.Start(context.Background()))

	rec := deliver(listener, sub.ID(), "mystery_type", sub.secret(), []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRevocationRemovesSubscription(t *testing.T) {
	fake := newFakeTwitch()
	listener := newTestListener(t, fake)

	sub, err := listener.OnEvent(context.Background(), "channel.ban", "1",
		map[string]string{"broadcaster_user_id": "44"}, []string{"44"}, func(json.RawMessage) {})
	require.NoError(t, err)
	require.NoError(t, listener.Start(context.Background()))

	var revoked []*Subscription
	listener.OnRevoke(func(s *Subscription) { revoked = append(revoked, s) })

	body := []byte(`{"subscription":{"id":"tw-1","status":"authorization_revoked"}}`)
	rec := deliver(listener, sub.ID(), messageTypeRevocation, sub.secret(), body)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, StateRevoked, sub.State())
	assert.Nil(t, sub.TwitchSubscription())
	require.Len(t, revoked, 1)

	// The registry entry is gone, so further deliveries answer 410.
	rec = deliver(listener, sub.ID(), messageTypeNotification, sub.secret(), []byte(`{"event":{}}`))
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestStartResumesEnabledSubscription(t *testing.T) {
	fake := newFakeTwitch()
	twitchID := fake.seed(helix.SubscriptionStatusEnabled, "channel.ban", "1",
		testBaseURL+"/event/channel.ban.44", map[string]string{"broadcaster_user_id": "44"})
	listener := newTestListener(t, fake)

	sub, err := listener.OnEvent(context.Background(), "channel.ban", "1",
		map[string]string{"broadcaster_user_id": "44"}, []string{"44"}, func(json.RawMessage) {})
	require.NoError(t, err)
	require.NoError(t, listener.Start(context.Background()))

	assert.Equal(t, StateVerified, sub.State(), "an enabled record is adopted as-is")
	assert.Equal(t, 0, fake.createdCount(), "no new subscribe call for a resumable record")
	require.NotNil(t, sub.TwitchSubscription())
	assert.Equal(t, twitchID, sub.TwitchSubscription().ID)
}

func TestStartReplacesBrokenSubscription(t *testing.T) {
	fake := newFakeTwitch()
	staleID := fake.seed(helix.SubscriptionStatusVerificationFailed, "channel.ban", "1",
		testBaseURL+"/event/channel.ban.44", map[string]string{"broadcaster_user_id": "44"})
	listener := newTestListener(t, fake)

	sub, err := listener.OnEvent(context.Background(), "channel.ban", "1",
		map[string]string{"broadcaster_user_id": "44"}, []string{"44"}, func(json.RawMessage) {})
	require.NoError(t, err)
	require.NoError(t, listener.Start(context.Background()))

	assert.Equal(t, StateUnverified, sub.State())
	assert.Contains(t, fake.deletedIDs(), staleID, "the broken record must be cleaned up")
	assert.Equal(t, 1, fake.createdCount())
}

func TestForeignSubscriptionsAreNotResumed(t *testing.T) {
	fake := newFakeTwitch()
	fake.seed(helix.SubscriptionStatusEnabled, "channel.ban", "1",
		"https://unrelated.example.net/event/channel.ban.44", map[string]string{"broadcaster_user_id": "44"})
	listener := newTestListener(t, fake)

	sub, err := listener.OnEvent(context.Background(), "channel.ban", "1",
		map[string]string{"broadcaster_user_id": "44"}, []string{"44"}, func(json.RawMessage) {})
	require.NoError(t, err)
	require.NoError(t, listener.Start(context.Background()))

	assert.Equal(t, StateUnverified, sub.State())
	assert.Equal(t, 1, fake.createdCount(), "a record under another origin is not ours to adopt")
}

func TestOnEventAfterStartSubscribesImmediately(t *testing.T) {
	fake := newFakeTwitch()
	listener := newTestListener(t, fake)
	require.NoError(t, listener.Start(context.Background()))

	sub, err := listener.OnEvent(context.Background(), "stream.online", "1",
		map[string]string{"broadcaster_user_id": "44"}, []string{"44"}, func(json.RawMessage) {})
	require.NoError(t, err)
	assert.Equal(t, StateUnverified, sub.State())
	assert.Equal(t, 1, fake.createdCount())
}

func TestOnEventRejectsDuplicateIdentity(t *testing.T) {
	fake := newFakeTwitch()
	listener := newTestListener(t, fake)

	_, err := listener.OnEvent(context.Background(), "channel.ban", "1",
		map[string]string{"broadcaster_user_id": "44"}, []string{"44"}, func(json.RawMessage) {})
	require.NoError(t, err)

	_, err = listener.OnEvent(context.Background(), "channel.ban", "1",
		map[string]string{"broadcaster_user_id": "44"}, []string{"44"}, func(json.RawMessage) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestSuspendAndStop(t *testing.T) {
	fake := newFakeTwitch()
	listener := newTestListener(t, fake)

	sub, err := listener.OnEvent(context.Background(), "channel.ban", "1",
		map[string]string{"broadcaster_user_id": "44"}, []string{"44"}, func(json.RawMessage) {})
	require.NoError(t, err)
	require.NoError(t, listener.Start(context.Background()))

	twitchID := sub.TwitchSubscription().ID
	require.NoError(t, sub.Suspend(context.Background()))
	assert.Equal(t, StateSuspended, sub.State())
	assert.Contains(t, fake.deletedIDs(), twitchID)

	// Suspending again is a no-op.
	require.NoError(t, sub.Suspend(context.Background()))
	assert.Len(t, fake.deletedIDs(), 1)

	require.NoError(t, sub.Stop(context.Background()))
	assert.Equal(t, StateStopped, sub.State())
	rec := deliver(listener, sub.ID(), messageTypeNotification, sub.secret(), []byte(`{"event":{}}`))
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestSuspendKeepsAssociationWhenDeleteFails(t *testing.T) {
	fake := newFakeTwitch()
	listener := newTestListener(t, fake)

	sub, err := listener.OnEvent(context.Background(), "channel.ban", "1",
		map[string]string{"broadcaster_user_id": "44"}, []string{"44"}, func(json.RawMessage) {})
	require.NoError(t, err)
	require.NoError(t, listener.Start(context.Background()))
	twitchID := sub.TwitchSubscription().ID

	fake.setFailDeletes(true)
	require.Error(t, sub.Suspend(context.Background()))
	assert.Equal(t, StateUnverified, sub.State(), "a failed teardown must not look suspended")
	require.NotNil(t, sub.TwitchSubscription(), "the server-side record is still live")

	// Once the server recovers, retrying completes the suspension.
	fake.setFailDeletes(false)
	require.NoError(t, sub.Suspend(context.Background()))
	assert.Equal(t, StateSuspended, sub.State())
	assert.Nil(t, sub.TwitchSubscription())
	assert.Contains(t, fake.deletedIDs(), twitchID)
}

func TestStartContinuesPastFailedSubscription(t *testing.T) {
	fake := newFakeTwitch()
	fake.failCreateType = "channel.ban"
	listener := newTestListener(t, fake)

	banned, err := listener.OnEvent(context.Background(), "channel.ban", "1",
		map[string]string{"broadcaster_user_id": "44"}, []string{"44"}, func(json.RawMessage) {})
	require.NoError(t, err)
	online, err := listener.OnEvent(context.Background(), "stream.online", "1",
		map[string]string{"broadcaster_user_id": "44"}, []string{"44"}, func(json.RawMessage) {})
	require.NoError(t, err)

	err = listener.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel.ban.44")

	// The failure must not keep the other subscription from starting.
	assert.Equal(t, StateUnverified, online.State())
	assert.Equal(t, StateCreated, banned.State())
	require.Equal(t, 1, fake.createdCount())
	assert.Equal(t, "stream.online", fake.created[0].Type)
}

func TestUnlistenSuspendsEverything(t *testing.T) {
	fake := newFakeTwitch()
	listener := newTestListener(t, fake)

	subA, err := listener.OnEvent(context.Background(), "channel.ban", "1",
		map[string]string{"broadcaster_user_id": "44"}, []string{"44"}, func(json.RawMessage) {})
	require.NoError(t, err)
	subB, err := listener.OnEvent(context.Background(), "stream.online", "1",
		map[string]string{"broadcaster_user_id": "44"}, []string{"44"}, func(json.RawMessage) {})
	require.NoError(t, err)
	require.NoError(t, listener.Start(context.Background()))

	require.NoError(t, listener.Unlisten(context.Background()))
	assert.Equal(t, StateSuspended, subA.State())
	assert.Equal(t, StateSuspended, subB.State())
	assert.Len(t, fake.deletedIDs(), 2)
}

func TestTypedChannelBanHandler(t *testing.T) {
	fake := newFakeTwitch()
	listener := newTestListener(t, fake)

	var got *ChannelBanEvent
	sub, err := listener.OnChannelBan(context.Background(), "44", func(ev *ChannelBanEvent) {
		got = ev
	})
	require.NoError(t, err)
	assert.Equal(t, "channel.ban.44", sub.ID())
	require.NoError(t, listener.Start(context.Background()))

	body := []byte(`{
		"subscription":{"id":"tw-1","status":"enabled"},
		"event":{
			"user_id":"99","user_login":"spammer","user_name":"Spammer",
			"broadcaster_user_id":"44","broadcaster_user_login":"streamer","broadcaster_user_name":"Streamer",
			"moderator_user_id":"7","reason":"spam","is_permanent":true
		}
	}`)
	rec := deliver(listener, sub.ID(), messageTypeNotification, sub.secret(), body)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "99", got.UserID)
	assert.Equal(t, "44", got.BroadcasterUserID)
	assert.Equal(t, "spam", got.Reason)
	assert.True(t, got.IsPermanent)
}

func TestTypedFollowIdentityIncludesModerator(t *testing.T) {
	fake := newFakeTwitch()
	listener := newTestListener(t, fake)

	sub, err := listener.OnChannelFollow(context.Background(), "44", "7", func(*ChannelFollowEvent) {})
	require.NoError(t, err)
	assert.Equal(t, "channel.follow.44.7", sub.ID())
	require.NoError(t, listener.Start(context.Background()))

	created := fake.created[0]
	assert.Equal(t, "2", created.Version)
	assert.Equal(t, map[string]string{
		"broadcaster_user_id": "44",
		"moderator_user_id":   "7",
	}, created.Condition)
}
