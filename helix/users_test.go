package helix_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	twitchbridge "github.com/opengovern/twitch-bridge"
	"github.com/opengovern/twitch-bridge/helix"
	"github.com/opengovern/twitch-bridge/mock"
)

func newTestAPI(t *testing.T, handler http.HandlerFunc) (*helix.API, *mock.Provider) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider := mock.NewProvider("cid")
	provider.SetToken("", &twitchbridge.AccessToken{Value: "tok", TokenType: twitchbridge.TokenTypeUser, UserID: "44"})
	client, err := twitchbridge.NewClient(twitchbridge.ClientConfig{
		AuthProvider: provider,
		BaseURL:      server.URL,
		BaseBackoff:  time.Millisecond,
		BatchDelay:   10 * time.Millisecond,
	})
	require.NoError(t, err)
	return helix.New(client), provider
}

func TestGetUserByLoginMapsWireShape(t *testing.T) {
	api, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users", r.URL.Path)
		assert.Equal(t, "lirik", r.URL.Query().Get("login"))
		w.Write([]byte(`{"data":[{
			"id":"23161357","login":"lirik","display_name":"LIRIK",
			"broadcaster_type":"partner","description":"hi",
			"created_at":"2011-06-23T15:30:00Z"
		}]}`))
	})

	user, err := api.Users.GetUserByLogin(context.Background(), "lirik")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "23161357", user.ID)
	assert.Equal(t, "LIRIK", user.DisplayName)
	assert.Equal(t, "partner", user.BroadcasterType)
	assert.Equal(t, time.Date(2011, 6, 23, 15, 30, 0, 0, time.UTC), user.CreatedAt)
}

func TestGetUserByLoginAbsentIsNil(t *testing.T) {
	api, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	})

	user, err := api.Users.GetUserByLogin(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestGetUserByIDCoalescesLookups(t *testing.T) {
	var requests atomic.Int32
	api, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		ids := r.URL.Query()["id"]
		data := make([]map[string]string, 0, len(ids))
		for _, id := range ids {
			data = append(data, map[string]string{"id": id, "login": "user-" + id})
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	})

	var wg sync.WaitGroup
	users := make([]*helix.User, 2)
	errs := make([]error, 2)
	for i, id := range []string{"100", "200"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			users[i], errs[i] = api.Users.GetUserByID(context.Background(), id)
		}(i, id)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		require.NotNil(t, users[i])
	}
	assert.Equal(t, "user-100", users[0].Login)
	assert.Equal(t, "user-200", users[1].Login)
	assert.Equal(t, int32(1), requests.Load())
}

func TestGetUserByIDNotFound(t *testing.T) {
	api, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	})

	user, err := api.Users.GetUserByID(context.Background(), "9876")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestUpdateUserSendsScopedPut(t *testing.T) {
	var gotMethod, gotDescription string
	api, provider := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotDescription = r.URL.Query().Get("description")
		w.Write([]byte(`{"data":[{"id":"44","description":"new bio"}]}`))
	})
	provider.SetToken("44", &twitchbridge.AccessToken{
		Value: "tok-44", TokenType: twitchbridge.TokenTypeUser, UserID: "44",
		Scopes: []string{"user:edit"},
	})

	user, err := api.Users.UpdateUser(context.Background(), "44", "new bio")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "new bio", gotDescription)
	assert.Equal(t, []string{"user:edit"}, provider.LastScopes)
}

func TestGetChannelFollowersAsModerator(t *testing.T) {
	var gotBroadcaster string
	api, provider := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		gotBroadcaster = r.URL.Query().Get("broadcaster_id")
		w.Write([]byte(`{"data":[{"user_id":"99","user_login":"fan","followed_at":"2024-01-01T00:00:00Z"}],"pagination":{},"total":1}`))
	})
	provider.SetToken("mod-7", &twitchbridge.AccessToken{
		Value: "tok-mod", TokenType: twitchbridge.TokenTypeUser, UserID: "mod-7",
		Scopes: []string{"moderator:read:followers"},
	})

	// The moderator's ambient context stands in for the broadcaster.
	followers, err := api.AsUser("mod-7").Channels.GetChannelFollowers("44").All(context.Background())
	require.NoError(t, err)
	require.Len(t, followers, 1)
	assert.Equal(t, "fan", followers[0].UserLogin)
	assert.Equal(t, "44", gotBroadcaster)
	assert.Equal(t, "mod-7", provider.LastUserID)
}

func TestGetStreamsPagination(t *testing.T) {
	var requests atomic.Int32
	api, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Query().Get("after") == "" {
			w.Write([]byte(`{"data":[{"id":"s1","user_login":"a","viewer_count":12}],"pagination":{"cursor":"c1"}}`))
			return
		}
		w.Write([]byte(`{"data":[{"id":"s2","user_login":"b","viewer_count":7}],"pagination":{}}`))
	})

	streams, err := api.Streams.GetStreams(helix.StreamsParams{}).All(context.Background())
	require.NoError(t, err)
	require.Len(t, streams, 2)
	assert.Equal(t, "s1", streams[0].ID)
	assert.Equal(t, 12, streams[0].ViewerCount)
	assert.Equal(t, int32(2), requests.Load())
}

func TestGetScheduleAsICalIsRawAndUnauthenticated(t *testing.T) {
	var sawAuth bool
	api, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, sawAuth = r.Header["Authorization"]
		fmt.Fprint(w, "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n")
	})

	ical, err := api.Schedule.GetScheduleAsICal(context.Background(), "44")
	require.NoError(t, err)
	assert.Contains(t, string(ical), "BEGIN:VCALENDAR")
	assert.False(t, sawAuth)
}
