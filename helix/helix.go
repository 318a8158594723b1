// Package helix provides typed wrappers for a representative set of Twitch
// Helix endpoints. Each wrapper is a thin request builder over the core
// dispatch pipeline; list endpoints return paginators and single-ID lookups
// go through the coalescing batcher.
package helix

import (
	"context"

	twitchbridge "github.com/opengovern/twitch-bridge"
)

// API groups the per-resource endpoint wrappers around one core client.
type API struct {
	client *twitchbridge.Client

	Users      *UsersAPI
	Games      *GamesAPI
	Streams    *StreamsAPI
	Channels   *ChannelsAPI
	Schedule   *ScheduleAPI
	EventSub   *EventSubAPI
	Moderation *ModerationAPI
}

// New wires the endpoint wrappers to the given client.
func New(client *twitchbridge.Client) *API {
	api := &API{client: client}
	api.Users = newUsersAPI(client)
	api.Games = newGamesAPI(client)
	api.Streams = &StreamsAPI{client: client}
	api.Channels = &ChannelsAPI{client: client}
	api.Schedule = &ScheduleAPI{client: client}
	api.EventSub = &EventSubAPI{client: client}
	api.Moderation = &ModerationAPI{client: client}
	return api
}

// Client returns the underlying core client.
func (a *API) Client() *twitchbridge.Client {
	return a.client
}

// AsUser returns an API view whose calls run in the given user's ambient
// context.
func (a *API) AsUser(userID string) *API {
	return New(a.client.WithContextUser(userID))
}

// getFirst runs a request expecting the standard data envelope and returns
// the first entry, or nil when the envelope is empty.
func getFirst[D any](ctx context.Context, client *twitchbridge.Client, req twitchbridge.APIRequest) (*D, error) {
	var envelope struct {
		Data []D `json:"data"`
	}
	if err := client.CallJSON(ctx, req, &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Data) == 0 {
		return nil, nil
	}
	return &envelope.Data[0], nil
}

// getAll runs a request expecting the standard data envelope and returns all
// entries.
func getAll[D any](ctx context.Context, client *twitchbridge.Client, req twitchbridge.APIRequest) ([]D, error) {
	var envelope struct {
		Data []D `json:"data"`
	}
	if err := client.CallJSON(ctx, req, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}
