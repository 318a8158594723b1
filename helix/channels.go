package helix

import (
	"context"
	"net/url"
	"time"

	twitchbridge "github.com/opengovern/twitch-bridge"
)

type channelData struct {
	BroadcasterID       string   `json:"broadcaster_id"`
	BroadcasterLogin    string   `json:"broadcaster_login"`
	BroadcasterName     string   `json:"broadcaster_name"`
	BroadcasterLanguage string   `json:"broadcaster_language"`
	GameID              string   `json:"game_id"`
	GameName            string   `json:"game_name"`
	Title               string   `json:"title"`
	Delay               int      `json:"delay"`
	Tags                []string `json:"tags"`
}

// ChannelInfo is a channel's broadcast metadata.
type ChannelInfo struct {
	BroadcasterID       string
	BroadcasterLogin    string
	BroadcasterName     string
	BroadcasterLanguage string
	GameID              string
	GameName            string
	Title               string
	Delay               int
	Tags                []string
}

func mapChannelInfo(d channelData) *ChannelInfo {
	return &ChannelInfo{
		BroadcasterID:       d.BroadcasterID,
		BroadcasterLogin:    d.BroadcasterLogin,
		BroadcasterName:     d.BroadcasterName,
		BroadcasterLanguage: d.BroadcasterLanguage,
		GameID:              d.GameID,
		GameName:            d.GameName,
		Title:               d.Title,
		Delay:               d.Delay,
		Tags:                d.Tags,
	}
}

type followerData struct {
	UserID     string `json:"user_id"`
	UserLogin  string `json:"user_login"`
	UserName   string `json:"user_name"`
	FollowedAt string `json:"followed_at"`
}

// Follower is one entry of a channel's follower list.
type Follower struct {
	UserID     string
	UserLogin  string
	UserName   string
	FollowedAt time.Time
}

func mapFollower(d followerData) *Follower {
	followedAt, _ := time.Parse(time.RFC3339, d.FollowedAt)
	return &Follower{UserID: d.UserID, UserLogin: d.UserLogin, UserName: d.UserName, FollowedAt: followedAt}
}

// ChannelUpdate carries the fields UpdateChannelInfo may change; empty
// fields are left untouched.
type ChannelUpdate struct {
	GameID              string   `json:"game_id,omitempty"`
	BroadcasterLanguage string   `json:"broadcaster_language,omitempty"`
	Title               string   `json:"title,omitempty"`
	Delay               int      `json:"delay,omitempty"`
	Tags                []string `json:"tags,omitempty"`
}

// ChannelsAPI wraps the channels resource.
type ChannelsAPI struct {
	client *twitchbridge.Client
}

// GetChannelInfoByID fetches a channel's broadcast metadata; (nil, nil) when
// the broadcaster does not exist.
func (a *ChannelsAPI) GetChannelInfoByID(ctx context.Context, broadcasterID string) (*ChannelInfo, error) {
	d, err := getFirst[channelData](ctx, a.client, twitchbridge.APIRequest{
		URL:   "channels",
		Query: url.Values{"broadcaster_id": {broadcasterID}},
	})
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, nil
	}
	return mapChannelInfo(*d), nil
}

// UpdateChannelInfo changes a channel's broadcast metadata. Requires the
// channel:manage:broadcast scope on the broadcaster's token.
func (a *ChannelsAPI) UpdateChannelInfo(ctx context.Context, broadcasterID string, update ChannelUpdate) error {
	_, err := a.client.SendRequest(ctx, twitchbridge.APIRequest{
		URL:    "channels",
		Method: "PATCH",
		Query:  url.Values{"broadcaster_id": {broadcasterID}},
		Body:   update,
		Scopes: []string{"channel:manage:broadcast"},
		UserID: broadcasterID,
	})
	return err
}

// GetChannelFollowers returns a paginator over a channel's followers,
// including the reported total. Requires moderator:read:followers; a
// moderator's ambient context may stand in for the broadcaster.
func (a *ChannelsAPI) GetChannelFollowers(broadcasterID string) *twitchbridge.Paginator[followerData, *Follower] {
	return twitchbridge.NewPaginator(a.client, twitchbridge.APIRequest{
		URL:                          "channels/followers",
		Query:                        url.Values{"broadcaster_id": {broadcasterID}},
		Scopes:                       []string{"moderator:read:followers"},
		UserID:                       broadcasterID,
		CanOverrideScopedUserContext: true,
	}, mapFollower)
}
