package helix

import (
	"context"
	"net/url"
	"strconv"
	"time"

	twitchbridge "github.com/opengovern/twitch-bridge"
)

type streamData struct {
	ID           string   `json:"id"`
	UserID       string   `json:"user_id"`
	UserLogin    string   `json:"user_login"`
	UserName     string   `json:"user_name"`
	GameID       string   `json:"game_id"`
	GameName     string   `json:"game_name"`
	Type         string   `json:"type"`
	Title        string   `json:"title"`
	ViewerCount  int      `json:"viewer_count"`
	StartedAt    string   `json:"started_at"`
	Language     string   `json:"language"`
	ThumbnailURL string   `json:"thumbnail_url"`
	Tags         []string `json:"tags"`
	IsMature     bool     `json:"is_mature"`
}

// Stream is a live broadcast.
type Stream struct {
	ID           string
	UserID       string
	UserLogin    string
	UserName     string
	GameID       string
	GameName     string
	Type         string
	Title        string
	ViewerCount  int
	StartedAt    time.Time
	Language     string
	ThumbnailURL string
	Tags         []string
	IsMature     bool
}

func mapStream(d streamData) *Stream {
	startedAt, _ := time.Parse(time.RFC3339, d.StartedAt)
	return &Stream{
		ID:           d.ID,
		UserID:       d.UserID,
		UserLogin:    d.UserLogin,
		UserName:     d.UserName,
		GameID:       d.GameID,
		GameName:     d.GameName,
		Type:         d.Type,
		Title:        d.Title,
		ViewerCount:  d.ViewerCount,
		StartedAt:    startedAt,
		Language:     d.Language,
		ThumbnailURL: d.ThumbnailURL,
		Tags:         d.Tags,
		IsMature:     d.IsMature,
	}
}

// StreamsParams filters GetStreams.
type StreamsParams struct {
	UserIDs    []string
	UserLogins []string
	GameIDs    []string
	Type       string // "all" or "live"
	Language   string
	First      int
}

// StreamsAPI wraps the streams resource.
type StreamsAPI struct {
	client *twitchbridge.Client
}

// GetStreams returns a paginator over live streams matching the filters.
func (a *StreamsAPI) GetStreams(params StreamsParams) *twitchbridge.Paginator[streamData, *Stream] {
	query := url.Values{}
	for _, id := range params.UserIDs {
		query.Add("user_id", id)
	}
	for _, login := range params.UserLogins {
		query.Add("user_login", login)
	}
	for _, id := range params.GameIDs {
		query.Add("game_id", id)
	}
	if params.Type != "" {
		query.Set("type", params.Type)
	}
	if params.Language != "" {
		query.Set("language", params.Language)
	}
	if params.First > 0 {
		query.Set("first", strconv.Itoa(params.First))
	}
	return twitchbridge.NewPaginator(a.client, twitchbridge.APIRequest{
		URL:   "streams",
		Query: query,
	}, mapStream)
}

// GetStreamByUserID fetches the user's live stream; (nil, nil) when offline.
func (a *StreamsAPI) GetStreamByUserID(ctx context.Context, userID string) (*Stream, error) {
	d, err := getFirst[streamData](ctx, a.client, twitchbridge.APIRequest{
		URL:   "streams",
		Query: url.Values{"user_id": {userID}},
	})
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, nil
	}
	return mapStream(*d), nil
}

// GetFollowedStreams returns a paginator over live channels the user
// follows. Requires the user:read:follows scope.
func (a *StreamsAPI) GetFollowedStreams(userID string) *twitchbridge.Paginator[streamData, *Stream] {
	return twitchbridge.NewPaginator(a.client, twitchbridge.APIRequest{
		URL:    "streams/followed",
		Query:  url.Values{"user_id": {userID}},
		Scopes: []string{"user:read:follows"},
		UserID: userID,
	}, mapStream)
}
