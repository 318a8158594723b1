package helix

import (
	"context"
	"net/url"
	"time"

	twitchbridge "github.com/opengovern/twitch-bridge"
)

type userData struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	Type            string `json:"type"`
	BroadcasterType string `json:"broadcaster_type"`
	Description     string `json:"description"`
	ProfileImageURL string `json:"profile_image_url"`
	OfflineImageURL string `json:"offline_image_url"`
	CreatedAt       string `json:"created_at"`
}

// User is a Twitch user account.
type User struct {
	ID              string
	Login           string
	DisplayName     string
	Type            string
	BroadcasterType string
	Description     string
	ProfileImageURL string
	OfflineImageURL string
	CreatedAt       time.Time
}

func mapUser(d userData) *User {
	createdAt, _ := time.Parse(time.RFC3339, d.CreatedAt)
	return &User{
		ID:              d.ID,
		Login:           d.Login,
		DisplayName:     d.DisplayName,
		Type:            d.Type,
		BroadcasterType: d.BroadcasterType,
		Description:     d.Description,
		ProfileImageURL: d.ProfileImageURL,
		OfflineImageURL: d.OfflineImageURL,
		CreatedAt:       createdAt,
	}
}

// UsersAPI wraps the users resource. Single-ID lookups are coalesced through
// the batcher.
type UsersAPI struct {
	client  *twitchbridge.Client
	batcher *twitchbridge.Batcher[userData]
}

func newUsersAPI(client *twitchbridge.Client) *UsersAPI {
	return &UsersAPI{
		client: client,
		batcher: twitchbridge.NewBatcher(client, twitchbridge.BatcherConfig[userData]{
			Path:       "users",
			QueryParam: "id",
			KeyOf:      func(d *userData) string { return d.ID },
		}),
	}
}

// GetUserByID fetches one user, coalescing concurrent lookups into a single
// multi-ID request. It returns (nil, nil) when the user does not exist.
func (a *UsersAPI) GetUserByID(ctx context.Context, id string) (*User, error) {
	d, err := a.batcher.Request(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, nil
	}
	return mapUser(*d), nil
}

// GetUsersByIDs fetches up to 100 users in one request.
func (a *UsersAPI) GetUsersByIDs(ctx context.Context, ids []string) ([]*User, error) {
	query := url.Values{}
	for _, id := range ids {
		query.Add("id", id)
	}
	data, err := getAll[userData](ctx, a.client, twitchbridge.APIRequest{URL: "users", Query: query})
	if err != nil {
		return nil, err
	}
	users := make([]*User, 0, len(data))
	for _, d := range data {
		users = append(users, mapUser(d))
	}
	return users, nil
}

// GetUserByLogin fetches one user by login name; (nil, nil) when absent.
func (a *UsersAPI) GetUserByLogin(ctx context.Context, login string) (*User, error) {
	d, err := getFirst[userData](ctx, a.client, twitchbridge.APIRequest{
		URL:   "users",
		Query: url.Values{"login": {login}},
	})
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, nil
	}
	return mapUser(*d), nil
}

// UpdateUser updates the authenticated user's description.
func (a *UsersAPI) UpdateUser(ctx context.Context, userID, description string) (*User, error) {
	d, err := getFirst[userData](ctx, a.client, twitchbridge.APIRequest{
		URL:    "users",
		Method: "PUT",
		Query:  url.Values{"description": {description}},
		Scopes: []string{"user:edit"},
		UserID: userID,
	})
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, nil
	}
	return mapUser(*d), nil
}
