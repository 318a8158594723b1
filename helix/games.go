package helix

import (
	"context"
	"net/url"
	"strconv"

	twitchbridge "github.com/opengovern/twitch-bridge"
)

type gameData struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BoxArtURL string `json:"box_art_url"`
	IGDBID    string `json:"igdb_id"`
}

// Game is a game or category on Twitch.
type Game struct {
	ID        string
	Name      string
	BoxArtURL string
	IGDBID    string
}

func mapGame(d gameData) *Game {
	return &Game{ID: d.ID, Name: d.Name, BoxArtURL: d.BoxArtURL, IGDBID: d.IGDBID}
}

// GamesAPI wraps the games resource.
type GamesAPI struct {
	client  *twitchbridge.Client
	batcher *twitchbridge.Batcher[gameData]
}

func newGamesAPI(client *twitchbridge.Client) *GamesAPI {
	return &GamesAPI{
		client: client,
		batcher: twitchbridge.NewBatcher(client, twitchbridge.BatcherConfig[gameData]{
			Path:       "games",
			QueryParam: "id",
			KeyOf:      func(d *gameData) string { return d.ID },
		}),
	}
}

// GetGameByID fetches one game, coalescing concurrent lookups into a single
// multi-ID request. It returns (nil, nil) when the game does not exist.
func (a *GamesAPI) GetGameByID(ctx context.Context, id string) (*Game, error) {
	d, err := a.batcher.Request(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, nil
	}
	return mapGame(*d), nil
}

// GetGamesByIDs fetches up to 100 games in one request.
func (a *GamesAPI) GetGamesByIDs(ctx context.Context, ids []string) ([]*Game, error) {
	query := url.Values{}
	for _, id := range ids {
		query.Add("id", id)
	}
	data, err := getAll[gameData](ctx, a.client, twitchbridge.APIRequest{URL: "games", Query: query})
	if err != nil {
		return nil, err
	}
	games := make([]*Game, 0, len(data))
	for _, d := range data {
		games = append(games, mapGame(d))
	}
	return games, nil
}

// GetTopGames returns a paginator over the most-watched games.
func (a *GamesAPI) GetTopGames(first int) *twitchbridge.Paginator[gameData, *Game] {
	query := url.Values{}
	if first > 0 {
		query.Set("first", strconv.Itoa(first))
	}
	return twitchbridge.NewPaginator(a.client, twitchbridge.APIRequest{
		URL:   "games/top",
		Query: query,
	}, mapGame)
}
