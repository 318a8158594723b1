package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/codingconcepts/env"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	twitchbridge "github.com/opengovern/twitch-bridge"
	"github.com/opengovern/twitch-bridge/auth"
	"github.com/opengovern/twitch-bridge/eventsub"
	"github.com/opengovern/twitch-bridge/helix"
)

type Config struct {
	BindAddr   string `env:"BIND_ADDR"`
	ListenPort uint16 `env:"LISTEN_PORT" default:"5004"`

	TwitchChannelName   string `env:"TWITCH_CHANNEL_NAME" required:"true"`
	TwitchClientId      string `env:"TWITCH_CLIENT_ID" required:"true"`
	TwitchClientSecret  string `env:"TWITCH_CLIENT_SECRET" required:"true"`
	TwitchWebhookSecret string `env:"TWITCH_WEBHOOK_SECRET"`

	// PublicOrigin is the externally reachable HTTPS origin that Twitch
	// calls back, e.g. an ngrok tunnel during development.
	PublicOrigin string `env:"PUBLIC_ORIGIN" required:"true"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Parse config from environment variables
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fail(logger, "Failed to load .env file", err)
	}
	config := Config{}
	if err := env.Set(&config); err != nil {
		fail(logger, "Failed to load config", err)
	}
	if config.TwitchWebhookSecret == "" {
		// Without a configured secret, mint one for the lifetime of this
		// process; resumption across restarts then won't verify.
		config.TwitchWebhookSecret = uuid.NewString()
		logger.Warn("TWITCH_WEBHOOK_SECRET not set; using an ephemeral secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize a Helix client with an app access token, then use it to
	// resolve the Twitch user ID of our desired channel
	provider := auth.NewAppTokenProvider(config.TwitchClientId, config.TwitchClientSecret, "")
	client, err := twitchbridge.NewClient(twitchbridge.ClientConfig{
		AuthProvider: provider,
		Logger:       logger,
	})
	if err != nil {
		fail(logger, "Failed to initialize Twitch API client", err)
	}
	api := helix.New(client)

	channel, err := api.Users.GetUserByLogin(ctx, config.TwitchChannelName)
	if err != nil {
		fail(logger, fmt.Sprintf("Failed to resolve Twitch user ID for channel '%s'", config.TwitchChannelName), err)
	}
	if channel == nil {
		fail(logger, fmt.Sprintf("No Twitch user exists with login '%s'", config.TwitchChannelName), nil)
	}
	logger.Info("Initialized broadcaster channel details",
		"channelName", config.TwitchChannelName,
		"channelUserId", channel.ID,
	)

	// Prepare an EventSub listener that Twitch can reach at PublicOrigin
	listener, err := eventsub.NewListener(eventsub.ListenerConfig{
		API:     api,
		Secret:  config.TwitchWebhookSecret,
		BaseURL: config.PublicOrigin,
		Logger:  logger,
	})
	if err != nil {
		fail(logger, "Failed to initialize EventSub listener", err)
	}
	listener.OnVerify(func(sub *eventsub.Subscription) {
		logger.Info("Subscription is now receiving notifications", "subscription", sub.ID())
	})
	listener.OnRevoke(func(sub *eventsub.Subscription) {
		logger.Warn("Subscription was revoked by Twitch", "subscription", sub.ID())
	})

	// Register handlers before starting, so existing Twitch-side
	// subscriptions can be resumed instead of recreated
	if _, err := listener.OnStreamOnline(ctx, channel.ID, func(ev *eventsub.StreamOnlineEvent) {
		logger.Info("Stream went online", "broadcaster", ev.BroadcasterUserLogin, "startedAt", ev.StartedAt)
	}); err != nil {
		fail(logger, "Failed to register stream.online handler", err)
	}
	if _, err := listener.OnStreamOffline(ctx, channel.ID, func(ev *eventsub.StreamOfflineEvent) {
		logger.Info("Stream went offline", "broadcaster", ev.BroadcasterUserLogin)
	}); err != nil {
		fail(logger, "Failed to register stream.offline handler", err)
	}
	if _, err := listener.OnChannelUpdate(ctx, channel.ID, func(ev *eventsub.ChannelUpdateEvent) {
		logger.Info("Channel was updated", "title", ev.Title, "category", ev.CategoryName)
	}); err != nil {
		fail(logger, "Failed to register channel.update handler", err)
	}
	if _, err := listener.OnChannelFollow(ctx, channel.ID, channel.ID, func(ev *eventsub.ChannelFollowEvent) {
		logger.Info("New follower", "user", ev.UserLogin, "followedAt", ev.FollowedAt)
	}); err != nil {
		fail(logger, "Failed to register channel.follow handler", err)
	}

	addr := fmt.Sprintf("%s:%d", config.BindAddr, config.ListenPort)
	logger.Info("Listening for EventSub deliveries", "addr", addr, "origin", config.PublicOrigin)
	if err := listener.Listen(ctx, addr); err != nil && err != http.ErrServerClosed {
		fail(logger, "EventSub listener terminated abnormally", err)
	}
	logger.Info("Shut down cleanly")
}

func fail(logger *slog.Logger, msg string, err error) {
	if err != nil {
		logger.Error(msg, "error", err)
	} else {
		logger.Error(msg)
	}
	os.Exit(1)
}
