package eventsub

import (
	"context"
	"encoding/json"
	"time"
)

// ChannelFollowEvent is delivered when a user follows the broadcaster.
type ChannelFollowEvent struct {
	UserID               string    `json:"user_id"`
	UserLogin            string    `json:"user_login"`
	UserName             string    `json:"user_name"`
	BroadcasterUserID    string    `json:"broadcaster_user_id"`
	BroadcasterUserLogin string    `json:"broadcaster_user_login"`
	BroadcasterUserName  string    `json:"broadcaster_user_name"`
	FollowedAt           time.Time `json:"followed_at"`
}

// ChannelBanEvent is delivered when a user is banned or timed out.
type ChannelBanEvent struct {
	UserID               string    `json:"user_id"`
	UserLogin            string    `json:"user_login"`
	UserName             string    `json:"user_name"`
	BroadcasterUserID    string    `json:"broadcaster_user_id"`
	BroadcasterUserLogin string    `json:"broadcaster_user_login"`
	BroadcasterUserName  string    `json:"broadcaster_user_name"`
	ModeratorUserID      string    `json:"moderator_user_id"`
	ModeratorUserLogin   string    `json:"moderator_user_login"`
	ModeratorUserName    string    `json:"moderator_user_name"`
	Reason               string    `json:"reason"`
	BannedAt             time.Time `json:"banned_at"`
	EndsAt               time.Time `json:"ends_at"`
	IsPermanent          bool      `json:"is_permanent"`
}

// ChannelUpdateEvent is delivered when a broadcaster updates channel
// metadata.
type ChannelUpdateEvent struct {
	BroadcasterUserID    string   `json:"broadcaster_user_id"`
	BroadcasterUserLogin string   `json:"broadcaster_user_login"`
	BroadcasterUserName  string   `json:"broadcaster_user_name"`
	Title                string   `json:"title"`
	Language             string   `json:"language"`
	CategoryID           string   `json:"category_id"`
	CategoryName         string   `json:"category_name"`
	ContentLabels        []string `json:"content_classification_labels"`
}

// StreamOnlineEvent is delivered when the broadcaster goes live.
type StreamOnlineEvent struct {
	ID                   string    `json:"id"`
	BroadcasterUserID    string    `json:"broadcaster_user_id"`
	BroadcasterUserLogin string    `json:"broadcaster_user_login"`
	BroadcasterUserName  string    `json:"broadcaster_user_name"`
	Type                 string    `json:"type"`
	StartedAt            time.Time `json:"started_at"`
}

// StreamOfflineEvent is delivered when the broadcaster stops streaming.
type StreamOfflineEvent struct {
	BroadcasterUserID    string `json:"broadcaster_user_id"`
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	BroadcasterUserName  string `json:"broadcaster_user_name"`
}

// ChannelSubscribeEvent is delivered when a user subscribes to the
// broadcaster's channel.
type ChannelSubscribeEvent struct {
	UserID               string `json:"user_id"`
	UserLogin            string `json:"user_login"`
	UserName             string `json:"user_name"`
	BroadcasterUserID    string `json:"broadcaster_user_id"`
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	BroadcasterUserName  string `json:"broadcaster_user_name"`
	Tier                 string `json:"tier"`
	IsGift               bool   `json:"is_gift"`
}

// ChannelRedemptionEvent is delivered when a viewer redeems a channel
// points reward, or when a redemption's status changes.
type ChannelRedemptionEvent struct {
	ID                   string `json:"id"`
	BroadcasterUserID    string `json:"broadcaster_user_id"`
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	BroadcasterUserName  string `json:"broadcaster_user_name"`
	UserID               string `json:"user_id"`
	UserLogin            string `json:"user_login"`
	UserName             string `json:"user_name"`
	UserInput            string `json:"user_input"`
	Status               string `json:"status"`
	Reward               struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Cost   int    `json:"cost"`
		Prompt string `json:"prompt"`
	} `json:"reward"`
	RedeemedAt time.Time `json:"redeemed_at"`
}

// decodeInto wraps a typed handler as a raw-payload handler, logging decode
// failures instead of dropping them silently.
func decodeInto[E any](l *Listener, subscriptionType string, handler func(*E)) func(json.RawMessage) {
	return func(raw json.RawMessage) {
		var event E
		if err := json.Unmarshal(raw, &event); err != nil {
			l.logger.Error("failed to decode event payload", "type", subscriptionType, "error", err)
			return
		}
		handler(&event)
	}
}

// OnChannelFollow subscribes to channel.follow for the broadcaster, observed
// through the given moderator.
func (l *Listener) OnChannelFollow(ctx context.Context, broadcasterID, moderatorID string, handler func(*ChannelFollowEvent)) (*Subscription, error) {
	return l.OnEvent(ctx, "channel.follow", "2", map[string]string{
		"broadcaster_user_id": broadcasterID,
		"moderator_user_id":   moderatorID,
	}, []string{broadcasterID, moderatorID}, decodeInto(l, "channel.follow", handler))
}

// OnChannelBan subscribes to channel.ban for the broadcaster.
func (l *Listener) OnChannelBan(ctx context.Context, broadcasterID string, handler func(*ChannelBanEvent)) (*Subscription, error) {
	return l.OnEvent(ctx, "channel.ban", "1", map[string]string{
		"broadcaster_user_id": broadcasterID,
	}, []string{broadcasterID}, decodeInto(l, "channel.ban", handler))
}

// OnChannelUpdate subscribes to channel.update for the broadcaster.
func (l *Listener) OnChannelUpdate(ctx context.Context, broadcasterID string, handler func(*ChannelUpdateEvent)) (*Subscription, error) {
	return l.OnEvent(ctx, "channel.update", "2", map[string]string{
		"broadcaster_user_id": broadcasterID,
	}, []string{broadcasterID}, decodeInto(l, "channel.update", handler))
}

// OnChannelSubscribe subscribes to channel.subscribe for the broadcaster.
func (l *Listener) OnChannelSubscribe(ctx context.Context, broadcasterID string, handler func(*ChannelSubscribeEvent)) (*Subscription, error) {
	return l.OnEvent(ctx, "channel.subscribe", "1", map[string]string{
		"broadcaster_user_id": broadcasterID,
	}, []string{broadcasterID}, decodeInto(l, "channel.subscribe", handler))
}

// OnStreamOnline subscribes to stream.online for the broadcaster.
func (l *Listener) OnStreamOnline(ctx context.Context, broadcasterID string, handler func(*StreamOnlineEvent)) (*Subscription, error) {
	return l.OnEvent(ctx, "stream.online", "1", map[string]string{
		"broadcaster_user_id": broadcasterID,
	}, []string{broadcasterID}, decodeInto(l, "stream.online", handler))
}

// OnStreamOffline subscribes to stream.offline for the broadcaster.
func (l *Listener) OnStreamOffline(ctx context.Context, broadcasterID string, handler func(*StreamOfflineEvent)) (*Subscription, error) {
	return l.OnEvent(ctx, "stream.offline", "1", map[string]string{
		"broadcaster_user_id": broadcasterID,
	}, []string{broadcasterID}, decodeInto(l, "stream.offline", handler))
}

// OnChannelRedemptionAdd subscribes to new channel points redemptions in the
// broadcaster's channel.
func (l *Listener) OnChannelRedemptionAdd(ctx context.Context, broadcasterID string, handler func(*ChannelRedemptionEvent)) (*Subscription, error) {
	const subscriptionType = "channel.channel_points_custom_reward_redemption.add"
	return l.OnEvent(ctx, subscriptionType, "1", map[string]string{
		"broadcaster_user_id": broadcasterID,
	}, []string{broadcasterID}, decodeInto(l, subscriptionType, handler))
}

// OnChannelRedemptionUpdateForReward subscribes to redemption status updates
// for one specific reward.
func (l *Listener) OnChannelRedemptionUpdateForReward(ctx context.Context, broadcasterID, rewardID string, handler func(*ChannelRedemptionEvent)) (*Subscription, error) {
	const subscriptionType = "channel.channel_points_custom_reward_redemption.update"
	return l.OnEvent(ctx, subscriptionType, "1", map[string]string{
		"broadcaster_user_id": broadcasterID,
		"reward_id":           rewardID,
	}, []string{broadcasterID, rewardID}, decodeInto(l, subscriptionType, handler))
}
