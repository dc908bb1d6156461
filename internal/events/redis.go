package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"telegram-casino-bot/internal/lobby"
)

// SnapshotTTL bounds how long the last snapshot of a scope is kept.
const SnapshotTTL = 30 * time.Minute

// redisClient is the subset of *redis.Client the broadcaster needs.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisBroadcaster publishes session snapshots per chat scope for renderers,
// and keeps the latest one under a key for late subscribers.
type RedisBroadcaster struct {
	client redisClient
	prefix string
}

// NewRedisBroadcaster creates a broadcaster. prefix namespaces channels and keys.
func NewRedisBroadcaster(client redisClient, prefix string) *RedisBroadcaster {
	if prefix == "" {
		prefix = "lobby"
	}
	return &RedisBroadcaster{client: client, prefix: prefix}
}

// Channel returns the pub/sub channel of a scope.
func (b *RedisBroadcaster) Channel(scopeKey string) string {
	return b.prefix + ":" + scopeKey
}

// SnapshotKey returns the key holding the latest snapshot of a scope.
func (b *RedisBroadcaster) SnapshotKey(scopeKey string) string {
	return b.prefix + ":snapshot:" + scopeKey
}

// Broadcast publishes e and stores it as the scope's latest snapshot.
func (b *RedisBroadcaster) Broadcast(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, b.Channel(e.ScopeKey), payload).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	if err := b.client.Set(ctx, b.SnapshotKey(e.ScopeKey), payload, SnapshotTTL).Err(); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// OnPhaseChange implements lobby.PhaseListener.
func (b *RedisBroadcaster) OnPhaseChange(ctx context.Context, change lobby.PhaseChange) {
	if err := b.Broadcast(ctx, PhaseEvent(change)); err != nil {
		log.Warn().Err(err).
			Str("session_id", change.SessionID).
			Str("scope_key", change.ScopeKey).
			Msg("Failed to broadcast phase change")
	}
}

// OnParticipantJoined implements lobby.ParticipantListener.
func (b *RedisBroadcaster) OnParticipantJoined(ctx context.Context, view lobby.SessionView, stake lobby.Stake) {
	if err := b.Broadcast(ctx, JoinEvent(view, stake)); err != nil {
		log.Warn().Err(err).
			Str("session_id", view.ID).
			Str("scope_key", view.ScopeKey).
			Msg("Failed to broadcast join")
	}
}
