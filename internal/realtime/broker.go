package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dimitrije/teamboard/internal/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis channel shared by every API instance.
const DefaultChannel = "teamboard:tasks"

// Broker delivers a task change to every subscriber of a team.
type Broker interface {
	Publish(ctx context.Context, teamID uuid.UUID, change Change) error
}

// LocalBroker hands changes straight to the in-process hub.
type LocalBroker struct {
	hub *Hub
}

func NewLocalBroker(hub *Hub) *LocalBroker {
	return &LocalBroker{hub: hub}
}

func (b *LocalBroker) Publish(_ context.Context, teamID uuid.UUID, change Change) error {
	b.hub.Broadcast(teamID, change)
	return nil
}

type envelope struct {
	TeamID uuid.UUID `json:"team_id"`
	Change Change    `json:"change"`
}

// RedisBroker publishes through Redis pub/sub so that changes written on one instance reach
// clients connected to any instance. Run must be running for local delivery.
type RedisBroker struct {
	client  redis.UniversalClient
	hub     *Hub
	channel string
	logger  *slog.Logger
}

func NewRedisBroker(client redis.UniversalClient, hub *Hub, logger *slog.Logger) *RedisBroker {
	return &RedisBroker{
		client:  client,
		hub:     hub,
		channel: DefaultChannel,
		logger:  logger,
	}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func (b *RedisBroker) Publish(ctx context.Context, teamID uuid.UUID, change Change) error {
	payload, err := json.Marshal(envelope{TeamID: teamID, Change: change})
	if err != nil {
		return fmt.Errorf("failed to encode change: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}
	return nil
}

// Start runs the fan-out loop in the background. The returned channel
// yields the error that ended it and is closed once the loop returns.
func (b *RedisBroker) Start(ctx context.Context) <-chan error {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		if err := b.Run(ctx); err != nil {
			errc <- err
		}
	}()
	return errc
}

// Run subscribes to the shared channel and forwards every message into the hub until ctx ends.
func (b *RedisBroker) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("dropping malformed change", logger.Err(err))
				continue
			}
			b.hub.Broadcast(env.TeamID, env.Change)
		}
	}
}
