package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisTransport shares notifications between instances over Redis pub/sub,
// one channel per room.
type RedisTransport struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewRedisTransport(client *redis.Client, log zerolog.Logger) *RedisTransport {
	return &RedisTransport{
		client: client,
		log:    log.With().Str("component", "redis_transport").Logger(),
	}
}

// NewRedisClient parses url, connects and pings.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func channelName(room uuid.UUID) string {
	return "room:" + room.String()
}

func (t *RedisTransport) Publish(ctx context.Context, n Notified) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := t.client.Publish(ctx, channelName(n.Room), data).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

func (t *RedisTransport) Subscribe(ctx context.Context, room uuid.UUID, deliver func(Notified), lost func(error)) (io.Closer, error) {
	ps := t.client.Subscribe(ctx, channelName(room))

	// Wait for the subscription confirmation so nothing published after return is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channelName(room), err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	closer := closerFunc(func() error {
		var err error
		once.Do(func() {
			cancel()
			err = ps.Close()
		})
		return err
	})

	go func() {
		for {
			msg, err := ps.ReceiveMessage(loopCtx)
			if err != nil {
				if loopCtx.Err() != nil {
					return
				}
				// go-redis reconnects silently; anything published meanwhile is gone.
				t.log.Warn().Err(err).Str("room", room.String()).Msg("pubsub receive failed")
				_ = closer.Close()
				lost(fmt.Errorf("%w: %v", ErrTransportLost, err))
				return
			}

			var n Notified
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				t.log.Warn().Err(err).Str("room", room.String()).Msg("dropping malformed notification")
				continue
			}
			deliver(n)
		}
	}()

	return closer, nil
}
