package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"macrodash/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr     string
	Password string
	DB       int
}

// Reader reads exported series back and follows refresh announcements.
type Reader struct {
	client *goredis.Client
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis-reader] connected to %s", cfg.Addr)
	return &Reader{client: client}, nil
}

// ReadLatest returns the latest exported payload for key.
// ok is false when the key is absent or expired.
func (r *Reader) ReadLatest(ctx context.Context, key model.Key) (Payload, bool, error) {
	data, err := r.client.Get(ctx, LatestKey(key)).Bytes()
	if err == goredis.Nil {
		return Payload{}, false, nil
	}
	if err != nil {
		return Payload{}, false, fmt.Errorf("redis GET %s: %w", LatestKey(key), err)
	}
	p, err := DecodePayload(data)
	if err != nil {
		return Payload{}, false, err
	}
	return p, true, nil
}

// ReadExport is ReadLatest in the shape the exporter wrote.
func (r *Reader) ReadExport(ctx context.Context, key model.Key) (model.Export, bool, error) {
	p, ok, err := r.ReadLatest(ctx, key)
	if err != nil || !ok {
		return model.Export{}, ok, err
	}
	return p.Export(), true, nil
}

// SubscribeRefreshes forwards every payload published on ChannelPattern to
// out until ctx is cancelled. Undecodable messages are skipped; a full out
// drops the message.
func (r *Reader) SubscribeRefreshes(ctx context.Context, out chan<- Payload) error {
	pubsub := r.client.PSubscribe(ctx, ChannelPattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis PSUBSCRIBE %s: %w", ChannelPattern, err)
	}
	log.Printf("[redis-reader] subscribed to %s", ChannelPattern)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			p, err := DecodePayload([]byte(msg.Payload))
			if err != nil {
				log.Printf("[redis-reader] skipping message on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case out <- p:
			default:
			}
		}
	}
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}
