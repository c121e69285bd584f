package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"macrodash/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const defaultLatestTTL = 24 * time.Hour

// ChannelPattern matches every series refresh channel.
const ChannelPattern = "pub:series:*"

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	// TTL bounds how long the latest copy of a series lives in Redis.
	TTL time.Duration
}

// LatestKey is the key holding the latest export of a series.
func LatestKey(k model.Key) string { return "series:" + k.Entity + ":" + k.Indicator }

// Channel is the pubsub channel a series refresh is announced on.
func Channel(k model.Key) string { return "pub:series:" + k.Entity + ":" + k.Indicator }

// Payload is the JSON document stored at LatestKey and published on Channel.
type Payload struct {
	Key           model.Key            `json:"key"`
	SeriesID      model.SeriesID       `json:"series_id"`
	FetchedAt     time.Time            `json:"fetched_at"`
	Points        []model.Point        `json:"points"`
	Decomposition *model.Decomposition `json:"decomposition,omitempty"`
}

// Series rebuilds the canonical series carried by p.
func (p Payload) Series() model.Series {
	return model.Series{Key: p.Key, ID: p.SeriesID, Points: p.Points}
}

// Export converts the payload back to the export it was encoded from.
func (p Payload) Export() model.Export {
	return model.Export{Series: p.Series(), FetchedAt: p.FetchedAt, Decomposition: p.Decomposition}
}

// EncodePayload renders an export as the wire payload.
func EncodePayload(e model.Export) ([]byte, error) {
	return json.Marshal(Payload{
		Key:           e.Series.Key,
		SeriesID:      e.Series.ID,
		FetchedAt:     e.FetchedAt.UTC(),
		Points:        e.Series.Points,
		Decomposition: e.Decomposition,
	})
}

// DecodePayload parses a payload read from Redis.
func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("redis: decode payload: %w", err)
	}
	return p, nil
}

// Writer stores the latest copy of each series and announces refreshes.
type Writer struct {
	client *goredis.Client
	ttl    time.Duration
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
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

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultLatestTTL
	}
	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client, ttl: ttl}, nil
}

// Write sets the latest copy of key and publishes it in one pipeline.
func (w *Writer) Write(ctx context.Context, key model.Key, data []byte) error {
	jsonData := string(data)

	pipe := w.client.Pipeline()
	pipe.Set(ctx, LatestKey(key), jsonData, w.ttl)
	pipe.Publish(ctx, Channel(key), jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] pipeline error for %s: %v", key, err)
		return err
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
