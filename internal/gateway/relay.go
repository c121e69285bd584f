package gateway

import (
	"context"
	"log"

	"macrodash/internal/model"
	"macrodash/internal/store/redis"
)

// refreshSource is the subscribing half of the Redis reader.
type refreshSource interface {
	SubscribeRefreshes(ctx context.Context, out chan<- redis.Payload) error
}

// exportSource reads back the last export of a key: the Redis reader or
// the SQLite export reader.
type exportSource interface {
	ReadExport(ctx context.Context, key model.Key) (model.Export, bool, error)
}

// Seed publishes the last stored export of each key, so clients connecting
// before the first refresh still get initial state. Returns the number of
// keys seeded.
func (h *Hub) Seed(ctx context.Context, src exportSource, keys []model.Key) int {
	n := 0
	for _, k := range keys {
		e, ok, err := src.ReadExport(ctx, k)
		if err != nil {
			log.Printf("[gateway] seed %s: %v", k, err)
			continue
		}
		if !ok {
			continue
		}
		h.PublishSeries(e.Series, e.FetchedAt, e.Decomposition)
		n++
	}
	return n
}

// RelayRedis forwards refreshes announced on Redis to websocket clients, so
// exports made by other processes (such as a fetchall run) reach browsers.
// Blocks until ctx is cancelled.
func (h *Hub) RelayRedis(ctx context.Context, src refreshSource) {
	ch := make(chan redis.Payload, 64)
	errCh := make(chan error, 1)
	go func() { errCh <- src.SubscribeRefreshes(ctx, ch) }()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				log.Printf("[gateway] redis relay stopped: %v", err)
			}
			return
		case p := <-ch:
			h.PublishSeries(p.Series(), p.FetchedAt, p.Decomposition)
		}
	}
}
