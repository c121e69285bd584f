package redis

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"

	"macrodash/internal/model"
)

// payloadWriter is the part of Writer the sink needs.
type payloadWriter interface {
	Write(ctx context.Context, key model.Key, data []byte) error
}

// Sink is the Redis export sink. Writes go through a circuit breaker; while
// the breaker is open the latest payload per key is held back and replayed
// after the next write that succeeds. Only the latest payload matters since
// each write replaces the stored copy.
type Sink struct {
	writer payloadWriter
	cb     *CircuitBreaker

	mu      sync.Mutex
	pending map[model.Key][]byte
	order   []model.Key

	// Callbacks. pending is the number of keys still held afterwards.
	OnBuffer func(pending int)           // a write was held back
	OnFlush  func(replayed, pending int) // a replay pass finished
}

// NewSink wraps w with cb.
func NewSink(w payloadWriter, cb *CircuitBreaker) *Sink {
	return &Sink{
		writer:  w,
		cb:      cb,
		pending: make(map[model.Key][]byte),
	}
}

// Name identifies the sink in logs and metrics.
func (s *Sink) Name() string { return "redis" }

// Export writes e through the breaker. A write rejected by an open breaker
// is held back and reported as success.
func (s *Sink) Export(ctx context.Context, e model.Export) error {
	data, err := EncodePayload(e)
	if err != nil {
		return err
	}
	key := e.Series.Key

	err = s.cb.Execute(func() error { return s.writer.Write(ctx, key, data) })
	switch {
	case errors.Is(err, ErrCircuitOpen):
		s.hold(key, data)
		return nil
	case err != nil:
		return err
	}

	s.flush(ctx, key)
	return nil
}

func (s *Sink) hold(key model.Key, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[key]; !ok {
		s.order = append(s.order, key)
	}
	s.pending[key] = data

	if s.OnBuffer != nil {
		s.OnBuffer(len(s.order))
	}
}

// flush replays held writes, skipping the key that was just written.
func (s *Sink) flush(ctx context.Context, written model.Key) {
	s.mu.Lock()
	if len(s.order) == 0 {
		s.mu.Unlock()
		return
	}
	order, pending := s.order, s.pending
	s.order, s.pending = nil, make(map[model.Key][]byte)
	s.mu.Unlock()

	flushed := 0
	for i, key := range order {
		if key == written {
			continue
		}
		if err := s.cb.Execute(func() error { return s.writer.Write(ctx, key, pending[key]) }); err != nil {
			s.requeue(order[i:], pending, written)
			log.Printf("[redis-sink] replay stopped after %d writes: %v", flushed, err)
			break
		}
		flushed++
	}

	if flushed > 0 {
		log.Printf("[redis-sink] replayed %d held writes", flushed)
	}
	if s.OnFlush != nil {
		s.OnFlush(flushed, s.PendingCount())
	}
}

// requeue puts back replays that did not happen unless a newer payload
// was held in the meantime.
func (s *Sink) requeue(keys []model.Key, pending map[model.Key][]byte, skip model.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if k == skip {
			continue
		}
		if _, ok := s.pending[k]; ok {
			continue
		}
		s.order = append(s.order, k)
		s.pending[k] = pending[k]
	}
}

// PendingCount returns the number of keys waiting to be replayed.
func (s *Sink) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Close closes the underlying writer.
func (s *Sink) Close() error {
	if c, ok := s.writer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
