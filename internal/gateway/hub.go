package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"macrodash/internal/metrics"
	"macrodash/internal/model"
)

const (
	sendBuffer   = 64
	replayLength = 32
)

// SeriesChannel is the channel a series refresh is broadcast on.
func SeriesChannel(k model.Key) string { return "series:" + k.Entity + ":" + k.Indicator }

// SeriesEvent is the data of a series refresh envelope.
type SeriesEvent struct {
	Key           model.Key            `json:"key"`
	SeriesID      model.SeriesID       `json:"series_id"`
	FetchedAt     time.Time            `json:"fetched_at"`
	Latest        *model.Point         `json:"latest,omitempty"`
	Points        []model.Point        `json:"points"`
	Decomposition *model.Decomposition `json:"decomposition,omitempty"`
}

// NewSeriesEvent builds the event for a refreshed series.
func NewSeriesEvent(s model.Series, fetchedAt time.Time, dec *model.Decomposition) SeriesEvent {
	ev := SeriesEvent{
		Key:           s.Key,
		SeriesID:      s.ID,
		FetchedAt:     fetchedAt.UTC(),
		Points:        s.Points,
		Decomposition: dec,
	}
	if p, ok := s.Latest(); ok {
		ev.Latest = &p
	}
	if ev.Points == nil {
		ev.Points = []model.Point{}
	}
	return ev
}

// Hub keeps the connected websocket clients and the latest envelope of
// every channel, so late joiners get the current state on connect.
type Hub struct {
	metrics *metrics.Metrics

	mu          sync.RWMutex
	clients     map[*Client]bool
	latest      map[string]latestEntry
	seq         int64
	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates an empty hub.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		metrics:     m,
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
	}
}

// PublishSeries broadcasts a series refresh on its SeriesChannel.
func (h *Hub) PublishSeries(s model.Series, fetchedAt time.Time, dec *model.Decomposition) {
	data, err := json.Marshal(NewSeriesEvent(s, fetchedAt, dec))
	if err != nil {
		log.Printf("[gateway] marshal series event %s: %v", s.Key, err)
		return
	}
	h.Broadcast(SeriesChannel(s.Key), data)
}

// HandleWSRequest registers an upgraded connection and starts its pumps.
// lastTS, if set, limits the initial state to channels updated after it.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, lastTS string) {
	client := newClient(h, conn)
	count := h.addClient(client)
	log.Printf("[gateway] ws client connected (%d total)", count)

	client.sendInitialState(lastTS)
	go client.writePump()
	go client.readPump()
}

func (h *Hub) addClient(c *Client) int {
	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetWSClients(count)
	return count
}

// RemoveClient removes a client from the hub and closes its send queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()
	h.metrics.SetWSClients(count)
}

// GetLatestAll returns a snapshot of the latest data per channel.
func (h *Hub) GetLatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// GetReplayRange returns buffered envelopes for a channel in [fromSeq, toSeq].
func (h *Hub) GetReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	result := make([][]byte, len(entries))
	for i, e := range entries {
		result[i] = e.Data
	}
	return result
}

// GetChannelSeq returns the current sequence number for a channel.
func (h *Hub) GetChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.RemoveClient(c)
	}
}
