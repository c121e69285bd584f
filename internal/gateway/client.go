package gateway

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Channel prefixes the client asked for; empty means everything.
	subMu sync.RWMutex
	subs  map[string]bool
}

// controlMsg is what clients may send.
//
//	{"type":"SUBSCRIBE","channels":["series:GH:"]}
//	{"type":"UNSUBSCRIBE","channels":["series:GH:"]}
//	{"ping":1700000000000}
type controlMsg struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels"`
	Ping     int64    `json:"ping"`
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		hub:  h,
		subs: make(map[string]bool),
	}
}

func (c *Client) sendInitialState(lastTS string) {
	var cutoff time.Time
	if lastTS != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, lastTS); err == nil {
			cutoff = parsed
		}
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	for channel, entry := range c.hub.latest {
		if !cutoff.IsZero() && !entry.TS.After(cutoff) {
			continue
		}
		if !c.matchesChannel(channel) {
			continue
		}
		select {
		case c.send <- buildEnvelope(channel, entry.Data, entry.TS, c.hub.seq, entry.Seq, true):
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleControl(msg)
	}
}

func (c *Client) handleControl(raw []byte) {
	var msg controlMsg
	if json.Unmarshal(raw, &msg) != nil {
		return
	}

	switch msg.Type {
	case "SUBSCRIBE":
		c.subMu.Lock()
		for _, ch := range msg.Channels {
			if ch = strings.TrimSpace(ch); ch != "" {
				c.subs[ch] = true
			}
		}
		c.subMu.Unlock()
		// catch up on what the new subscription covers
		c.sendInitialState("")

	case "UNSUBSCRIBE":
		c.subMu.Lock()
		for _, ch := range msg.Channels {
			delete(c.subs, strings.TrimSpace(ch))
		}
		c.subMu.Unlock()

	default:
		if msg.Ping > 0 {
			pong, _ := json.Marshal(map[string]interface{}{
				"type":      "pong",
				"ping":      msg.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			select {
			case c.send <- pong:
			default:
			}
		}
	}
}

// matchesChannel reports whether the client should receive channel.
// Subscriptions are prefixes, so "series:GH:" covers every GH series.
func (c *Client) matchesChannel(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	if len(c.subs) == 0 {
		return true
	}
	for prefix := range c.subs {
		if strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}
