package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes registers the websocket endpoint and its REST companions.
func RegisterRoutes(mux *http.ServeMux, hub *Hub) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		hub.HandleWSRequest(conn, r.URL.Query().Get("last_ts"))
	})

	// latest data per channel
	mux.HandleFunc("/api/v1/live/latest", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hub.GetLatestAll())
	})

	// gap backfill: ?channel=series:GH:inflation&from=3&to=5
	mux.HandleFunc("/api/v1/live/missed", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		q := r.URL.Query()
		channel := q.Get("channel")
		from, errFrom := strconv.ParseInt(q.Get("from"), 10, 64)
		to, errTo := strconv.ParseInt(q.Get("to"), 10, 64)
		if channel == "" || errFrom != nil || errTo != nil || from > to {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "channel, from and to are required"})
			return
		}

		envelopes := hub.GetReplayRange(channel, from, to)
		out := make([]json.RawMessage, len(envelopes))
		for i, e := range envelopes {
			out[i] = e
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"channel":     channel,
			"current_seq": hub.GetChannelSeq(channel),
			"envelopes":   out,
		})
	})
}
