package gateway

import (
	"log"
	"strconv"
	"time"
)

// Broadcast sends data on channel to every client subscribed to it.
// Clients whose send queue is full miss the message; they can backfill
// it through the replay endpoint using channel_seq.
func (h *Hub) Broadcast(channel string, data []byte) {
	now := time.Now().UTC()

	h.mu.Lock()
	h.channelSeqs[channel]++
	channelSeq := h.channelSeqs[channel]
	h.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	h.seq++
	seq := h.seq
	rb, exists := h.replayBufs[channel]
	if !exists {
		rb = NewReplayBuffer(replayLength)
		h.replayBufs[channel] = rb
	}
	h.mu.Unlock()

	buf := buildEnvelope(channel, data, now, seq, channelSeq, false)
	rb.Push(channelSeq, buf)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.matchesChannel(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
			log.Printf("[gateway] send queue full, dropping %s seq=%d", channel, channelSeq)
		}
	}
}

// buildEnvelope renders
// {"channel":"...","data":...,"ts":"...","seq":N,"channel_seq":M[,"initial":true]}.
// data must already be valid JSON; channel names never need escaping.
func buildEnvelope(channel string, data []byte, now time.Time, seq, channelSeq int64, initial bool) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	if initial {
		buf = append(buf, `,"initial":true`...)
	}
	buf = append(buf, '}')
	return buf
}
