package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// sseRingBufferSize is how many recent events are kept for
	// Last-Event-ID replay.
	sseRingBufferSize = 1000

	// sseKeepaliveInterval is how often a comment line is written to idle
	// streams.
	sseKeepaliveInterval = 15 * time.Second

	// sseClientBuffer is the per-client queue; a full queue drops events.
	sseClientBuffer = 64
)

// sseEvent is one entry in the ring buffer and on the wire.
type sseEvent struct {
	Seq  uint64 // hub sequence number, sent as the SSE id
	Name string // event name, sent as the SSE event type
	Data []byte // JSON-encoded events.Published
}

// sseHub fans published events out to connected stream clients.
type sseHub struct {
	mu      sync.RWMutex
	clients map[*sseClient]struct{}
	nextSeq atomic.Uint64

	ringMu  sync.RWMutex
	ring    [sseRingBufferSize]sseEvent
	ringPos int
	ringLen int
}

// sseClient is a single connected stream consumer.
type sseClient struct {
	patterns []string // empty matches every name
	ch       chan *sseEvent
}

func newSSEHub() *sseHub {
	return &sseHub{
		clients: make(map[*sseClient]struct{}),
	}
}

// broadcast records the event and offers it to every matching client
// without blocking.
func (h *sseHub) broadcast(name string, data []byte) {
	evt := &sseEvent{
		Seq:  h.nextSeq.Add(1),
		Name: name,
		Data: data,
	}

	h.ringMu.Lock()
	h.ring[h.ringPos] = *evt
	h.ringPos = (h.ringPos + 1) % sseRingBufferSize
	if h.ringLen < sseRingBufferSize {
		h.ringLen++
	}
	h.ringMu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.matches(name) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
		}
	}
}

func (h *sseHub) subscribe(patterns []string) *sseClient {
	c := &sseClient{
		patterns: patterns,
		ch:       make(chan *sseEvent, sseClientBuffer),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// clientCount is used by tests to wait for a stream to attach.
func (h *sseHub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// eventsSince returns buffered events with Seq > last, oldest first.
func (h *sseHub) eventsSince(last uint64) []*sseEvent {
	h.ringMu.RLock()
	defer h.ringMu.RUnlock()

	var out []*sseEvent
	start := h.ringPos - h.ringLen
	if start < 0 {
		start += sseRingBufferSize
	}
	for i := range h.ringLen {
		evt := h.ring[(start+i)%sseRingBufferSize]
		if evt.Seq > last {
			out = append(out, &evt)
		}
	}
	return out
}

func (c *sseClient) matches(name string) bool {
	if len(c.patterns) == 0 {
		return true
	}
	for _, p := range c.patterns {
		if matchNamePattern(p, name) {
			return true
		}
	}
	return false
}

// matchNamePattern matches a dot-separated event name. "*" matches exactly
// one segment and a trailing ">" matches one or more remaining segments.
func matchNamePattern(pattern, name string) bool {
	if pattern == name {
		return true
	}

	patParts := strings.Split(pattern, ".")
	nameParts := strings.Split(name, ".")

	for i, pp := range patParts {
		if pp == ">" {
			return i < len(nameParts)
		}
		if i >= len(nameParts) {
			return false
		}
		if pp != "*" && pp != nameParts[i] {
			return false
		}
	}
	return len(patParts) == len(nameParts)
}

// parseNames splits a comma-separated names query value.
func parseNames(raw string) []string {
	var out []string
	for _, n := range strings.Split(raw, ",") {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// handleEventStream handles GET /v1/events/stream.
func (s *BusServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	client := s.sseHub.subscribe(parseNames(r.URL.Query().Get("names")))
	defer s.sseHub.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var replayedTo uint64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if last, err := strconv.ParseUint(v, 10, 64); err == nil {
			for _, evt := range s.sseHub.eventsSince(last) {
				if client.matches(evt.Name) {
					writeSSEEvent(w, evt)
				}
				replayedTo = evt.Seq
			}
			flusher.Flush()
		}
	}

	ctx := r.Context()
	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-client.ch:
			if evt.Seq <= replayedTo {
				continue
			}
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

// sseFieldEscaper keeps an event name on a single SSE line.
var sseFieldEscaper = strings.NewReplacer("\r", " ", "\n", " ")

func writeSSEEvent(w http.ResponseWriter, evt *sseEvent) {
	fmt.Fprintf(w, "id:%d\n", evt.Seq)
	fmt.Fprintf(w, "event:%s\n", sseFieldEscaper.Replace(evt.Name))
	fmt.Fprintf(w, "data:%s\n\n", evt.Data)
}
