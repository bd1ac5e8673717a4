package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/msgbus/internal/events"
)

func TestSSEHub_BroadcastAndReceive(t *testing.T) {
	hub := newSSEHub()
	client := hub.subscribe(nil)
	defer hub.unsubscribe(client)

	hub.broadcast("order.created", []byte(`{"id":1}`))

	select {
	case evt := <-client.ch:
		if evt.Name != "order.created" || string(evt.Data) != `{"id":1}` || evt.Seq != 1 {
			t.Fatalf("evt = %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSSEHub_NameFiltering(t *testing.T) {
	hub := newSSEHub()
	client := hub.subscribe([]string{"order.*"})
	defer hub.unsubscribe(client)

	hub.broadcast("user.signed_up", []byte(`{}`))
	hub.broadcast("order.created", []byte(`{}`))

	select {
	case evt := <-client.ch:
		if evt.Name != "order.created" {
			t.Fatalf("name = %q", evt.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	select {
	case evt := <-client.ch:
		t.Fatalf("unexpected event %q", evt.Name)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSSEHub_Unsubscribe(t *testing.T) {
	hub := newSSEHub()
	client := hub.subscribe(nil)
	hub.unsubscribe(client)

	hub.broadcast("order.created", []byte(`{}`))

	select {
	case <-client.ch:
		t.Fatal("should not receive events after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSSEHub_SlowClientDoesNotBlock(t *testing.T) {
	hub := newSSEHub()
	client := hub.subscribe(nil)
	defer hub.unsubscribe(client)

	done := make(chan struct{})
	go func() {
		for range sseClientBuffer * 3 {
			hub.broadcast("flood", []byte(`{}`))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a full client")
	}
	if len(client.ch) != sseClientBuffer {
		t.Fatalf("client queue = %d, want %d", len(client.ch), sseClientBuffer)
	}
}

func TestSSEHub_EventsSince(t *testing.T) {
	hub := newSSEHub()
	for range 5 {
		hub.broadcast("tick", []byte(`{}`))
	}

	evts := hub.eventsSince(2)
	if len(evts) != 3 || evts[0].Seq != 3 || evts[2].Seq != 5 {
		t.Fatalf("eventsSince(2) = %d events", len(evts))
	}
	if len(newSSEHub().eventsSince(0)) != 0 {
		t.Fatal("empty hub returned events")
	}
}

func TestSSEHub_RingBufferWrap(t *testing.T) {
	hub := newSSEHub()
	for range sseRingBufferSize + 100 {
		hub.broadcast("tick", []byte(`{}`))
	}

	evts := hub.eventsSince(0)
	if len(evts) != sseRingBufferSize {
		t.Fatalf("expected %d events, got %d", sseRingBufferSize, len(evts))
	}
	if evts[0].Seq != 101 {
		t.Fatalf("oldest seq = %d, want 101", evts[0].Seq)
	}
}

func TestMatchNamePattern(t *testing.T) {
	for _, tc := range []struct {
		pattern string
		name    string
		want    bool
	}{
		{"order.created", "order.created", true},
		{"order.created", "order.shipped", false},
		{"order.*", "order.created", true},
		{"order.*", "order.line.added", false},
		{"order.>", "order.line.added", true},
		{"order.>", "order", false},
		{"*.created", "user.created", true},
		{"*.*", "single", false},
		{">", "anything.at.all", true},
	} {
		t.Run(tc.pattern+"_"+tc.name, func(t *testing.T) {
			if got := matchNamePattern(tc.pattern, tc.name); got != tc.want {
				t.Fatalf("matchNamePattern(%q, %q) = %v, want %v", tc.pattern, tc.name, got, tc.want)
			}
		})
	}
}

func TestParseNames(t *testing.T) {
	got := parseNames(" order.* , ,user.>,")
	if len(got) != 2 || got[0] != "order.*" || got[1] != "user.>" {
		t.Fatalf("parseNames = %q", got)
	}
	if parseNames("") != nil {
		t.Fatal("parseNames(\"\") should be nil")
	}
}

type sseFrame struct {
	ID    string
	Event string
	Data  string
}

// readSSE parses frames from an SSE response body onto a channel.
func readSSE(resp *http.Response) <-chan sseFrame {
	ch := make(chan sseFrame, 32)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(resp.Body)
		var cur sseFrame
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "id:"):
				cur.ID = strings.TrimPrefix(line, "id:")
			case strings.HasPrefix(line, "event:"):
				cur.Event = strings.TrimPrefix(line, "event:")
			case strings.HasPrefix(line, "data:"):
				cur.Data = strings.TrimPrefix(line, "data:")
			case line == "":
				if cur.Event != "" || cur.Data != "" {
					ch <- cur
					cur = sseFrame{}
				}
			}
		}
	}()
	return ch
}

func openStream(t *testing.T, env *testEnv, url string, lastEventID string) (<-chan sseFrame, func()) {
	t.Helper()
	before := env.srv.sseHub.clientCount()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, "GET", url, nil)
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatalf("connect stream: %v", err)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		resp.Body.Close()
		cancel()
		t.Fatalf("Content-Type = %q", ct)
	}

	deadline := time.Now().Add(time.Second)
	for env.srv.sseHub.clientCount() <= before && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	return readSSE(resp), func() {
		cancel()
		resp.Body.Close()
	}
}

func TestHandleEventStream_PublishedEvents(t *testing.T) {
	env := newTestServer(t, "")
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	frames, stop := openStream(t, env, ts.URL+"/v1/events/stream?names=order.*", "")
	defer stop()

	doJSON(t, env.handler, "POST", "/v1/publish", map[string]any{"name": "user.created"})
	doJSON(t, env.handler, "POST", "/v1/publish", map[string]any{"name": "order.created", "payload": map[string]any{"order_id": 42}})

	select {
	case f := <-frames:
		if f.Event != "order.created" {
			t.Fatalf("event = %q, want order.created", f.Event)
		}
		var p events.Published
		if err := json.Unmarshal([]byte(f.Data), &p); err != nil {
			t.Fatalf("decode data: %v", err)
		}
		if string(p.Payload) != `{"order_id":42}` || p.Name != "order.created" || p.ID == 0 {
			t.Fatalf("published = %+v", p)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for stream frame")
	}
}

func TestHandleEventStream_LastEventIDReplay(t *testing.T) {
	env := newTestServer(t, "")
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	for _, n := range []string{"a", "b", "c"} {
		doJSON(t, env.handler, "POST", "/v1/publish", map[string]any{"name": n})
	}

	frames, stop := openStream(t, env, ts.URL+"/v1/events/stream", "1")
	defer stop()

	var names []string
	for len(names) < 2 {
		select {
		case f := <-frames:
			names = append(names, f.Event)
		case <-time.After(3 * time.Second):
			t.Fatalf("replayed %v, want [b c]", names)
		}
	}
	if names[0] != "b" || names[1] != "c" {
		t.Fatalf("replayed %v, want [b c]", names)
	}
}
