package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func TestSubject(t *testing.T) {
	for _, tc := range []struct {
		prefix, name, want string
	}{
		{"msgbus.events", "order.created", "msgbus.events.order.created"},
		{"", "order.created", "msgbus.events.order.created"},
		{"bus", "user signed up", "bus.user_signed_up"},
		{"bus", "a.*.b", "bus.a._.b"},
		{"bus", "tail>", "bus.tail_"},
		{"bus", "", "bus._"},
	} {
		if got := Subject(tc.prefix, tc.name); got != tc.want {
			t.Errorf("Subject(%q, %q) = %q, want %q", tc.prefix, tc.name, got, tc.want)
		}
	}
}

func TestWildcardSubject(t *testing.T) {
	if got := WildcardSubject(""); got != "msgbus.events.>" {
		t.Errorf("WildcardSubject(\"\") = %q", got)
	}
	if got := WildcardSubject("bus"); got != "bus.>" {
		t.Errorf("WildcardSubject(bus) = %q", got)
	}
}

func TestNoopPublisher(t *testing.T) {
	var pub Publisher = &NoopPublisher{}
	if err := pub.Publish(context.Background(), "x", Published{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNATSPublisher_ImplementsPublisher(t *testing.T) {
	var _ Publisher = (*NATSPublisher)(nil)
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	subject := Subject("", "order.created")
	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(subject, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	event := Published{
		ID:              42,
		Name:            "order.created",
		Payload:         json.RawMessage(`{"order_id":42}`),
		PublishedAt:     time.Now().UTC(),
		SubscriberCount: 2,
	}
	if err := pub.Publish(context.Background(), subject, event); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	pub.Flush()

	select {
	case msg := <-ch:
		var got Published
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.ID != 42 || got.Name != "order.created" || got.SubscriberCount != 2 {
			t.Errorf("got %+v", got)
		}
		if string(got.Payload) != `{"order_id":42}` {
			t.Errorf("payload = %s", got.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNATSPublisher_Close(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	if err := pub.Publish(context.Background(), Subject("", "x"), Published{}); err == nil {
		t.Error("expected error publishing after close")
	}
}
