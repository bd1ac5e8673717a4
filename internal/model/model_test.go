package model

import (
	"encoding/json"
	"testing"
)

func TestPayloadOrEmpty(t *testing.T) {
	for _, tc := range []struct {
		in   json.RawMessage
		want string
	}{
		{nil, `{}`},
		{json.RawMessage(``), `{}`},
		{json.RawMessage(`null`), `{}`},
		{json.RawMessage(`{"order_id":42}`), `{"order_id":42}`},
		{json.RawMessage(`[1,2,3]`), `[1,2,3]`},
		{json.RawMessage(`"text"`), `"text"`},
	} {
		if got := string(PayloadOrEmpty(tc.in)); got != tc.want {
			t.Errorf("PayloadOrEmpty(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEventFilter_EffectiveLimit(t *testing.T) {
	for _, tc := range []struct {
		limit int
		want  int
	}{
		{0, DefaultEventLimit},
		{-5, DefaultEventLimit},
		{1, 1},
		{50, 50},
		{MaxEventLimit, MaxEventLimit},
		{MaxEventLimit + 1, MaxEventLimit},
	} {
		if got := (EventFilter{Limit: tc.limit}).EffectiveLimit(); got != tc.want {
			t.Errorf("EffectiveLimit(%d) = %d, want %d", tc.limit, got, tc.want)
		}
	}
}

func TestSubscription_Key(t *testing.T) {
	a := Subscription{Name: "order.created", CallbackEndpoint: "http://svc-a/cb", Owner: "svc-a"}
	b := Subscription{Name: "order.created", CallbackEndpoint: "http://svc-a/cb", Owner: "other"}
	if a.Key() != b.Key() {
		t.Errorf("keys differ for same pair: %v vs %v", a.Key(), b.Key())
	}
	c := Subscription{Name: "order.created", CallbackEndpoint: "http://svc-b/cb"}
	if a.Key() == c.Key() {
		t.Error("keys equal for different endpoints")
	}
}

func TestEvent_JSONFieldNames(t *testing.T) {
	data, err := json.Marshal(Event{ID: 7, Name: "order.created", Payload: json.RawMessage(`{"a":1}`), DeliveredCount: 2})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"id", "name", "payload", "published_at", "delivered_count"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing JSON field %q in %s", key, data)
		}
	}
}
