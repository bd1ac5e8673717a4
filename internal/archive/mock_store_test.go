package archive

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/alfredjeanlab/msgbus/internal/model"
)

// mockStore is an in-memory store.Store for archive tests. Events are held
// oldest first; ListEvents honors Limit and BeforeID like the SQL store.
type mockStore struct {
	subs    []*model.Subscription
	events  []*model.Event
	listErr error
	pages   int
}

func newMockStore() *mockStore { return &mockStore{} }

func (m *mockStore) addEvents(n int, name string) {
	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	for range n {
		id := int64(len(m.events) + 1)
		m.events = append(m.events, &model.Event{
			ID:          id,
			Name:        name,
			Payload:     json.RawMessage(`{"n":` + jsonInt(id) + `}`),
			PublishedAt: base.Add(time.Duration(id) * time.Second),
		})
	}
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func (m *mockStore) AddSubscription(_ context.Context, sub *model.Subscription) (bool, error) {
	m.subs = append(m.subs, sub)
	return true, nil
}

func (m *mockStore) RemoveSubscription(context.Context, string, string) (bool, error) {
	return false, errors.New("not implemented")
}

func (m *mockStore) ListSubscriptions(context.Context) ([]*model.Subscription, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.subs, nil
}

func (m *mockStore) AppendEvent(context.Context, string, json.RawMessage, time.Time) (*model.Event, error) {
	return nil, errors.New("not implemented")
}

func (m *mockStore) UpdateDeliveredCount(context.Context, int64, int) error {
	return errors.New("not implemented")
}

func (m *mockStore) ListEvents(_ context.Context, f model.EventFilter) ([]*model.Event, error) {
	m.pages++
	var out []*model.Event
	for i := len(m.events) - 1; i >= 0; i-- {
		ev := m.events[i]
		if f.BeforeID > 0 && ev.ID >= f.BeforeID {
			continue
		}
		out = append(out, ev)
		if len(out) == f.EffectiveLimit() {
			break
		}
	}
	return out, nil
}

func (m *mockStore) EventStats(context.Context, time.Time, int) (*model.EventStats, error) {
	return nil, errors.New("not implemented")
}

func (m *mockStore) Ping(context.Context) error { return nil }
func (m *mockStore) Close() error               { return nil }

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
