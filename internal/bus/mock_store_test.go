package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/msgbus/internal/dispatch"
	"github.com/alfredjeanlab/msgbus/internal/model"
	"github.com/alfredjeanlab/msgbus/internal/store"
)

var _ store.Store = (*mockStore)(nil)

// mockStore is an in-memory store.Store. Setting failWrites makes every
// mutating call fail; failReads does the same for queries.
type mockStore struct {
	mu         sync.Mutex
	subs       []*model.Subscription
	events     []*model.Event
	nextID     int64
	failWrites error
	failReads  error
	pingErr    error
}

func newMockStore() *mockStore {
	return &mockStore{}
}

func (m *mockStore) AddSubscription(_ context.Context, sub *model.Subscription) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return false, m.failWrites
	}
	for _, s := range m.subs {
		if s.Key() == sub.Key() {
			return false, nil
		}
	}
	cp := *sub
	m.subs = append(m.subs, &cp)
	return true, nil
}

func (m *mockStore) RemoveSubscription(_ context.Context, name, endpoint string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return false, m.failWrites
	}
	for i, s := range m.subs {
		if s.Name == name && s.CallbackEndpoint == endpoint {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) ListSubscriptions(context.Context) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads != nil {
		return nil, m.failReads
	}
	out := make([]*model.Subscription, len(m.subs))
	for i, s := range m.subs {
		cp := *s
		out[i] = &cp
	}
	return out, nil
}

func (m *mockStore) AppendEvent(_ context.Context, name string, payload json.RawMessage, at time.Time) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return nil, m.failWrites
	}
	m.nextID++
	ev := &model.Event{ID: m.nextID, Name: name, Payload: payload, PublishedAt: at}
	m.events = append(m.events, ev)
	cp := *ev
	return &cp, nil
}

func (m *mockStore) UpdateDeliveredCount(_ context.Context, id int64, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if ev.ID == id {
			ev.DeliveredCount = count
			return nil
		}
	}
	return errors.New("no such event")
}

func (m *mockStore) ListEvents(_ context.Context, f model.EventFilter) ([]*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads != nil {
		return nil, m.failReads
	}
	var out []*model.Event
	for i := len(m.events) - 1; i >= 0; i-- {
		ev := m.events[i]
		if f.Name != "" && ev.Name != f.Name {
			continue
		}
		if f.BeforeID > 0 && ev.ID >= f.BeforeID {
			continue
		}
		cp := *ev
		out = append(out, &cp)
		if len(out) == f.EffectiveLimit() {
			break
		}
	}
	return out, nil
}

func (m *mockStore) EventStats(_ context.Context, since time.Time, top int) (*model.EventStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads != nil {
		return nil, m.failReads
	}
	st := &model.EventStats{TopEventNames: []model.NameCount{}}
	counts := map[string]int64{}
	for _, ev := range m.events {
		st.TotalEvents++
		if !ev.PublishedAt.Before(since) {
			st.EventsLastHour++
		}
		counts[ev.Name]++
	}
	for n, c := range counts {
		st.TopEventNames = append(st.TopEventNames, model.NameCount{Name: n, Count: c})
	}
	sort.Slice(st.TopEventNames, func(i, j int) bool {
		a, b := st.TopEventNames[i], st.TopEventNames[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Name < b.Name
	})
	if len(st.TopEventNames) > top {
		st.TopEventNames = st.TopEventNames[:top]
	}
	return st, nil
}

func (m *mockStore) Ping(context.Context) error { return m.pingErr }
func (m *mockStore) Close() error              { return nil }

func (m *mockStore) event(id int64) *model.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if ev.ID == id {
			cp := *ev
			return &cp
		}
	}
	return nil
}

// recordingDispatcher captures jobs instead of delivering them.
type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []dispatch.Job
	err  error
}

func (r *recordingDispatcher) Dispatch(job dispatch.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(job.Endpoints) > 0 {
		r.jobs = append(r.jobs, job)
	}
	return r.err
}

func (r *recordingDispatcher) Jobs() []dispatch.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dispatch.Job(nil), r.jobs...)
}
