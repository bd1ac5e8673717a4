package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/alfredjeanlab/msgbus/internal/model"
)

func sub(name, endpoint string) model.Subscription {
	return model.Subscription{Name: name, CallbackEndpoint: endpoint}
}

func TestSubscribe_Idempotent(t *testing.T) {
	r := New()

	created, count, err := r.Subscribe(sub("order.created", "http://a/hook"), nil)
	if err != nil || !created || count != 1 {
		t.Fatalf("first subscribe: created=%v count=%d err=%v", created, count, err)
	}
	created, count, err = r.Subscribe(sub("order.created", "http://a/hook"), nil)
	if err != nil || created || count != 1 {
		t.Fatalf("second subscribe: created=%v count=%d err=%v", created, count, err)
	}
	if got := r.Snapshot("order.created"); len(got) != 1 {
		t.Fatalf("snapshot = %v, want one endpoint", got)
	}
}

func TestSubscribe_PersistOnlyOnChange(t *testing.T) {
	r := New()
	calls := 0
	persist := func() error { calls++; return nil }

	r.Subscribe(sub("a", "http://x"), persist)
	r.Subscribe(sub("a", "http://x"), persist)
	if calls != 1 {
		t.Fatalf("persist calls = %d, want 1", calls)
	}

	r.Unsubscribe("a", "http://x", persist)
	r.Unsubscribe("a", "http://x", persist)
	if calls != 2 {
		t.Fatalf("persist calls = %d, want 2", calls)
	}
}

func TestSubscribe_PersistFailureLeavesRegistryUntouched(t *testing.T) {
	r := New()
	boom := errors.New("disk gone")

	created, count, err := r.Subscribe(sub("a", "http://x"), func() error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if created || count != 0 {
		t.Fatalf("created=%v count=%d, want false 0", created, count)
	}
	if got := r.Count("a"); got != 0 {
		t.Fatalf("count after failed persist = %d", got)
	}

	r.Subscribe(sub("a", "http://x"), nil)
	removed, err := r.Unsubscribe("a", "http://x", func() error { return boom })
	if !errors.Is(err, boom) || removed {
		t.Fatalf("removed=%v err=%v", removed, err)
	}
	if got := r.Count("a"); got != 1 {
		t.Fatalf("count after failed unsubscribe persist = %d, want 1", got)
	}
}

func TestUnsubscribe_UnknownPair(t *testing.T) {
	r := New()
	r.Subscribe(sub("a", "http://x"), nil)

	for _, tc := range []struct {
		name, endpoint string
	}{
		{"a", "http://y"},
		{"b", "http://x"},
		{"", ""},
	} {
		removed, err := r.Unsubscribe(tc.name, tc.endpoint, nil)
		if err != nil || removed {
			t.Errorf("Unsubscribe(%q, %q) = %v, %v", tc.name, tc.endpoint, removed, err)
		}
	}
	if got := r.Count("a"); got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
}

func TestSnapshot_OrderAndIsolation(t *testing.T) {
	r := New()
	r.Subscribe(sub("a", "http://1"), nil)
	r.Subscribe(sub("a", "http://2"), nil)
	r.Subscribe(sub("a", "http://3"), nil)

	snap := r.Snapshot("a")
	want := []string{"http://1", "http://2", "http://3"}
	if fmt.Sprint(snap) != fmt.Sprint(want) {
		t.Fatalf("snapshot = %v, want %v", snap, want)
	}

	r.Unsubscribe("a", "http://2", nil)
	r.Subscribe(sub("a", "http://4"), nil)
	snap[0] = "mutated"

	if fmt.Sprint(snap[1:]) != fmt.Sprint(want[1:]) {
		t.Fatalf("earlier snapshot changed: %v", snap)
	}
	if got := r.Snapshot("a"); fmt.Sprint(got) != fmt.Sprint([]string{"http://1", "http://3", "http://4"}) {
		t.Fatalf("current snapshot = %v", got)
	}
}

func TestSnapshot_UnknownName(t *testing.T) {
	r := New()
	got := r.Snapshot("nope")
	if got == nil || len(got) != 0 {
		t.Fatalf("snapshot = %#v, want empty non-nil", got)
	}
}

func TestLoad_CollapsesDuplicates(t *testing.T) {
	r := New()
	n := r.Load([]*model.Subscription{
		{Name: "a", CallbackEndpoint: "http://1"},
		{Name: "a", CallbackEndpoint: "http://1"},
		{Name: "a", CallbackEndpoint: "http://2"},
		{Name: "b", CallbackEndpoint: "http://1"},
		nil,
		{Name: "", CallbackEndpoint: "http://1"},
	})
	if n != 3 {
		t.Fatalf("loaded = %d, want 3", n)
	}
	if got := r.TotalSubscribers(); got != 3 {
		t.Fatalf("total = %d, want 3", got)
	}
	if got := r.DistinctNames(); got != 2 {
		t.Fatalf("distinct = %d, want 2", got)
	}
}

func TestSubscriptions_SortedByName(t *testing.T) {
	r := New()
	r.Subscribe(sub("zeta", "http://1"), nil)
	r.Subscribe(sub("alpha", "http://2"), nil)
	r.Subscribe(sub("alpha", "http://1"), nil)

	all := r.Subscriptions("")
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].Name != "alpha" || all[0].CallbackEndpoint != "http://2" {
		t.Errorf("all[0] = %+v", all[0])
	}
	if all[2].Name != "zeta" {
		t.Errorf("all[2] = %+v", all[2])
	}

	if got := r.Subscriptions("alpha"); len(got) != 2 {
		t.Errorf("alpha subs = %d, want 2", len(got))
	}
	if got := r.Subscriptions("missing"); got == nil || len(got) != 0 {
		t.Errorf("missing subs = %#v", got)
	}
}

func TestDistinctNames_IgnoresEmptied(t *testing.T) {
	r := New()
	r.Subscribe(sub("a", "http://1"), nil)
	r.Subscribe(sub("b", "http://1"), nil)
	r.Unsubscribe("b", "http://1", nil)

	if got := r.DistinctNames(); got != 1 {
		t.Fatalf("distinct = %d, want 1", got)
	}
}

func TestEmptiedNamesAreDropped(t *testing.T) {
	boom := errors.New("disk gone")
	tests := []struct {
		name string
		run  func(r *Registry)
		want int
	}{
		{"failed persist on new name", func(r *Registry) {
			r.Subscribe(sub("a", "http://x"), func() error { return boom })
		}, 0},
		{"failed persist on existing name", func(r *Registry) {
			r.Subscribe(sub("a", "http://x"), nil)
			r.Subscribe(sub("a", "http://y"), func() error { return boom })
		}, 1},
		{"last subscriber removed", func(r *Registry) {
			r.Subscribe(sub("a", "http://x"), nil)
			r.Unsubscribe("a", "http://x", nil)
		}, 0},
		{"one of two removed", func(r *Registry) {
			r.Subscribe(sub("a", "http://x"), nil)
			r.Subscribe(sub("a", "http://y"), nil)
			r.Unsubscribe("a", "http://x", nil)
		}, 1},
		{"many distinct names churned", func(r *Registry) {
			for i := 0; i < 100; i++ {
				name := fmt.Sprintf("n%d", i)
				r.Subscribe(sub(name, "http://x"), nil)
				r.Unsubscribe(name, "http://x", nil)
			}
		}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			tt.run(r)
			r.mu.RLock()
			got := len(r.names)
			r.mu.RUnlock()
			if got != tt.want {
				t.Fatalf("entries = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResubscribeAfterDrop(t *testing.T) {
	r := New()
	r.Subscribe(sub("a", "http://x"), nil)
	r.Unsubscribe("a", "http://x", nil)

	created, count, err := r.Subscribe(sub("a", "http://y"), nil)
	if err != nil || !created || count != 1 {
		t.Fatalf("Subscribe = %v, %d, %v", created, count, err)
	}
	if got := r.Snapshot("a"); len(got) != 1 || got[0] != "http://y" {
		t.Fatalf("snapshot = %v", got)
	}
}

func TestConcurrentChurnOnSharedName(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		endpoint := fmt.Sprintf("http://host-%d", i)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Subscribe(sub("a", endpoint), nil)
				r.Unsubscribe("a", endpoint, nil)
			}
			r.Subscribe(sub("a", endpoint), nil)
		}()
	}
	wg.Wait()

	if got := r.Count("a"); got != 20 {
		t.Fatalf("count = %d, want 20", got)
	}
	r.mu.RLock()
	n := len(r.names)
	r.mu.RUnlock()
	if n != 1 {
		t.Fatalf("entries = %d, want 1", n)
	}
}

func TestConcurrentSubscribeSamePair(t *testing.T) {
	r := New()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		persist int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, _ := r.Subscribe(sub("a", "http://same"), func() error {
				mu.Lock()
				persist++
				mu.Unlock()
				return nil
			})
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 || persist != 1 {
		t.Fatalf("created=%d persist=%d, want 1 1", created, persist)
	}
	if got := r.Count("a"); got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		endpoint := fmt.Sprintf("http://host-%d", i)
		go func() {
			defer wg.Done()
			r.Subscribe(sub("a", endpoint), nil)
			r.Unsubscribe("a", endpoint, nil)
			r.Subscribe(sub("a", endpoint), nil)
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				for _, ep := range r.Snapshot("a") {
					if ep == "" {
						t.Error("empty endpoint in snapshot")
					}
				}
			}
		}()
	}
	wg.Wait()

	if got := r.Count("a"); got != 20 {
		t.Fatalf("count = %d, want 20", got)
	}
}
