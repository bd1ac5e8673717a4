// Package endpoints tracks delivery health per callback endpoint.
//
// The dispatcher records every attempt directly; the tracker never feeds
// back into delivery decisions. A background reaper evicts endpoints that
// have not been attempted within the idle threshold, so the map only holds
// endpoints that are still receiving traffic.
package endpoints

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Entry is a point-in-time view of one endpoint's delivery history.
type Entry struct {
	Endpoint            string    `json:"endpoint"`
	Attempts            int64     `json:"attempts"`
	Successes           int64     `json:"successes"`
	ConsecutiveFailures int64     `json:"consecutive_failures"`
	LastStatus          int       `json:"last_status,omitempty"` // 0 when no response was received
	LastError           string    `json:"last_error,omitempty"`
	LastAttempt         time.Time `json:"last_attempt"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
	FirstSeen           time.Time `json:"first_seen"`
	IdleSecs            float64   `json:"idle_secs"`
}

// Attempt is the outcome of one delivery to one endpoint.
type Attempt struct {
	Endpoint string
	Status   int // HTTP status, 0 if the request failed before a response
	Err      error
	At       time.Time
}

// Succeeded reports whether the attempt counts as delivered.
func (a Attempt) Succeeded() bool {
	return a.Err == nil && a.Status == 200
}

// ReaperConfig configures the idle-endpoint reaper.
type ReaperConfig struct {
	// IdleThreshold is how long an endpoint may go without an attempt
	// before it is evicted. Default: 1 hour.
	IdleThreshold time.Duration

	// SweepInterval is how often the reaper scans. Default: 1 minute.
	SweepInterval time.Duration

	// OnEvict is called outside the lock for each evicted endpoint.
	OnEvict func(endpoint string)
}

// Tracker maintains per-endpoint delivery counters.
type Tracker struct {
	mu        sync.RWMutex
	endpoints map[string]*endpointState
	logger    *slog.Logger

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type endpointState struct {
	firstSeen   time.Time
	lastAttempt time.Time
	lastSuccess time.Time
	lastStatus  int
	lastError   string
	attempts    int64
	successes   int64
	failStreak  int64
}

// New creates an empty tracker. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		endpoints: make(map[string]*endpointState),
		logger:    logger,
	}
}

// Record folds one attempt into the endpoint's counters.
func (t *Tracker) Record(a Attempt) {
	if a.Endpoint == "" {
		return
	}
	if a.At.IsZero() {
		a.At = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.endpoints[a.Endpoint]
	if !ok {
		st = &endpointState{firstSeen: a.At}
		t.endpoints[a.Endpoint] = st
	}

	st.attempts++
	st.lastAttempt = a.At
	st.lastStatus = a.Status
	if a.Succeeded() {
		if st.failStreak > 0 {
			t.logger.Info("endpoint recovered", "endpoint", a.Endpoint, "after_failures", st.failStreak)
		}
		st.successes++
		st.failStreak = 0
		st.lastSuccess = a.At
		st.lastError = ""
		return
	}
	st.failStreak++
	switch {
	case a.Err != nil:
		st.lastError = a.Err.Error()
	default:
		st.lastError = "unexpected status"
	}
}

// Snapshot returns every tracked endpoint, most recently attempted first.
func (t *Tracker) Snapshot() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := time.Now()
	entries := make([]Entry, 0, len(t.endpoints))
	for ep, st := range t.endpoints {
		entries = append(entries, Entry{
			Endpoint:            ep,
			Attempts:            st.attempts,
			Successes:           st.successes,
			ConsecutiveFailures: st.failStreak,
			LastStatus:          st.lastStatus,
			LastError:           st.lastError,
			LastAttempt:         st.lastAttempt,
			LastSuccess:         st.lastSuccess,
			FirstSeen:           st.firstSeen,
			IdleSecs:            now.Sub(st.lastAttempt).Seconds(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].LastAttempt.Equal(entries[j].LastAttempt) {
			return entries[i].Endpoint < entries[j].Endpoint
		}
		return entries[i].LastAttempt.After(entries[j].LastAttempt)
	})
	return entries
}

// StartReaper launches the eviction loop. Call Stop to shut it down.
func (t *Tracker) StartReaper(cfg *ReaperConfig) {
	if cfg == nil {
		cfg = &ReaperConfig{}
	}
	if cfg.IdleThreshold == 0 {
		cfg.IdleThreshold = time.Hour
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = time.Minute
	}

	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})

	go t.reapLoop(cfg)
	t.logger.Info("endpoint reaper started",
		"idle_threshold", cfg.IdleThreshold,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (t *Tracker) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}
}

func (t *Tracker) reapLoop(cfg *ReaperConfig) {
	defer close(t.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.reaperStop:
			return
		case <-ticker.C:
			t.sweep(cfg, time.Now())
		}
	}
}

func (t *Tracker) sweep(cfg *ReaperConfig, now time.Time) {
	var evicted []string

	t.mu.Lock()
	for ep, st := range t.endpoints {
		if now.Sub(st.lastAttempt) > cfg.IdleThreshold {
			delete(t.endpoints, ep)
			evicted = append(evicted, ep)
		}
	}
	t.mu.Unlock()

	for _, ep := range evicted {
		t.logger.Debug("endpoint evicted", "endpoint", ep, "threshold", cfg.IdleThreshold)
		if cfg.OnEvict != nil {
			cfg.OnEvict(ep)
		}
	}
}
