// Package dispatch delivers published events to subscriber endpoints.
//
// Each publish with at least one subscriber gets its own goroutine. That
// goroutine owns an immutable Job (event id, name, payload and the endpoint
// snapshot taken at publish time), posts to every endpoint in parallel,
// and reports back only by writing the event's delivered count.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/alfredjeanlab/msgbus/internal/endpoints"
	"github.com/alfredjeanlab/msgbus/internal/idgen"
	"github.com/alfredjeanlab/msgbus/internal/metrics"
)

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 5 * time.Second

// countWriteTimeout bounds the delivered-count write after a fan-out.
const countWriteTimeout = 5 * time.Second

// Headers set on every delivery request.
const (
	HeaderEventName  = "X-Msgbus-Event-Name"
	HeaderEventID    = "X-Msgbus-Event-Id"
	HeaderDeliveryID = "X-Msgbus-Delivery-Id"
)

// ErrStopped is returned by Dispatch after Stop has been called.
var ErrStopped = errors.New("dispatcher stopped")

// CountWriter persists the number of successful deliveries for an event.
type CountWriter interface {
	UpdateDeliveredCount(ctx context.Context, id int64, count int) error
}

// Recorder receives the outcome of every attempt.
type Recorder interface {
	Record(a endpoints.Attempt)
}

// Config tunes a Dispatcher. The zero value is usable.
type Config struct {
	// Timeout bounds each attempt. Zero means DefaultTimeout.
	Timeout time.Duration

	// MaxInFlight caps concurrent attempts across all publishes.
	// Zero or negative means unbounded.
	MaxInFlight int64

	// DrainTimeout is how long Stop waits for running deliveries before
	// cancelling them. Zero abandons them immediately.
	DrainTimeout time.Duration

	// Client sends the requests. Nil builds a client with its own transport.
	Client *http.Client

	// Recorder, if set, is told about every attempt.
	Recorder Recorder

	Logger *slog.Logger
}

// Job is one event's fan-out. Endpoints must not be modified after Dispatch.
type Job struct {
	EventID   int64
	Name      string
	Payload   json.RawMessage
	Endpoints []string
}

// Dispatcher runs fan-outs in the background.
type Dispatcher struct {
	counts   CountWriter
	client   *http.Client
	timeout  time.Duration
	drain    time.Duration
	sem      *semaphore.Weighted
	recorder Recorder
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// New creates a Dispatcher that writes delivered counts to counts.
func New(counts CountWriter, cfg Config) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	d := &Dispatcher{
		counts:   counts,
		client:   cfg.Client,
		timeout:  cfg.Timeout,
		drain:    cfg.DrainTimeout,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
	}
	if cfg.MaxInFlight > 0 {
		d.sem = semaphore.NewWeighted(cfg.MaxInFlight)
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Dispatch schedules delivery of job and returns immediately. A job with no
// endpoints schedules nothing; the event keeps its initial count of zero.
func (d *Dispatcher) Dispatch(job Job) error {
	if len(job.Endpoints) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrStopped
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(job)
	}()
	return nil
}

// Stop refuses new jobs, waits up to the drain timeout for running ones,
// cancels whatever is left and waits for it to unwind. ctx bounds the
// final wait.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	if d.drain > 0 {
		timer := time.NewTimer(d.drain)
		select {
		case <-done:
		case <-timer.C:
			d.logger.Warn("dispatch: drain timeout reached, abandoning deliveries", "drain", d.drain)
		case <-ctx.Done():
		}
		timer.Stop()
	}
	d.cancel()

	defer d.client.CloseIdleConnections()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatch: stop: %w", ctx.Err())
	}
}

// run performs one fan-out and writes the resulting count.
func (d *Dispatcher) run(job Job) {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for _, ep := range job.Endpoints {
		wg.Add(1)
		go func(endpoint string) {
			defer wg.Done()
			if d.deliver(job, endpoint) {
				mu.Lock()
				delivered++
				mu.Unlock()
			}
		}(ep)
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), countWriteTimeout)
	defer cancel()
	if err := d.counts.UpdateDeliveredCount(ctx, job.EventID, delivered); err != nil {
		metrics.CountUpdateErrorsTotal.Inc()
		d.logger.Error("dispatch: update delivered count",
			"event_id", job.EventID, "name", job.Name, "delivered", delivered, "err", err)
		return
	}
	d.logger.Debug("dispatch: fan-out complete",
		"event_id", job.EventID, "name", job.Name,
		"delivered", delivered, "endpoints", len(job.Endpoints))
}

// deliver makes one attempt and reports whether the endpoint answered 200.
func (d *Dispatcher) deliver(job Job, endpoint string) bool {
	if d.sem != nil {
		if err := d.sem.Acquire(d.ctx, 1); err != nil {
			metrics.ObserveDelivery(metrics.OutcomeAbandoned, 0)
			d.record(endpoint, 0, err)
			return false
		}
		defer d.sem.Release(1)
	}

	metrics.DeliveriesInFlight.Inc()
	defer metrics.DeliveriesInFlight.Dec()

	start := time.Now()
	status, err := d.post(job, endpoint)
	elapsed := time.Since(start)
	d.record(endpoint, status, err)

	switch {
	case err != nil && d.ctx.Err() != nil:
		metrics.ObserveDelivery(metrics.OutcomeAbandoned, elapsed)
		d.logger.Warn("dispatch: delivery abandoned",
			"event_id", job.EventID, "name", job.Name, "endpoint", endpoint)
		return false
	case err != nil:
		metrics.ObserveDelivery(metrics.OutcomeFailed, elapsed)
		d.logger.Warn("dispatch: delivery failed",
			"event_id", job.EventID, "name", job.Name, "endpoint", endpoint, "err", err)
		return false
	case status != http.StatusOK:
		metrics.ObserveDelivery(metrics.OutcomeRejected, elapsed)
		d.logger.Warn("dispatch: delivery rejected",
			"event_id", job.EventID, "name", job.Name, "endpoint", endpoint, "status", status)
		return false
	}
	metrics.ObserveDelivery(metrics.OutcomeDelivered, elapsed)
	d.logger.Debug("dispatch: delivered",
		"event_id", job.EventID, "name", job.Name, "endpoint", endpoint, "elapsed", elapsed)
	return true
}

func (d *Dispatcher) post(job Job, endpoint string) (int, error) {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(job.Payload))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventName, job.Name)
	req.Header.Set(HeaderEventID, strconv.FormatInt(job.EventID, 10))
	if id, err := idgen.Delivery(); err == nil {
		req.Header.Set(HeaderDeliveryID, id)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, nil
}

func (d *Dispatcher) record(endpoint string, status int, err error) {
	if d.recorder == nil {
		return
	}
	d.recorder.Record(endpoints.Attempt{
		Endpoint: endpoint,
		Status:   status,
		Err:      err,
		At:       time.Now(),
	})
}
