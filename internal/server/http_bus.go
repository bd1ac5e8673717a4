package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/alfredjeanlab/msgbus/internal/bus"
	"github.com/alfredjeanlab/msgbus/internal/model"
)

// subscriptionInput is the body of subscribe and unsubscribe. The event,
// callback_url and service_id spellings are accepted for older producers.
type subscriptionInput struct {
	Name             string `json:"name"`
	CallbackEndpoint string `json:"callback_endpoint"`
	Owner            string `json:"owner"`

	Event       string `json:"event"`
	CallbackURL string `json:"callback_url"`
	ServiceID   string `json:"service_id"`
}

func (in *subscriptionInput) normalize() {
	if in.Name == "" {
		in.Name = in.Event
	}
	if in.CallbackEndpoint == "" {
		in.CallbackEndpoint = in.CallbackURL
	}
	if in.Owner == "" {
		in.Owner = in.ServiceID
	}
}

type publishInput struct {
	Name    string          `json:"name"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// handleSubscribe handles POST /v1/subscribe.
func (s *BusServer) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var in subscriptionInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	in.normalize()

	res, err := s.bus.Subscribe(r.Context(), in.Name, in.CallbackEndpoint, in.Owner)
	if err != nil {
		writeBusError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleUnsubscribe handles POST /v1/unsubscribe.
func (s *BusServer) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var in subscriptionInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	in.normalize()

	res, err := s.bus.Unsubscribe(r.Context(), in.Name, in.CallbackEndpoint)
	if err != nil {
		writeBusError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handlePublish handles POST /v1/publish.
func (s *BusServer) handlePublish(w http.ResponseWriter, r *http.Request) {
	var in publishInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if in.Name == "" {
		in.Name = in.Event
	}

	res, err := s.bus.Publish(r.Context(), in.Name, in.Payload)
	if err != nil {
		writeBusError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleListEvents handles GET /v1/events.
func (s *BusServer) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.EventFilter{Name: q.Get("name")}
	if filter.Name == "" {
		filter.Name = q.Get("event")
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("before_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id < 0 {
			writeError(w, http.StatusBadRequest, "before_id must be a non-negative integer")
			return
		}
		filter.BeforeID = id
	}

	evs, err := s.bus.Events(r.Context(), filter)
	if err != nil {
		writeBusError(w, err)
		return
	}
	if evs == nil {
		evs = []*model.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": evs,
		"total":  len(evs),
	})
}

// handleListSubscriptions handles GET /v1/subscriptions.
func (s *BusServer) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		name = r.URL.Query().Get("event")
	}
	subs := s.bus.Subscriptions(name)
	writeJSON(w, http.StatusOK, map[string]any{
		"subscriptions": subs,
		"total":         len(subs),
	})
}

// handleStats handles GET /v1/stats.
func (s *BusServer) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.bus.Stats(r.Context())
	if err != nil {
		writeBusError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleEndpoints handles GET /v1/endpoints.
func (s *BusServer) handleEndpoints(w http.ResponseWriter, _ *http.Request) {
	eps := s.bus.Endpoints()
	writeJSON(w, http.StatusOK, map[string]any{
		"endpoints": eps,
		"total":     len(eps),
	})
}

// handleHealth handles GET /v1/health.
func (s *BusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.bus.Health(r.Context())
	code := http.StatusOK
	if h.Status != bus.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}
