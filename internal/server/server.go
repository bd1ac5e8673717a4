// Package server exposes the bus over HTTP (JSON API, SSE stream,
// Prometheus metrics) and gRPC (health and reflection).
package server

import (
	"encoding/json"
	"log/slog"

	"github.com/alfredjeanlab/msgbus/internal/bus"
	"github.com/alfredjeanlab/msgbus/internal/events"
)

// BusServer adapts a *bus.Bus to the transports.
type BusServer struct {
	bus    *bus.Bus
	sseHub *sseHub
	logger *slog.Logger
}

// NewBusServer returns a BusServer and subscribes its SSE hub to b.
func NewBusServer(b *bus.Bus, logger *slog.Logger) *BusServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &BusServer{
		bus:    b,
		sseHub: newSSEHub(),
		logger: logger,
	}
	b.OnPublish(s.broadcastPublished)
	return s
}

// broadcastPublished fans a published event out to SSE clients.
func (s *BusServer) broadcastPublished(p events.Published) {
	data, err := json.Marshal(p)
	if err != nil {
		s.logger.Warn("failed to marshal event for SSE broadcast", "name", p.Name, "event_id", p.ID, "err", err)
		return
	}
	s.sseHub.broadcast(p.Name, data)
}
