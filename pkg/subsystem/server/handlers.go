package server

import (
	"context"
	"net/http"
	"time"
)

// Store is the persistence view the handlers need.
type Store interface {
	Healthcheck(ctx context.Context) error
	BootCount() uint64
}

// NodeInfo is returned by GET /api/v1/node.
type NodeInfo struct {
	NodeID    string    `json:"node_id"`
	Version   string    `json:"version"`
	Hostname  string    `json:"hostname"`
	Embedded  bool      `json:"embedded"`
	BootCount uint64    `json:"boot_count"`
	StartedAt time.Time `json:"started_at"`
	Uptime    string    `json:"uptime"`
}

type handlers struct {
	info      NodeInfo
	store     Store
	startedAt time.Time
}

// liveness reports that the process is serving requests.
func (h *handlers) liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthy(map[string]string{
		"node_id": h.info.NodeID,
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
	}))
}

// readiness reports whether persistence can serve requests.
func (h *handlers) readiness(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthy("persistence not configured"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.store.Healthcheck(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthy(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, healthy(nil))
}

func (h *handlers) node(w http.ResponseWriter, _ *http.Request) {
	info := h.info
	info.StartedAt = h.startedAt.UTC()
	info.Uptime = time.Since(h.startedAt).Round(time.Second).String()
	if h.store != nil {
		info.BootCount = h.store.BootCount()
	}
	writeJSON(w, http.StatusOK, ok(info))
}
