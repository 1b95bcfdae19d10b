// Package admin implements the gateway's read-only HTTP surface: the
// `/jimi/stats` endpoint the operator dashboard polls, grounded on the
// teacher's handleHealth/handleSessions handlers.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/angelzd27/api-ruptela/internal/fanout"
	"github.com/angelzd27/api-ruptela/internal/session"
)

// Handler serves the admin/stats HTTP surface. It only reads from the
// Session registry and Subscriber set; it has no write endpoints, per
// spec.md's exclusion of the alarm/command admin API.
type Handler struct {
	GatewayID   string
	Registry    *session.Registry
	Subscribers *fanout.SubscriberSet
}

// NewHandler builds an admin handler bound to the given collaborators.
func NewHandler(gatewayID string, registry *session.Registry, subs *fanout.SubscriberSet) *Handler {
	return &Handler{GatewayID: gatewayID, Registry: registry, Subscribers: subs}
}

// Mux builds the http.Handler exposing this gateway's read-only routes.
func (h *Handler) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/jimi/stats", h.handleStats)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":     "ok",
		"gateway_id": h.GatewayID,
	})
}

type statsResponse struct {
	GatewayID          string            `json:"gateway_id"`
	ActiveSessions     int               `json:"active_sessions"`
	ActiveSubscribers  int               `json:"active_subscribers"`
	Sessions           []session.Snapshot `json:"sessions"`
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	snapshots := h.Registry.Snapshots()

	resp := statsResponse{
		GatewayID:         h.GatewayID,
		ActiveSessions:    len(snapshots),
		ActiveSubscribers: h.Subscribers.Count(),
		Sessions:          snapshots,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
