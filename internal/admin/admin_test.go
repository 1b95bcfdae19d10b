package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelzd27/api-ruptela/internal/fanout"
	"github.com/angelzd27/api-ruptela/internal/protocol"
	"github.com/angelzd27/api-ruptela/internal/session"
)

func TestHandleStatsReportsActiveSessions(t *testing.T) {
	registry := session.NewRegistry()
	s := session.New("conn-1", nil, protocol.FamilyJimi, 5023)
	s.SetLoggedIn("356938035643809")
	registry.Add(s)

	subs := fanout.NewSubscriberSet()

	h := NewHandler("node-01", registry, subs)
	req := httptest.NewRequest(http.MethodGet, "/jimi/stats", nil)
	rec := httptest.NewRecorder()

	h.Mux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "356938035643809")
	assert.Contains(t, rec.Body.String(), `"active_sessions":1`)
}

func TestHandleHealthReportsGatewayID(t *testing.T) {
	h := NewHandler("node-42", session.NewRegistry(), fanout.NewSubscriberSet())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.Mux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "node-42")
}
