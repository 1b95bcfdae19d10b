package session

import "sync"

// Registry is the process-wide map of live sessions, keyed by IMEI once
// known and by connection id always. It is the collaborator the admin
// `/jimi/stats` handler reads, grounded on the teacher's
// TCPServer.sessions sync.Map plus handleSessions.
type Registry struct {
	mu       sync.RWMutex
	byConn   map[string]*Session
	byIMEI   map[string]*Session
}

// NewRegistry builds an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]*Session),
		byIMEI: make(map[string]*Session),
	}
}

// Add registers a newly accepted connection's Session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byConn[s.ConnID] = s
}

// BindIMEI indexes a session by IMEI once Login has set it, replacing any
// stale entry for the same IMEI left by a prior connection that never
// closed cleanly.
func (r *Registry) BindIMEI(imei string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byIMEI[imei] = s
}

// Remove drops a session from the registry on connection close.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byConn, s.ConnID)
	if imei := s.IMEI(); imei != "" {
		if cur, ok := r.byIMEI[imei]; ok && cur == s {
			delete(r.byIMEI, imei)
		}
	}
}

// ByIMEI looks up the currently connected session for a device, if any.
func (r *Registry) ByIMEI(imei string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byIMEI[imei]
	return s, ok
}

// Snapshots returns a point-in-time copy of every live session's stats,
// for the `/jimi/stats` admin endpoint.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.byConn))
	for _, s := range r.byConn {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	return out
}
