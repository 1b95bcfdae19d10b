// Package session holds per-connection device state and the process-wide
// registry the admin surface reads from.
package session

import (
	"net"
	"sync"
	"time"

	"github.com/angelzd27/api-ruptela/internal/protocol"
)

// State is the Session's position in the per-connection state machine.
type State int

const (
	StateConnected State = iota
	StateLoggedIn
	StatePolling
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateLoggedIn:
		return "logged_in"
	case StatePolling:
		return "polling"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PollScheduler is the subset of the GPS Poll Scheduler's interface the
// Session needs: cancellation on close and a hook to tell it a fix just
// arrived (so it can down-shift phase).
type PollScheduler interface {
	Cancel()
	NoteFixReceived(at time.Time)
}

// Session is the per-connection record a connection worker owns. The
// only other writer is the session's poll scheduler goroutine, which
// advances the outbound serial and the ACK counter through the methods
// below; every access goes through the Session's own mutex. The admin
// registry only reads a snapshot.
type Session struct {
	ConnID     string
	RemoteAddr net.Addr
	Family     protocol.Family
	SourcePort int

	mu           sync.Mutex
	state        State
	imei         string
	lastSerial   uint16
	nextSerial   uint16
	lastFixAt    time.Time
	hasLastFix   bool
	scheduler    PollScheduler
	framesSeen   int64
	acksSent     int64
}

// New creates a Connected session for a freshly accepted socket.
func New(connID string, remote net.Addr, family protocol.Family, sourcePort int) *Session {
	return &Session{
		ConnID:     connID,
		RemoteAddr: remote,
		Family:     family,
		SourcePort: sourcePort,
		state:      StateConnected,
	}
}

// IMEI returns the device identifier, empty until Login sets it.
func (s *Session) IMEI() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.imei
}

// State returns the current state machine position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetLoggedIn stamps the IMEI (immutable thereafter) and transitions to
// LoggedIn. A second call with a different IMEI is ignored: once set by
// Login processing, a Session's IMEI does not change for the life of the
// connection.
func (s *Session) SetLoggedIn(imei string) (wasAlreadyLoggedIn bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.imei != "" {
		return true
	}
	s.imei = imei
	s.state = StateLoggedIn
	return false
}

// SetPolling transitions LoggedIn -> Polling and attaches the scheduler
// handle. Exactly one scheduler exists per Jimi session at a time: a
// second call replaces the handle only after canceling the first.
func (s *Session) SetPolling(sched PollScheduler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler != nil {
		s.scheduler.Cancel()
	}
	s.scheduler = sched
	if s.state == StateLoggedIn {
		s.state = StatePolling
	}
}

// NoteFix records the wallclock time a valid fix was received and
// notifies the poll scheduler, if any.
func (s *Session) NoteFix(at time.Time) {
	s.mu.Lock()
	sched := s.scheduler
	s.lastFixAt = at
	s.hasLastFix = true
	s.mu.Unlock()
	if sched != nil {
		sched.NoteFixReceived(at)
	}
}

// LastFix returns the last fix wallclock time and whether one has ever
// been recorded.
func (s *Session) LastFix() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFixAt, s.hasLastFix
}

// NextOutboundSerial increments and returns the monotonic serial used for
// frames the server originates toward the device (poll requests, time
// responses).
func (s *Session) NextOutboundSerial() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSerial++
	return s.nextSerial
}

// NoteFrame records bookkeeping for the admin stats surface.
func (s *Session) NoteFrame(lastSerial uint16) {
	s.mu.Lock()
	s.lastSerial = lastSerial
	s.framesSeen++
	s.mu.Unlock()
}

// NoteAck records that an ACK was written, for the admin stats surface.
func (s *Session) NoteAck() {
	s.mu.Lock()
	s.acksSent++
	s.mu.Unlock()
}

// Close transitions to Closed and cancels any attached scheduler. It is
// safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	sched := s.scheduler
	s.scheduler = nil
	s.state = StateClosed
	s.mu.Unlock()
	if sched != nil {
		sched.Cancel()
	}
}

// Snapshot is a point-in-time, lock-free copy of a Session's counters for
// the admin stats endpoint.
type Snapshot struct {
	ConnID     string    `json:"conn_id"`
	IMEI       string    `json:"imei"`
	Protocol   string    `json:"protocol"`
	SourcePort int       `json:"source_port"`
	RemoteAddr string    `json:"remote_addr"`
	State      string    `json:"state"`
	FramesSeen int64     `json:"frames_seen"`
	AcksSent   int64     `json:"acks_sent"`
	LastFixAt  time.Time `json:"last_fix_at,omitempty"`
}

// Snapshot copies out the fields the admin surface exposes.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	remote := ""
	if s.RemoteAddr != nil {
		remote = s.RemoteAddr.String()
	}
	return Snapshot{
		ConnID:     s.ConnID,
		IMEI:       s.imei,
		Protocol:   s.Family.String(),
		SourcePort: s.SourcePort,
		RemoteAddr: remote,
		State:      s.state.String(),
		FramesSeen: s.framesSeen,
		AcksSent:   s.acksSent,
		LastFixAt:  s.lastFixAt,
	}
}
