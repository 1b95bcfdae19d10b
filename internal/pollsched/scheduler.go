// Package pollsched implements the Jimi GPS Poll Scheduler: a per-device
// timer loop in one of three phases (aggressive, steady, idle) that
// transmits "request location" frames until the device reports
// autonomously.
package pollsched

import (
	"sync"
	"time"
)

// Phase is the scheduler's current cadence.
type Phase int

const (
	PhaseAggressive Phase = iota
	PhaseSteady
	PhaseIdle
)

func (p Phase) String() string {
	switch p {
	case PhaseAggressive:
		return "aggressive"
	case PhaseSteady:
		return "steady"
	case PhaseIdle:
		return "idle"
	default:
		return "unknown"
	}
}

const (
	aggressiveInterval = 15 * time.Second
	aggressiveMaxFires = 6
	steadyInterval     = 60 * time.Second
	steadyFixStaleFor  = 90 * time.Second
	idleInterval       = 300 * time.Second
	idleFixStaleFor    = 300 * time.Second
)

// Sender is what the scheduler calls to transmit a request-location
// frame; the connection worker supplies this, serialized against ACK
// writes on the same socket per spec.md §5.
type Sender interface {
	SendLocationRequest()
}

// Scheduler is a lightweight timer-driven task, one per Jimi Session,
// cancellable synchronously with Session close.
type Scheduler struct {
	sender Sender

	mu         sync.Mutex
	phase      Phase
	fires      int
	lastFixAt  time.Time
	hasLastFix bool
	closed     bool

	cancel chan struct{}
	done   chan struct{}

	aggressiveEvery time.Duration
	steadyEvery     time.Duration
	idleEvery       time.Duration
}

// New creates and starts a scheduler in the Aggressive phase. It fires
// immediately (within implementation jitter) and then on its own timer
// until Cancel is called.
func New(sender Sender) *Scheduler {
	return newWithIntervals(sender, aggressiveInterval, steadyInterval, idleInterval)
}

// newWithIntervals is the constructor tests use to shrink the three
// phase intervals down to something a test can wait on without sleeping
// for minutes.
func newWithIntervals(sender Sender, aggressive, steady, idle time.Duration) *Scheduler {
	s := &Scheduler{
		sender:          sender,
		phase:           PhaseAggressive,
		cancel:          make(chan struct{}),
		done:            make(chan struct{}),
		aggressiveEvery: aggressive,
		steadyEvery:     steady,
		idleEvery:       idle,
	}
	go s.run()
	return s
}

// NoteFixReceived tells the scheduler a valid GPS fix just arrived, so it
// can down-shift phase per spec.md §4.5.
func (s *Scheduler) NoteFixReceived(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFixAt = at
	s.hasLastFix = true
}

// Cancel stops the scheduler; no further fires happen after it returns.
// Safe to call more than once or concurrently with a fire.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.cancel)
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)

	if s.fireIfOpen() {
		return
	}

	for {
		interval := s.currentInterval()
		t := time.NewTimer(interval)
		select {
		case <-s.cancel:
			t.Stop()
			return
		case <-t.C:
			if s.tick() {
				return
			}
		}
	}
}

func (s *Scheduler) currentInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case PhaseAggressive:
		return s.aggressiveEvery
	case PhaseSteady:
		return s.steadyEvery
	default:
		return s.idleEvery
	}
}

// tick runs one phase-appropriate decision and returns true if the
// scheduler has been canceled and should stop.
func (s *Scheduler) tick() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return true
	}

	switch s.phase {
	case PhaseAggressive:
		s.fires++
		shouldSend := true
		if s.fires >= aggressiveMaxFires {
			s.phase = PhaseSteady
		}
		s.mu.Unlock()
		if shouldSend {
			s.sender.SendLocationRequest()
		}
		return false

	case PhaseSteady:
		stale := !s.hasLastFix || time.Since(s.lastFixAt) >= steadyFixStaleFor
		if !stale {
			s.phase = PhaseIdle
			s.mu.Unlock()
			return false
		}
		s.mu.Unlock()
		s.sender.SendLocationRequest()
		return false

	default: // PhaseIdle
		stale := !s.hasLastFix || time.Since(s.lastFixAt) >= idleFixStaleFor
		s.mu.Unlock()
		if stale {
			s.sender.SendLocationRequest()
		}
		return false
	}
}

// fireIfOpen sends the immediate first Aggressive-phase fire. Returns
// true if canceled before it could fire.
func (s *Scheduler) fireIfOpen() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return true
	}
	s.fires++
	s.mu.Unlock()
	s.sender.SendLocationRequest()
	return false
}

// CurrentPhase reports the scheduler's phase, for the admin stats
// surface and tests.
func (s *Scheduler) CurrentPhase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}
