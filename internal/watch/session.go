// Package watch owns the game watch loop: a fixed-rate polling state
// machine that follows one live game from navigation to a terminal
// state, recording phase transitions along the way.
package watch

import (
	"sync"
	"time"
)

// FinishReason labels the terminal state of a watch.
type FinishReason string

const (
	// FinishSuccess means the game-over flag was observed; the end-of-game
	// payload may still be absent (partial result).
	FinishSuccess FinishReason = "success"
	// FinishTimeout means no phase change inside the stall window.
	FinishTimeout FinishReason = "timeout"
	// FinishError means a probe fault or panic ended the watch.
	FinishError FinishReason = "error"
	// FinishCanceled means the surrounding context was canceled.
	FinishCanceled FinishReason = "canceled"
)

// Transition is one observed phase change together with the full raw
// state at that moment. The log is append-only while the watch runs; its
// last element is the authoritative latest known state.
type Transition struct {
	Phase string
	State map[string]any
}

// Session is the mutable record of one watched game. The loop goroutine
// is the only writer; the registry sweep and the command surface read
// through the mutex-guarded accessors, which is the visibility barrier
// for the active flag and captured results.
type Session struct {
	id      string
	channel string

	mu          sync.RWMutex
	transitions []Transition
	names       map[int]string
	endState    map[string]any
	active      bool
	lastChange  time.Time
	startedAt   time.Time
	reason      FinishReason
	err         error
}

// NewSession creates an active session for a game id. channel is the
// notification destination that asked for the watch.
func NewSession(id, channel string) *Session {
	now := time.Now()
	return &Session{
		id:         id,
		channel:    channel,
		active:     true,
		startedAt:  now,
		lastChange: now,
	}
}

// ID returns the watched game id.
func (s *Session) ID() string { return s.id }

// Channel returns the origin notification channel.
func (s *Session) Channel() string { return s.channel }

// Active reports whether the watch loop is still running.
func (s *Session) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Latest returns the most recent transition, if any. Defined while the
// game is still ongoing.
func (s *Session) Latest() (Transition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.transitions) == 0 {
		return Transition{}, false
	}
	return s.transitions[len(s.transitions)-1], true
}

// Transitions returns a copy of the transition log.
func (s *Session) Transitions() []Transition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Transition, len(s.transitions))
	copy(out, s.transitions)
	return out
}

// Names returns the color code to username mapping captured at watch
// start.
func (s *Session) Names() map[int]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]string, len(s.names))
	for k, v := range s.names {
		out[k] = v
	}
	return out
}

// EndState returns the end-of-game payload, or nil if it never appeared.
func (s *Session) EndState() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endState
}

// Finish returns the terminal reason and error once the session is no
// longer active. Zero values while the watch still runs.
func (s *Session) Finish() (FinishReason, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason, s.err
}

// LastChange returns the time of the most recent observed phase change.
func (s *Session) LastChange() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastChange
}

// StartedAt returns when the watch began.
func (s *Session) StartedAt() time.Time { return s.startedAt }

func (s *Session) appendTransition(phase string, state map[string]any) {
	s.mu.Lock()
	s.transitions = append(s.transitions, Transition{Phase: phase, State: state})
	s.lastChange = time.Now()
	s.mu.Unlock()
}

func (s *Session) setNames(names map[int]string) {
	s.mu.Lock()
	s.names = names
	s.mu.Unlock()
}

func (s *Session) setEndState(end map[string]any) {
	s.mu.Lock()
	s.endState = end
	s.mu.Unlock()
}

// finish flips the session terminal exactly once; later calls are
// ignored so a panic in teardown cannot overwrite the real reason.
func (s *Session) finish(reason FinishReason, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.active = false
	s.reason = reason
	s.err = err
}
