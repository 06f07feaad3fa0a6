package build

import (
	"sync"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// State is a phase of the build cycle.
type State string

const (
	StateIdle      State = "idle"
	StateScanning  State = "scanning"
	StateParsing   State = "parsing"
	StateRendering State = "rendering"
	StateWriting   State = "writing"
	StateWatching  State = "watching"
)

func isAllowedTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateScanning || to == StateWatching
	case StateWatching:
		return to == StateScanning || to == StateIdle
	case StateScanning:
		return to == StateParsing || to == StateIdle
	case StateParsing:
		return to == StateRendering || to == StateIdle
	case StateRendering:
		return to == StateWriting || to == StateIdle
	case StateWriting:
		return to == StateIdle
	default:
		return false
	}
}

// stateMachine tracks the engine's phase. A build that ends early (fatal
// error or cancellation) returns to Idle from whatever phase it reached.
type stateMachine struct {
	mu      sync.RWMutex
	current State
	// watching makes Idle fall back to Watching after each build.
	watching bool
}

func newStateMachine() *stateMachine {
	return &stateMachine{current: StateIdle}
}

func (m *stateMachine) get() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *stateMachine) transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !isAllowedTransition(m.current, to) {
		return ferrors.InternalError("invalid build state transition").
			WithContext("from", string(m.current)).
			WithContext("to", string(to)).
			Build()
	}
	m.current = to
	return nil
}

// finish ends a build cycle: Idle, then Watching when the preview owns the
// engine.
func (m *stateMachine) finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = StateIdle
	if m.watching {
		m.current = StateWatching
	}
}

func (m *stateMachine) setWatching(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watching = on
	switch {
	case on && m.current == StateIdle:
		m.current = StateWatching
	case !on && m.current == StateWatching:
		m.current = StateIdle
	}
}
