// Package session owns the state of the one tracking session that may run at
// a time.
//
// A Manager guards two things separately. The transition lock makes start and
// stop single-flight. The state lock protects the session fields, which the
// running loop reads at every iteration to find out whether it has been
// stopped or superseded.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contactkeval/iv-tracker/internal/symbol"
)

// State of the session lifecycle. Idle is initial and terminal.
type State int

const (
	Idle State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "idle"
	}
}

// Mode selects how the option symbol is chosen.
type Mode string

const (
	// Automatic re-derives the ATM option from the future price every tick.
	Automatic Mode = "automatic"
	// Manual tracks one externally supplied option symbol.
	Manual Mode = "manual"
)

// Info describes the current or last session.
type Info struct {
	ID           string            `json:"id,omitempty"`
	State        State             `json:"-"`
	Mode         Mode              `json:"mode,omitempty"`
	Exchange     string            `json:"exchange,omitempty"`
	Root         string            `json:"root,omitempty"`
	FutureSymbol string            `json:"future_symbol,omitempty"`
	OptionSymbol string            `json:"option_symbol,omitempty"`
	Strike       int               `json:"strike,omitempty"`
	Expiry       time.Time         `json:"expiry,omitempty"`
	Side         symbol.Side       `json:"-"`
	Kind         symbol.ExpiryKind `json:"-"`
	Timeframe    string            `json:"timeframe,omitempty"`
	Rate         float64           `json:"rate"`
	StartedAt    time.Time         `json:"started_at,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at,omitempty"`
}

// Active reports whether a loop should be running for this info.
func (i Info) Active() bool { return i.State == Running }

// Handle is given to the loop of one session.
type Handle struct {
	ID   string
	ctx  context.Context
	done chan struct{}
	once sync.Once
}

// Context is cancelled when the session is stopped or superseded.
func (h *Handle) Context() context.Context { return h.ctx }

// Exit must be called by the loop when it returns.
func (h *Handle) Exit() { h.once.Do(func() { close(h.done) }) }

// Manager tracks the single session.
type Manager struct {
	transition sync.Mutex

	mu     sync.RWMutex
	cur    Info
	cancel context.CancelFunc
	handle *Handle
	now    func() time.Time
}

// NewManager returns an idle manager.
func NewManager() *Manager {
	return &Manager{now: time.Now}
}

// TryAcquire takes the transition lock without waiting. The caller must call
// release when ok.
func (m *Manager) TryAcquire() (release func(), ok bool) {
	if !m.transition.TryLock() {
		return nil, false
	}
	return m.transition.Unlock, true
}

// Begin records info as the running session under a fresh id and returns
// the handle for its loop. Any earlier session must have been stopped.
func (m *Manager) Begin(parent context.Context, info Info) *Handle {
	ctx, cancel := context.WithCancel(parent)
	h := &Handle{ID: uuid.NewString(), ctx: ctx, done: make(chan struct{})}

	m.mu.Lock()
	defer m.mu.Unlock()
	info.ID = h.ID
	info.State = Running
	info.StartedAt = m.now()
	info.UpdatedAt = info.StartedAt
	m.cur, m.cancel, m.handle = info, cancel, h
	return h
}

// IsCurrent reports whether id is still the running session.
func (m *Manager) IsCurrent(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur.ID == id && m.cur.State == Running
}

// Update applies fn to the session fields if id is still current.
func (m *Manager) Update(id string, fn func(*Info)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur.ID != id || m.cur.State != Running {
		return false
	}
	fn(&m.cur)
	m.cur.UpdatedAt = m.now()
	return true
}

// Snapshot returns a copy of the session fields.
func (m *Manager) Snapshot() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

// Stop marks a running session as stopping and cancels its context. It
// returns a channel closed when the loop exits, or nil when nothing ran.
func (m *Manager) Stop() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur.State != Running || m.handle == nil {
		return nil
	}
	m.cur.State = Stopping
	m.cancel()
	return m.handle.done
}

// End returns the manager to Idle, keeping the last session's fields.
func (m *Manager) End() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cur.State = Idle
	m.handle, m.cancel = nil, nil
}
