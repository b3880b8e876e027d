package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long an idle session is kept.
const DefaultTTL = 30 * time.Minute

// closeTimeout bounds how long closing an evicted session's index may take.
const closeTimeout = 10 * time.Second

// entry is a State plus its last access time, used for eviction.
type entry struct {
	state    *State
	lastSeen time.Time
}

// Manager maps session IDs to isolated States. It is safe for concurrent use.
type Manager struct {
	// mu protects sessions.
	mu sync.Mutex
	// sessions maps session ID to its entry.
	sessions map[string]*entry
	// ttl is the idle time after which a session is evicted.
	ttl time.Duration
	// now is the clock, replaced in tests.
	now func() time.Time
	// log is the structured logger for eviction events.
	log *slog.Logger
	// onEvict is called with the ID of every evicted session.
	onEvict func(id string)
}

// NewManager constructs a Manager and starts the background eviction
// goroutine. The goroutine exits when the returned stop function is called.
// A non-positive ttl uses DefaultTTL.
func NewManager(ttl time.Duration, log *slog.Logger) (*Manager, func()) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		now:      time.Now,
		log:      log,
	}

	stopCh := make(chan struct{})
	go m.evictLoop(stopCh)

	return m, func() { close(stopCh) }
}

// OnEvict registers fn to run for every session removed by eviction. It must
// be called before the Manager is shared.
func (m *Manager) OnEvict(fn func(id string)) { m.onEvict = fn }

// Get returns the State for id and marks it as used. ok is false for unknown
// or malformed IDs.
func (m *Manager) Get(id string) (*State, bool) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = m.now()
	return e.state, true
}

// Create registers a new empty session and returns its ID.
func (m *Manager) Create() (string, *State) {
	st := NewState()
	id := st.ID()

	m.mu.Lock()
	m.sessions[id] = &entry{state: st, lastSeen: m.now()}
	m.mu.Unlock()

	m.log.Debug("session: created", slog.String("session", id))
	return id, st
}

// GetOrCreate returns the State for id, creating a fresh session under a new
// ID when id is unknown. created reports whether a new ID was issued.
func (m *Manager) GetOrCreate(id string) (sid string, st *State, created bool) {
	if st, ok := m.Get(id); ok {
		return id, st, false
	}
	sid, st = m.Create()
	return sid, st, true
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// evictLoop runs evict periodically until stopCh is closed.
func (m *Manager) evictLoop(stopCh <-chan struct{}) {
	interval := min(m.ttl/2, time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.evict()
		}
	}
}

// evict removes sessions idle for longer than the TTL and closes their
// indexes outside the lock.
func (m *Manager) evict() int {
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	var stale []*State
	for id, e := range m.sessions {
		if e.lastSeen.Before(cutoff) {
			stale = append(stale, e.state)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, st := range stale {
		m.log.Debug("session: evicted", slog.String("session", st.ID()))
		if m.onEvict != nil {
			m.onEvict(st.ID())
		}
	}
	m.closeAll(stale)
	return len(stale)
}

// Close drops every session and releases their indexes.
func (m *Manager) Close() {
	m.mu.Lock()
	all := make([]*State, 0, len(m.sessions))
	for id, e := range m.sessions {
		all = append(all, e.state)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	m.closeAll(all)
}

func (m *Manager) closeAll(states []*State) {
	for _, st := range states {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		if err := st.Close(ctx); err != nil {
			m.log.Warn("session: failed to close index", slog.Any("error", err))
		}
		cancel()
	}
}
