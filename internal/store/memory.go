package store

import (
	"sync"
	"time"
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// StateInitial is the flow-state tag before any intake flow completes.
const StateInitial = "initial"

type Turn struct {
	Role string
	Text string
}

// Transcript is the ordered conversation history for one user.
type Transcript struct {
	UserID string
	State  string
	Turns  []Turn
}

type entry struct {
	state     string
	turns     []Turn
	updatedAt time.Time
}

// MemoryStore holds per-user transcripts in process memory. Transcripts are
// trimmed to maxTurns (keeping the seeded instruction pair) and evicted after
// sitting idle for ttl.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	locks    map[string]*sync.Mutex
	maxTurns int
	ttl      time.Duration
	now      func() time.Time
}

func NewMemoryStore(maxTurns int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string]*entry),
		locks:    make(map[string]*sync.Mutex),
		maxTurns: maxTurns,
		ttl:      ttl,
		now:      time.Now,
	}
}

// LockUser serializes the read-complete-write pipeline for a single user.
// Distinct users proceed concurrently. The returned func releases the lock.
func (m *MemoryStore) LockUser(userID string) func() {
	m.mu.Lock()
	l, ok := m.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[userID] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Get returns a copy of the user's transcript, or a fresh empty one for an
// unseen (or expired) user.
func (m *MemoryStore) Get(userID string) Transcript {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[userID]
	if !ok || m.expired(e) {
		return Transcript{UserID: userID, State: StateInitial}
	}
	turns := make([]Turn, len(e.turns))
	copy(turns, e.turns)
	return Transcript{UserID: userID, State: e.state, Turns: turns}
}

// AppendTurns appends turns to the user's transcript, creating it on first
// contact.
func (m *MemoryStore) AppendTurns(userID string, turns ...Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	if !ok || m.expired(e) {
		e = &entry{state: StateInitial}
		m.entries[userID] = e
	}
	e.turns = append(e.turns, turns...)
	e.updatedAt = m.now()
	m.trimLocked(e)
}

func (m *MemoryStore) SetState(userID, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[userID]; ok {
		e.state = state
		e.updatedAt = m.now()
	}
}

// Sweep drops transcripts idle beyond the TTL. A per-user lock is only
// discarded when no request holds it; an in-flight pipeline keeps its lock so
// a follow-up request for the same user still serializes behind it.
func (m *MemoryStore) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if m.expired(e) {
			delete(m.entries, id)
			if l, ok := m.locks[id]; ok && l.TryLock() {
				l.Unlock()
				delete(m.locks, id)
			}
		}
	}
}

func (m *MemoryStore) expired(e *entry) bool {
	return m.ttl > 0 && m.now().Sub(e.updatedAt) > m.ttl
}

// trimLocked caps the transcript at maxTurns. The first two turns carry the
// seeded instruction and acknowledgement and are never dropped.
func (m *MemoryStore) trimLocked(e *entry) {
	if m.maxTurns <= 2 || len(e.turns) <= m.maxTurns {
		return
	}
	keep := m.maxTurns - 2
	trimmed := make([]Turn, 0, m.maxTurns)
	trimmed = append(trimmed, e.turns[:2]...)
	trimmed = append(trimmed, e.turns[len(e.turns)-keep:]...)
	e.turns = trimmed
}
