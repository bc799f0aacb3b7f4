package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("session not found")
	// ErrExists is returned when creating a session with a taken id.
	ErrExists = errors.New("session already exists")
)

// Handle guards a Session so that concurrent controllers never step it at the
// same time.
type Handle struct {
	mu sync.Mutex
	s  *Session
}

// Do runs fn with exclusive access to the session.
func (h *Handle) Do(fn func(*Session) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fn(h.s)
}

// Snapshot reads the session state under the lock.
func (h *Handle) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.s.Snapshot()
}

// Registry owns the sessions of a server, keyed by id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Handle
	build    func(id string) *Session
}

// NewRegistry returns an empty registry. build creates the session for a new
// id; nil uses New(WithID(id)).
func NewRegistry(build func(id string) *Session) *Registry {
	if build == nil {
		build = func(id string) *Session { return New(WithID(id)) }
	}
	return &Registry{sessions: make(map[string]*Handle), build: build}
}

// Create adds a session with a random id.
func (r *Registry) Create() (string, *Handle) {
	for {
		id := uuid.NewString()
		if h, err := r.CreateWithID(id); err == nil {
			return id, h
		}
	}
}

// CreateWithID adds a session with a caller-chosen id.
func (r *Registry) CreateWithID(id string) (*Handle, error) {
	if id == "" {
		return nil, errors.New("empty session id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, id)
	}
	h := &Handle{s: r.build(id)}
	r.sessions[id] = h
	return h, nil
}

// Get returns the handle for id.
func (r *Registry) Get(id string) (*Handle, error) {
	r.mu.RLock()
	h, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return h, nil
}

// GetOrCreate returns the session for id, creating it when missing.
func (r *Registry) GetOrCreate(id string) (*Handle, error) {
	if h, err := r.Get(id); err == nil {
		return h, nil
	}
	h, err := r.CreateWithID(id)
	if errors.Is(err, ErrExists) {
		return r.Get(id)
	}
	return h, err
}

// Delete closes and removes the session.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	h, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return h.Do(func(s *Session) error {
		if err := s.Close(); err != nil && !errors.Is(err, ErrSessionClosed) {
			return err
		}
		return nil
	})
}

// IDs lists the session ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close closes every session and empties the registry.
func (r *Registry) Close() {
	for _, id := range r.IDs() {
		_ = r.Delete(id)
	}
}
