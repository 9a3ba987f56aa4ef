package registry

import (
	"sort"
	"sync"

	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/credstore"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/domain"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/messaging"
)

// Handle is the registry entry of one live session. The client and store
// references are swapped in place across reconnects, so the identity stays
// registered while the session task replaces its connection.
type Handle struct {
	Identity string

	mu     sync.RWMutex
	client messaging.Client
	store  credstore.Store
	state  domain.ConnectionState
}

// NewHandle creates a handle in the connecting state.
func NewHandle(identity string) *Handle {
	return &Handle{Identity: identity, state: domain.StateConnecting}
}

// Attach sets the client and credential store references.
func (h *Handle) Attach(client messaging.Client, store credstore.Store) {
	h.mu.Lock()
	h.client = client
	h.store = store
	h.mu.Unlock()
}

// Client returns the current client reference (nil while reserving).
func (h *Handle) Client() messaging.Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.client
}

// Store returns the current credential store reference.
func (h *Handle) Store() credstore.Store {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.store
}

func (h *Handle) SetState(state domain.ConnectionState) {
	h.mu.Lock()
	h.state = state
	h.mu.Unlock()
}

func (h *Handle) State() domain.ConnectionState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Registry maps session identities to their handle and automation settings.
// Both maps live under one lock so a handle and its settings are always
// created and destroyed together.
type Registry struct {
	mu       sync.RWMutex
	handles  map[string]*Handle
	settings map[string]domain.SessionSettings
}

func New() *Registry {
	return &Registry{
		handles:  make(map[string]*Handle),
		settings: make(map[string]domain.SessionSettings),
	}
}

// Register inserts the handle with default settings. It returns false and
// changes nothing when the identity is already registered.
func (r *Registry) Register(identity string, h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handles[identity]; ok {
		return false
	}
	r.handles[identity] = h
	r.settings[identity] = domain.DefaultSessionSettings()
	return true
}

func (r *Registry) Lookup(identity string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[identity]
	return h, ok
}

// Remove deletes the handle and its settings. Removing an unknown identity
// is a no-op.
func (r *Registry) Remove(identity string) {
	r.mu.Lock()
	delete(r.handles, identity)
	delete(r.settings, identity)
	r.mu.Unlock()
}

// ListIdentities returns the registered identities in sorted order.
func (r *Registry) ListIdentities() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Settings returns the current settings of a registered identity.
func (r *Registry) Settings(identity string) (domain.SessionSettings, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.settings[identity]
	return s, ok
}

// UpdateSettings replaces the settings of identity with fn(current). The
// read-modify-write runs under the registry lock, so readers only ever see
// complete values. It returns false when the identity is not registered.
func (r *Registry) UpdateSettings(identity string, fn func(domain.SessionSettings) domain.SessionSettings) (domain.SessionSettings, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.settings[identity]
	if !ok {
		return domain.SessionSettings{}, false
	}
	next := fn(cur)
	r.settings[identity] = next
	return next, true
}

// Snapshot lists every registered session with its state and settings.
func (r *Registry) Snapshot() []domain.SessionInfo {
	r.mu.RLock()
	out := make([]domain.SessionInfo, 0, len(r.handles))
	for id, h := range r.handles {
		out = append(out, domain.SessionInfo{
			SessionName: id,
			State:       h.State(),
			Settings:    r.settings[id],
		})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SessionName < out[j].SessionName })
	return out
}
