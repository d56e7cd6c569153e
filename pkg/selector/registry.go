package selector

import "sync"

// Registry keeps one Session per tab.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Session returns the session for tabID, creating it with page if absent.
// An existing session keeps its state but picks up the new page details.
func (r *Registry) Session(tabID string, page Page) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[tabID]; ok {
		s.SetPage(page)
		return s
	}
	s := NewSession(tabID, page)
	r.sessions[tabID] = s
	return s
}

// Lookup returns an existing session.
func (r *Registry) Lookup(tabID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[tabID]
	return s, ok
}

// Start arms the session for tabID. Concurrent starts for the same tab
// result in exactly one transition.
func (r *Registry) Start(tabID string, page Page) bool {
	return r.Session(tabID, page).Start()
}

// Remove forgets a tab, e.g. when it closes.
func (r *Registry) Remove(tabID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, tabID)
}

// Len returns the number of tracked tabs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
