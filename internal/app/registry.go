package app

import (
	"sync"

	"pvp-quiz-service/internal/domain"
)

// ConnInfo is what the registry knows about one live connection.
type ConnInfo struct {
	ConnID      string
	Participant domain.Participant
	Topic       string
}

type connEntry struct {
	info    ConnInfo
	onClose func()
}

// Registry tracks live transport connections and their participant/topic
// binding. A participant may hold at most one live connection per topic;
// reconnecting requires the stale connection to close first.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]connEntry
	byOwner map[string]string // topic + "/" + userID -> connID
}

func NewRegistry() *Registry {
	return &Registry{
		conns:   make(map[string]connEntry),
		byOwner: make(map[string]string),
	}
}

// Register binds a connection to a participant within a topic. onClose is the
// owning room or match's disconnect notification, invoked exactly once when
// the connection is unregistered; it may be nil. Returns
// ErrDuplicateConnection if the participant already has a live connection on
// the topic.
func (r *Registry) Register(connID string, p domain.Participant, topic string, onClose func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner := topic + "/" + p.UserID
	if _, exists := r.byOwner[owner]; exists {
		return domain.ErrDuplicateConnection
	}
	r.conns[connID] = connEntry{
		info:    ConnInfo{ConnID: connID, Participant: p, Topic: topic},
		onClose: onClose,
	}
	r.byOwner[owner] = connID
	return nil
}

// Unregister removes a connection and notifies its owner. Idempotent; unknown
// IDs are ignored. The notification runs after the registry lock is released
// so owners are free to take their own locks.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	entry, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, connID)
	delete(r.byOwner, entry.info.Topic+"/"+entry.info.Participant.UserID)
	r.mu.Unlock()

	if entry.onClose != nil {
		entry.onClose()
	}
}

// Lookup returns the binding for a connection, if it is live.
func (r *Registry) Lookup(connID string) (ConnInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.conns[connID]
	return entry.info, ok
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
