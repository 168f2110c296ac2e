package subscriber

import (
	"fmt"
	"sort"
	"sync"

	"github.com/linluma/chartsync/shared/models"
)

// Action is the verb of a client subscription message
type Action string

const (
	ActionSubscribe   Action = "subscribe"
	ActionUnsubscribe Action = "unsubscribe"
)

// Transport is the live side of the registry. Messages are only sent while it is connected
type Transport interface {
	Connected() bool
	Send(action Action, key models.SubscriptionKey) error
}

// Registry tracks which streams are live, counting one reference per consumer
type Registry struct {
	mu        sync.Mutex
	refs      map[models.SubscriptionKey]int
	transport Transport
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		refs: make(map[models.SubscriptionKey]int),
	}
}

// Bind sets the transport used for immediate subscribe/unsubscribe messages
func (r *Registry) Bind(t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transport = t
}

// Subscribe adds a reference to key. The wire message is sent on the first reference only
func (r *Registry) Subscribe(key models.SubscriptionKey) error {
	r.mu.Lock()
	r.refs[key]++
	first := r.refs[key] == 1
	t := r.transport
	r.mu.Unlock()

	if !first {
		return nil
	}
	return r.send(t, ActionSubscribe, key)
}

// Unsubscribe drops a reference to key. The wire message is sent when the last reference goes away.
// Unsubscribing an unknown key is a no-op
func (r *Registry) Unsubscribe(key models.SubscriptionKey) error {
	r.mu.Lock()
	count, ok := r.refs[key]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	last := count <= 1
	if last {
		delete(r.refs, key)
	} else {
		r.refs[key] = count - 1
	}
	t := r.transport
	r.mu.Unlock()

	if !last {
		return nil
	}
	return r.send(t, ActionUnsubscribe, key)
}

func (r *Registry) send(t Transport, action Action, key models.SubscriptionKey) error {
	if t == nil || !t.Connected() {
		return nil
	}
	if err := t.Send(action, key); err != nil {
		return fmt.Errorf("failed to %s %s: %w", action, key, err)
	}
	return nil
}

// Has reports whether key has at least one reference
func (r *Registry) Has(key models.SubscriptionKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs[key] > 0
}

// Refs returns the reference count of key
func (r *Registry) Refs(key models.SubscriptionKey) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs[key]
}

// Keys returns every tracked key, sorted for stable replay and logging
func (r *Registry) Keys() []models.SubscriptionKey {
	r.mu.Lock()
	keys := make([]models.SubscriptionKey, 0, len(r.refs))
	for key := range r.refs {
		keys = append(keys, key)
	}
	r.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}
