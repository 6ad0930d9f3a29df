package scorevault

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// watchAllKey is the subscription key matching every policy.
const watchAllKey = "*"

// subscription represents an active event subscription.
type subscription struct {
	id       string
	key      string
	callback func(Event)
	active   atomic.Bool
}

// subscriptionManager handles event subscriptions with safe lifecycle
// management. It ensures callbacks are never invoked after unsubscription
// completes.
type subscriptionManager struct {
	mu     sync.RWMutex
	subs   map[string]map[string]*subscription // key -> subID -> subscription
	nextID atomic.Uint64
}

// newSubscriptionManager creates a new subscription manager.
func newSubscriptionManager() *subscriptionManager {
	return &subscriptionManager{
		subs: make(map[string]map[string]*subscription),
	}
}

// subscribe registers a callback for events on the given key (a policyID,
// or watchAllKey for all policies). The callback is invoked synchronously
// when events are emitted. Returns an unsubscribe function that must be
// called to clean up.
func (m *subscriptionManager) subscribe(key string, callback func(Event)) func() {
	id := strconv.FormatUint(m.nextID.Add(1), 10)

	sub := &subscription{
		id:       id,
		key:      key,
		callback: callback,
	}
	sub.active.Store(true)

	m.mu.Lock()
	if m.subs[key] == nil {
		m.subs[key] = make(map[string]*subscription)
	}
	m.subs[key][id] = sub
	m.mu.Unlock()

	return func() {
		m.unsubscribe(key, id)
	}
}

// unsubscribe removes a subscription. Safe to call multiple times.
func (m *subscriptionManager) unsubscribe(key, subID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if keySubs, ok := m.subs[key]; ok {
		if sub, ok := keySubs[subID]; ok {
			sub.active.Store(false) // Mark inactive before removing
			delete(keySubs, subID)
			if len(keySubs) == 0 {
				delete(m.subs, key)
			}
		}
	}
}

// notify calls all callbacks registered for the event's policy and all
// wildcard callbacks. Callbacks are invoked synchronously after releasing
// the read lock. The active flag is checked before invoking to prevent
// calls after unsubscribe.
func (m *subscriptionManager) notify(ev Event) {
	m.mu.RLock()
	keySubs := m.subs[ev.EventPolicyID()]
	allSubs := m.subs[watchAllKey]
	if len(keySubs) == 0 && len(allSubs) == 0 {
		m.mu.RUnlock()
		return
	}

	// Copy subscriptions to avoid holding lock during callbacks
	subs := make([]*subscription, 0, len(keySubs)+len(allSubs))
	for _, sub := range keySubs {
		subs = append(subs, sub)
	}
	for _, sub := range allSubs {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		if sub.active.Load() {
			sub.callback(ev)
		}
	}
}

// clear removes all subscriptions. Called during Ledger.Close().
func (m *subscriptionManager) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, keySubs := range m.subs {
		for _, sub := range keySubs {
			sub.active.Store(false)
		}
	}
	m.subs = make(map[string]map[string]*subscription)
}
