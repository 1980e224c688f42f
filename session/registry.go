package session

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tonkit/tonconnect/storage"
)

// ErrSessionNotFound is returned by lookups that miss. Disconnect and
// push paths treat it as a normal no-op outcome rather than a failure.
var ErrSessionNotFound = errors.New("session not found")

const sessionKeyPrefix = "app:"

// registryKey is the stable session key: walletID + canonical host.
func registryKey(walletID, rawURL string) string {
	return walletID + "|" + HostOf(rawURL)
}

// Registry is the single source of truth for active sessions. It keeps
// an in-memory observable snapshot backed by durable storage; every
// mutation updates both under one writer lock so readers never observe a
// torn state.
//
// Duplicate sessions for the same effective dApp are tolerated at write
// time (each connect generates a fresh key pair) and collapsed by
// public-key fingerprint at read time via DistinctByFingerprint.
type Registry struct {
	mu       sync.RWMutex
	store    storage.Store
	sessions map[string]*Session
	order    []string
	watchers map[string]chan []*Session
}

// NewRegistry creates a registry over the given store. Call Load to
// populate it from durable state.
func NewRegistry(store storage.Store) *Registry {
	return &Registry{
		store:    store,
		sessions: make(map[string]*Session),
		watchers: make(map[string]chan []*Session),
	}
}

// Load populates the in-memory snapshot from storage. Corrupt records
// are skipped with a warning; one bad record never hides the rest.
func (r *Registry) Load() error {
	keys, err := r.store.Keys(sessionKeyPrefix)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range keys {
		data, err := r.store.Get(key)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Load",
				"key":      key,
				"error":    err.Error(),
			}).Warn("Failed to read session record")
			continue
		}

		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Load",
				"key":      key,
				"error":    err.Error(),
			}).Warn("Skipping corrupt session record")
			continue
		}

		r.insertLocked(&s)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Load",
		"sessions": len(r.sessions),
	}).Info("Session registry loaded")

	return nil
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Put inserts or replaces a session, writing storage first and the
// snapshot second under the writer lock.
func (r *Registry) Put(s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if err := r.store.Put(sessionKeyPrefix+registryKey(s.WalletID, s.OriginURL), data); err != nil {
		r.mu.Unlock()
		return err
	}
	r.insertLocked(s)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(snapshot)
	return nil
}

// Delete removes the session for (walletID, host(url)). Deleting an
// absent session is a no-op.
func (r *Registry) Delete(walletID, rawURL string) error {
	key := registryKey(walletID, rawURL)

	r.mu.Lock()
	if err := r.store.Delete(sessionKeyPrefix + key); err != nil {
		r.mu.Unlock()
		return err
	}
	_, existed := r.sessions[key]
	if existed {
		delete(r.sessions, key)
		for i, k := range r.order {
			if k == key {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	if existed {
		logrus.WithFields(logrus.Fields{
			"function":  "Delete",
			"wallet_id": walletID,
			"host":      HostOf(rawURL),
		}).Info("Session removed")
		r.notify(snapshot)
	}
	return nil
}

// Get returns the session stored under (walletID, host(url)).
func (r *Registry) Get(walletID, rawURL string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[registryKey(walletID, rawURL)]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// FindByHost returns the first wallet-scoped session whose origin host
// matches the host of url. Host comparison is case-insensitive; path and
// query are ignored.
func (r *Registry) FindByHost(rawURL, walletID string) (*Session, error) {
	host := HostOf(rawURL)
	if host == "" {
		return nil, ErrSessionNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, key := range r.order {
		s := r.sessions[key]
		if s.WalletID == walletID && s.Host() == host {
			return s, nil
		}
	}
	return nil, ErrSessionNotFound
}

// FindByClientID resolves an inbound bridge event to its session.
func (r *Registry) FindByClientID(clientID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, key := range r.order {
		if s := r.sessions[key]; s.ClientID == clientID {
			return s, nil
		}
	}
	return nil, ErrSessionNotFound
}

// ListByWallet returns all sessions of one wallet in stable order.
func (r *Registry) ListByWallet(walletID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Session
	for _, key := range r.order {
		if s := r.sessions[key]; s.WalletID == walletID {
			out = append(out, s)
		}
	}
	return out
}

// ListAll returns every session in stable order.
func (r *Registry) ListAll() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// DistinctByFingerprint maps each url to its wallet-scoped session and
// collapses duplicates sharing a public-key fingerprint, keeping the
// first occurrence.
func (r *Registry) DistinctByFingerprint(urls []string, walletID string) []*Session {
	seen := make(map[string]bool)
	var out []*Session
	for _, u := range urls {
		s, err := r.FindByHost(u, walletID)
		if err != nil {
			continue
		}
		if seen[s.Fingerprint()] {
			continue
		}
		seen[s.Fingerprint()] = true
		out = append(out, s)
	}
	return out
}

// SetPushEnabled flips the push flag of the session at (walletID,
// host(url)). When the requested value equals the current one, this is a
// complete no-op: no storage write, no observer fan-out. Returns whether
// a change was applied.
func (r *Registry) SetPushEnabled(walletID, rawURL string, enabled bool) (bool, error) {
	s, err := r.Get(walletID, rawURL)
	if err != nil {
		return false, err
	}
	if s.PushEnabled == enabled {
		return false, nil
	}
	if err := r.Put(s.WithPushEnabled(enabled)); err != nil {
		return false, err
	}
	return true, nil
}

// Watch subscribes to registry snapshots. The current snapshot is
// delivered immediately; each mutation delivers a fresh one. The cancel
// function removes the subscription and closes the channel.
func (r *Registry) Watch() (<-chan []*Session, func()) {
	ch := make(chan []*Session, 8)
	id := uuid.NewString()

	r.mu.Lock()
	r.watchers[id] = ch
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	ch <- snapshot

	cancel := func() {
		r.mu.Lock()
		if w, ok := r.watchers[id]; ok {
			delete(r.watchers, id)
			close(w)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

// insertLocked adds or replaces a session in the snapshot. Caller holds
// the writer lock.
func (r *Registry) insertLocked(s *Session) {
	key := registryKey(s.WalletID, s.OriginURL)
	if _, ok := r.sessions[key]; !ok {
		r.order = append(r.order, key)
	}
	r.sessions[key] = s
}

func (r *Registry) snapshotLocked() []*Session {
	out := make([]*Session, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.sessions[key])
	}
	return out
}

// notify fans a snapshot out to all watchers. A stuck watcher is skipped
// so it cannot block the rest.
func (r *Registry) notify(snapshot []*Session) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, ch := range r.watchers {
		select {
		case ch <- snapshot:
		default:
			logrus.WithFields(logrus.Fields{
				"function":   "notify",
				"watcher_id": id,
			}).Warn("Dropping registry snapshot for slow watcher")
		}
	}
}
