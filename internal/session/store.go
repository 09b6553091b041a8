// Package session implements the in-memory conversation session store.
//
// A session is an ordered sequence of turns owned exclusively by the store.
// Sessions are created with collision-resistant identifiers, mutated only by
// appending turns, and destroyed either explicitly or by the idle reaper.
// All state is process-memory-resident and lost on restart.
package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/museworks/velatura/pkg/types"
)

// ErrSessionNotFound indicates an operation referenced a session id the store
// does not hold. Read paths that tolerate absent sessions return empty data
// instead.
var ErrSessionNotFound = errors.New("session: not found")

// session is the store's internal record. Turns are append-only; lastActive
// drives the idle reaper.
type session struct {
	id         string
	turns      []types.Turn
	createdAt  time.Time
	lastActive time.Time
}

// Store holds all live sessions. All methods are safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session

	// onCreate is invoked (outside the lock) for every session the store
	// starts holding, whether created explicitly or recreated by an append
	// to an unknown id. Gauge-style accounting must hook here rather than a
	// single call site, or implicit recreations drift the count.
	onCreate func(sessionID string)

	// onDestroy is invoked (outside the lock) for every destroyed session so
	// dependent state, such as outstanding generation tasks, can be dropped.
	onDestroy func(sessionID string)

	now func() time.Time
}

// Option configures a [Store].
type Option func(*Store)

// WithDestroyHook registers a callback invoked with the session id whenever a
// session is destroyed, explicitly or by the reaper.
func WithDestroyHook(fn func(sessionID string)) Option {
	return func(s *Store) {
		s.onDestroy = fn
	}
}

// withClock overrides the time source. Test hook.
func withClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty session store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*session),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetDestroyHook replaces the destroy callback. Used when the dependent
// component is constructed after the store.
func (s *Store) SetDestroyHook(fn func(sessionID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDestroy = fn
}

// SetCreateHook replaces the create callback. It fires for explicit creates
// and for sessions recreated implicitly by [Store.Append].
func (s *Store) SetCreateHook(fn func(sessionID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCreate = fn
}

// Create registers a new empty session and returns its identifier.
func (s *Store) Create() string {
	id := uuid.NewString()
	now := s.now()

	s.mu.Lock()
	s.sessions[id] = &session{id: id, createdAt: now, lastActive: now}
	hook := s.onCreate
	s.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	return id
}

// Append adds a turn to the session's history. Appending to an unknown
// session recreates it under the given id, matching the read-path tolerance
// for absent sessions; the create hook fires for such recreations.
func (s *Store) Append(sessionID string, turn types.Turn) {
	now := s.now()

	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &session{id: sessionID, createdAt: now}
		s.sessions[sessionID] = sess
	}
	sess.turns = append(sess.turns, turn)
	sess.lastActive = now
	hook := s.onCreate
	s.mu.Unlock()

	if !ok && hook != nil {
		hook(sessionID)
	}
}

// History returns a copy of the session's turns in conversation order. An
// unknown session yields an empty history, not an error. Reading counts as
// activity for idle-reaping purposes.
func (s *Store) History(sessionID string) []types.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	sess.lastActive = s.now()
	return append([]types.Turn(nil), sess.turns...)
}

// Exists reports whether the session id is currently held by the store.
func (s *Store) Exists(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[sessionID]
	return ok
}

// Touch marks the session as active without mutating its history.
func (s *Store) Touch(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.lastActive = s.now()
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Destroy removes the session and fires the destroy hook so outstanding
// generation tasks are discarded. Destroying an unknown id returns
// [ErrSessionNotFound] and has no side effects.
func (s *Store) Destroy(sessionID string) error {
	s.mu.Lock()
	_, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	hook := s.onDestroy
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	if hook != nil {
		hook(sessionID)
	}
	return nil
}

// reap destroys every session idle for longer than ttl and returns the ids
// destroyed. Hooks fire outside the lock.
func (s *Store) reap(ttl time.Duration) []string {
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	var expired []string
	for id, sess := range s.sessions {
		if sess.lastActive.Before(cutoff) {
			expired = append(expired, id)
			delete(s.sessions, id)
		}
	}
	hook := s.onDestroy
	s.mu.Unlock()

	if hook != nil {
		for _, id := range expired {
			hook(id)
		}
	}
	return expired
}

// StartReaper launches a background goroutine that destroys idle sessions on
// the given interval. The returned stop function is safe to call multiple
// times. A non-positive ttl disables reaping entirely.
func (s *Store) StartReaper(ttl, interval time.Duration) (stop func()) {
	if ttl <= 0 {
		return func() {}
	}
	if interval <= 0 {
		interval = time.Minute
	}

	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if expired := s.reap(ttl); len(expired) > 0 {
					slog.Info("session: reaped idle sessions", "count", len(expired))
				}
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
	}
}
