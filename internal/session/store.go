package session

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"rshieldcli/internal/identity"
)

// Store holds the latest session emitted by the identity provider.
// Reads are lock-free; each emission atomically replaces the previous
// value so consumers never observe a torn state.
type Store struct {
	logger  *slog.Logger
	current atomic.Pointer[identity.Session]

	mu       sync.Mutex
	watchers map[int]chan *identity.Session
	nextID   int

	unsubscribe identity.UnsubscribeFunc
	closeOnce   sync.Once
	closed      atomic.Bool
}

// NewStore creates a session store. Call Start to begin tracking.
func NewStore(logger *slog.Logger) *Store {
	return &Store{
		logger:   logger.With(slog.String("component", "session_store")),
		watchers: make(map[int]chan *identity.Session),
	}
}

// Start subscribes to the provider's session-change stream. The
// provider emits the initial state synchronously, so Current is valid
// as soon as Start returns.
func (s *Store) Start(provider identity.Provider) {
	s.unsubscribe = provider.OnSessionChange(s.apply)
}

// apply is the store's single write path, driven by provider emissions
func (s *Store) apply(session *identity.Session) {
	if s.closed.Load() {
		return
	}
	s.current.Store(session)

	if session != nil {
		s.logger.Debug("session updated", slog.String("uid", session.UID))
	} else {
		s.logger.Debug("session cleared")
	}

	s.mu.Lock()
	for _, ch := range s.watchers {
		select {
		case ch <- session:
		default:
			// Slow watcher; drop rather than block the provider stream.
		}
	}
	s.mu.Unlock()
}

// Current returns the latest session, or nil when unauthenticated
func (s *Store) Current() *identity.Session {
	return s.current.Load()
}

// Authenticated reports whether a session is present
func (s *Store) Authenticated() bool {
	return s.Current() != nil
}

// Watch returns a channel receiving session changes and a cancel
// function. The channel is buffered; a watcher that falls behind
// misses intermediate states but always converges on the latest via
// Current.
func (s *Store) Watch() (<-chan *identity.Session, func()) {
	ch := make(chan *identity.Session, 8)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
	return ch, cancel
}

// Close detaches from the provider stream. Idempotent; emissions
// arriving after Close are ignored.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		s.logger.Debug("session store closed")
	})
}
