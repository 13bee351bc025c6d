// Package session keeps the auth token of the logged-in user and tells
// interested parties when it changes.
package session

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrNotLoggedIn is returned by operations that need a session.
var ErrNotLoggedIn = errors.New("not logged in")

// Session is the authenticated state of the current user.
type Session struct {
	Token string
}

// Persister stores the token across restarts. The zero-value behaviour for a
// missing token is LoadToken returning "" and a nil error.
type Persister interface {
	LoadToken() (string, error)
	SaveToken(token string) error
	ClearToken() error
}

// Change is delivered to channel subscribers after every token change.
type Change struct {
	LoggedIn bool
	Session  Session
}

// ListenerID identifies a callback registered with AddListener.
type ListenerID int

// Store holds at most one Session. Create it with NewStore and pass it to the
// components that need it.
type Store struct {
	mu        sync.RWMutex
	session   *Session
	persister Persister
	logger    *zap.Logger

	lmu         sync.Mutex
	nextID      ListenerID
	listeners   map[ListenerID]func()
	subscribers map[chan Change]bool
}

// NewStore restores a previously persisted token, if any. A nil persister
// keeps the session in memory only.
func NewStore(p Persister, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		persister:   p,
		logger:      logger,
		listeners:   make(map[ListenerID]func()),
		subscribers: make(map[chan Change]bool),
	}
	if p != nil {
		token, err := p.LoadToken()
		if err != nil {
			return nil, fmt.Errorf("restore session: %w", err)
		}
		if token != "" {
			s.session = &Session{Token: token}
		}
	}
	return s, nil
}

// Get returns the current session.
func (s *Store) Get() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return Session{}, false
	}
	return *s.session, true
}

// Token returns the bearer token or "" when logged out.
func (s *Store) Token() string {
	sess, _ := s.Get()
	return sess.Token
}

// LoggedIn reports whether a session exists.
func (s *Store) LoggedIn() bool {
	_, ok := s.Get()
	return ok
}

// Set replaces the session with token and notifies listeners.
func (s *Store) Set(token string) error {
	if token == "" {
		return errors.New("empty token")
	}
	s.mu.Lock()
	s.session = &Session{Token: token}
	s.mu.Unlock()

	var err error
	if s.persister != nil {
		if err = s.persister.SaveToken(token); err != nil {
			s.logger.Warn("persist session failed", zap.Error(err))
			err = fmt.Errorf("persist session: %w", err)
		}
	}
	s.notify(Change{LoggedIn: true, Session: Session{Token: token}})
	return err
}

// Clear drops the session and notifies listeners.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()

	var err error
	if s.persister != nil {
		if err = s.persister.ClearToken(); err != nil {
			s.logger.Warn("clear persisted session failed", zap.Error(err))
			err = fmt.Errorf("clear session: %w", err)
		}
	}
	s.notify(Change{LoggedIn: false})
	return err
}

// AddListener registers fn to be called synchronously on every change.
func (s *Store) AddListener(fn func()) ListenerID {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.nextID++
	s.listeners[s.nextID] = fn
	return s.nextID
}

// RemoveListener unregisters a callback. Unknown ids are ignored.
func (s *Store) RemoveListener(id ListenerID) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	delete(s.listeners, id)
}

// Subscribe returns a buffered channel of changes and its cleanup function.
func (s *Store) Subscribe() (<-chan Change, func()) {
	s.lmu.Lock()
	defer s.lmu.Unlock()

	ch := make(chan Change, 4)
	s.subscribers[ch] = true

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.lmu.Lock()
			defer s.lmu.Unlock()
			delete(s.subscribers, ch)
			close(ch)
		})
	}
}

func (s *Store) notify(c Change) {
	// Snapshot under the lock, call outside it so listeners may use the store.
	s.lmu.Lock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	for ch := range s.subscribers {
		select {
		case ch <- c:
		default:
			s.logger.Debug("session subscriber full, dropping change")
		}
	}
	s.lmu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
