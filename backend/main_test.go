package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// Initialize JWT secret for tests
func init() {
	jwtSecret = []byte("test-secret-key-for-testing")
}

// memStore is an in-memory store for handler tests.
type memStore struct {
	mu         sync.Mutex
	users      map[string]*User
	order      []string
	codes      map[string]emailCode
	matches    []MatchResult
	nextID     int64
	batchCalls int
}

func newMemStore() *memStore {
	return &memStore{
		users: make(map[string]*User),
		codes: make(map[string]emailCode),
	}
}

func copyUser(u *User) *User {
	c := *u
	c.Tags = slices.Clone(u.Tags)
	return &c
}

func (s *memStore) add(u *User) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.UUID == "" {
		u.UUID = uuid.NewString()
	}
	if u.MatchStatus == "" {
		u.MatchStatus = "available"
	}
	u.CreatedAt = clock.Now()
	s.users[u.UUID] = copyUser(u)
	s.order = append(s.order, u.UUID)
	return u
}

func (s *memStore) UserByUUID(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errNotFound
	}
	return copyUser(u), nil
}

func (s *memStore) UsersByUUIDs(_ context.Context, ids []string) ([]*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchCalls++
	var out []*User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, copyUser(u))
		}
	}
	return out, nil
}

func (s *memStore) filter(keep func(*User) bool) []*User {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*User
	for _, id := range s.order {
		if u := s.users[id]; keep(u) {
			out = append(out, copyUser(u))
		}
	}
	return out
}

func (s *memStore) UsersByStatus(_ context.Context, status string) ([]*User, error) {
	return s.filter(func(u *User) bool { return u.MatchStatus == status }), nil
}

func (s *memStore) Candidates(_ context.Context, exclude string) ([]*User, error) {
	return s.filter(func(u *User) bool { return u.UUID != exclude && len(u.Tags) > 0 }), nil
}

func (s *memStore) EnsureUser(_ context.Context, email string) (*User, bool, error) {
	s.mu.Lock()
	for _, u := range s.users {
		if u.Email == email {
			s.mu.Unlock()
			return copyUser(u), false, nil
		}
	}
	s.mu.Unlock()
	return s.add(&User{Email: email, Username: defaultUsername(email)}), true, nil
}

func (s *memStore) UpdateProfile(_ context.Context, id string, upd profileUpdate) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errNotFound
	}
	u.apply(upd)
	u.UpdatedAt = clock.Now()
	return copyUser(u), nil
}

func (s *memStore) SetMatchStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return errNotFound
	}
	u.MatchStatus = status
	return nil
}

func (s *memStore) ResetMatchStatus(_ context.Context, from, to string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.users {
		if u.MatchStatus == from {
			u.MatchStatus = to
			n++
		}
	}
	return n, nil
}

func (s *memStore) SaveCode(_ context.Context, c emailCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Attempts = 0
	s.codes[c.Email] = c
	return nil
}

func (s *memStore) Code(_ context.Context, email string) (*emailCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[email]
	if !ok {
		return nil, errNotFound
	}
	return &c, nil
}

func (s *memStore) IncrementCodeAttempts(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.codes[email]; ok {
		c.Attempts++
		s.codes[email] = c
	}
	return nil
}

func (s *memStore) DeleteCode(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, email)
	return nil
}

func (s *memStore) MatchForRound(_ context.Context, userID, round string) (*MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.matches {
		if m.UserUUID == userID && m.Round == round {
			return &m, nil
		}
	}
	return nil, errNotFound
}

func (s *memStore) SaveMatch(_ context.Context, m *MatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.matches {
		if existing.UserUUID == m.UserUUID && existing.Round == m.Round {
			return errAlreadyMatched
		}
	}
	s.nextID++
	m.ID = s.nextID
	m.CreatedAt = clock.Now()
	s.matches = append(s.matches, *m)
	return nil
}

func (s *memStore) MatchHistory(_ context.Context, userID string) ([]MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []MatchResult
	for i := len(s.matches) - 1; i >= 0; i-- {
		if s.matches[i].UserUUID == userID {
			out = append(out, s.matches[i])
		}
	}
	return out, nil
}

func (s *memStore) status(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id].MatchStatus
}

// useClock swaps the package clock for a fake set to the given local time.
func useClock(t *testing.T, at time.Time) *clockwork.FakeClock {
	t.Helper()
	fc := clockwork.NewFakeClockAt(at)
	prev := clock
	clock = fc
	t.Cleanup(func() { clock = prev })
	return fc
}

// useRevealHour overrides the reveal hour for one test.
func useRevealHour(t *testing.T, hour int) {
	t.Helper()
	prev := revealHour
	revealHour = hour
	t.Cleanup(func() { revealHour = prev })
}

// createTestUser stores a user with tags and returns it with a valid token.
func createTestUser(t *testing.T, st *memStore, email string, tags ...string) (*User, string) {
	t.Helper()
	u := st.add(&User{Email: email, Username: defaultUsername(email), Tags: tags})
	token, err := issueToken(u.UUID)
	require.NoError(t, err)
	return u, token
}

type testEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// doRequest runs one request through h and decodes the envelope when the
// answer is a 200.
func doRequest(t *testing.T, h http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(buf)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var env testEnvelope
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

// recordingMailer keeps the last code per email.
type recordingMailer struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (m *recordingMailer) SendCode(_ context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.codes == nil {
		m.codes = make(map[string]string)
	}
	m.codes[email] = code
	return nil
}

func (m *recordingMailer) code(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}
