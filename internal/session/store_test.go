package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPersister struct {
	token   string
	saveErr error
	saves   int
	clears  int
}

func (m *memPersister) LoadToken() (string, error) { return m.token, nil }

func (m *memPersister) SaveToken(token string) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.token = token
	return nil
}

func (m *memPersister) ClearToken() error {
	m.clears++
	m.token = ""
	return nil
}

type brokenPersister struct{ memPersister }

func (b *brokenPersister) LoadToken() (string, error) { return "", errors.New("disk gone") }

func TestNewStore(t *testing.T) {
	t.Run("Restores persisted token", func(t *testing.T) {
		s, err := NewStore(&memPersister{token: "abc"}, nil)
		require.NoError(t, err)
		sess, ok := s.Get()
		assert.True(t, ok)
		assert.Equal(t, "abc", sess.Token)
	})

	t.Run("Empty persister means logged out", func(t *testing.T) {
		s, err := NewStore(&memPersister{}, nil)
		require.NoError(t, err)
		assert.False(t, s.LoggedIn())
		assert.Equal(t, "", s.Token())
	})

	t.Run("Load error surfaces", func(t *testing.T) {
		_, err := NewStore(&brokenPersister{}, nil)
		assert.Error(t, err)
	})

	t.Run("Nil persister keeps memory only", func(t *testing.T) {
		s, err := NewStore(nil, nil)
		require.NoError(t, err)
		require.NoError(t, s.Set("tok"))
		assert.Equal(t, "tok", s.Token())
		require.NoError(t, s.Clear())
		assert.False(t, s.LoggedIn())
	})
}

func TestStoreSetClear(t *testing.T) {
	p := &memPersister{}
	s, err := NewStore(p, nil)
	require.NoError(t, err)

	require.NoError(t, s.Set("token-1"))
	assert.Equal(t, "token-1", p.token)
	assert.Equal(t, "token-1", s.Token())

	require.NoError(t, s.Clear())
	assert.Equal(t, "", p.token)
	assert.Equal(t, 1, p.clears)
	assert.False(t, s.LoggedIn())

	assert.Error(t, s.Set(""))
}

func TestStoreSetPersistFailure(t *testing.T) {
	p := &memPersister{saveErr: errors.New("read-only")}
	s, err := NewStore(p, nil)
	require.NoError(t, err)

	calls := 0
	s.AddListener(func() { calls++ })

	err = s.Set("tok")
	assert.Error(t, err)
	// The in-memory session still changed and listeners were told.
	assert.Equal(t, "tok", s.Token())
	assert.Equal(t, 1, calls)
}

func TestStoreListeners(t *testing.T) {
	s, err := NewStore(nil, nil)
	require.NoError(t, err)

	var seen []bool
	id := s.AddListener(func() {
		// Listeners run synchronously and may read the store.
		seen = append(seen, s.LoggedIn())
	})

	require.NoError(t, s.Set("a"))
	require.NoError(t, s.Clear())
	assert.Equal(t, []bool{true, false}, seen)

	s.RemoveListener(id)
	require.NoError(t, s.Set("b"))
	assert.Len(t, seen, 2)

	s.RemoveListener(ListenerID(999))
}

func TestStoreSubscribe(t *testing.T) {
	s, err := NewStore(nil, nil)
	require.NoError(t, err)

	ch, cleanup := s.Subscribe()
	require.NoError(t, s.Set("x"))
	require.NoError(t, s.Clear())

	first := <-ch
	assert.True(t, first.LoggedIn)
	assert.Equal(t, "x", first.Session.Token)
	second := <-ch
	assert.False(t, second.LoggedIn)

	cleanup()
	cleanup()
	_, open := <-ch
	assert.False(t, open)

	// No panic publishing after cleanup.
	require.NoError(t, s.Set("y"))
}
