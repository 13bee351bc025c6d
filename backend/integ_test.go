package main

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlhhhh/Openhouse/internal/api"
	"github.com/charlhhhh/Openhouse/internal/match"
	"github.com/charlhhhh/Openhouse/internal/session"
)

// TestClientAgainstServer drives the real client packages against the router.
func TestClientAgainstServer(t *testing.T) {
	useRevealHour(t, 0)
	st := newMemStore()
	mailer := &recordingMailer{}
	srv := httptest.NewServer(newRouter(st, mailer))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sess, err := session.NewStore(nil, nil)
	require.NoError(t, err)
	client := api.New(srv.URL, sess)

	partner, _ := createTestUser(t, st, "partner@example.com", "nlp", "parsing")
	var meUUID string

	t.Run("Login", func(t *testing.T) {
		require.NoError(t, client.SendEmailCode(ctx, "me@example.com"))
		token, err := client.VerifyEmailCode(ctx, "me@example.com", mailer.code("me@example.com"))
		require.NoError(t, err)
		require.NoError(t, sess.Set(token))

		p, err := client.Profile(ctx)
		require.NoError(t, err)
		assert.Equal(t, "me", p.DisplayName)
		meUUID = p.UserID
		assert.Empty(t, p.Tags)
	})

	t.Run("Wrong code is an API error", func(t *testing.T) {
		require.NoError(t, client.SendEmailCode(ctx, "other@example.com"))
		_, err := client.VerifyEmailCode(ctx, "other@example.com", "abcdef")
		var apiErr *api.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, api.CodeError, apiErr.Code)
		assert.Equal(t, msgBadCode, api.UserMessage(err))
	})

	t.Run("Machine reaches Completed", func(t *testing.T) {
		hints, err := client.WatchMatches(ctx)
		require.NoError(t, err)
		waitConnected(t, meUUID, 1)

		m := match.NewMachine(client, sess, match.WithConfig(match.Config{
			SubmitDelay:  20 * time.Millisecond,
			PollInterval: 30 * time.Millisecond,
		}))
		defer m.Close()

		require.NoError(t, m.Load(ctx))
		require.Equal(t, match.Prepare, m.State())
		require.NoError(t, m.AddTag("nlp"))
		require.NoError(t, m.Submit(ctx))

		require.Eventually(t, func() bool { return m.State() == match.Completed },
			5*time.Second, 10*time.Millisecond)
		require.NotNil(t, m.Partner())
		assert.Equal(t, partner.UUID, m.Partner().UserID)
		assert.Contains(t, m.Partner().Comment, "#nlp")

		gotReady := false
		timeout := time.After(2 * time.Second)
		for !gotReady {
			select {
			case h, ok := <-hints:
				require.True(t, ok, "hint stream closed")
				gotReady = h.Type == api.HintMatchReady
			case <-timeout:
				t.Fatal("no match_ready hint")
			}
		}
	})

	t.Run("Reload shows the partner", func(t *testing.T) {
		m := match.NewMachine(client, sess)
		defer m.Close()
		require.NoError(t, m.Load(ctx))
		assert.Equal(t, match.Completed, m.State())
	})

	t.Run("Duplicate trigger", func(t *testing.T) {
		err := client.TriggerMatch(ctx)
		var apiErr *api.APIError
		require.True(t, errors.As(err, &apiErr), "got %v", err)
		assert.Equal(t, msgAlreadyMatched, apiErr.Message)
	})

	t.Run("Confirm and history", func(t *testing.T) {
		require.NoError(t, client.ConfirmMatch(ctx))
		h, err := client.MatchHistory(ctx)
		require.NoError(t, err)
		require.Len(t, h, 1)
		assert.Equal(t, partner.UUID, h[0].Partner.UserID)
		assert.Equal(t, time.Now().Format(time.DateOnly), h[0].Date)
	})
}
