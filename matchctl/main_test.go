package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlhhhh/Openhouse/internal/api"
	"github.com/charlhhhh/Openhouse/internal/profile"
	"github.com/charlhhhh/Openhouse/internal/session"
)

// fakeBackend is a minimal Open House server with one user.
type fakeBackend struct {
	mu           sync.Mutex
	profile      profile.Profile
	partner      *profile.MatchedPartner
	history      []profile.HistoryEntry
	profileFails bool
	triggerFails bool
	updates      int
	triggers     int
	confirms     int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		profile: profile.Profile{
			UserID:       "u-1",
			DisplayName:  "ada",
			ResearchArea: "Machine Learning",
			Tags:         []string{"AI"},
			MatchStatus:  profile.StatusAvailable,
		},
	}
}

func reply(w http.ResponseWriter, code int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	body := map[string]any{"code": code, "message": msg}
	if data != nil {
		body["data"] = data
	}
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeBackend) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		next(w, r)
	}
}

func (f *fakeBackend) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/email/send", func(w http.ResponseWriter, r *http.Request) {
		reply(w, api.CodeOK, "Verification code sent", nil)
	})
	mux.HandleFunc("/api/v1/auth/email/verify", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Code string }
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Code != "123456" {
			reply(w, api.CodeError, "Verification code is incorrect or expired", nil)
			return
		}
		reply(w, api.CodeOK, "ok", map[string]string{"token": "tok-1"})
	})
	mux.HandleFunc("/api/v1/user/profile", f.authed(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var req struct {
				Tags []string `json:"tags"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			f.profile.Tags = req.Tags
			f.updates++
			reply(w, api.CodeOK, "updated", nil)
			return
		}
		if f.profileFails {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		reply(w, api.CodeOK, "ok", f.profile)
	}))
	mux.HandleFunc("/api/v1/match/trigger", f.authed(func(w http.ResponseWriter, r *http.Request) {
		f.triggers++
		if f.triggerFails {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		f.profile.MatchStatus = profile.StatusMatching
		reply(w, api.CodeOK, "matching started", nil)
	}))
	mux.HandleFunc("/api/v1/match/today", f.authed(func(w http.ResponseWriter, r *http.Request) {
		if f.profile.MatchStatus == profile.StatusAvailable || f.partner == nil {
			reply(w, api.CodeOK, "Today's match result has not been generated yet", nil)
			return
		}
		f.profile.MatchStatus = profile.StatusMatched
		reply(w, api.CodeOK, "ok", f.partner)
	}))
	mux.HandleFunc("/api/v1/match/history", f.authed(func(w http.ResponseWriter, r *http.Request) {
		reply(w, api.CodeOK, "ok", f.history)
	}))
	mux.HandleFunc("/api/v1/match/confirm", f.authed(func(w http.ResponseWriter, r *http.Request) {
		f.confirms++
		reply(w, api.CodeOK, "confirmed", nil)
	}))
	return mux
}

func (f *fakeBackend) with(fn func(f *fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeBackend) counts() (updates, triggers, confirms int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates, f.triggers, f.confirms
}

func (f *fakeBackend) tags() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.profile.Tags...)
}

type cli struct {
	t       *testing.T
	backend *fakeBackend
	url     string
	config  string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	b := newFakeBackend()
	srv := httptest.NewServer(b.routes())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	t.Setenv("OPENHOUSE_DATA_DIR", dir)
	t.Setenv("OPENHOUSE_LOG_LEVEL", "error")
	return &cli{t: t, backend: b, url: srv.URL, config: filepath.Join(dir, "none.yaml")}
}

func (c *cli) run(stdin string, args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--api-url", c.url, "--config", c.config}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) login() {
	c.t.Helper()
	out, err := c.run("", "login", "--email", "ada@lab.org", "--code", "123456")
	require.NoError(c.t, err, out)
}

func TestLoginProfileLogout(t *testing.T) {
	c := newCLI(t)

	out, err := c.run("123456\n", "login", "--email", "ada@lab.org")
	require.NoError(t, err)
	assert.Contains(t, out, "Verification code sent to ada@lab.org")
	assert.Contains(t, out, "Logged in as ada")

	out, err = c.run("", "profile")
	require.NoError(t, err)
	assert.Contains(t, out, "ada")
	assert.Contains(t, out, "Machine Learning")
	assert.Contains(t, out, "#AI")
	assert.NotContains(t, out, "cached")

	c.backend.with(func(f *fakeBackend) { f.profileFails = true })
	out, err = c.run("", "profile")
	require.NoError(t, err)
	assert.Contains(t, out, "cached")
	assert.Contains(t, out, "ada")

	out, err = c.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	_, err = c.run("", "profile")
	assert.ErrorIs(t, err, session.ErrNotLoggedIn)

	out, err = c.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")
}

func TestLoginWrongCode(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("", "login", "--email", "ada@lab.org", "--code", "000000")
	require.Error(t, err)
	assert.Equal(t, "Verification code is incorrect or expired", api.UserMessage(err))

	_, err = c.run("", "match")
	assert.ErrorIs(t, err, session.ErrNotLoggedIn)
}

func TestTagsEdit(t *testing.T) {
	c := newCLI(t)
	c.login()

	out, err := c.run("", "tags", "add", "Bio", "HCI")
	require.NoError(t, err)
	assert.Contains(t, out, "Tags (3/10)")
	assert.Equal(t, []string{"AI", "Bio", "HCI"}, c.backend.tags())

	_, err = c.run("", "tags", "add", strings.Repeat("x", profile.MaxTagLength+1))
	var verr *profile.ValidationError
	require.ErrorAs(t, err, &verr)
	updates, _, _ := c.backend.counts()
	assert.Equal(t, 1, updates, "invalid tags must not reach the backend")

	_, err = c.run("", "tags", "rm", "AI")
	require.NoError(t, err)
	_, err = c.run("", "tags", "rm", "2")
	require.NoError(t, err)
	assert.Equal(t, []string{"Bio"}, c.backend.tags())

	_, err = c.run("", "tags", "rm", "7")
	require.ErrorAs(t, err, &verr)

	out, err = c.run("", "tags", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "#Bio")

	c.backend.with(func(f *fakeBackend) { f.profile.MatchStatus = profile.StatusMatching })
	_, err = c.run("", "tags", "add", "Late")
	assert.ErrorIs(t, err, errTagsLocked)
}

func TestMatchSubmitFlow(t *testing.T) {
	c := newCLI(t)
	t.Setenv("OPENHOUSE_SUBMIT_DELAY", "10ms")
	t.Setenv("OPENHOUSE_POLL_INTERVAL", "20ms")
	c.login()
	c.backend.with(func(f *fakeBackend) {
		f.partner = &profile.MatchedPartner{
			UserID:       "p-7",
			DisplayName:  "Grace",
			ResearchArea: "Programming Languages",
			Tags:         []string{"PL", "AI"},
			Score:        82,
		}
	})

	out, err := c.run("", "match")
	require.NoError(t, err)
	assert.Contains(t, out, "matchctl match --submit")
	_, triggers, _ := c.backend.counts()
	assert.Equal(t, 0, triggers)

	out, err = c.run("", "match", "--submit", "--tag", "Bio", "--watch=false")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Finding your research partner")
	assert.Contains(t, out, "Grace")
	assert.Contains(t, out, "Match score: 82")
	_, triggers, _ = c.backend.counts()
	assert.Equal(t, 1, triggers)
	assert.Equal(t, []string{"AI", "Bio"}, c.backend.tags())

	// Reload after the reveal goes straight to the card without a new trigger.
	out, err = c.run("", "match", "--submit", "--watch=false")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Grace")
	_, triggers, _ = c.backend.counts()
	assert.Equal(t, 1, triggers)
}

func TestMatchTriggerFailure(t *testing.T) {
	c := newCLI(t)
	t.Setenv("OPENHOUSE_SUBMIT_DELAY", "10ms")
	c.login()
	c.backend.with(func(f *fakeBackend) { f.triggerFails = true })

	out, err := c.run("", "match", "--submit", "--watch=false")
	assert.True(t, errors.Is(err, errNotStarted), "err = %v", err)
	assert.Contains(t, out, "Fail to start matching: Server Error, Please Try Again Later")
}

func TestMatchProfileFailureEndsSession(t *testing.T) {
	c := newCLI(t)
	c.login()
	c.backend.with(func(f *fakeBackend) { f.profileFails = true })

	out, err := c.run("", "match")
	require.Error(t, err)
	assert.Contains(t, out, "Session ended")

	_, err = c.run("", "match")
	assert.ErrorIs(t, err, session.ErrNotLoggedIn)
}

func TestTodayHistoryConfirm(t *testing.T) {
	c := newCLI(t)
	c.login()

	out, err := c.run("", "today")
	require.NoError(t, err)
	assert.Contains(t, out, "not been generated yet")

	c.backend.with(func(f *fakeBackend) {
		f.history = []profile.HistoryEntry{
			{Date: "2026-10-18", Partner: profile.MatchedPartner{UserID: "p-7", DisplayName: "Grace", Tags: []string{"PL"}}},
			{Date: "2026-10-17", Partner: profile.MatchedPartner{UserID: "p-8", DisplayName: "Linus"}},
		}
	})
	out, err = c.run("", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "Match history of ada")
	assert.Contains(t, out, "2026-10-18")
	assert.Contains(t, out, "Grace")
	assert.Contains(t, out, "Linus")

	out, err = c.run("", "confirm")
	require.NoError(t, err)
	assert.Contains(t, out, "Match confirmed")
	_, _, confirms := c.backend.counts()
	assert.Equal(t, 1, confirms)
}
