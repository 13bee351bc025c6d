package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/charlhhhh/Openhouse/internal/profile"
)

// SendEmailCode asks the backend to mail a one-time login code.
func (c *Client) SendEmailCode(ctx context.Context, email string) error {
	_, err := c.do(ctx, "send email code", http.MethodPost, "/api/v1/auth/email/send",
		map[string]string{"email": email}, nil)
	return err
}

// VerifyEmailCode exchanges the one-time code for a session token.
func (c *Client) VerifyEmailCode(ctx context.Context, email, code string) (string, error) {
	var res struct {
		Token string `json:"token"`
	}
	_, err := c.do(ctx, "verify email code", http.MethodPost, "/api/v1/auth/email/verify",
		map[string]string{"email": email, "code": code}, &res)
	if err != nil {
		return "", err
	}
	if res.Token == "" {
		return "", errors.New("verify email code: no token in response")
	}
	return res.Token, nil
}

// Profile fetches the current user's profile.
func (c *Client) Profile(ctx context.Context) (profile.Profile, error) {
	var p profile.Profile
	_, err := c.do(ctx, "get profile", http.MethodGet, "/api/v1/user/profile", nil, &p)
	return p, err
}

// ProfileUpdate is a partial profile update; nil fields are left untouched.
type ProfileUpdate struct {
	Username     *string   `json:"username,omitempty"`
	AvatarURL    *string   `json:"avatar_url,omitempty"`
	IntroShort   *string   `json:"intro_short,omitempty"`
	IntroLong    *string   `json:"intro_long,omitempty"`
	ResearchArea *string   `json:"research_area,omitempty"`
	Gender       *string   `json:"gender,omitempty"`
	Tags         *[]string `json:"tags,omitempty"`
}

// UpdateProfile sends a partial update.
func (c *Client) UpdateProfile(ctx context.Context, u ProfileUpdate) error {
	_, err := c.do(ctx, "update profile", http.MethodPost, "/api/v1/user/profile", u, nil)
	return err
}

// UpdateTags replaces the user's tags.
func (c *Client) UpdateTags(ctx context.Context, tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	return c.UpdateProfile(ctx, ProfileUpdate{Tags: &tags})
}

// TriggerMatch starts server-side matching for the current user.
func (c *Client) TriggerMatch(ctx context.Context) error {
	_, err := c.do(ctx, "trigger match", http.MethodGet, "/api/v1/match/trigger", nil, nil)
	return err
}

// TodayMatch returns today's partner, or nil while no match is revealed.
func (c *Client) TodayMatch(ctx context.Context) (*profile.MatchedPartner, error) {
	p, _, err := c.TodayMatchStatus(ctx)
	return p, err
}

// TodayMatchStatus is TodayMatch plus the backend's message, which explains
// why no partner is available yet.
func (c *Client) TodayMatchStatus(ctx context.Context) (*profile.MatchedPartner, string, error) {
	var p profile.MatchedPartner
	env, err := c.do(ctx, "today match", http.MethodGet, "/api/v1/match/today", nil, &p)
	if err != nil {
		return nil, "", err
	}
	if !p.Found() {
		return nil, env.Message, nil
	}
	return &p, env.Message, nil
}

// ConfirmMatch accepts today's partner.
func (c *Client) ConfirmMatch(ctx context.Context) error {
	_, err := c.do(ctx, "confirm match", http.MethodGet, "/api/v1/match/confirm", nil, nil)
	return err
}

// MatchHistory lists previous matches, newest first.
func (c *Client) MatchHistory(ctx context.Context) ([]profile.HistoryEntry, error) {
	var h []profile.HistoryEntry
	_, err := c.do(ctx, "match history", http.MethodGet, "/api/v1/match/history", nil, &h)
	return h, err
}
