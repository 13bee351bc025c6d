package main

import (
	"time"

	"github.com/charlhhhh/Openhouse/internal/profile"
)

// User is a row of the users table.
type User struct {
	UUID         string
	Email        string
	Username     string
	AvatarURL    string
	IntroShort   string
	IntroLong    string
	ResearchArea string
	Gender       string
	Coin         int
	IsVerified   bool
	Tags         []string
	MatchStatus  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MatchResult is one user's pairing for one match round.
type MatchResult struct {
	ID        int64
	UserUUID  string
	MatchUUID string
	Round     string // YYYYMMDD
	Score     int
	Comment   string
	CreatedAt time.Time
}

// emailCode is a pending one-time login code.
type emailCode struct {
	Email     string
	CodeHash  string
	ExpiresAt time.Time
	Attempts  int
}

// profileUpdate is the partial update accepted by POST /api/v1/user/profile.
type profileUpdate struct {
	Username     *string   `json:"username"`
	AvatarURL    *string   `json:"avatar_url"`
	IntroShort   *string   `json:"intro_short"`
	IntroLong    *string   `json:"intro_long"`
	ResearchArea *string   `json:"research_area"`
	Gender       *string   `json:"gender"`
	Tags         *[]string `json:"tags"`
}

func (u profileUpdate) empty() bool {
	return u.Username == nil && u.AvatarURL == nil && u.IntroShort == nil &&
		u.IntroLong == nil && u.ResearchArea == nil && u.Gender == nil && u.Tags == nil
}

func (u *User) apply(upd profileUpdate) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&u.Username, upd.Username)
	set(&u.AvatarURL, upd.AvatarURL)
	set(&u.IntroShort, upd.IntroShort)
	set(&u.IntroLong, upd.IntroLong)
	set(&u.ResearchArea, upd.ResearchArea)
	set(&u.Gender, upd.Gender)
	if upd.Tags != nil {
		u.Tags = append([]string{}, (*upd.Tags)...)
	}
}

func toProfile(u *User) profile.Profile {
	tags := u.Tags
	if tags == nil {
		tags = []string{}
	}
	return profile.Profile{
		UserID:       u.UUID,
		DisplayName:  u.Username,
		AvatarURL:    u.AvatarURL,
		Bio:          u.IntroLong,
		IntroShort:   u.IntroShort,
		ResearchArea: u.ResearchArea,
		Gender:       u.Gender,
		Coin:         u.Coin,
		IsVerified:   u.IsVerified,
		Tags:         tags,
		MatchStatus:  profile.MatchStatus(u.MatchStatus),
	}
}

func toPartner(u *User, rec *MatchResult) profile.MatchedPartner {
	tags := u.Tags
	if tags == nil {
		tags = []string{}
	}
	p := profile.MatchedPartner{
		UserID:       u.UUID,
		DisplayName:  u.Username,
		AvatarURL:    u.AvatarURL,
		Bio:          u.IntroShort,
		ResearchArea: u.ResearchArea,
		Tags:         tags,
	}
	if rec != nil {
		p.Comment = rec.Comment
		p.Score = rec.Score
	}
	return p
}
