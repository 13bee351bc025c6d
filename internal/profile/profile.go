// Package profile holds the user records shared by the client packages: the
// cached Profile snapshot, the server-side match status and the partner card
// returned once a daily match is revealed.
package profile

import (
	"errors"
	"fmt"
)

// MatchStatus is the server-side matching state of a user.
type MatchStatus string

const (
	StatusAvailable MatchStatus = "available"
	StatusMatching  MatchStatus = "matching"
	StatusMatched   MatchStatus = "matched"
)

// ErrUnexpectedStatus is returned for match statuses the client does not know.
var ErrUnexpectedStatus = errors.New("unexpected match status")

// ParseMatchStatus validates a raw status string coming from the backend.
func ParseMatchStatus(s string) (MatchStatus, error) {
	switch st := MatchStatus(s); st {
	case StatusAvailable, StatusMatching, StatusMatched:
		return st, nil
	default:
		return MatchStatus(s), fmt.Errorf("%w: %q", ErrUnexpectedStatus, s)
	}
}

// Profile is the denormalized user record as served by GET /api/v1/user/profile.
type Profile struct {
	UserID       string      `json:"uuid"`
	DisplayName  string      `json:"username"`
	AvatarURL    string      `json:"avatar_url"`
	Bio          string      `json:"intro_long"`
	IntroShort   string      `json:"intro_short"`
	ResearchArea string      `json:"research_area"`
	Gender       string      `json:"gender"`
	Coin         int         `json:"coin"`
	IsVerified   bool        `json:"is_verified"`
	Tags         []string    `json:"tags"`
	MatchStatus  MatchStatus `json:"match_status"`
}

// MatchedPartner is the card of the user someone was paired with today.
type MatchedPartner struct {
	UserID       string   `json:"uuid"`
	DisplayName  string   `json:"username"`
	AvatarURL    string   `json:"avatar_url"`
	Bio          string   `json:"intro_short"`
	ResearchArea string   `json:"research_area"`
	Tags         []string `json:"tags"`
	IsFollowing  bool     `json:"is_following"`
	Comment      string   `json:"llm_comment"`
	Score        int      `json:"match_score"`
}

// Found reports whether the record describes an actual partner.
// The backend answers "no match yet" with an empty record.
func (p *MatchedPartner) Found() bool {
	return p != nil && p.UserID != ""
}

// HistoryEntry is one day of the match history.
type HistoryEntry struct {
	Date    string         `json:"match_date"`
	Partner MatchedPartner `json:"match_user"`
}
