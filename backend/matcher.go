package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/charlhhhh/Openhouse/internal/api"
	"github.com/charlhhhh/Openhouse/internal/profile"
)

var errNoCandidate = errors.New("no candidate available")

// pickPartner returns the best scoring candidate. Ties go to the earlier one.
func pickPartner(u *User, candidates []*User) (*User, int) {
	var (
		best      *User
		bestScore = -1
	)
	for _, c := range candidates {
		if c.UUID == u.UUID {
			continue
		}
		if s := matchScore(u.Tags, c.Tags); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best, bestScore
}

// matchUser computes and stores the user's partner for round.
func matchUser(ctx context.Context, st store, u *User, round string) (*MatchResult, error) {
	candidates, err := st.Candidates(ctx, u.UUID)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	partner, score := pickPartner(u, candidates)
	if partner == nil {
		return nil, errNoCandidate
	}

	rec := &MatchResult{
		UserUUID:  u.UUID,
		MatchUUID: partner.UUID,
		Round:     round,
		Score:     score,
		Comment:   matchComment(commonTags(u.Tags, partner.Tags)),
	}
	if err := st.SaveMatch(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// revealed reports whether today's results may be shown at now.
// A reveal hour of 0 shows them as soon as they exist.
func revealed(now time.Time) bool {
	return revealHour <= 0 || now.Hour() >= revealHour
}

// notifyReady pushes the match_ready hint once results are visible.
func notifyReady(userUUID string, now time.Time) {
	if revealed(now) {
		matchHub.sendToUser(userUUID, api.Hint{Type: api.HintMatchReady, Data: matchRound(now)})
	}
}

// runDailyMatch matches every user still waiting in the matching state and
// returns how many results it stored.
func runDailyMatch(ctx context.Context, st store) (int, error) {
	now := clock.Now()
	round := matchRound(now)

	waiting, err := st.UsersByStatus(ctx, string(profile.StatusMatching))
	if err != nil {
		return 0, fmt.Errorf("load waiting users: %w", err)
	}

	matched := 0
	for _, u := range waiting {
		if err := ctx.Err(); err != nil {
			return matched, err
		}
		_, err := matchUser(ctx, st, u, round)
		switch {
		case err == nil:
			matched++
			notifyReady(u.UUID, now)
		case errors.Is(err, errAlreadyMatched):
		case errors.Is(err, errNoCandidate):
			logger.Info("no partner for user", zap.String("uuid", u.UUID), zap.String("round", round))
		default:
			logger.Error("daily match", zap.String("uuid", u.UUID), zap.Error(err))
		}
	}
	return matched, nil
}

// resetMatched makes yesterday's matched users available again.
func resetMatched(ctx context.Context, st store) (int64, error) {
	return st.ResetMatchStatus(ctx, string(profile.StatusMatched), string(profile.StatusAvailable))
}
