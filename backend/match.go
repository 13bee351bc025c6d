package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/charlhhhh/Openhouse/internal/profile"
)

const (
	msgNotGenerated   = "Today's match result has not been generated yet"
	msgAlreadyMatched = "You have already been matched today"
)

// GET /api/v1/match/trigger
func triggerHandler(st store, lim *userLimiter) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		userUUID := userIDFromContext(r.Context())
		if !lim.Allow(userUUID) {
			writeError(w, http.StatusTooManyRequests, "rate_limited")
			return
		}

		ctx := r.Context()
		now := clock.Now()
		round := matchRound(now)

		u, err := st.UserByUUID(ctx, userUUID)
		if errors.Is(err, errNotFound) {
			writeError(w, http.StatusUnauthorized, "unknown_user")
			return
		} else if err != nil {
			logger.Error("load user", zap.String("uuid", userUUID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if len(u.Tags) == 0 {
			fail(w, "Add at least one tag before matching")
			return
		}

		if _, err := st.MatchForRound(ctx, userUUID, round); err == nil {
			fail(w, msgAlreadyMatched)
			return
		} else if !errors.Is(err, errNotFound) {
			logger.Error("load match", zap.String("uuid", userUUID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}

		if err := st.SetMatchStatus(ctx, userUUID, string(profile.StatusMatching)); err != nil {
			logger.Error("set match status", zap.String("uuid", userUUID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}

		_, err = matchUser(ctx, st, u, round)
		switch {
		case err == nil:
			notifyReady(userUUID, now)
			ok(w, "Matching started", nil)
		case errors.Is(err, errNoCandidate):
			// The daily batch retries users still in matching.
			ok(w, "Matching started, waiting for more researchers", nil)
		case errors.Is(err, errAlreadyMatched):
			fail(w, msgAlreadyMatched)
		default:
			logger.Error("match user", zap.String("uuid", userUUID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "match_error")
		}
	})
}

// GET /api/v1/match/today
func todayHandler(st store) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		ctx := r.Context()
		userUUID := userIDFromContext(ctx)
		now := clock.Now()

		u, err := st.UserByUUID(ctx, userUUID)
		if errors.Is(err, errNotFound) {
			writeError(w, http.StatusUnauthorized, "unknown_user")
			return
		} else if err != nil {
			logger.Error("load user", zap.String("uuid", userUUID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if !revealed(now) && u.MatchStatus != string(profile.StatusMatched) {
			ok(w, fmt.Sprintf("Matches are revealed at %02d:00, please come back later", revealHour), nil)
			return
		}

		rec, err := st.MatchForRound(ctx, userUUID, matchRound(now))
		if errors.Is(err, errNotFound) {
			ok(w, msgNotGenerated, nil)
			return
		} else if err != nil {
			logger.Error("load match", zap.String("uuid", userUUID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}

		partner, err := st.UserByUUID(ctx, rec.MatchUUID)
		if err != nil {
			logger.Error("load partner", zap.String("uuid", rec.MatchUUID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if u.MatchStatus != string(profile.StatusMatched) {
			if err := st.SetMatchStatus(ctx, userUUID, string(profile.StatusMatched)); err != nil {
				logger.Warn("set match status", zap.String("uuid", userUUID), zap.Error(err))
			}
		}
		ok(w, "ok", toPartner(partner, rec))
	})
}

// GET /api/v1/match/confirm
func confirmHandler(st store) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		ctx := r.Context()
		userUUID := userIDFromContext(ctx)

		if _, err := st.MatchForRound(ctx, userUUID, matchRound(clock.Now())); errors.Is(err, errNotFound) {
			fail(w, "There is no match to confirm today")
			return
		} else if err != nil {
			logger.Error("load match", zap.String("uuid", userUUID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if err := st.SetMatchStatus(ctx, userUUID, string(profile.StatusMatched)); err != nil {
			logger.Error("set match status", zap.String("uuid", userUUID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		ok(w, "Match confirmed", nil)
	})
}

// GET /api/v1/match/history
func historyHandler(st store) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		ctx := r.Context()
		userUUID := userIDFromContext(ctx)

		records, err := st.MatchHistory(ctx, userUUID)
		if err != nil {
			logger.Error("load history", zap.String("uuid", userUUID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}

		entries := make([]profile.HistoryEntry, 0, len(records))
		if len(records) == 0 {
			ok(w, "ok", entries)
			return
		}

		loaders := loadersFromContext(ctx)
		if loaders == nil {
			loaders = newLoaders(st)
		}
		ids := make([]string, len(records))
		for i, rec := range records {
			ids[i] = rec.MatchUUID
		}
		partners, errs := loaders.Users.LoadMany(ctx, ids)()

		for i, rec := range records {
			if (errs != nil && errs[i] != nil) || partners[i] == nil {
				// Deleted accounts drop out of the history.
				continue
			}
			entries = append(entries, profile.HistoryEntry{
				Date:    roundDate(rec.Round),
				Partner: toPartner(partners[i], &records[i]),
			})
		}
		ok(w, "ok", entries)
	})
}

// roundDate turns a YYYYMMDD round into YYYY-MM-DD.
func roundDate(round string) string {
	t, err := time.Parse("20060102", round)
	if err != nil {
		return round
	}
	return t.Format(time.DateOnly)
}
