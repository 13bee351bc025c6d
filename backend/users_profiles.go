package main

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/charlhhhh/Openhouse/internal/profile"
)

// GET /api/v1/user/profile reads, POST applies a partial update.
func profileHandler(st store) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			getProfile(st, w, r)
		case http.MethodPost:
			updateProfile(st, w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
		}
	})
}

func getProfile(st store, w http.ResponseWriter, r *http.Request) {
	userUUID := userIDFromContext(r.Context())
	u, err := st.UserByUUID(r.Context(), userUUID)
	if errors.Is(err, errNotFound) {
		writeError(w, http.StatusUnauthorized, "unknown_user")
		return
	} else if err != nil {
		logger.Error("load profile", zap.String("uuid", userUUID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	ok(w, "ok", toProfile(u))
}

func updateProfile(st store, w http.ResponseWriter, r *http.Request) {
	var upd profileUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if upd.empty() {
		fail(w, "Nothing to update")
		return
	}
	if upd.Tags != nil {
		tags := make([]string, 0, len(*upd.Tags))
		for _, t := range *upd.Tags {
			tags = append(tags, strings.TrimSpace(t))
		}
		if err := profile.ValidateTags(tags); err != nil {
			fail(w, err.Error())
			return
		}
		upd.Tags = &tags
	}
	if upd.Username != nil && strings.TrimSpace(*upd.Username) == "" {
		fail(w, "Username cannot be empty")
		return
	}

	userUUID := userIDFromContext(r.Context())
	u, err := st.UpdateProfile(r.Context(), userUUID, upd)
	if errors.Is(err, errNotFound) {
		writeError(w, http.StatusUnauthorized, "unknown_user")
		return
	} else if err != nil {
		logger.Error("update profile", zap.String("uuid", userUUID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	ok(w, "Profile updated", toProfile(u))
}
