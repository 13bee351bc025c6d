package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UserIDKey is the key type for storing the user uuid in context
type UserIDKey string

const userIDKey UserIDKey = "userUUID"

const (
	maxCodeAttempts = 5
	tokenTTL        = 24 * time.Hour
)

const msgBadCode = "Verification code is incorrect or expired"

// userIDFromContext returns the uuid put there by authenticate.
func userIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

func sendCodeHandler(st store, m mailer, lim *userLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}

		var req struct {
			Email string `json:"email"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		email, err := normalizeEmail(req.Email)
		if err != nil {
			fail(w, "Please enter a valid email address")
			return
		}
		if !lim.Allow(email) {
			writeError(w, http.StatusTooManyRequests, "rate_limited")
			return
		}

		code, err := newOTP()
		if err != nil {
			logger.Error("generate code", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "code_error")
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
		if err != nil {
			logger.Error("hash code", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "hash_error")
			return
		}

		err = st.SaveCode(r.Context(), emailCode{
			Email:     email,
			CodeHash:  string(hash),
			ExpiresAt: clock.Now().Add(otpTTL),
		})
		if err != nil {
			logger.Error("save code", zap.String("email", email), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if err := m.SendCode(r.Context(), email, code); err != nil {
			logger.Error("send code", zap.String("email", email), zap.Error(err))
			fail(w, "Could not send the verification email, try again later")
			return
		}
		ok(w, "Verification code sent", nil)
	}
}

func verifyCodeHandler(st store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}

		var req struct {
			Email string `json:"email"`
			Code  string `json:"code"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		email, err := normalizeEmail(req.Email)
		if err != nil || strings.TrimSpace(req.Code) == "" {
			fail(w, msgBadCode)
			return
		}

		ctx := r.Context()
		pending, err := st.Code(ctx, email)
		if errors.Is(err, errNotFound) {
			fail(w, msgBadCode)
			return
		} else if err != nil {
			logger.Error("load code", zap.String("email", email), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if pending.Attempts >= maxCodeAttempts || clock.Now().After(pending.ExpiresAt) {
			_ = st.DeleteCode(ctx, email)
			fail(w, msgBadCode)
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(pending.CodeHash), []byte(strings.TrimSpace(req.Code))) != nil {
			if err := st.IncrementCodeAttempts(ctx, email); err != nil {
				logger.Warn("count code attempt", zap.String("email", email), zap.Error(err))
			}
			fail(w, msgBadCode)
			return
		}
		_ = st.DeleteCode(ctx, email)

		u, created, err := st.EnsureUser(ctx, email)
		if err != nil {
			logger.Error("ensure user", zap.String("email", email), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if created {
			logger.Info("user registered", zap.String("uuid", u.UUID))
		}

		token, err := issueToken(u.UUID)
		if err != nil {
			logger.Error("sign token", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "token_generation_error")
			return
		}
		ok(w, "Login successful", map[string]any{"token": token, "is_new": created})
	}
}

// issueToken signs a session token for the user.
func issueToken(userUUID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uuid": userUUID,
		"exp":  clock.Now().Add(tokenTTL).Unix(),
	})
	return token.SignedString(jwtSecret)
}

func authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userUUID, ok := getUserIDFromBearer(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userUUID)))
	}
}

func getUserIDFromBearer(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	return parseUserIDFromJWT(strings.TrimPrefix(authHeader, "Bearer "))
}

// getUserIDFromRequest also accepts a token query parameter, for websocket
// clients that cannot set headers.
func getUserIDFromRequest(r *http.Request) (string, bool) {
	if id, ok := getUserIDFromBearer(r); ok {
		return id, true
	}
	if q := r.URL.Query().Get("token"); q != "" {
		return parseUserIDFromJWT(q)
	}
	return "", false
}

func parseUserIDFromJWT(tokenStr string) (string, bool) {
	claims := jwt.MapClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return jwtSecret, nil
	}, jwt.WithTimeFunc(clock.Now))
	if err != nil || !token.Valid {
		return "", false
	}

	id, ok := claims["uuid"].(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

func normalizeEmail(s string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(s))
	if err != nil {
		return "", err
	}
	return strings.ToLower(addr.Address), nil
}

// defaultUsername derives the initial display name from the mailbox part.
func defaultUsername(email string) string {
	name, _, _ := strings.Cut(email, "@")
	return name
}

// newOTP returns a random 6-digit code.
func newOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
