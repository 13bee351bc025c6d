package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/charlhhhh/Openhouse/internal/config"
	"github.com/charlhhhh/Openhouse/internal/logging"
)

var jwtSecret []byte

var logger = zap.NewNop()

var clock clockwork.Clock = clockwork.NewRealClock()

var (
	// Hour of day (local time) from which today's partner is shown.
	revealHour = 12
	otpTTL     = 10 * time.Minute
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "openhouse:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}
	logger, err = logging.New(cfg.LogLevel, cfg.Dev())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	jwtSecret = []byte(cfg.JWTSecret)
	revealHour = cfg.RevealHour
	otpTTL = cfg.OTPTTL
	if !cfg.Dev() && cfg.JWTSecret == "your_secret_key_please_change_in_production" {
		logger.Warn("JWT_SECRET is the development default")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	st := newPGStore(db)

	sched, err := newScheduler(ctx, st, cfg.MatchCron, cfg.ResetCron)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(st, logMailer{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting Open House backend", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newRouter wires every endpoint. Trigger and code requests are rate limited
// per user and per email.
func newRouter(st store, m mailer) http.Handler {
	mux := http.NewServeMux()

	codeLimiter := newUserLimiter(rate.Every(time.Minute), 1)
	triggerLimiter := newUserLimiter(rate.Every(10*time.Second), 3)

	// Auth
	mux.Handle("/api/v1/auth/email/send", sendCodeHandler(st, m, codeLimiter))
	mux.Handle("/api/v1/auth/email/verify", verifyCodeHandler(st))

	// Profile
	mux.Handle("/api/v1/user/profile", profileHandler(st))

	// Daily match
	mux.Handle("/api/v1/match/trigger", triggerHandler(st, triggerLimiter))
	mux.Handle("/api/v1/match/today", todayHandler(st))
	mux.Handle("/api/v1/match/confirm", confirmHandler(st))
	mux.Handle("/api/v1/match/history", historyHandler(st))

	// Match hints
	mux.Handle("/api/v1/ws/match", wsMatchHandler())

	// Health check endpoint for Docker
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return withCORS(dataLoaderMiddleware(st)(mux))
}
