// Package localstore is the client's on-disk cache: the persisted session
// token and the last profile snapshot, kept in a small SQLite file.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charlhhhh/Openhouse/internal/profile"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

const tokenKey = "token"

// DB wraps the SQLite handle.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the cache at path. Use ":memory:" in tests.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping local store: %w", err)
	}

	createKV := `
	CREATE TABLE IF NOT EXISTS kv (
		"key" TEXT PRIMARY KEY,
		"value" TEXT NOT NULL
	);`
	createSnapshot := `
	CREATE TABLE IF NOT EXISTS profile_snapshot (
		"id" INTEGER PRIMARY KEY CHECK (id = 1),
		"payload" TEXT NOT NULL,
		"updated_at" DATETIME NOT NULL
	);`
	for _, stmt := range []string{createKV, createSnapshot} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create local store tables: %w", err)
		}
	}
	return &DB{db: db}, nil
}

// Close releases the database.
func (s *DB) Close() error {
	return s.db.Close()
}

// LoadToken implements session.Persister.
func (s *DB) LoadToken() (string, error) {
	var token string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, tokenKey).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return token, err
}

// SaveToken implements session.Persister.
func (s *DB) SaveToken(token string) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, tokenKey, token)
	return err
}

// ClearToken implements session.Persister. Logging out also forgets the
// cached profile so the next user does not see it.
func (s *DB) ClearToken() error {
	return withTx(context.Background(), s.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM kv WHERE key = ?`, tokenKey); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM profile_snapshot`)
		return err
	})
}

// SaveProfile stores p as the current snapshot.
func (s *DB) SaveProfile(p profile.Profile) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO profile_snapshot (id, payload, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, string(payload), time.Now().UTC())
	return err
}

// LoadProfile returns the snapshot and when it was written.
// ok is false when nothing is cached.
func (s *DB) LoadProfile() (p profile.Profile, updatedAt time.Time, ok bool, err error) {
	var payload string
	err = s.db.QueryRow(`SELECT payload, updated_at FROM profile_snapshot WHERE id = 1`).Scan(&payload, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.Profile{}, time.Time{}, false, nil
	}
	if err != nil {
		return profile.Profile{}, time.Time{}, false, err
	}
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return profile.Profile{}, time.Time{}, false, fmt.Errorf("decode profile: %w", err)
	}
	return p, updatedAt, true, nil
}

// ClearProfile drops the snapshot.
func (s *DB) ClearProfile() error {
	_, err := s.db.Exec(`DELETE FROM profile_snapshot`)
	return err
}

// UserID returns the cached user id or "".
func (s *DB) UserID() string {
	p, _, ok, err := s.LoadProfile()
	if err != nil || !ok {
		return ""
	}
	return p.UserID
}

// AvatarURL returns the cached avatar or "".
func (s *DB) AvatarURL() string {
	p, _, ok, err := s.LoadProfile()
	if err != nil || !ok {
		return ""
	}
	return p.AvatarURL
}

// withTx commits on success and rolls back on error or panic.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
