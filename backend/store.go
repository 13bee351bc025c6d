package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	errNotFound       = errors.New("not found")
	errAlreadyMatched = errors.New("already matched in this round")
)

// store is everything the handlers and jobs need from the database.
type store interface {
	UserByUUID(ctx context.Context, id string) (*User, error)
	UsersByUUIDs(ctx context.Context, ids []string) ([]*User, error)
	UsersByStatus(ctx context.Context, status string) ([]*User, error)
	Candidates(ctx context.Context, exclude string) ([]*User, error)
	EnsureUser(ctx context.Context, email string) (u *User, created bool, err error)
	UpdateProfile(ctx context.Context, id string, upd profileUpdate) (*User, error)
	SetMatchStatus(ctx context.Context, id, status string) error
	ResetMatchStatus(ctx context.Context, from, to string) (int64, error)

	SaveCode(ctx context.Context, c emailCode) error
	Code(ctx context.Context, email string) (*emailCode, error)
	IncrementCodeAttempts(ctx context.Context, email string) error
	DeleteCode(ctx context.Context, email string) error

	MatchForRound(ctx context.Context, userID, round string) (*MatchResult, error)
	SaveMatch(ctx context.Context, m *MatchResult) error
	MatchHistory(ctx context.Context, userID string) ([]MatchResult, error)
}

// pgStore implements store on Postgres.
type pgStore struct {
	db *sql.DB
}

func newPGStore(db *sql.DB) *pgStore {
	return &pgStore{db: db}
}

const userColumns = `uuid, email, username, avatar_url, intro_short, intro_long,
	research_area, gender, coin, is_verified, tags, match_status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	err := row.Scan(&u.UUID, &u.Email, &u.Username, &u.AvatarURL, &u.IntroShort, &u.IntroLong,
		&u.ResearchArea, &u.Gender, &u.Coin, &u.IsVerified, pq.Array(&u.Tags), &u.MatchStatus,
		&u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *pgStore) queryUsers(ctx context.Context, query string, args ...any) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *pgStore) UserByUUID(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errNotFound
	}
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE uuid = $1`, id))
}

func (s *pgStore) UsersByUUIDs(ctx context.Context, ids []string) ([]*User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users WHERE uuid = ANY($1::uuid[])`, pq.Array(ids))
}

func (s *pgStore) UsersByStatus(ctx context.Context, status string) ([]*User, error) {
	return s.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users WHERE match_status = $1 ORDER BY created_at`, status)
}

func (s *pgStore) Candidates(ctx context.Context, exclude string) ([]*User, error) {
	return s.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users WHERE uuid <> $1 AND cardinality(tags) > 0 ORDER BY created_at`, exclude)
}

// EnsureUser returns the user registered with email, creating it on first login.
func (s *pgStore) EnsureUser(ctx context.Context, email string) (*User, bool, error) {
	var (
		u       *User
		created bool
	)
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO users (uuid, email, username)
			VALUES ($1, $2, $3)
			ON CONFLICT (email) DO NOTHING`,
			uuid.NewString(), email, defaultUsername(email))
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		created = n == 1

		u, err = scanUser(tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("ensure user: %w", err)
	}
	return u, created, nil
}

func (s *pgStore) UpdateProfile(ctx context.Context, id string, upd profileUpdate) (*User, error) {
	var u *User
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		u, err = scanUser(tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE uuid = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		u.apply(upd)
		return tx.QueryRowContext(ctx, `
			UPDATE users
			SET username = $2, avatar_url = $3, intro_short = $4, intro_long = $5,
			    research_area = $6, gender = $7, tags = $8, updated_at = NOW()
			WHERE uuid = $1
			RETURNING updated_at`,
			id, u.Username, u.AvatarURL, u.IntroShort, u.IntroLong,
			u.ResearchArea, u.Gender, pq.Array(u.Tags),
		).Scan(&u.UpdatedAt)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *pgStore) SetMatchStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET match_status = $2, updated_at = NOW() WHERE uuid = $1`, id, status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errNotFound
	}
	return nil
}

func (s *pgStore) ResetMatchStatus(ctx context.Context, from, to string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET match_status = $2, updated_at = NOW() WHERE match_status = $1`, from, to)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *pgStore) SaveCode(ctx context.Context, c emailCode) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_codes (email, code_hash, expires_at, attempts)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (email) DO UPDATE
		SET code_hash = EXCLUDED.code_hash, expires_at = EXCLUDED.expires_at, attempts = 0`,
		c.Email, c.CodeHash, c.ExpiresAt)
	return err
}

func (s *pgStore) Code(ctx context.Context, email string) (*emailCode, error) {
	var c emailCode
	err := s.db.QueryRowContext(ctx,
		`SELECT email, code_hash, expires_at, attempts FROM email_codes WHERE email = $1`, email,
	).Scan(&c.Email, &c.CodeHash, &c.ExpiresAt, &c.Attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *pgStore) IncrementCodeAttempts(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE email_codes SET attempts = attempts + 1 WHERE email = $1`, email)
	return err
}

func (s *pgStore) DeleteCode(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM email_codes WHERE email = $1`, email)
	return err
}

const matchColumns = `id, user_uuid, match_uuid, match_round, match_score, llm_comment, created_at`

func scanMatch(row rowScanner) (*MatchResult, error) {
	var m MatchResult
	err := row.Scan(&m.ID, &m.UserUUID, &m.MatchUUID, &m.Round, &m.Score, &m.Comment, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *pgStore) MatchForRound(ctx context.Context, userID, round string) (*MatchResult, error) {
	return scanMatch(s.db.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM match_results WHERE user_uuid = $1 AND match_round = $2`,
		userID, round))
}

// SaveMatch stores m and fills its id. A second result for the same user and
// round yields errAlreadyMatched.
func (s *pgStore) SaveMatch(ctx context.Context, m *MatchResult) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO match_results (user_uuid, match_uuid, match_round, match_score, llm_comment)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		m.UserUUID, m.MatchUUID, m.Round, m.Score, m.Comment,
	).Scan(&m.ID, &m.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return errAlreadyMatched
	}
	return err
}

func (s *pgStore) MatchHistory(ctx context.Context, userID string) ([]MatchResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+matchColumns+` FROM match_results WHERE user_uuid = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MatchResult
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// matchRound is the YYYYMMDD key of the round t belongs to.
func matchRound(t time.Time) string {
	return t.Format("20060102")
}
