package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scanzie/smeal/internal/model"
)

// Session is a persisted login session.
type Session struct {
	ID        string
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// CreateUser inserts u, assigning an id and timestamps when missing.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	now := time.Now().UTC().Truncate(time.Second)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	_, err := s.exec(ctx,
		`INSERT INTO users (id, name, email, image, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.Image, u.CreatedAt.Unix(), u.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser returns the user with id or ErrNotFound.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	row := s.queryRow(ctx,
		`SELECT id, name, email, image, created_at, updated_at FROM users WHERE id = ? LIMIT 1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// UpdateUserName sets the display name and returns the updated user.
func (s *Store) UpdateUserName(ctx context.Context, id, name string) (*model.User, error) {
	res, err := s.exec(ctx,
		`UPDATE users SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().Unix(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update user name: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetUser(ctx, id)
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u                    model.User
		createdAt, updatedAt int64
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Image, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	u.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &u, nil
}

// CreateSession stores sess. Token and UserID are required.
func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	if sess.Token == "" || sess.UserID == "" {
		return fmt.Errorf("create session: token and user id are required")
	}
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	_, err := s.exec(ctx,
		`INSERT INTO sessions (id, token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.Token, sess.UserID, sess.ExpiresAt.Unix(), sess.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSessionByToken returns the session for token and its user, or
// ErrNotFound. Expiry is not checked here.
func (s *Store) GetSessionByToken(ctx context.Context, token string) (*Session, *model.User, error) {
	row := s.queryRow(ctx,
		`SELECT s.id, s.token, s.user_id, s.expires_at, s.created_at,
                u.id, u.name, u.email, u.image, u.created_at, u.updated_at
         FROM sessions s
         JOIN users u ON u.id = s.user_id
         WHERE s.token = ?
         LIMIT 1`,
		token,
	)
	var (
		sess                                 Session
		u                                    model.User
		expiresAt, sCreated, uCreated, uUpdt int64
	)
	err := row.Scan(&sess.ID, &sess.Token, &sess.UserID, &expiresAt, &sCreated,
		&u.ID, &u.Name, &u.Email, &u.Image, &uCreated, &uUpdt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	sess.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	sess.CreatedAt = time.Unix(sCreated, 0).UTC()
	u.CreatedAt = time.Unix(uCreated, 0).UTC()
	u.UpdatedAt = time.Unix(uUpdt, 0).UTC()
	return &sess, &u, nil
}

// DeleteExpiredSessions removes sessions that expired before now.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM sessions WHERE expires_at < ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}
