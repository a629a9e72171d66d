// Package auth resolves the signed-in user for a request. Sessions are
// opaque bearer tokens stored alongside users in the database.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/scanzie/smeal/internal/model"
)

// ErrUnauthenticated is returned when no valid session is available.
var ErrUnauthenticated = errors.New("unauthenticated")

// Session is an authenticated user session.
type Session struct {
	ID        string      `json:"id"`
	Token     string      `json:"-"`
	UserID    string      `json:"userId"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      *model.User `json:"user"`
}

// Valid reports whether s is usable at now.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.UserID != "" && now.Before(s.ExpiresAt)
}

type ctxKey struct{}

// WithSession returns a copy of ctx carrying sess.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, sess)
}

// FromContext returns the session attached by Middleware, or nil.
func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(ctxKey{}).(*Session)
	return sess
}

// UserID returns the session's user id, or ErrUnauthenticated for a nil
// session.
func UserID(sess *Session) (string, error) {
	if sess == nil || sess.UserID == "" {
		return "", ErrUnauthenticated
	}
	return sess.UserID, nil
}
