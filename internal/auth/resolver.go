package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scanzie/smeal/internal/logging"
	"github.com/scanzie/smeal/internal/model"
	"github.com/scanzie/smeal/internal/store"
)

// Session cookie names set by the dashboard's auth provider.
const (
	CookieName       = "better-auth.session_token"
	SecureCookieName = "__Secure-better-auth.session_token"
)

// DefaultSessionTTL is used by Issue when ttl is zero.
const DefaultSessionTTL = 7 * 24 * time.Hour

// SessionStore is the persistence the resolver needs.
type SessionStore interface {
	GetSessionByToken(ctx context.Context, token string) (*store.Session, *model.User, error)
	CreateSession(ctx context.Context, sess *store.Session) error
}

// Resolver turns tokens into sessions.
type Resolver struct {
	store  SessionStore
	logger logging.Logger
	now    func() time.Time
}

func NewResolver(st SessionStore, logger logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Resolver{
		store:  st,
		logger: logger.With(logging.Field{Key: "component", Value: "auth"}),
		now:    time.Now,
	}
}

// Resolve looks up token. Unknown and expired tokens yield
// ErrUnauthenticated; storage failures are returned wrapped.
func (r *Resolver) Resolve(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	row, user, err := r.store.GetSessionByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	sess := &Session{
		ID:        row.ID,
		Token:     row.Token,
		UserID:    row.UserID,
		ExpiresAt: row.ExpiresAt,
		User:      user,
	}
	if !sess.Valid(r.now()) {
		return nil, ErrUnauthenticated
	}
	return sess, nil
}

// FromRequest resolves the session carried by req, if any.
func (r *Resolver) FromRequest(req *http.Request) (*Session, error) {
	return r.Resolve(req.Context(), TokenFromRequest(req))
}

// Issue creates a new session for userID. Used by the CLI and the demo
// setup; interactive sign-in is handled by the dashboard's auth provider.
func (r *Resolver) Issue(ctx context.Context, userID string, ttl time.Duration) (*Session, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	row := &store.Session{
		Token:     NewToken(),
		UserID:    userID,
		ExpiresAt: r.now().Add(ttl).UTC().Truncate(time.Second),
	}
	if err := r.store.CreateSession(ctx, row); err != nil {
		return nil, err
	}
	return r.Resolve(ctx, row.Token)
}

// NewToken returns a random opaque session token.
func NewToken() string {
	return strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
}

// TokenFromRequest extracts a token from an "Authorization: Bearer" header
// or from the session cookie. Signed cookie values ("token.signature") are
// reduced to the token part.
func TokenFromRequest(req *http.Request) string {
	if h := req.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
	}
	for _, name := range []string{SecureCookieName, CookieName} {
		c, err := req.Cookie(name)
		if err != nil || c.Value == "" {
			continue
		}
		v, err := url.QueryUnescape(c.Value)
		if err != nil {
			v = c.Value
		}
		tok, _, _ := strings.Cut(v, ".")
		return tok
	}
	return ""
}
