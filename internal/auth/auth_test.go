package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/scanzie/smeal/internal/auth"
	"github.com/scanzie/smeal/internal/model"
	"github.com/scanzie/smeal/internal/store"
	"github.com/scanzie/smeal/internal/testutil"
)

func newTestResolver(t *testing.T) (*auth.Resolver, *store.Store, *model.User) {
	t.Helper()
	st, err := store.Open(context.Background(), store.DriverSQLite, filepath.Join(t.TempDir(), "auth.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	u := &model.User{Name: "Grace Hopper", Email: "grace@example.com"}
	if err := st.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return auth.NewResolver(st, &testutil.DummyLogger{}), st, u
}

func TestTokenFromRequest(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		setup func(*http.Request)
		want  string
	}{
		{"none", func(*http.Request) {}, ""},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") }, "abc"},
		{"lowercase bearer", func(r *http.Request) { r.Header.Set("Authorization", "bearer abc") }, "abc"},
		{"basic ignored", func(r *http.Request) { r.Header.Set("Authorization", "Basic Zm9v") }, ""},
		{"signed cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: auth.CookieName, Value: "tok123.c2lnbmF0dXJl"})
		}, "tok123"},
		{"escaped cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: auth.SecureCookieName, Value: "tok456.sig%3D"})
		}, "tok456"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			if got := auth.TokenFromRequest(req); got != tt.want {
				t.Errorf("TokenFromRequest = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolver_IssueAndResolve(t *testing.T) {
	t.Parallel()
	r, _, u := newTestResolver(t)
	ctx := context.Background()

	sess, err := r.Issue(ctx, u.ID, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	got, err := r.Resolve(ctx, sess.Token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.UserID != u.ID || got.User == nil || got.User.Email != u.Email {
		t.Errorf("resolved session = %+v", got)
	}
}

func TestResolver_UnknownAndExpired(t *testing.T) {
	t.Parallel()
	r, st, u := newTestResolver(t)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "nope"); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Errorf("unknown token: %v", err)
	}
	if _, err := r.Resolve(ctx, ""); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Errorf("empty token: %v", err)
	}

	old := &store.Session{Token: "expired", UserID: u.ID, ExpiresAt: time.Now().Add(-time.Minute)}
	if err := st.CreateSession(ctx, old); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resolve(ctx, "expired"); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Errorf("expired token: %v", err)
	}
}

func TestMiddlewareAndRequire(t *testing.T) {
	t.Parallel()
	r, _, u := newTestResolver(t)
	sess, err := r.Issue(context.Background(), u.ID, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	var seen string
	h := r.Middleware(auth.Require(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		seen = auth.FromContext(req.Context()).UserID
		w.WriteHeader(http.StatusNoContent)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("with token: status = %d", rec.Code)
	}
	if seen != u.ID {
		t.Errorf("handler saw user %q, want %q", seen, u.ID)
	}
}

func TestUserID_NilSession(t *testing.T) {
	t.Parallel()
	if _, err := auth.UserID(nil); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}
