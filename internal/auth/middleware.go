package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/scanzie/smeal/internal/logging"
)

// Middleware attaches the request's session to its context when one
// resolves. It never rejects a request; use Require for that.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		sess, err := r.FromRequest(req)
		switch {
		case err == nil:
			req = req.WithContext(WithSession(req.Context(), sess))
		case !errors.Is(err, ErrUnauthenticated):
			r.logger.Error("session lookup failed", logging.Field{Key: "error", Value: err})
		}
		next.ServeHTTP(w, req)
	})
}

// Require rejects requests without a session with 401.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if FromContext(req.Context()) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, req)
	})
}
