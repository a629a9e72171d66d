package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/scanzie/smeal/internal/webclient"
)

// Credentials identify the caller to the analysis backend.
type Credentials struct {
	UserID string
	Token  string
}

// CredentialSource supplies credentials for each outgoing request.
type CredentialSource interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// StaticCredentials always returns itself. The API server uses it with the
// already resolved session of the caller.
type StaticCredentials Credentials

func (s StaticCredentials) Credentials(context.Context) (Credentials, error) {
	return Credentials(s), nil
}

var ErrNoSession = errors.New("no active session")

// SessionEndpoint asks the dashboard's own GET /api/session route for the
// current session, sending the cookies held in its jar.
type SessionEndpoint struct {
	endpoint string
	web      webclient.WebClient
	jar      *cookiejar.Jar
}

// NewSessionEndpoint targets {baseURL}/api/session. sessionToken, when set,
// is stored in the jar as the session cookie for baseURL.
func NewSessionEndpoint(baseURL, sessionToken string, web webclient.WebClient) (*SessionEndpoint, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	if sessionToken != "" {
		jar.SetCookies(base, []*http.Cookie{{Name: "better-auth.session_token", Value: sessionToken, Path: "/"}})
	}
	return &SessionEndpoint{
		endpoint: base.String() + "/api/session",
		web:      web,
		jar:      jar,
	}, nil
}

func (s *SessionEndpoint) Credentials(ctx context.Context) (Credentials, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return Credentials{}, err
	}
	hdr := http.Header{}
	for _, c := range s.jar.Cookies(u) {
		hdr.Add("Cookie", c.String())
	}

	resp, err := s.web.Do(ctx, &webclient.Request{Method: http.MethodGet, URL: s.endpoint, Headers: hdr})
	if err != nil {
		return Credentials{}, fmt.Errorf("session fetch: %w", err)
	}
	if !resp.OK() {
		return Credentials{}, fmt.Errorf("session fetch failed: status %d", resp.StatusCode)
	}
	if cookies := (&http.Response{Header: resp.Headers}).Cookies(); len(cookies) > 0 {
		s.jar.SetCookies(u, cookies)
	}

	var body sessionResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return Credentials{}, fmt.Errorf("decode session: %w", err)
	}
	if body.Session == nil {
		return Credentials{}, ErrNoSession
	}

	var creds Credentials
	if body.Session.User != nil {
		creds.UserID = body.Session.User.ID
	}
	creds.Token = body.Session.Token
	if inner := body.Session.Session; inner != nil {
		if creds.Token == "" {
			creds.Token = inner.Token
		}
		if creds.UserID == "" {
			creds.UserID = inner.UserID
		}
	}
	if creds.UserID == "" {
		return Credentials{}, ErrNoSession
	}
	return creds, nil
}
