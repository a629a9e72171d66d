// Package backend talks to the external analysis backend: it starts
// analyses and reads their progress and results.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/scanzie/smeal/internal/logging"
	"github.com/scanzie/smeal/internal/model"
	"github.com/scanzie/smeal/internal/webclient"
)

type Config struct {
	// BaseURL is the backend origin; "/api/..." is appended.
	BaseURL string
	// RequestTimeout bounds each call. Zero means 15s.
	RequestTimeout time.Duration
}

const defaultRequestTimeout = 15 * time.Second

type Client struct {
	cfg    Config
	web    webclient.WebClient
	creds  CredentialSource
	logger logging.Logger
}

// New returns a Client. creds may be nil, in which case requests carry no
// user id or bearer token beyond what the call itself specifies.
func New(cfg Config, web webclient.WebClient, creds CredentialSource, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:    cfg,
		web:    web,
		creds:  creds,
		logger: logger.With(logging.Field{Key: "component", Value: "backend"}),
	}
}

// WithCredentials returns a copy of c that uses creds.
func (c *Client) WithCredentials(creds CredentialSource) *Client {
	cp := *c
	cp.creds = creds
	return &cp
}

// StartAnalysis asks the backend to analyze target.
func (c *Client) StartAnalysis(ctx context.Context, target string) (*StartResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/analyze", nil, map[string]any{"url": target})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet(resp.Body)}
	}
	var out StartResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("decode analyze response: %w", err)
	}
	if out.SessionID == "" {
		return nil, fmt.Errorf("analyze response missing sessionId")
	}
	if out.URL == "" {
		out.URL = target
	}
	return &out, nil
}

// FetchResult reads the (possibly partial) result for userID and target.
// 400 and 404 mean the record is not created yet and yield ErrNotReady.
func (c *Client) FetchResult(ctx context.Context, userID, target string) (*ResultPayload, error) {
	path := "/api/result/" + escapeComponent(userID) + "/" + escapeComponent(target)
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotReady
	case !resp.OK():
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet(resp.Body)}
	}

	var out ResultPayload
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &out, nil
}

// FetchProgress reads the session-keyed progress view.
func (c *Client) FetchProgress(ctx context.Context, sessionID, userID string) (*model.ProgressData, error) {
	q := url.Values{}
	if userID != "" {
		q.Set("userId", userID)
	}
	resp, err := c.do(ctx, http.MethodGet, "/api/progress/"+escapeComponent(sessionID), q, nil)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotReady
	case !resp.OK():
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet(resp.Body)}
	}

	var out model.ProgressData
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	if out.SessionID == "" {
		out.SessionID = sessionID
	}
	return &out, nil
}

// do attaches credentials and executes one request under the per-request
// timeout. A failing credential lookup is logged and the request proceeds.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body map[string]any) (*webclient.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	if query == nil {
		query = url.Values{}
	}
	hdr := http.Header{}
	hdr.Set("Accept", "application/json")

	if c.creds != nil {
		creds, err := c.creds.Credentials(ctx)
		if err != nil {
			c.logger.Warn("failed to attach user id", logging.Field{Key: "error", Value: err})
		} else {
			if creds.UserID != "" {
				if body != nil {
					body["userId"] = creds.UserID
				} else if query.Get("userId") == "" {
					query.Set("userId", creds.UserID)
				}
			}
			if creds.Token != "" {
				hdr.Set("Authorization", "Bearer "+creds.Token)
			}
		}
	}

	target := c.cfg.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		payload = b
		hdr.Set("Content-Type", "application/json")
	}

	resp, err := c.web.Do(ctx, &webclient.Request{Method: method, URL: target, Headers: hdr, Body: payload})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// escapeComponent escapes s as a single path segment, the way browsers'
// encodeURIComponent does for the characters that occur in URLs and ids.
func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func snippet(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit])
	}
	return string(b)
}
