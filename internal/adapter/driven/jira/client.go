// Package jira implements the TrackerClient port against the Jira REST API.
package jira

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	"github.com/gregjones/httpcache"

	"github.com/ericfisherdev/jirastopwatch/internal/domain/model"
	"github.com/ericfisherdev/jirastopwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TrackerClient = (*Client)(nil)

// startedLayout is the timestamp format Jira expects in worklog bodies.
const startedLayout = "2006-01-02T15:04:05.000-0700"

// Client implements the driven.TrackerClient port over Jira's REST API with
// cookie-based sessions.
type Client struct {
	http    *http.Client
	baseURL *url.URL
	now     func() time.Time

	mu      sync.RWMutex
	session *model.Session
}

// NewClient creates a Jira client for baseURL with the following transport stack:
//  1. httpcache (ETag-based conditional request caching for issue lookups)
//  2. go-github-ratelimit (sleeps on 429 / Retry-After responses)
func NewClient(baseURL string) (*Client, error) {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	rateLimitClient.Timeout = 30 * time.Second
	return NewClientWithHTTPClient(rateLimitClient, baseURL)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("jira base URL is empty")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parsing base URL: unsupported scheme %q", u.Scheme)
	}

	return &Client{
		http:    httpClient,
		baseURL: u,
		now:     time.Now,
	}, nil
}

// BaseURL returns the Jira server the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

type sessionRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Session struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"session"`
}

// Authenticate opens a Jira session and keeps its cookie for later calls.
func (c *Client) Authenticate(ctx context.Context, username, password string) (model.Session, error) {
	if username == "" || password == "" {
		return model.Session{}, fmt.Errorf("missing username or password: %w", driven.ErrAuth)
	}

	resp, err := c.do(ctx, http.MethodPost, "/rest/auth/1/session", sessionRequest{
		Username: username,
		Password: password,
	}, false)
	if err != nil {
		return model.Session{}, fmt.Errorf("authenticate %s: %w", username, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return model.Session{}, fmt.Errorf("authenticate %s: status %d: %w", username, resp.StatusCode, driven.ErrAuth)
	}
	if resp.StatusCode != http.StatusOK {
		return model.Session{}, fmt.Errorf("authenticate %s: unexpected status %d", username, resp.StatusCode)
	}

	var body sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.Session{}, fmt.Errorf("decode session response: %w", err)
	}
	if body.Session.Name == "" || body.Session.Value == "" {
		return model.Session{}, fmt.Errorf("authenticate %s: empty session: %w", username, driven.ErrAuth)
	}

	session := model.Session{
		Username:  username,
		Name:      body.Session.Name,
		Value:     body.Session.Value,
		CreatedAt: c.now(),
	}

	c.mu.Lock()
	c.session = &session
	c.mu.Unlock()

	slog.Info("jira session opened", "username", username, "base_url", c.baseURL.String())
	return session, nil
}

// Session returns the current session, if any.
func (c *Client) Session() (model.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return model.Session{}, false
	}
	return *c.session, true
}

type worklogRequest struct {
	TimeSpentSeconds int64  `json:"timeSpentSeconds"`
	Started          string `json:"started"`
	Comment          string `json:"comment,omitempty"`
}

// ReportElapsed adds a worklog of elapsed (truncated to whole seconds) to
// issueKey, starting at started.
func (c *Client) ReportElapsed(ctx context.Context, issueKey string, started time.Time, elapsed time.Duration, comment string) error {
	seconds := int64(elapsed / time.Second)
	if seconds < 1 {
		return fmt.Errorf("report %s: elapsed %s below one second: %w", issueKey, elapsed, driven.ErrReport)
	}

	body := worklogRequest{
		TimeSpentSeconds: seconds,
		Started:          started.Format(startedLayout),
		Comment:          comment,
	}

	resp, err := c.do(ctx, http.MethodPost, "/rest/api/2/issue/"+url.PathEscape(issueKey)+"/worklog", body, true)
	if err != nil {
		return fmt.Errorf("report %s: %w: %w", issueKey, driven.ErrReport, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.clearSession()
		return fmt.Errorf("report %s: session expired: %w", issueKey, driven.ErrAuth)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("report %s: %w: %w", issueKey, driven.ErrReport, driven.ErrIssueNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("report %s: status %d: %w", issueKey, resp.StatusCode, driven.ErrReport)
	}

	return nil
}

type issueResponse struct {
	Key    string `json:"key"`
	Fields struct {
		Summary   string `json:"summary"`
		TimeSpent *int64 `json:"timespent"`
		Status    struct {
			Name string `json:"name"`
		} `json:"status"`
	} `json:"fields"`
}

// FetchIssue returns summary, status and total logged time of issueKey.
func (c *Client) FetchIssue(ctx context.Context, issueKey string) (model.Issue, error) {
	path := "/rest/api/2/issue/" + url.PathEscape(issueKey) + "?fields=summary,status,timespent"
	resp, err := c.do(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return model.Issue{}, fmt.Errorf("fetch issue %s: %w", issueKey, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.clearSession()
		return model.Issue{}, fmt.Errorf("fetch issue %s: %w", issueKey, driven.ErrAuth)
	case resp.StatusCode == http.StatusNotFound:
		return model.Issue{}, fmt.Errorf("fetch issue %s: %w", issueKey, driven.ErrIssueNotFound)
	case resp.StatusCode != http.StatusOK:
		return model.Issue{}, fmt.Errorf("fetch issue %s: unexpected status %d", issueKey, resp.StatusCode)
	}

	var body issueResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.Issue{}, fmt.Errorf("decode issue %s: %w", issueKey, err)
	}

	issue := model.Issue{
		Key:     body.Key,
		Summary: body.Fields.Summary,
		Status:  body.Fields.Status.Name,
	}
	if body.Fields.TimeSpent != nil {
		issue.TimeSpent = time.Duration(*body.Fields.TimeSpent) * time.Second
	}
	return issue, nil
}

// do issues a JSON request. When authed is true the session cookie is
// attached and a missing session fails with ErrAuth before any I/O.
func (c *Client) do(ctx context.Context, method, path string, payload any, authed bool) (*http.Response, error) {
	target, err := c.baseURL.Parse(c.baseURL.Path + path)
	if err != nil {
		return nil, fmt.Errorf("build URL %s: %w", path, err)
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if authed {
		session, ok := c.Session()
		if !ok {
			return nil, fmt.Errorf("no session: %w", driven.ErrAuth)
		}
		req.AddCookie(&http.Cookie{Name: session.Name, Value: session.Value})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target.Path, err)
	}
	return resp, nil
}

func (c *Client) clearSession() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
}
