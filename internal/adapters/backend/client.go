// Package backend is the portal's client for the school activities REST API.
//
// One Client exists per visitor: it owns a cookie jar holding that visitor's
// backend session cookie. The client performs exactly one HTTP call per
// method, with no retries and no caching.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"signup/internal/domain/activity"
	"signup/internal/metrics"
)

// maxBodyBytes bounds how much of a backend response is read.
const maxBodyBytes = 1 << 20

// Endpoint labels for logs and metrics.
const (
	EndpointStatus     = "auth_status"
	EndpointLogin      = "auth_login"
	EndpointLogout     = "auth_logout"
	EndpointActivities = "activities"
	EndpointSignup     = "signup"
	EndpointUnregister = "unregister"
)

// StatusResult is the decoded body of GET /auth/status.
type StatusResult struct {
	Authenticated bool   `json:"authenticated"`
	TeacherName   string `json:"teacher_name"`
}

// LoginResult is the decoded body of a successful POST /auth/login.
type LoginResult struct {
	Message     string `json:"message"`
	TeacherName string `json:"teacher_name"`
}

type messageBody struct {
	Message string `json:"message"`
}

type activityBody struct {
	Description     string   `json:"description"`
	Schedule        string   `json:"schedule"`
	MaxParticipants int      `json:"max_participants"`
	Participants    []string `json:"participants"`
}

// Client calls the activities backend on behalf of one visitor.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// NewClient creates a client with its own cookie jar.
// PRE: baseURL is an absolute http(s) URL; timeout > 0
// POST: Returns a ready-to-use client, or an error for a malformed URL
func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url must be http or https, got %q", baseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{Timeout: timeout, Jar: jar},
		log:     log,
	}, nil
}

// Status queries the backend session.
func (c *Client) Status(ctx context.Context) (StatusResult, error) {
	status, body, err := c.do(ctx, http.MethodGet, EndpointStatus, c.baseURL+"/auth/status")
	if err != nil {
		return StatusResult{}, err
	}
	if !isSuccess(status) {
		return StatusResult{}, c.unknown(EndpointStatus, status, nil)
	}
	var out StatusResult
	if err := json.Unmarshal(body, &out); err != nil {
		return StatusResult{}, c.unknown(EndpointStatus, status, err)
	}
	c.succeeded(EndpointStatus)
	return out, nil
}

// Login authenticates a teacher. A non-2xx answer is an *AuthError.
// PRE: email and password as typed by the teacher
// POST: The jar holds the backend session cookie on success
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	q := url.Values{"email": {email}, "password": {password}}
	status, body, err := c.do(ctx, http.MethodPost, EndpointLogin, c.baseURL+"/auth/login?"+q.Encode())
	if err != nil {
		return LoginResult{}, err
	}
	if !isSuccess(status) {
		return LoginResult{}, &AuthError{Status: status, Detail: decodeDetail(body)}
	}
	var out LoginResult
	if err := json.Unmarshal(body, &out); err != nil {
		return LoginResult{}, c.unknown(EndpointLogin, status, err)
	}
	c.succeeded(EndpointLogin)
	return out, nil
}

// Logout ends the backend session. Only the status code matters.
func (c *Client) Logout(ctx context.Context) error {
	status, _, err := c.do(ctx, http.MethodPost, EndpointLogout, c.baseURL+"/auth/logout")
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return c.unknown(EndpointLogout, status, nil)
	}
	c.succeeded(EndpointLogout)
	return nil
}

// Activities fetches the whole catalog. The payload is schema-checked before
// it is decoded so a malformed catalog never reaches the renderer.
func (c *Client) Activities(ctx context.Context) (activity.Catalog, error) {
	status, body, err := c.do(ctx, http.MethodGet, EndpointActivities, c.baseURL+"/activities")
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, c.unknown(EndpointActivities, status, nil)
	}
	if err := validateCatalog(body); err != nil {
		return nil, c.unknown(EndpointActivities, status, err)
	}
	var raw map[string]activityBody
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, c.unknown(EndpointActivities, status, err)
	}
	catalog := make(activity.Catalog, len(raw))
	for name, a := range raw {
		participants := a.Participants
		if participants == nil {
			participants = []string{}
		}
		catalog[name] = activity.Activity{
			Name:            name,
			Description:     a.Description,
			Schedule:        a.Schedule,
			MaxParticipants: a.MaxParticipants,
			Participants:    participants,
		}
	}
	c.succeeded(EndpointActivities)
	return catalog, nil
}

// Signup adds a student to an activity and returns the backend's message.
// A non-2xx answer is a *ValidationError.
func (c *Client) Signup(ctx context.Context, activityName, email string) (string, error) {
	return c.rosterCommand(ctx, http.MethodPost, EndpointSignup, activityName, "signup", email)
}

// Unregister removes a student from an activity.
// A non-2xx answer is a *ValidationError.
func (c *Client) Unregister(ctx context.Context, activityName, email string) (string, error) {
	return c.rosterCommand(ctx, http.MethodDelete, EndpointUnregister, activityName, "unregister", email)
}

func (c *Client) rosterCommand(ctx context.Context, method, endpoint, activityName, verb, email string) (string, error) {
	u := c.baseURL + "/activities/" + url.PathEscape(activityName) + "/" + verb +
		"?" + url.Values{"email": {email}}.Encode()
	status, body, err := c.do(ctx, method, endpoint, u)
	if err != nil {
		return "", err
	}
	if !isSuccess(status) {
		return "", &ValidationError{Status: status, Detail: decodeDetail(body)}
	}
	var out messageBody
	if err := json.Unmarshal(body, &out); err != nil {
		return "", c.unknown(endpoint, status, err)
	}
	c.succeeded(endpoint)
	return out.Message, nil
}

// do performs one request and reads the body. Only transport failures are
// returned as errors; status handling is left to the caller.
// POST: Transport failures and non-2xx answers are counted here. A 2xx answer
// is counted by the caller once decoded, via succeeded or unknown.
func (c *Client) do(ctx context.Context, method, endpoint, rawURL string) (int, []byte, error) {
	start := time.Now()
	defer func() {
		metrics.BackendRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		metrics.BackendRequests.WithLabelValues(endpoint, metrics.OutcomeNetwork).Inc()
		return 0, nil, &NetworkError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.BackendRequests.WithLabelValues(endpoint, metrics.OutcomeNetwork).Inc()
		c.log.Warn("backend_request_failed", zap.String("endpoint", endpoint), zap.Error(err))
		return 0, nil, &NetworkError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.BackendRequests.WithLabelValues(endpoint, metrics.OutcomeNetwork).Inc()
		return 0, nil, &NetworkError{Endpoint: endpoint, Err: err}
	}

	if !isSuccess(resp.StatusCode) {
		metrics.BackendRequests.WithLabelValues(endpoint, metrics.OutcomeRejected).Inc()
	}
	c.log.Debug("backend_request",
		zap.String("endpoint", endpoint),
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp.StatusCode, body, nil
}

func (c *Client) succeeded(endpoint string) {
	metrics.BackendRequests.WithLabelValues(endpoint, metrics.OutcomeOK).Inc()
}

// unknown wraps an answer the client cannot use. Non-2xx answers were already
// counted as rejected by do.
func (c *Client) unknown(endpoint string, status int, err error) error {
	if isSuccess(status) {
		metrics.BackendRequests.WithLabelValues(endpoint, metrics.OutcomeInvalid).Inc()
	}
	c.log.Warn("backend_unexpected_response", zap.String("endpoint", endpoint), zap.Int("status", status), zap.Error(err))
	return &UnknownError{Endpoint: endpoint, Status: status, Err: err}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// decodeDetail extracts a string "detail" from an error body. Structured
// details (such as field validation lists) yield "" so callers fall back to
// their generic message.
func decodeDetail(body []byte) string {
	var e struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err != nil || len(e.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Detail, &s); err != nil {
		return ""
	}
	return s
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool {
	return errors.Is(err, ErrNetwork)
}
