// Package chatapi is a thin HTTP client for the chat backend: five chat
// operations plus login and signup. Chat calls carry
// "Authorization: Bearer <token>".
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chatvk/chatvk/internal/session"
	"go.uber.org/zap"
)

const maxErrorBody = 64 * 1024

// TokenSource supplies the bearer token for each request. *auth.Context
// satisfies it.
type TokenSource interface {
	Token() string
}

// Client talks to the chat backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *zap.Logger

	loginPath  string
	signupPath string

	// onUnauthorized runs after any 401 when set.
	onUnauthorized func()

	// GET requests are repeated up to retries times on transient failures.
	// Zero by default.
	retries    int
	retryDelay time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout. 0 disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithAuthPaths overrides the login and signup endpoints.
func WithAuthPaths(login, signup string) Option {
	return func(c *Client) {
		if login != "" {
			c.loginPath = login
		}
		if signup != "" {
			c.signupPath = signup
		}
	}
}

// WithUnauthorizedHandler installs a hook run on every 401 response,
// whichever call produced it.
func WithUnauthorizedHandler(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// WithRetries sets how often a failed GET is repeated and the first backoff
// delay. Writes are never retried.
func WithRetries(n int, base time.Duration) Option {
	return func(c *Client) {
		c.retries = max(n, 0)
		c.retryDelay = base
	}
}

// New creates a Client for baseURL (e.g. "http://localhost:5000").
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		tokens:     tokens,
		logger:     zap.NewNop(),
		loginPath:  "/auth/login",
		signupPath: "/auth/signup",
		retryDelay: defaultBaseDelay,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the backend root the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// ListConversations returns the user's conversations, newest first.
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var out []Conversation
	if err := c.do(ctx, http.MethodGet, "/chat", nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateConversation creates an empty conversation with the server's
// default title.
func (c *Client) CreateConversation(ctx context.Context) (Conversation, error) {
	var out Conversation
	if err := c.do(ctx, http.MethodPost, "/chat", struct{}{}, &out, true); err != nil {
		return Conversation{}, err
	}
	return out, nil
}

// DeleteConversation deletes a conversation.
func (c *Client) DeleteConversation(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/chat/%d", id), nil, nil, true)
}

// ListMessages returns a conversation's messages, oldest first.
func (c *Client) ListMessages(ctx context.Context, id int64) ([]Message, error) {
	var out []Message
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/chat/%d/messages", id), nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessage posts content and waits while the server generates the
// assistant reply. The response body is ignored; callers re-fetch the
// message list to display the result.
func (c *Client) SendMessage(ctx context.Context, id int64, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/chat/%d/messages", id), sendMessageRequest{Content: content}, nil, true)
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, creds Credentials) (*session.Session, error) {
	return c.authenticate(ctx, c.loginPath, creds)
}

// Signup registers a user and returns the new session.
func (c *Client) Signup(ctx context.Context, creds Credentials) (*session.Session, error) {
	return c.authenticate(ctx, c.signupPath, creds)
}

func (c *Client) authenticate(ctx context.Context, path string, creds Credentials) (*session.Session, error) {
	var out authResponse
	if err := c.do(ctx, http.MethodPost, path, creds, &out, false); err != nil {
		return nil, err
	}
	token := out.Token
	if token == "" {
		token = out.AccessToken
	}
	if token == "" {
		return nil, &RequestError{Method: http.MethodPost, Path: path, StatusCode: http.StatusOK, Message: "response carried no token"}
	}
	if out.User.Username == "" {
		out.User.Username = creds.Username
	}
	return &session.Session{Token: token, User: out.User}, nil
}

// Health checks GET /health. It needs no token.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, false)
}

// do sends a request, repeating GETs that fail transiently.
func (c *Client) do(ctx context.Context, method, path string, body, out any, authed bool) error {
	err := c.doOnce(ctx, method, path, body, out, authed)
	if method != http.MethodGet {
		return err
	}
	for attempt := 0; attempt < c.retries && isRetryableError(err); attempt++ {
		delay := retryDelay(c.retryDelay, attempt)
		c.logger.Info("retrying request",
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if serr := sleepWithContext(ctx, delay); serr != nil {
			return err
		}
		err = c.doOnce(ctx, method, path, body, out, authed)
	}
	return err
}

// doOnce sends one request. body is JSON-encoded when non-nil; out is decoded
// from a 2xx response when non-nil.
func (c *Client) doOnce(ctx context.Context, method, path string, body, out any, authed bool) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return &RequestError{Method: method, Path: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed && c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return &RequestError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rerr := &RequestError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    readErrorMessage(resp.Body),
		}
		if resp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return rerr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RequestError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// readErrorMessage extracts {"message": ...} (or {"error": ...}) from an
// error body.
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
		Msg     string `json:"msg"`
	}
	if json.Unmarshal(data, &payload) != nil {
		return ""
	}
	switch {
	case payload.Message != "":
		return payload.Message
	case payload.Msg != "":
		return payload.Msg
	}
	if s, ok := payload.Error.(string); ok {
		return s
	}
	return ""
}
