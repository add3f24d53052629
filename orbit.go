// Package orbit provides the Go client SDK for the Orbit social platform.
//
// The SDK covers the REST surface (identity, message history, groups,
// notifications) with a sub-module access pattern, and a realtime Session
// that multiplexes private messages, group messages, typing indicators,
// read receipts, presence, and notifications over a single WebSocket.
//
// Example:
//
//	client := orbit.NewClient("eyJhbGciOi...")
//
//	// REST
//	me, _ := client.Account.Me(ctx)
//	client.Messages.SendPrivate(ctx, 42, "hello over HTTP")
//
//	// Realtime
//	session := orbit.NewSession(client, nil)
//	session.OnMessage(func(convID string, msg orbit.Message) { ... })
//	session.Connect(ctx)
//	if !session.SendPrivateMessage(42, "hello") {
//		// queued for reconnect; optionally fall back to HTTP
//		client.Messages.SendPrivate(ctx, 42, "hello")
//	}
package orbit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://orbit.social"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

// Client is the Orbit API client. Use NewClient to construct one; the
// zero value is not usable.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger

	Account       *AccountClient
	Messages      *MessagesClient
	Groups        *GroupsClient
	Notifications *NotificationsClient
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at a non-default deployment.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// WithLogger sets the logger used by the client and by sessions created
// from it. By default logging is discarded.
func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a new Orbit client. token may be empty for the login
// flow; call SetToken afterwards.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: log.New(io.Discard, "", 0),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Account = &AccountClient{c: c}
	c.Messages = &MessagesClient{c: c}
	c.Groups = &GroupsClient{c: c}
	c.Notifications = &NotificationsClient{c: c}
	return c
}

// SetToken sets or updates the access token, e.g. after login.
func (c *Client) SetToken(token string) {
	c.token = token
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ============================================================================
// Internal request helpers
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, query map[string]string) (*Result, error) {
	data, err := c.doRequest(ctx, method, path, body, query)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Result](data)
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

func resultErr(r *Result) error {
	if r.Error != nil {
		return r.Error
	}
	return fmt.Errorf("request was not successful")
}

func paginationQuery(opts *PaginationOptions) map[string]string {
	if opts == nil {
		return nil
	}
	q := map[string]string{}
	if opts.Limit > 0 {
		q["limit"] = fmt.Sprintf("%d", opts.Limit)
	}
	if opts.Offset > 0 {
		q["offset"] = fmt.Sprintf("%d", opts.Offset)
	}
	if len(q) == 0 {
		return nil
	}
	return q
}

// ============================================================================
// Sub-Clients
// ============================================================================

// AccountClient handles authentication and identity.
type AccountClient struct{ c *Client }

// Login exchanges credentials for a token and installs it on the client.
func (a *AccountClient) Login(ctx context.Context, opts *LoginOptions) (*AuthData, error) {
	res, err := a.c.do(ctx, "POST", "/api/auth/login", opts, nil)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return nil, resultErr(res)
	}
	var auth AuthData
	if err := res.Decode(&auth); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}
	a.c.SetToken(auth.Token)
	return &auth, nil
}

// Me returns the current authenticated identity. The realtime session uses
// this to resolve selfID before inbound dispatch can proceed.
func (a *AccountClient) Me(ctx context.Context) (*UserProfile, error) {
	res, err := a.c.do(ctx, "GET", "/api/users/me", nil, nil)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return nil, resultErr(res)
	}
	var user UserProfile
	if err := res.Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode identity: %w", err)
	}
	return &user, nil
}

// Logout invalidates the server-side session.
func (a *AccountClient) Logout(ctx context.Context) (*Result, error) {
	return a.c.do(ctx, "POST", "/api/auth/logout", nil, nil)
}

// MessagesClient handles message history and the HTTP send fallback.
type MessagesClient struct{ c *Client }

// History returns the private message history with another user.
func (m *MessagesClient) History(ctx context.Context, userID int64, opts *PaginationOptions) (*Result, error) {
	return m.c.do(ctx, "GET", fmt.Sprintf("/api/messages/%d", userID), nil, paginationQuery(opts))
}

// SendPrivate sends a private message over HTTP. This is the non-realtime
// delivery path used when Session.SendPrivateMessage reports the frame was
// queued rather than transmitted.
func (m *MessagesClient) SendPrivate(ctx context.Context, userID int64, content string) (*Result, error) {
	return m.c.do(ctx, "POST", fmt.Sprintf("/api/messages/%d", userID), map[string]string{"content": content}, nil)
}

// GroupHistory returns a group's message history.
func (m *MessagesClient) GroupHistory(ctx context.Context, groupID int64, opts *PaginationOptions) (*Result, error) {
	return m.c.do(ctx, "GET", fmt.Sprintf("/api/groups/%d/messages", groupID), nil, paginationQuery(opts))
}

// SendGroup sends a group message over HTTP.
func (m *MessagesClient) SendGroup(ctx context.Context, groupID int64, content string) (*Result, error) {
	return m.c.do(ctx, "POST", fmt.Sprintf("/api/groups/%d/messages", groupID), map[string]string{"content": content}, nil)
}

// GroupsClient handles group management.
type GroupsClient struct{ c *Client }

func (g *GroupsClient) List(ctx context.Context) (*Result, error) {
	return g.c.do(ctx, "GET", "/api/groups", nil, nil)
}

func (g *GroupsClient) Get(ctx context.Context, groupID int64) (*Result, error) {
	return g.c.do(ctx, "GET", fmt.Sprintf("/api/groups/%d", groupID), nil, nil)
}

func (g *GroupsClient) Members(ctx context.Context, groupID int64) (*Result, error) {
	return g.c.do(ctx, "GET", fmt.Sprintf("/api/groups/%d/members", groupID), nil, nil)
}

// NotificationsClient handles stored notifications.
type NotificationsClient struct{ c *Client }

func (n *NotificationsClient) List(ctx context.Context, opts *PaginationOptions) (*Result, error) {
	return n.c.do(ctx, "GET", "/api/notifications", nil, paginationQuery(opts))
}

func (n *NotificationsClient) MarkRead(ctx context.Context, notificationID int64) (*Result, error) {
	return n.c.do(ctx, "POST", fmt.Sprintf("/api/notifications/%d/read", notificationID), nil, nil)
}
