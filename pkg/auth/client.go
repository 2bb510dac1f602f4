package auth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/arbor/pkg/activity"
)

// Client is a TokenService over the token service HTTP API.
type Client struct {
	base  string
	appID string
	http  *http.Client
	// auth supplies the Authorization header value per request.
	auth func(ctx context.Context) (string, error)
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithAuthHeader supplies bearer credentials for the service. Without it
// requests go out unauthenticated, which only local emulators accept.
func WithAuthHeader(fn func(ctx context.Context) (string, error)) ClientOption {
	return func(c *Client) {
		c.auth = fn
	}
}

// NewClient builds a token service client. baseURL is the service root,
// appID identifies the agent in sign-in state blobs.
func NewClient(baseURL, appID string, opts ...ClientOption) *Client {
	c := &Client{
		base:  strings.TrimRight(baseURL, "/"),
		appID: appID,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetToken implements TokenService.
func (c *Client) GetToken(ctx context.Context, connection, channelID, userID, magicCode string) (*TokenResponse, error) {
	q := url.Values{}
	q.Set("connectionName", connection)
	q.Set("channelId", channelID)
	q.Set("userId", userID)
	if magicCode != "" {
		q.Set("code", magicCode)
	}
	var token TokenResponse
	status, err := c.call(ctx, http.MethodGet, "/api/usertoken/GetToken", q, nil, &token)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound || token.Token == "" {
		return nil, ErrTokenNotFound
	}
	return &token, nil
}

// SignOut implements TokenService.
func (c *Client) SignOut(ctx context.Context, connection, channelID, userID string) error {
	q := url.Values{}
	q.Set("connectionName", connection)
	q.Set("channelId", channelID)
	q.Set("userId", userID)
	_, err := c.call(ctx, http.MethodDelete, "/api/usertoken/SignOut", q, nil, nil)
	return err
}

// SignInResource implements TokenService. The state blob ties the issued
// sign-in link back to this conversation.
func (c *Client) SignInResource(ctx context.Context, connection string, act *activity.Activity, finalRedirect string) (*SignInResource, error) {
	blob, err := c.stateBlob(connection, act)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("state", blob)
	if finalRedirect != "" {
		q.Set("finalRedirect", finalRedirect)
	}
	var res SignInResource
	status, err := c.call(ctx, http.MethodGet, "/api/botsignin/GetSignInResource", q, nil, &res)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("auth: no sign-in resource for connection %q", connection)
	}
	return &res, nil
}

// ExchangeToken implements TokenService.
func (c *Client) ExchangeToken(ctx context.Context, connection, channelID, userID string, req *TokenExchangeRequest) (*TokenResponse, error) {
	q := url.Values{}
	q.Set("connectionName", connection)
	q.Set("channelId", channelID)
	q.Set("userId", userID)
	var token TokenResponse
	status, err := c.call(ctx, http.MethodPost, "/api/usertoken/exchange", q, req, &token)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound || status == http.StatusPreconditionFailed || token.Token == "" {
		return nil, ErrTokenNotFound
	}
	return &token, nil
}

// TokenOrSignInResource implements TokenService in one round trip.
func (c *Client) TokenOrSignInResource(ctx context.Context, connection string, act *activity.Activity, finalRedirect string) (*TokenOrResource, error) {
	blob, err := c.stateBlob(connection, act)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("connectionName", connection)
	q.Set("channelId", act.ChannelID)
	q.Set("userId", act.FromID())
	q.Set("state", blob)
	if finalRedirect != "" {
		q.Set("finalRedirect", finalRedirect)
	}
	var out TokenOrResource
	if _, err := c.call(ctx, http.MethodGet, "/api/usertoken/GetTokenOrSignInResource", q, nil, &out); err != nil {
		return nil, err
	}
	if out.Token != nil && out.Token.Token == "" {
		out.Token = nil
	}
	return &out, nil
}

// stateBlob encodes the sign-in state the service echoes back through the
// OAuth redirect.
func (c *Client) stateBlob(connection string, act *activity.Activity) (string, error) {
	payload := map[string]any{
		"connectionName": connection,
		"conversation":   act.Reference(),
		"relatesTo":      act.Reference(),
		"msAppId":        c.appID,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("auth: encoding sign-in state: %w", err)
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// call performs one request. Expected "not there" statuses are returned to
// the caller; anything else non-2xx is an error.
func (c *Client) call(ctx context.Context, method, path string, q url.Values, body, out any) (int, error) {
	endpoint := c.base + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("auth: encoding request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return 0, fmt.Errorf("auth: building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		header, err := c.auth(ctx)
		if err != nil {
			return 0, fmt.Errorf("auth: credentials: %w", err)
		}
		req.Header.Set("Authorization", header)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("auth: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusPreconditionFailed:
		return resp.StatusCode, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("auth: %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp.StatusCode, fmt.Errorf("auth: decoding response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
