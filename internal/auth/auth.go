// Package auth exchanges a refresh token for an access token at the Auth0 token endpoint.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/exalsius/node-agent/internal/fileutils"
)

// Scope is requested on every refresh.
const Scope = "openid offline_access nodeagent"

// maxErrorBody bounds how much of a rejection body is kept.
const maxErrorBody = 4 << 10

var (
	// ErrTransport is returned when the token endpoint cannot be reached.
	ErrTransport = errors.New("could not reach the token endpoint")
	// ErrDecode is returned when the token endpoint answers with an unusable body.
	ErrDecode = errors.New("invalid token endpoint response")
)

// ServerRejectedError is returned when the token endpoint answers with a non 2xx status.
type ServerRejectedError struct {
	Status int
	Body   string
}

func (e *ServerRejectedError) Error() string {
	return fmt.Sprintf("token endpoint rejected the refresh with status %d: %s", e.Status, e.Body)
}

type refreshRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// TokenResponse is the token endpoint answer to a refresh.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	Scope       string `json:"scope"`
	TokenType   string `json:"token_type"`
	ExpiresIn   uint64 `json:"expires_in"`
}

// Client requests access tokens.
type Client struct {
	log    *slog.Logger
	client *http.Client
	scheme string
}

type options struct {
	log    *slog.Logger
	client *http.Client
	scheme string
}

// Options represents an optional function to override Client default values.
type Options func(*options)

// New returns a new Client.
func New(args ...Options) Client {
	opts := options{
		log:    slog.Default(),
		client: http.DefaultClient,
		scheme: "https",
	}
	for _, opt := range args {
		opt(&opts)
	}

	return Client{
		log:    opts.log,
		client: opts.client,
		scheme: opts.scheme,
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger slog.Handler) Options {
	return func(o *options) {
		o.log = slog.New(logger)
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Options {
	return func(o *options) {
		o.client = c
	}
}

// RefreshAccessToken exchanges refreshToken for a new access token with the Auth0 client
// clientID of the tenant at clientDomain. It makes a single attempt.
func (c Client) RefreshAccessToken(ctx context.Context, refreshToken, clientID, clientDomain string) (string, error) {
	c.log.Info("Requesting fresh access token", "domain", clientDomain)

	body, err := json.Marshal(refreshRequest{
		GrantType:    "refresh_token",
		ClientID:     clientID,
		RefreshToken: refreshToken,
		Scope:        Scope,
	})
	if err != nil {
		return "", fmt.Errorf("could not encode refresh request: %v", err)
	}

	u := url.URL{Scheme: c.scheme, Host: clientDomain, Path: "/oauth/token"}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.Join(ErrTransport, fmt.Errorf("failed to send refresh request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if err != nil {
			b = []byte("unable to read body")
		}
		c.log.Warn("Token endpoint rejected the refresh", "status", resp.StatusCode)
		return "", &ServerRejectedError{Status: resp.StatusCode, Body: string(b)}
	}

	var tr TokenResponse
	if err := fileutils.ParseJSON(resp.Body, &tr); err != nil {
		return "", errors.Join(ErrDecode, err)
	}
	if tr.AccessToken == "" {
		return "", errors.Join(ErrDecode, errors.New("response has no access token"))
	}

	c.log.Info("Received fresh access token", "expires_in", tr.ExpiresIn)
	return tr.AccessToken, nil
}
