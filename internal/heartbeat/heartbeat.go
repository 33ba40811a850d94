// Package heartbeat reports the node hardware inventory to the fleet API and receives the next access token.
package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/exalsius/node-agent/internal/fileutils"
	"github.com/exalsius/node-agent/internal/hardware"
	"github.com/google/uuid"
)

// RequestIDHeader carries a unique identifier for every heartbeat.
const RequestIDHeader = "X-Request-ID"

var (
	// ErrTransport is returned when the fleet API cannot be reached.
	ErrTransport = errors.New("could not reach the fleet API")
	// ErrDecode is returned when the fleet API accepts the heartbeat without a usable next access token.
	ErrDecode = errors.New("invalid heartbeat response")
)

// RejectedError is returned when the fleet API answers with a non 2xx status.
type RejectedError struct {
	Status int
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("fleet API rejected the heartbeat with status %d", e.Status)
}

// Response is the fleet API answer to an accepted heartbeat.
type Response struct {
	NodeID                   string `json:"node_id"`
	NextAccessToken          string `json:"next_access_token"`
	NextAccessTokenExpiresIn uint64 `json:"next_access_token_expires_in"`
	NextAccessTokenType      string `json:"next_access_token_type"`
}

// Client sends heartbeats.
type Client struct {
	log       *slog.Logger
	client    *http.Client
	requestID func() string
}

type options struct {
	log       *slog.Logger
	client    *http.Client
	requestID func() string
}

// Options represents an optional function to override Client default values.
type Options func(*options)

// New returns a new Client.
func New(args ...Options) Client {
	opts := options{
		log:       slog.Default(),
		client:    http.DefaultClient,
		requestID: uuid.NewString,
	}
	for _, opt := range args {
		opt(&opts)
	}

	return Client{
		log:       opts.log,
		client:    opts.client,
		requestID: opts.requestID,
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

// Send patches the node nodeID on the fleet API at apiURL with inv, authenticated by accessToken.
// It makes a single attempt and returns the rotated access token on success.
func (c Client) Send(ctx context.Context, nodeID, apiURL, accessToken string, inv hardware.Inventory) (Response, error) {
	endpoint, err := nodeURL(apiURL, nodeID)
	if err != nil {
		return Response{}, err
	}

	body, err := json.Marshal(inv)
	if err != nil {
		return Response{}, fmt.Errorf("could not encode inventory: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %v", err)
	}
	id := c.requestID()
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, id)

	c.log.Info("Sending heartbeat", "url", endpoint, "request_id", id)
	resp, err := c.client.Do(req)
	if err != nil {
		return Response{}, errors.Join(ErrTransport, fmt.Errorf("failed to send heartbeat: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("Heartbeat went through but the fleet API rejected it", "status", resp.StatusCode, "request_id", id)
		return Response{}, &RejectedError{Status: resp.StatusCode}
	}

	var r Response
	if err := fileutils.ParseJSON(resp.Body, &r); err != nil {
		return Response{}, errors.Join(ErrDecode, err)
	}
	if r.NextAccessToken == "" {
		return Response{}, errors.Join(ErrDecode, errors.New("response has no next access token"))
	}

	c.log.Info("Successfully sent heartbeat and patched node hardware", "node_id", nodeID, "expires_in", r.NextAccessTokenExpiresIn)
	return r, nil
}
