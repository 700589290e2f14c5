// Package link implements the start phase of the Roblox account
// linking handshake. The backend issues a one-time linking code that
// the operator redeems out-of-band in the game client; completion is
// entirely backend-owned and never polled from here.
package link

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"rshieldcli/internal/backend"
	apierrors "rshieldcli/internal/errors"
	"rshieldcli/internal/identity"
)

// StartFallbackMessage is surfaced when the backend gives no usable
// error message.
const StartFallbackMessage = "could not generate code"

const startPath = "/api/roblox/link/start"

// SessionSource provides read access to the current session
type SessionSource interface {
	Current() *identity.Session
}

// Client starts linking handshakes against the backend
type Client struct {
	backend  *backend.Client
	sessions SessionSource
	logger   *slog.Logger
	metrics  *Metrics
}

// NewClient creates a link initiator client
func NewClient(backendClient *backend.Client, sessions SessionSource, logger *slog.Logger, meter metric.Meter) (*Client, error) {
	metrics, err := newMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create link metrics: %w", err)
	}
	return &Client{
		backend:  backendClient,
		sessions: sessions,
		logger:   logger.With(slog.String("component", "link_client")),
		metrics:  metrics,
	}, nil
}

// startResponse is the link-start endpoint's success body
type startResponse struct {
	Code string `json:"code"`
}

// Start begins a linking handshake and returns the backend-issued
// linking code. Without a session it fails locally with
// Unauthenticated and performs no network call. The code is a one-time
// display value; its validity window is owned by the backend and this
// client never caches or reuses it.
func (c *Client) Start(ctx context.Context) (string, error) {
	start := time.Now()
	c.metrics.StartAttempts.Add(ctx, 1)

	session := c.sessions.Current()
	if session == nil {
		c.metrics.StartFailures.Add(ctx, 1,
			metric.WithAttributes(attribute.String("reason", "unauthenticated")))
		return "", apierrors.ErrUnauthenticated
	}

	c.logger.InfoContext(ctx, "starting roblox link handshake",
		slog.String("uid", session.UID))

	token, err := session.Token(ctx)
	if err != nil {
		c.recordFailure(ctx, start, "token_mint")
		if apiErr, ok := err.(*apierrors.APIError); ok {
			return "", apiErr
		}
		return "", apierrors.TransportError(err, StartFallbackMessage)
	}

	payload, err := c.backend.PostAuthed(ctx, startPath, token, nil, StartFallbackMessage)
	if err != nil {
		c.recordFailure(ctx, start, "backend")
		return "", err
	}

	var resp startResponse
	if err := json.Unmarshal(payload, &resp); err != nil || resp.Code == "" {
		c.recordFailure(ctx, start, "bad_response")
		return "", apierrors.BackendError(502, StartFallbackMessage)
	}

	c.metrics.StartSuccess.Add(ctx, 1)
	c.metrics.StartDuration.Record(ctx, time.Since(start).Seconds())
	c.logger.InfoContext(ctx, "linking code issued",
		slog.Duration("duration", time.Since(start)))
	return resp.Code, nil
}

func (c *Client) recordFailure(ctx context.Context, start time.Time, reason string) {
	c.metrics.StartFailures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)))
	c.metrics.StartDuration.Record(ctx, time.Since(start).Seconds())
}
