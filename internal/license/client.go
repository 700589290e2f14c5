package license

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"rshieldcli/internal/backend"
	apierrors "rshieldcli/internal/errors"
	"rshieldcli/internal/identity"
)

// ActivateFallbackMessage is surfaced when the backend gives no
// usable error message.
const ActivateFallbackMessage = "activation failed"

const activatePath = "/api/license/activate"

// SessionSource provides read access to the current session
type SessionSource interface {
	Current() *identity.Session
}

// Client activates license keys against the backend
type Client struct {
	backend  *backend.Client
	sessions SessionSource
	logger   *slog.Logger
	metrics  *Metrics
}

// NewClient creates a license activation client
func NewClient(backendClient *backend.Client, sessions SessionSource, logger *slog.Logger, meter metric.Meter) (*Client, error) {
	metrics, err := newMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create license metrics: %w", err)
	}
	return &Client{
		backend:  backendClient,
		sessions: sessions,
		logger:   logger.With(slog.String("component", "license_client")),
		metrics:  metrics,
	}, nil
}

// activationRequest is the activation endpoint's payload
type activationRequest struct {
	Key string `json:"key"`
}

// Activate redeems a license key. Without a session it fails locally
// with Unauthenticated and performs no network call. Otherwise a fresh
// bearer token is minted and the trimmed key sent to the backend.
// Failures are terminal per attempt; there are no automatic retries.
func (c *Client) Activate(ctx context.Context, key string) error {
	start := time.Now()
	c.metrics.ActivationAttempts.Add(ctx, 1)

	session := c.sessions.Current()
	if session == nil {
		c.metrics.ActivationFailures.Add(ctx, 1,
			metric.WithAttributes(attribute.String("reason", "unauthenticated")))
		return apierrors.ErrUnauthenticated
	}

	trimmed := strings.TrimSpace(key)
	c.logger.InfoContext(ctx, "activating license key",
		slog.String("key_hash", keyHashPrefix(trimmed)),
		slog.String("uid", session.UID))

	token, err := session.Token(ctx)
	if err != nil {
		c.recordFailure(ctx, start, "token_mint")
		return surfacedTokenError(err)
	}

	_, err = c.backend.PostAuthed(ctx, activatePath, token, activationRequest{Key: trimmed}, ActivateFallbackMessage)
	if err != nil {
		c.recordFailure(ctx, start, "backend")
		return err
	}

	c.metrics.ActivationSuccess.Add(ctx, 1)
	c.metrics.ActivationDuration.Record(ctx, time.Since(start).Seconds())
	c.logger.InfoContext(ctx, "license activated",
		slog.String("key_hash", keyHashPrefix(trimmed)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (c *Client) recordFailure(ctx context.Context, start time.Time, reason string) {
	c.metrics.ActivationFailures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)))
	c.metrics.ActivationDuration.Record(ctx, time.Since(start).Seconds())
}

// surfacedTokenError maps a token minting failure into the activation
// error taxonomy while keeping structured errors intact.
func surfacedTokenError(err error) error {
	if apiErr, ok := err.(*apierrors.APIError); ok {
		return apiErr
	}
	return apierrors.TransportError(err, ActivateFallbackMessage)
}

// keyHashPrefix returns a short SHA-256 prefix of the key so logs can
// correlate attempts without recording the key itself.
func keyHashPrefix(key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", sum)[:12]
}
