// Package backend implements the HTTP contract with the RShield
// backend API: bearer-authenticated JSON requests with best-effort
// error extraction from failure bodies.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"rshieldcli/internal/config"
	apierrors "rshieldcli/internal/errors"
)

// Client issues authenticated requests to the backend API
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a backend API client
func NewClient(cfg config.BackendConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		logger:     logger.With(slog.String("component", "backend_client")),
	}
}

// PostAuthed issues a bearer-authenticated POST. body may be nil for
// endpoints that take no payload. On a non-success status the error
// message is extracted best-effort from a JSON {"error": ...} body,
// falling back to the caller's per-endpoint fallback string. The
// response body is returned on success.
func (c *Client) PostAuthed(ctx context.Context, path, token string, body interface{}, fallback string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "backend request failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil, apierrors.TransportError(err, fallback)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierrors.TransportError(err, fallback)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := extractErrorMessage(payload)
		if message == "" {
			message = fallback
		}
		c.logger.WarnContext(ctx, "backend reported failure",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode))
		return nil, apierrors.BackendError(resp.StatusCode, message)
	}

	return payload, nil
}

// extractErrorMessage best-effort parses {"error": "..."} from a
// failure body. Unparseable bodies yield the empty string.
func extractErrorMessage(payload []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return body.Error
}
