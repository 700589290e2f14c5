package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"rshieldcli/internal/config"
	apierrors "rshieldcli/internal/errors"
)

// Client is the HTTP implementation of Provider against the RShield
// identity service. It is also the single writer of the session-change
// stream: sign-in, register, sign-out and provider-reported token
// invalidation each produce one ordered emission.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu          sync.Mutex
	current     *Session
	subscribers map[int]func(*Session)
	nextSubID   int

	// emitMu serializes emissions. It is held across the state update
	// and the callback invocations so concurrent writers cannot
	// deliver emissions out of order, and so unsubscribe does not
	// return while a delivery to the callback is in flight. Lock order
	// is emitMu before mu; callbacks must not call back into the
	// client.
	emitMu sync.Mutex
}

// NewClient creates an identity provider client
func NewClient(cfg config.IdentityConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL:     cfg.BaseURL,
		httpClient:  &http.Client{Timeout: cfg.RequestTimeout},
		logger:      logger.With(slog.String("component", "identity_client")),
		subscribers: make(map[int]func(*Session)),
	}
}

// credentialsRequest is the wire form of a credential operation
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// sessionResponse is the wire form of a provider-issued session
type sessionResponse struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	RefreshToken string `json:"refresh_token"`
}

// tokenRequest asks the provider to mint a bearer token
type tokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// tokenResponse carries a freshly minted bearer token
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// OnSessionChange implements Provider. The callback fires synchronously
// with the current state on subscribe, then once per later change, in
// order. Emissions are serialized under emitMu, so the initial emission
// cannot interleave with a concurrent state change.
func (c *Client) OnSessionChange(cb func(*Session)) UnsubscribeFunc {
	c.emitMu.Lock()
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = cb
	current := c.current
	c.mu.Unlock()

	cb(current)
	c.emitMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			// Taking emitMu first makes unsubscribe wait out any
			// in-flight delivery before detaching.
			c.emitMu.Lock()
			c.mu.Lock()
			delete(c.subscribers, id)
			c.mu.Unlock()
			c.emitMu.Unlock()
		})
	}
}

// setSession replaces the current session and notifies subscribers.
// Single writer: all mutations funnel through here, and emitMu keeps
// the callback order identical to the state-change order.
func (c *Client) setSession(s *Session) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	c.current = s
	subs := make([]func(*Session), 0, len(c.subscribers))
	for _, cb := range c.subscribers {
		subs = append(subs, cb)
	}
	c.mu.Unlock()

	for _, cb := range subs {
		cb(s)
	}
}

// SignIn implements Provider
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	resp, err := c.postCredentials(ctx, "/v1/accounts:signIn", email, password)
	if err != nil {
		return nil, err
	}

	session := c.newSession(resp)
	c.logger.InfoContext(ctx, "sign-in succeeded", slog.String("uid", resp.UID))
	c.setSession(session)
	return session, nil
}

// Register implements Provider
func (c *Client) Register(ctx context.Context, email, password string) (*Session, error) {
	resp, err := c.postCredentials(ctx, "/v1/accounts:register", email, password)
	if err != nil {
		return nil, err
	}

	session := c.newSession(resp)
	c.logger.InfoContext(ctx, "registration succeeded", slog.String("uid", resp.UID))
	c.setSession(session)
	return session, nil
}

// SendVerificationEmail implements Provider
func (c *Client) SendVerificationEmail(ctx context.Context, s *Session) error {
	body := tokenRequest{RefreshToken: s.refreshToken()}
	_, err := c.post(ctx, "/v1/accounts:sendVerification", body, "could not send verification email")
	return err
}

// SignOut implements Provider
func (c *Client) SignOut(ctx context.Context, s *Session) error {
	body := tokenRequest{RefreshToken: s.refreshToken()}
	_, err := c.post(ctx, "/v1/accounts:signOut", body, "sign-out failed")
	if err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "sign-out succeeded", slog.String("uid", s.UID))
	c.setSession(nil)
	return nil
}

// newSession builds a Session whose Token method mints a fresh bearer
// token from the provider on every call.
func (c *Client) newSession(resp *sessionResponse) *Session {
	session := NewSession(resp.UID, resp.Email, nil)
	session.refresh = resp.RefreshToken
	session.mint = func(ctx context.Context) (string, error) {
		return c.mintToken(ctx, session, session.refresh)
	}
	return session
}

// refreshToken exposes the provider-issued refresh token for the
// provider's own endpoints. Sessions not produced by this client mint
// through their own func and have no refresh token here.
func (s *Session) refreshToken() string {
	return s.refresh
}

// mintToken exchanges the refresh token for a short-lived bearer token.
// A 401 means the provider invalidated the session; the client then
// emits a nil session on the change stream.
func (c *Client) mintToken(ctx context.Context, session *Session, refresh string) (string, error) {
	payload, err := c.post(ctx, "/v1/token", tokenRequest{RefreshToken: refresh}, "could not mint token")
	if err != nil {
		if apiErr, ok := err.(*apierrors.APIError); ok && apiErr.StatusCode == http.StatusUnauthorized {
			c.logger.WarnContext(ctx, "session invalidated by provider", slog.String("uid", session.UID))
			c.setSession(nil)
		}
		return "", err
	}

	var tok tokenResponse
	if err := json.Unmarshal(payload, &tok); err != nil {
		return "", apierrors.TransportError(err, "could not mint token")
	}
	if tok.AccessToken == "" {
		return "", apierrors.ProviderError("provider returned an empty token")
	}
	return tok.AccessToken, nil
}

// postCredentials runs a credential operation and decodes the session
func (c *Client) postCredentials(ctx context.Context, path, email, password string) (*sessionResponse, error) {
	payload, err := c.post(ctx, path, credentialsRequest{Email: email, Password: password}, "authentication failed")
	if err != nil {
		return nil, err
	}

	var resp sessionResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, apierrors.ProviderError("provider returned an unreadable response")
	}
	if resp.UID == "" {
		return nil, apierrors.ProviderError("provider returned an incomplete session")
	}
	return &resp, nil
}

// post issues a JSON POST to the provider and returns the response
// body on success. Provider errors carry the provider's message
// verbatim; transport failures map to the given fallback.
func (c *Client) post(ctx context.Context, path string, body interface{}, fallback string) ([]byte, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
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
		apiErr := apierrors.ProviderError(message)
		apiErr.StatusCode = resp.StatusCode
		return nil, apiErr
	}

	return payload, nil
}

// extractErrorMessage best-effort parses {"error": "..."} from a
// provider error body. Unparseable bodies yield the empty string.
func extractErrorMessage(payload []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return body.Error
}
