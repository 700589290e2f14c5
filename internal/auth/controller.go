package auth

import (
	"context"
	"log/slog"
	"sync"

	apierrors "rshieldcli/internal/errors"
	"rshieldcli/internal/identity"
)

// Mode selects which submission path Submit takes
type Mode string

const (
	ModeLogin    Mode = "login"
	ModeRegister Mode = "register"
)

// Messages surfaced on successful submissions
const (
	MsgSignedIn       = "signed in"
	MsgAccountCreated = "account created, check your email to verify it"
)

// DashboardPath is the navigation target after a successful login
const DashboardPath = "/dashboard"

// Credentials is the transient email/password draft. It is held only
// until a submission succeeds and never persisted or logged.
type Credentials struct {
	Email    string
	Password string
}

// Outcome makes the submission side effects explicit return values:
// Navigate carries the view to move to (empty for none) and Message
// the user-visible success text. Navigation is independent of the
// provider's asynchronous session emission; callers must not assume
// an ordering between the two.
type Outcome struct {
	Navigate string
	Message  string
}

// Controller manages the auth form state machine:
// {login, register} x {idle, submitting}.
type Controller struct {
	provider identity.Provider
	logger   *slog.Logger

	mu         sync.Mutex
	mode       Mode
	submitting bool
	draft      Credentials
}

// NewController creates an auth form controller in login mode
func NewController(provider identity.Provider, logger *slog.Logger) *Controller {
	return &Controller{
		provider: provider,
		logger:   logger.With(slog.String("component", "auth_controller")),
		mode:     ModeLogin,
	}
}

// Mode returns the current form mode
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode switches the submission path. Toggling has no effect on the
// session or the credentials draft.
func (c *Controller) SetMode(mode Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if mode == ModeLogin || mode == ModeRegister {
		c.mode = mode
	}
}

// SetCredentials replaces the credentials draft
func (c *Controller) SetCredentials(email, password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = Credentials{Email: email, Password: password}
}

// Credentials returns the current draft
func (c *Controller) Credentials() Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Submitting reports whether a submission is in flight
func (c *Controller) Submitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitting
}

// Submit runs the credential operation selected by the current mode.
// On failure the provider's message is surfaced verbatim, the draft is
// preserved for correction and the mode is unchanged.
func (c *Controller) Submit(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return Outcome{}, apierrors.New(409, apierrors.CodeValidationFailed, "a submission is already in progress")
	}
	c.submitting = true
	mode := c.mode
	draft := c.draft
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.submitting = false
		c.mu.Unlock()
	}()

	switch mode {
	case ModeRegister:
		return c.submitRegister(ctx, draft)
	default:
		return c.submitLogin(ctx, draft)
	}
}

func (c *Controller) submitLogin(ctx context.Context, draft Credentials) (Outcome, error) {
	_, err := c.provider.SignIn(ctx, draft.Email, draft.Password)
	if err != nil {
		return Outcome{}, surfaced(err)
	}

	c.clearDraft()
	c.logger.InfoContext(ctx, "login submission succeeded")
	return Outcome{Navigate: DashboardPath, Message: MsgSignedIn}, nil
}

func (c *Controller) submitRegister(ctx context.Context, draft Credentials) (Outcome, error) {
	session, err := c.provider.Register(ctx, draft.Email, draft.Password)
	if err != nil {
		return Outcome{}, surfaced(err)
	}

	// Best-effort by contract: a failed verification-email send must
	// not fail the registration or surface an error.
	if err := c.provider.SendVerificationEmail(ctx, session); err != nil {
		c.logger.DebugContext(ctx, "verification email send failed",
			slog.String("error", err.Error()))
	}

	c.clearDraft()
	c.logger.InfoContext(ctx, "registration submission succeeded")
	return Outcome{Message: MsgAccountCreated}, nil
}

func (c *Controller) clearDraft() {
	c.mu.Lock()
	c.draft = Credentials{}
	c.mu.Unlock()
}

// surfaced normalizes a provider failure into a user-visible error,
// passing structured messages through verbatim.
func surfaced(err error) error {
	if apiErr, ok := err.(*apierrors.APIError); ok {
		return apiErr
	}
	message := err.Error()
	if message == "" {
		message = "authentication failed"
	}
	return apierrors.ProviderError(message)
}
