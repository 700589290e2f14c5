// Package panel composes the session store, auth controller and the
// license/link clients into the operator-facing control surface. It
// owns the transient license key draft and turns operation outcomes
// into user-visible notifications, gating privileged affordances on
// session presence.
package panel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"rshieldcli/internal/auth"
	apierrors "rshieldcli/internal/errors"
	"rshieldcli/internal/identity"
	"rshieldcli/internal/notify"
)

// Messages surfaced for license and link outcomes
const (
	MsgLicenseActivated = "license activated"
	MsgSignedOut        = "signed out"
)

// Activator redeems license keys
type Activator interface {
	Activate(ctx context.Context, key string) error
}

// LinkStarter begins the platform linking handshake
type LinkStarter interface {
	Start(ctx context.Context) (string, error)
}

// SessionReader provides read access to the tracked session
type SessionReader interface {
	Current() *identity.Session
}

// Status describes what the view may show right now
type Status struct {
	Authenticated bool      `json:"authenticated"`
	Email         string    `json:"email,omitempty"`
	Mode          auth.Mode `json:"mode"`
	Submitting    bool      `json:"submitting"`
	// Dashboard and Logout are shown only with a live session.
	Dashboard bool `json:"dashboard"`
	Logout    bool `json:"logout"`
}

// Panel is the session-aware view model
type Panel struct {
	sessions SessionReader
	auth     *auth.Controller
	license  Activator
	link     LinkStarter
	provider identity.Provider
	notifier notify.Notifier
	logger   *slog.Logger

	mu       sync.Mutex
	keyDraft string
}

// New creates a panel over the given collaborators
func New(sessions SessionReader, authController *auth.Controller, license Activator, link LinkStarter, provider identity.Provider, notifier notify.Notifier, logger *slog.Logger) *Panel {
	return &Panel{
		sessions: sessions,
		auth:     authController,
		license:  license,
		link:     link,
		provider: provider,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "panel")),
	}
}

// Status reports the current session-gated view state
func (p *Panel) Status() Status {
	current := p.sessions.Current()
	status := Status{
		Mode:       p.auth.Mode(),
		Submitting: p.auth.Submitting(),
	}
	if current != nil {
		status.Authenticated = true
		status.Email = current.Email
		status.Dashboard = true
		status.Logout = true
	}
	return status
}

// SetMode switches the auth form mode
func (p *Panel) SetMode(mode auth.Mode) {
	p.auth.SetMode(mode)
}

// SubmitAuth submits the credentials draft through the auth controller
// and surfaces the outcome as a notification. The returned Outcome
// carries the explicit navigation effect.
func (p *Panel) SubmitAuth(ctx context.Context, email, password string) (auth.Outcome, error) {
	p.auth.SetCredentials(email, password)
	outcome, err := p.auth.Submit(ctx)
	if err != nil {
		p.notifier.Error(ctx, err.Error())
		return auth.Outcome{}, err
	}
	p.notifier.Success(ctx, outcome.Message)
	return outcome, nil
}

// SetKeyDraft replaces the license key draft
func (p *Panel) SetKeyDraft(key string) {
	p.mu.Lock()
	p.keyDraft = key
	p.mu.Unlock()
}

// KeyDraft returns the current license key draft
func (p *Panel) KeyDraft() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keyDraft
}

// ActivateKey redeems the drafted license key. The draft is cleared
// only on confirmed success and preserved byte-for-byte on any
// failure so the operator can retry.
func (p *Panel) ActivateKey(ctx context.Context) error {
	p.mu.Lock()
	key := p.keyDraft
	p.mu.Unlock()

	if err := p.license.Activate(ctx, key); err != nil {
		p.notifier.Error(ctx, err.Error())
		return err
	}

	p.mu.Lock()
	p.keyDraft = ""
	p.mu.Unlock()

	p.notifier.Success(ctx, MsgLicenseActivated)
	return nil
}

// StartLink begins the linking handshake and surfaces the one-time
// code. The code is display-only; the panel never stores it.
func (p *Panel) StartLink(ctx context.Context) (string, error) {
	code, err := p.link.Start(ctx)
	if err != nil {
		p.notifier.Error(ctx, err.Error())
		return "", err
	}

	p.notifier.Success(ctx, fmt.Sprintf("linking code: %s", code))
	return code, nil
}

// SignOut invalidates the current session with the provider. The
// session store observes the resulting nil emission.
func (p *Panel) SignOut(ctx context.Context) error {
	current := p.sessions.Current()
	if current == nil {
		return apierrors.ErrUnauthenticated
	}

	if err := p.provider.SignOut(ctx, current); err != nil {
		p.notifier.Error(ctx, err.Error())
		return err
	}

	p.notifier.Success(ctx, MsgSignedOut)
	return nil
}
