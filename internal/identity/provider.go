// Package identity defines the client-side boundary to the external
// identity provider: credential operations, the session-change stream,
// and bearer token minting. Credential storage, password hashing and
// verification email delivery are owned by the provider itself.
package identity

import "context"

// Session represents an authenticated identity as seen by this client.
// The zero value is not useful; sessions are produced by a Provider.
type Session struct {
	UID   string
	Email string

	mint TokenMintFunc
	// refresh is the provider-issued refresh token, set only for
	// sessions produced by the HTTP client.
	refresh string
}

// TokenMintFunc mints a short-lived bearer token for a session.
type TokenMintFunc func(ctx context.Context) (string, error)

// NewSession builds a session backed by the given token minter.
func NewSession(uid, email string, mint TokenMintFunc) *Session {
	return &Session{UID: uid, Email: email, mint: mint}
}

// Token mints a fresh bearer token for this session. Tokens are
// short-lived and must never be cached across calls; every privileged
// request mints its own.
func (s *Session) Token(ctx context.Context) (string, error) {
	return s.mint(ctx)
}

// UnsubscribeFunc detaches a session-change subscription. Safe to call
// more than once; only the first call has effect.
type UnsubscribeFunc func()

// Provider is the identity provider contract used by the panel.
// Implementations must emit session changes in order: a later callback
// invocation always reflects a state at least as new as earlier ones.
type Provider interface {
	// OnSessionChange registers cb for session-change events and
	// immediately emits the current state (which may be nil). The
	// returned function unsubscribes; after it returns, cb is never
	// invoked again.
	OnSessionChange(cb func(*Session)) UnsubscribeFunc

	// SignIn authenticates with email/password credentials. The
	// resulting session is also emitted asynchronously on the
	// session-change stream; callers must not assume which happens
	// first.
	SignIn(ctx context.Context, email, password string) (*Session, error)

	// Register creates a new account with email/password credentials.
	Register(ctx context.Context, email, password string) (*Session, error)

	// SendVerificationEmail asks the provider to send a verification
	// email for the session's account. Callers treat this as
	// best-effort; its error is discarded by contract.
	SendVerificationEmail(ctx context.Context, s *Session) error

	// SignOut invalidates the session with the provider. A nil-session
	// emission follows on the session-change stream.
	SignOut(ctx context.Context, s *Session) error
}
