// Package license activates license keys against the RShield backend.
//
// The Client requires an authenticated session before any network call is
// made: without one, Activate returns an unauthenticated error immediately.
// A fresh bearer token is minted from the session on every activation so a
// revoked session is rejected by the backend rather than a stale cached
// token slipping through. Keys are trimmed before submission and only a
// short hash prefix of the key ever reaches the logs.
package license
