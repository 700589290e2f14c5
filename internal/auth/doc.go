// Package auth implements the login and registration flow for the panel.
//
// The Controller holds the current form mode and an email draft. A failed
// submission surfaces the provider's error message verbatim and preserves
// the draft so the user can correct and resubmit. Registration triggers a
// best-effort verification email; a failure there never blocks account
// creation. Only one submission runs at a time.
package auth
