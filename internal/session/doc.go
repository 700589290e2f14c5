// Package session tracks the current identity session for the panel.
//
// A Store subscribes to the identity provider's session-change stream and
// holds the latest emission. All writes flow through a single goroutine so
// readers always observe the most recent value without tearing. Watchers
// receive every change through buffered channels; a slow watcher drops
// intermediate values rather than blocking the writer.
//
// Core components:
//
// Store: Subscribes on Start, exposes the current session via Current and
// Authenticated, and fans out changes to Watch channels. Close detaches
// from the provider and is safe to call more than once.
package session
