// Package notify carries user-visible notifications. Panel operations
// report their outcome here; sinks fan the messages out to the view
// (WebSocket broadcast in production, a recorder in tests).
package notify

import (
	"context"
	"log/slog"
	"sync"

	"rshieldcli/internal/infrastructure"
)

// Notification levels
const (
	LevelSuccess = "success"
	LevelError   = "error"
	LevelInfo    = "info"
)

// Notification is a single user-visible message
type Notification struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Notifier receives user-visible operation outcomes
type Notifier interface {
	Success(ctx context.Context, message string)
	Error(ctx context.Context, message string)
}

// LogNotifier writes notifications to the structured log and forwards
// them to an optional sink such as the WebSocket hub.
type LogNotifier struct {
	sink func(Notification)
}

// NewLogNotifier creates a notifier backed by the global structured
// log. sink may be nil.
func NewLogNotifier(sink func(Notification)) *LogNotifier {
	return &LogNotifier{sink: sink}
}

func (n *LogNotifier) Success(ctx context.Context, message string) {
	n.emit(ctx, Notification{Level: LevelSuccess, Message: message})
}

func (n *LogNotifier) Error(ctx context.Context, message string) {
	n.emit(ctx, Notification{Level: LevelError, Message: message})
}

func (n *LogNotifier) emit(ctx context.Context, notification Notification) {
	infrastructure.LoggerWithContext(ctx).InfoContext(ctx, "notification",
		slog.String("component", "notifier"),
		slog.String("level", notification.Level),
		slog.String("message", notification.Message))

	if n.sink != nil {
		n.sink(notification)
	}
}

// Recorder captures notifications for assertions in tests
type Recorder struct {
	mu            sync.Mutex
	notifications []Notification
}

// NewRecorder creates an empty notification recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Success(_ context.Context, message string) {
	r.record(Notification{Level: LevelSuccess, Message: message})
}

func (r *Recorder) Error(_ context.Context, message string) {
	r.record(Notification{Level: LevelError, Message: message})
}

func (r *Recorder) record(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

// All returns a copy of everything recorded so far
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.notifications))
	copy(out, r.notifications)
	return out
}

// Last returns the most recent notification, or a zero value
func (r *Recorder) Last() Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notifications) == 0 {
		return Notification{}
	}
	return r.notifications[len(r.notifications)-1]
}
