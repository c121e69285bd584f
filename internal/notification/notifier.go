// Package notification delivers pipeline alerts (failed refreshes, stale
// panels) to external channels such as Telegram or a generic webhook.
package notification

import (
	"context"
	"log/slog"

	"macrodash/internal/model"
)

// AlertLevel is the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// EventRefreshFailed is the Event of alerts raised by a failed series fetch.
const EventRefreshFailed = "refresh_failed"

func (l AlertLevel) slogLevel() slog.Level {
	switch l {
	case AlertWarning:
		return slog.LevelWarn
	case AlertCritical:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Alert is one notification. Key groups alerts for throttling,
// e.g. "GH:inflation"; an empty key is never throttled.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Key     string     `json:"key,omitempty"`

	// Set for series alerts.
	Event  string     `json:"event,omitempty"`
	Series *model.Key `json:"series,omitempty"`
	Stale  bool       `json:"stale,omitempty"`
	Err    string     `json:"error,omitempty"`
}

// Notifier delivers alerts to one backend.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to a structured logger.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier logs through slog.Default().
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: slog.Default().With(slog.String("component", "alerts"))}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	n.log.Log(ctx, alert.Level.slogLevel(), alert.Title,
		"message", alert.Message, "key", alert.Key, "event", alert.Event, "stale", alert.Stale)
	return nil
}
