// Package analytics records issue lifecycle events for offline reporting.
package analytics

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Event types written to the issue_events table.
const (
	EventIssueReported = "issue_reported"
	EventMediaUploaded = "media_uploaded"
	EventStatusChanged = "status_changed"
	EventVideoRejected = "video_rejected"
)

// ErrUnavailable is returned when no analytics backend is configured.
var ErrUnavailable = errors.New("analytics unavailable")

// Event is one row of the issue_events table.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"event_type"`
	IssueID   int64     `json:"issue_id"`
	UserID    int64     `json:"user_id"`
	Category  string    `json:"category"`
	Status    string    `json:"status"`
	Previous  string    `json:"previous_status"`
	Severity  string    `json:"severity"`
	MediaKind string    `json:"media_kind"`
	// Seconds is the probed video duration, zero when not applicable.
	Seconds float64       `json:"seconds"`
	Client  ClientContext `json:"client"`
}

// Recorder persists events.
type Recorder interface {
	RecordEvent(ctx context.Context, ev Event) error
}

// Noop discards events.
type Noop struct{}

func (Noop) RecordEvent(context.Context, Event) error { return nil }

// MemoryRecorder keeps events in process. It backs tests and the in-memory
// development mode.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemoryRecorder) RecordEvent(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of everything recorded so far.
func (m *MemoryRecorder) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// EventsForIssue returns the recorded events for issueID in insertion order.
func (m *MemoryRecorder) EventsForIssue(_ context.Context, issueID int64) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, ev := range m.events {
		if ev.IssueID == issueID {
			out = append(out, ev)
		}
	}
	return out, nil
}
