package domain

import "time"

const (
	EventNameSessionRecorded = "session.recorded"
)

// EventSessionRecorded is published after a session is durably written and the
// affected leaderboard caches are invalidated.
type EventSessionRecorded struct {
	Session    Session
	RecordedAt time.Time
}

func (EventSessionRecorded) Name() string { return EventNameSessionRecorded }
