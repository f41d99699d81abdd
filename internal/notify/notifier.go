package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/victornm/quizrank/internal/domain"
	"github.com/victornm/quizrank/internal/event"
)

var broadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "quizrank",
	Subsystem: "notify",
	Name:      "broadcasts_total",
	Help:      "Broadcast attempts by message type and result.",
}, []string{"type", "result"})

// Notifier turns recorded sessions into live notifications.
type Notifier struct {
	broadcaster Broadcaster
}

func NewNotifier(b Broadcaster) *Notifier {
	return &Notifier{broadcaster: b}
}

// Register subscribes the notifier to the events it reacts to.
func (n *Notifier) Register(bus *event.Bus) {
	bus.Subscribe(domain.EventNameSessionRecorded, n.handle)
}

func (n *Notifier) handle(ctx context.Context, e event.Event) error {
	switch e := e.(type) {
	case domain.EventSessionRecorded:
		n.SessionRecorded(ctx, e)
	}
	return nil
}

// SessionRecorded announces the session on the general and quiz topics, then tells both
// that their leaderboards changed. Failures are logged and never returned.
func (n *Notifier) SessionRecorded(ctx context.Context, e domain.EventSessionRecorded) {
	s := e.Session
	quiz := QuizTopic(s.QuizID)
	score := s.Score

	n.publish(ctx, General, Message{
		Type: TypeSessionUploaded,
		Data: SessionUploaded{
			Message:   "New quiz session uploaded",
			SessionID: s.SessionID,
			UserID:    s.UserID,
			QuizID:    s.QuizID,
			Subject:   s.Subject,
			Timestamp: e.RecordedAt,
		},
	})

	n.publish(ctx, quiz, Message{
		Type: TypeSessionUploaded,
		Data: SessionUploaded{
			Message:   fmt.Sprintf("New session for quiz %d", s.QuizID),
			SessionID: s.SessionID,
			UserID:    s.UserID,
			Score:     &score,
			Timestamp: e.RecordedAt,
		},
	})

	n.publish(ctx, General, Message{
		Type: TypeLeaderboardUpdated,
		Data: LeaderboardUpdated{
			Message:         "Leaderboard updated",
			AffectedSubject: s.Subject,
			AffectedQuizID:  s.QuizID,
			Timestamp:       e.RecordedAt,
		},
	})

	n.publish(ctx, quiz, Message{
		Type: TypeQuizLeaderboardUpdated,
		Data: QuizLeaderboardUpdated{
			Message:   "Quiz leaderboard updated",
			QuizID:    s.QuizID,
			Timestamp: e.RecordedAt,
		},
	})
}

func (n *Notifier) publish(ctx context.Context, topic Topic, msg Message) {
	if err := n.broadcaster.Publish(ctx, topic, msg); err != nil {
		broadcasts.WithLabelValues(msg.Type, "error").Inc()
		slog.ErrorContext(ctx, "notify: broadcast failed", "topic", topic, "type", msg.Type, "error", err)
		return
	}

	broadcasts.WithLabelValues(msg.Type, "ok").Inc()
}
