package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/victornm/quizrank/internal/domain"
	"github.com/victornm/quizrank/internal/errors"
	"github.com/victornm/quizrank/internal/event"
)

// Records is the part of the record store the write path needs.
type Records interface {
	GetQuiz(ctx context.Context, quizID int64) (*domain.Quiz, error)
	FindSession(ctx context.Context, quizID, userID int64) (*domain.Session, error)
	InsertSession(ctx context.Context, s *domain.Session) error
}

type Invalidator interface {
	OnSessionRecorded(ctx context.Context, subject domain.Subject, quizID, userID int64)
}

type Publisher interface {
	Publish(ctx context.Context, e event.Event)
}

type Config struct {
	Records     Records
	Invalidator Invalidator
	EventBus    Publisher
	// Now defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	records     Records
	invalidator Invalidator
	eb          Publisher
	now         func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		records:     c.Records,
		invalidator: c.Invalidator,
		eb:          c.EventBus,
		now:         c.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// RecordSessionRequest is one finished attempt of a quiz.
type RecordSessionRequest struct {
	UserID    int64
	QuizID    int64
	Score     int
	StartedAt time.Time
	EndedAt   time.Time
}

// RecordSession stores the attempt, drops the leaderboard views it makes stale and
// announces it on the event bus. A rejected request writes nothing.
func (s *Service) RecordSession(ctx context.Context, req RecordSessionRequest) (*domain.Session, error) {
	q, err := s.records.GetQuiz(ctx, req.QuizID)
	if err != nil {
		return nil, err
	}

	if err := s.validate(ctx, q, req); err != nil {
		return nil, err
	}

	ss := &domain.Session{
		UserID:    req.UserID,
		QuizID:    req.QuizID,
		Score:     req.Score,
		Duration:  domain.SessionDuration(req.StartedAt, req.EndedAt),
		StartedAt: req.StartedAt,
		EndedAt:   req.EndedAt,
	}

	if err := s.records.InsertSession(ctx, ss); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "session: recorded",
		"session_id", ss.SessionID,
		"quiz_id", ss.QuizID,
		"user_id", ss.UserID,
		"score", ss.Score,
		"duration", ss.Duration,
	)

	s.invalidator.OnSessionRecorded(ctx, ss.Subject, ss.QuizID, ss.UserID)

	s.eb.Publish(ctx, domain.EventSessionRecorded{
		Session:    *ss,
		RecordedAt: s.now(),
	})

	return ss, nil
}

func (s *Service) validate(ctx context.Context, q *domain.Quiz, req RecordSessionRequest) error {
	now := s.now()
	switch {
	case now.Before(q.StartTime):
		return errors.InvalidArgument("Quiz has not started yet")
	case now.After(q.EndTime):
		return errors.InvalidArgument("Quiz has already ended")
	}

	if req.Score < 0 {
		return errors.InvalidArgument("Score cannot be negative")
	}

	if !req.StartedAt.Before(req.EndedAt) {
		return errors.InvalidArgument("End time must be after start time")
	}

	switch _, err := s.records.FindSession(ctx, req.QuizID, req.UserID); {
	case err == nil:
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("User has already attempted this quiz. Only one attempt per quiz is allowed."))
	case !errors.Is(err, errors.CodeNotFound):
		return fmt.Errorf("find existing session: %w", err)
	}

	if req.StartedAt.Before(q.StartTime) {
		return errors.InvalidArgument("Session start time cannot be before quiz start time")
	}
	if req.EndedAt.After(q.EndTime) {
		return errors.InvalidArgument("Session end time cannot be after quiz end time")
	}

	return nil
}
