package store

import (
	"context"
	"slices"
	"sync"

	"github.com/victornm/quizrank/internal/domain"
	"github.com/victornm/quizrank/internal/errors"
	"github.com/victornm/quizrank/internal/rank"
)

// Memory is an in-process record store for local runs and tests. It answers the
// same queries, with the same ordering, as Postgres.
type Memory struct {
	mu       sync.RWMutex
	nextID   int64
	users    map[int64]string
	quizzes  map[int64]domain.Quiz
	sessions []domain.Session
}

func NewMemory() *Memory {
	return &Memory{
		users:   make(map[int64]string),
		quizzes: make(map[int64]domain.Quiz),
	}
}

func (m *Memory) PutUser(userID int64, username string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.users[userID] = username
}

func (m *Memory) PutQuiz(q domain.Quiz) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.quizzes[q.QuizID] = q
}

func (m *Memory) GetQuiz(_ context.Context, quizID int64) (*domain.Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.quizzes[quizID]
	if !ok {
		return nil, errors.NotFound("Quiz not found")
	}

	return &q, nil
}

func (m *Memory) InsertSession(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	username, ok := m.users[s.UserID]
	if !ok {
		return errors.InvalidArgument("User does not exist")
	}

	q, ok := m.quizzes[s.QuizID]
	if !ok {
		return errors.NotFound("Quiz not found")
	}

	for _, existing := range m.sessions {
		if existing.UserID == s.UserID && existing.QuizID == s.QuizID {
			return errors.New(errors.CodeAlreadyExists, errors.WithMessagef(msgAlreadyAttempted))
		}
	}

	m.nextID++
	s.SessionID = m.nextID
	s.Username = username
	s.Subject = q.Subject
	m.sessions = append(m.sessions, *s)

	return nil
}

func (m *Memory) FindSession(_ context.Context, quizID, userID int64) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.sessions {
		if s.QuizID == quizID && s.UserID == userID {
			return &s, nil
		}
	}

	return nil, errors.NotFound("No quiz session found for this user and quiz")
}

func (m *Memory) ListSessions(_ context.Context, f domain.SessionFilter) ([]domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.filter(f)
	slices.SortStableFunc(out, func(a, b domain.Session) int {
		switch {
		case rank.Outranks(a.Standing(), b.Standing()):
			return -1
		case rank.Outranks(b.Standing(), a.Standing()):
			return 1
		default:
			return int(a.SessionID - b.SessionID)
		}
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}

	return out, nil
}

func (m *Memory) CountSessions(_ context.Context, f domain.SessionFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.filter(f)), nil
}

func (m *Memory) AggregateByUser(_ context.Context, f domain.AggregateFilter) ([]domain.UserAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byUser := make(map[int64]*domain.UserAggregate)
	var order []int64
	for _, s := range m.sessions {
		if f.Subject != "" && s.Subject != f.Subject {
			continue
		}

		a, ok := byUser[s.UserID]
		if !ok {
			a = &domain.UserAggregate{UserID: s.UserID, Username: s.Username}
			byUser[s.UserID] = a
			order = append(order, s.UserID)
		}
		a.TotalScore += s.Score
		a.TotalDuration += s.Duration
		a.QuizCount++
	}

	out := make([]domain.UserAggregate, 0, len(order))
	for _, id := range order {
		a := byUser[id]
		a.AverageScore = float64(a.TotalScore) / float64(a.QuizCount)
		a.AverageDuration = float64(a.TotalDuration) / float64(a.QuizCount)
		out = append(out, *a)
	}

	slices.SortStableFunc(out, func(a, b domain.UserAggregate) int {
		switch {
		case a.TotalScore != b.TotalScore:
			return b.TotalScore - a.TotalScore
		case a.AverageDuration < b.AverageDuration:
			return -1
		case a.AverageDuration > b.AverageDuration:
			return 1
		default:
			return int(a.UserID - b.UserID)
		}
	})

	return out, nil
}

func (m *Memory) filter(f domain.SessionFilter) []domain.Session {
	var out []domain.Session
	for _, s := range m.sessions {
		if f.QuizID != 0 && s.QuizID != f.QuizID {
			continue
		}
		if f.UserID != 0 && s.UserID != f.UserID {
			continue
		}
		if f.Subject != "" && s.Subject != f.Subject {
			continue
		}
		if f.Outranks != nil && !rank.Outranks(s.Standing(), *f.Outranks) {
			continue
		}
		out = append(out, s)
	}
	return out
}
