package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizrank/internal/domain"
	"github.com/victornm/quizrank/internal/errors"
	"github.com/victornm/quizrank/internal/store"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := seed(t)

	t.Run("list sessions orders by score desc then duration asc", func(t *testing.T) {
		ss, err := m.ListSessions(ctx, domain.SessionFilter{QuizID: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"userC", "userB", "userA"}, usernames(ss))
	})

	t.Run("limit caps the listing", func(t *testing.T) {
		ss, err := m.ListSessions(ctx, domain.SessionFilter{QuizID: 1, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"userC", "userB"}, usernames(ss))
	})

	t.Run("count outranking sessions", func(t *testing.T) {
		n, err := m.CountSessions(ctx, domain.SessionFilter{QuizID: 1, Outranks: &domain.Standing{Score: 80, Duration: 300}})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = m.CountSessions(ctx, domain.SessionFilter{QuizID: 1})
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("aggregate by user within a subject", func(t *testing.T) {
		aggs, err := m.AggregateByUser(ctx, domain.AggregateFilter{Subject: domain.SubjectMAT})
		require.NoError(t, err)
		require.Len(t, aggs, 3)
		assert.Equal(t, "userA", aggs[0].Username)
		assert.Equal(t, 140, aggs[0].TotalScore)
		assert.Equal(t, 2, aggs[0].QuizCount)
		assert.Equal(t, 70.0, aggs[0].AverageScore)
		assert.Equal(t, 250.0, aggs[0].AverageDuration)
	})

	t.Run("second attempt is rejected", func(t *testing.T) {
		err := m.InsertSession(ctx, &domain.Session{UserID: 1, QuizID: 1, Score: 1, Duration: 1})
		require.True(t, errors.Is(err, errors.CodeAlreadyExists))
	})

	t.Run("unknown quiz and session are not found", func(t *testing.T) {
		_, err := m.GetQuiz(ctx, 99)
		require.True(t, errors.Is(err, errors.CodeNotFound))

		_, err = m.FindSession(ctx, 2, 3)
		require.True(t, errors.Is(err, errors.CodeNotFound))
	})
}

func seed(t *testing.T) *store.Memory {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	m := store.NewMemory()
	m.PutUser(1, "userA")
	m.PutUser(2, "userB")
	m.PutUser(3, "userC")
	m.PutQuiz(domain.Quiz{QuizID: 1, Title: "Aljabar", Subject: domain.SubjectMAT, StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour)})
	m.PutQuiz(domain.Quiz{QuizID: 2, Title: "Geometri", Subject: domain.SubjectMAT, StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour)})

	for _, s := range []domain.Session{
		{UserID: 1, QuizID: 1, Score: 80, Duration: 300},
		{UserID: 2, QuizID: 1, Score: 80, Duration: 200},
		{UserID: 3, QuizID: 1, Score: 90, Duration: 500},
		{UserID: 1, QuizID: 2, Score: 60, Duration: 200},
	} {
		s := s
		require.NoError(t, m.InsertSession(ctx, &s))
	}

	return m
}

func usernames(ss []domain.Session) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		out = append(out, s.Username)
	}
	return out
}
