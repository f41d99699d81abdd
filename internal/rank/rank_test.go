package rank_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizrank/internal/domain"
	"github.com/victornm/quizrank/internal/rank"
)

func TestSubject(t *testing.T) {
	tests := map[string]struct {
		rows   []domain.UserAggregate
		assert func(t *testing.T, got []domain.SubjectEntry)
	}{
		"empty rows give an empty leaderboard": {
			rows: nil,
			assert: func(t *testing.T, got []domain.SubjectEntry) {
				assert.Empty(t, got)
			},
		},

		"higher total score ranks first": {
			rows: []domain.UserAggregate{
				{UserID: 1, Username: "a", TotalScore: 100, AverageDuration: 10},
				{UserID: 2, Username: "b", TotalScore: 250, AverageDuration: 90},
			},
			assert: func(t *testing.T, got []domain.SubjectEntry) {
				require.Len(t, got, 2)
				assert.Equal(t, int64(2), got[0].UserID)
				assert.Equal(t, 1, got[0].Rank)
				assert.Equal(t, int64(1), got[1].UserID)
				assert.Equal(t, 2, got[1].Rank)
			},
		},

		"equal total score is broken by faster average duration": {
			rows: []domain.UserAggregate{
				{UserID: 1, TotalScore: 160, AverageDuration: 300.5},
				{UserID: 2, TotalScore: 160, AverageDuration: 120.25},
				{UserID: 3, TotalScore: 90, AverageDuration: 10},
			},
			assert: func(t *testing.T, got []domain.SubjectEntry) {
				require.Len(t, got, 3)
				assert.Equal(t, []int64{2, 1, 3}, userIDs(got))
				assert.Equal(t, []int{1, 2, 3}, subjectRanks(got))
			},
		},

		"exact ties never share a rank and keep input order": {
			rows: []domain.UserAggregate{
				{UserID: 7, TotalScore: 50, AverageDuration: 60},
				{UserID: 3, TotalScore: 50, AverageDuration: 60},
			},
			assert: func(t *testing.T, got []domain.SubjectEntry) {
				assert.Equal(t, []int64{7, 3}, userIDs(got))
				assert.Equal(t, []int{1, 2}, subjectRanks(got))
			},
		},

		"averages are rounded to two places and subject is labelled": {
			rows: []domain.UserAggregate{
				{UserID: 1, TotalScore: 10, AverageScore: 33.33333, AverageDuration: 66.666666},
			},
			assert: func(t *testing.T, got []domain.SubjectEntry) {
				require.Len(t, got, 1)
				assert.Equal(t, 33.33, got[0].AverageScore)
				assert.Equal(t, 66.67, got[0].AverageDuration)
				assert.Equal(t, domain.SubjectMAT, got[0].Subject)
				assert.Equal(t, "Matematika", got[0].SubjectName)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			tt.assert(t, rank.Subject(domain.SubjectMAT, tt.rows))
		})
	}
}

func TestSubject_IsStable(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	rows := make([]domain.UserAggregate, 200)
	for i := range rows {
		rows[i] = domain.UserAggregate{
			UserID:          int64(i + 1),
			TotalScore:      r.Intn(5) * 10,
			AverageDuration: float64(r.Intn(3) * 60),
		}
	}

	first := rank.Subject(domain.SubjectFIS, rows)
	for range 10 {
		require.Equal(t, first, rank.Subject(domain.SubjectFIS, rows))
	}
}

func TestQuiz(t *testing.T) {
	rows := []domain.Session{
		{SessionID: 1, UserID: 1, Username: "userA", Score: 80, Duration: 300},
		{SessionID: 2, UserID: 2, Username: "userB", Score: 80, Duration: 200},
		{SessionID: 3, UserID: 3, Username: "userC", Score: 90, Duration: 500},
	}

	got := rank.Quiz(rows)

	require.Len(t, got, 3)
	assert.Equal(t, []string{"userC", "userB", "userA"}, []string{got[0].Username, got[1].Username, got[2].Username})
	assert.Equal(t, []int{1, 2, 3}, []int{got[0].Rank, got[1].Rank, got[2].Rank})
	assert.Equal(t, "userA", rows[0].Username, "input must not be reordered")
}

func TestPosition_SortAndCountAgree(t *testing.T) {
	tests := map[string]func() []domain.Session{
		"scenario from three users": func() []domain.Session {
			return []domain.Session{
				{UserID: 1, Score: 80, Duration: 300},
				{UserID: 2, Score: 80, Duration: 200},
				{UserID: 3, Score: 90, Duration: 500},
			}
		},

		"all equal score": func() []domain.Session {
			rows := make([]domain.Session, 20)
			for i := range rows {
				rows[i] = domain.Session{UserID: int64(i + 1), Score: 70, Duration: 100 + (i%4)*10}
			}
			return rows
		},

		"all equal score and duration": func() []domain.Session {
			rows := make([]domain.Session, 10)
			for i := range rows {
				rows[i] = domain.Session{UserID: int64(i + 1), Score: 70, Duration: 100}
			}
			return rows
		},

		"random": func() []domain.Session {
			r := rand.New(rand.NewSource(7))
			rows := make([]domain.Session, 300)
			for i := range rows {
				rows[i] = domain.Session{UserID: int64(i + 1), Score: r.Intn(10) * 10, Duration: 60 + r.Intn(5)*30}
			}
			return rows
		},
	}

	for name, arrange := range tests {
		t.Run(name, func(t *testing.T) {
			rows := arrange()
			for _, s := range rows {
				bySort, ok := rank.PositionBySort(rows, s.UserID)
				require.True(t, ok)
				byCount := rank.PositionByCount(rows, s.Standing())
				require.Equal(t, bySort, byCount, "user %d", s.UserID)
			}
		})
	}
}

func TestQuiz_ExactTieRanksDifferFromPosition(t *testing.T) {
	rows := []domain.Session{
		{UserID: 1, Username: "userA", Score: 80, Duration: 200},
		{UserID: 2, Username: "userB", Score: 80, Duration: 200},
	}

	got := rank.Quiz(rows)
	assert.Equal(t, []int{1, 2}, []int{got[0].Rank, got[1].Rank})

	for _, s := range rows {
		pos, ok := rank.PositionBySort(rows, s.UserID)
		require.True(t, ok)
		assert.Equal(t, 1, pos, "user %d", s.UserID)
		assert.Equal(t, 1, rank.PositionByCount(rows, s.Standing()))
	}
}

func TestPositionBySort_Absent(t *testing.T) {
	_, ok := rank.PositionBySort([]domain.Session{{UserID: 1, Score: 10}}, 2)
	assert.False(t, ok)

	_, ok = rank.PositionBySort(nil, 1)
	assert.False(t, ok)
}

func TestPercentile(t *testing.T) {
	tests := map[string]struct {
		rank, total int
		want        float64
	}{
		"zero participants":   {rank: 1, total: 0, want: 0},
		"first of one":        {rank: 1, total: 1, want: 100},
		"second of three":     {rank: 2, total: 3, want: 66.67},
		"last of four":        {rank: 4, total: 4, want: 25},
		"rank not applicable": {rank: 0, total: 5, want: 0},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, rank.Percentile(tt.rank, tt.total))
		})
	}
}

func userIDs(entries []domain.SubjectEntry) []int64 {
	out := make([]int64, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.UserID)
	}
	return out
}

func subjectRanks(entries []domain.SubjectEntry) []int {
	out := make([]int, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Rank)
	}
	return out
}
