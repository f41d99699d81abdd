// Package rank turns raw session rows into ordered, ranked leaderboard entries.
// Everything here is pure: no I/O, no shared state.
package rank

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/victornm/quizrank/internal/domain"
)

// Outranks reports whether a is strictly better than b within one quiz:
// a higher score, or the same score finished faster.
func Outranks(a, b domain.Standing) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Duration < b.Duration
}

func compareAggregate(a, b domain.UserAggregate) int {
	if c := cmp.Compare(b.TotalScore, a.TotalScore); c != 0 {
		return c
	}
	return cmp.Compare(a.AverageDuration, b.AverageDuration)
}

func compareSession(a, b domain.Session) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	return cmp.Compare(a.Duration, b.Duration)
}

// Subject ranks per-user aggregates by total score descending, then average
// duration ascending. Ranks are dense and never shared; exact ties keep input order.
func Subject(subject domain.Subject, rows []domain.UserAggregate) []domain.SubjectEntry {
	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, compareAggregate)

	entries := make([]domain.SubjectEntry, 0, len(sorted))
	for i, r := range sorted {
		entries = append(entries, domain.SubjectEntry{
			Rank:            i + 1,
			UserID:          r.UserID,
			Username:        r.Username,
			Subject:         subject,
			SubjectName:     subject.Name(),
			TotalScore:      r.TotalScore,
			QuizCount:       r.QuizCount,
			AverageScore:    Round2(r.AverageScore),
			TotalDuration:   r.TotalDuration,
			AverageDuration: Round2(r.AverageDuration),
		})
	}

	return entries
}

// Quiz ranks sessions of a single quiz by score descending, then duration ascending.
// Like Subject, ranks are positional and exact ties keep input order.
//
// Positions from PositionBySort and PositionByCount count only strictly better rows,
// so two sessions with equal score and duration share a position there while Quiz
// gives them consecutive ranks. Both readings are intended.
func Quiz(rows []domain.Session) []domain.QuizEntry {
	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, compareSession)

	entries := make([]domain.QuizEntry, 0, len(sorted))
	for i, s := range sorted {
		entries = append(entries, domain.QuizEntry{
			Rank:      i + 1,
			SessionID: s.SessionID,
			UserID:    s.UserID,
			Username:  s.Username,
			Score:     s.Score,
			Duration:  s.Duration,
			StartedAt: s.StartedAt,
			EndedAt:   s.EndedAt,
		})
	}

	return entries
}

// PositionBySort finds where userID stands by sorting every session and walking
// the order up to the user's own row, counting the rows that outrank it.
// Returns false when the user has no session among rows.
func PositionBySort(rows []domain.Session, userID int64) (int, bool) {
	idx := slices.IndexFunc(rows, func(s domain.Session) bool { return s.UserID == userID })
	if idx < 0 {
		return 0, false
	}
	target := rows[idx].Standing()

	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, compareSession)

	pos := 1
	for _, s := range sorted {
		if s.UserID == userID {
			break
		}
		if Outranks(s.Standing(), target) {
			pos++
		}
	}

	return pos, true
}

// PositionByCount is one plus the number of rows strictly better than target.
// It is the in-memory form of the count query the record store answers.
func PositionByCount(rows []domain.Session, target domain.Standing) int {
	pos := 1
	for _, s := range rows {
		if Outranks(s.Standing(), target) {
			pos++
		}
	}
	return pos
}

// Percentile is (1 - (rank-1)/total) * 100 rounded to two places, or 0 with no participants.
func Percentile(rank, total int) float64 {
	if total <= 0 || rank <= 0 {
		return 0
	}

	behind := decimal.NewFromInt(int64(rank - 1)).Div(decimal.NewFromInt(int64(total)))
	p, _ := decimal.NewFromInt(1).Sub(behind).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	return p
}

func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
