package domain

import (
	"time"
)

// Subject (bidang) is the fixed category tag that groups quizzes.
type Subject string

const (
	SubjectAST Subject = "AST"
	SubjectBIO Subject = "BIO"
	SubjectEKO Subject = "EKO"
	SubjectFIS Subject = "FIS"
	SubjectGEO Subject = "GEO"
	SubjectINF Subject = "INF"
	SubjectKBM Subject = "KBM"
	SubjectKIM Subject = "KIM"
	SubjectMAT Subject = "MAT"
)

var subjects = []struct {
	code Subject
	name string
}{
	{SubjectAST, "Astronomi"},
	{SubjectBIO, "Biologi"},
	{SubjectEKO, "Ekonomi"},
	{SubjectFIS, "Fisika"},
	{SubjectGEO, "Geografi"},
	{SubjectINF, "Informatika"},
	{SubjectKBM, "Kebumian"},
	{SubjectKIM, "Kimia"},
	{SubjectMAT, "Matematika"},
}

// Subjects returns every subject code in declaration order.
func Subjects() []Subject {
	out := make([]Subject, 0, len(subjects))
	for _, s := range subjects {
		out = append(out, s.code)
	}
	return out
}

// Name returns the display name of the subject, or the code itself when unknown.
func (s Subject) Name() string {
	for _, sub := range subjects {
		if sub.code == s {
			return sub.name
		}
	}
	return string(s)
}

func (s Subject) Valid() bool {
	for _, sub := range subjects {
		if sub.code == s {
			return true
		}
	}
	return false
}

// Quiz is the read-only quiz metadata.
type Quiz struct {
	QuizID    int64
	Title     string
	Subject   Subject
	StartTime time.Time
	EndTime   time.Time
}

// IsActive reports whether now falls inside the quiz window, bounds included.
func (q Quiz) IsActive(now time.Time) bool {
	return !now.Before(q.StartTime) && !now.After(q.EndTime)
}

// Session is a recorded quiz attempt. At most one exists per (UserID, QuizID).
type Session struct {
	SessionID int64
	UserID    int64
	Username  string
	QuizID    int64
	Subject   Subject
	Score     int
	// Duration is in whole seconds, always EndedAt - StartedAt.
	Duration  int
	StartedAt time.Time
	EndedAt   time.Time
}

// SessionDuration returns the whole seconds between start and end.
func SessionDuration(start, end time.Time) int {
	return int(end.Sub(start) / time.Second)
}

// UserAggregate is one row of a per-user aggregate over sessions.
type UserAggregate struct {
	UserID          int64
	Username        string
	TotalScore      int
	QuizCount       int
	AverageScore    float64
	TotalDuration   int
	AverageDuration float64
}
