package domain

import "time"

// The views below are computed, never stored authoritatively. They are serialized as-is
// into the cache and into HTTP responses.

type SubjectEntry struct {
	Rank            int     `json:"rank"`
	UserID          int64   `json:"user_id"`
	Username        string  `json:"username"`
	Subject         Subject `json:"bidang"`
	SubjectName     string  `json:"bidang_name"`
	TotalScore      int     `json:"total_score"`
	QuizCount       int     `json:"quiz_count"`
	AverageScore    float64 `json:"average_score"`
	TotalDuration   int     `json:"total_duration"`
	AverageDuration float64 `json:"average_duration"`
}

// SubjectLeaderboard ranks users by their aggregate performance in one subject.
type SubjectLeaderboard struct {
	Subject           Subject        `json:"bidang"`
	SubjectName       string         `json:"bidang_name"`
	TotalParticipants int            `json:"total_participants"`
	Entries           []SubjectEntry `json:"leaderboard"`
}

// SubjectSummary is the per-subject value of the all-subjects view.
type SubjectSummary struct {
	SubjectName       string         `json:"bidang_name"`
	TotalParticipants int            `json:"total_participants"`
	Entries           []SubjectEntry `json:"leaderboard"`
}

type QuizEntry struct {
	Rank      int       `json:"rank"`
	SessionID int64     `json:"session_id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Score     int       `json:"score"`
	Duration  int       `json:"duration"`
	StartedAt time.Time `json:"user_start"`
	EndedAt   time.Time `json:"user_end"`
}

// QuizLeaderboard ranks the sessions of a single quiz.
type QuizLeaderboard struct {
	QuizID            int64       `json:"quiz_id"`
	QuizTitle         string      `json:"quiz_title"`
	TotalParticipants int         `json:"total_participants"`
	Entries           []QuizEntry `json:"leaderboard"`
}

type SessionSummary struct {
	SessionID int64     `json:"id"`
	Score     int       `json:"score"`
	Duration  int       `json:"duration"`
	StartedAt time.Time `json:"user_start"`
	EndedAt   time.Time `json:"user_end"`
}

type Performance struct {
	UserID            int64          `json:"user_id"`
	Username          string         `json:"username"`
	Session           SessionSummary `json:"session"`
	Rank              int            `json:"rank"`
	TotalParticipants int            `json:"total_participants"`
	Percentile        float64        `json:"percentile"`
}

// UserPerformance is where a single user stands within a quiz.
type UserPerformance struct {
	QuizID      int64       `json:"quiz_id"`
	QuizTitle   string      `json:"quiz_title"`
	Performance Performance `json:"user_performance"`
}
