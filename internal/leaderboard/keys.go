package leaderboard

import (
	"fmt"

	"github.com/victornm/quizrank/internal/domain"
)

// Key formats are shared with anything inspecting the cache and must not change.

func SubjectKey(subject domain.Subject) string {
	return fmt.Sprintf("leaderboard:subject:%s", subject)
}

func QuizKey(quizID int64) string {
	return fmt.Sprintf("leaderboard:quiz:%d", quizID)
}

func UserPerformanceKey(quizID, userID int64) string {
	return fmt.Sprintf("user_performance:quiz:%d:user:%d", quizID, userID)
}
