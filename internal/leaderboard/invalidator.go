package leaderboard

import (
	"context"
	"log/slog"

	"github.com/victornm/quizrank/internal/cache"
	"github.com/victornm/quizrank/internal/domain"
)

// Invalidator drops exactly the cached views a new session can change.
type Invalidator struct {
	cache *cache.Cache
}

func NewInvalidator(c *cache.Cache) *Invalidator {
	return &Invalidator{cache: c}
}

// StaleKeys lists the keys a session for (subject, quiz, user) makes stale: that subject's
// leaderboard, that quiz's leaderboard and that user's performance in the quiz.
func StaleKeys(subject domain.Subject, quizID, userID int64) []string {
	return []string{
		SubjectKey(subject),
		QuizKey(quizID),
		UserPerformanceKey(quizID, userID),
	}
}

// OnSessionRecorded deletes the stale keys. A failed delete is logged and left to expire by TTL.
func (i *Invalidator) OnSessionRecorded(ctx context.Context, subject domain.Subject, quizID, userID int64) {
	keys := StaleKeys(subject, quizID, userID)

	if !i.cache.DeleteMany(ctx, keys) {
		slog.WarnContext(ctx, "leaderboard: invalidation failed, entries expire by ttl", "keys", keys)
		return
	}

	slog.InfoContext(ctx, "leaderboard: invalidated", "keys", keys)
}
