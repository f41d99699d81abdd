package domain

// Standing is the (score, duration) pair sessions of a quiz are ordered by.
type Standing struct {
	Score    int
	Duration int
}

func (s Session) Standing() Standing {
	return Standing{Score: s.Score, Duration: s.Duration}
}

// AggregateFilter narrows an aggregate-by-user query. Zero values mean "no filter".
type AggregateFilter struct {
	Subject Subject
}

// SessionFilter narrows a session listing or count. Zero values mean "no filter".
type SessionFilter struct {
	QuizID  int64
	UserID  int64
	Subject Subject

	// Outranks keeps only sessions strictly better than the standing:
	// a higher score, or the same score with a shorter duration.
	Outranks *Standing

	// Limit caps listings, 0 means unbounded. Ignored by counts.
	Limit int
}
