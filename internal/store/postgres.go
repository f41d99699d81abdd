// Package store answers the record queries leaderboards are computed from.
package store

import (
	"context"
	_ "embed"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizrank/internal/domain"
	"github.com/victornm/quizrank/internal/errors"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"

	msgAlreadyAttempted = "User has already attempted this quiz. Only one attempt per quiz is allowed."
)

//go:embed schema.sql
var schema string

type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (p *Postgres) GetQuiz(ctx context.Context, quizID int64) (*domain.Quiz, error) {
	const stmt = `SELECT quiz_id, title, subject, start_time, end_time FROM quizzes WHERE quiz_id = $1;`

	var q domain.Quiz
	err := p.db.QueryRow(ctx, stmt, quizID).Scan(&q.QuizID, &q.Title, &q.Subject, &q.StartTime, &q.EndTime)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("Quiz not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get quiz %d: %w", quizID, err)
	}

	return &q, nil
}

// InsertSession writes s and fills in its id, username and subject. The (user, quiz)
// uniqueness is enforced by the table, a second attempt is AlreadyExists.
func (p *Postgres) InsertSession(ctx context.Context, s *domain.Session) error {
	const stmt = `
WITH inserted AS (
	INSERT INTO quiz_sessions (user_id, quiz_id, score, duration, started_at, ended_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING session_id, user_id, quiz_id
)
SELECT i.session_id, u.username, q.subject
FROM inserted i
JOIN users u ON u.user_id = i.user_id
JOIN quizzes q ON q.quiz_id = i.quiz_id;`

	err := p.db.QueryRow(ctx, stmt, s.UserID, s.QuizID, s.Score, s.Duration, s.StartedAt, s.EndedAt).
		Scan(&s.SessionID, &s.Username, &s.Subject)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return errors.New(errors.CodeAlreadyExists,
				errors.WithMessagef(msgAlreadyAttempted),
				errors.WithCause(err))
		case codeForeignKeyViolation:
			return errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("User or quiz does not exist"),
				errors.WithCause(err))
		}
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

func (p *Postgres) FindSession(ctx context.Context, quizID, userID int64) (*domain.Session, error) {
	ss, err := p.ListSessions(ctx, domain.SessionFilter{QuizID: quizID, UserID: userID, Limit: 1})
	if err != nil {
		return nil, err
	}

	if len(ss) == 0 {
		return nil, errors.NotFound("No quiz session found for this user and quiz")
	}

	return &ss[0], nil
}

// ListSessions returns matching sessions ordered by score descending, then duration
// ascending, then session id.
func (p *Postgres) ListSessions(ctx context.Context, f domain.SessionFilter) ([]domain.Session, error) {
	where, args := sessionWhere(f)

	stmt := `
SELECT s.session_id, s.user_id, u.username, s.quiz_id, q.subject, s.score, s.duration, s.started_at, s.ended_at
FROM quiz_sessions s
JOIN users u ON u.user_id = s.user_id
JOIN quizzes q ON q.quiz_id = s.quiz_id` + where + `
ORDER BY s.score DESC, s.duration ASC, s.session_id ASC`

	if f.Limit > 0 {
		args = append(args, f.Limit)
		stmt += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := p.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	ss, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Session, error) {
		var s domain.Session
		err := r.Scan(&s.SessionID, &s.UserID, &s.Username, &s.QuizID, &s.Subject,
			&s.Score, &s.Duration, &s.StartedAt, &s.EndedAt)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	return ss, nil
}

func (p *Postgres) CountSessions(ctx context.Context, f domain.SessionFilter) (int, error) {
	where, args := sessionWhere(f)

	stmt := `
SELECT COUNT(*)
FROM quiz_sessions s
JOIN quizzes q ON q.quiz_id = s.quiz_id` + where

	var n int
	if err := p.db.QueryRow(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}

	return n, nil
}

// AggregateByUser sums each user's sessions, ordered by total score descending then
// average duration ascending.
func (p *Postgres) AggregateByUser(ctx context.Context, f domain.AggregateFilter) ([]domain.UserAggregate, error) {
	var (
		where string
		args  []any
	)
	if f.Subject != "" {
		where = "\nWHERE q.subject = $1"
		args = append(args, string(f.Subject))
	}

	stmt := `
SELECT s.user_id, u.username,
	SUM(s.score) AS total_score,
	COUNT(s.session_id) AS quiz_count,
	AVG(s.score)::float8 AS average_score,
	SUM(s.duration) AS total_duration,
	AVG(s.duration)::float8 AS average_duration
FROM quiz_sessions s
JOIN users u ON u.user_id = s.user_id
JOIN quizzes q ON q.quiz_id = s.quiz_id` + where + `
GROUP BY s.user_id, u.username
ORDER BY total_score DESC, average_duration ASC, s.user_id ASC;`

	rows, err := p.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate by user: %w", err)
	}

	aggs, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.UserAggregate, error) {
		var a domain.UserAggregate
		err := r.Scan(&a.UserID, &a.Username, &a.TotalScore, &a.QuizCount,
			&a.AverageScore, &a.TotalDuration, &a.AverageDuration)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate by user: %w", err)
	}

	return aggs, nil
}

func sessionWhere(f domain.SessionFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.QuizID != 0 {
		conds = append(conds, "s.quiz_id = "+arg(f.QuizID))
	}
	if f.UserID != 0 {
		conds = append(conds, "s.user_id = "+arg(f.UserID))
	}
	if f.Subject != "" {
		conds = append(conds, "q.subject = "+arg(string(f.Subject)))
	}
	if f.Outranks != nil {
		score, duration := arg(f.Outranks.Score), arg(f.Outranks.Duration)
		conds = append(conds, fmt.Sprintf("(s.score > %s OR (s.score = %s AND s.duration < %s))", score, score, duration))
	}

	if len(conds) == 0 {
		return "", nil
	}

	return "\nWHERE " + strings.Join(conds, " AND "), args
}
