package leaderboard

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizrank/internal/cache"
	"github.com/victornm/quizrank/internal/domain"
	"github.com/victornm/quizrank/internal/errors"
	"github.com/victornm/quizrank/internal/rank"
)

const (
	DefaultLeaderboardTTL = 180 * time.Second
	DefaultPerformanceTTL = 3600 * time.Second
	DefaultWorkers        = 8
	DefaultPreviewSize    = 20
	DefaultQueryTimeout   = 5 * time.Second
)

// Records is the part of the record store leaderboards are computed from.
type Records interface {
	GetQuiz(ctx context.Context, quizID int64) (*domain.Quiz, error)
	FindSession(ctx context.Context, quizID, userID int64) (*domain.Session, error)
	ListSessions(ctx context.Context, f domain.SessionFilter) ([]domain.Session, error)
	CountSessions(ctx context.Context, f domain.SessionFilter) (int, error)
	AggregateByUser(ctx context.Context, f domain.AggregateFilter) ([]domain.UserAggregate, error)
}

type Config struct {
	Records Records
	Cache   *cache.Cache

	// LeaderboardTTL applies to subject and quiz leaderboards, PerformanceTTL to per-user views.
	LeaderboardTTL time.Duration
	PerformanceTTL time.Duration

	// Workers bounds the all-subjects fan-out.
	Workers int
	// PreviewSize is how many entries the quiz preview returns.
	PreviewSize int
	// QueryTimeout bounds every record store call.
	QueryTimeout time.Duration
}

type Service struct {
	records        Records
	cache          *cache.Cache
	leaderboardTTL time.Duration
	performanceTTL time.Duration
	workers        int
	previewSize    int
	queryTimeout   time.Duration
}

func NewService(c Config) *Service {
	s := &Service{
		records:        c.Records,
		cache:          c.Cache,
		leaderboardTTL: c.LeaderboardTTL,
		performanceTTL: c.PerformanceTTL,
		workers:        c.Workers,
		previewSize:    c.PreviewSize,
		queryTimeout:   c.QueryTimeout,
	}

	if s.leaderboardTTL <= 0 {
		s.leaderboardTTL = DefaultLeaderboardTTL
	}
	if s.performanceTTL <= 0 {
		s.performanceTTL = DefaultPerformanceTTL
	}
	if s.workers <= 0 {
		s.workers = DefaultWorkers
	}
	if s.previewSize <= 0 {
		s.previewSize = DefaultPreviewSize
	}
	if s.queryTimeout <= 0 {
		s.queryTimeout = DefaultQueryTimeout
	}

	return s
}

type GetSubjectLeaderboardRequest struct {
	Subject domain.Subject
}

// GetSubjectLeaderboard ranks every user who has sessions in the subject by aggregate score.
func (s *Service) GetSubjectLeaderboard(ctx context.Context, req GetSubjectLeaderboardRequest) (*domain.SubjectLeaderboard, error) {
	if !req.Subject.Valid() {
		return nil, errors.InvalidArgument("unknown bidang: %q", req.Subject)
	}

	l, err := cache.GetOrCompute(ctx, s.cache, SubjectKey(req.Subject), s.leaderboardTTL,
		func(ctx context.Context) (domain.SubjectLeaderboard, error) {
			return s.computeSubject(ctx, req.Subject)
		})
	if err != nil {
		return nil, err
	}

	return &l, nil
}

// GetAllSubjectLeaderboards computes every subject independently on a bounded pool and
// merges the results by subject code.
func (s *Service) GetAllSubjectLeaderboards(ctx context.Context) (map[domain.Subject]domain.SubjectSummary, error) {
	subjects := domain.Subjects()
	results := make([]*domain.SubjectLeaderboard, len(subjects))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.workers)

	for i, sub := range subjects {
		eg.Go(func() error {
			l, err := s.GetSubjectLeaderboard(ctx, GetSubjectLeaderboardRequest{Subject: sub})
			if err != nil {
				return fmt.Errorf("subject %s: %w", sub, err)
			}
			results[i] = l
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make(map[domain.Subject]domain.SubjectSummary, len(subjects))
	for _, l := range results {
		out[l.Subject] = domain.SubjectSummary{
			SubjectName:       l.SubjectName,
			TotalParticipants: l.TotalParticipants,
			Entries:           l.Entries,
		}
	}

	return out, nil
}

type GetQuizLeaderboardRequest struct {
	QuizID int64
}

// GetQuizLeaderboard returns every session of the quiz, ranked. Cached per quiz.
func (s *Service) GetQuizLeaderboard(ctx context.Context, req GetQuizLeaderboardRequest) (*domain.QuizLeaderboard, error) {
	l, err := cache.GetOrCompute(ctx, s.cache, QuizKey(req.QuizID), s.leaderboardTTL,
		func(ctx context.Context) (domain.QuizLeaderboard, error) {
			return s.computeQuiz(ctx, req.QuizID, 0)
		})
	if err != nil {
		return nil, err
	}

	return &l, nil
}

// GetQuizLeaderboardPreview returns only the top sessions of the quiz. It always reads
// the record store and never shares the full leaderboard's cache entry.
func (s *Service) GetQuizLeaderboardPreview(ctx context.Context, req GetQuizLeaderboardRequest) (*domain.QuizLeaderboard, error) {
	l, err := s.computeQuiz(ctx, req.QuizID, s.previewSize)
	if err != nil {
		return nil, err
	}

	return &l, nil
}

type GetUserPerformanceRequest struct {
	QuizID int64
	UserID int64
}

// GetUserPerformance reports the user's rank in the quiz. A user without a session in
// the quiz is NotFound, there is no rank 0.
func (s *Service) GetUserPerformance(ctx context.Context, req GetUserPerformanceRequest) (*domain.UserPerformance, error) {
	p, err := cache.GetOrCompute(ctx, s.cache, UserPerformanceKey(req.QuizID, req.UserID), s.performanceTTL,
		func(ctx context.Context) (domain.UserPerformance, error) {
			return s.computePerformance(ctx, req.QuizID, req.UserID)
		})
	if err != nil {
		return nil, err
	}

	return &p, nil
}

func (s *Service) computeSubject(ctx context.Context, subject domain.Subject) (domain.SubjectLeaderboard, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.records.AggregateByUser(ctx, domain.AggregateFilter{Subject: subject})
	if err != nil {
		return domain.SubjectLeaderboard{}, fmt.Errorf("aggregate subject %s: %w", subject, err)
	}

	entries := rank.Subject(subject, rows)
	return domain.SubjectLeaderboard{
		Subject:           subject,
		SubjectName:       subject.Name(),
		TotalParticipants: len(entries),
		Entries:           entries,
	}, nil
}

// computeQuiz ranks the quiz's sessions, keeping the top limit when limit > 0.
func (s *Service) computeQuiz(ctx context.Context, quizID int64, limit int) (domain.QuizLeaderboard, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	q, err := s.records.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.QuizLeaderboard{}, err
	}

	rows, err := s.records.ListSessions(ctx, domain.SessionFilter{QuizID: quizID, Limit: limit})
	if err != nil {
		return domain.QuizLeaderboard{}, fmt.Errorf("list sessions of quiz %d: %w", quizID, err)
	}

	total := len(rows)
	if limit > 0 {
		if total, err = s.records.CountSessions(ctx, domain.SessionFilter{QuizID: quizID}); err != nil {
			return domain.QuizLeaderboard{}, fmt.Errorf("count sessions of quiz %d: %w", quizID, err)
		}
	}

	return domain.QuizLeaderboard{
		QuizID:            q.QuizID,
		QuizTitle:         q.Title,
		TotalParticipants: total,
		Entries:           rank.Quiz(rows),
	}, nil
}

func (s *Service) computePerformance(ctx context.Context, quizID, userID int64) (domain.UserPerformance, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	q, err := s.records.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.UserPerformance{}, err
	}

	ss, err := s.records.FindSession(ctx, quizID, userID)
	if err != nil {
		return domain.UserPerformance{}, err
	}

	standing := ss.Standing()
	better, err := s.records.CountSessions(ctx, domain.SessionFilter{QuizID: quizID, Outranks: &standing})
	if err != nil {
		return domain.UserPerformance{}, fmt.Errorf("count sessions outranking user %d: %w", userID, err)
	}

	total, err := s.records.CountSessions(ctx, domain.SessionFilter{QuizID: quizID})
	if err != nil {
		return domain.UserPerformance{}, fmt.Errorf("count sessions of quiz %d: %w", quizID, err)
	}

	r := better + 1
	return domain.UserPerformance{
		QuizID:    q.QuizID,
		QuizTitle: q.Title,
		Performance: domain.Performance{
			UserID:   ss.UserID,
			Username: ss.Username,
			Session: domain.SessionSummary{
				SessionID: ss.SessionID,
				Score:     ss.Score,
				Duration:  ss.Duration,
				StartedAt: ss.StartedAt,
				EndedAt:   ss.EndedAt,
			},
			Rank:              r,
			TotalParticipants: total,
			Percentile:        rank.Percentile(r, total),
		},
	}, nil
}
