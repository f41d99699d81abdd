package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/victornm/quizrank/internal/auth"
	"github.com/victornm/quizrank/internal/domain"
	"github.com/victornm/quizrank/internal/errors"
	"github.com/victornm/quizrank/internal/leaderboard"
	"github.com/victornm/quizrank/internal/session"
)

type Config struct {
	Engine      *gin.Engine
	Auth        *auth.Authenticator
	Leaderboard *leaderboard.Service
	Session     *session.Service
	// Gateway serves live notifications, typically a *notify.Gateway.
	Gateway http.Handler
}

type API struct {
	ls *leaderboard.Service
	ss *session.Service
}

// New registers every route on c.Engine.
func New(c Config) *API {
	a := &API{
		ls: c.Leaderboard,
		ss: c.Session,
	}

	r := c.Engine.Group("/api", auth.Optional(c.Auth))
	ws := gin.WrapH(c.Gateway)

	// Every route answers with and without a trailing slash, so POST bodies are never
	// lost to a redirect.
	for _, slash := range []string{"", "/"} {
		r.GET("/leaderboard/subject"+slash, a.GetSubjectLeaderboard)
		r.GET("/leaderboard/quiz/:id"+slash, a.GetQuizLeaderboardPreview)
		r.GET("/leaderboard/quiz/:id/full"+slash, a.GetQuizLeaderboard)
		r.GET("/leaderboard/quiz/:id/user-performance"+slash, auth.Required(), a.GetUserPerformance)
		r.POST("/quiz-sessions"+slash, auth.Required(), a.RecordSession)

		c.Engine.GET("/ws/leaderboard"+slash, ws)
	}

	return a
}

// GetSubjectLeaderboard serves one subject when bidang is given, every subject otherwise.
func (a *API) GetSubjectLeaderboard(c *gin.Context) {
	bidang := c.Query("bidang")
	if bidang == "" {
		all, err := a.ls.GetAllSubjectLeaderboards(c.Request.Context())
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, all)
		return
	}

	l, err := a.ls.GetSubjectLeaderboard(c.Request.Context(), leaderboard.GetSubjectLeaderboardRequest{
		Subject: domain.Subject(bidang),
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (a *API) GetQuizLeaderboardPreview(c *gin.Context) {
	id, ok := quizID(c)
	if !ok {
		return
	}

	l, err := a.ls.GetQuizLeaderboardPreview(c.Request.Context(), leaderboard.GetQuizLeaderboardRequest{QuizID: id})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (a *API) GetQuizLeaderboard(c *gin.Context) {
	id, ok := quizID(c)
	if !ok {
		return
	}

	l, err := a.ls.GetQuizLeaderboard(c.Request.Context(), leaderboard.GetQuizLeaderboardRequest{QuizID: id})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (a *API) GetUserPerformance(c *gin.Context) {
	id, ok := quizID(c)
	if !ok {
		return
	}

	who, _ := auth.IdentityFrom(c.Request.Context())
	p, err := a.ls.GetUserPerformance(c.Request.Context(), leaderboard.GetUserPerformanceRequest{
		QuizID: id,
		UserID: who.UserID,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type recordSessionRequest struct {
	QuizID    int64     `json:"quiz" binding:"required"`
	Score     *int      `json:"score" binding:"required"`
	StartedAt time.Time `json:"user_start" binding:"required"`
	EndedAt   time.Time `json:"user_end" binding:"required"`
}

type sessionResponse struct {
	SessionID int64          `json:"id"`
	UserID    int64          `json:"user"`
	Username  string         `json:"username"`
	QuizID    int64          `json:"quiz"`
	Subject   domain.Subject `json:"bidang"`
	Score     int            `json:"score"`
	Duration  int            `json:"duration"`
	StartedAt time.Time      `json:"user_start"`
	EndedAt   time.Time      `json:"user_end"`
}

// RecordSession stores an attempt for the authenticated user.
func (a *API) RecordSession(c *gin.Context) {
	var req recordSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("Invalid request body"), errors.WithCause(err)))
		return
	}

	who, _ := auth.IdentityFrom(c.Request.Context())
	ss, err := a.ss.RecordSession(c.Request.Context(), session.RecordSessionRequest{
		UserID:    who.UserID,
		QuizID:    req.QuizID,
		Score:     *req.Score,
		StartedAt: req.StartedAt,
		EndedAt:   req.EndedAt,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sessionResponse{
		SessionID: ss.SessionID,
		UserID:    ss.UserID,
		Username:  ss.Username,
		QuizID:    ss.QuizID,
		Subject:   ss.Subject,
		Score:     ss.Score,
		Duration:  ss.Duration,
		StartedAt: ss.StartedAt,
		EndedAt:   ss.EndedAt,
	})
}

func quizID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		renderError(c, errors.InvalidArgument("invalid quiz id: %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

func renderError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed", "route", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
