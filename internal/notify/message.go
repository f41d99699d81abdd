package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/victornm/quizrank/internal/domain"
)

// Topic is a broadcast channel connections opt into.
type Topic string

// General reaches every connection.
const General Topic = "general"

func QuizTopic(quizID int64) Topic {
	return Topic(fmt.Sprintf("quiz:%d", quizID))
}

const (
	TypeSubscribeQuiz   = "subscribe_quiz"
	TypeUnsubscribeQuiz = "unsubscribe_quiz"

	TypeSubscriptionConfirmed   = "subscription_confirmed"
	TypeUnsubscriptionConfirmed = "unsubscription_confirmed"
	TypeSessionUploaded         = "quiz_session_uploaded"
	TypeLeaderboardUpdated      = "leaderboard_updated"
	TypeQuizLeaderboardUpdated  = "quiz_leaderboard_updated"
	TypeError                   = "error"
)

// Message is every frame the server sends.
type Message struct {
	Type    string `json:"type"`
	QuizID  int64  `json:"quiz_id,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Inbound is every frame a client may send.
type Inbound struct {
	Type   string  `json:"type"`
	QuizID QuizRef `json:"quiz_id"`
}

// QuizRef is a quiz id sent either as a JSON number or as a numeric string.
type QuizRef int64

func (r *QuizRef) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		b = []byte(s)
	}

	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("quiz_id: %w", err)
	}
	*r = QuizRef(id)
	return nil
}

type SessionUploaded struct {
	Message   string         `json:"message"`
	SessionID int64          `json:"session_id"`
	UserID    int64          `json:"user_id"`
	QuizID    int64          `json:"quiz_id,omitempty"`
	Subject   domain.Subject `json:"bidang,omitempty"`
	Score     *int           `json:"score,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type LeaderboardUpdated struct {
	Message         string         `json:"message"`
	AffectedSubject domain.Subject `json:"affected_bidang"`
	AffectedQuizID  int64          `json:"affected_quiz_id"`
	Timestamp       time.Time      `json:"timestamp"`
}

type QuizLeaderboardUpdated struct {
	Message   string    `json:"message"`
	QuizID    int64     `json:"quiz_id"`
	Timestamp time.Time `json:"timestamp"`
}

func errorMessage(msg string) Message {
	return Message{Type: TypeError, Message: msg}
}

func subscribed(quizID int64) Message {
	return Message{
		Type:    TypeSubscriptionConfirmed,
		QuizID:  quizID,
		Message: fmt.Sprintf("Subscribed to quiz %d leaderboard updates", quizID),
	}
}

func unsubscribed(quizID int64) Message {
	return Message{
		Type:    TypeUnsubscriptionConfirmed,
		QuizID:  quizID,
		Message: fmt.Sprintf("Unsubscribed from quiz %d leaderboard updates", quizID),
	}
}
