package models

import (
	"errors"
	"time"
)

// Session statuses. A session starts in processing while the first question
// batch is generated, then cycles in_progress -> completed per turn until
// max_turns is reached.
const (
	SessionStatusProcessing = "processing"
	SessionStatusInProgress = "in_progress"
	SessionStatusCompleted  = "completed"
	SessionStatusError      = "error"
)

// DefaultMaxTurns bounds the question/answer/summary cycles per session.
const DefaultMaxTurns = 3

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrMaxTurnsReached  = errors.New("maximum turns reached")
)

// Session is the aggregate root owning questions, answers, summaries and
// prefetched question batches.
type Session struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Topic          string    `json:"topic"`
	Turn           int       `json:"turn"`
	MaxTurns       int       `json:"max_turns"`
	Status         string    `json:"status"`
	Title          string    `json:"title,omitempty"`
	LatestInsights string    `json:"latest_insights,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Question is a yes/no prompt shown to the user within a turn. Order is
// strictly increasing within a turn cohort.
type Question struct {
	ID         string `json:"id"`
	SessionID  string `json:"session_id"`
	Text       string `json:"text"`
	Turn       int    `json:"turn"`
	Order      int    `json:"order"`
	Prefetched bool   `json:"prefetched"`
}

// Answer is one swipe. Append-only; hesitation is the time the user took
// before swiping, in seconds.
type Answer struct {
	SessionID  string    `json:"session_id"`
	QuestionID string    `json:"question_id"`
	Answer     bool      `json:"answer"`
	Hesitation float64   `json:"hesitation_time"`
	Turn       int       `json:"turn"`
	AnsweredAt time.Time `json:"answered_at"`
}

// Summary holds the generated insight for one completed turn. Immutable once
// written.
type Summary struct {
	SessionID string    `json:"session_id"`
	Turn      int       `json:"turn"`
	Title     string    `json:"title"`
	Insights  string    `json:"insights"`
	CreatedAt time.Time `json:"created_at"`
}

// Advice request statuses for asynchronous RAG chat.
const (
	AdviceStatusPending   = "pending"
	AdviceStatusCompleted = "completed"
	AdviceStatusFailed    = "failed"
)

// AdviceRequest tracks an asynchronous RAG invocation executed by the worker.
type AdviceRequest struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Query       string     `json:"query"`
	Mode        string     `json:"mode"`
	Status      string     `json:"status"`
	Advice      string     `json:"advice,omitempty"`
	Sources     []string   `json:"sources,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// GraphNode and GraphEdge form the per-user insight graph.
type GraphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Group string `json:"group,omitempty"`
}

type GraphEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// InsightGraph is the cached aggregation of a user's insights, regenerated
// when absent or stale.
type InsightGraph struct {
	Nodes     []GraphNode `json:"nodes"`
	Edges     []GraphEdge `json:"edges"`
	UpdatedAt time.Time   `json:"updated_at"`
}
