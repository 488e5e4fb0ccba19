package dispatch

import (
	"context"
	"log"

	"github.com/guchiswipe/guchiswipe/internal/queue/streams"
)

// Task types delivered to the worker.
const (
	TaskQuestionPrefetch = "question.prefetch"
	TaskGraphRefresh     = "graph.refresh"
	TaskAdviceRequest    = "advice.request"
)

// PrefetchPayload asks the worker to generate the next turn's questions
// ahead of time.
type PrefetchPayload struct {
	SessionID string `json:"session_id"`
	NextTurn  int    `json:"next_turn"`
}

// GraphRefreshPayload asks the worker to regenerate a user's insight graph.
type GraphRefreshPayload struct {
	UserID string `json:"user_id"`
}

// AdvicePayload asks the worker to run the RAG pipeline for a stored advice
// request.
type AdvicePayload struct {
	RequestID string `json:"request_id"`
}

// Publisher is the streams surface the dispatcher needs.
type Publisher interface {
	PublishRaw(ctx context.Context, stream, taskType string, payload interface{}) (string, error)
}

// Dispatcher hands deferred work to the task queue. Background enrichment is
// best-effort: an unconfigured or failing queue logs and no-ops instead of
// blocking or crashing the request path.
type Dispatcher struct {
	publisher Publisher
	stream    string
	logger    *log.Logger
}

func New(publisher Publisher, stream string, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[DISPATCH] ", log.LstdFlags)
	}
	return &Dispatcher{publisher: publisher, stream: stream, logger: logger}
}

// Enqueue publishes a task fire-and-forget. Never returns an error.
func (d *Dispatcher) Enqueue(ctx context.Context, taskType string, payload interface{}) {
	if d == nil || d.publisher == nil {
		log.Printf("[DISPATCH] queue not configured, dropping task %s", taskType)
		return
	}
	if _, err := d.publisher.PublishRaw(ctx, d.stream, taskType, payload); err != nil {
		d.logger.Printf("enqueue %s failed: %v", taskType, err)
	}
}

var _ Publisher = (*streams.Publisher)(nil)
