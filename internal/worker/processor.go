package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/guchiswipe/guchiswipe/internal/dispatch"
	"github.com/guchiswipe/guchiswipe/internal/queue/streams"
	"github.com/guchiswipe/guchiswipe/internal/rag"
	"github.com/guchiswipe/guchiswipe/models"
)

var (
	tasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_tasks_processed_total",
		Help: "Background tasks handled, by type.",
	}, []string{"type"})
	taskFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_task_failures_total",
		Help: "Background task handler errors, by type.",
	}, []string{"type"})
)

// SessionAPI is the session surface the worker needs.
type SessionAPI interface {
	PrefetchQuestions(ctx context.Context, sessionID string, nextTurn int) error
}

// GraphAPI regenerates per-user insight graphs.
type GraphAPI interface {
	Refresh(ctx context.Context, userID string) (models.InsightGraph, error)
}

// AdviceStore loads and finalizes queued advice requests.
type AdviceStore interface {
	GetAdviceRequest(ctx context.Context, id string) (models.AdviceRequest, error)
	FinishAdviceRequest(ctx context.Context, id, status, advice string, sources []string) error
}

// Adviser runs the retrieval pipeline for one query.
type Adviser interface {
	Advise(ctx context.Context, query string, mode rag.Mode) rag.Outcome
}

// Processor consumes the task stream and routes envelopes to their handlers.
// Delivery is at-least-once: every handler tolerates replays, so a crash
// between handling and ack only costs duplicate work.
type Processor struct {
	logger   *log.Logger
	consumer *streams.Consumer
	sessions SessionAPI
	graphs   GraphAPI
	advice   AdviceStore
	engine   Adviser
	stream   string
}

func NewProcessor(logger *log.Logger, cons *streams.Consumer, sessions SessionAPI, graphs GraphAPI, advice AdviceStore, engine Adviser, stream string) *Processor {
	if logger == nil {
		logger = log.New(log.Writer(), "[WORKER] ", log.LstdFlags)
	}
	return &Processor{
		logger:   logger,
		consumer: cons,
		sessions: sessions,
		graphs:   graphs,
		advice:   advice,
		engine:   engine,
		stream:   stream,
	}
}

// Start blocks, consuming the task stream until the context is cancelled.
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Printf("worker processor starting; consuming stream %s", p.stream)

	lastClaim := time.Time{}
	for {
		select {
		case <-ctx.Done():
			p.logger.Printf("worker processor stopping: %v", ctx.Err())
			return nil
		default:
		}

		if time.Since(lastClaim) > time.Minute {
			p.claimStalled(ctx)
			lastClaim = time.Now()
		}

		msgs, err := p.consumer.Read(ctx, p.stream, streams.WithBlock(5*time.Second), streams.WithCount(16))
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Printf("error reading stream: %v", err)
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range msgs {
			p.process(ctx, msg)
		}
	}
}

// claimStalled takes over messages another consumer read but never acked.
func (p *Processor) claimStalled(ctx context.Context) {
	msgs, _, err := p.consumer.AutoClaim(ctx, p.stream, 2*time.Minute, "0-0", 16)
	if err != nil {
		p.logger.Printf("warn: autoclaim failed: %v", err)
		return
	}
	for _, msg := range msgs {
		p.logger.Printf("reclaimed stalled message %s (%s, attempt %d)", msg.ID, msg.Envelope.TaskType, msg.Envelope.Attempt)
		p.process(ctx, msg)
	}
}

func (p *Processor) process(ctx context.Context, msg streams.Message) {
	taskType := msg.Envelope.TaskType
	if err := p.handle(ctx, msg.Envelope); err != nil {
		taskFailures.WithLabelValues(taskType).Inc()
		p.logger.Printf("error handling %s message %s: %v", taskType, msg.ID, err)
	} else {
		tasksProcessed.WithLabelValues(taskType).Inc()
	}
	if err := p.consumer.Ack(ctx, p.stream, msg.ID); err != nil {
		p.logger.Printf("warn: failed to ack message %s: %v", msg.ID, err)
	}
}

func (p *Processor) handle(ctx context.Context, env streams.Envelope) error {
	switch env.TaskType {
	case dispatch.TaskQuestionPrefetch:
		var payload dispatch.PrefetchPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return fmt.Errorf("unmarshal prefetch payload: %w", err)
		}
		return p.handlePrefetch(ctx, payload)
	case dispatch.TaskGraphRefresh:
		var payload dispatch.GraphRefreshPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return fmt.Errorf("unmarshal graph payload: %w", err)
		}
		return p.handleGraphRefresh(ctx, payload)
	case dispatch.TaskAdviceRequest:
		var payload dispatch.AdvicePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return fmt.Errorf("unmarshal advice payload: %w", err)
		}
		return p.handleAdvice(ctx, payload)
	default:
		p.logger.Printf("skip unknown task type %q", env.TaskType)
		return nil
	}
}

func (p *Processor) handlePrefetch(ctx context.Context, payload dispatch.PrefetchPayload) error {
	if payload.SessionID == "" {
		return fmt.Errorf("prefetch payload missing session id")
	}
	err := p.sessions.PrefetchQuestions(ctx, payload.SessionID, payload.NextTurn)
	if errors.Is(err, models.ErrSessionNotFound) {
		// session removed between enqueue and delivery; nothing to do
		return nil
	}
	return err
}

func (p *Processor) handleGraphRefresh(ctx context.Context, payload dispatch.GraphRefreshPayload) error {
	if payload.UserID == "" {
		return fmt.Errorf("graph payload missing user id")
	}
	_, err := p.graphs.Refresh(ctx, payload.UserID)
	return err
}

// handleAdvice runs the retrieval pipeline for a queued advice request.
// Requests already finalized by a previous delivery are skipped, which makes
// redelivery after a crash harmless.
func (p *Processor) handleAdvice(ctx context.Context, payload dispatch.AdvicePayload) error {
	req, err := p.advice.GetAdviceRequest(ctx, payload.RequestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			p.logger.Printf("skip advice request %s: not found", payload.RequestID)
			return nil
		}
		return fmt.Errorf("load advice request: %w", err)
	}
	if req.Status != models.AdviceStatusPending {
		p.logger.Printf("skip advice request %s: already %s", req.ID, req.Status)
		return nil
	}

	mode := rag.Mode(req.Mode)
	outcome := p.engine.Advise(ctx, req.Query, mode)

	// degraded outcomes still carry a user-facing message, so the request
	// completes; a failed status is reserved for an empty result
	status := models.AdviceStatusCompleted
	if outcome.Advice == "" {
		status = models.AdviceStatusFailed
	}
	if err := p.advice.FinishAdviceRequest(ctx, req.ID, status, outcome.Advice, outcome.Sources); err != nil {
		return fmt.Errorf("finish advice request: %w", err)
	}
	return nil
}
