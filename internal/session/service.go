package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/guchiswipe/guchiswipe/config"
	"github.com/guchiswipe/guchiswipe/internal/dispatch"
	"github.com/guchiswipe/guchiswipe/internal/helpers"
	"github.com/guchiswipe/guchiswipe/models"
	"github.com/guchiswipe/guchiswipe/provider"
)

// Service owns the session lifecycle: start -> answer loop -> summarize ->
// (continue | complete). Turn advancement is serialized per session at the
// store layer; expensive enrichment goes through the dispatcher.
type Service struct {
	store      *Store
	provider   provider.Provider
	dispatcher *dispatch.Dispatcher
	logger     *log.Logger

	maxTurns      int
	questionCount int
}

func NewService(store *Store, p provider.Provider, d *dispatch.Dispatcher, cfg config.SessionsConfig, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(log.Writer(), "[SESSION] ", log.LstdFlags)
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = models.DefaultMaxTurns
	}
	questionCount := cfg.QuestionCount
	if questionCount <= 0 {
		questionCount = 5
	}
	return &Service{
		store:         store,
		provider:      p,
		dispatcher:    d,
		logger:        logger,
		maxTurns:      maxTurns,
		questionCount: questionCount,
	}
}

// StartResult is returned from Start.
type StartResult struct {
	SessionID string            `json:"session_id"`
	Questions []models.Question `json:"questions"`
}

// Start creates a session at turn 1 and generates its first question batch,
// conditioned on the user's historical insights when any exist.
func (s *Service) Start(ctx context.Context, userID, topic string) (StartResult, error) {
	prior, err := s.store.ListUserInsights(ctx, userID, 20)
	if err != nil {
		// history only enriches the prompt; a read failure is not fatal
		s.logger.Printf("list insights for %s failed: %v", userID, err)
	}

	texts, err := s.generateQuestions(ctx, initialQuestionsPrompt(topic, prior, s.questionCount))
	if err != nil {
		return StartResult{}, fmt.Errorf("generate initial questions: %w", err)
	}

	sess := models.Session{
		ID:       uuid.NewString(),
		UserID:   userID,
		Topic:    topic,
		Turn:     1,
		MaxTurns: s.maxTurns,
		Status:   models.SessionStatusProcessing,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return StartResult{}, err
	}

	questions := buildBatch(sess.ID, 1, texts, false)
	if err := s.store.InsertQuestions(ctx, questions); err != nil {
		return StartResult{}, err
	}
	if err := s.store.SetSessionStatus(ctx, sess.ID, models.SessionStatusInProgress); err != nil {
		return StartResult{}, err
	}

	return StartResult{SessionID: sess.ID, Questions: questions}, nil
}

// RecordAnswer appends one swipe to the ledger. No state transition.
func (s *Service) RecordAnswer(ctx context.Context, sessionID, questionID string, answer bool, hesitation float64, turn int) error {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return err
	}
	return s.store.InsertAnswer(ctx, models.Answer{
		SessionID:  sessionID,
		QuestionID: questionID,
		Answer:     answer,
		Hesitation: hesitation,
		Turn:       turn,
	})
}

// SummarizeResult is returned from Summarize.
type SummarizeResult struct {
	Title    string `json:"title"`
	Insights string `json:"insights"`
	Turn     int    `json:"turn"`
	MaxTurns int    `json:"max_turns"`
}

// Summarize generates and persists the current turn's summary, then
// enqueues next-turn question prefetch and an insight-graph refresh. The
// caller gets the summary immediately; background work never blocks it.
func (s *Service) Summarize(ctx context.Context, sessionID string) (SummarizeResult, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return SummarizeResult{}, err
	}

	answers, err := s.store.ListTurnAnswers(ctx, sessionID, sess.Turn)
	if err != nil {
		return SummarizeResult{}, err
	}
	if len(answers) == 0 {
		return SummarizeResult{}, fmt.Errorf("no answers recorded for turn %d", sess.Turn)
	}

	title, insights, err := s.generateSummary(ctx, sess.Topic, answers)
	if err != nil {
		return SummarizeResult{}, fmt.Errorf("generate summary: %w", err)
	}

	if err := s.store.InsertSummary(ctx, models.Summary{
		SessionID: sessionID,
		Turn:      sess.Turn,
		Title:     title,
		Insights:  insights,
	}); err != nil {
		return SummarizeResult{}, err
	}
	if err := s.store.FinishTurn(ctx, sessionID, title, insights); err != nil {
		return SummarizeResult{}, err
	}

	if sess.Turn < sess.MaxTurns {
		s.dispatcher.Enqueue(ctx, dispatch.TaskQuestionPrefetch, dispatch.PrefetchPayload{
			SessionID: sessionID,
			NextTurn:  sess.Turn + 1,
		})
	}
	s.dispatcher.Enqueue(ctx, dispatch.TaskGraphRefresh, dispatch.GraphRefreshPayload{UserID: sess.UserID})

	return SummarizeResult{Title: title, Insights: insights, Turn: sess.Turn, MaxTurns: sess.MaxTurns}, nil
}

// ContinueResult is returned from Continue.
type ContinueResult struct {
	Turn      int               `json:"turn"`
	Questions []models.Question `json:"questions"`
}

// Continue advances the session by exactly one turn. The store's
// transactional advance guarantees no two concurrent callers succeed for
// the same pre-increment turn. The prefetched batch for the new turn is
// consumed when present, else follow-ups are regenerated synchronously.
func (s *Service) Continue(ctx context.Context, sessionID string) (ContinueResult, error) {
	newTurn, err := s.store.AdvanceTurn(ctx, sessionID)
	if err != nil {
		return ContinueResult{}, err
	}

	questions, found, err := s.store.ConsumePrefetch(ctx, sessionID, newTurn)
	if err != nil {
		s.logger.Printf("consume prefetch for %s turn %d failed: %v", sessionID, newTurn, err)
		found = false
	}
	if !found {
		questions, err = s.regenerateFollowups(ctx, sessionID, newTurn)
		if err != nil {
			return ContinueResult{}, fmt.Errorf("regenerate follow-ups: %w", err)
		}
	}

	if err := s.store.InsertQuestions(ctx, questions); err != nil {
		return ContinueResult{}, err
	}
	return ContinueResult{Turn: newTurn, Questions: questions}, nil
}

// PrefetchQuestions generates the next turn's batch ahead of time. Invoked
// by the worker; re-checks turn bounds so at-least-once delivery stays safe.
func (s *Service) PrefetchQuestions(ctx context.Context, sessionID string, nextTurn int) error {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if nextTurn > sess.MaxTurns || nextTurn <= sess.Turn {
		s.logger.Printf("skip prefetch for %s: next turn %d out of bounds (turn=%d max=%d)",
			sessionID, nextTurn, sess.Turn, sess.MaxTurns)
		return nil
	}

	summary, err := s.store.GetLatestSummary(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("no summary to prefetch from for %s", sessionID)
		}
		return err
	}

	texts, err := s.generateQuestions(ctx, followupQuestionsPrompt(sess.Topic, summary.Insights, s.questionCount))
	if err != nil {
		return err
	}
	return s.store.SavePrefetch(ctx, sessionID, nextTurn, buildBatch(sessionID, nextTurn, texts, true))
}

func (s *Service) regenerateFollowups(ctx context.Context, sessionID string, turn int) ([]models.Question, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	summary, err := s.store.GetLatestSummary(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	texts, err := s.generateQuestions(ctx, followupQuestionsPrompt(sess.Topic, summary.Insights, s.questionCount))
	if err != nil {
		return nil, err
	}
	// prefetched=false marks the synchronous fallback path for observability
	return buildBatch(sessionID, turn, texts, false), nil
}

// generateQuestions runs one structured generation, retrying on transport
// errors and on schema mismatches alike.
func (s *Service) generateQuestions(ctx context.Context, prompt string) ([]string, error) {
	return retry.DoWithData(
		func() ([]string, error) {
			raw, err := s.provider.Generate(ctx, prompt)
			if err != nil {
				return nil, err
			}
			var parsed struct {
				Questions []string `json:"questions"`
			}
			if err := unmarshalStructured(raw, &parsed); err != nil {
				return nil, err
			}
			var texts []string
			for _, q := range parsed.Questions {
				if t := strings.TrimSpace(q); t != "" {
					texts = append(texts, t)
				}
			}
			if len(texts) == 0 {
				return nil, fmt.Errorf("empty question batch")
			}
			return texts, nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(300*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

func (s *Service) generateSummary(ctx context.Context, topic string, answers []TurnAnswer) (string, string, error) {
	type result struct{ title, insights string }
	res, err := retry.DoWithData(
		func() (result, error) {
			raw, err := s.provider.Generate(ctx, summaryPrompt(topic, answers))
			if err != nil {
				return result{}, err
			}
			var parsed struct {
				Title    string `json:"title"`
				Insights string `json:"insights"`
			}
			if err := unmarshalStructured(raw, &parsed); err != nil {
				return result{}, err
			}
			if strings.TrimSpace(parsed.Insights) == "" {
				return result{}, fmt.Errorf("empty insights")
			}
			return result{title: parsed.Title, insights: parsed.Insights}, nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(300*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", "", err
	}
	return res.title, res.insights, nil
}

// unmarshalStructured pulls the first JSON value out of a model reply and
// decodes it. Replies wrapped in code fences or prose are tolerated.
func unmarshalStructured(raw string, v any) error {
	cleaned, err := helpers.ExtractJSON(raw)
	if err != nil {
		return fmt.Errorf("extract json: %w", err)
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("decode structured output: %w", err)
	}
	return nil
}

func buildBatch(sessionID string, turn int, texts []string, prefetched bool) []models.Question {
	questions := make([]models.Question, 0, len(texts))
	for i, text := range texts {
		questions = append(questions, models.Question{
			ID:         uuid.NewString(),
			SessionID:  sessionID,
			Text:       text,
			Turn:       turn,
			Order:      i + 1,
			Prefetched: prefetched,
		})
	}
	return questions
}
