package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/guchiswipe/guchiswipe/models"
)

// Store persists the session aggregate: sessions, questions, the answer
// ledger, per-turn summaries, prefetched question batches and advice
// requests.
type Store struct {
	DB *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) CreateSession(ctx context.Context, sess models.Session) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO sessions (id, user_id, topic, turn, max_turns, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())`,
		sess.ID, sess.UserID, sess.Topic, sess.Turn, sess.MaxTurns, sess.Status)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (models.Session, error) {
	var sess models.Session
	var title, insights sql.NullString
	err := s.DB.QueryRowContext(ctx, `
SELECT id, user_id, topic, turn, max_turns, status, title, latest_insights, created_at, updated_at
FROM sessions WHERE id=$1`, id).Scan(
		&sess.ID, &sess.UserID, &sess.Topic, &sess.Turn, &sess.MaxTurns, &sess.Status,
		&title, &insights, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, models.ErrSessionNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("get session: %w", err)
	}
	sess.Title = title.String
	sess.LatestInsights = insights.String
	return sess, nil
}

func (s *Store) SetSessionStatus(ctx context.Context, id, status string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE sessions SET status=$1, updated_at=NOW() WHERE id=$2`, status, id)
	if err != nil {
		return fmt.Errorf("set session status: %w", err)
	}
	return requireRow(res)
}

// FinishTurn records the generated summary on the session row itself:
// latest insights, title and the completed status, in one update.
func (s *Store) FinishTurn(ctx context.Context, id, title, insights string) error {
	res, err := s.DB.ExecContext(ctx, `
UPDATE sessions SET title=$1, latest_insights=$2, status=$3, updated_at=NOW() WHERE id=$4`,
		title, insights, models.SessionStatusCompleted, id)
	if err != nil {
		return fmt.Errorf("finish turn: %w", err)
	}
	return requireRow(res)
}

// AdvanceTurn performs the transactional turn increment. The row lock
// serializes concurrent callers; the turn bump and status flip commit
// together or not at all.
func (s *Store) AdvanceTurn(ctx context.Context, id string) (int, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var turn, maxTurns int
	err = tx.QueryRowContext(ctx,
		`SELECT turn, max_turns FROM sessions WHERE id=$1 FOR UPDATE`, id).Scan(&turn, &maxTurns)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, models.ErrSessionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock session: %w", err)
	}
	if turn >= maxTurns {
		return 0, models.ErrMaxTurnsReached
	}

	newTurn := turn + 1
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET turn=$1, status=$2, updated_at=NOW() WHERE id=$3`,
		newTurn, models.SessionStatusInProgress, id); err != nil {
		return 0, fmt.Errorf("advance turn: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return newTurn, nil
}

func (s *Store) InsertQuestions(ctx context.Context, questions []models.Question) error {
	for _, q := range questions {
		if _, err := s.DB.ExecContext(ctx, `
INSERT INTO questions (id, session_id, text, turn, ord, prefetched, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW())`,
			q.ID, q.SessionID, q.Text, q.Turn, q.Order, q.Prefetched); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
	}
	return nil
}

func (s *Store) ListQuestions(ctx context.Context, sessionID string, turn int) ([]models.Question, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, session_id, text, turn, ord, prefetched
FROM questions WHERE session_id=$1 AND turn=$2 ORDER BY ord ASC`, sessionID, turn)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var out []models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.SessionID, &q.Text, &q.Turn, &q.Order, &q.Prefetched); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Store) InsertAnswer(ctx context.Context, a models.Answer) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO answers (session_id, question_id, answer, hesitation_time, turn, answered_at)
VALUES ($1,$2,$3,$4,$5,NOW())`,
		a.SessionID, a.QuestionID, a.Answer, a.Hesitation, a.Turn)
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

// TurnAnswer pairs a question's text with the recorded swipe for summary
// generation.
type TurnAnswer struct {
	QuestionText string
	Answer       bool
	Hesitation   float64
}

func (s *Store) ListTurnAnswers(ctx context.Context, sessionID string, turn int) ([]TurnAnswer, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT q.text, a.answer, a.hesitation_time
FROM answers a JOIN questions q ON q.id = a.question_id
WHERE a.session_id=$1 AND a.turn=$2 ORDER BY a.answered_at ASC`, sessionID, turn)
	if err != nil {
		return nil, fmt.Errorf("list turn answers: %w", err)
	}
	defer rows.Close()

	var out []TurnAnswer
	for rows.Next() {
		var ta TurnAnswer
		if err := rows.Scan(&ta.QuestionText, &ta.Answer, &ta.Hesitation); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out = append(out, ta)
	}
	return out, rows.Err()
}

func (s *Store) InsertSummary(ctx context.Context, sum models.Summary) error {
	// One immutable summary per turn: a replayed write for the same turn is
	// dropped rather than duplicated.
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO summaries (session_id, turn, title, insights, created_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (session_id, turn) DO NOTHING`,
		sum.SessionID, sum.Turn, sum.Title, sum.Insights)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

func (s *Store) GetLatestSummary(ctx context.Context, sessionID string) (models.Summary, error) {
	var sum models.Summary
	err := s.DB.QueryRowContext(ctx, `
SELECT session_id, turn, title, insights, created_at
FROM summaries WHERE session_id=$1 ORDER BY turn DESC LIMIT 1`, sessionID).Scan(
		&sum.SessionID, &sum.Turn, &sum.Title, &sum.Insights, &sum.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Summary{}, sql.ErrNoRows
	}
	if err != nil {
		return models.Summary{}, fmt.Errorf("get latest summary: %w", err)
	}
	return sum, nil
}

func (s *Store) SavePrefetch(ctx context.Context, sessionID string, turn int, questions []models.Question) error {
	payload, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("marshal prefetch: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO prefetched_questions (session_id, turn, payload, created_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (session_id, turn) DO UPDATE SET payload=EXCLUDED.payload, created_at=NOW()`,
		sessionID, turn, payload)
	if err != nil {
		return fmt.Errorf("save prefetch: %w", err)
	}
	return nil
}

// ConsumePrefetch atomically reads and deletes the prefetched batch for the
// given turn, so at most one caller can use it.
func (s *Store) ConsumePrefetch(ctx context.Context, sessionID string, turn int) ([]models.Question, bool, error) {
	var payload []byte
	err := s.DB.QueryRowContext(ctx, `
DELETE FROM prefetched_questions WHERE session_id=$1 AND turn=$2 RETURNING payload`,
		sessionID, turn).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("consume prefetch: %w", err)
	}

	var questions []models.Question
	if err := json.Unmarshal(payload, &questions); err != nil {
		return nil, false, fmt.Errorf("unmarshal prefetch: %w", err)
	}
	return questions, true, nil
}

// ListUserInsights returns the user's most recent insight texts, newest
// first, for conditioning question generation and graph building.
func (s *Store) ListUserInsights(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT sm.insights
FROM summaries sm JOIN sessions ss ON ss.id = sm.session_id
WHERE ss.user_id=$1 ORDER BY sm.created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list user insights: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var insights string
		if err := rows.Scan(&insights); err != nil {
			return nil, fmt.Errorf("scan insights: %w", err)
		}
		out = append(out, insights)
	}
	return out, rows.Err()
}

func (s *Store) CreateAdviceRequest(ctx context.Context, req models.AdviceRequest) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO advice_requests (id, user_id, query, mode, status, created_at)
VALUES ($1,$2,$3,$4,$5,NOW())`,
		req.ID, req.UserID, req.Query, req.Mode, req.Status)
	if err != nil {
		return fmt.Errorf("create advice request: %w", err)
	}
	return nil
}

func (s *Store) GetAdviceRequest(ctx context.Context, id string) (models.AdviceRequest, error) {
	var req models.AdviceRequest
	var advice sql.NullString
	var sources []byte
	var completedAt sql.NullTime
	err := s.DB.QueryRowContext(ctx, `
SELECT id, user_id, query, mode, status, advice, sources, created_at, completed_at
FROM advice_requests WHERE id=$1`, id).Scan(
		&req.ID, &req.UserID, &req.Query, &req.Mode, &req.Status, &advice, &sources,
		&req.CreatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AdviceRequest{}, sql.ErrNoRows
	}
	if err != nil {
		return models.AdviceRequest{}, fmt.Errorf("get advice request: %w", err)
	}
	req.Advice = advice.String
	if completedAt.Valid {
		req.CompletedAt = &completedAt.Time
	}
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &req.Sources); err != nil {
			return models.AdviceRequest{}, fmt.Errorf("unmarshal sources: %w", err)
		}
	}
	return req, nil
}

// FinishAdviceRequest records a terminal status for an async advice run.
func (s *Store) FinishAdviceRequest(ctx context.Context, id, status, advice string, sources []string) error {
	payload, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	res, err := s.DB.ExecContext(ctx, `
UPDATE advice_requests SET status=$1, advice=$2, sources=$3, completed_at=NOW() WHERE id=$4`,
		status, advice, payload, id)
	if err != nil {
		return fmt.Errorf("finish advice request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}
