package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/guchiswipe/guchiswipe/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return NewStore(db), mock, func() { _ = db.Close() }
}

func TestAdvanceTurnIncrements(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT turn, max_turns FROM sessions WHERE id=\$1 FOR UPDATE`).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"turn", "max_turns"}).AddRow(1, 3))
	mock.ExpectExec(`UPDATE sessions SET turn=\$1, status=\$2, updated_at=NOW\(\) WHERE id=\$3`).
		WithArgs(2, models.SessionStatusInProgress, "sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	newTurn, err := store.AdvanceTurn(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("AdvanceTurn: %v", err)
	}
	if newTurn != 2 {
		t.Fatalf("expected turn 2, got %d", newTurn)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAdvanceTurnAtMaxTurns(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT turn, max_turns FROM sessions WHERE id=\$1 FOR UPDATE`).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"turn", "max_turns"}).AddRow(3, 3))
	mock.ExpectRollback()

	_, err := store.AdvanceTurn(context.Background(), "sess-1")
	if !errors.Is(err, models.ErrMaxTurnsReached) {
		t.Fatalf("expected ErrMaxTurnsReached, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAdvanceTurnSessionMissing(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT turn, max_turns FROM sessions WHERE id=\$1 FOR UPDATE`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.AdvanceTurn(context.Background(), "missing")
	if !errors.Is(err, models.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestConsumePrefetchHit(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	stored := []models.Question{{ID: "q1", SessionID: "sess-1", Text: "Do you sleep well?", Turn: 2, Order: 1, Prefetched: true}}
	payload, _ := json.Marshal(stored)

	mock.ExpectQuery(`DELETE FROM prefetched_questions WHERE session_id=\$1 AND turn=\$2 RETURNING payload`).
		WithArgs("sess-1", 2).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

	questions, found, err := store.ConsumePrefetch(context.Background(), "sess-1", 2)
	if err != nil {
		t.Fatalf("ConsumePrefetch: %v", err)
	}
	if !found {
		t.Fatal("expected prefetch hit")
	}
	if len(questions) != 1 || questions[0].Text != "Do you sleep well?" || !questions[0].Prefetched {
		t.Fatalf("unexpected questions: %#v", questions)
	}
}

func TestConsumePrefetchMiss(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery(`DELETE FROM prefetched_questions WHERE session_id=\$1 AND turn=\$2 RETURNING payload`).
		WithArgs("sess-1", 2).
		WillReturnError(sql.ErrNoRows)

	questions, found, err := store.ConsumePrefetch(context.Background(), "sess-1", 2)
	if err != nil {
		t.Fatalf("ConsumePrefetch: %v", err)
	}
	if found || questions != nil {
		t.Fatalf("expected miss, got found=%v questions=%#v", found, questions)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery(`SELECT id, user_id, topic, turn, max_turns, status, title, latest_insights, created_at, updated_at\s+FROM sessions WHERE id=\$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetSession(context.Background(), "missing")
	if !errors.Is(err, models.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestInsertSummaryReplayIsDropped(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	sum := models.Summary{SessionID: "sess-1", Turn: 1, Title: "T", Insights: "I"}

	mock.ExpectExec(`(?s)INSERT INTO summaries.*ON CONFLICT \(session_id, turn\) DO NOTHING`).
		WithArgs("sess-1", 1, "T", "I").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`(?s)INSERT INTO summaries.*ON CONFLICT \(session_id, turn\) DO NOTHING`).
		WithArgs("sess-1", 1, "T", "I").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.InsertSummary(context.Background(), sum); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	// a replay for the same turn conflicts away without an error
	if err := store.InsertSummary(context.Background(), sum); err != nil {
		t.Fatalf("replayed insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFinishAdviceRequestMissing(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec(`UPDATE advice_requests SET status=\$1, advice=\$2, sources=\$3, completed_at=NOW\(\) WHERE id=\$4`).
		WithArgs(models.AdviceStatusCompleted, "advice", []byte(`["u"]`), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.FinishAdviceRequest(context.Background(), "missing", models.AdviceStatusCompleted, "advice", []string{"u"})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}
