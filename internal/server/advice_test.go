package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/guchiswipe/guchiswipe/internal/dispatch"
	"github.com/guchiswipe/guchiswipe/internal/session"
)

type capturePublisher struct {
	tasks []string
}

func (c *capturePublisher) PublishRaw(_ context.Context, _, taskType string, _ interface{}) (string, error) {
	c.tasks = append(c.tasks, taskType)
	return "1-0", nil
}

func TestAdviceRequestValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty query", `{"query": "", "mode": "both"}`},
		{"unknown mode", `{"query": "help", "mode": "psychic"}`},
	}
	h := &AdviceHandler{}
	e := echo.New()
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/advice", strings.NewReader(tc.body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		ctx := e.NewContext(req, httptest.NewRecorder())
		ctx.Set("user_id", "user-1")

		err := h.advise(ctx)
		he, ok := err.(*echo.HTTPError)
		if !ok || he.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %v", tc.name, err)
		}
	}
}

func TestEnqueueStoresAndPublishes(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	pub := &capturePublisher{}
	h := &AdviceHandler{
		Store:      session.NewStore(db),
		Dispatcher: dispatch.New(pub, "tasks", nil),
	}

	mock.ExpectExec(`INSERT INTO advice_requests`).
		WithArgs(sqlmock.AnyArg(), "user-1", "I can't sleep", "suggestions", "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/advice/requests",
		strings.NewReader(`{"query": "I can't sleep", "mode": "suggestions"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")

	if err := h.enqueue(ctx); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["request_id"] == "" || resp["status"] != "pending" {
		t.Fatalf("unexpected response: %#v", resp)
	}
	if len(pub.tasks) != 1 || pub.tasks[0] != dispatch.TaskAdviceRequest {
		t.Fatalf("unexpected published tasks: %#v", pub.tasks)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPollHidesOtherUsersRequests(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	h := &AdviceHandler{Store: session.NewStore(db)}

	mock.ExpectQuery(`SELECT id, user_id, query, mode, status, advice, sources`).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "query", "mode", "status", "advice", "sources", "created_at", "completed_at",
		}).AddRow("req-1", "owner", "q", "both", "pending", nil, []byte(`[]`), time.Now(), nil))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/advice/requests/req-1", nil)
	ctx := e.NewContext(req, httptest.NewRecorder())
	ctx.Set("user_id", "intruder")
	ctx.SetParamNames("id")
	ctx.SetParamValues("req-1")

	err = h.poll(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign request, got %v", err)
	}
}
