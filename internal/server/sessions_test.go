package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/guchiswipe/guchiswipe/internal/session"
	"github.com/guchiswipe/guchiswipe/models"
)

func newSessionContext(t *testing.T, method, target, userID string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", userID)
	return ctx, rec
}

func TestGetSessionReturnsOwnSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	h := &SessionsHandler{Store: session.NewStore(db)}

	now := time.Now()
	mock.ExpectQuery(`SELECT id, user_id, topic, turn, max_turns, status`).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "topic", "turn", "max_turns", "status", "title", "latest_insights", "created_at", "updated_at",
		}).AddRow("sess-1", "user-1", "work stress", 1, 3, models.SessionStatusInProgress, "Title", "Insights", now, now))

	ctx, rec := newSessionContext(t, http.MethodGet, "/api/sessions/sess-1", "user-1")
	ctx.SetParamNames("id")
	ctx.SetParamValues("sess-1")

	if err := h.get(ctx); err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got models.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != "sess-1" || got.Topic != "work stress" {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestGetSessionHidesOtherUsers(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	h := &SessionsHandler{Store: session.NewStore(db)}

	now := time.Now()
	mock.ExpectQuery(`SELECT id, user_id, topic, turn, max_turns, status`).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "topic", "turn", "max_turns", "status", "title", "latest_insights", "created_at", "updated_at",
		}).AddRow("sess-1", "owner", "topic", 1, 3, models.SessionStatusInProgress, nil, nil, now, now))

	ctx, _ := newSessionContext(t, http.MethodGet, "/api/sessions/sess-1", "intruder")
	ctx.SetParamNames("id")
	ctx.SetParamValues("sess-1")

	err = h.get(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign session, got %v", err)
	}
}

func TestMutatingHandlersHideOtherUsersSessions(t *testing.T) {
	// Service stays nil so any attempt to mutate a foreign session panics
	// instead of passing silently.
	handlers := []struct {
		name string
		call func(h *SessionsHandler, ctx echo.Context) error
	}{
		{"answer", func(h *SessionsHandler, ctx echo.Context) error { return h.answer(ctx) }},
		{"summarize", func(h *SessionsHandler, ctx echo.Context) error { return h.summarize(ctx) }},
		{"resume", func(h *SessionsHandler, ctx echo.Context) error { return h.resume(ctx) }},
	}
	for _, tc := range handlers {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("sqlmock.New: %v", err)
			}
			defer db.Close()
			h := &SessionsHandler{Store: session.NewStore(db)}

			now := time.Now()
			mock.ExpectQuery(`SELECT id, user_id, topic, turn, max_turns, status`).
				WithArgs("sess-1").
				WillReturnRows(sqlmock.NewRows([]string{
					"id", "user_id", "topic", "turn", "max_turns", "status", "title", "latest_insights", "created_at", "updated_at",
				}).AddRow("sess-1", "user-1", "topic", 1, 3, models.SessionStatusInProgress, nil, nil, now, now))

			e := echo.New()
			body := strings.NewReader(`{"question_id":"q-1","answer":true,"turn":1}`)
			req := httptest.NewRequest(http.MethodPost, "/api/sessions/sess-1", body)
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			ctx := e.NewContext(req, httptest.NewRecorder())
			ctx.Set("user_id", "user-2")
			ctx.SetParamNames("id")
			ctx.SetParamValues("sess-1")

			err = tc.call(h, ctx)
			he, ok := err.(*echo.HTTPError)
			if !ok || he.Code != http.StatusNotFound {
				t.Fatalf("expected 404 for foreign session, got %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestWithAuthRejectsMissingToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := e.NewContext(req, httptest.NewRecorder())

	handler := withAuth(func(echo.Context) error { return nil }, []byte("secret"))
	err := handler(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestWithAuthAcceptsSignedToken(t *testing.T) {
	secret := []byte("secret")
	token, err := SignJWT("user-1", secret, time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	ctx := e.NewContext(req, httptest.NewRecorder())

	called := false
	handler := withAuth(func(c echo.Context) error {
		called = true
		if c.Get("user_id") != "user-1" {
			t.Fatalf("unexpected subject: %v", c.Get("user_id"))
		}
		return nil
	}, secret)
	if err := handler(ctx); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !called {
		t.Fatal("next handler must run for a valid token")
	}
}

func TestWithAuthRejectsWrongSecret(t *testing.T) {
	token, err := SignJWT("user-1", []byte("secret-a"), time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	ctx := e.NewContext(req, httptest.NewRecorder())

	handler := withAuth(func(echo.Context) error { return nil }, []byte("secret-b"))
	err = handler(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong secret, got %v", err)
	}
}
