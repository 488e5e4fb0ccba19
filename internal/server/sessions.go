package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/guchiswipe/guchiswipe/internal/session"
	"github.com/guchiswipe/guchiswipe/models"
)

// SessionsHandler exposes the swipe-session lifecycle.
type SessionsHandler struct {
	Service *session.Service
	Store   *session.Store
}

func (h *SessionsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.POST("", h.start)
	g.GET("/:id", h.get)
	g.POST("/:id/answers", h.answer)
	g.POST("/:id/summary", h.summarize)
	g.POST("/:id/continue", h.resume)
}

func (h *SessionsHandler) start(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req struct {
		Topic string `json:"topic"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Topic) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic required")
	}
	res, err := h.Service.Start(c.Request().Context(), userID, req.Topic)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, res)
}

// ownedSession loads the session and hides it behind a 404 when it does not
// belong to the authenticated user, so foreign session ids read as absent.
func (h *SessionsHandler) ownedSession(c echo.Context) (models.Session, error) {
	sess, err := h.Store.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return models.Session{}, echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return models.Session{}, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if sess.UserID != c.Get("user_id").(string) {
		return models.Session{}, echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return sess, nil
}

func (h *SessionsHandler) get(c echo.Context) error {
	sess, err := h.ownedSession(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *SessionsHandler) answer(c echo.Context) error {
	var req struct {
		QuestionID string  `json:"question_id"`
		Answer     bool    `json:"answer"`
		Hesitation float64 `json:"hesitation"`
		Turn       int     `json:"turn"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.QuestionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question_id required")
	}
	if _, err := h.ownedSession(c); err != nil {
		return err
	}
	err := h.Service.RecordAnswer(c.Request().Context(), c.Param("id"), req.QuestionID, req.Answer, req.Hesitation, req.Turn)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *SessionsHandler) summarize(c echo.Context) error {
	if _, err := h.ownedSession(c); err != nil {
		return err
	}
	res, err := h.Service.Summarize(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *SessionsHandler) resume(c echo.Context) error {
	if _, err := h.ownedSession(c); err != nil {
		return err
	}
	res, err := h.Service.Continue(c.Request().Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSessionNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		case errors.Is(err, models.ErrMaxTurnsReached):
			return echo.NewHTTPError(http.StatusConflict, "session already used all turns")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}
