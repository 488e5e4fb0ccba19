package server

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/guchiswipe/guchiswipe/internal/dispatch"
	"github.com/guchiswipe/guchiswipe/internal/rag"
	"github.com/guchiswipe/guchiswipe/internal/session"
	"github.com/guchiswipe/guchiswipe/models"
)

// AdviceHandler exposes the retrieval pipeline both synchronously and as
// queued requests polled by ID.
type AdviceHandler struct {
	Engine     *rag.Engine
	Store      *session.Store
	Dispatcher *dispatch.Dispatcher
}

func (h *AdviceHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.POST("", h.advise)
	g.POST("/requests", h.enqueue)
	g.GET("/requests/:id", h.poll)
}

type adviceRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode"`
}

func (r *adviceRequest) validate() (rag.Mode, error) {
	if strings.TrimSpace(r.Query) == "" {
		return "", errors.New("query required")
	}
	mode := rag.Mode(r.Mode)
	switch mode {
	case "":
		return rag.ModeBoth, nil
	case rag.ModeSimilarCases, rag.ModeSuggestions, rag.ModeBoth:
		return mode, nil
	}
	return "", errors.New("mode must be similar_cases, suggestions or both")
}

// advise runs the pipeline inline and returns the outcome in one response.
func (h *AdviceHandler) advise(c echo.Context) error {
	var req adviceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	mode, err := req.validate()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	outcome := h.Engine.Advise(c.Request().Context(), req.Query, mode)
	return c.JSON(http.StatusOK, outcome)
}

// enqueue stores a pending request and hands it to the worker.
func (h *AdviceHandler) enqueue(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req adviceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	mode, err := req.validate()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	stored := models.AdviceRequest{
		ID:     uuid.NewString(),
		UserID: userID,
		Query:  req.Query,
		Mode:   string(mode),
		Status: models.AdviceStatusPending,
	}
	if err := h.Store.CreateAdviceRequest(c.Request().Context(), stored); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.Dispatcher.Enqueue(c.Request().Context(), dispatch.TaskAdviceRequest, dispatch.AdvicePayload{RequestID: stored.ID})

	return c.JSON(http.StatusAccepted, map[string]string{
		"request_id": stored.ID,
		"status":     stored.Status,
	})
}

func (h *AdviceHandler) poll(c echo.Context) error {
	req, err := h.Store.GetAdviceRequest(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "advice request not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if req.UserID != c.Get("user_id").(string) {
		return echo.NewHTTPError(http.StatusNotFound, "advice request not found")
	}
	return c.JSON(http.StatusOK, req)
}
