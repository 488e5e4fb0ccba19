package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/guchiswipe/guchiswipe/internal/graph"
)

// GraphHandler serves the per-user insight graph, regenerating when the
// cached copy has gone stale.
type GraphHandler struct {
	Builder *graph.Builder
}

func (h *GraphHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.GET("", h.get)
}

func (h *GraphHandler) get(c echo.Context) error {
	userID := c.Get("user_id").(string)
	g, err := h.Builder.Get(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, g)
}
