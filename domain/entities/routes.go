package entities

import "github.com/labstack/echo/v4"

// RegisterRoutes registers the entity and query routes.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group("/api")

	g.POST("/entities", h.Create)
	g.PATCH("/entities", h.Update)
	g.POST("/query", h.Query)
}
