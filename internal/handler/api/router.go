package api

import (
	"github.com/labstack/echo/v4"
)

// Router composes the API handlers into one route registrar.
type Router struct {
	dashboard *DashboardHandler
	stream    *StreamHandler
}

func NewRouter(dashboard *DashboardHandler, stream *StreamHandler) *Router {
	return &Router{dashboard: dashboard, stream: stream}
}

func (r *Router) RegisterRoutes(e *echo.Echo) {
	r.dashboard.RegisterRoutes(e)
	r.stream.RegisterRoutes(e)
}
