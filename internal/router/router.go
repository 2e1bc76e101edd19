package router // package router wires handlers and middleware onto echo routes

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/park-reservation/internal/handler"
	"github.com/iliyamo/park-reservation/internal/metrics"
	"github.com/iliyamo/park-reservation/internal/middleware"
	"github.com/iliyamo/park-reservation/internal/model"
)

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, checks map[string]handler.Check) {
	e.GET("/healthz", handler.Health(checks))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// RegisterAuth registers session endpoints under /v1/auth and the profile
// endpoints under /v1/me.  limiter guards register and login.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register, nonNil(limiter)...)
	g.POST("/login", a.Login, nonNil(limiter)...)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	me := e.Group("/v1/me", middleware.JWTAuth(jwtSecret))
	me.GET("", a.Me)
	me.PUT("/address", a.UpdateAddress)
}

// RegisterAvailability registers the public capacity queries.  cache, when
// set, fronts the range query.
func RegisterAvailability(e *echo.Echo, h *handler.AvailabilityHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/availability", h.Range, nonNil(cache)...)
	e.GET("/v1/availability/:date", h.Day)
}

// RegisterReservations registers the booking and transfer endpoints.  Both
// USER and ADMIN accounts may book.
func RegisterReservations(e *echo.Echo, r *handler.ReservationHandler, t *handler.TransferHandler, jwtSecret string) {
	authed := []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin),
	}

	g := e.Group("/v1/reservations", authed...)
	g.POST("", r.Create)
	g.GET("", r.List)
	g.GET("/:id", r.Get)
	g.DELETE("/:id", r.Cancel)
	g.POST("/:id/users", r.AddUser)
	g.DELETE("/:id/users/:userId", r.RemoveUser)
	g.POST("/:id/transfers", t.Initiate)

	tg := e.Group("/v1/transfers", authed...)
	tg.GET("", t.List)
	tg.POST("/:id/accept", t.Accept)
	tg.POST("/:id/decline", t.Decline)
}

// RegisterAdmin registers ADMIN-only endpoints under /v1/admin.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string) {
	g := e.Group("/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.GET("/reservations", h.Roster)
}

func nonNil(mw echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if mw == nil {
		return nil
	}
	return []echo.MiddlewareFunc{mw}
}
