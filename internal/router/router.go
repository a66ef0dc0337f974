package router

import (
	"database/sql"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/certificate-issuance/internal/handler"
	"github.com/iliyamo/certificate-issuance/internal/middleware"
	"github.com/iliyamo/certificate-issuance/internal/utils"
)

// RegisterRoutes registers the unauthenticated health check.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterAuth registers the login endpoint.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	e.POST("/v1/auth/login", a.Login)
}

// RegisterAdmin registers issuance and template administration behind the
// JWT gate and the ADMIN role.
func RegisterAdmin(e *echo.Echo, jwtSecret string, c *handler.CertificateHandler, t *handler.TemplateHandler) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(utils.RoleAdmin))

	// Issuance. Batch issuance accepts either a fresh spreadsheet or a
	// previously uploaded one via /uploads/:id/process.
	g.POST("/certificates", c.Generate)
	g.POST("/certificates/batch", c.Batch)
	g.POST("/uploads/:id/process", c.Process)
	g.GET("/certificates/:id/pdf", c.PDF)
	g.POST("/certificates/:id/regenerate", c.Regenerate)
	g.DELETE("/certificates/:id", c.Deactivate)
	g.DELETE("/certificates/:id/purge", c.Purge)

	// Template management. Create and update take multipart forms so the
	// background image travels with the layout.
	g.GET("/templates", t.List)
	g.POST("/templates", t.Create)
	g.GET("/templates/:id", t.Get)
	g.PUT("/templates/:id", t.Update)
	g.PUT("/templates/:id/activate", t.Activate)
	g.DELETE("/templates/:id", t.Delete)
	g.GET("/templates/:id/preview", t.Preview)
}

// RegisterPublic registers download and verification. verify runs the
// given middleware in order, typically rate limit, business hours, cache.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, download []echo.MiddlewareFunc, verify []echo.MiddlewareFunc) {
	e.GET("/download/:code", p.Download, download...)
	e.GET("/verify/:code", p.Verify, verify...)
}
