package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/certificate-issuance/internal/config"
)

// VerifyWindow answers 403 outside the configured business hours. now is
// the clock; nil means time.Now.
func VerifyWindow(w config.VerifyWindowConfig, now func() time.Time) echo.MiddlewareFunc {
	if now == nil {
		now = time.Now
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if !w.Enabled {
			return next
		}
		return func(c echo.Context) error {
			if !w.Open(now()) {
				return c.JSON(http.StatusForbidden, echo.Map{
					"error":   "outside_verification_hours",
					"message": "la verificación pública no está disponible en este horario",
				})
			}
			return next(c)
		}
	}
}
