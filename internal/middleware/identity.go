package middleware

import "github.com/labstack/echo/v4"

// subject returns the authenticated user id, or "anon" on public routes.
func subject(c echo.Context) string {
	if s, ok := c.Get(CtxUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}
