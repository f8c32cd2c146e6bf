package middleware

import "github.com/labstack/echo/v4"

const userIDKey = "user_id"

// UserID returns the authenticated owner ID stored by JWTAuth, or "" when
// the request is anonymous.
func UserID(c echo.Context) string {
	if s, ok := c.Get(userIDKey).(string); ok {
		return s
	}
	return ""
}

// rateSubject is UserID with a placeholder for anonymous callers so rate
// limit keys are never empty.
func rateSubject(c echo.Context) string {
	if id := UserID(c); id != "" {
		return id
	}
	return "anon"
}
