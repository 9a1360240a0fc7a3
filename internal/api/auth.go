package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const (
	defaultPushRate  = 5
	defaultPushBurst = 10
	pushRateExpiry   = 3 * time.Minute
)

// requireAdmin checks the bearer token when one is configured.
func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := s.settings.AdminToken
		if token == "" {
			return next(c)
		}
		auth := c.Request().Header.Get(echo.HeaderAuthorization)
		given, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
			c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="ridecheck"`)
			return errorJSON(c, http.StatusUnauthorized, "invalid or missing admin token")
		}
		return next(c)
	}
}

func (s *Server) pushRateLimiter() echo.MiddlewareFunc {
	limit := s.settings.PushRateLimit
	if limit <= 0 {
		limit = defaultPushRate
	}
	burst := s.settings.PushBurst
	if burst <= 0 {
		burst = defaultPushBurst
	}
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(limit),
				Burst:     burst,
				ExpiresIn: pushRateExpiry,
			},
		),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return errorJSON(c, http.StatusForbidden, "unable to identify client")
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return errorJSON(c, http.StatusTooManyRequests, "too many push requests, please wait before trying again")
		},
	})
}
