package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ridecheck/ridecheck/internal/errors"
	"github.com/ridecheck/ridecheck/internal/logger"
	"github.com/ridecheck/ridecheck/internal/shell"
)

// proxy answers every application request through the registration.
// A network failure with nothing cached becomes 502. The shell fetches full
// responses, so the client's own validators are answered here.
func (s *Server) proxy(c echo.Context) error {
	req := c.Request()
	resp, err := s.deps.Registration.Route(req.Context(), req)
	if err != nil {
		if errors.Is(err, shell.ErrNotActive) {
			return c.String(http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable))
		}
		s.log.Debug("upstream unavailable",
			logger.String("method", req.Method),
			logger.String("uri", req.RequestURI),
			logger.Error(err))
		return c.String(http.StatusBadGateway, http.StatusText(http.StatusBadGateway))
	}

	h := c.Response().Header()
	for k, vs := range resp.Header {
		h[k] = append([]string(nil), vs...)
	}
	if notModified(req, resp) {
		h.Del(echo.HeaderContentLength)
		c.Response().WriteHeader(http.StatusNotModified)
		return nil
	}
	c.Response().WriteHeader(resp.Status)
	if req.Method == http.MethodHead || len(resp.Body) == 0 {
		return nil
	}
	_, err = c.Response().Write(resp.Body)
	return err
}

// notModified reports whether the client's If-None-Match, or failing that
// If-Modified-Since, matches resp.
func notModified(req *http.Request, resp *shell.Response) bool {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return false
	}
	if resp.Status != http.StatusOK {
		return false
	}
	if inm := req.Header.Get("If-None-Match"); inm != "" {
		etag := resp.Header.Get("ETag")
		if etag == "" {
			return false
		}
		for tag := range strings.SplitSeq(inm, ",") {
			tag = strings.TrimSpace(tag)
			if tag == "*" || weakETag(tag) == weakETag(etag) {
				return true
			}
		}
		return false
	}
	since, err := http.ParseTime(req.Header.Get("If-Modified-Since"))
	if err != nil {
		return false
	}
	modified, err := http.ParseTime(resp.Header.Get("Last-Modified"))
	if err != nil {
		return false
	}
	return !modified.Truncate(time.Second).After(since)
}

func weakETag(tag string) string {
	return strings.TrimPrefix(tag, "W/")
}
