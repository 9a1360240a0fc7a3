package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ManifestResponse lists the resources the active controller seeds.
type ManifestResponse struct {
	CacheName string   `json:"cache_name"`
	Manifest  []string `json:"manifest"`
}

// registerPWARoutes registers the shell manifest. Its content changes
// with every deployed version, so it must never be served from a cache.
func (s *Server) registerPWARoutes(g *echo.Group) {
	g.GET("/manifest", func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		active := s.deps.Registration.Active()
		if active == nil {
			return errorJSON(c, http.StatusServiceUnavailable, "no active cache controller")
		}
		return c.JSON(http.StatusOK, ManifestResponse{
			CacheName: active.CacheName(),
			Manifest:  active.Manifest(),
		})
	})
}
