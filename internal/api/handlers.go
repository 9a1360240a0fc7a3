package api

import (
	"context"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ridecheck/ridecheck/internal/datastore/repository"
	"github.com/ridecheck/ridecheck/internal/errors"
	"github.com/ridecheck/ridecheck/internal/logger"
	"github.com/ridecheck/ridecheck/internal/notification"
	"github.com/ridecheck/ridecheck/internal/shell"
)

// StatusResponse describes the controllers bound to the origin.
type StatusResponse struct {
	State         shell.State `json:"state"`
	CacheName     string      `json:"cache_name,omitempty"`
	Waiting       string      `json:"waiting,omitempty"`
	Claimed       string      `json:"claimed,omitempty"`
	Clients       int         `json:"clients"`
	Notifications int         `json:"notifications"`
}

// GenerationResponse is one stored cache generation.
type GenerationResponse struct {
	Name      string     `json:"name"`
	Entries   int64      `json:"entries"`
	Bytes     int64      `json:"bytes"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	Active    bool       `json:"active"`
}

type notificationActionRequest struct {
	Action string `json:"action"`
}

type syncRequest struct {
	Tag string `json:"tag"`
}

// generationSummarizer is implemented by storages that can report sizes
// without opening each generation.
type generationSummarizer interface {
	Summaries(ctx context.Context) ([]repository.GenerationSummary, error)
}

func (s *Server) status(c echo.Context) error {
	resp := StatusResponse{
		State:         shell.StateUnregistered,
		Claimed:       s.deps.Notifications.Claimed(),
		Clients:       s.deps.Notifications.SubscriberCount(),
		Notifications: len(s.deps.Notifications.List()),
	}
	if active := s.deps.Registration.Active(); active != nil {
		resp.State = active.State()
		resp.CacheName = active.CacheName()
	}
	if waiting := s.deps.Registration.Waiting(); waiting != nil {
		resp.Waiting = waiting.CacheName()
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) activeName() string {
	if active := s.deps.Registration.Active(); active != nil {
		return active.CacheName()
	}
	return ""
}

func (s *Server) listGenerations(c echo.Context) error {
	if s.deps.Storage == nil {
		return errorJSON(c, http.StatusNotImplemented, "no cache storage configured")
	}
	ctx := c.Request().Context()
	active := s.activeName()

	var out []GenerationResponse
	if summarizer, ok := s.deps.Storage.(generationSummarizer); ok {
		summaries, err := summarizer.Summaries(ctx)
		if err != nil {
			s.log.Error("list generations failed", logger.Error(err))
			return errorJSON(c, http.StatusInternalServerError, "failed to list generations")
		}
		for _, g := range summaries {
			created := g.CreatedAt
			out = append(out, GenerationResponse{
				Name: g.Name, Entries: g.Entries, Bytes: g.Bytes, CreatedAt: &created, Active: g.Name == active,
			})
		}
		return c.JSON(http.StatusOK, out)
	}

	names, err := s.deps.Storage.Names(ctx)
	if err != nil {
		s.log.Error("list generations failed", logger.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "failed to list generations")
	}
	slices.Sort(names)
	for _, name := range names {
		resp := GenerationResponse{Name: name, Active: name == active}
		if gen, err := s.deps.Storage.Open(ctx, name); err == nil {
			if keys, err := gen.Keys(ctx); err == nil {
				resp.Entries = int64(len(keys))
			}
		}
		out = append(out, resp)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) deleteGeneration(c echo.Context) error {
	if s.deps.Storage == nil {
		return errorJSON(c, http.StatusNotImplemented, "no cache storage configured")
	}
	name := c.Param("name")
	if name == s.activeName() {
		return errorJSON(c, http.StatusConflict, "cannot delete the active generation")
	}
	deleted, err := s.deps.Storage.Delete(c.Request().Context(), name)
	if err != nil {
		s.log.Error("delete generation failed", logger.String("generation", name), logger.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "failed to delete generation")
	}
	if !deleted {
		return errorJSON(c, http.StatusNotFound, "generation not found")
	}
	s.log.Info("generation deleted", logger.String("generation", name))
	return c.NoContent(http.StatusNoContent)
}

// update installs and activates a fresh controller. It is also how a
// failed install is retried.
func (s *Server) update(c echo.Context) error {
	if s.deps.NewController == nil {
		return errorJSON(c, http.StatusNotImplemented, "updates are not configured")
	}
	next, err := s.deps.NewController()
	if err != nil {
		s.log.Error("build controller failed", logger.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "failed to build controller")
	}

	err = s.deps.Registration.Update(c.Request().Context(), next)
	var installErr *shell.InstallError
	switch {
	case err == nil:
		return s.status(c)
	case errors.Is(err, shell.ErrUpdateInProgress):
		return errorJSON(c, http.StatusConflict, err.Error())
	case errors.As(err, &installErr):
		return errorJSON(c, http.StatusBadGateway, installErr.Error())
	default:
		s.log.Error("update failed", logger.String("generation", next.CacheName()), logger.Error(err))
		s.deps.Reporter.CaptureError(err, "api")
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) push(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPushPayloadBytes+1))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "failed to read payload")
	}
	if len(payload) > maxPushPayloadBytes {
		return errorJSON(c, http.StatusRequestEntityTooLarge, "push payload too large")
	}

	if err := s.deps.Registration.OnPush(c.Request().Context(), payload); err != nil {
		if errors.Is(err, shell.ErrNoActiveController) || errors.Is(err, shell.ErrNotifierUnavailable) {
			return errorJSON(c, http.StatusServiceUnavailable, err.Error())
		}
		s.log.Warn("push display failed", logger.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "failed to display notification")
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) listNotifications(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Notifications.List())
}

func (s *Server) notificationAction(c echo.Context) error {
	var req notificationActionRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	click := shell.NotificationClick{NotificationID: c.Param("id"), Action: req.Action}
	if err := s.deps.Registration.OnNotificationAction(c.Request().Context(), click); err != nil {
		if errors.Is(err, shell.ErrNoActiveController) {
			return errorJSON(c, http.StatusServiceUnavailable, err.Error())
		}
		if errors.Is(err, notification.ErrServiceStopped) {
			return errorJSON(c, http.StatusServiceUnavailable, "notification service stopped")
		}
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) sync(c echo.Context) error {
	var req syncRequest
	if err := c.Bind(&req); err != nil || req.Tag == "" {
		return errorJSON(c, http.StatusBadRequest, "tag is required")
	}
	if err := s.deps.Registration.OnSync(c.Request().Context(), req.Tag); err != nil {
		if errors.Is(err, shell.ErrNoActiveController) {
			return errorJSON(c, http.StatusServiceUnavailable, err.Error())
		}
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
