package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ridecheck/ridecheck/internal/logger"
)

func setSSEHeaders(c echo.Context) {
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

func sendSSEMessage(c echo.Context, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}

// streamEvents subscribes an open application instance to notification,
// window and claim events.
func (s *Server) streamEvents(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), maxSSEDuration)
	defer cancel()

	events, unsubscribe := s.deps.Notifications.Subscribe()
	defer unsubscribe()

	setSSEHeaders(c)
	c.Response().WriteHeader(http.StatusOK)

	clientID := uuid.NewString()
	if err := sendSSEMessage(c, "connected", map[string]string{"client_id": clientID}); err != nil {
		return nil
	}
	s.log.Debug("event stream connected", logger.String("client_id", clientID), logger.String("ip", c.RealIP()))
	defer s.log.Debug("event stream closed", logger.String("client_id", clientID))

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := sendSSEMessage(c, ev.Type, ev); err != nil {
				return nil
			}
		case <-ticker.C:
			if err := sendSSEMessage(c, "heartbeat", map[string]string{"timestamp": time.Now().Format(time.RFC3339)}); err != nil {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}
