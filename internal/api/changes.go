package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// streamChanges pushes the tenant's change notifications over server-sent
// events. EventSource clients cannot set headers, so the bearer token may
// ride the token query parameter instead.
func (s *server) streamChanges(c echo.Context) error {
	if s.cfg.Broker == nil {
		return c.String(http.StatusServiceUnavailable, "change stream is not configured")
	}
	tenantID, err := s.tenantOf(c)
	if err != nil {
		return s.respondError(c, err)
	}
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		if token := c.QueryParam("token"); token != "" {
			authHeader = "Bearer " + token
		}
	}
	if _, err := s.cfg.Auth.UserIDFromAuthHeader(authHeader); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}

	// The server's write timeout would cut the stream mid-life; lift it for
	// this connection.
	_ = http.NewResponseController(c.Response()).SetWriteDeadline(time.Time{})

	events, cancel := s.cfg.Broker.Subscribe(tenantID)
	defer cancel()

	// An immediate comment line flushes the response headers so the client
	// sees the stream as open before the first change arrives.
	if _, err := c.Response().Write([]byte(": connected\n\n")); err != nil {
		return nil
	}
	flusher.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, open := <-events:
			if !open {
				return nil
			}
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				return nil
			}
			if _, err := c.Response().Write(msg); err != nil {
				return nil
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}
