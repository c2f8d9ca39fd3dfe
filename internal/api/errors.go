package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aalmada/BookStore-sub003/internal/domain"
	"github.com/aalmada/BookStore-sub003/internal/eventlog"
	"github.com/aalmada/BookStore-sub003/internal/readmodel"
	"github.com/aalmada/BookStore-sub003/internal/tenant"
)

var (
	// errDuplicate is returned when an Idempotency-Key was already claimed.
	errDuplicate = errors.New("duplicate request")
	// errProjectionLag is returned when a read timed out waiting for the
	// requested minimum version.
	errProjectionLag = errors.New("projection lagging behind requested version")
)

// respondError maps domain and storage errors onto HTTP responses. A
// concurrency conflict turns into 412 when the caller sent a precondition
// and 409 when the conflict was only discovered at append time.
func (s *server) respondError(c echo.Context, err error) error {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, errBody{Reason: verr.Reason, Message: verr.Message})
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, readmodel.ErrNotFound), errors.Is(err, tenant.ErrNotFound):
		return c.JSON(http.StatusNotFound, errBody{Reason: "not-found", Message: err.Error()})
	case errors.Is(err, eventlog.ErrConcurrencyConflict):
		status := http.StatusConflict
		if c.Request().Header.Get("If-Match") != "" {
			status = http.StatusPreconditionFailed
		}
		return c.JSON(status, errBody{Reason: "version-conflict", Message: err.Error()})
	case errors.Is(err, errDuplicate):
		return c.JSON(http.StatusConflict, errBody{Reason: "duplicate-request", Message: err.Error()})
	case errors.Is(err, tenant.ErrExists):
		return c.JSON(http.StatusConflict, errBody{Reason: "tenant-exists", Message: err.Error()})
	case errors.Is(err, eventlog.ErrInvalidKey), errors.Is(err, tenant.ErrInvalidID):
		return c.JSON(http.StatusBadRequest, errBody{Reason: "invalid-id", Message: err.Error()})
	case errors.Is(err, eventlog.ErrTooManyEvents):
		return c.JSON(http.StatusBadRequest, errBody{Reason: "too-many-events", Message: err.Error()})
	case errors.Is(err, readmodel.ErrBadToken):
		return c.JSON(http.StatusBadRequest, errBody{Reason: "bad-page-token", Message: err.Error()})
	case errors.Is(err, errProjectionLag):
		return c.JSON(http.StatusGatewayTimeout, errBody{Reason: "projection-lag", Message: err.Error()})
	case errors.Is(err, eventlog.ErrTransient), errors.Is(err, readmodel.ErrTransient):
		return c.JSON(http.StatusServiceUnavailable, errBody{Reason: "storage-unavailable", Message: "storage temporarily unavailable"})
	default:
		s.logger.WithError(err).Error("request failed")
		return c.JSON(http.StatusInternalServerError, errBody{Reason: "internal", Message: "internal error"})
	}
}
