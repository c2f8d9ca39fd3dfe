package api

import (
	"context"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"github.com/aalmada/BookStore-sub003/internal/domain"
	"github.com/aalmada/BookStore-sub003/internal/queue"
	"github.com/aalmada/BookStore-sub003/internal/version"
)

// maxBodyBytes caps command bodies. Commands are small, anything larger is
// a mistake or abuse.
const maxBodyBytes = 1 << 20

// decodeBody unmarshals a JSON request body, rejecting unknown fields.
func decodeBody(c echo.Context, out any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// exec runs one command against a stream: authenticate, load the aggregate
// unless the command creates the stream, check the caller's If-Match
// precondition against the loaded version, apply the mutation and append
// the raised events. The new version is returned in the body and as the
// ETag validator.
func (s *server) exec(c echo.Context, streamType, id string, create bool, agg domain.Aggregate, mutate func() error) error {
	ctx := c.Request().Context()
	tenantID, err := s.tenantOf(c)
	if err != nil {
		return s.respondError(c, err)
	}
	userID, err := s.callerOf(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	release, err := s.claimIdempotency(c, tenantID, userID)
	if err != nil {
		return s.respondError(c, err)
	}

	if !create {
		if err := domain.Load(ctx, s.cfg.Log, tenantID, streamType, id, agg); err != nil {
			release()
			return s.respondError(c, err)
		}
		if ifMatch := c.Request().Header.Get("If-Match"); ifMatch != "" {
			if current := domain.VersionOf(agg); !version.Matches(ifMatch, current) {
				release()
				c.Response().Header().Set("ETag", version.Token(current))
				return c.JSON(http.StatusPreconditionFailed, errBody{
					Reason:  "version-conflict",
					Message: "entity changed since the version named by If-Match",
				})
			}
		}
	}

	if err := mutate(); err != nil {
		release()
		return s.respondError(c, err)
	}
	res, err := domain.Save(ctx, s.cfg.Log, tenantID, streamType, id, agg)
	if err != nil {
		release()
		return s.respondError(c, err)
	}
	s.nudge(ctx, tenantID)

	status := http.StatusOK
	if create {
		status = http.StatusCreated
	}
	c.Response().Header().Set("ETag", version.Token(res.Version))
	return c.JSON(status, commandResult{ID: id, Version: res.Version})
}

// claimIdempotency claims the request's Idempotency-Key, if one was sent.
// The returned release hands the key back when the command does not commit,
// so the client's retry is not rejected for a write that never happened.
func (s *server) claimIdempotency(c echo.Context, tenantID, userID string) (func(), error) {
	key := c.Request().Header.Get("Idempotency-Key")
	if key == "" || s.cfg.Deduper == nil {
		return func() {}, nil
	}
	ctx := c.Request().Context()
	fresh, err := s.cfg.Deduper.Add(ctx, tenantID, userID, key)
	if err != nil {
		// Dedupe is best effort, an unavailable backend must not block
		// writes.
		s.logger.WithError(err).Warn("idempotency check unavailable")
		return func() {}, nil
	}
	if !fresh {
		return nil, errDuplicate
	}
	release := func() {
		if err := s.cfg.Deduper.Remove(ctx, tenantID, userID, key); err != nil {
			s.logger.WithError(err).Warn("failed to release idempotency key")
		}
	}
	return release, nil
}

// nudge wakes the projector after a write so read models converge faster
// than the poll interval.
func (s *server) nudge(ctx context.Context, tenantID string) {
	if s.cfg.Control == nil {
		return
	}
	msg := queue.Message{Kind: queue.KindNudge, Tenant: tenantID}
	if err := s.cfg.Control.Enqueue(ctx, msg); err != nil {
		s.logger.WithError(err).WithField("tenant", tenantID).Warn("projector nudge failed")
	}
}
