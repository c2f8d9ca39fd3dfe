package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aalmada/BookStore-sub003/internal/queue"
	"github.com/aalmada/BookStore-sub003/internal/tenant"
)

type createTenantReq struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type tenantList struct {
	Items []tenant.Info `json:"items"`
}

type rebuildResult struct {
	Status     string `json:"status"`
	Tenant     string `json:"tenant"`
	Projection string `json:"projection"`
}

// rebuildable names the projections the rebuild endpoint accepts. "all"
// resets every projection for the tenant.
var rebuildable = map[string]bool{
	"all":        true,
	"books":      true,
	"booksearch": true,
	"bookstats":  true,
	"authors":    true,
	"publishers": true,
	"categories": true,
	"users":      true,
}

// systemOnly resolves the request tenant and requires it to be the system
// tenant. Tenant administration is an operator concern. On failure the
// response has already been written.
func (s *server) systemOnly(c echo.Context) (bool, error) {
	tenantID, err := s.tenantOf(c)
	if err != nil {
		return false, s.respondError(c, err)
	}
	if _, err := s.callerOf(c); err != nil {
		return false, c.String(http.StatusUnauthorized, err.Error())
	}
	if tenantID != tenant.System {
		return false, c.String(http.StatusForbidden, "tenant administration requires the system tenant")
	}
	return true, nil
}

func (s *server) createTenant(c echo.Context) error {
	if ok, err := s.systemOnly(c); !ok {
		return err
	}
	var req createTenantReq
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid request body")
	}
	info := tenant.Info{ID: req.ID, Name: req.Name, CreatedAt: time.Now().UnixMilli()}
	if err := s.cfg.Registry.Create(c.Request().Context(), info); err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, info)
}

func (s *server) listTenants(c echo.Context) error {
	if ok, err := s.systemOnly(c); !ok {
		return err
	}
	items, err := s.cfg.Registry.List(c.Request().Context())
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, tenantList{Items: items})
}

// rebuildProjection schedules a projection rebuild for the request's
// tenant. The projector picks the request up from the control queue,
// resets the projection's mark and replays the tenant's feed.
func (s *server) rebuildProjection(c echo.Context) error {
	tenantID, err := s.tenantOf(c)
	if err != nil {
		return s.respondError(c, err)
	}
	if _, err := s.callerOf(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	name := c.Param("name")
	if !rebuildable[name] {
		return c.JSON(http.StatusNotFound, errBody{Reason: "not-found", Message: "unknown projection " + name})
	}
	if s.cfg.Control == nil {
		return c.String(http.StatusServiceUnavailable, "rebuild queue is not configured")
	}
	msg := queue.Message{Kind: queue.KindRebuild, Tenant: tenantID, Projection: name}
	if err := s.cfg.Control.Enqueue(c.Request().Context(), msg); err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusAccepted, rebuildResult{Status: "scheduled", Tenant: tenantID, Projection: name})
}
