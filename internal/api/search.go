package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// searchBooks serves full-text queries against the search index.
func (s *server) searchBooks(c echo.Context) error {
	if s.cfg.Searcher == nil {
		return c.String(http.StatusServiceUnavailable, "search is not configured")
	}
	m, ctx := newRequestMetrics(c.Request().Context(), s.logger, eventSearchBooks, "/api/search")

	authStart := time.Now()
	tenantID, err := s.tenantOf(c)
	if err != nil {
		resp := s.respondError(c, err)
		m.Log(c.Response().Status, err)
		return resp
	}
	if _, err := s.callerOf(c); err != nil {
		m.SetErrorStage("auth")
		m.Log(http.StatusUnauthorized, err)
		return c.String(http.StatusUnauthorized, err.Error())
	}
	m.ObserveAuth(time.Since(authStart))

	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		m.Log(http.StatusBadRequest, nil)
		return c.String(http.StatusBadRequest, "missing query")
	}
	size := s.cfg.SearchPageSize
	if raw := c.QueryParam("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			m.Log(http.StatusBadRequest, nil)
			return c.String(http.StatusBadRequest, "invalid size")
		}
		size = n
	}

	fetchStart := time.Now()
	res, err := s.cfg.Searcher.Search(ctx, tenantID, query, size)
	m.ObserveFetch(time.Since(fetchStart))
	if err != nil {
		m.SetErrorStage("search")
		m.Log(http.StatusBadGateway, err)
		return c.JSON(http.StatusBadGateway, errBody{Reason: "search-unavailable", Message: "search backend unavailable"})
	}
	m.SetItemsReturned(len(res.Items))

	m.Log(http.StatusOK, nil)
	return c.JSON(http.StatusOK, res)
}
