package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aalmada/BookStore-sub003/internal/domain"
	"github.com/aalmada/BookStore-sub003/internal/readmodel"
	"github.com/aalmada/BookStore-sub003/internal/version"
)

// awaitTimeout bounds how long a read waits for the projector to reach a
// requested minimum version.
const awaitTimeout = 5 * time.Second

// getDoc serves one projected document. The document's version travels as
// the ETag, If-None-Match revalidates against it, and a minVersion query
// parameter makes the read wait for the caller's own write to project.
func getDoc[D readmodel.Doc](s *server, c echo.Context, store readmodel.Store[D], id string) error {
	ctx := c.Request().Context()
	tenantID, err := s.tenantOf(c)
	if err != nil {
		return s.respondError(c, err)
	}
	if _, err := s.callerOf(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	if err := awaitMinVersion(c, store, tenantID, id); err != nil {
		return s.respondError(c, err)
	}

	doc, err := store.Get(ctx, tenantID, id)
	if err != nil {
		return s.respondError(c, err)
	}
	if doc.IsDeleted() && c.QueryParam("includeDeleted") == "" {
		return c.JSON(http.StatusNotFound, errBody{Reason: "not-found", Message: "document is deleted"})
	}

	current := doc.DocVersion()
	c.Response().Header().Set("ETag", version.Token(current))
	if inm := c.Request().Header.Get("If-None-Match"); version.Matches(inm, current) {
		return c.NoContent(http.StatusNotModified)
	}
	return c.JSON(http.StatusOK, doc)
}

// awaitMinVersion blocks until the document reaches the version named by
// the minVersion query parameter. The wait is bounded so a stalled
// projector cannot hold requests open forever.
func awaitMinVersion[D readmodel.Doc](c echo.Context, store readmodel.Store[D], tenantID, id string) error {
	raw := c.QueryParam("minVersion")
	if raw == "" {
		return nil
	}
	want, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || want < 0 {
		return &domain.ValidationError{Reason: "bad-min-version", Message: "minVersion must be a non-negative integer"}
	}
	if want == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), awaitTimeout)
	defer cancel()
	_, err = readmodel.Await(ctx, 0, want, func(ctx context.Context) (int64, error) {
		doc, err := store.Get(ctx, tenantID, id)
		if err != nil {
			return 0, err
		}
		return doc.DocVersion(), nil
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return errProjectionLag
	}
	return err
}

// listDocs serves one page of projected documents.
func listDocs[D readmodel.Doc](s *server, c echo.Context, store readmodel.Store[D]) error {
	ctx := c.Request().Context()
	tenantID, err := s.tenantOf(c)
	if err != nil {
		return s.respondError(c, err)
	}
	if _, err := s.callerOf(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}

	opts, err := listOptions(c)
	if err != nil {
		return c.String(http.StatusBadRequest, "invalid page size")
	}
	page, err := store.List(ctx, tenantID, opts)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

// listOptions reads the paging query parameters.
func listOptions(c echo.Context) (readmodel.ListOptions, error) {
	opts := readmodel.ListOptions{
		Token:          c.QueryParam("pageToken"),
		IncludeDeleted: c.QueryParam("includeDeleted") != "",
	}
	if raw := c.QueryParam("pageSize"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return opts, errors.New("invalid page size")
		}
		opts.PageSize = size
	}
	return opts, nil
}
