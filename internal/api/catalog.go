package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/aalmada/BookStore-sub003/internal/domain"
	"github.com/aalmada/BookStore-sub003/internal/readmodel"
)

// catalogAggregate is the command surface shared by authors, publishers
// and categories.
type catalogAggregate interface {
	domain.Aggregate
	Create(id, name string) error
	Rename(name string) error
	Delete() error
	Restore() error
}

// catalogEntity wires one catalog entity's routes.
type catalogEntity[D readmodel.Doc] struct {
	path       string
	streamType string
	store      readmodel.Store[D]
	fresh      func() catalogAggregate
}

type catalogCreateReq struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type renameReq struct {
	Name string `json:"name"`
}

func registerCatalog[D readmodel.Doc](g *echo.Group, s *server, ent catalogEntity[D]) {
	g.POST("/"+ent.path, func(c echo.Context) error {
		var req catalogCreateReq
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid request body")
		}
		id := req.ID
		if id == "" {
			id = uuid.NewString()
		}
		agg := ent.fresh()
		c.Response().Header().Set(echo.HeaderLocation, "/api/"+ent.path+"/"+id)
		return s.exec(c, ent.streamType, id, true, agg, func() error {
			return agg.Create(id, req.Name)
		})
	})
	g.GET("/"+ent.path, func(c echo.Context) error {
		return listDocs(s, c, ent.store)
	})
	g.GET("/"+ent.path+"/:id", func(c echo.Context) error {
		return getDoc(s, c, ent.store, c.Param("id"))
	})
	g.PUT("/"+ent.path+"/:id", func(c echo.Context) error {
		var req renameReq
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid request body")
		}
		agg := ent.fresh()
		return s.exec(c, ent.streamType, c.Param("id"), false, agg, func() error {
			return agg.Rename(req.Name)
		})
	})
	g.DELETE("/"+ent.path+"/:id", func(c echo.Context) error {
		agg := ent.fresh()
		return s.exec(c, ent.streamType, c.Param("id"), false, agg, func() error {
			return agg.Delete()
		})
	})
	g.POST("/"+ent.path+"/:id/restore", func(c echo.Context) error {
		agg := ent.fresh()
		return s.exec(c, ent.streamType, c.Param("id"), false, agg, func() error {
			return agg.Restore()
		})
	})
}
