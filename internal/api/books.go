package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/aalmada/BookStore-sub003/internal/domain"
)

type createBookReq struct {
	ID          string            `json:"id"`
	Titles      map[string]string `json:"titles"`
	Prices      map[string]int64  `json:"prices"`
	AuthorIDs   []string          `json:"authorIds"`
	PublisherID string            `json:"publisherId"`
	CategoryIDs []string          `json:"categoryIds"`
}

type setTitleReq struct {
	Locale string `json:"locale"`
	Title  string `json:"title"`
}

type setPriceReq struct {
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
}

type authorRefReq struct {
	AuthorID string `json:"authorId"`
}

type categoryRefReq struct {
	CategoryID string `json:"categoryId"`
}

type publisherRefReq struct {
	PublisherID string `json:"publisherId"`
}

func (s *server) createBook(c echo.Context) error {
	var req createBookReq
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid request body")
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	b := &domain.Book{}
	c.Response().Header().Set(echo.HeaderLocation, "/api/books/"+id)
	return s.exec(c, domain.StreamBook, id, true, b, func() error {
		return b.Create(id, req.Titles, req.Prices, req.AuthorIDs, req.PublisherID, req.CategoryIDs,
			s.cfg.DefaultLocale, s.cfg.DefaultCurrency)
	})
}

func (s *server) getBook(c echo.Context) error {
	return getDoc(s, c, s.cfg.Stores.Books, c.Param("id"))
}

func (s *server) getBookStats(c echo.Context) error {
	return getDoc(s, c, s.cfg.Stores.Stats, c.Param("id"))
}

func (s *server) setBookTitle(c echo.Context) error {
	var req setTitleReq
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid request body")
	}
	b := &domain.Book{}
	return s.exec(c, domain.StreamBook, c.Param("id"), false, b, func() error {
		return b.SetTitle(req.Locale, req.Title)
	})
}

func (s *server) setBookPrice(c echo.Context) error {
	var req setPriceReq
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid request body")
	}
	b := &domain.Book{}
	return s.exec(c, domain.StreamBook, c.Param("id"), false, b, func() error {
		return b.SetPrice(req.Currency, req.Amount)
	})
}

func (s *server) changeBookPublisher(c echo.Context) error {
	var req publisherRefReq
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid request body")
	}
	b := &domain.Book{}
	return s.exec(c, domain.StreamBook, c.Param("id"), false, b, func() error {
		return b.ChangePublisher(req.PublisherID)
	})
}

func (s *server) addBookAuthor(c echo.Context) error {
	var req authorRefReq
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid request body")
	}
	b := &domain.Book{}
	return s.exec(c, domain.StreamBook, c.Param("id"), false, b, func() error {
		return b.AddAuthor(req.AuthorID)
	})
}

func (s *server) removeBookAuthor(c echo.Context) error {
	b := &domain.Book{}
	return s.exec(c, domain.StreamBook, c.Param("id"), false, b, func() error {
		return b.RemoveAuthor(c.Param("authorId"))
	})
}

func (s *server) categorizeBook(c echo.Context) error {
	var req categoryRefReq
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid request body")
	}
	b := &domain.Book{}
	return s.exec(c, domain.StreamBook, c.Param("id"), false, b, func() error {
		return b.Categorize(req.CategoryID)
	})
}

func (s *server) uncategorizeBook(c echo.Context) error {
	b := &domain.Book{}
	return s.exec(c, domain.StreamBook, c.Param("id"), false, b, func() error {
		return b.Uncategorize(c.Param("categoryId"))
	})
}

func (s *server) scheduleBookPromotion(c echo.Context) error {
	var req domain.Promotion
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid request body")
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	b := &domain.Book{}
	return s.exec(c, domain.StreamBook, c.Param("id"), false, b, func() error {
		return b.SchedulePromotion(req)
	})
}

func (s *server) cancelBookPromotion(c echo.Context) error {
	b := &domain.Book{}
	return s.exec(c, domain.StreamBook, c.Param("id"), false, b, func() error {
		return b.CancelPromotion(c.Param("promotionId"))
	})
}

func (s *server) deleteBook(c echo.Context) error {
	b := &domain.Book{}
	return s.exec(c, domain.StreamBook, c.Param("id"), false, b, func() error {
		return b.Delete()
	})
}

func (s *server) restoreBook(c echo.Context) error {
	b := &domain.Book{}
	return s.exec(c, domain.StreamBook, c.Param("id"), false, b, func() error {
		return b.Restore()
	})
}

// listBooks is the catalog's hot path and the one endpoint instrumented
// with stage timings.
func (s *server) listBooks(c echo.Context) error {
	m, ctx := newRequestMetrics(c.Request().Context(), s.logger, eventListBooks, "/api/books")

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

	opts, err := listOptions(c)
	if err != nil {
		m.Log(http.StatusBadRequest, err)
		return c.String(http.StatusBadRequest, "invalid page size")
	}
	m.SetPageTokenProvided(opts.Token != "")

	fetchStart := time.Now()
	page, err := s.cfg.Stores.Books.List(ctx, tenantID, opts)
	m.ObserveFetch(time.Since(fetchStart))
	if err != nil {
		m.SetErrorStage("storage")
		resp := s.respondError(c, err)
		m.Log(c.Response().Status, err)
		return resp
	}
	m.SetItemsReturned(len(page.Items))
	m.SetHasNextPage(page.NextToken != "")

	m.Log(http.StatusOK, nil)
	return c.JSON(http.StatusOK, page)
}
