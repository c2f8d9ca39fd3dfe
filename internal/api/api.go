package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/aalmada/BookStore-sub003/internal/domain"
	"github.com/aalmada/BookStore-sub003/internal/readmodel"
	"github.com/aalmada/BookStore-sub003/internal/tenant"
)

type server struct {
	cfg    Config
	logger *logrus.Logger
}

// Register mounts every route on e.
func Register(e *echo.Echo, cfg Config) {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &server{cfg: cfg, logger: logger}

	e.GET("/healthz", s.health)

	g := e.Group("/api", GzipRequestMiddleware)

	g.POST("/books", s.createBook)
	g.GET("/books", s.listBooks)
	g.GET("/books/:id", s.getBook)
	g.GET("/books/:id/stats", s.getBookStats)
	g.PUT("/books/:id/title", s.setBookTitle)
	g.PUT("/books/:id/price", s.setBookPrice)
	g.PUT("/books/:id/publisher", s.changeBookPublisher)
	g.POST("/books/:id/authors", s.addBookAuthor)
	g.DELETE("/books/:id/authors/:authorId", s.removeBookAuthor)
	g.POST("/books/:id/categories", s.categorizeBook)
	g.DELETE("/books/:id/categories/:categoryId", s.uncategorizeBook)
	g.POST("/books/:id/promotions", s.scheduleBookPromotion)
	g.DELETE("/books/:id/promotions/:promotionId", s.cancelBookPromotion)
	g.DELETE("/books/:id", s.deleteBook)
	g.POST("/books/:id/restore", s.restoreBook)

	g.GET("/search", s.searchBooks)

	registerCatalog(g, s, catalogEntity[readmodel.AuthorDoc]{
		path:       "authors",
		streamType: domain.StreamAuthor,
		store:      cfg.Stores.Authors,
		fresh:      func() catalogAggregate { return &domain.Author{} },
	})
	registerCatalog(g, s, catalogEntity[readmodel.PublisherDoc]{
		path:       "publishers",
		streamType: domain.StreamPublisher,
		store:      cfg.Stores.Publishers,
		fresh:      func() catalogAggregate { return &domain.Publisher{} },
	})
	registerCatalog(g, s, catalogEntity[readmodel.CategoryDoc]{
		path:       "categories",
		streamType: domain.StreamCategory,
		store:      cfg.Stores.Categories,
		fresh:      func() catalogAggregate { return &domain.Category{} },
	})

	g.POST("/users", s.registerUser)
	g.GET("/users/me", s.getMe)
	g.PUT("/users/me", s.renameMe)
	g.DELETE("/users/me", s.deleteMe)
	g.POST("/users/me/restore", s.restoreMe)
	g.PUT("/users/me/favorites/:bookId", s.favoriteBook)
	g.DELETE("/users/me/favorites/:bookId", s.unfavoriteBook)
	g.PUT("/users/me/ratings/:bookId", s.rateBook)

	g.GET("/changes", s.streamChanges)

	admin := g.Group("/admin")
	admin.POST("/tenants", s.createTenant)
	admin.GET("/tenants", s.listTenants)
	admin.POST("/projections/:name/rebuild", s.rebuildProjection)
}

// RegisterStream mounts only the change stream and the health probe, for the
// dedicated streamer binary. Auth, Registry and Broker are the config fields
// it reads.
func RegisterStream(e *echo.Echo, cfg Config) {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &server{cfg: cfg, logger: logger}

	e.GET("/healthz", s.health)
	e.GET("/api/changes", s.streamChanges)
}

// tenantOf resolves the request's tenant from the X-Tenant header and
// checks it is registered.
func (s *server) tenantOf(c echo.Context) (string, error) {
	id, err := tenant.Resolve(c.Request().Header.Get("X-Tenant"), s.cfg.DefaultTenant)
	if err != nil {
		return "", err
	}
	if _, err := s.cfg.Registry.Get(c.Request().Context(), id); err != nil {
		return "", err
	}
	return id, nil
}

// callerOf authenticates the request and returns the caller's subject.
func (s *server) callerOf(c echo.Context) (string, error) {
	return s.cfg.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
}

func (s *server) health(c echo.Context) error {
	if _, err := s.cfg.Registry.Get(c.Request().Context(), tenant.System); err != nil {
		return c.String(http.StatusServiceUnavailable, "tenant registry unavailable")
	}
	return c.NoContent(http.StatusOK)
}
