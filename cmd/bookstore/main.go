package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/aalmada/BookStore-sub003/internal/api"
	"github.com/aalmada/BookStore-sub003/internal/auth"
	"github.com/aalmada/BookStore-sub003/internal/azure"
	"github.com/aalmada/BookStore-sub003/internal/cache"
	"github.com/aalmada/BookStore-sub003/internal/config"
	"github.com/aalmada/BookStore-sub003/internal/eventlog"
	"github.com/aalmada/BookStore-sub003/internal/notify"
	"github.com/aalmada/BookStore-sub003/internal/queue"
	"github.com/aalmada/BookStore-sub003/internal/readmodel"
	"github.com/aalmada/BookStore-sub003/internal/search"
	"github.com/aalmada/BookStore-sub003/internal/tenant"
)

func main() {
	cfg, err := config.Load(os.Getenv("BOOKSTORE_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.Logging.Logger()

	if cfg.Storage.ConnectionString == "" {
		logger.Fatal("missing storage connection string")
	}
	tables, err := azure.NewTableService(cfg.Storage.ConnectionString)
	if err != nil {
		logger.WithError(err).Fatal("table service")
	}
	log := eventlog.NewTableLog(tables.NewClient(cfg.Storage.EventsTable))
	registry := tenant.NewTableRegistry(tables.NewClient(cfg.Storage.TenantsTable))

	rc := cfg.Redis.Client()

	qc, err := azure.NewQueue(cfg.Storage.ConnectionString, cfg.Storage.ControlQueue)
	if err != nil {
		logger.WithError(err).Fatal("control queue")
	}

	authn, err := auth.New(auth.Config{
		JWKSURL:   cfg.Auth.JWKSURL,
		Audience:  cfg.Auth.Audience,
		Issuer:    cfg.Auth.Issuer,
		DevSecret: cfg.Auth.DevSecret,
	})
	if err != nil {
		logger.WithError(err).Fatal("auth")
	}

	broker := notify.NewBroker()
	go notify.NewSubscriber(rc, cfg.Redis.Channel, broker, logger).Run(context.Background())

	apiCfg := api.Config{
		Auth: authn,
		Log:  log,
		Stores: api.Stores{
			Books:      docStore[readmodel.BookDoc](tables, cfg, rc, "books", "Book"),
			Authors:    docStore[readmodel.AuthorDoc](tables, cfg, rc, "authors", "Author"),
			Publishers: docStore[readmodel.PublisherDoc](tables, cfg, rc, "publishers", "Publisher"),
			Categories: docStore[readmodel.CategoryDoc](tables, cfg, rc, "categories", "Category"),
			Users:      docStore[readmodel.UserDoc](tables, cfg, rc, "users", "User"),
			Stats:      docStore[readmodel.BookStatsDoc](tables, cfg, rc, "bookstats", "BookStats"),
		},
		Registry:        registry,
		Broker:          broker,
		Control:         queue.New(qc),
		Deduper:         api.NewRedisDeduper(rc, cfg.Server.IdempotencyTTL()),
		Logger:          logger,
		DefaultTenant:   cfg.Tenancy.DefaultTenant,
		DefaultLocale:   cfg.Tenancy.DefaultLocale,
		DefaultCurrency: cfg.Tenancy.DefaultCurrency,
		SearchPageSize:  cfg.Server.SearchPageSize,
	}

	if cfg.OpenSearch.Enabled && cfg.OpenSearch.URL != "" {
		indexer, err := search.NewIndexer(search.Config{
			URL:           cfg.OpenSearch.URL,
			Username:      cfg.OpenSearch.Username,
			Password:      cfg.OpenSearch.Password,
			TLSSkipVerify: cfg.OpenSearch.Insecure,
			Index:         cfg.OpenSearch.Index,
		}, logger)
		if err != nil {
			logger.WithError(err).Fatal("opensearch")
		}
		apiCfg.Searcher = indexer
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization,
			"X-Tenant", "Idempotency-Key", "If-Match", "If-None-Match",
		},
		ExposeHeaders: []string{"ETag", "Location"},
	}))
	e.Use(echoprometheus.NewMiddleware("bookstore"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, apiCfg)

	e.Server.ReadTimeout = cfg.Server.ReadTimeout()
	e.Server.WriteTimeout = cfg.Server.WriteTimeout()
	e.Server.IdleTimeout = cfg.Server.IdleTimeout()

	listenAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}
	e.Logger.Fatal(e.Start(listenAddr))
}

// docStore builds the cache-fronted store of one projection. kind is the
// cache key segment and must match the projection's notification kind, or
// the commit listener's evictions miss.
func docStore[D readmodel.Doc](tables *aztables.ServiceClient, cfg *config.Config, rc *redis.Client, projection, kind string) readmodel.Store[D] {
	base := readmodel.NewTableStore[D](tables.NewClient(cfg.Storage.DocTable(projection)))
	return cache.NewStore[D](base, rc, kind, cfg.Cache.TTL())
}
