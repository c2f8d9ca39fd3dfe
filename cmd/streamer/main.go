package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/aalmada/BookStore-sub003/internal/api"
	"github.com/aalmada/BookStore-sub003/internal/auth"
	"github.com/aalmada/BookStore-sub003/internal/azure"
	"github.com/aalmada/BookStore-sub003/internal/config"
	"github.com/aalmada/BookStore-sub003/internal/notify"
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
	registry := tenant.NewTableRegistry(tables.NewClient(cfg.Storage.TenantsTable))

	authn, err := auth.New(auth.Config{
		JWKSURL:   cfg.Auth.JWKSURL,
		Audience:  cfg.Auth.Audience,
		Issuer:    cfg.Auth.Issuer,
		DevSecret: cfg.Auth.DevSecret,
	})
	if err != nil {
		logger.WithError(err).Fatal("auth")
	}

	rc := cfg.Redis.Client()
	broker := notify.NewBroker()
	go notify.NewSubscriber(rc, cfg.Redis.Channel, broker, logger).Run(context.Background())

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization,
			"X-Tenant",
		},
	}))

	api.RegisterStream(e, api.Config{
		Auth:          authn,
		Registry:      registry,
		Broker:        broker,
		Logger:        logger,
		DefaultTenant: cfg.Tenancy.DefaultTenant,
	})

	listenAddr := fmt.Sprintf(":%d", cfg.Server.StreamPort)
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}
	e.Logger.Fatal(e.Start(listenAddr))
}
