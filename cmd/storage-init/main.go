package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/sirupsen/logrus"

	"github.com/aalmada/BookStore-sub003/internal/azure"
	"github.com/aalmada/BookStore-sub003/internal/config"
	"github.com/aalmada/BookStore-sub003/internal/search"
	"github.com/aalmada/BookStore-sub003/internal/tenant"
)

var projections = []string{"books", "booksearch", "bookstats", "authors", "publishers", "categories", "users"}

func main() {
	cfg, err := config.Load(os.Getenv("BOOKSTORE_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.Logging.Logger()
	logger.Info("storage init starting")

	if cfg.Storage.ConnectionString == "" {
		logger.Fatal("missing storage connection string")
	}

	ctx := context.Background()

	names := []string{cfg.Storage.EventsTable, cfg.Storage.TenantsTable}
	for _, p := range projections {
		names = append(names, cfg.Storage.DocTable(p))
	}
	if err := createTables(ctx, cfg.Storage.ConnectionString, names); err != nil {
		logger.WithError(err).Fatal("create tables")
	}

	if err := createQueues(ctx, cfg.Storage.ConnectionString, []string{cfg.Storage.ControlQueue}); err != nil {
		logger.WithError(err).Fatal("create queues")
	}

	if err := seedDefaultTenant(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("seed default tenant")
	}

	if cfg.OpenSearch.Enabled && cfg.OpenSearch.URL != "" {
		if err := createSearchIndex(ctx, cfg, logger); err != nil {
			logger.WithError(err).Fatal("create search index")
		}
	}

	logger.Info("storage init complete")
}

func createTables(ctx context.Context, connStr string, names []string) error {
	svc, err := azure.NewTableService(connStr)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == "" {
			continue
		}
		c := svc.NewClient(name)
		_, err := c.CreateTable(ctx, nil)
		if err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
				return err
			}
		}
	}
	return nil
}

func createQueues(ctx context.Context, connStr string, names []string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		q, err := azure.NewQueue(connStr, name)
		if err != nil {
			return err
		}
		_, err = q.Create(ctx, nil)
		if err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists") {
				return err
			}
		}
	}
	return nil
}

func seedDefaultTenant(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	id := cfg.Tenancy.DefaultTenant
	if id == "" || id == tenant.System {
		return nil
	}
	svc, err := azure.NewTableService(cfg.Storage.ConnectionString)
	if err != nil {
		return err
	}
	registry := tenant.NewTableRegistry(svc.NewClient(cfg.Storage.TenantsTable))
	err = registry.Create(ctx, tenant.Info{ID: id, Name: id, CreatedAt: time.Now().UnixMilli()})
	if errors.Is(err, tenant.ErrExists) {
		return nil
	}
	if err == nil {
		logger.WithField("tenant", id).Info("default tenant registered")
	}
	return err
}

func createSearchIndex(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	indexer, err := search.NewIndexer(search.Config{
		URL:           cfg.OpenSearch.URL,
		Username:      cfg.OpenSearch.Username,
		Password:      cfg.OpenSearch.Password,
		TLSSkipVerify: cfg.OpenSearch.Insecure,
		Index:         cfg.OpenSearch.Index,
	}, logger)
	if err != nil {
		return err
	}
	return indexer.EnsureIndex(ctx)
}
