package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aalmada/BookStore-sub003/internal/azure"
	"github.com/aalmada/BookStore-sub003/internal/cache"
	"github.com/aalmada/BookStore-sub003/internal/config"
	"github.com/aalmada/BookStore-sub003/internal/eventlog"
	"github.com/aalmada/BookStore-sub003/internal/fanout"
	"github.com/aalmada/BookStore-sub003/internal/notify"
	"github.com/aalmada/BookStore-sub003/internal/projection"
	"github.com/aalmada/BookStore-sub003/internal/queue"
	"github.com/aalmada/BookStore-sub003/internal/readmodel"
	"github.com/aalmada/BookStore-sub003/internal/search"
	"github.com/aalmada/BookStore-sub003/internal/tenant"
)

// runner is what every projection.Runner exposes to the control loop.
type runner interface {
	Name() string
	Run(ctx context.Context)
	Wake()
	Rebuild(ctx context.Context, tenantID string) error
}

// rebuildOrder rebuilds lookup sources before the projections that read
// them, so a full rebuild does not leave booksearch waiting on catalog
// marks.
var rebuildOrder = []string{"authors", "publishers", "categories", "users", "books", "bookstats", "booksearch"}

func main() {
	cfg, err := config.Load(os.Getenv("BOOKSTORE_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.Logging.Logger()
	logger.Info("projector starting")

	if cfg.Storage.ConnectionString == "" {
		logger.Fatal("missing storage connection string")
	}
	tables, err := azure.NewTableService(cfg.Storage.ConnectionString)
	if err != nil {
		logger.WithError(err).Fatal("table service")
	}
	log := eventlog.NewTableLog(tables.NewClient(cfg.Storage.EventsTable))
	registry := tenant.NewTableRegistry(tables.NewClient(cfg.Storage.TenantsTable))

	booksStore := readmodel.NewTableStore[readmodel.BookDoc](tables.NewClient(cfg.Storage.DocTable("books")))
	authorsStore := readmodel.NewTableStore[readmodel.AuthorDoc](tables.NewClient(cfg.Storage.DocTable("authors")))
	publishersStore := readmodel.NewTableStore[readmodel.PublisherDoc](tables.NewClient(cfg.Storage.DocTable("publishers")))
	categoriesStore := readmodel.NewTableStore[readmodel.CategoryDoc](tables.NewClient(cfg.Storage.DocTable("categories")))
	usersStore := readmodel.NewTableStore[readmodel.UserDoc](tables.NewClient(cfg.Storage.DocTable("users")))
	statsStore := readmodel.NewTableStore[readmodel.BookStatsDoc](tables.NewClient(cfg.Storage.DocTable("bookstats")))
	searchStore := readmodel.NewTableStore[readmodel.BookSearchDoc](tables.NewClient(cfg.Storage.DocTable("booksearch")))

	rc := cfg.Redis.Client()

	var indexer *search.Indexer
	if cfg.OpenSearch.Enabled && cfg.OpenSearch.URL != "" {
		indexer, err = search.NewIndexer(search.Config{
			URL:           cfg.OpenSearch.URL,
			Username:      cfg.OpenSearch.Username,
			Password:      cfg.OpenSearch.Password,
			TLSSkipVerify: cfg.OpenSearch.Insecure,
			Index:         cfg.OpenSearch.Index,
		}, logger)
		if err != nil {
			logger.WithError(err).Fatal("opensearch")
		}
	}
	listener := fanout.NewListener(
		cache.NewInvalidator(rc),
		notify.NewPublisher(rc, cfg.Redis.Channel),
		indexer,
		logger,
	)

	runCfg := projection.Config{
		Logger:    logger,
		Listener:  listener,
		Tenants:   registry,
		BatchSize: cfg.Projector.BatchSize,
		Interval:  cfg.Projector.Interval(),
	}
	// booksearch resolves names from the catalog stores, so its batches may
	// not run ahead of the catalog marks.
	searchCfg := runCfg
	searchCfg.Ceiling = projection.MinMark(authorsStore, publishersStore, categoriesStore)

	runners := map[string]runner{}
	for _, r := range []runner{
		projection.NewRunner[readmodel.BookDoc](projection.NewBooks(), log, booksStore, runCfg),
		projection.NewRunner[readmodel.AuthorDoc](projection.NewAuthors(), log, authorsStore, runCfg),
		projection.NewRunner[readmodel.PublisherDoc](projection.NewPublishers(), log, publishersStore, runCfg),
		projection.NewRunner[readmodel.CategoryDoc](projection.NewCategories(), log, categoriesStore, runCfg),
		projection.NewRunner[readmodel.UserDoc](projection.NewUsers(), log, usersStore, runCfg),
		projection.NewRunner[readmodel.BookStatsDoc](projection.NewBookStats(), log, statsStore, runCfg),
		projection.NewRunner[readmodel.BookSearchDoc](
			projection.NewBookSearch(searchStore, authorsStore, publishersStore, categoriesStore,
				cfg.Tenancy.DefaultLocale, cfg.Tenancy.DefaultCurrency),
			log, searchStore, searchCfg),
	} {
		runners[r.Name()] = r
	}

	qc, err := azure.NewQueue(cfg.Storage.ConnectionString, cfg.Storage.ControlQueue)
	if err != nil {
		logger.WithError(err).Fatal("control queue")
	}
	control := queue.New(qc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for _, r := range runners {
		wg.Add(1)
		go func(r runner) {
			defer wg.Done()
			r.Run(ctx)
		}(r)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		consumeControl(ctx, control, runners, cfg.Projector.QueuePoll(), logger)
	}()

	wg.Wait()
	logger.Info("projector stopped")
}

// consumeControl polls the control queue and dispatches its messages: nudges
// wake the runners, rebuild requests replay a projection for one tenant.
func consumeControl(ctx context.Context, q *queue.Client, runners map[string]runner, poll time.Duration, logger *logrus.Logger) {
	if poll <= 0 {
		poll = time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for {
			msg, ok, err := q.Dequeue(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.WithError(err).Warn("control queue receive failed")
				}
				break
			}
			if !ok {
				break
			}
			dispatch(ctx, msg, runners, logger)
		}
	}
}

func dispatch(ctx context.Context, msg queue.Message, runners map[string]runner, logger *logrus.Logger) {
	switch msg.Kind {
	case queue.KindNudge:
		for _, r := range runners {
			r.Wake()
		}
	case queue.KindRebuild:
		if msg.Tenant == "" {
			logger.Warn("rebuild request without tenant, dropping")
			return
		}
		var targets []runner
		if msg.Projection == "all" {
			for _, name := range rebuildOrder {
				targets = append(targets, runners[name])
			}
		} else if r, ok := runners[msg.Projection]; ok {
			targets = append(targets, r)
		} else {
			logger.WithField("projection", msg.Projection).Warn("rebuild request for unknown projection, dropping")
			return
		}
		go func() {
			for _, r := range targets {
				if err := r.Rebuild(ctx, msg.Tenant); err != nil {
					logger.WithError(err).WithFields(logrus.Fields{
						"projection": r.Name(),
						"tenant":     msg.Tenant,
					}).Error("rebuild failed")
					return
				}
			}
		}()
	default:
		logger.WithField("kind", msg.Kind).Warn("unknown control message kind, dropping")
	}
}
