// Package fanout wires projection commits to their side effects: cache
// eviction, change notifications and search indexing. Side effects never
// propagate errors back into the commit path; a lost eviction or
// notification is tolerable, a lost commit is not.
package fanout

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/aalmada/BookStore-sub003/internal/projection"
	"github.com/aalmada/BookStore-sub003/internal/readmodel"
)

// Caches evicts read-model cache entries for committed documents.
type Caches interface {
	Invalidate(ctx context.Context, tenant, kind string, ids ...string) error
}

// Notifier publishes a committed change set to the notification channel.
type Notifier interface {
	Publish(ctx context.Context, set projection.ChangeSet) error
}

// SearchIndexer mirrors committed search documents into the full-text index.
type SearchIndexer interface {
	Index(ctx context.Context, tenant string, docs []readmodel.BookSearchDoc) error
}

// searchedKind is the one projection kind mirrored into the search index.
const searchedKind = "BookSearch"

// Listener fans a committed batch out to the cache, the notification channel
// and the search index, in that order: evicting before publishing means a
// subscriber that reacts to a notification by re-reading never gets the
// pre-commit cache entry. Any component may be nil.
type Listener struct {
	caches Caches
	notify Notifier
	search SearchIndexer
	logger *logrus.Logger
}

func NewListener(caches Caches, notifier Notifier, indexer SearchIndexer, logger *logrus.Logger) *Listener {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Listener{caches: caches, notify: notifier, search: indexer, logger: logger}
}

// Committed implements projection.Listener.
func (l *Listener) Committed(ctx context.Context, set projection.ChangeSet) {
	if len(set.Changes) == 0 {
		return
	}
	l.invalidate(ctx, set)
	l.publish(ctx, set)
	l.index(ctx, set)
}

func (l *Listener) invalidate(ctx context.Context, set projection.ChangeSet) {
	if l.caches == nil {
		return
	}
	ids := make([]string, 0, len(set.Changes))
	for _, ch := range set.Changes {
		ids = append(ids, ch.ID)
	}
	if err := l.caches.Invalidate(ctx, set.Tenant, set.Kind, ids...); err != nil {
		l.logger.WithError(err).WithFields(logrus.Fields{
			"tenant": set.Tenant,
			"kind":   set.Kind,
		}).Error("failed to invalidate cache")
	}
}

func (l *Listener) publish(ctx context.Context, set projection.ChangeSet) {
	if l.notify == nil {
		return
	}
	if err := l.notify.Publish(ctx, set); err != nil {
		l.logger.WithError(err).WithFields(logrus.Fields{
			"tenant": set.Tenant,
			"kind":   set.Kind,
		}).Error("failed to publish change notifications")
	}
}

func (l *Listener) index(ctx context.Context, set projection.ChangeSet) {
	if l.search == nil || set.Kind != searchedKind {
		return
	}
	docs := make([]readmodel.BookSearchDoc, 0, len(set.Changes))
	for _, ch := range set.Changes {
		if doc, ok := ch.Doc.(readmodel.BookSearchDoc); ok {
			docs = append(docs, doc)
		}
	}
	if err := l.search.Index(ctx, set.Tenant, docs); err != nil {
		l.logger.WithError(err).WithField("tenant", set.Tenant).Error("failed to index search documents")
	}
}
