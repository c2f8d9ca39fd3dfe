package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/aalmada/BookStore-sub003/internal/domain"
	"github.com/aalmada/BookStore-sub003/internal/eventlog"
	"github.com/aalmada/BookStore-sub003/internal/readmodel"
)

// BookSearch materializes the flattened search view of the catalog. Names of
// referenced authors, publishers and categories are resolved into each
// document; a rename on any of those streams fans out to every document that
// references the renamed entity.
//
// The runner driving it must be gated on the marks of the authors,
// publishers and categories projections, so every lookup sees those stores
// at or past the position being folded.
type BookSearch struct {
	self       readmodel.Store[readmodel.BookSearchDoc]
	authors    readmodel.Store[readmodel.AuthorDoc]
	publishers readmodel.Store[readmodel.PublisherDoc]
	categories readmodel.Store[readmodel.CategoryDoc]
	locale     string
	currency   string
}

func NewBookSearch(
	self readmodel.Store[readmodel.BookSearchDoc],
	authors readmodel.Store[readmodel.AuthorDoc],
	publishers readmodel.Store[readmodel.PublisherDoc],
	categories readmodel.Store[readmodel.CategoryDoc],
	locale, currency string,
) *BookSearch {
	return &BookSearch{
		self:       self,
		authors:    authors,
		publishers: publishers,
		categories: categories,
		locale:     locale,
		currency:   currency,
	}
}

func (*BookSearch) Name() string   { return "booksearch" }
func (*BookSearch) Kind() string   { return "BookSearch" }
func (*BookSearch) Owns() []string { return []string{domain.StreamBook} }

// fanOutRoute routes a rename to no single document; Apply scans for every
// document referencing the renamed entity.
func fanOutRoute() Route {
	return Route{DocID: func(eventlog.Event) (string, error) { return "", nil }}
}

func (*BookSearch) Routes() Routes {
	r := make(Routes)
	for _, t := range []string{
		domain.EventBookCreated,
		domain.EventBookTitleSet,
		domain.EventBookPriceSet,
		domain.EventBookAuthorAdded,
		domain.EventBookAuthorRemoved,
		domain.EventBookCategorized,
		domain.EventBookUncategorized,
		domain.EventBookPublisherChanged,
		domain.EventBookPromotionScheduled,
		domain.EventBookPromotionCancelled,
		domain.EventBookDeleted,
		domain.EventBookRestored,
	} {
		r[t] = StreamRoute()
	}
	r[domain.EventAuthorRenamed] = fanOutRoute()
	r[domain.EventPublisherRenamed] = fanOutRoute()
	r[domain.EventCategoryRenamed] = fanOutRoute()
	return r
}

func (p *BookSearch) Apply(ctx context.Context, ev eventlog.Event, docID string, set *Docset[readmodel.BookSearchDoc]) error {
	switch ev.Type {
	case domain.EventAuthorRenamed:
		return p.fanOut(ctx, ev, set, func(doc readmodel.BookSearchDoc) bool {
			return contains(doc.AuthorIDs, ev.StreamID)
		})
	case domain.EventPublisherRenamed:
		return p.fanOut(ctx, ev, set, func(doc readmodel.BookSearchDoc) bool {
			return doc.PublisherID == ev.StreamID
		})
	case domain.EventCategoryRenamed:
		return p.fanOut(ctx, ev, set, func(doc readmodel.BookSearchDoc) bool {
			return contains(doc.CategoryIDs, ev.StreamID)
		})
	}
	return p.applyBook(ctx, ev, docID, set)
}

// fanOut re-resolves every search document matching the predicate. Documents
// created earlier in the same batch already resolved against stores that
// include this rename, so scanning committed state is enough.
func (p *BookSearch) fanOut(ctx context.Context, ev eventlog.Event, set *Docset[readmodel.BookSearchDoc], match func(readmodel.BookSearchDoc) bool) error {
	docs, err := p.self.All(ctx, ev.Tenant)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if !match(doc) {
			continue
		}
		current, found, err := set.Get(ctx, doc.ID)
		if err != nil {
			return err
		}
		if !found {
			current = doc
		}
		if err := p.resolve(ctx, ev.Tenant, &current); err != nil {
			return err
		}
		current.Version++
		current.UpdatedAt = ev.Time
		set.Put(current)
	}
	return nil
}

func (p *BookSearch) applyBook(ctx context.Context, ev eventlog.Event, docID string, set *Docset[readmodel.BookSearchDoc]) error {
	doc, found, err := set.Get(ctx, docID)
	if err != nil {
		return err
	}
	if !found && ev.Type != domain.EventBookCreated {
		return fmt.Errorf("book %s not materialized before %s", docID, ev.Type)
	}

	switch ev.Type {
	case domain.EventBookCreated:
		var payload domain.BookCreated
		if err := decode(ev, &payload); err != nil {
			return err
		}
		doc = readmodel.BookSearchDoc{
			Meta:        readmodel.Meta{ID: docID, CreatedAt: ev.Time},
			Titles:      payload.Titles,
			Title:       payload.Titles[p.locale],
			Price:       payload.Prices[p.currency],
			AuthorIDs:   payload.AuthorIDs,
			PublisherID: payload.PublisherID,
			CategoryIDs: payload.CategoryIDs,
		}
	case domain.EventBookTitleSet:
		var payload domain.BookTitleSet
		if err := decode(ev, &payload); err != nil {
			return err
		}
		doc.Titles = withEntry(doc.Titles, payload.Locale, payload.Title)
		doc.Title = doc.Titles[p.locale]
	case domain.EventBookPriceSet:
		var payload domain.BookPriceSet
		if err := decode(ev, &payload); err != nil {
			return err
		}
		if payload.Currency == p.currency {
			doc.Price = payload.Amount
		}
	case domain.EventBookAuthorAdded:
		var payload domain.BookAuthorAdded
		if err := decode(ev, &payload); err != nil {
			return err
		}
		doc.AuthorIDs = appendMissing(doc.AuthorIDs, payload.AuthorID)
	case domain.EventBookAuthorRemoved:
		var payload domain.BookAuthorRemoved
		if err := decode(ev, &payload); err != nil {
			return err
		}
		doc.AuthorIDs = without(doc.AuthorIDs, payload.AuthorID)
	case domain.EventBookCategorized:
		var payload domain.BookCategorized
		if err := decode(ev, &payload); err != nil {
			return err
		}
		doc.CategoryIDs = appendMissing(doc.CategoryIDs, payload.CategoryID)
	case domain.EventBookUncategorized:
		var payload domain.BookUncategorized
		if err := decode(ev, &payload); err != nil {
			return err
		}
		doc.CategoryIDs = without(doc.CategoryIDs, payload.CategoryID)
	case domain.EventBookPublisherChanged:
		var payload domain.BookPublisherChanged
		if err := decode(ev, &payload); err != nil {
			return err
		}
		doc.PublisherID = payload.PublisherID
	case domain.EventBookPromotionScheduled, domain.EventBookPromotionCancelled:
		// promotions are not part of the search view
	case domain.EventBookDeleted:
		doc.Deleted = true
		doc.DeletedAt = ev.Time
	case domain.EventBookRestored:
		doc.Deleted = false
		doc.DeletedAt = 0
	}

	if err := p.resolve(ctx, ev.Tenant, &doc); err != nil {
		return err
	}
	doc.Version++
	doc.UpdatedAt = ev.Time
	set.Put(doc)
	return nil
}

// resolve fills the denormalized names from the reference stores. A missing
// reference resolves to an empty name rather than failing the fold.
func (p *BookSearch) resolve(ctx context.Context, tenantID string, doc *readmodel.BookSearchDoc) error {
	doc.AuthorNames = nil
	for _, id := range doc.AuthorIDs {
		author, err := p.authors.Get(ctx, tenantID, id)
		if err != nil {
			if errors.Is(err, readmodel.ErrNotFound) {
				doc.AuthorNames = append(doc.AuthorNames, "")
				continue
			}
			return err
		}
		doc.AuthorNames = append(doc.AuthorNames, author.Name)
	}

	doc.PublisherName = ""
	if doc.PublisherID != "" {
		publisher, err := p.publishers.Get(ctx, tenantID, doc.PublisherID)
		if err != nil {
			if !errors.Is(err, readmodel.ErrNotFound) {
				return err
			}
		} else {
			doc.PublisherName = publisher.Name
		}
	}

	doc.CategoryNames = nil
	for _, id := range doc.CategoryIDs {
		category, err := p.categories.Get(ctx, tenantID, id)
		if err != nil {
			if errors.Is(err, readmodel.ErrNotFound) {
				doc.CategoryNames = append(doc.CategoryNames, "")
				continue
			}
			return err
		}
		doc.CategoryNames = append(doc.CategoryNames, category.Name)
	}
	return nil
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
