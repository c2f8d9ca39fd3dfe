package projection

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/aalmada/BookStore-sub003/internal/domain"
	"github.com/aalmada/BookStore-sub003/internal/eventlog"
	"github.com/aalmada/BookStore-sub003/internal/readmodel"
)

// Books materializes the catalog view of the book stream.
type Books struct{}

func NewBooks() *Books { return &Books{} }

func (*Books) Name() string   { return "books" }
func (*Books) Kind() string   { return "Book" }
func (*Books) Owns() []string { return []string{domain.StreamBook} }

func (*Books) Routes() Routes {
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
	return r
}

func (*Books) Apply(ctx context.Context, ev eventlog.Event, docID string, set *Docset[readmodel.BookDoc]) error {
	doc, found, err := set.Get(ctx, docID)
	if err != nil {
		return err
	}
	if !found && ev.Type != domain.EventBookCreated {
		return fmt.Errorf("book %s not materialized before %s", docID, ev.Type)
	}

	switch ev.Type {
	case domain.EventBookCreated:
		var p domain.BookCreated
		if err := decode(ev, &p); err != nil {
			return err
		}
		doc = readmodel.BookDoc{
			Meta:        readmodel.Meta{ID: docID, CreatedAt: ev.Time},
			Titles:      p.Titles,
			Prices:      p.Prices,
			AuthorIDs:   p.AuthorIDs,
			PublisherID: p.PublisherID,
			CategoryIDs: p.CategoryIDs,
		}
	case domain.EventBookTitleSet:
		var p domain.BookTitleSet
		if err := decode(ev, &p); err != nil {
			return err
		}
		doc.Titles = withEntry(doc.Titles, p.Locale, p.Title)
	case domain.EventBookPriceSet:
		var p domain.BookPriceSet
		if err := decode(ev, &p); err != nil {
			return err
		}
		doc.Prices = withEntry(doc.Prices, p.Currency, p.Amount)
	case domain.EventBookAuthorAdded:
		var p domain.BookAuthorAdded
		if err := decode(ev, &p); err != nil {
			return err
		}
		doc.AuthorIDs = appendMissing(doc.AuthorIDs, p.AuthorID)
	case domain.EventBookAuthorRemoved:
		var p domain.BookAuthorRemoved
		if err := decode(ev, &p); err != nil {
			return err
		}
		doc.AuthorIDs = without(doc.AuthorIDs, p.AuthorID)
	case domain.EventBookCategorized:
		var p domain.BookCategorized
		if err := decode(ev, &p); err != nil {
			return err
		}
		doc.CategoryIDs = appendMissing(doc.CategoryIDs, p.CategoryID)
	case domain.EventBookUncategorized:
		var p domain.BookUncategorized
		if err := decode(ev, &p); err != nil {
			return err
		}
		doc.CategoryIDs = without(doc.CategoryIDs, p.CategoryID)
	case domain.EventBookPublisherChanged:
		var p domain.BookPublisherChanged
		if err := decode(ev, &p); err != nil {
			return err
		}
		doc.PublisherID = p.PublisherID
	case domain.EventBookPromotionScheduled:
		var p domain.BookPromotionScheduled
		if err := decode(ev, &p); err != nil {
			return err
		}
		doc.Promotions = append(doc.Promotions, p.Promotion)
	case domain.EventBookPromotionCancelled:
		var p domain.BookPromotionCancelled
		if err := decode(ev, &p); err != nil {
			return err
		}
		kept := doc.Promotions[:0:0]
		for _, promo := range doc.Promotions {
			if promo.ID != p.PromotionID {
				kept = append(kept, promo)
			}
		}
		doc.Promotions = kept
	case domain.EventBookDeleted:
		doc.Deleted = true
		doc.DeletedAt = ev.Time
	case domain.EventBookRestored:
		doc.Deleted = false
		doc.DeletedAt = 0
	}

	doc.Version = ev.Seq
	doc.UpdatedAt = ev.Time
	set.Put(doc)
	return nil
}

func decode(ev eventlog.Event, out any) error {
	if err := sonic.ConfigStd.Unmarshal(ev.Data, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", ev.Type, err)
	}
	return nil
}

func withEntry[V any](m map[string]V, key string, val V) map[string]V {
	out := make(map[string]V, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[key] = val
	return out
}

func appendMissing(list []string, id string) []string {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(append([]string(nil), list...), id)
}

func without(list []string, id string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
