package domain

import (
	"encoding/json"
	"fmt"

	"github.com/aalmada/BookStore-sub003/internal/eventlog"
)

// Book is the catalog aggregate. Titles are kept per locale and prices per
// currency, both in minor units.
type Book struct {
	Base
	Titles      map[string]string
	Prices      map[string]int64
	AuthorIDs   []string
	PublisherID string
	CategoryIDs []string
	Promotions  []Promotion
}

func (b *Book) Apply(ev eventlog.Event) error {
	b.touch(ev)
	switch ev.Type {
	case EventBookCreated:
		var p BookCreated
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		b.ID = p.ID
		b.Titles = copyMap(p.Titles)
		b.Prices = copyMap(p.Prices)
		b.AuthorIDs = append([]string(nil), p.AuthorIDs...)
		b.PublisherID = p.PublisherID
		b.CategoryIDs = append([]string(nil), p.CategoryIDs...)
	case EventBookTitleSet:
		var p BookTitleSet
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		if b.Titles == nil {
			b.Titles = make(map[string]string)
		}
		b.Titles[p.Locale] = p.Title
	case EventBookPriceSet:
		var p BookPriceSet
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		if b.Prices == nil {
			b.Prices = make(map[string]int64)
		}
		b.Prices[p.Currency] = p.Amount
	case EventBookAuthorAdded:
		var p BookAuthorAdded
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		b.AuthorIDs = appendMissing(b.AuthorIDs, p.AuthorID)
	case EventBookAuthorRemoved:
		var p BookAuthorRemoved
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		b.AuthorIDs = remove(b.AuthorIDs, p.AuthorID)
	case EventBookCategorized:
		var p BookCategorized
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		b.CategoryIDs = appendMissing(b.CategoryIDs, p.CategoryID)
	case EventBookUncategorized:
		var p BookUncategorized
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		b.CategoryIDs = remove(b.CategoryIDs, p.CategoryID)
	case EventBookPublisherChanged:
		var p BookPublisherChanged
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		b.PublisherID = p.PublisherID
	case EventBookPromotionScheduled:
		var p BookPromotionScheduled
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		b.Promotions = append(b.Promotions, p.Promotion)
	case EventBookPromotionCancelled:
		var p BookPromotionCancelled
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		kept := b.Promotions[:0]
		for _, pr := range b.Promotions {
			if pr.ID != p.PromotionID {
				kept = append(kept, pr)
			}
		}
		b.Promotions = kept
	case EventBookDeleted:
		b.Deleted = true
		b.DeletedAt = ev.Time
	case EventBookRestored:
		b.Deleted = false
		b.DeletedAt = 0
	default:
		return fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Type)
	}
	return nil
}

// Create raises the initial event. A title in defaultLocale and a price in
// defaultCurrency are required; more locales and currencies may be added
// later.
func (b *Book) Create(id string, titles map[string]string, prices map[string]int64, authorIDs []string, publisherID string, categoryIDs []string, defaultLocale, defaultCurrency string) error {
	if b.ID != "" {
		return invalid("already-exists", "book %s already exists", b.ID)
	}
	if id == "" {
		return invalid("missing-id", "book id is required")
	}
	if titles[defaultLocale] == "" {
		return invalid("default-locale-title-required", "book needs a title in locale %q", defaultLocale)
	}
	for locale, title := range titles {
		if locale == "" || title == "" {
			return invalid("empty-title", "empty locale or title")
		}
	}
	if _, ok := prices[defaultCurrency]; !ok {
		return invalid("default-currency-price-required", "book needs a price in currency %q", defaultCurrency)
	}
	for currency, amount := range prices {
		if currency == "" {
			return invalid("empty-currency", "empty currency code")
		}
		if amount < 0 {
			return invalid("negative-price", "price %d in %q is negative", amount, currency)
		}
	}
	return b.raise(b, EventBookCreated, BookCreated{
		ID:          id,
		Titles:      titles,
		Prices:      prices,
		AuthorIDs:   dedupe(authorIDs),
		PublisherID: publisherID,
		CategoryIDs: dedupe(categoryIDs),
	})
}

func (b *Book) SetTitle(locale, title string) error {
	if err := b.mutable(); err != nil {
		return err
	}
	if locale == "" || title == "" {
		return invalid("empty-title", "locale and title are required")
	}
	if b.Titles[locale] == title {
		return nil
	}
	return b.raise(b, EventBookTitleSet, BookTitleSet{Locale: locale, Title: title})
}

func (b *Book) SetPrice(currency string, amount int64) error {
	if err := b.mutable(); err != nil {
		return err
	}
	if currency == "" {
		return invalid("empty-currency", "currency is required")
	}
	if amount < 0 {
		return invalid("negative-price", "price %d in %q is negative", amount, currency)
	}
	if current, ok := b.Prices[currency]; ok && current == amount {
		return nil
	}
	return b.raise(b, EventBookPriceSet, BookPriceSet{Currency: currency, Amount: amount})
}

func (b *Book) AddAuthor(authorID string) error {
	if err := b.mutable(); err != nil {
		return err
	}
	if authorID == "" {
		return invalid("missing-id", "author id is required")
	}
	if contains(b.AuthorIDs, authorID) {
		return nil
	}
	return b.raise(b, EventBookAuthorAdded, BookAuthorAdded{AuthorID: authorID})
}

func (b *Book) RemoveAuthor(authorID string) error {
	if err := b.mutable(); err != nil {
		return err
	}
	if !contains(b.AuthorIDs, authorID) {
		return nil
	}
	return b.raise(b, EventBookAuthorRemoved, BookAuthorRemoved{AuthorID: authorID})
}

func (b *Book) Categorize(categoryID string) error {
	if err := b.mutable(); err != nil {
		return err
	}
	if categoryID == "" {
		return invalid("missing-id", "category id is required")
	}
	if contains(b.CategoryIDs, categoryID) {
		return nil
	}
	return b.raise(b, EventBookCategorized, BookCategorized{CategoryID: categoryID})
}

func (b *Book) Uncategorize(categoryID string) error {
	if err := b.mutable(); err != nil {
		return err
	}
	if !contains(b.CategoryIDs, categoryID) {
		return nil
	}
	return b.raise(b, EventBookUncategorized, BookUncategorized{CategoryID: categoryID})
}

func (b *Book) ChangePublisher(publisherID string) error {
	if err := b.mutable(); err != nil {
		return err
	}
	if publisherID == b.PublisherID {
		return nil
	}
	return b.raise(b, EventBookPublisherChanged, BookPublisherChanged{PublisherID: publisherID})
}

// SchedulePromotion rejects promotions that overlap an existing one in time.
func (b *Book) SchedulePromotion(p Promotion) error {
	if err := b.mutable(); err != nil {
		return err
	}
	if p.ID == "" {
		return invalid("missing-id", "promotion id is required")
	}
	if p.Percent < 1 || p.Percent > 90 {
		return invalid("bad-percent", "promotion percent %d out of range [1, 90]", p.Percent)
	}
	if p.StartsAt >= p.EndsAt {
		return invalid("bad-interval", "promotion must end after it starts")
	}
	for _, existing := range b.Promotions {
		if existing.ID == p.ID {
			return invalid("promotion-exists", "promotion %s already scheduled", p.ID)
		}
		if existing.overlaps(p) {
			return invalid("promotion-overlap", "promotion %s overlaps %s", p.ID, existing.ID)
		}
	}
	return b.raise(b, EventBookPromotionScheduled, BookPromotionScheduled{Promotion: p})
}

func (b *Book) CancelPromotion(promotionID string) error {
	if err := b.mutable(); err != nil {
		return err
	}
	for _, existing := range b.Promotions {
		if existing.ID == promotionID {
			return b.raise(b, EventBookPromotionCancelled, BookPromotionCancelled{PromotionID: promotionID})
		}
	}
	return fmt.Errorf("%w: promotion %s", ErrNotFound, promotionID)
}

func (b *Book) Delete() error {
	if err := b.mutable(); err != nil {
		return err
	}
	return b.raise(b, EventBookDeleted, struct{}{})
}

func (b *Book) Restore() error {
	if !b.Deleted {
		return invalid("not-deleted", "book %s is not deleted", b.ID)
	}
	return b.raise(b, EventBookRestored, struct{}{})
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func appendMissing(list []string, v string) []string {
	if contains(list, v) {
		return list
	}
	return append(list, v)
}

func remove(list []string, v string) []string {
	out := list[:0]
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func dedupe(list []string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != "" && !contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
