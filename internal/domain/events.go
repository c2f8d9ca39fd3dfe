// Package domain holds the aggregates of the store and the events they
// raise. State is never stored directly: commands validate against state
// folded from the event log and append new events.
package domain

import (
	"encoding/json"

	"github.com/aalmada/BookStore-sub003/internal/eventlog"
)

// Stream types, one per aggregate.
const (
	StreamBook      = "book"
	StreamAuthor    = "author"
	StreamPublisher = "publisher"
	StreamCategory  = "category"
	StreamUser      = "user"
)

// Event type tags.
const (
	EventBookCreated            = "book-created"
	EventBookTitleSet           = "book-title-set"
	EventBookPriceSet           = "book-price-set"
	EventBookAuthorAdded        = "book-author-added"
	EventBookAuthorRemoved      = "book-author-removed"
	EventBookCategorized        = "book-categorized"
	EventBookUncategorized      = "book-uncategorized"
	EventBookPublisherChanged   = "book-publisher-changed"
	EventBookPromotionScheduled = "book-promotion-scheduled"
	EventBookPromotionCancelled = "book-promotion-cancelled"
	EventBookDeleted            = "book-deleted"
	EventBookRestored           = "book-restored"

	EventAuthorCreated  = "author-created"
	EventAuthorRenamed  = "author-renamed"
	EventAuthorDeleted  = "author-deleted"
	EventAuthorRestored = "author-restored"

	EventPublisherCreated  = "publisher-created"
	EventPublisherRenamed  = "publisher-renamed"
	EventPublisherDeleted  = "publisher-deleted"
	EventPublisherRestored = "publisher-restored"

	EventCategoryCreated  = "category-created"
	EventCategoryRenamed  = "category-renamed"
	EventCategoryDeleted  = "category-deleted"
	EventCategoryRestored = "category-restored"

	EventUserRegistered  = "user-registered"
	EventUserRenamed     = "user-renamed"
	EventUserDeleted     = "user-deleted"
	EventUserRestored    = "user-restored"
	EventBookFavorited   = "book-favorited"
	EventBookUnfavorited = "book-unfavorited"
	EventBookRated       = "book-rated"
)

// Promotion is a scheduled discount on a book. StartsAt and EndsAt are unix
// milliseconds; the interval is half open, EndsAt excluded.
type Promotion struct {
	ID       string `json:"id"`
	Label    string `json:"label,omitempty"`
	Percent  int    `json:"percent"`
	StartsAt int64  `json:"startsAt"`
	EndsAt   int64  `json:"endsAt"`
}

func (p Promotion) overlaps(o Promotion) bool {
	return p.StartsAt < o.EndsAt && o.StartsAt < p.EndsAt
}

type BookCreated struct {
	ID          string            `json:"id"`
	Titles      map[string]string `json:"titles"`
	Prices      map[string]int64  `json:"prices"`
	AuthorIDs   []string          `json:"authorIds,omitempty"`
	PublisherID string            `json:"publisherId,omitempty"`
	CategoryIDs []string          `json:"categoryIds,omitempty"`
}

type BookTitleSet struct {
	Locale string `json:"locale"`
	Title  string `json:"title"`
}

type BookPriceSet struct {
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
}

type BookAuthorAdded struct {
	AuthorID string `json:"authorId"`
}

type BookAuthorRemoved struct {
	AuthorID string `json:"authorId"`
}

type BookCategorized struct {
	CategoryID string `json:"categoryId"`
}

type BookUncategorized struct {
	CategoryID string `json:"categoryId"`
}

type BookPublisherChanged struct {
	PublisherID string `json:"publisherId"`
}

type BookPromotionScheduled struct {
	Promotion Promotion `json:"promotion"`
}

type BookPromotionCancelled struct {
	PromotionID string `json:"promotionId"`
}

type AuthorCreated struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type AuthorRenamed struct {
	Name string `json:"name"`
}

type PublisherCreated struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type PublisherRenamed struct {
	Name string `json:"name"`
}

type CategoryCreated struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CategoryRenamed struct {
	Name string `json:"name"`
}

type UserRegistered struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type UserRenamed struct {
	Name string `json:"name"`
}

type BookFavorited struct {
	BookID string `json:"bookId"`
}

type BookUnfavorited struct {
	BookID string `json:"bookId"`
}

type BookRated struct {
	BookID string `json:"bookId"`
	Stars  int    `json:"stars"`
}

func encode(eventType string, payload any) (eventlog.Pending, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return eventlog.Pending{}, err
	}
	return eventlog.Pending{Type: eventType, Data: data}, nil
}
