// Package readmodel stores the materialized documents projections produce
// and the high-water marks that track how far each projection has read its
// tenant feed.
package readmodel

import "github.com/aalmada/BookStore-sub003/internal/domain"

// Meta is the envelope every document carries.
type Meta struct {
	ID string `json:"id"`
	// Version counts the events folded into this document. For documents fed
	// by a single stream it equals the stream version.
	Version   int64 `json:"version"`
	Deleted   bool  `json:"deleted,omitempty"`
	DeletedAt int64 `json:"deletedAt,omitempty"`
	CreatedAt int64 `json:"createdAt,omitempty"`
	UpdatedAt int64 `json:"updatedAt,omitempty"`
}

func (m Meta) DocID() string      { return m.ID }
func (m Meta) DocVersion() int64  { return m.Version }
func (m Meta) IsDeleted() bool    { return m.Deleted }
func (m Meta) LastUpdated() int64 { return m.UpdatedAt }

// BookDoc is the catalog view of a book.
type BookDoc struct {
	Meta
	Titles      map[string]string  `json:"titles"`
	Prices      map[string]int64   `json:"prices"`
	AuthorIDs   []string           `json:"authorIds,omitempty"`
	PublisherID string             `json:"publisherId,omitempty"`
	CategoryIDs []string           `json:"categoryIds,omitempty"`
	Promotions  []domain.Promotion `json:"promotions,omitempty"`
}

type AuthorDoc struct {
	Meta
	Name string `json:"name"`
}

type PublisherDoc struct {
	Meta
	Name string `json:"name"`
}

type CategoryDoc struct {
	Meta
	Name string `json:"name"`
}

type UserDoc struct {
	Meta
	Name      string   `json:"name"`
	Email     string   `json:"email,omitempty"`
	Favorites []string `json:"favorites,omitempty"`
}

// BookSearchDoc is the denormalized search view of a book: referenced names
// are resolved into the document so a search hit needs no joins. The ids are
// kept so renames can be folded back in.
type BookSearchDoc struct {
	Meta
	Title         string            `json:"title"`
	Titles        map[string]string `json:"titles,omitempty"`
	Price         int64             `json:"price"`
	AuthorIDs     []string          `json:"authorIds,omitempty"`
	AuthorNames   []string          `json:"authorNames,omitempty"`
	PublisherID   string            `json:"publisherId,omitempty"`
	PublisherName string            `json:"publisherName,omitempty"`
	CategoryIDs   []string          `json:"categoryIds,omitempty"`
	CategoryNames []string          `json:"categoryNames,omitempty"`
}

// BookStatsDoc aggregates reader activity from many user streams into one
// document per book. Raters keeps each user's current stars so a re-rate
// folds in as a delta.
type BookStatsDoc struct {
	Meta
	Favorites   int64          `json:"favorites"`
	RatingCount int64          `json:"ratingCount"`
	RatingSum   int64          `json:"ratingSum"`
	AvgRating   float64        `json:"avgRating"`
	Raters      map[string]int `json:"raters,omitempty"`
}
