package projection

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/aalmada/BookStore-sub003/internal/domain"
	"github.com/aalmada/BookStore-sub003/internal/eventlog"
	"github.com/aalmada/BookStore-sub003/internal/readmodel"
)

// BookStats folds reader activity from every user stream into one document
// per book. The routing extracts the book id from the payload, so events of
// many streams converge on the same document. Counts and the per-user rating
// map make the fold insensitive to how user streams interleave in the feed.
type BookStats struct{}

func NewBookStats() *BookStats { return &BookStats{} }

func (*BookStats) Name() string { return "bookstats" }
func (*BookStats) Kind() string { return "BookStats" }

// Owns is empty: the user stream belongs to the users projection, stats only
// taps the activity events it routes.
func (*BookStats) Owns() []string { return nil }

func bookIDRoute[P any](pick func(P) string) Route {
	return Route{DocID: func(ev eventlog.Event) (string, error) {
		var payload P
		if err := sonic.ConfigStd.Unmarshal(ev.Data, &payload); err != nil {
			return "", fmt.Errorf("decode %s payload: %w", ev.Type, err)
		}
		id := pick(payload)
		if id == "" {
			return "", fmt.Errorf("%s event without book id", ev.Type)
		}
		return id, nil
	}}
}

func (*BookStats) Routes() Routes {
	return Routes{
		domain.EventBookFavorited:   bookIDRoute(func(p domain.BookFavorited) string { return p.BookID }),
		domain.EventBookUnfavorited: bookIDRoute(func(p domain.BookUnfavorited) string { return p.BookID }),
		domain.EventBookRated:       bookIDRoute(func(p domain.BookRated) string { return p.BookID }),
	}
}

func (*BookStats) Apply(ctx context.Context, ev eventlog.Event, docID string, set *Docset[readmodel.BookStatsDoc]) error {
	doc, found, err := set.Get(ctx, docID)
	if err != nil {
		return err
	}
	if !found {
		doc = readmodel.BookStatsDoc{Meta: readmodel.Meta{ID: docID, CreatedAt: ev.Time}}
	}

	userID := ev.StreamID
	switch ev.Type {
	case domain.EventBookFavorited:
		doc.Favorites++
	case domain.EventBookUnfavorited:
		if doc.Favorites > 0 {
			doc.Favorites--
		}
	case domain.EventBookRated:
		var p domain.BookRated
		if err := decode(ev, &p); err != nil {
			return err
		}
		prev, rated := doc.Raters[userID]
		doc.Raters = withEntry(doc.Raters, userID, p.Stars)
		doc.RatingSum += int64(p.Stars)
		if rated {
			doc.RatingSum -= int64(prev)
		} else {
			doc.RatingCount++
		}
		if doc.RatingCount > 0 {
			doc.AvgRating = float64(doc.RatingSum) / float64(doc.RatingCount)
		}
	}

	doc.Version++
	doc.UpdatedAt = ev.Time
	set.Put(doc)
	return nil
}
