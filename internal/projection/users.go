package projection

import (
	"context"
	"fmt"

	"github.com/aalmada/BookStore-sub003/internal/domain"
	"github.com/aalmada/BookStore-sub003/internal/eventlog"
	"github.com/aalmada/BookStore-sub003/internal/readmodel"
)

// Users materializes reader profiles from the user stream. Rating events
// carry no profile state but still advance the document version so it tracks
// the stream version.
type Users struct{}

func NewUsers() *Users { return &Users{} }

func (*Users) Name() string   { return "users" }
func (*Users) Kind() string   { return "User" }
func (*Users) Owns() []string { return []string{domain.StreamUser} }

func (*Users) Routes() Routes {
	r := make(Routes)
	for _, t := range []string{
		domain.EventUserRegistered,
		domain.EventUserRenamed,
		domain.EventUserDeleted,
		domain.EventUserRestored,
		domain.EventBookFavorited,
		domain.EventBookUnfavorited,
		domain.EventBookRated,
	} {
		r[t] = StreamRoute()
	}
	return r
}

func (*Users) Apply(ctx context.Context, ev eventlog.Event, docID string, set *Docset[readmodel.UserDoc]) error {
	doc, found, err := set.Get(ctx, docID)
	if err != nil {
		return err
	}
	if !found && ev.Type != domain.EventUserRegistered {
		return fmt.Errorf("user %s not materialized before %s", docID, ev.Type)
	}

	switch ev.Type {
	case domain.EventUserRegistered:
		var p domain.UserRegistered
		if err := decode(ev, &p); err != nil {
			return err
		}
		doc = readmodel.UserDoc{
			Meta:  readmodel.Meta{ID: docID, CreatedAt: ev.Time},
			Name:  p.Name,
			Email: p.Email,
		}
	case domain.EventUserRenamed:
		var p domain.UserRenamed
		if err := decode(ev, &p); err != nil {
			return err
		}
		doc.Name = p.Name
	case domain.EventBookFavorited:
		var p domain.BookFavorited
		if err := decode(ev, &p); err != nil {
			return err
		}
		doc.Favorites = appendMissing(doc.Favorites, p.BookID)
	case domain.EventBookUnfavorited:
		var p domain.BookUnfavorited
		if err := decode(ev, &p); err != nil {
			return err
		}
		doc.Favorites = without(doc.Favorites, p.BookID)
	case domain.EventBookRated:
		// ratings live in the book stats view
	case domain.EventUserDeleted:
		doc.Deleted = true
		doc.DeletedAt = ev.Time
	case domain.EventUserRestored:
		doc.Deleted = false
		doc.DeletedAt = 0
	}

	doc.Version = ev.Seq
	doc.UpdatedAt = ev.Time
	set.Put(doc)
	return nil
}
