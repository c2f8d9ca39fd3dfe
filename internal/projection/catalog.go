package projection

import (
	"context"
	"fmt"

	"github.com/aalmada/BookStore-sub003/internal/domain"
	"github.com/aalmada/BookStore-sub003/internal/eventlog"
	"github.com/aalmada/BookStore-sub003/internal/readmodel"
)

// Authors materializes the author list from the author stream.
type Authors struct{}

func NewAuthors() *Authors { return &Authors{} }

func (*Authors) Name() string   { return "authors" }
func (*Authors) Kind() string   { return "Author" }
func (*Authors) Owns() []string { return []string{domain.StreamAuthor} }

func (*Authors) Routes() Routes {
	return Routes{
		domain.EventAuthorCreated:  StreamRoute(),
		domain.EventAuthorRenamed:  StreamRoute(),
		domain.EventAuthorDeleted:  StreamRoute(),
		domain.EventAuthorRestored: StreamRoute(),
	}
}

func (*Authors) Apply(ctx context.Context, ev eventlog.Event, docID string, set *Docset[readmodel.AuthorDoc]) error {
	doc, found, err := set.Get(ctx, docID)
	if err != nil {
		return err
	}
	switch ev.Type {
	case domain.EventAuthorCreated:
		var p domain.AuthorCreated
		if err := decode(ev, &p); err != nil {
			return err
		}
		doc = readmodel.AuthorDoc{
			Meta: readmodel.Meta{ID: docID, CreatedAt: ev.Time},
			Name: p.Name,
		}
	case domain.EventAuthorRenamed:
		if !found {
			return fmt.Errorf("author %s not materialized before rename", docID)
		}
		var p domain.AuthorRenamed
		if err := decode(ev, &p); err != nil {
			return err
		}
		doc.Name = p.Name
	case domain.EventAuthorDeleted:
		if !found {
			return fmt.Errorf("author %s not materialized before delete", docID)
		}
		doc.Deleted = true
		doc.DeletedAt = ev.Time
	case domain.EventAuthorRestored:
		if !found {
			return fmt.Errorf("author %s not materialized before restore", docID)
		}
		doc.Deleted = false
		doc.DeletedAt = 0
	}
	doc.Version = ev.Seq
	doc.UpdatedAt = ev.Time
	set.Put(doc)
	return nil
}

// Publishers materializes the publisher list from the publisher stream.
type Publishers struct{}

func NewPublishers() *Publishers { return &Publishers{} }

func (*Publishers) Name() string   { return "publishers" }
func (*Publishers) Kind() string   { return "Publisher" }
func (*Publishers) Owns() []string { return []string{domain.StreamPublisher} }

func (*Publishers) Routes() Routes {
	return Routes{
		domain.EventPublisherCreated:  StreamRoute(),
		domain.EventPublisherRenamed:  StreamRoute(),
		domain.EventPublisherDeleted:  StreamRoute(),
		domain.EventPublisherRestored: StreamRoute(),
	}
}

func (*Publishers) Apply(ctx context.Context, ev eventlog.Event, docID string, set *Docset[readmodel.PublisherDoc]) error {
	doc, found, err := set.Get(ctx, docID)
	if err != nil {
		return err
	}
	switch ev.Type {
	case domain.EventPublisherCreated:
		var p domain.PublisherCreated
		if err := decode(ev, &p); err != nil {
			return err
		}
		doc = readmodel.PublisherDoc{
			Meta: readmodel.Meta{ID: docID, CreatedAt: ev.Time},
			Name: p.Name,
		}
	case domain.EventPublisherRenamed:
		if !found {
			return fmt.Errorf("publisher %s not materialized before rename", docID)
		}
		var p domain.PublisherRenamed
		if err := decode(ev, &p); err != nil {
			return err
		}
		doc.Name = p.Name
	case domain.EventPublisherDeleted:
		if !found {
			return fmt.Errorf("publisher %s not materialized before delete", docID)
		}
		doc.Deleted = true
		doc.DeletedAt = ev.Time
	case domain.EventPublisherRestored:
		if !found {
			return fmt.Errorf("publisher %s not materialized before restore", docID)
		}
		doc.Deleted = false
		doc.DeletedAt = 0
	}
	doc.Version = ev.Seq
	doc.UpdatedAt = ev.Time
	set.Put(doc)
	return nil
}

// Categories materializes the category list from the category stream.
type Categories struct{}

func NewCategories() *Categories { return &Categories{} }

func (*Categories) Name() string   { return "categories" }
func (*Categories) Kind() string   { return "Category" }
func (*Categories) Owns() []string { return []string{domain.StreamCategory} }

func (*Categories) Routes() Routes {
	return Routes{
		domain.EventCategoryCreated:  StreamRoute(),
		domain.EventCategoryRenamed:  StreamRoute(),
		domain.EventCategoryDeleted:  StreamRoute(),
		domain.EventCategoryRestored: StreamRoute(),
	}
}

func (*Categories) Apply(ctx context.Context, ev eventlog.Event, docID string, set *Docset[readmodel.CategoryDoc]) error {
	doc, found, err := set.Get(ctx, docID)
	if err != nil {
		return err
	}
	switch ev.Type {
	case domain.EventCategoryCreated:
		var p domain.CategoryCreated
		if err := decode(ev, &p); err != nil {
			return err
		}
		doc = readmodel.CategoryDoc{
			Meta: readmodel.Meta{ID: docID, CreatedAt: ev.Time},
			Name: p.Name,
		}
	case domain.EventCategoryRenamed:
		if !found {
			return fmt.Errorf("category %s not materialized before rename", docID)
		}
		var p domain.CategoryRenamed
		if err := decode(ev, &p); err != nil {
			return err
		}
		doc.Name = p.Name
	case domain.EventCategoryDeleted:
		if !found {
			return fmt.Errorf("category %s not materialized before delete", docID)
		}
		doc.Deleted = true
		doc.DeletedAt = ev.Time
	case domain.EventCategoryRestored:
		if !found {
			return fmt.Errorf("category %s not materialized before restore", docID)
		}
		doc.Deleted = false
		doc.DeletedAt = 0
	}
	doc.Version = ev.Seq
	doc.UpdatedAt = ev.Time
	set.Put(doc)
	return nil
}
