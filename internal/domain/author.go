package domain

import (
	"encoding/json"
	"fmt"

	"github.com/aalmada/BookStore-sub003/internal/eventlog"
)

type Author struct {
	Base
	Name string
}

func (a *Author) Apply(ev eventlog.Event) error {
	a.touch(ev)
	switch ev.Type {
	case EventAuthorCreated:
		var p AuthorCreated
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		a.ID = p.ID
		a.Name = p.Name
	case EventAuthorRenamed:
		var p AuthorRenamed
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		a.Name = p.Name
	case EventAuthorDeleted:
		a.Deleted = true
		a.DeletedAt = ev.Time
	case EventAuthorRestored:
		a.Deleted = false
		a.DeletedAt = 0
	default:
		return fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Type)
	}
	return nil
}

func (a *Author) Create(id, name string) error {
	if a.ID != "" {
		return invalid("already-exists", "author %s already exists", a.ID)
	}
	if id == "" {
		return invalid("missing-id", "author id is required")
	}
	if name == "" {
		return invalid("missing-name", "author name is required")
	}
	return a.raise(a, EventAuthorCreated, AuthorCreated{ID: id, Name: name})
}

func (a *Author) Rename(name string) error {
	if err := a.mutable(); err != nil {
		return err
	}
	if name == "" {
		return invalid("missing-name", "author name is required")
	}
	if name == a.Name {
		return nil
	}
	return a.raise(a, EventAuthorRenamed, AuthorRenamed{Name: name})
}

func (a *Author) Delete() error {
	if err := a.mutable(); err != nil {
		return err
	}
	return a.raise(a, EventAuthorDeleted, struct{}{})
}

func (a *Author) Restore() error {
	if !a.Deleted {
		return invalid("not-deleted", "author %s is not deleted", a.ID)
	}
	return a.raise(a, EventAuthorRestored, struct{}{})
}
