package domain

import (
	"encoding/json"
	"fmt"

	"github.com/aalmada/BookStore-sub003/internal/eventlog"
)

type Publisher struct {
	Base
	Name string
}

func (p *Publisher) Apply(ev eventlog.Event) error {
	p.touch(ev)
	switch ev.Type {
	case EventPublisherCreated:
		var d PublisherCreated
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			return err
		}
		p.ID = d.ID
		p.Name = d.Name
	case EventPublisherRenamed:
		var d PublisherRenamed
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			return err
		}
		p.Name = d.Name
	case EventPublisherDeleted:
		p.Deleted = true
		p.DeletedAt = ev.Time
	case EventPublisherRestored:
		p.Deleted = false
		p.DeletedAt = 0
	default:
		return fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Type)
	}
	return nil
}

func (p *Publisher) Create(id, name string) error {
	if p.ID != "" {
		return invalid("already-exists", "publisher %s already exists", p.ID)
	}
	if id == "" {
		return invalid("missing-id", "publisher id is required")
	}
	if name == "" {
		return invalid("missing-name", "publisher name is required")
	}
	return p.raise(p, EventPublisherCreated, PublisherCreated{ID: id, Name: name})
}

func (p *Publisher) Rename(name string) error {
	if err := p.mutable(); err != nil {
		return err
	}
	if name == "" {
		return invalid("missing-name", "publisher name is required")
	}
	if name == p.Name {
		return nil
	}
	return p.raise(p, EventPublisherRenamed, PublisherRenamed{Name: name})
}

func (p *Publisher) Delete() error {
	if err := p.mutable(); err != nil {
		return err
	}
	return p.raise(p, EventPublisherDeleted, struct{}{})
}

func (p *Publisher) Restore() error {
	if !p.Deleted {
		return invalid("not-deleted", "publisher %s is not deleted", p.ID)
	}
	return p.raise(p, EventPublisherRestored, struct{}{})
}
