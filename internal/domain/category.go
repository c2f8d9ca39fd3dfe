package domain

import (
	"encoding/json"
	"fmt"

	"github.com/aalmada/BookStore-sub003/internal/eventlog"
)

type Category struct {
	Base
	Name string
}

func (c *Category) Apply(ev eventlog.Event) error {
	c.touch(ev)
	switch ev.Type {
	case EventCategoryCreated:
		var p CategoryCreated
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		c.ID = p.ID
		c.Name = p.Name
	case EventCategoryRenamed:
		var p CategoryRenamed
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		c.Name = p.Name
	case EventCategoryDeleted:
		c.Deleted = true
		c.DeletedAt = ev.Time
	case EventCategoryRestored:
		c.Deleted = false
		c.DeletedAt = 0
	default:
		return fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Type)
	}
	return nil
}

func (c *Category) Create(id, name string) error {
	if c.ID != "" {
		return invalid("already-exists", "category %s already exists", c.ID)
	}
	if id == "" {
		return invalid("missing-id", "category id is required")
	}
	if name == "" {
		return invalid("missing-name", "category name is required")
	}
	return c.raise(c, EventCategoryCreated, CategoryCreated{ID: id, Name: name})
}

func (c *Category) Rename(name string) error {
	if err := c.mutable(); err != nil {
		return err
	}
	if name == "" {
		return invalid("missing-name", "category name is required")
	}
	if name == c.Name {
		return nil
	}
	return c.raise(c, EventCategoryRenamed, CategoryRenamed{Name: name})
}

func (c *Category) Delete() error {
	if err := c.mutable(); err != nil {
		return err
	}
	return c.raise(c, EventCategoryDeleted, struct{}{})
}

func (c *Category) Restore() error {
	if !c.Deleted {
		return invalid("not-deleted", "category %s is not deleted", c.ID)
	}
	return c.raise(c, EventCategoryRestored, struct{}{})
}
