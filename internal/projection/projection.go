// Package projection derives read-model documents from tenant event feeds.
// Every projection keeps a per-tenant high-water mark in its document store;
// batches of feed events are folded into a working set and committed together
// with the advanced mark, so a crash never splits a batch.
package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/aalmada/BookStore-sub003/internal/eventlog"
	"github.com/aalmada/BookStore-sub003/internal/readmodel"
)

// ChangeType is the net effect a committed batch had on one document.
type ChangeType string

const (
	Created ChangeType = "Created"
	Updated ChangeType = "Updated"
	Deleted ChangeType = "Deleted"
)

// DocChange describes one document mutated by a committed batch. Type is the
// net effect against the state before the batch: a document materialized for
// the first time is Created, a live document that ended up soft-deleted is
// Deleted, everything else, restores included, is Updated.
type DocChange struct {
	Type    ChangeType `json:"type"`
	ID      string     `json:"id"`
	Version int64      `json:"version"`
	Deleted bool       `json:"deleted,omitempty"`
	Doc     any        `json:"doc,omitempty"`
}

// ChangeSet is what a Listener receives after a batch commit.
type ChangeSet struct {
	Tenant     string      `json:"tenant"`
	Projection string      `json:"projection"`
	Kind       string      `json:"kind"`
	FirstPos   int64       `json:"firstPos"`
	LastPos    int64       `json:"lastPos"`
	Changes    []DocChange `json:"changes"`
}

// Listener is invoked after every committed batch. Implementations own their
// failure handling; nothing a listener does can affect the commit.
type Listener interface {
	Committed(ctx context.Context, set ChangeSet)
}

// Route binds an event type to the document it lands in.
type Route struct {
	// DocID extracts the target document id from the event.
	DocID func(ev eventlog.Event) (string, error)
}

// Routes is the static routing table of a projection: event type to route.
type Routes map[string]Route

// StreamRoute routes an event to the document named by its stream id. It is
// the routing of every single-stream projection.
func StreamRoute() Route {
	return Route{DocID: func(ev eventlog.Event) (string, error) {
		return ev.StreamID, nil
	}}
}

// Projection folds feed events into documents of one type.
//
// Owns lists the stream types the projection is responsible for: an event on
// an owned stream whose type is missing from Routes halts the projection,
// because skipping it would materialize wrong state. Events of other streams
// that are not routed are simply not this projection's concern.
type Projection[D readmodel.Doc] interface {
	Name() string
	// Kind names the entity for change notifications, e.g. "Book".
	Kind() string
	Owns() []string
	Routes() Routes
	Apply(ctx context.Context, ev eventlog.Event, docID string, set *Docset[D]) error
}

// ApplyError reports that a projection halted on an event it could not fold.
type ApplyError struct {
	Projection string
	Tenant     string
	EventID    string
	EventType  string
	Position   int64
	Err        error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("projection %s halted on %s (position %d, tenant %s): %v",
		e.Projection, e.EventType, e.Position, e.Tenant, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// Docset is the working set of one batch: documents loaded from the store,
// mutated in memory and committed together.
type Docset[D readmodel.Doc] struct {
	store  readmodel.Store[D]
	tenant string
	docs   map[string]*trackedDoc[D]
	order  []string
}

type trackedDoc[D readmodel.Doc] struct {
	doc        D
	existed    bool
	wasDeleted bool
	dirty      bool
}

func newDocset[D readmodel.Doc](store readmodel.Store[D], tenant string) *Docset[D] {
	return &Docset[D]{store: store, tenant: tenant, docs: make(map[string]*trackedDoc[D])}
}

// Get returns the document with the given id, reading through to the store
// on first access. found is false when the document does not exist yet.
func (s *Docset[D]) Get(ctx context.Context, id string) (doc D, found bool, err error) {
	if t, ok := s.docs[id]; ok {
		return t.doc, t.existed || t.dirty, nil
	}
	stored, err := s.store.Get(ctx, s.tenant, id)
	if err != nil {
		if !errors.Is(err, readmodel.ErrNotFound) {
			var zero D
			return zero, false, err
		}
		var zero D
		s.track(id, &trackedDoc[D]{doc: zero})
		return zero, false, nil
	}
	s.track(id, &trackedDoc[D]{doc: stored, existed: true, wasDeleted: stored.IsDeleted()})
	return stored, true, nil
}

// Put stages the document for the batch commit.
func (s *Docset[D]) Put(doc D) {
	id := doc.DocID()
	t, ok := s.docs[id]
	if !ok {
		t = &trackedDoc[D]{}
		s.track(id, t)
	}
	t.doc = doc
	t.dirty = true
}

func (s *Docset[D]) track(id string, t *trackedDoc[D]) {
	s.docs[id] = t
	s.order = append(s.order, id)
}

// changes returns the dirty documents in first-touch order and their net
// change types.
func (s *Docset[D]) changes() ([]D, []DocChange) {
	docs := make([]D, 0, len(s.order))
	changes := make([]DocChange, 0, len(s.order))
	for _, id := range s.order {
		t := s.docs[id]
		if !t.dirty {
			continue
		}
		docs = append(docs, t.doc)
		changes = append(changes, DocChange{
			Type:    t.changeType(),
			ID:      id,
			Version: t.doc.DocVersion(),
			Deleted: t.doc.IsDeleted(),
			Doc:     t.doc,
		})
	}
	return docs, changes
}

func (t *trackedDoc[D]) changeType() ChangeType {
	now := t.doc.IsDeleted()
	switch {
	case !t.existed:
		return Created
	case !t.wasDeleted && now:
		return Deleted
	default:
		return Updated
	}
}
