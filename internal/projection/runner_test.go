package projection

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/aalmada/BookStore-sub003/internal/domain"
	"github.com/aalmada/BookStore-sub003/internal/eventlog"
	"github.com/aalmada/BookStore-sub003/internal/readmodel"
)

type seeded struct {
	streamType string
	streamID   string
	eventType  string
	payload    any
}

func seed(t *testing.T, log *eventlog.MemoryLog, tenantID string, evs ...seeded) {
	t.Helper()
	ctx := context.Background()
	for _, ev := range evs {
		data, err := json.Marshal(ev.payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		_, err = log.Append(ctx, tenantID, ev.streamType, ev.streamID, eventlog.VersionAny,
			[]eventlog.Pending{{Type: ev.eventType, Data: data}})
		if err != nil {
			t.Fatalf("append %s: %v", ev.eventType, err)
		}
	}
}

func bookCreated(id string) seeded {
	return seeded{domain.StreamBook, id, domain.EventBookCreated, domain.BookCreated{
		ID:     id,
		Titles: map[string]string{"en": "Title " + id},
		Prices: map[string]int64{"USD": 1999},
	}}
}

type captureListener struct {
	sets []ChangeSet
}

func (c *captureListener) Committed(_ context.Context, set ChangeSet) {
	c.sets = append(c.sets, set)
}

func TestRunOnceMaterializesBatchAndAdvancesMark(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryLog()
	store := readmodel.NewMemoryStore[readmodel.BookDoc]()
	listener := &captureListener{}
	r := NewRunner[readmodel.BookDoc](NewBooks(), log, store, Config{Listener: listener, BatchSize: 10})

	seed(t, log, "acme",
		bookCreated("b1"),
		seeded{domain.StreamBook, "b1", domain.EventBookTitleSet, domain.BookTitleSet{Locale: "de", Title: "Titel"}},
	)

	n, err := r.RunOnce(ctx, "acme")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 2 {
		t.Fatalf("consumed %d events, want 2", n)
	}

	doc, err := store.Get(ctx, "acme", "b1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Titles["de"] != "Titel" || doc.Version != 2 {
		t.Fatalf("unexpected doc: %+v", doc)
	}

	mark, err := store.Mark(ctx, "acme")
	if err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if mark != 2 {
		t.Fatalf("mark = %d, want 2", mark)
	}

	if len(listener.sets) != 1 {
		t.Fatalf("listener got %d sets, want 1", len(listener.sets))
	}
	set := listener.sets[0]
	if set.Kind != "Book" || set.Tenant != "acme" || set.LastPos != 2 {
		t.Fatalf("unexpected change set: %+v", set)
	}
	if len(set.Changes) != 1 || set.Changes[0].Type != Created || set.Changes[0].ID != "b1" {
		t.Fatalf("unexpected changes: %+v", set.Changes)
	}

	n, err = r.RunOnce(ctx, "acme")
	if err != nil || n != 0 {
		t.Fatalf("second RunOnce = (%d, %v), want (0, nil)", n, err)
	}
}

func TestRunOnceSkipsStreamsOfOtherProjections(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryLog()
	store := readmodel.NewMemoryStore[readmodel.BookDoc]()
	listener := &captureListener{}
	r := NewRunner[readmodel.BookDoc](NewBooks(), log, store, Config{Listener: listener})

	seed(t, log, "acme",
		seeded{domain.StreamUser, "u1", domain.EventUserRegistered, domain.UserRegistered{ID: "u1", Name: "Ana"}},
	)

	n, err := r.RunOnce(ctx, "acme")
	if err != nil || n != 1 {
		t.Fatalf("RunOnce = (%d, %v), want (1, nil)", n, err)
	}
	mark, err := store.Mark(ctx, "acme")
	if err != nil || mark != 1 {
		t.Fatalf("mark = (%d, %v), want 1", mark, err)
	}
	if len(listener.sets) != 0 {
		t.Fatalf("listener called for an empty batch: %+v", listener.sets)
	}
}

func TestRunOnceHaltsOnUnroutedOwnedEvent(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryLog()
	store := readmodel.NewMemoryStore[readmodel.BookDoc]()
	r := NewRunner[readmodel.BookDoc](NewBooks(), log, store, Config{})

	seed(t, log, "acme",
		bookCreated("b1"),
		seeded{domain.StreamBook, "b1", "book-painted", map[string]string{"color": "red"}},
	)

	_, err := r.RunOnce(ctx, "acme")
	var applyErr *ApplyError
	if !errors.As(err, &applyErr) {
		t.Fatalf("RunOnce error = %v, want ApplyError", err)
	}
	if !errors.Is(err, ErrUnroutedEvent) {
		t.Fatalf("cause = %v, want ErrUnroutedEvent", applyErr.Err)
	}
	if applyErr.EventType != "book-painted" || applyErr.Position != 2 {
		t.Fatalf("unexpected apply error: %+v", applyErr)
	}

	// nothing from the batch may land
	mark, err := store.Mark(ctx, "acme")
	if err != nil || mark != 0 {
		t.Fatalf("mark = (%d, %v) after halt, want 0", mark, err)
	}
	if _, err := store.Get(ctx, "acme", "b1"); !errors.Is(err, readmodel.ErrNotFound) {
		t.Fatalf("document committed despite halt: %v", err)
	}

	r.drain(ctx, "acme")
	if r.Halted("acme") == nil {
		t.Fatal("tenant not marked halted after drain")
	}
}

func TestChangeTypesReflectNetEffect(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryLog()
	store := readmodel.NewMemoryStore[readmodel.BookDoc]()
	listener := &captureListener{}
	r := NewRunner[readmodel.BookDoc](NewBooks(), log, store, Config{Listener: listener})

	steps := []struct {
		ev   seeded
		want ChangeType
	}{
		{bookCreated("b1"), Created},
		{seeded{domain.StreamBook, "b1", domain.EventBookTitleSet, domain.BookTitleSet{Locale: "fr", Title: "Titre"}}, Updated},
		{seeded{domain.StreamBook, "b1", domain.EventBookDeleted, struct{}{}}, Deleted},
		{seeded{domain.StreamBook, "b1", domain.EventBookRestored, struct{}{}}, Updated},
	}
	for i, step := range steps {
		seed(t, log, "acme", step.ev)
		if _, err := r.RunOnce(ctx, "acme"); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		got := listener.sets[len(listener.sets)-1].Changes[0].Type
		if got != step.want {
			t.Fatalf("step %d change = %s, want %s", i, got, step.want)
		}
	}

	// create and delete in one batch collapse to a single Created change
	seed(t, log, "acme",
		bookCreated("b2"),
		seeded{domain.StreamBook, "b2", domain.EventBookDeleted, struct{}{}},
	)
	if _, err := r.RunOnce(ctx, "acme"); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	last := listener.sets[len(listener.sets)-1]
	if len(last.Changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(last.Changes))
	}
	if ch := last.Changes[0]; ch.Type != Created || !ch.Deleted {
		t.Fatalf("unexpected collapsed change: %+v", ch)
	}
}

func TestCeilingCapsBatch(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryLog()
	store := readmodel.NewMemoryStore[readmodel.BookDoc]()
	limit := int64(2)
	r := NewRunner[readmodel.BookDoc](NewBooks(), log, store, Config{
		Ceiling: func(context.Context, string) (int64, error) { return limit, nil },
	})

	seed(t, log, "acme",
		bookCreated("b1"),
		seeded{domain.StreamBook, "b1", domain.EventBookTitleSet, domain.BookTitleSet{Locale: "de", Title: "Eins"}},
		seeded{domain.StreamBook, "b1", domain.EventBookTitleSet, domain.BookTitleSet{Locale: "fr", Title: "Un"}},
	)

	n, err := r.RunOnce(ctx, "acme")
	if err != nil || n != 2 {
		t.Fatalf("RunOnce = (%d, %v), want (2, nil)", n, err)
	}
	limit = 3
	n, err = r.RunOnce(ctx, "acme")
	if err != nil || n != 1 {
		t.Fatalf("RunOnce after raising ceiling = (%d, %v), want (1, nil)", n, err)
	}
}

func TestMinMark(t *testing.T) {
	ctx := context.Background()
	a := readmodel.NewMemoryStore[readmodel.AuthorDoc]()
	b := readmodel.NewMemoryStore[readmodel.CategoryDoc]()

	ceiling := MinMark(a, b)
	got, err := ceiling(ctx, "acme")
	if err != nil || got != 0 {
		t.Fatalf("ceiling with no marks = (%d, %v), want (0, nil)", got, err)
	}

	if err := a.Commit(ctx, "acme", nil, 7); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, err = ceiling(ctx, "acme")
	if err != nil || got != 0 {
		t.Fatalf("ceiling with one missing mark = (%d, %v), want (0, nil)", got, err)
	}

	if err := b.Commit(ctx, "acme", nil, 4); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, err = ceiling(ctx, "acme")
	if err != nil || got != 4 {
		t.Fatalf("ceiling = (%d, %v), want (4, nil)", got, err)
	}
}

func TestRebuildMatchesIncremental(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryLog()
	store := readmodel.NewMemoryStore[readmodel.BookDoc]()
	r := NewRunner[readmodel.BookDoc](NewBooks(), log, store, Config{BatchSize: 3})

	seed(t, log, "acme",
		bookCreated("b1"),
		bookCreated("b2"),
		seeded{domain.StreamBook, "b1", domain.EventBookPriceSet, domain.BookPriceSet{Currency: "EUR", Amount: 1790}},
		seeded{domain.StreamBook, "b2", domain.EventBookDeleted, struct{}{}},
		seeded{domain.StreamBook, "b1", domain.EventBookAuthorAdded, domain.BookAuthorAdded{AuthorID: "a1"}},
		seeded{domain.StreamUser, "u1", domain.EventUserRegistered, domain.UserRegistered{ID: "u1", Name: "Ana"}},
		seeded{domain.StreamBook, "b1", domain.EventBookCategorized, domain.BookCategorized{CategoryID: "c1"}},
	)

	for {
		n, err := r.RunOnce(ctx, "acme")
		if err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
		if n < 3 {
			break
		}
	}
	incremental := listDocs(t, store, "acme")

	if err := r.Rebuild(ctx, "acme"); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	rebuilt := listDocs(t, store, "acme")

	if !reflect.DeepEqual(incremental, rebuilt) {
		t.Fatalf("rebuild diverged\nincremental: %+v\nrebuilt:     %+v", incremental, rebuilt)
	}
	mark, err := store.Mark(ctx, "acme")
	if err != nil || mark != 7 {
		t.Fatalf("mark after rebuild = (%d, %v), want 7", mark, err)
	}
}

func TestResumeAfterRestartMatchesSingleRun(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryLog()
	seed(t, log, "acme",
		bookCreated("b1"),
		seeded{domain.StreamBook, "b1", domain.EventBookTitleSet, domain.BookTitleSet{Locale: "de", Title: "Eins"}},
		bookCreated("b2"),
		seeded{domain.StreamBook, "b2", domain.EventBookPublisherChanged, domain.BookPublisherChanged{PublisherID: "p1"}},
		seeded{domain.StreamBook, "b1", domain.EventBookDeleted, struct{}{}},
	)

	split := readmodel.NewMemoryStore[readmodel.BookDoc]()
	first := NewRunner[readmodel.BookDoc](NewBooks(), log, split, Config{BatchSize: 2})
	if _, err := first.RunOnce(ctx, "acme"); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	second := NewRunner[readmodel.BookDoc](NewBooks(), log, split, Config{BatchSize: 2})
	for {
		n, err := second.RunOnce(ctx, "acme")
		if err != nil {
			t.Fatalf("resume: %v", err)
		}
		if n == 0 {
			break
		}
	}

	whole := readmodel.NewMemoryStore[readmodel.BookDoc]()
	oneShot := NewRunner[readmodel.BookDoc](NewBooks(), log, whole, Config{BatchSize: 100})
	if _, err := oneShot.RunOnce(ctx, "acme"); err != nil {
		t.Fatalf("one shot: %v", err)
	}

	if got, want := listDocs(t, split, "acme"), listDocs(t, whole, "acme"); !reflect.DeepEqual(got, want) {
		t.Fatalf("resumed run diverged\ngot:  %+v\nwant: %+v", got, want)
	}
}

func TestDrainSkipsTenantHeldByRebuild(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryLog()
	store := readmodel.NewMemoryStore[readmodel.BookDoc]()
	r := NewRunner[readmodel.BookDoc](NewBooks(), log, store, Config{})

	seed(t, log, "acme", bookCreated("b1"))
	seed(t, log, "zen", bookCreated("b2"))

	lock := r.tenantLock("acme")
	lock.Lock()

	r.drain(ctx, "acme")
	if _, err := store.Get(ctx, "acme", "b1"); !errors.Is(err, readmodel.ErrNotFound) {
		t.Fatalf("drain folded a held tenant: %v", err)
	}

	// other tenants keep flowing
	r.drain(ctx, "zen")
	if _, err := store.Get(ctx, "zen", "b2"); err != nil {
		t.Fatalf("drain of another tenant blocked: %v", err)
	}

	lock.Unlock()
	r.drain(ctx, "acme")
	if _, err := store.Get(ctx, "acme", "b1"); err != nil {
		t.Fatalf("drain after release: %v", err)
	}
}

func listDocs(t *testing.T, store readmodel.Store[readmodel.BookDoc], tenantID string) []readmodel.BookDoc {
	t.Helper()
	page, err := store.List(context.Background(), tenantID, readmodel.ListOptions{PageSize: 200, IncludeDeleted: true})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	return page.Items
}
