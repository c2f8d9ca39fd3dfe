package readmodel

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func seedBooks(t *testing.T, s Store[BookDoc], tenant string, n int) {
	t.Helper()
	docs := make([]BookDoc, 0, n)
	for i := 0; i < n; i++ {
		docs = append(docs, BookDoc{
			Meta:   Meta{ID: fmt.Sprintf("b%02d", i), Version: 1, UpdatedAt: int64(i)},
			Titles: map[string]string{"en": fmt.Sprintf("Book %d", i)},
		})
	}
	if err := s.Commit(context.Background(), tenant, docs, int64(n)); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestMemoryStoreGetCommitMark(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore[BookDoc]()

	if _, err := s.Get(ctx, "acme", "b1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get on empty store = %v, want ErrNotFound", err)
	}
	mark, err := s.Mark(ctx, "acme")
	if err != nil || mark != 0 {
		t.Fatalf("initial mark = %d, %v", mark, err)
	}

	doc := BookDoc{Meta: Meta{ID: "b1", Version: 3}}
	if err := s.Commit(ctx, "acme", []BookDoc{doc}, 17); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got, err := s.Get(ctx, "acme", "b1")
	if err != nil || got.Version != 3 {
		t.Fatalf("get = %+v, %v", got, err)
	}
	mark, _ = s.Mark(ctx, "acme")
	if mark != 17 {
		t.Fatalf("mark = %d, want 17", mark)
	}

	// Mark-only commits advance the cursor without touching documents.
	if err := s.Commit(ctx, "acme", nil, 25); err != nil {
		t.Fatalf("mark-only commit: %v", err)
	}
	mark, _ = s.Mark(ctx, "acme")
	if mark != 25 {
		t.Fatalf("mark = %d, want 25", mark)
	}

	// Tenants are isolated.
	if _, err := s.Get(ctx, "other", "b1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant get = %v, want ErrNotFound", err)
	}
	if mark, _ := s.Mark(ctx, "other"); mark != 0 {
		t.Fatalf("cross-tenant mark = %d, want 0", mark)
	}
}

func TestMemoryStoreListPaging(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore[BookDoc]()
	seedBooks(t, s, "acme", 7)

	page, err := s.List(ctx, "acme", ListOptions{PageSize: 3})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 3 || page.NextToken == "" {
		t.Fatalf("first page: %d items, token %q", len(page.Items), page.NextToken)
	}
	if page.Items[0].ID != "b00" || page.Items[2].ID != "b02" {
		t.Fatalf("page order wrong: %+v", page.Items)
	}

	page2, err := s.List(ctx, "acme", ListOptions{PageSize: 3, Token: page.NextToken})
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(page2.Items) != 3 || page2.Items[0].ID != "b03" {
		t.Fatalf("second page wrong: %+v", page2.Items)
	}

	page3, err := s.List(ctx, "acme", ListOptions{PageSize: 3, Token: page2.NextToken})
	if err != nil {
		t.Fatalf("third page: %v", err)
	}
	if len(page3.Items) != 1 || page3.Items[0].ID != "b06" {
		t.Fatalf("third page wrong: %+v", page3.Items)
	}

	if _, err := s.List(ctx, "acme", ListOptions{Token: "!!!"}); !errors.Is(err, ErrBadToken) {
		t.Fatalf("garbage token = %v, want ErrBadToken", err)
	}
	if _, err := s.List(ctx, "other", ListOptions{Token: page.NextToken}); !errors.Is(err, ErrBadToken) {
		t.Fatalf("foreign token = %v, want ErrBadToken", err)
	}
}

func TestMemoryStoreSoftDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore[BookDoc]()
	seedBooks(t, s, "acme", 3)

	deleted := BookDoc{Meta: Meta{ID: "b01", Version: 2, Deleted: true, DeletedAt: 99}}
	if err := s.Commit(ctx, "acme", []BookDoc{deleted}, 4); err != nil {
		t.Fatalf("commit delete: %v", err)
	}

	// The document stays readable directly.
	got, err := s.Get(ctx, "acme", "b01")
	if err != nil || !got.Deleted || got.DeletedAt != 99 {
		t.Fatalf("deleted doc = %+v, %v", got, err)
	}

	page, _ := s.List(ctx, "acme", ListOptions{})
	if len(page.Items) != 2 {
		t.Fatalf("default list returned %d docs, want 2", len(page.Items))
	}
	page, _ = s.List(ctx, "acme", ListOptions{IncludeDeleted: true})
	if len(page.Items) != 3 {
		t.Fatalf("IncludeDeleted list returned %d docs, want 3", len(page.Items))
	}

	all, _ := s.All(ctx, "acme")
	if len(all) != 2 {
		t.Fatalf("All returned %d docs, want 2 live", len(all))
	}
}
