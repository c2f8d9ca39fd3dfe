package search

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/aalmada/BookStore-sub003/internal/readmodel"
)

// fakeOpenSearch emulates the handful of endpoints the indexer touches.
type fakeOpenSearch struct {
	mu          sync.Mutex
	indexed     map[string]json.RawMessage
	bulkFail    bool
	created     int
	indexExists bool
	lastSearch  []byte
	searchHits  []indexedBook
}

func (f *fakeOpenSearch) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/":
			fmt.Fprint(w, `{"name":"fake","version":{"number":"2.11.0","distribution":"opensearch"}}`)
		case strings.HasSuffix(r.URL.Path, "/_bulk"):
			f.handleBulk(w, r)
		case strings.HasSuffix(r.URL.Path, "/_search"):
			f.handleSearch(w, r)
		case r.Method == http.MethodHead:
			f.mu.Lock()
			exists := f.indexExists
			f.mu.Unlock()
			if exists {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusNotFound)
			}
		case r.Method == http.MethodPut:
			f.mu.Lock()
			f.created++
			f.indexExists = true
			f.mu.Unlock()
			fmt.Fprint(w, `{"acknowledged":true}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (f *fakeOpenSearch) handleBulk(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexed == nil {
		f.indexed = make(map[string]json.RawMessage)
	}

	type item struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	}
	var items []map[string]item
	hadErrors := false

	scanner := bufio.NewScanner(r.Body)
	for scanner.Scan() {
		var action map[string]struct {
			ID string `json:"_id"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &action); err != nil {
			continue
		}
		meta, ok := action["index"]
		if !ok {
			continue
		}
		if !scanner.Scan() {
			break
		}
		doc := append(json.RawMessage(nil), scanner.Bytes()...)
		if f.bulkFail {
			hadErrors = true
			items = append(items, map[string]item{"index": {
				ID: meta.ID, Status: 500,
				Error: &struct {
					Type   string `json:"type"`
					Reason string `json:"reason"`
				}{Type: "mapper_parsing_exception", Reason: "boom"},
			}})
			continue
		}
		f.indexed[meta.ID] = doc
		items = append(items, map[string]item{"index": {ID: meta.ID, Status: 200}})
	}

	resp := map[string]any{"took": 1, "errors": hadErrors, "items": items}
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeOpenSearch) handleSearch(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r.Body)
	f.lastSearch = buf.Bytes()

	hits := make([]map[string]any, 0, len(f.searchHits))
	for _, h := range f.searchHits {
		hits = append(hits, map[string]any{"_source": h})
	}
	resp := map[string]any{
		"hits": map[string]any{
			"total": map[string]any{"value": len(f.searchHits)},
			"hits":  hits,
		},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestIndexer(t *testing.T, fake *fakeOpenSearch) *Indexer {
	t.Helper()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	ix, err := NewIndexer(Config{URL: server.URL, Index: "books-test"}, logrus.New())
	if err != nil {
		t.Fatalf("NewIndexer: %v", err)
	}
	return ix
}

func TestIndexUpsertsBatch(t *testing.T) {
	fake := &fakeOpenSearch{}
	ix := newTestIndexer(t, fake)

	docs := []readmodel.BookSearchDoc{
		{Meta: readmodel.Meta{ID: "b1", Version: 3}, Title: "Dune", AuthorNames: []string{"Frank Herbert"}},
		{Meta: readmodel.Meta{ID: "b2", Version: 1, Deleted: true}, Title: "Gone"},
	}
	if err := ix.Index(context.Background(), "acme", docs); err != nil {
		t.Fatalf("Index: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.indexed) != 2 {
		t.Fatalf("indexed %d docs, want 2", len(fake.indexed))
	}
	raw, ok := fake.indexed["acme:b1"]
	if !ok {
		t.Fatalf("missing doc id, got %v", fake.indexed)
	}
	var doc indexedBook
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal indexed doc: %v", err)
	}
	if doc.Tenant != "acme" || doc.Title != "Dune" || doc.Version != 3 {
		t.Fatalf("unexpected indexed doc: %+v", doc)
	}
	var deleted indexedBook
	if err := json.Unmarshal(fake.indexed["acme:b2"], &deleted); err != nil {
		t.Fatalf("unmarshal deleted doc: %v", err)
	}
	if !deleted.Deleted {
		t.Fatal("soft delete flag lost on the way to the index")
	}
}

func TestIndexReportsItemFailures(t *testing.T) {
	fake := &fakeOpenSearch{bulkFail: true}
	ix := newTestIndexer(t, fake)

	docs := []readmodel.BookSearchDoc{{Meta: readmodel.Meta{ID: "b1"}, Title: "Dune"}}
	err := ix.Index(context.Background(), "acme", docs)
	if err == nil || !strings.Contains(err.Error(), "1 of 1") {
		t.Fatalf("Index error = %v, want item failure", err)
	}
}

func TestIndexSkipsEmptyBatch(t *testing.T) {
	fake := &fakeOpenSearch{}
	ix := newTestIndexer(t, fake)
	if err := ix.Index(context.Background(), "acme", nil); err != nil {
		t.Fatalf("Index: %v", err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.indexed) != 0 {
		t.Fatal("empty batch sent requests")
	}
}

func TestSearchBuildsTenantScopedQuery(t *testing.T) {
	fake := &fakeOpenSearch{searchHits: []indexedBook{
		{Tenant: "acme", BookSearchDoc: readmodel.BookSearchDoc{Meta: readmodel.Meta{ID: "b1"}, Title: "Dune"}},
	}}
	ix := newTestIndexer(t, fake)

	res, err := ix.Search(context.Background(), "acme", "dune", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Total != 1 || len(res.Items) != 1 || res.Items[0].Title != "Dune" {
		t.Fatalf("unexpected result: %+v", res)
	}

	var query map[string]any
	if err := json.Unmarshal(fake.lastSearch, &query); err != nil {
		t.Fatalf("parse query: %v", err)
	}
	body := string(fake.lastSearch)
	for _, want := range []string{`"tenant":"acme"`, `"deleted":true`, `"query":"dune"`, `"title^2"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("query missing %s: %s", want, body)
		}
	}
}

func TestEnsureIndexCreatesOnlyOnce(t *testing.T) {
	fake := &fakeOpenSearch{}
	ix := newTestIndexer(t, fake)
	ctx := context.Background()

	if err := ix.EnsureIndex(ctx); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if err := ix.EnsureIndex(ctx); err != nil {
		t.Fatalf("second EnsureIndex: %v", err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.created != 1 {
		t.Fatalf("index created %d times, want 1", fake.created)
	}
}

func TestNewIndexerFailsWhenPingFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	if _, err := NewIndexer(Config{URL: server.URL}, nil); err == nil {
		t.Fatal("expected connection error")
	}
}
