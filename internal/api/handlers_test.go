package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/aalmada/BookStore-sub003/internal/domain"
	"github.com/aalmada/BookStore-sub003/internal/eventlog"
	"github.com/aalmada/BookStore-sub003/internal/queue"
	"github.com/aalmada/BookStore-sub003/internal/readmodel"
	"github.com/aalmada/BookStore-sub003/internal/tenant"
)

// fakeAuth accepts any bearer token and uses the token itself as the
// subject, so tests can choose their caller identity.
type fakeAuth struct{}

func (fakeAuth) UserIDFromAuthHeader(header string) (string, error) {
	token, ok := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	if !ok || token == "" {
		return "", errors.New("missing or malformed authorization header")
	}
	return token, nil
}

type fakeControl struct {
	mu   sync.Mutex
	msgs []queue.Message
}

func (f *fakeControl) Enqueue(_ context.Context, msg queue.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeControl) messages() []queue.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queue.Message(nil), f.msgs...)
}

type fixture struct {
	e          *echo.Echo
	log        *eventlog.MemoryLog
	books      *readmodel.MemoryStore[readmodel.BookDoc]
	authors    *readmodel.MemoryStore[readmodel.AuthorDoc]
	publishers *readmodel.MemoryStore[readmodel.PublisherDoc]
	categories *readmodel.MemoryStore[readmodel.CategoryDoc]
	users      *readmodel.MemoryStore[readmodel.UserDoc]
	stats      *readmodel.MemoryStore[readmodel.BookStatsDoc]
	registry   *tenant.MemoryRegistry
	control    *fakeControl
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		e:          echo.New(),
		log:        eventlog.NewMemoryLog(),
		books:      readmodel.NewMemoryStore[readmodel.BookDoc](),
		authors:    readmodel.NewMemoryStore[readmodel.AuthorDoc](),
		publishers: readmodel.NewMemoryStore[readmodel.PublisherDoc](),
		categories: readmodel.NewMemoryStore[readmodel.CategoryDoc](),
		users:      readmodel.NewMemoryStore[readmodel.UserDoc](),
		stats:      readmodel.NewMemoryStore[readmodel.BookStatsDoc](),
		registry:   tenant.NewMemoryRegistry(),
		control:    &fakeControl{},
	}
	if err := f.registry.Create(context.Background(), tenant.Info{ID: "acme", Name: "Acme"}); err != nil {
		t.Fatalf("register tenant: %v", err)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg := Config{
		Auth: fakeAuth{},
		Log:  f.log,
		Stores: Stores{
			Books:      f.books,
			Authors:    f.authors,
			Publishers: f.publishers,
			Categories: f.categories,
			Users:      f.users,
			Stats:      f.stats,
		},
		Registry:        f.registry,
		Control:         f.control,
		Logger:          logger,
		DefaultTenant:   "acme",
		DefaultLocale:   "en",
		DefaultCurrency: "USD",
		SearchPageSize:  25,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	Register(f.e, cfg)
	return f
}

// do issues one request. Authorization defaults to Bearer alice; a header
// value of "" removes the header instead of setting it.
func (f *fixture) do(t *testing.T, method, target string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer alice")
	for k, v := range hdr {
		if v == "" {
			req.Header.Del(k)
		} else {
			req.Header.Set(k, v)
		}
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) commandResult {
	t.Helper()
	var res commandResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode command result: %v (%s)", err, rec.Body.String())
	}
	return res
}

func decodeErr(t *testing.T, rec *httptest.ResponseRecorder) errBody {
	t.Helper()
	var body errBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return body
}

func seedBooks(t *testing.T, f *fixture, tenantID string, mark int64, docs ...readmodel.BookDoc) {
	t.Helper()
	if err := f.books.Commit(context.Background(), tenantID, docs, mark); err != nil {
		t.Fatalf("seed books: %v", err)
	}
}

func createBookBody(id string) map[string]any {
	return map[string]any{
		"id":     id,
		"titles": map[string]string{"en": "Dune"},
		"prices": map[string]int64{"USD": 999},
	}
}

func TestCreateBookReturnsValidator(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/books", createBookBody("b1"), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("ETag"); got != `"1"` {
		t.Fatalf("unexpected ETag: %s", got)
	}
	if got := rec.Header().Get(echo.HeaderLocation); got != "/api/books/b1" {
		t.Fatalf("unexpected Location: %s", got)
	}
	res := decodeResult(t, rec)
	if res.ID != "b1" || res.Version != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	v, err := f.log.StreamVersion(context.Background(), "acme", domain.StreamBook, "b1")
	if err != nil || v != 1 {
		t.Fatalf("stream version = %d, %v", v, err)
	}
}

func TestVersionGateRoundTrip(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(t, http.MethodPost, "/api/books", createBookBody("b1"), nil); rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", rec.Code, rec.Body.String())
	}

	retitle := map[string]any{"locale": "en", "title": "Dune Messiah"}

	rec := f.do(t, http.MethodPut, "/api/books/b1/title", retitle, map[string]string{"If-Match": `"0"`})
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("stale precondition should fail with 412, got %d", rec.Code)
	}
	if body := decodeErr(t, rec); body.Reason != "version-conflict" {
		t.Fatalf("unexpected reason: %s", body.Reason)
	}
	if got := rec.Header().Get("ETag"); got != `"1"` {
		t.Fatalf("412 should carry the current validator, got %s", got)
	}

	rec = f.do(t, http.MethodPut, "/api/books/b1/title", retitle, map[string]string{"If-Match": `"1"`})
	if rec.Code != http.StatusOK {
		t.Fatalf("matching precondition failed: %d %s", rec.Code, rec.Body.String())
	}
	if res := decodeResult(t, rec); res.Version != 2 {
		t.Fatalf("expected version 2, got %d", res.Version)
	}
	if got := rec.Header().Get("ETag"); got != `"2"` {
		t.Fatalf("unexpected ETag after update: %s", got)
	}

	rec = f.do(t, http.MethodPut, "/api/books/b1/title", retitle, map[string]string{"If-Match": `"1"`})
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("reused validator should fail with 412, got %d", rec.Code)
	}
	if got := rec.Header().Get("ETag"); got != `"2"` {
		t.Fatalf("unexpected current validator: %s", got)
	}

	retitle["title"] = "Children of Dune"
	rec = f.do(t, http.MethodPut, "/api/books/b1/title", retitle, map[string]string{"If-Match": "*"})
	if rec.Code != http.StatusOK {
		t.Fatalf("wildcard precondition failed: %d %s", rec.Code, rec.Body.String())
	}
	if res := decodeResult(t, rec); res.Version != 3 {
		t.Fatalf("expected version 3, got %d", res.Version)
	}
}

func TestCreateExistingBookConflicts(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(t, http.MethodPost, "/api/books", createBookBody("b1"), nil); rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d", rec.Code)
	}
	rec := f.do(t, http.MethodPost, "/api/books", createBookBody("b1"), nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate create should conflict with 409, got %d", rec.Code)
	}
	if body := decodeErr(t, rec); body.Reason != "version-conflict" {
		t.Fatalf("unexpected reason: %s", body.Reason)
	}
}

func TestCreateBookValidation(t *testing.T) {
	f := newFixture(t)

	body := map[string]any{"id": "b1", "prices": map[string]int64{"USD": 999}}
	rec := f.do(t, http.MethodPost, "/api/books", body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := decodeErr(t, rec); got.Reason != "default-locale-title-required" {
		t.Fatalf("unexpected reason: %s", got.Reason)
	}

	if v, _ := f.log.StreamVersion(context.Background(), "acme", domain.StreamBook, "b1"); v != 0 {
		t.Fatalf("rejected command must not append, stream at %d", v)
	}

	rec = f.do(t, http.MethodPost, "/api/books", map[string]any{"id": "b1", "bogus": true}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown fields should be rejected, got %d", rec.Code)
	}
}

func TestGetBookRevalidates(t *testing.T) {
	f := newFixture(t)
	seedBooks(t, f, "acme", 3, readmodel.BookDoc{
		Meta:   readmodel.Meta{ID: "b1", Version: 3, UpdatedAt: 42},
		Titles: map[string]string{"en": "Dune"},
		Prices: map[string]int64{"USD": 999},
	})

	rec := f.do(t, http.MethodGet, "/api/books/b1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("ETag"); got != `"3"` {
		t.Fatalf("unexpected ETag: %s", got)
	}
	var doc readmodel.BookDoc
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode doc: %v", err)
	}
	if doc.Titles["en"] != "Dune" {
		t.Fatalf("unexpected doc: %+v", doc)
	}

	rec = f.do(t, http.MethodGet, "/api/books/b1", nil, map[string]string{"If-None-Match": `"3"`})
	if rec.Code != http.StatusNotModified {
		t.Fatalf("fresh validator should revalidate with 304, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("304 must have no body, got %q", rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/books/b1", nil, map[string]string{"If-None-Match": `"2"`})
	if rec.Code != http.StatusOK {
		t.Fatalf("stale validator should refetch with 200, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/books/nope", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing doc should 404, got %d", rec.Code)
	}
}

func TestDeletedBookHiddenUnlessAsked(t *testing.T) {
	f := newFixture(t)
	seedBooks(t, f, "acme", 2, readmodel.BookDoc{
		Meta:   readmodel.Meta{ID: "b1", Version: 2, Deleted: true, DeletedAt: 7},
		Titles: map[string]string{"en": "Dune"},
	})

	rec := f.do(t, http.MethodGet, "/api/books/b1", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted doc should 404, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/books/b1?includeDeleted=1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("includeDeleted should serve the doc, got %d", rec.Code)
	}
	var doc readmodel.BookDoc
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode doc: %v", err)
	}
	if !doc.Deleted || doc.DeletedAt != 7 {
		t.Fatalf("expected deleted doc, got %+v", doc)
	}
}

func TestGetBookWaitsForMinVersion(t *testing.T) {
	f := newFixture(t)
	seedBooks(t, f, "acme", 1, readmodel.BookDoc{
		Meta:   readmodel.Meta{ID: "b1", Version: 1},
		Titles: map[string]string{"en": "Dune"},
	})

	go func() {
		time.Sleep(250 * time.Millisecond)
		f.books.Commit(context.Background(), "acme", []readmodel.BookDoc{{
			Meta:   readmodel.Meta{ID: "b1", Version: 2},
			Titles: map[string]string{"en": "Dune Messiah"},
		}}, 2)
	}()

	rec := f.do(t, http.MethodGet, "/api/books/b1?minVersion=2", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("ETag"); got != `"2"` {
		t.Fatalf("expected the awaited version, got %s", got)
	}

	rec = f.do(t, http.MethodGet, "/api/books/b1?minVersion=nope", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad minVersion should 400, got %d", rec.Code)
	}
}

func TestListBooksPaging(t *testing.T) {
	f := newFixture(t)
	seedBooks(t, f, "acme", 3,
		readmodel.BookDoc{Meta: readmodel.Meta{ID: "b1", Version: 1}, Titles: map[string]string{"en": "Dune"}},
		readmodel.BookDoc{Meta: readmodel.Meta{ID: "b2", Version: 1}, Titles: map[string]string{"en": "Hyperion"}},
		readmodel.BookDoc{Meta: readmodel.Meta{ID: "b3", Version: 1}, Titles: map[string]string{"en": "Foundation"}},
	)

	rec := f.do(t, http.MethodGet, "/api/books?pageSize=2", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var page readmodel.Page[readmodel.BookDoc]
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Items) != 2 || page.NextToken == "" {
		t.Fatalf("unexpected first page: %d items, token %q", len(page.Items), page.NextToken)
	}

	rec = f.do(t, http.MethodGet, "/api/books?pageSize=2&pageToken="+page.NextToken, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var rest readmodel.Page[readmodel.BookDoc]
	if err := json.Unmarshal(rec.Body.Bytes(), &rest); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(rest.Items) != 1 || rest.NextToken != "" {
		t.Fatalf("unexpected final page: %d items, token %q", len(rest.Items), rest.NextToken)
	}

	if rec := f.do(t, http.MethodGet, "/api/books?pageToken=garbage", nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad token should 400, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/books?pageSize=zero", nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad page size should 400, got %d", rec.Code)
	}
}

func TestTenantIsolation(t *testing.T) {
	f := newFixture(t)
	seedBooks(t, f, "acme", 1, readmodel.BookDoc{Meta: readmodel.Meta{ID: "b1", Version: 1}})
	if err := f.registry.Create(context.Background(), tenant.Info{ID: "globex", Name: "Globex"}); err != nil {
		t.Fatalf("register tenant: %v", err)
	}

	if rec := f.do(t, http.MethodGet, "/api/books/b1", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("owner tenant read failed: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/books/b1", nil, map[string]string{"X-Tenant": "globex"}); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign tenant must not see the doc, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/books/b1", nil, map[string]string{"X-Tenant": "nosuch"}); rec.Code != http.StatusNotFound {
		t.Fatalf("unregistered tenant should 404, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/books/b1", nil, map[string]string{"X-Tenant": "Bad Tenant"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid tenant id should 400, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)
	noAuth := map[string]string{echo.HeaderAuthorization: ""}

	if rec := f.do(t, http.MethodGet, "/api/books", nil, noAuth); rec.Code != http.StatusUnauthorized {
		t.Fatalf("list without auth should 401, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/books", createBookBody("b1"), noAuth); rec.Code != http.StatusUnauthorized {
		t.Fatalf("command without auth should 401, got %d", rec.Code)
	}
	if v, _ := f.log.StreamVersion(context.Background(), "acme", domain.StreamBook, "b1"); v != 0 {
		t.Fatalf("unauthorized command must not append, stream at %d", v)
	}
}

func TestCatalogLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/authors", map[string]any{"id": "a1", "name": "Frank Herbert"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create author failed: %d %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(echo.HeaderLocation); got != "/api/authors/a1" {
		t.Fatalf("unexpected Location: %s", got)
	}

	rec = f.do(t, http.MethodPut, "/api/authors/a1", map[string]any{"name": "F. Herbert"}, map[string]string{"If-Match": `"0"`})
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("stale rename should 412, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodPut, "/api/authors/a1", map[string]any{"name": "F. Herbert"}, map[string]string{"If-Match": `"1"`})
	if rec.Code != http.StatusOK {
		t.Fatalf("rename failed: %d %s", rec.Code, rec.Body.String())
	}
	if res := decodeResult(t, rec); res.Version != 2 {
		t.Fatalf("expected version 2, got %d", res.Version)
	}

	rec = f.do(t, http.MethodDelete, "/api/authors/a1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete failed: %d", rec.Code)
	}
	rec = f.do(t, http.MethodPut, "/api/authors/a1", map[string]any{"name": "X"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("rename of deleted entity should 400, got %d", rec.Code)
	}
	if body := decodeErr(t, rec); body.Reason != "entity-deleted" {
		t.Fatalf("unexpected reason: %s", body.Reason)
	}
	rec = f.do(t, http.MethodPost, "/api/authors/a1/restore", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("restore failed: %d", rec.Code)
	}
	if res := decodeResult(t, rec); res.Version != 4 {
		t.Fatalf("expected version 4 after restore, got %d", res.Version)
	}

	if rec := f.do(t, http.MethodPost, "/api/publishers", map[string]any{"id": "p1", "name": "Chilton"}, nil); rec.Code != http.StatusCreated {
		t.Fatalf("create publisher failed: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/categories", map[string]any{"id": "c1", "name": "Science Fiction"}, nil); rec.Code != http.StatusCreated {
		t.Fatalf("create category failed: %d", rec.Code)
	}
}

func TestUserLifecycle(t *testing.T) {
	f := newFixture(t)
	asAlice := map[string]string{echo.HeaderAuthorization: "Bearer auth0|alice"}

	rec := f.do(t, http.MethodPost, "/api/users", map[string]any{"name": "Alice", "email": "alice@example.com"}, asAlice)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register failed: %d %s", rec.Code, rec.Body.String())
	}
	res := decodeResult(t, rec)
	if res.ID != "auth0_alice" {
		t.Fatalf("subject was not mapped onto the key charset: %s", res.ID)
	}

	rec = f.do(t, http.MethodPut, "/api/users/me/favorites/b1", nil, asAlice)
	if rec.Code != http.StatusOK {
		t.Fatalf("favorite failed: %d %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodPut, "/api/users/me/favorites/b1", nil, asAlice)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("double favorite should 400, got %d", rec.Code)
	}
	if body := decodeErr(t, rec); body.Reason != "already-favorite" {
		t.Fatalf("unexpected reason: %s", body.Reason)
	}
	rec = f.do(t, http.MethodDelete, "/api/users/me/favorites/b9", nil, asAlice)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unfavorite of non-favorite should 400, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPut, "/api/users/me/ratings/b1", map[string]any{"stars": 6}, asAlice)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("out of range rating should 400, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodPut, "/api/users/me/ratings/b1", map[string]any{"stars": 5}, asAlice)
	if rec.Code != http.StatusOK {
		t.Fatalf("rating failed: %d %s", rec.Code, rec.Body.String())
	}
	if res := decodeResult(t, rec); res.Version != 3 {
		t.Fatalf("expected version 3, got %d", res.Version)
	}

	if err := f.users.Commit(context.Background(), "acme", []readmodel.UserDoc{{
		Meta:      readmodel.Meta{ID: "auth0_alice", Version: 3},
		Name:      "Alice",
		Email:     "alice@example.com",
		Favorites: []string{"b1"},
	}}, 3); err != nil {
		t.Fatalf("seed user doc: %v", err)
	}
	rec = f.do(t, http.MethodGet, "/api/users/me", nil, asAlice)
	if rec.Code != http.StatusOK {
		t.Fatalf("get me failed: %d", rec.Code)
	}
	var doc readmodel.UserDoc
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode user doc: %v", err)
	}
	if doc.ID != "auth0_alice" || len(doc.Favorites) != 1 {
		t.Fatalf("unexpected user doc: %+v", doc)
	}
}

func TestBookPromotionCommands(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodPost, "/api/books", createBookBody("b1"), nil); rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d", rec.Code)
	}

	now := time.Now().UnixMilli()
	promo := map[string]any{"id": "promo1", "label": "Summer", "percent": 20, "startsAt": now, "endsAt": now + 86_400_000}
	rec := f.do(t, http.MethodPost, "/api/books/b1/promotions", promo, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("schedule failed: %d %s", rec.Code, rec.Body.String())
	}
	if res := decodeResult(t, rec); res.Version != 2 {
		t.Fatalf("expected version 2, got %d", res.Version)
	}

	overlap := map[string]any{"id": "promo2", "percent": 30, "startsAt": now + 3_600_000, "endsAt": now + 7_200_000}
	rec = f.do(t, http.MethodPost, "/api/books/b1/promotions", overlap, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("overlapping promotion should 400, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodDelete, "/api/books/b1/promotions/promo1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel failed: %d %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodDelete, "/api/books/b1/promotions/promo1", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cancel of unknown promotion should 404, got %d", rec.Code)
	}
}

func TestNudgeEnqueuedAfterWrite(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(t, http.MethodPost, "/api/books", createBookBody("b1"), nil); rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d", rec.Code)
	}
	msgs := f.control.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one nudge, got %d", len(msgs))
	}
	if msgs[0].Kind != queue.KindNudge || msgs[0].Tenant != "acme" {
		t.Fatalf("unexpected message: %+v", msgs[0])
	}

	if rec := f.do(t, http.MethodPost, "/api/books", map[string]any{"id": "b2"}, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected validation failure, got %d", rec.Code)
	}
	if got := len(f.control.messages()); got != 1 {
		t.Fatalf("rejected command must not nudge, got %d messages", got)
	}
}

func TestGzipRequestBody(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(createBookBody("b1")); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/books", &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	req.Header.Set(echo.HeaderAuthorization, "Bearer alice")
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("gzip body should decode, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/books", strings.NewReader("not gzip"))
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	req.Header.Set(echo.HeaderAuthorization, "Bearer alice")
	rec = httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid gzip should 400, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz should 200, got %d", rec.Code)
	}
}
