// Package api exposes the bookstore over HTTP. Command endpoints append to
// the event log behind version preconditions, query endpoints serve
// projected documents with ETag validators, and a small admin surface
// manages tenants and projection rebuilds. Live change notifications stream
// out over server-sent events.
package api

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/aalmada/BookStore-sub003/internal/eventlog"
	"github.com/aalmada/BookStore-sub003/internal/queue"
	"github.com/aalmada/BookStore-sub003/internal/readmodel"
	"github.com/aalmada/BookStore-sub003/internal/search"
	"github.com/aalmada/BookStore-sub003/internal/tenant"
)

// Authenticator extracts the caller's subject from an Authorization header.
type Authenticator interface {
	UserIDFromAuthHeader(header string) (string, error)
}

// Searcher runs full-text queries over the projected books.
type Searcher interface {
	Search(ctx context.Context, tenant, query string, size int) (search.Result, error)
}

// Notifier hands out per-tenant change notification channels for the
// change stream endpoint.
type Notifier interface {
	Subscribe(tenant string) (<-chan []byte, func())
}

// ControlQueue posts projector control messages.
type ControlQueue interface {
	Enqueue(ctx context.Context, msg queue.Message) error
}

// Deduper remembers idempotency keys so a retried command is not applied
// twice.
type Deduper interface {
	Add(ctx context.Context, tenant, userID, key string) (bool, error)
	Remove(ctx context.Context, tenant, userID, key string) error
}

// Stores bundles the read models the API serves. Production wiring hands
// in cache-wrapped stores.
type Stores struct {
	Books      readmodel.Store[readmodel.BookDoc]
	Authors    readmodel.Store[readmodel.AuthorDoc]
	Publishers readmodel.Store[readmodel.PublisherDoc]
	Categories readmodel.Store[readmodel.CategoryDoc]
	Users      readmodel.Store[readmodel.UserDoc]
	Stats      readmodel.Store[readmodel.BookStatsDoc]
}

// Config wires the API's dependencies. Auth, Log, Stores and Registry are
// required, the remaining dependencies degrade gracefully when nil.
type Config struct {
	Auth     Authenticator
	Log      eventlog.Log
	Stores   Stores
	Registry tenant.Registry

	// Searcher backs /api/search. Nil turns the endpoint off.
	Searcher Searcher
	// Broker backs /api/changes. Nil turns the endpoint off.
	Broker Notifier
	// Control carries projector nudges and rebuild requests. Nil disables
	// both.
	Control ControlQueue
	// Deduper enforces Idempotency-Key headers. Nil skips the check.
	Deduper Deduper

	Logger *logrus.Logger

	DefaultTenant   string
	DefaultLocale   string
	DefaultCurrency string
	// SearchPageSize is the hit count served when a search request does not
	// name one.
	SearchPageSize int
}

// commandResult is the body returned by every command endpoint. Version
// doubles as the ETag value, quoted.
type commandResult struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
}

// errBody is the error payload. Reason is a stable machine-readable code,
// Message is for humans.
type errBody struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}
