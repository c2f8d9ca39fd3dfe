package readmodel

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("readmodel: document not found")
	// ErrBadToken is returned for malformed or foreign continuation tokens.
	ErrBadToken = errors.New("readmodel: invalid continuation token")
	// ErrTransient marks storage failures worth retrying.
	ErrTransient = errors.New("readmodel: transient storage failure")
)

// MaxCommitDocs is the number of documents a single Commit transaction can
// carry next to the mark row. Larger commits are chunked; the mark always
// lands in the final chunk so an interrupted commit resumes behind the mark.
const MaxCommitDocs = 99

// Doc is implemented by all read-model documents, via Meta.
type Doc interface {
	DocID() string
	DocVersion() int64
	IsDeleted() bool
	LastUpdated() int64
}

// ListOptions shape a List call.
type ListOptions struct {
	// PageSize caps the number of returned documents. Zero means the store
	// default.
	PageSize int
	// Token resumes a previous page.
	Token string
	// IncludeDeleted also returns soft-deleted documents.
	IncludeDeleted bool
}

// Page is one page of documents.
type Page[D Doc] struct {
	Items []D `json:"items"`
	// NextToken resumes after the last item. Empty on the final page.
	NextToken string `json:"nextToken,omitempty"`
}

// Store persists one projection's documents, partitioned by tenant.
//
// Commit writes the batch of changed documents together with the
// projection's new high-water mark: after a crash the projection resumes
// from the stored mark and never observes documents ahead of it. Documents
// are soft-deleted only, a deleted document keeps its content and stays
// readable with IncludeDeleted.
type Store[D Doc] interface {
	Get(ctx context.Context, tenant, id string) (D, error)
	List(ctx context.Context, tenant string, opts ListOptions) (Page[D], error)
	// All returns every live document of the tenant. Denormalizing
	// projections use it to fan a rename out to affected documents.
	All(ctx context.Context, tenant string) ([]D, error)
	Commit(ctx context.Context, tenant string, docs []D, mark int64) error
	Mark(ctx context.Context, tenant string) (int64, error)
}

const defaultPageSize = 50

func clampPageSize(n int) int {
	if n <= 0 {
		return defaultPageSize
	}
	if n > 200 {
		return 200
	}
	return n
}
