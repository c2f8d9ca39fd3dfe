package readmodel

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and single-node dev runs.
type MemoryStore[D Doc] struct {
	mu      sync.RWMutex
	tenants map[string]*memPartition[D]
}

type memPartition[D Doc] struct {
	docs map[string]D
	mark int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore[D Doc]() *MemoryStore[D] {
	return &MemoryStore[D]{tenants: make(map[string]*memPartition[D])}
}

func (s *MemoryStore[D]) partition(tenant string) *memPartition[D] {
	p, ok := s.tenants[tenant]
	if !ok {
		p = &memPartition[D]{docs: make(map[string]D)}
		s.tenants[tenant] = p
	}
	return p
}

func (s *MemoryStore[D]) Get(_ context.Context, tenant, id string) (D, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var zero D
	p, ok := s.tenants[tenant]
	if !ok {
		return zero, ErrNotFound
	}
	doc, ok := p.docs[id]
	if !ok {
		return zero, ErrNotFound
	}
	return doc, nil
}

func (s *MemoryStore[D]) List(_ context.Context, tenant string, opts ListOptions) (Page[D], error) {
	after, err := resumeKey(opts.Token, tenant)
	if err != nil {
		return Page[D]{}, err
	}
	size := clampPageSize(opts.PageSize)

	s.mu.RLock()
	defer s.mu.RUnlock()

	page := Page[D]{Items: []D{}}
	p, ok := s.tenants[tenant]
	if !ok {
		return page, nil
	}
	ids := make([]string, 0, len(p.docs))
	for id := range p.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if id <= after {
			continue
		}
		doc := p.docs[id]
		if doc.IsDeleted() && !opts.IncludeDeleted {
			continue
		}
		page.Items = append(page.Items, doc)
		if len(page.Items) == size {
			page.NextToken = encodeToken(tenant, id)
			break
		}
	}
	return page, nil
}

func (s *MemoryStore[D]) All(_ context.Context, tenant string) ([]D, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []D{}
	p, ok := s.tenants[tenant]
	if !ok {
		return out, nil
	}
	ids := make([]string, 0, len(p.docs))
	for id := range p.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if doc := p.docs[id]; !doc.IsDeleted() {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *MemoryStore[D]) Commit(_ context.Context, tenant string, docs []D, mark int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.partition(tenant)
	for _, doc := range docs {
		p.docs[doc.DocID()] = doc
	}
	p.mark = mark
	return nil
}

func (s *MemoryStore[D]) Mark(_ context.Context, tenant string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.tenants[tenant]
	if !ok {
		return 0, nil
	}
	return p.mark, nil
}
