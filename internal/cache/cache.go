// Package cache puts a Redis read-through in front of the read-model stores
// and carries the invalidation the commit listener runs after every batch.
// Cache trouble never surfaces to callers: misses and Redis errors fall back
// to the backing store.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aalmada/BookStore-sub003/internal/readmodel"
)

// Store wraps a readmodel store with Redis-backed caching. Single documents
// and the default first page of listings are cached; any customized listing
// goes straight to the backing store.
type Store[D readmodel.Doc] struct {
	base  readmodel.Store[D]
	redis *redis.Client
	kind  string
	ttl   time.Duration
}

// NewStore creates a caching wrapper for one document kind. A nil client
// disables caching and turns the wrapper into a passthrough.
func NewStore[D readmodel.Doc](base readmodel.Store[D], client *redis.Client, kind string, ttl time.Duration) *Store[D] {
	if base == nil {
		panic("cache.NewStore: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Store[D]{base: base, redis: client, kind: kind, ttl: ttl}
}

func (c *Store[D]) Get(ctx context.Context, tenant, id string) (D, error) {
	key := docKey(tenant, c.kind, id)
	if doc, ok := load[D](ctx, c.redis, key); ok {
		return doc, nil
	}

	doc, err := c.base.Get(ctx, tenant, id)
	if err != nil {
		var zero D
		return zero, err
	}
	c.store(ctx, key, doc)
	return doc, nil
}

func (c *Store[D]) List(ctx context.Context, tenant string, opts readmodel.ListOptions) (readmodel.Page[D], error) {
	if !cacheableList(opts) {
		return c.base.List(ctx, tenant, opts)
	}

	key := listKey(tenant, c.kind)
	if page, ok := load[readmodel.Page[D]](ctx, c.redis, key); ok {
		return page, nil
	}

	page, err := c.base.List(ctx, tenant, opts)
	if err != nil {
		return readmodel.Page[D]{}, err
	}
	c.store(ctx, key, page)
	return page, nil
}

func (c *Store[D]) All(ctx context.Context, tenant string) ([]D, error) {
	return c.base.All(ctx, tenant)
}

func (c *Store[D]) Commit(ctx context.Context, tenant string, docs []D, mark int64) error {
	if err := c.base.Commit(ctx, tenant, docs, mark); err != nil {
		return err
	}
	if c.redis != nil && len(docs) > 0 {
		keys := make([]string, 0, len(docs)+1)
		for _, doc := range docs {
			keys = append(keys, docKey(tenant, c.kind, doc.DocID()))
		}
		keys = append(keys, listKey(tenant, c.kind))
		_, _ = c.redis.Del(ctx, keys...).Result()
	}
	return nil
}

func (c *Store[D]) Mark(ctx context.Context, tenant string) (int64, error) {
	return c.base.Mark(ctx, tenant)
}

// cacheableList keeps only the default listing in the cache. Continuations,
// custom page sizes and deleted-inclusive listings always hit the store.
func cacheableList(opts readmodel.ListOptions) bool {
	return opts.Token == "" && opts.PageSize == 0 && !opts.IncludeDeleted
}

func load[V any](ctx context.Context, client *redis.Client, key string) (V, bool) {
	var zero V
	if client == nil {
		return zero, false
	}
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return zero, false
	}
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		// Drop the corrupt entry so the next read repopulates it.
		_ = client.Del(ctx, key).Err()
		return zero, false
	}
	return v, true
}

func (c *Store[D]) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

// Invalidator evicts cache entries after a projection commit. Eviction is a
// DEL of keys that may not exist, so replaying the same commit is harmless.
type Invalidator struct {
	redis *redis.Client
}

func NewInvalidator(client *redis.Client) *Invalidator {
	return &Invalidator{redis: client}
}

// Invalidate drops the listing entry of the kind and the entries of the
// given documents for one tenant.
func (i *Invalidator) Invalidate(ctx context.Context, tenant, kind string, ids ...string) error {
	if i == nil || i.redis == nil {
		return nil
	}
	keys := make([]string, 0, len(ids)+1)
	keys = append(keys, listKey(tenant, kind))
	for _, id := range ids {
		keys = append(keys, docKey(tenant, kind, id))
	}
	return i.redis.Del(ctx, keys...).Err()
}

func docKey(tenant, kind, id string) string {
	return tenant + ":" + kind + ":" + id
}

func listKey(tenant, kind string) string {
	return tenant + ":" + kind
}
