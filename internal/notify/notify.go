// Package notify turns committed projection batches into change
// notifications: published to Redis so every instance sees them, and fanned
// out to connected SSE clients by the broker. Notifications carry an id so
// consumers on an at-least-once channel can drop duplicates.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aalmada/BookStore-sub003/internal/projection"
)

// DefaultChannel is the Redis channel change notifications travel on.
const DefaultChannel = "bookstore:changes"

// Notification is one entity change, typed by its net effect: BookCreated,
// AuthorUpdated, CategoryDeleted. A restore arrives as an Updated.
type Notification struct {
	ID       string `json:"id"`
	Tenant   string `json:"tenant"`
	Type     string `json:"type"`
	Kind     string `json:"kind"`
	EntityID string `json:"entityId"`
	Version  int64  `json:"version"`
	Time     int64  `json:"time"`
}

// TypeFor composes the notification type from the entity kind and the net
// change of the commit.
func TypeFor(kind string, change projection.ChangeType) string {
	return kind + string(change)
}

// Publisher sends one notification per changed document to the Redis
// channel.
type Publisher struct {
	redis   *redis.Client
	channel string
	now     func() time.Time
	newID   func() string
}

// NewPublisher creates a Publisher. An empty channel falls back to
// DefaultChannel.
func NewPublisher(client *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{
		redis:   client,
		channel: channel,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Publish emits the change set's notifications. It stops on the first
// failure so the caller can log it; notifications already sent stay sent,
// the rest of the set is dropped. Notifications are advisory, a consumer
// that needs the state re-reads it.
func (p *Publisher) Publish(ctx context.Context, set projection.ChangeSet) error {
	if p == nil || p.redis == nil {
		return nil
	}
	now := p.now().UnixMilli()
	for _, ch := range set.Changes {
		n := Notification{
			ID:       p.newID(),
			Tenant:   set.Tenant,
			Type:     TypeFor(set.Kind, ch.Type),
			Kind:     set.Kind,
			EntityID: ch.ID,
			Version:  ch.Version,
			Time:     now,
		}
		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		if err := p.redis.Publish(ctx, p.channel, data).Err(); err != nil {
			return err
		}
	}
	return nil
}
