package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// seenWindow is how many notification ids the duplicate filter remembers.
const seenWindow = 1024

// Subscriber consumes the Redis notification channel and hands payloads to
// the broker. Delivery on the channel is at least once; the subscriber drops
// notifications whose id it has already seen.
type Subscriber struct {
	redis   *redis.Client
	channel string
	broker  *Broker
	logger  *logrus.Logger

	mu   sync.Mutex
	seen map[string]struct{}
	ring []string
	next int
}

func NewSubscriber(client *redis.Client, channel string, broker *Broker, logger *logrus.Logger) *Subscriber {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Subscriber{
		redis:   client,
		channel: channel,
		broker:  broker,
		logger:  logger,
		seen:    make(map[string]struct{}, seenWindow),
		ring:    make([]string, seenWindow),
	}
}

// Run consumes the channel until the context is cancelled, resubscribing
// when the connection drops.
func (s *Subscriber) Run(ctx context.Context) {
	log := s.logger.WithField("channel", s.channel)
	for {
		sub := s.redis.Subscribe(ctx, s.channel)
		ch := sub.Channel()
	receive:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break receive
				}
				s.handle(msg.Payload)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		log.Error("notification channel closed, resubscribing")
		time.Sleep(time.Second)
	}
}

func (s *Subscriber) handle(payload string) {
	var n Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		s.logger.WithError(err).Error("unable to parse notification")
		return
	}
	if n.ID != "" && s.duplicate(n.ID) {
		return
	}
	s.broker.Broadcast(n.Tenant, []byte(payload))
}

// duplicate records the id and reports whether it was already known. The
// filter holds the last seenWindow ids.
func (s *Subscriber) duplicate(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return true
	}
	if old := s.ring[s.next]; old != "" {
		delete(s.seen, old)
	}
	s.ring[s.next] = id
	s.next = (s.next + 1) % seenWindow
	s.seen[id] = struct{}{}
	return false
}
