package notify

import "sync"

// Broker fans notification payloads out to the SSE connections of one
// instance, partitioned by tenant. Sends never block: a subscriber that
// cannot keep up misses messages instead of stalling the rest.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan []byte]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan []byte]struct{})}
}

// Subscribe registers a listener for the tenant. The returned cancel must be
// called when the connection ends.
func (b *Broker) Subscribe(tenant string) (<-chan []byte, func()) {
	ch := make(chan []byte, 8)
	b.mu.Lock()
	tenantSubs, ok := b.subs[tenant]
	if !ok {
		tenantSubs = make(map[chan []byte]struct{})
		b.subs[tenant] = tenantSubs
	}
	tenantSubs[ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(tenantSubs, ch)
		if len(tenantSubs) == 0 {
			delete(b.subs, tenant)
		}
		b.mu.Unlock()
	}
}

// Broadcast delivers the payload to every subscriber of the tenant.
func (b *Broker) Broadcast(tenant string, data []byte) {
	b.mu.Lock()
	for ch := range b.subs[tenant] {
		select {
		case ch <- data:
		default:
		}
	}
	b.mu.Unlock()
}

// Subscribers reports how many connections the tenant has.
func (b *Broker) Subscribers(tenant string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[tenant])
}
