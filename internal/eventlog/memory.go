package eventlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLog is an in-memory Log with the same semantics as the table-backed
// implementation. It backs tests and single-node dev runs.
type MemoryLog struct {
	mu      sync.Mutex
	tenants map[string]*memTenant
	now     func() time.Time
	newID   func() string
}

type memTenant struct {
	feed    []Event
	streams map[string][]int64
}

// NewMemoryLog returns an empty MemoryLog.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		tenants: make(map[string]*memTenant),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

func streamKey(streamType, streamID string) string {
	return streamType + "|" + streamID
}

func (l *MemoryLog) tenant(tenant string) *memTenant {
	t, ok := l.tenants[tenant]
	if !ok {
		t = &memTenant{streams: make(map[string][]int64)}
		l.tenants[tenant] = t
	}
	return t
}

func (l *MemoryLog) Append(_ context.Context, tenant, streamType, streamID string, expectedVersion int64, events []Pending) (AppendResult, error) {
	if err := validateAppend(tenant, streamType, streamID, expectedVersion, events); err != nil {
		return AppendResult{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.tenant(tenant)
	key := streamKey(streamType, streamID)
	version := int64(len(t.streams[key]))
	if expectedVersion != VersionAny && version != expectedVersion {
		return AppendResult{}, fmt.Errorf("%w: stream %s at version %d, expected %d", ErrConcurrencyConflict, key, version, expectedVersion)
	}

	now := l.now().UnixMilli()
	first := int64(len(t.feed)) + 1
	for i, p := range events {
		ev := Event{
			ID:            l.newID(),
			Tenant:        tenant,
			StreamType:    streamType,
			StreamID:      streamID,
			Seq:           version + int64(i) + 1,
			Position:      first + int64(i),
			Type:          p.Type,
			Data:          append([]byte(nil), p.Data...),
			Time:          now,
			CorrelationID: p.CorrelationID,
			CausationID:   p.CausationID,
		}
		t.feed = append(t.feed, ev)
		t.streams[key] = append(t.streams[key], ev.Position)
	}
	return AppendResult{
		Version:       version + int64(len(events)),
		FirstPosition: first,
		LastPosition:  first + int64(len(events)) - 1,
	}, nil
}

func (l *MemoryLog) ReadStream(_ context.Context, tenant, streamType, streamID string, fromSeq int64) ([]Event, error) {
	if err := validateKeys(tenant, streamType, streamID); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.tenants[tenant]
	if !ok {
		return []Event{}, nil
	}
	positions := t.streams[streamKey(streamType, streamID)]
	out := []Event{}
	for _, pos := range positions {
		ev := t.feed[pos-1]
		if ev.Seq >= fromSeq {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (l *MemoryLog) StreamVersion(_ context.Context, tenant, streamType, streamID string) (int64, error) {
	if err := validateKeys(tenant, streamType, streamID); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.tenants[tenant]
	if !ok {
		return 0, nil
	}
	return int64(len(t.streams[streamKey(streamType, streamID)])), nil
}

func (l *MemoryLog) ReadFeed(_ context.Context, tenant string, afterPos int64, limit int) ([]Event, error) {
	if !validKeyPart(tenant) {
		return nil, ErrInvalidKey
	}
	if limit <= 0 {
		return []Event{}, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.tenants[tenant]
	if !ok {
		return []Event{}, nil
	}
	if afterPos < 0 {
		afterPos = 0
	}
	if afterPos >= int64(len(t.feed)) {
		return []Event{}, nil
	}
	end := afterPos + int64(limit)
	if end > int64(len(t.feed)) {
		end = int64(len(t.feed))
	}
	out := make([]Event, end-afterPos)
	copy(out, t.feed[afterPos:end])
	return out, nil
}

func (l *MemoryLog) FeedPosition(_ context.Context, tenant string) (int64, error) {
	if !validKeyPart(tenant) {
		return 0, ErrInvalidKey
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.tenants[tenant]
	if !ok {
		return 0, nil
	}
	return int64(len(t.feed)), nil
}
