package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aalmada/BookStore-sub003/internal/eventlog"
)

var (
	// ErrNotFound is returned when a stream has no events.
	ErrNotFound = errors.New("domain: entity not found")
	// ErrUnknownEvent is returned when replay encounters an event type the
	// aggregate does not handle. Replay stops instead of skipping: silently
	// dropped events would reconstruct wrong state.
	ErrUnknownEvent = errors.New("domain: unknown event type")
)

// ValidationError reports a rejected command. Reason is a stable
// machine-readable code, Message is for humans.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(reason, format string, args ...any) error {
	return &ValidationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Aggregate is implemented by every entity that replays from a stream.
type Aggregate interface {
	// Apply folds one event into the aggregate's state.
	Apply(ev eventlog.Event) error

	base() *Base
}

// Base carries the bookkeeping shared by all aggregates: identity, the
// version the aggregate was loaded at, lifecycle timestamps and the events
// raised since loading.
type Base struct {
	ID        string
	Version   int64
	Deleted   bool
	DeletedAt int64
	CreatedAt int64
	UpdatedAt int64

	pending []eventlog.Pending
}

func (b *Base) base() *Base { return b }

// Pending returns the events raised since the aggregate was loaded.
func (b *Base) Pending() []eventlog.Pending { return b.pending }

// raise validates an event against the aggregate by applying it, then queues
// it for Save.
func (b *Base) raise(agg Aggregate, eventType string, payload any) error {
	p, err := encode(eventType, payload)
	if err != nil {
		return err
	}
	ev := eventlog.Event{
		Type: eventType,
		Data: p.Data,
		Seq:  b.Version + int64(len(b.pending)) + 1,
		Time: time.Now().UnixMilli(),
	}
	if err := agg.Apply(ev); err != nil {
		return err
	}
	b.pending = append(b.pending, p)
	return nil
}

// touch maintains the lifecycle timestamps while folding.
func (b *Base) touch(ev eventlog.Event) {
	if b.CreatedAt == 0 {
		b.CreatedAt = ev.Time
	}
	b.UpdatedAt = ev.Time
}

func (b *Base) mutable() error {
	if b.Deleted {
		return invalid("entity-deleted", "entity %s is deleted", b.ID)
	}
	return nil
}

// VersionOf reports the version the aggregate was loaded at, for callers
// that hold the interface rather than a concrete type.
func VersionOf(agg Aggregate) int64 { return agg.base().Version }

// Load folds the stream into agg. ErrNotFound is returned for streams
// without events.
func Load(ctx context.Context, log eventlog.Log, tenant, streamType, streamID string, agg Aggregate) error {
	events, err := log.ReadStream(ctx, tenant, streamType, streamID, 1)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, streamType, streamID)
	}
	for _, ev := range events {
		if err := agg.Apply(ev); err != nil {
			return err
		}
		agg.base().Version = ev.Seq
	}
	return nil
}

// Save appends the aggregate's pending events, gated on the version the
// aggregate was loaded at. A fresh aggregate saves with expected version 0,
// which requires the stream to not exist yet.
func Save(ctx context.Context, log eventlog.Log, tenant, streamType, streamID string, agg Aggregate) (eventlog.AppendResult, error) {
	b := agg.base()
	if len(b.pending) == 0 {
		return eventlog.AppendResult{Version: b.Version}, nil
	}
	res, err := log.Append(ctx, tenant, streamType, streamID, b.Version, b.pending)
	if err != nil {
		return eventlog.AppendResult{}, err
	}
	b.Version = res.Version
	b.pending = nil
	return res, nil
}
