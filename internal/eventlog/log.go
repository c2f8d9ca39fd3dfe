package eventlog

import (
	"context"
	"errors"
)

// VersionAny disables the optimistic concurrency check on Append.
const VersionAny int64 = -1

// MaxAppendEvents caps the number of events accepted by a single Append.
// Every event costs two storage operations plus two marker updates, and the
// table transaction that makes appends atomic is limited to 100 operations.
const MaxAppendEvents = 32

var (
	// ErrConcurrencyConflict is returned when Append's expectedVersion does
	// not match the stream's current version.
	ErrConcurrencyConflict = errors.New("eventlog: concurrency conflict")
	// ErrNoEvents is returned when Append is called without events.
	ErrNoEvents = errors.New("eventlog: empty append")
	// ErrTooManyEvents is returned when Append exceeds MaxAppendEvents.
	ErrTooManyEvents = errors.New("eventlog: append exceeds batch limit")
	// ErrInvalidKey is returned for unusable tenant or stream identifiers.
	ErrInvalidKey = errors.New("eventlog: invalid stream key")
	// ErrTransient marks storage failures that are worth retrying, including
	// append contention that outlasted the internal retry budget.
	ErrTransient = errors.New("eventlog: transient storage failure")
)

// Log is the append-only event store.
//
// expectedVersion guards Append: VersionAny skips the check, 0 requires the
// stream to not exist yet, and a positive value requires the stream to be at
// exactly that version. All events of one call are committed atomically and
// receive consecutive stream sequence numbers and feed positions.
type Log interface {
	Append(ctx context.Context, tenant, streamType, streamID string, expectedVersion int64, events []Pending) (AppendResult, error)

	// ReadStream returns the stream's events with Seq >= fromSeq in order.
	// A missing stream yields an empty slice.
	ReadStream(ctx context.Context, tenant, streamType, streamID string, fromSeq int64) ([]Event, error)

	// StreamVersion returns the stream's current version, 0 when the stream
	// does not exist.
	StreamVersion(ctx context.Context, tenant, streamType, streamID string) (int64, error)

	// ReadFeed returns up to limit events of the tenant feed with
	// Position > afterPos, in position order.
	ReadFeed(ctx context.Context, tenant string, afterPos int64, limit int) ([]Event, error)

	// FeedPosition returns the position of the tenant's latest event, 0 when
	// the tenant has no events.
	FeedPosition(ctx context.Context, tenant string) (int64, error)
}

func validateAppend(tenant, streamType, streamID string, expectedVersion int64, events []Pending) error {
	if err := validateKeys(tenant, streamType, streamID); err != nil {
		return err
	}
	if expectedVersion < VersionAny {
		return ErrConcurrencyConflict
	}
	if len(events) == 0 {
		return ErrNoEvents
	}
	if len(events) > MaxAppendEvents {
		return ErrTooManyEvents
	}
	for _, ev := range events {
		if ev.Type == "" {
			return ErrInvalidKey
		}
	}
	return nil
}

func validateKeys(tenant, streamType, streamID string) error {
	if !validKeyPart(tenant) || !validKeyPart(streamType) || !validKeyPart(streamID) {
		return ErrInvalidKey
	}
	return nil
}

// validKeyPart keeps identifiers safe for row key composition: the allowed
// characters all sort below the '|' separator.
func validKeyPart(s string) bool {
	if s == "" || len(s) > 128 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}
