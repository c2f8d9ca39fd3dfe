// Package eventlog stores the append-only event history every other part of
// the system is derived from. Events are grouped into streams (one stream per
// entity) and totally ordered per tenant through a feed position.
package eventlog

import "encoding/json"

// Event is one immutable record of a tenant's history.
type Event struct {
	// ID is the globally unique event identifier, assigned on append.
	ID string `json:"id"`
	// Tenant owns the stream this event belongs to.
	Tenant string `json:"tenant"`
	// StreamType and StreamID identify the entity stream.
	StreamType string `json:"streamType"`
	StreamID   string `json:"streamId"`
	// Seq is the 1-based position of the event within its stream. The
	// stream's version equals the Seq of its last event.
	Seq int64 `json:"seq"`
	// Position is the 1-based position within the tenant feed. Positions are
	// dense: committed appends never leave gaps.
	Position int64 `json:"position"`
	// Type tags the payload, e.g. "book-created".
	Type string `json:"type"`
	// Data is the JSON payload.
	Data json.RawMessage `json:"data"`
	// Time is the append time in unix milliseconds.
	Time int64 `json:"time"`

	CorrelationID string `json:"correlationId,omitempty"`
	CausationID   string `json:"causationId,omitempty"`
}

// Pending is an event that has not been appended yet.
type Pending struct {
	Type          string          `json:"type"`
	Data          json.RawMessage `json:"data"`
	CorrelationID string          `json:"correlationId,omitempty"`
	CausationID   string          `json:"causationId,omitempty"`
}

// AppendResult reports where an append landed.
type AppendResult struct {
	// Version is the stream version after the append.
	Version int64
	// FirstPosition and LastPosition delimit the appended events in the
	// tenant feed.
	FirstPosition int64
	LastPosition  int64
}
