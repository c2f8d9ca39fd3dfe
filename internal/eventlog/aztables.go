package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"
)

// Row layout of the events table, one partition per tenant:
//
//	e|<position>                      feed copy, drives projections
//	v|<type>|<id>|<seq>               stream copy, drives reconstruction
//	s|<type>|<id>                     stream version marker
//	m|feed                            feed position marker
//
// Both copies of an append plus the marker updates go into one transaction,
// so either every row of an append is visible or none is. The event copies
// are inserted with Add semantics: a concurrent append of the same stream or
// feed position makes the whole transaction fail with a conflict.
const (
	feedRowPrefix   = "e|"
	streamRowPrefix = "v|"
	streamMarkerRow = "s|"
	feedMarkerRow   = "m|feed"
)

const maxAppendAttempts = 4

const edmInt64 = "Edm.Int64"

type eventEntity struct {
	PartitionKey  string `json:"PartitionKey"`
	RowKey        string `json:"RowKey"`
	EventID       string `json:"EventID"`
	StreamType    string `json:"StreamType"`
	StreamID      string `json:"StreamID"`
	Seq           int64  `json:"Seq,string"`
	SeqType       string `json:"Seq@odata.type"`
	Position      int64  `json:"Position,string"`
	PositionType  string `json:"Position@odata.type"`
	EventType     string `json:"EventType"`
	Data          string `json:"Data"`
	EventTime     int64  `json:"EventTime,string"`
	EventTimeType string `json:"EventTime@odata.type"`
	CorrelationID string `json:"CorrelationID,omitempty"`
	CausationID   string `json:"CausationID,omitempty"`
}

type streamMarkerEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Version      int64  `json:"Version,string"`
	VersionType  string `json:"Version@odata.type"`
}

type feedMarkerEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Position     int64  `json:"Position,string"`
	PositionType string `json:"Position@odata.type"`
}

// TableLog stores events in a single Azure Storage table.
type TableLog struct {
	table *aztables.Client
	now   func() time.Time
	newID func() string
}

// NewTableLog wraps the given table client.
func NewTableLog(table *aztables.Client) *TableLog {
	return &TableLog{table: table, now: time.Now, newID: uuid.NewString}
}

func feedRowKey(position int64) string {
	return fmt.Sprintf("%s%020d", feedRowPrefix, position)
}

func streamRowKey(streamType, streamID string, seq int64) string {
	return fmt.Sprintf("%s%s|%s|%012d", streamRowPrefix, streamType, streamID, seq)
}

func streamMarkerKey(streamType, streamID string) string {
	return streamMarkerRow + streamType + "|" + streamID
}

func (l *TableLog) Append(ctx context.Context, tenant, streamType, streamID string, expectedVersion int64, events []Pending) (AppendResult, error) {
	if err := validateAppend(tenant, streamType, streamID, expectedVersion, events); err != nil {
		return AppendResult{}, err
	}
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		version, err := l.StreamVersion(ctx, tenant, streamType, streamID)
		if err != nil {
			return AppendResult{}, err
		}
		if expectedVersion != VersionAny && version != expectedVersion {
			return AppendResult{}, fmt.Errorf("%w: stream %s|%s at version %d, expected %d",
				ErrConcurrencyConflict, streamType, streamID, version, expectedVersion)
		}
		position, err := l.FeedPosition(ctx, tenant)
		if err != nil {
			return AppendResult{}, err
		}
		res, err := l.submitAppend(ctx, tenant, streamType, streamID, version, position, events)
		if err == nil {
			return res, nil
		}
		if !isConflict(err) {
			return AppendResult{}, classify(err)
		}
		// Another append won the partition. Re-reading the markers either
		// surfaces a concurrency conflict or yields fresh positions.
	}
	return AppendResult{}, fmt.Errorf("%w: append contention persisted after %d attempts", ErrTransient, maxAppendAttempts)
}

func (l *TableLog) submitAppend(ctx context.Context, tenant, streamType, streamID string, version, position int64, events []Pending) (AppendResult, error) {
	actions := make([]aztables.TransactionAction, 0, 2*len(events)+2)
	now := l.now().UnixMilli()
	for i, p := range events {
		ent := eventEntity{
			PartitionKey:  tenant,
			EventID:       l.newID(),
			StreamType:    streamType,
			StreamID:      streamID,
			Seq:           version + int64(i) + 1,
			SeqType:       edmInt64,
			Position:      position + int64(i) + 1,
			PositionType:  edmInt64,
			EventType:     p.Type,
			Data:          string(p.Data),
			EventTime:     now,
			EventTimeType: edmInt64,
			CorrelationID: p.CorrelationID,
			CausationID:   p.CausationID,
		}

		ent.RowKey = feedRowKey(ent.Position)
		payload, err := json.Marshal(ent)
		if err != nil {
			return AppendResult{}, err
		}
		actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeAdd, Entity: payload})

		ent.RowKey = streamRowKey(streamType, streamID, ent.Seq)
		payload, err = json.Marshal(ent)
		if err != nil {
			return AppendResult{}, err
		}
		actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeAdd, Entity: payload})
	}

	newVersion := version + int64(len(events))
	lastPosition := position + int64(len(events))
	marker, err := json.Marshal(streamMarkerEntity{
		PartitionKey: tenant,
		RowKey:       streamMarkerKey(streamType, streamID),
		Version:      newVersion,
		VersionType:  edmInt64,
	})
	if err != nil {
		return AppendResult{}, err
	}
	actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeUpsertReplace, Entity: marker})

	marker, err = json.Marshal(feedMarkerEntity{
		PartitionKey: tenant,
		RowKey:       feedMarkerRow,
		Position:     lastPosition,
		PositionType: edmInt64,
	})
	if err != nil {
		return AppendResult{}, err
	}
	actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeUpsertReplace, Entity: marker})

	if _, err := l.table.SubmitTransaction(ctx, actions, nil); err != nil {
		return AppendResult{}, err
	}
	return AppendResult{
		Version:       newVersion,
		FirstPosition: position + 1,
		LastPosition:  lastPosition,
	}, nil
}

func (l *TableLog) ReadStream(ctx context.Context, tenant, streamType, streamID string, fromSeq int64) ([]Event, error) {
	if err := validateKeys(tenant, streamType, streamID); err != nil {
		return nil, err
	}
	if fromSeq < 1 {
		fromSeq = 1
	}
	prefix := streamRowPrefix + streamType + "|" + streamID + "|"
	filter := fmt.Sprintf("PartitionKey eq '%s' and RowKey ge '%s' and RowKey lt '%s'",
		tenant, prefix+fmt.Sprintf("%012d", fromSeq), upperBound(prefix))
	return l.queryEvents(ctx, filter, 0)
}

func (l *TableLog) StreamVersion(ctx context.Context, tenant, streamType, streamID string) (int64, error) {
	if err := validateKeys(tenant, streamType, streamID); err != nil {
		return 0, err
	}
	resp, err := l.table.GetEntity(ctx, tenant, streamMarkerKey(streamType, streamID), nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return 0, nil
		}
		return 0, classify(err)
	}
	var marker streamMarkerEntity
	if err := json.Unmarshal(resp.Value, &marker); err != nil {
		return 0, err
	}
	return marker.Version, nil
}

func (l *TableLog) ReadFeed(ctx context.Context, tenant string, afterPos int64, limit int) ([]Event, error) {
	if !validKeyPart(tenant) {
		return nil, ErrInvalidKey
	}
	if limit <= 0 {
		return []Event{}, nil
	}
	if afterPos < 0 {
		afterPos = 0
	}
	filter := fmt.Sprintf("PartitionKey eq '%s' and RowKey gt '%s' and RowKey lt '%s'",
		tenant, feedRowKey(afterPos), upperBound(feedRowPrefix))
	return l.queryEvents(ctx, filter, limit)
}

func (l *TableLog) FeedPosition(ctx context.Context, tenant string) (int64, error) {
	if !validKeyPart(tenant) {
		return 0, ErrInvalidKey
	}
	resp, err := l.table.GetEntity(ctx, tenant, feedMarkerRow, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return 0, nil
		}
		return 0, classify(err)
	}
	var marker feedMarkerEntity
	if err := json.Unmarshal(resp.Value, &marker); err != nil {
		return 0, err
	}
	return marker.Position, nil
}

// queryEvents runs a filtered scan. limit 0 reads the full result set.
func (l *TableLog) queryEvents(ctx context.Context, filter string, limit int) ([]Event, error) {
	opts := &aztables.ListEntitiesOptions{Filter: &filter}
	if limit > 0 {
		top := int32(limit)
		opts.Top = &top
	}
	pager := l.table.NewListEntitiesPager(opts)
	out := []Event{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classify(err)
		}
		for _, raw := range resp.Entities {
			var ent eventEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			out = append(out, entityToEvent(ent))
			if limit > 0 && len(out) == limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func entityToEvent(ent eventEntity) Event {
	return Event{
		ID:            ent.EventID,
		Tenant:        ent.PartitionKey,
		StreamType:    ent.StreamType,
		StreamID:      ent.StreamID,
		Seq:           ent.Seq,
		Position:      ent.Position,
		Type:          ent.EventType,
		Data:          json.RawMessage(ent.Data),
		Time:          ent.EventTime,
		CorrelationID: ent.CorrelationID,
		CausationID:   ent.CausationID,
	}
}

// upperBound returns the smallest row key greater than every key that starts
// with prefix.
func upperBound(prefix string) string {
	b := []byte(prefix)
	b[len(b)-1]++
	return string(b)
}

func isConflict(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && (respErr.StatusCode == 409 || respErr.StatusCode == 412)
}

func classify(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.StatusCode == 408, respErr.StatusCode == 429, respErr.StatusCode >= 500:
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
	}
	return err
}
