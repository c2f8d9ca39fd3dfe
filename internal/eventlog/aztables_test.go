package eventlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

func TestRowKeysSortByNumber(t *testing.T) {
	keys := []string{feedRowKey(100), feedRowKey(2), feedRowKey(30)}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	if sorted[0] != feedRowKey(2) || sorted[1] != feedRowKey(30) || sorted[2] != feedRowKey(100) {
		t.Fatalf("feed keys sort lexically out of order: %v", sorted)
	}

	if streamRowKey("book", "b1", 2) >= streamRowKey("book", "b1", 10) {
		t.Fatalf("stream keys must sort by seq")
	}
}

func TestStreamRangeExcludesNeighbours(t *testing.T) {
	prefix := streamRowPrefix + "book|b1|"
	upper := upperBound(prefix)

	inside := streamRowKey("book", "b1", 7)
	if inside < prefix || inside >= upper {
		t.Fatalf("own row %q outside range [%q, %q)", inside, prefix, upper)
	}
	outside := []string{
		streamRowKey("book", "b10", 1),
		streamRowKey("book", "b", 1),
		streamRowKey("books", "b1", 1),
		streamMarkerKey("book", "b1"),
		feedRowKey(1),
		feedMarkerRow,
	}
	for _, key := range outside {
		if key >= prefix+"000000000000" && key < upper {
			t.Fatalf("foreign row %q falls inside stream range", key)
		}
	}
}

func TestEventEntityWireFormat(t *testing.T) {
	ent := eventEntity{
		PartitionKey:  "acme",
		RowKey:        feedRowKey(7),
		EventID:       "ev-1",
		StreamType:    "book",
		StreamID:      "b1",
		Seq:           3,
		SeqType:       edmInt64,
		Position:      7,
		PositionType:  edmInt64,
		EventType:     "book-created",
		Data:          `{"title":"Dune"}`,
		EventTime:     1700000000000,
		EventTimeType: edmInt64,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if raw["Seq"] != "3" || raw["Position"] != "7" || raw["EventTime"] != "1700000000000" {
		t.Fatalf("int64 columns must be strings on the wire: %v", raw)
	}
	if raw["Seq@odata.type"] != edmInt64 || raw["Position@odata.type"] != edmInt64 {
		t.Fatalf("odata companions missing: %v", raw)
	}

	var back eventEntity
	if err := json.Unmarshal(payload, &back); err != nil {
		t.Fatalf("unmarshal entity: %v", err)
	}
	ev := entityToEvent(back)
	if ev.Tenant != "acme" || ev.Seq != 3 || ev.Position != 7 || ev.Type != "book-created" {
		t.Fatalf("round trip lost fields: %+v", ev)
	}
	if string(ev.Data) != `{"title":"Dune"}` {
		t.Fatalf("payload mangled: %s", ev.Data)
	}
}

func TestConflictClassification(t *testing.T) {
	conflict := &azcore.ResponseError{StatusCode: 409, ErrorCode: "EntityAlreadyExists"}
	if !isConflict(fmt.Errorf("submit: %w", conflict)) {
		t.Fatalf("409 not recognised as conflict")
	}
	if isConflict(&azcore.ResponseError{StatusCode: 404}) {
		t.Fatalf("404 treated as conflict")
	}

	if err := classify(&azcore.ResponseError{StatusCode: 503}); !errors.Is(err, ErrTransient) {
		t.Fatalf("503 should classify as transient, got %v", err)
	}
	if err := classify(&azcore.ResponseError{StatusCode: 429}); !errors.Is(err, ErrTransient) {
		t.Fatalf("429 should classify as transient, got %v", err)
	}
	if err := classify(&azcore.ResponseError{StatusCode: 400}); errors.Is(err, ErrTransient) {
		t.Fatalf("400 must not classify as transient")
	}
}

func TestUpperBound(t *testing.T) {
	if got := upperBound("e|"); got != "e}" {
		t.Fatalf("upperBound(e|) = %q", got)
	}
	if !strings.HasPrefix(feedRowKey(1), "e|") || feedRowKey(1) >= upperBound("e|") {
		t.Fatalf("feed row outside its own range")
	}
}
