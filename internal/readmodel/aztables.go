package readmodel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
)

// Each projection gets its own table. Partition key is the tenant, document
// rows are keyed d|<id> and the high-water mark lives in the m row of the
// same partition, so Commit can write documents and mark in one transaction.
const (
	docRowPrefix = "d|"
	markRow      = "m"
)

type docEntity struct {
	PartitionKey  string `json:"PartitionKey"`
	RowKey        string `json:"RowKey"`
	Doc           string `json:"Doc"`
	Version       int64  `json:"Version,string"`
	VersionType   string `json:"Version@odata.type"`
	Deleted       bool   `json:"Deleted"`
	UpdatedAt     int64  `json:"UpdatedAt,string"`
	UpdatedAtType string `json:"UpdatedAt@odata.type"`
}

type markEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Position     int64  `json:"Position,string"`
	PositionType string `json:"Position@odata.type"`
}

const edmInt64 = "Edm.Int64"

// TableStore keeps one projection's documents in an Azure Storage table.
type TableStore[D Doc] struct {
	table *aztables.Client
}

// NewTableStore wraps the given table client.
func NewTableStore[D Doc](table *aztables.Client) *TableStore[D] {
	return &TableStore[D]{table: table}
}

func docRowKey(id string) string {
	return docRowPrefix + id
}

func (s *TableStore[D]) Get(ctx context.Context, tenant, id string) (D, error) {
	var zero D
	resp, err := s.table.GetEntity(ctx, tenant, docRowKey(id), nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return zero, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return zero, wrapErr(err)
	}
	var ent docEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return zero, err
	}
	return decodeDoc[D](ent)
}

func (s *TableStore[D]) List(ctx context.Context, tenant string, opts ListOptions) (Page[D], error) {
	after, err := resumeKey(opts.Token, tenant)
	if err != nil {
		return Page[D]{}, err
	}
	if after == "" {
		after = docRowPrefix
	} else if !strings.HasPrefix(after, docRowPrefix) {
		return Page[D]{}, ErrBadToken
	}
	size := clampPageSize(opts.PageSize)

	filter := fmt.Sprintf("PartitionKey eq '%s' and RowKey gt '%s' and RowKey lt '%s'", tenant, after, upperBound(docRowPrefix))
	if !opts.IncludeDeleted {
		filter += " and Deleted eq false"
	}
	top := int32(size)
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Top: &top})

	page := Page[D]{Items: []D{}}
	lastRow := ""
	for pager.More() && len(page.Items) < size {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return Page[D]{}, wrapErr(err)
		}
		for _, raw := range resp.Entities {
			var ent docEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return Page[D]{}, err
			}
			doc, err := decodeDoc[D](ent)
			if err != nil {
				return Page[D]{}, err
			}
			page.Items = append(page.Items, doc)
			lastRow = ent.RowKey
			if len(page.Items) == size {
				break
			}
		}
	}
	if len(page.Items) == size {
		page.NextToken = encodeToken(tenant, lastRow)
	}
	return page, nil
}

func (s *TableStore[D]) All(ctx context.Context, tenant string) ([]D, error) {
	filter := fmt.Sprintf("PartitionKey eq '%s' and RowKey gt '%s' and RowKey lt '%s' and Deleted eq false",
		tenant, docRowPrefix, upperBound(docRowPrefix))
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	out := []D{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, wrapErr(err)
		}
		for _, raw := range resp.Entities {
			var ent docEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			doc, err := decodeDoc[D](ent)
			if err != nil {
				return nil, err
			}
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *TableStore[D]) Commit(ctx context.Context, tenant string, docs []D, mark int64) error {
	start := 0
	for {
		end := start + MaxCommitDocs
		if end > len(docs) {
			end = len(docs)
		}
		last := end == len(docs)

		actions := make([]aztables.TransactionAction, 0, end-start+1)
		for _, doc := range docs[start:end] {
			ent, err := encodeDoc(tenant, doc)
			if err != nil {
				return err
			}
			payload, err := json.Marshal(ent)
			if err != nil {
				return err
			}
			actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeUpsertReplace, Entity: payload})
		}
		if last {
			payload, err := json.Marshal(markEntity{
				PartitionKey: tenant,
				RowKey:       markRow,
				Position:     mark,
				PositionType: edmInt64,
			})
			if err != nil {
				return err
			}
			actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeUpsertReplace, Entity: payload})
		}
		if _, err := s.table.SubmitTransaction(ctx, actions, nil); err != nil {
			return wrapErr(err)
		}
		if last {
			return nil
		}
		start = end
	}
}

func (s *TableStore[D]) Mark(ctx context.Context, tenant string) (int64, error) {
	resp, err := s.table.GetEntity(ctx, tenant, markRow, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return 0, nil
		}
		return 0, wrapErr(err)
	}
	var ent markEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return 0, err
	}
	return ent.Position, nil
}

func encodeDoc[D Doc](tenant string, doc D) (docEntity, error) {
	blob, err := json.Marshal(doc)
	if err != nil {
		return docEntity{}, err
	}
	return docEntity{
		PartitionKey:  tenant,
		RowKey:        docRowKey(doc.DocID()),
		Doc:           string(blob),
		Version:       doc.DocVersion(),
		VersionType:   edmInt64,
		Deleted:       doc.IsDeleted(),
		UpdatedAt:     doc.LastUpdated(),
		UpdatedAtType: edmInt64,
	}, nil
}

func decodeDoc[D Doc](ent docEntity) (D, error) {
	var doc D
	if err := json.Unmarshal([]byte(ent.Doc), &doc); err != nil {
		return doc, err
	}
	return doc, nil
}

func upperBound(prefix string) string {
	b := []byte(prefix)
	b[len(b)-1]++
	return string(b)
}

func wrapErr(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.StatusCode == 408, respErr.StatusCode == 429, respErr.StatusCode >= 500:
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
	}
	return err
}
