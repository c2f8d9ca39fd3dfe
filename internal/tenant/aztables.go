package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
)

const registryPartition = "tenant"

type tenantEntity struct {
	PartitionKey  string `json:"PartitionKey"`
	RowKey        string `json:"RowKey"`
	Name          string `json:"Name"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
}

// TableRegistry keeps tenant records in an Azure Storage table.
type TableRegistry struct {
	table *aztables.Client
}

// NewTableRegistry wraps the given table client.
func NewTableRegistry(table *aztables.Client) *TableRegistry {
	return &TableRegistry{table: table}
}

func (r *TableRegistry) Create(ctx context.Context, info Info) error {
	if err := ValidateID(info.ID); err != nil {
		return err
	}
	if info.ID == System {
		return ErrExists
	}
	ent := tenantEntity{
		PartitionKey:  registryPartition,
		RowKey:        info.ID,
		Name:          info.Name,
		CreatedAt:     info.CreatedAt,
		CreatedAtType: "Edm.Int64",
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := r.table.AddEntity(ctx, payload, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 409 {
			return ErrExists
		}
		return err
	}
	return nil
}

func (r *TableRegistry) Get(ctx context.Context, id string) (Info, error) {
	if id == System {
		return systemInfo(), nil
	}
	resp, err := r.table.GetEntity(ctx, registryPartition, id, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return Info{}, ErrNotFound
		}
		return Info{}, err
	}
	var ent tenantEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return Info{}, err
	}
	return Info{ID: ent.RowKey, Name: ent.Name, CreatedAt: ent.CreatedAt}, nil
}

func (r *TableRegistry) List(ctx context.Context) ([]Info, error) {
	filter := "PartitionKey eq '" + registryPartition + "'"
	pager := r.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	out := []Info{systemInfo()}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent tenantEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			out = append(out, Info{ID: ent.RowKey, Name: ent.Name, CreatedAt: ent.CreatedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
