package tenant

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Info describes a registered tenant.
type Info struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"createdAt"`
}

var (
	// ErrExists is returned when creating a tenant that is already registered.
	ErrExists = errors.New("tenant: already exists")
	// ErrNotFound is returned when a tenant is not registered.
	ErrNotFound = errors.New("tenant: not found")
)

// Registry stores the set of known tenants. The system tenant is implicit:
// Get(System) always succeeds and Create(System) always fails.
type Registry interface {
	Create(ctx context.Context, info Info) error
	Get(ctx context.Context, id string) (Info, error)
	List(ctx context.Context) ([]Info, error)
}

func systemInfo() Info {
	return Info{ID: System, Name: "System"}
}

// MemoryRegistry is an in-memory Registry for tests and single-node dev runs.
type MemoryRegistry struct {
	mu      sync.RWMutex
	tenants map[string]Info
}

// NewMemoryRegistry returns an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{tenants: make(map[string]Info)}
}

func (r *MemoryRegistry) Create(_ context.Context, info Info) error {
	if err := ValidateID(info.ID); err != nil {
		return err
	}
	if info.ID == System {
		return ErrExists
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tenants[info.ID]; ok {
		return ErrExists
	}
	r.tenants[info.ID] = info
	return nil
}

func (r *MemoryRegistry) Get(_ context.Context, id string) (Info, error) {
	if id == System {
		return systemInfo(), nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.tenants[id]
	if !ok {
		return Info{}, ErrNotFound
	}
	return info, nil
}

func (r *MemoryRegistry) List(_ context.Context) ([]Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.tenants)+1)
	out = append(out, systemInfo())
	for _, info := range r.tenants {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
