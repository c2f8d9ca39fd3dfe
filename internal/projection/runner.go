package projection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aalmada/BookStore-sub003/internal/eventlog"
	"github.com/aalmada/BookStore-sub003/internal/readmodel"
	"github.com/aalmada/BookStore-sub003/internal/tenant"
)

// ErrUnroutedEvent is the cause of an ApplyError when an owned stream emits
// an event type the projection has no route for.
var ErrUnroutedEvent = errors.New("no route for event on owned stream")

const (
	defaultBatchSize = 128
	defaultInterval  = 2 * time.Second
)

// TenantLister yields the tenants a runner sweeps. tenant.Registry satisfies it.
type TenantLister interface {
	List(ctx context.Context) ([]tenant.Info, error)
}

// MarkSource exposes a projection mark, as every readmodel store does.
type MarkSource interface {
	Mark(ctx context.Context, tenantID string) (int64, error)
}

// CeilingFunc caps how far into the feed a batch may read. It returns the
// highest feed position the runner is allowed to fold for the tenant.
type CeilingFunc func(ctx context.Context, tenantID string) (int64, error)

// MinMark builds a ceiling from the marks of the projections this one reads
// from, so lookups always see state at or past every folded event.
func MinMark(sources ...MarkSource) CeilingFunc {
	return func(ctx context.Context, tenantID string) (int64, error) {
		min := int64(-1)
		for _, src := range sources {
			mark, err := src.Mark(ctx, tenantID)
			if err != nil {
				if errors.Is(err, readmodel.ErrNotFound) {
					return 0, nil
				}
				return 0, err
			}
			if min < 0 || mark < min {
				min = mark
			}
		}
		if min < 0 {
			min = 0
		}
		return min, nil
	}
}

// Config carries the knobs of a Runner. Zero values fall back to defaults.
type Config struct {
	Logger    *logrus.Logger
	Listener  Listener
	Tenants   TenantLister
	BatchSize int
	Interval  time.Duration
	Ceiling   CeilingFunc
}

// Runner drives one projection over the feeds of all tenants.
type Runner[D readmodel.Doc] struct {
	proj     Projection[D]
	log      eventlog.Log
	store    readmodel.Store[D]
	listener Listener
	logger   *logrus.Logger
	tenants  TenantLister
	batch    int
	interval time.Duration
	ceiling  CeilingFunc

	routes Routes
	owned  map[string]bool

	wake chan struct{}

	mu     sync.Mutex
	halted map[string]error
	// locks serializes batches against rebuilds per tenant: a rebuild resets
	// the mark to zero, and a batch folded concurrently would move it past
	// events the rebuild has not replayed yet.
	locks map[string]*sync.Mutex
}

// NewRunner wires a projection to its feed and store.
func NewRunner[D readmodel.Doc](proj Projection[D], log eventlog.Log, store readmodel.Store[D], cfg Config) *Runner[D] {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	owned := make(map[string]bool, len(proj.Owns()))
	for _, st := range proj.Owns() {
		owned[st] = true
	}
	return &Runner[D]{
		proj:     proj,
		log:      log,
		store:    store,
		listener: cfg.Listener,
		logger:   cfg.Logger,
		tenants:  cfg.Tenants,
		batch:    cfg.BatchSize,
		interval: cfg.Interval,
		ceiling:  cfg.Ceiling,
		routes:   proj.Routes(),
		owned:    owned,
		wake:     make(chan struct{}, 1),
		halted:   make(map[string]error),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Name returns the projection name.
func (r *Runner[D]) Name() string { return r.proj.Name() }

// Store returns the document store the runner commits to, so dependent
// runners can gate on its mark.
func (r *Runner[D]) Store() readmodel.Store[D] { return r.store }

// Wake nudges the runner to sweep without waiting for the next tick.
func (r *Runner[D]) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Halted reports whether the projection is stopped for the tenant and why.
func (r *Runner[D]) Halted(tenantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.halted[tenantID]
}

func (r *Runner[D]) halt(tenantID string, err error) {
	r.mu.Lock()
	r.halted[tenantID] = err
	r.mu.Unlock()
}

func (r *Runner[D]) clearHalt(tenantID string) {
	r.mu.Lock()
	delete(r.halted, tenantID)
	r.mu.Unlock()
}

func (r *Runner[D]) tenantLock(tenantID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[tenantID] = l
	}
	return l
}

// Run sweeps all tenants until the context is cancelled. Each sweep drains
// the feed of every tenant that is not halted; between sweeps the runner
// sleeps until the interval elapses or Wake is called.
func (r *Runner[D]) Run(ctx context.Context) {
	log := r.logger.WithField("projection", r.proj.Name())
	log.Info("projection runner started")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		r.sweep(ctx)
		select {
		case <-ctx.Done():
			log.Info("projection runner stopped")
			return
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

func (r *Runner[D]) sweep(ctx context.Context) {
	ids := []string{tenant.System}
	if r.tenants != nil {
		infos, err := r.tenants.List(ctx)
		if err != nil {
			r.logger.WithError(err).WithField("projection", r.proj.Name()).
				Warn("failed to list tenants, sweeping system only")
		} else {
			ids = ids[:0]
			for _, info := range infos {
				ids = append(ids, info.ID)
			}
		}
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if r.Halted(id) != nil {
			continue
		}
		r.drain(ctx, id)
	}
}

func (r *Runner[D]) drain(ctx context.Context, tenantID string) {
	lock := r.tenantLock(tenantID)
	if !lock.TryLock() {
		// A rebuild holds the tenant; pick it up again next sweep.
		return
	}
	defer lock.Unlock()

	log := r.logger.WithFields(logrus.Fields{
		"projection": r.proj.Name(),
		"tenant":     tenantID,
	})
	for {
		n, err := r.RunOnce(ctx, tenantID)
		if err != nil {
			var applyErr *ApplyError
			if errors.As(err, &applyErr) {
				r.halt(tenantID, err)
				log.WithError(applyErr.Err).WithFields(logrus.Fields{
					"eventId":   applyErr.EventID,
					"eventType": applyErr.EventType,
					"position":  applyErr.Position,
				}).Error("projection halted")
				return
			}
			log.WithError(err).Warn("projection batch failed, will retry")
			return
		}
		if n < r.batch {
			return
		}
	}
}

// RunOnce folds one batch of feed events for the tenant and commits the
// documents together with the advanced mark. It returns how many events it
// consumed. An *ApplyError means the projection must not advance until the
// event is resolved; any other error is worth retrying.
func (r *Runner[D]) RunOnce(ctx context.Context, tenantID string) (int, error) {
	mark, err := r.store.Mark(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, readmodel.ErrNotFound) {
			return 0, err
		}
		mark = 0
	}

	events, err := r.log.ReadFeed(ctx, tenantID, mark, r.batch)
	if err != nil {
		return 0, err
	}
	if r.ceiling != nil {
		limit, err := r.ceiling(ctx, tenantID)
		if err != nil {
			return 0, err
		}
		for len(events) > 0 && events[len(events)-1].Position > limit {
			events = events[:len(events)-1]
		}
	}
	if len(events) == 0 {
		return 0, nil
	}

	set := newDocset(r.store, tenantID)
	for _, ev := range events {
		if err := r.apply(ctx, ev, set); err != nil {
			return 0, err
		}
	}

	docs, changes := set.changes()
	lastPos := events[len(events)-1].Position
	if err := r.store.Commit(ctx, tenantID, docs, lastPos); err != nil {
		return 0, err
	}

	if r.listener != nil && len(changes) > 0 {
		r.listener.Committed(ctx, ChangeSet{
			Tenant:     tenantID,
			Projection: r.proj.Name(),
			Kind:       r.proj.Kind(),
			FirstPos:   events[0].Position,
			LastPos:    lastPos,
			Changes:    changes,
		})
	}
	return len(events), nil
}

func (r *Runner[D]) apply(ctx context.Context, ev eventlog.Event, set *Docset[D]) error {
	route, routed := r.routes[ev.Type]
	if !routed {
		if r.owned[ev.StreamType] {
			return r.applyError(ev, ErrUnroutedEvent)
		}
		return nil
	}
	docID, err := route.DocID(ev)
	if err != nil {
		return r.applyError(ev, err)
	}
	if err := r.proj.Apply(ctx, ev, docID, set); err != nil {
		if errors.Is(err, readmodel.ErrTransient) || errors.Is(err, eventlog.ErrTransient) {
			return err
		}
		return r.applyError(ev, err)
	}
	return nil
}

func (r *Runner[D]) applyError(ev eventlog.Event, err error) error {
	return &ApplyError{
		Projection: r.proj.Name(),
		Tenant:     ev.Tenant,
		EventID:    ev.ID,
		EventType:  ev.Type,
		Position:   ev.Position,
		Err:        err,
	}
}

// Rebuild resets the tenant's mark to zero and replays the whole feed.
// Documents are recomputed by upsert, so a rebuild converges to the same
// state incremental processing produced. The tenant is held for the whole
// replay; sweeps skip it until the rebuild finishes.
func (r *Runner[D]) Rebuild(ctx context.Context, tenantID string) error {
	lock := r.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	log := r.logger.WithFields(logrus.Fields{
		"projection": r.proj.Name(),
		"tenant":     tenantID,
	})
	log.Info("rebuild started")
	if err := r.store.Commit(ctx, tenantID, nil, 0); err != nil {
		return err
	}
	r.clearHalt(tenantID)
	total := 0
	for {
		n, err := r.RunOnce(ctx, tenantID)
		if err != nil {
			log.WithError(err).Error("rebuild failed")
			return err
		}
		total += n
		if n < r.batch {
			break
		}
	}
	log.WithField("events", total).Info("rebuild finished")
	return nil
}
