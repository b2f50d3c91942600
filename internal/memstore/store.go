// Package memstore is an in-process implementation of every repository in the
// service. A transaction holds one store-wide lock and restores a snapshot
// when it fails, which gives the same all-or-nothing behaviour as the
// PostgreSQL repositories for tests and local runs.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/fekuna/omnipos-warehouse-service/internal/model"
)

type levelKey struct {
	variantID  int64
	locationID int64
}

type state struct {
	seq map[string]int64

	variants  map[int64]model.ProductVariant
	locations map[int64]model.WarehouseLocation

	levels   map[int64]model.InventoryLevel
	levelIdx map[levelKey]int64
	txns     []model.InventoryTransaction

	locConfigs map[int64]model.LocationReplenConfig
	rules      map[int64]model.ReplenRule
	tiers      map[int64]model.ReplenTierDefault
	settings   map[int64]model.WarehouseSettings

	tasks      map[int64]model.ReplenTask
	counts     map[int64]model.CycleCount
	countItems []model.CycleCountItem
}

func newState() *state {
	return &state{
		seq:        map[string]int64{},
		variants:   map[int64]model.ProductVariant{},
		locations:  map[int64]model.WarehouseLocation{},
		levels:     map[int64]model.InventoryLevel{},
		levelIdx:   map[levelKey]int64{},
		locConfigs: map[int64]model.LocationReplenConfig{},
		rules:      map[int64]model.ReplenRule{},
		tiers:      map[int64]model.ReplenTierDefault{},
		settings:   map[int64]model.WarehouseSettings{},
		tasks:      map[int64]model.ReplenTask{},
		counts:     map[int64]model.CycleCount{},
	}
}

func (s *state) clone() *state {
	c := &state{
		seq:        cloneMap(s.seq),
		variants:   cloneMap(s.variants),
		locations:  cloneMap(s.locations),
		levels:     cloneMap(s.levels),
		levelIdx:   cloneMap(s.levelIdx),
		txns:       append([]model.InventoryTransaction(nil), s.txns...),
		locConfigs: cloneMap(s.locConfigs),
		rules:      cloneMap(s.rules),
		tiers:      cloneMap(s.tiers),
		settings:   cloneMap(s.settings),
		tasks:      cloneMap(s.tasks),
		counts:     cloneMap(s.counts),
		countItems: append([]model.CycleCountItem(nil), s.countItems...),
	}
	return c
}

func (s *state) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// SetClock replaces the source of created_at and updated_at values.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

type txKey struct{}

type txState struct {
	store *Store
	hooks []func()
}

func (s *Store) txFrom(ctx context.Context) (*txState, bool) {
	tx, ok := ctx.Value(txKey{}).(*txState)
	if !ok || tx.store != s {
		return nil, false
	}
	return tx, true
}

// WithinTx serializes fn against every other store call. Nested calls join
// the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := s.txFrom(ctx); ok {
		return fn(ctx)
	}

	s.mu.Lock()
	snapshot := s.st.clone()
	tx := &txState{store: s}

	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				s.st = snapshot
				s.mu.Unlock()
				panic(p)
			}
		}()
		return fn(context.WithValue(ctx, txKey{}, tx))
	}()
	if err != nil {
		s.st = snapshot
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	for _, hook := range tx.hooks {
		hook()
	}
	return nil
}

func (s *Store) AfterCommit(ctx context.Context, fn func()) {
	if tx, ok := s.txFrom(ctx); ok {
		tx.hooks = append(tx.hooks, fn)
		return
	}
	fn()
}

// acquire locks the store unless ctx already runs inside one of its transactions.
func (s *Store) acquire(ctx context.Context) func() {
	if _, ok := s.txFrom(ctx); ok {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func ptrEq(p *int64, v int64) bool {
	return p != nil && *p == v
}
