package memstore

import (
	"context"
	"sort"

	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen/dto"
)

var _ replen.Repository = (*Store)(nil)

func (s *Store) CreateLocationConfig(ctx context.Context, c *model.LocationReplenConfig) error {
	defer s.acquire(ctx)()
	c.ID = s.st.next("location_replen_configs")
	c.CreatedAt, c.UpdatedAt = s.now(), s.now()
	s.st.locConfigs[c.ID] = *c
	return nil
}

func (s *Store) ListLocationConfigs(ctx context.Context, f *dto.ConfigFilters) ([]model.LocationReplenConfig, error) {
	defer s.acquire(ctx)()
	var out []model.LocationReplenConfig
	for _, c := range s.st.locConfigs {
		if f.LocationID != nil && c.WarehouseLocationID != *f.LocationID {
			continue
		}
		if f.WarehouseID != nil {
			loc, ok := s.st.locations[c.WarehouseLocationID]
			if !ok || loc.WarehouseID != *f.WarehouseID {
				continue
			}
		}
		if f.VariantSpecificOnly && c.ProductVariantID == nil {
			continue
		}
		if f.ActiveOnly && !c.IsActive {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateRule(ctx context.Context, r *model.ReplenRule) error {
	defer s.acquire(ctx)()
	r.ID = s.st.next("replen_rules")
	r.CreatedAt, r.UpdatedAt = s.now(), s.now()
	s.st.rules[r.ID] = *r
	return nil
}

func (s *Store) GetRule(ctx context.Context, pickVariantID int64) (*model.ReplenRule, error) {
	defer s.acquire(ctx)()
	var found *model.ReplenRule
	for _, r := range s.st.rules {
		if r.PickProductVariantID != pickVariantID || !r.IsActive {
			continue
		}
		if found == nil || r.ID < found.ID {
			r := r
			found = &r
		}
	}
	return found, nil
}

func (s *Store) CreateTierDefault(ctx context.Context, t *model.ReplenTierDefault) error {
	defer s.acquire(ctx)()
	t.ID = s.st.next("replen_tier_defaults")
	t.CreatedAt, t.UpdatedAt = s.now(), s.now()
	s.st.tiers[t.ID] = *t
	return nil
}

func (s *Store) GetTierDefault(ctx context.Context, warehouseID *int64, hierarchyLevel int) (*model.ReplenTierDefault, error) {
	defer s.acquire(ctx)()
	var found *model.ReplenTierDefault
	for _, t := range s.st.tiers {
		if !t.IsActive || t.HierarchyLevel != hierarchyLevel || !sameWarehouse(t.WarehouseID, warehouseID) {
			continue
		}
		if found == nil || t.ID < found.ID {
			t := t
			found = &t
		}
	}
	return found, nil
}

func (s *Store) SaveWarehouseSettings(ctx context.Context, ws *model.WarehouseSettings) error {
	defer s.acquire(ctx)()
	for id, existing := range s.st.settings {
		if sameWarehouse(existing.WarehouseID, ws.WarehouseID) {
			ws.ID = id
			break
		}
	}
	if ws.ID == 0 {
		ws.ID = s.st.next("warehouse_settings")
	}
	ws.UpdatedAt = s.now()
	s.st.settings[ws.ID] = *ws
	return nil
}

func (s *Store) GetWarehouseSettings(ctx context.Context, warehouseID *int64) (*model.WarehouseSettings, error) {
	defer s.acquire(ctx)()
	for _, ws := range s.st.settings {
		if sameWarehouse(ws.WarehouseID, warehouseID) {
			return &ws, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateTask(ctx context.Context, t *model.ReplenTask) error {
	defer s.acquire(ctx)()
	t.ID = s.st.next("replen_tasks")
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	s.st.tasks[t.ID] = *t
	return nil
}

func (s *Store) UpdateTask(ctx context.Context, t *model.ReplenTask) error {
	defer s.acquire(ctx)()
	if _, ok := s.st.tasks[t.ID]; !ok {
		return replen.ErrTaskNotFound
	}
	t.UpdatedAt = s.now()
	s.st.tasks[t.ID] = *t
	return nil
}

func (s *Store) GetTask(ctx context.Context, id int64) (*model.ReplenTask, error) {
	defer s.acquire(ctx)()
	t, ok := s.st.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// LockTask is GetTask: a memstore transaction already holds the whole store.
func (s *Store) LockTask(ctx context.Context, id int64) (*model.ReplenTask, error) {
	return s.GetTask(ctx, id)
}

func (s *Store) ListTasks(ctx context.Context, f *dto.TaskFilters) ([]model.ReplenTask, error) {
	defer s.acquire(ctx)()
	var out []model.ReplenTask
	for _, t := range s.st.tasks {
		switch {
		case f.WarehouseID != nil && t.WarehouseID != *f.WarehouseID,
			f.PickVariantID != nil && t.PickProductVariantID != *f.PickVariantID,
			f.ToLocationID != nil && t.ToLocationID != *f.ToLocationID,
			f.DependsOnTaskID != nil && !ptrEq(t.DependsOnTaskID, *f.DependsOnTaskID),
			f.CycleCountID != nil && !ptrEq(t.CycleCountID, *f.CycleCountID),
			f.ExecutionMode != "" && t.ExecutionMode != f.ExecutionMode,
			f.AssignedTo != "" && (t.AssignedTo == nil || *t.AssignedTo != f.AssignedTo),
			len(f.Statuses) > 0 && !hasStatus(f.Statuses, t.Status):
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) CreateCycleCount(ctx context.Context, cc *model.CycleCount, items []model.CycleCountItem) error {
	defer s.acquire(ctx)()
	now := s.now()
	cc.ID = s.st.next("cycle_counts")
	cc.CreatedAt, cc.UpdatedAt = now, now
	s.st.counts[cc.ID] = *cc
	for i := range items {
		items[i].ID = s.st.next("cycle_count_items")
		items[i].CycleCountID = cc.ID
		items[i].CreatedAt = now
		s.st.countItems = append(s.st.countItems, items[i])
	}
	return nil
}

func (s *Store) ListCycleCountItems(ctx context.Context, cycleCountID int64) ([]model.CycleCountItem, error) {
	defer s.acquire(ctx)()
	var out []model.CycleCountItem
	for _, it := range s.st.countItems {
		if it.CycleCountID == cycleCountID {
			out = append(out, it)
		}
	}
	return out, nil
}

func sameWarehouse(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func hasStatus(list []model.TaskStatus, s model.TaskStatus) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
