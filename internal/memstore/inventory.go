package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/fekuna/omnipos-warehouse-service/internal/inventory"
	"github.com/fekuna/omnipos-warehouse-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-warehouse-service/internal/model"
)

var _ inventory.Repository = (*Store)(nil)

func (s *Store) GetLevel(ctx context.Context, variantID, locationID int64) (*model.InventoryLevel, error) {
	defer s.acquire(ctx)()
	id, ok := s.st.levelIdx[levelKey{variantID, locationID}]
	if !ok {
		return nil, nil
	}
	lvl := s.st.levels[id]
	return &lvl, nil
}

func (s *Store) GetLevelByID(ctx context.Context, id int64) (*model.InventoryLevel, error) {
	defer s.acquire(ctx)()
	lvl, ok := s.st.levels[id]
	if !ok {
		return nil, nil
	}
	return &lvl, nil
}

func (s *Store) UpsertLevel(ctx context.Context, variantID, locationID int64, seed dto.LevelSeed) (*model.InventoryLevel, bool, error) {
	defer s.acquire(ctx)()
	key := levelKey{variantID, locationID}
	if id, ok := s.st.levelIdx[key]; ok {
		lvl := s.st.levels[id]
		return &lvl, false, nil
	}

	now := s.now()
	lvl := model.InventoryLevel{
		ID:                  s.st.next("inventory_levels"),
		ProductVariantID:    variantID,
		WarehouseLocationID: locationID,
		VariantQty:          seed.VariantQty,
		ReservedQty:         seed.ReservedQty,
		PickedQty:           seed.PickedQty,
		PackedQty:           seed.PackedQty,
		BackorderQty:        seed.BackorderQty,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	s.st.levels[lvl.ID] = lvl
	s.st.levelIdx[key] = lvl.ID
	return &lvl, true, nil
}

func guardHolds(l model.InventoryLevel, g model.Guard) bool {
	switch g.Kind {
	case model.GuardOnHand:
		return l.VariantQty >= g.Min
	case model.GuardAvailable:
		return l.VariantQty-l.ReservedQty >= g.Min
	case model.GuardPicked:
		return l.PickedQty >= g.Min
	}
	return true
}

func (s *Store) ApplyDeltas(ctx context.Context, levelID int64, d model.LevelDeltas, g model.Guard) (*model.LevelChange, error) {
	defer s.acquire(ctx)()
	before, ok := s.st.levels[levelID]
	if !ok {
		return nil, inventory.ErrLevelNotFound
	}
	if !guardHolds(before, g) {
		return nil, nil
	}

	after := before
	after.VariantQty += d.VariantQty
	after.ReservedQty += d.ReservedQty
	if d.ReleaseReserved > 0 {
		release := d.ReleaseReserved
		if avail := max(after.ReservedQty, 0); release > avail {
			release = avail
		}
		after.ReservedQty -= release
	}
	after.PickedQty += d.PickedQty
	after.PackedQty += d.PackedQty
	after.BackorderQty += d.BackorderQty
	after.UpdatedAt = s.now()

	s.st.levels[levelID] = after
	return &model.LevelChange{Before: before, After: after}, nil
}

func (s *Store) InsertTransaction(ctx context.Context, txn *model.InventoryTransaction) error {
	defer s.acquire(ctx)()
	txn.ID = s.st.next("inventory_transactions")
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = s.now()
	}
	s.st.txns = append(s.st.txns, *txn)
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, f *dto.TransactionFilters) ([]model.InventoryTransaction, error) {
	defer s.acquire(ctx)()
	var out []model.InventoryTransaction
	for _, t := range s.st.txns {
		if f.ProductVariantID != nil && t.ProductVariantID != *f.ProductVariantID {
			continue
		}
		if f.LocationID != nil && !ptrEq(t.FromLocationID, *f.LocationID) && !ptrEq(t.ToLocationID, *f.LocationID) {
			continue
		}
		if f.TransactionType != "" && t.TransactionType != f.TransactionType {
			continue
		}
		if f.ReferenceType != "" && (t.ReferenceType == nil || *t.ReferenceType != f.ReferenceType) {
			continue
		}
		if f.ReferenceID != "" && (t.ReferenceID == nil || *t.ReferenceID != f.ReferenceID) {
			continue
		}
		if f.Since != nil && t.CreatedAt.Before(*f.Since) {
			continue
		}
		out = append(out, t)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) FindStock(ctx context.Context, q *dto.StockQuery) ([]model.LocationStock, error) {
	defer s.acquire(ctx)()
	var out []model.LocationStock
	for _, l := range s.st.levels {
		loc, ok := s.st.locations[l.WarehouseLocationID]
		if !ok {
			continue
		}
		switch {
		case q.ProductVariantID != nil && l.ProductVariantID != *q.ProductVariantID,
			q.WarehouseID != nil && loc.WarehouseID != *q.WarehouseID,
			q.LocationID != nil && l.WarehouseLocationID != *q.LocationID,
			q.LocationType != nil && loc.LocationType != *q.LocationType,
			q.ExcludeLocationID != nil && l.WarehouseLocationID == *q.ExcludeLocationID,
			q.PickableOnly && !loc.IsPickable,
			q.ActiveOnly && !loc.IsActive,
			q.PositiveOnly && l.VariantQty <= 0:
			continue
		}
		out = append(out, model.LocationStock{
			LevelID:             l.ID,
			ProductVariantID:    l.ProductVariantID,
			WarehouseLocationID: l.WarehouseLocationID,
			WarehouseID:         loc.WarehouseID,
			LocationType:        loc.LocationType,
			IsPickable:          loc.IsPickable,
			VariantQty:          l.VariantQty,
			ReservedQty:         l.ReservedQty,
			UpdatedAt:           l.UpdatedAt,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch q.OrderBy {
		case model.PrioritySmallestFirst:
			if a.VariantQty != b.VariantQty {
				return a.VariantQty < b.VariantQty
			}
		case model.PriorityFIFO:
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.Before(b.UpdatedAt)
			}
		}
		return a.LevelID < b.LevelID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) PickedQuantitySince(ctx context.Context, variantID, locationID int64, since time.Time) (int, error) {
	defer s.acquire(ctx)()
	total := 0
	for _, t := range s.st.txns {
		if t.TransactionType != model.TxnPick || t.ProductVariantID != variantID || !ptrEq(t.FromLocationID, locationID) {
			continue
		}
		if t.CreatedAt.Before(since) {
			continue
		}
		total += abs(t.PickedQtyDelta)
	}
	return total, nil
}

func (s *Store) UsedCube(ctx context.Context, locationID int64) (int64, error) {
	defer s.acquire(ctx)()
	var used int64
	for _, l := range s.st.levels {
		if l.WarehouseLocationID != locationID || l.VariantQty <= 0 {
			continue
		}
		v, ok := s.st.variants[l.ProductVariantID]
		if !ok || v.CubeCm3 == nil {
			continue
		}
		used += int64(l.VariantQty) * *v.CubeCm3
	}
	return used, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
