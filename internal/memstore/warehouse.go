package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"github.com/fekuna/omnipos-warehouse-service/internal/warehouse"
	"github.com/fekuna/omnipos-warehouse-service/internal/warehouse/dto"
)

var _ warehouse.Repository = (*Store)(nil)

func (s *Store) CreateVariant(ctx context.Context, v *model.ProductVariant) error {
	defer s.acquire(ctx)()
	for _, existing := range s.st.variants {
		if existing.SKU == v.SKU {
			return fmt.Errorf("sku %q already exists", v.SKU)
		}
	}
	v.ID = s.st.next("product_variants")
	s.st.variants[v.ID] = *v
	return nil
}

func (s *Store) GetVariant(ctx context.Context, id int64) (*model.ProductVariant, error) {
	defer s.acquire(ctx)()
	v, ok := s.st.variants[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *Store) ListVariantsByProduct(ctx context.Context, productID int64) ([]model.ProductVariant, error) {
	defer s.acquire(ctx)()
	var out []model.ProductVariant
	for _, v := range s.st.variants {
		if v.ProductID == productID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].HierarchyLevel != out[j].HierarchyLevel {
			return out[i].HierarchyLevel < out[j].HierarchyLevel
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CreateLocation(ctx context.Context, l *model.WarehouseLocation) error {
	defer s.acquire(ctx)()
	for _, existing := range s.st.locations {
		if existing.WarehouseID == l.WarehouseID && existing.Code == l.Code {
			return fmt.Errorf("location %q already exists in warehouse %d", l.Code, l.WarehouseID)
		}
	}
	l.ID = s.st.next("warehouse_locations")
	s.st.locations[l.ID] = *l
	return nil
}

func (s *Store) UpdateLocation(ctx context.Context, l *model.WarehouseLocation) error {
	defer s.acquire(ctx)()
	if _, ok := s.st.locations[l.ID]; !ok {
		return warehouse.ErrLocationNotFound
	}
	s.st.locations[l.ID] = *l
	return nil
}

func (s *Store) GetLocation(ctx context.Context, id int64) (*model.WarehouseLocation, error) {
	defer s.acquire(ctx)()
	l, ok := s.st.locations[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (s *Store) ListLocations(ctx context.Context, f *dto.LocationFilters) ([]model.WarehouseLocation, error) {
	defer s.acquire(ctx)()
	var out []model.WarehouseLocation
	for _, l := range s.st.locations {
		switch {
		case f.WarehouseID != nil && l.WarehouseID != *f.WarehouseID,
			f.LocationType != nil && l.LocationType != *f.LocationType,
			f.PickableOnly && !l.IsPickable,
			f.ActiveOnly && !l.IsActive:
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
