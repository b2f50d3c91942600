// Package locator picks the bin a replenishment move is drawn from.
package locator

import (
	"context"
	"fmt"

	"github.com/fekuna/omnipos-warehouse-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-warehouse-service/internal/model"
)

type StockFinder interface {
	FindStock(ctx context.Context, query *dto.StockQuery) ([]model.LocationStock, error)
}

type LocationGetter interface {
	GetLocation(ctx context.Context, id int64) (*model.WarehouseLocation, error)
}

type Request struct {
	SourceVariantID int64
	WarehouseID     int64
	// DestinationID is never returned as a source.
	DestinationID int64
	SourceType    model.LocationType
	Priority      model.SourcePriority
	// ExcludeIDs are skipped in addition to the destination.
	ExcludeIDs []int64
}

type Locator struct {
	stock     StockFinder
	locations LocationGetter
}

func New(stock StockFinder, locations LocationGetter) *Locator {
	return &Locator{stock: stock, locations: locations}
}

// Find returns the dedicated parent of the destination when it holds the
// source variant, otherwise the first bin of the source type in priority
// order. It returns nil when nothing holds stock.
func (l *Locator) Find(ctx context.Context, req Request) (*model.LocationStock, error) {
	if s, err := l.dedicatedParent(ctx, req); err != nil || s != nil {
		return s, err
	}

	sourceType := req.SourceType
	if sourceType == "" {
		sourceType = model.LocationReserve
	}
	rows, err := l.stock.FindStock(ctx, &dto.StockQuery{
		ProductVariantID:  &req.SourceVariantID,
		WarehouseID:       &req.WarehouseID,
		LocationType:      &sourceType,
		ExcludeLocationID: &req.DestinationID,
		ActiveOnly:        true,
		PositiveOnly:      true,
		OrderBy:           req.Priority,
	})
	if err != nil {
		return nil, fmt.Errorf("find source stock: %w", err)
	}
	for i := range rows {
		if !excluded(req.ExcludeIDs, rows[i].WarehouseLocationID) {
			return &rows[i], nil
		}
	}
	return nil, nil
}

func (l *Locator) dedicatedParent(ctx context.Context, req Request) (*model.LocationStock, error) {
	dest, err := l.locations.GetLocation(ctx, req.DestinationID)
	if err != nil {
		return nil, fmt.Errorf("get destination: %w", err)
	}
	if dest.ParentLocationID == nil {
		return nil, nil
	}
	parentID := *dest.ParentLocationID
	if parentID == req.DestinationID || excluded(req.ExcludeIDs, parentID) {
		return nil, nil
	}

	rows, err := l.stock.FindStock(ctx, &dto.StockQuery{
		ProductVariantID: &req.SourceVariantID,
		LocationID:       &parentID,
		ActiveOnly:       true,
		PositiveOnly:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("find parent stock: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func excluded(ids []int64, id int64) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
