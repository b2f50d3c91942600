package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"github.com/fekuna/omnipos-warehouse-service/internal/warehouse"
	"github.com/fekuna/omnipos-warehouse-service/internal/warehouse/dto"
	"go.uber.org/zap"
)

type warehouseUseCase struct {
	repo   warehouse.Repository
	logger *zap.Logger
}

func NewWarehouseUseCase(repo warehouse.Repository, log *zap.Logger) warehouse.UseCase {
	return &warehouseUseCase{
		repo:   repo,
		logger: log,
	}
}

func (uc *warehouseUseCase) CreateVariant(ctx context.Context, input *dto.CreateVariantInput) (*model.ProductVariant, error) {
	if strings.TrimSpace(input.SKU) == "" {
		return nil, fmt.Errorf("sku is required: %w", warehouse.ErrInvalidVariant)
	}
	if input.UnitsPerVariant <= 0 {
		return nil, fmt.Errorf("units per variant must be positive: %w", warehouse.ErrInvalidVariant)
	}

	// A parent must belong to the same product and sit on a higher tier.
	if input.ParentVariantID != nil {
		parent, err := uc.GetVariant(ctx, *input.ParentVariantID)
		if err != nil {
			return nil, err
		}
		if parent.ProductID != input.ProductID || parent.HierarchyLevel <= input.HierarchyLevel {
			return nil, fmt.Errorf("parent variant %d: %w", parent.ID, warehouse.ErrInvalidVariant)
		}
	}

	now := time.Now()
	v := &model.ProductVariant{
		ProductID:       input.ProductID,
		ParentVariantID: input.ParentVariantID,
		SKU:             input.SKU,
		Name:            input.Name,
		UnitsPerVariant: input.UnitsPerVariant,
		HierarchyLevel:  input.HierarchyLevel,
		CubeCm3:         input.CubeCm3,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := uc.repo.CreateVariant(ctx, v); err != nil {
		uc.logger.Error("failed to create variant", zap.String("sku", input.SKU), zap.Error(err))
		return nil, err
	}
	return v, nil
}

func (uc *warehouseUseCase) GetVariant(ctx context.Context, id int64) (*model.ProductVariant, error) {
	v, err := uc.repo.GetVariant(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("variant %d: %w", id, warehouse.ErrVariantNotFound)
	}
	return v, nil
}

func (uc *warehouseUseCase) Hierarchy(ctx context.Context, productID int64) (*warehouse.Hierarchy, error) {
	variants, err := uc.repo.ListVariantsByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return warehouse.NewHierarchy(productID, variants), nil
}

func (uc *warehouseUseCase) CreateLocation(ctx context.Context, input *dto.CreateLocationInput) (*model.WarehouseLocation, error) {
	if strings.TrimSpace(input.Code) == "" {
		return nil, fmt.Errorf("code is required: %w", warehouse.ErrInvalidLocation)
	}
	switch input.LocationType {
	case model.LocationPick, model.LocationReserve, model.LocationReceiving, model.LocationStaging:
	default:
		return nil, fmt.Errorf("location type %q: %w", input.LocationType, warehouse.ErrInvalidLocation)
	}
	if input.ParentLocationID != nil {
		parent, err := uc.GetLocation(ctx, *input.ParentLocationID)
		if err != nil {
			return nil, err
		}
		if parent.WarehouseID != input.WarehouseID {
			return nil, fmt.Errorf("parent location %d is in another warehouse: %w", parent.ID, warehouse.ErrInvalidLocation)
		}
	}

	now := time.Now()
	loc := &model.WarehouseLocation{
		WarehouseID:      input.WarehouseID,
		Code:             input.Code,
		LocationType:     input.LocationType,
		IsPickable:       input.IsPickable,
		ParentLocationID: input.ParentLocationID,
		CapacityCm3:      input.CapacityCm3,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := uc.repo.CreateLocation(ctx, loc); err != nil {
		uc.logger.Error("failed to create location", zap.String("code", input.Code), zap.Error(err))
		return nil, err
	}
	return loc, nil
}

func (uc *warehouseUseCase) SetLocationActive(ctx context.Context, id int64, active bool) (*model.WarehouseLocation, error) {
	loc, err := uc.GetLocation(ctx, id)
	if err != nil {
		return nil, err
	}
	loc.IsActive = active
	loc.UpdatedAt = time.Now()
	if err := uc.repo.UpdateLocation(ctx, loc); err != nil {
		return nil, err
	}
	return loc, nil
}

func (uc *warehouseUseCase) GetLocation(ctx context.Context, id int64) (*model.WarehouseLocation, error) {
	loc, err := uc.repo.GetLocation(ctx, id)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, fmt.Errorf("location %d: %w", id, warehouse.ErrLocationNotFound)
	}
	return loc, nil
}

func (uc *warehouseUseCase) ListLocations(ctx context.Context, filters *dto.LocationFilters) ([]model.WarehouseLocation, error) {
	if filters == nil {
		filters = &dto.LocationFilters{}
	}
	return uc.repo.ListLocations(ctx, filters)
}
