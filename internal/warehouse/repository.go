package warehouse

import (
	"context"

	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"github.com/fekuna/omnipos-warehouse-service/internal/warehouse/dto"
)

type Repository interface {
	// Variants
	CreateVariant(ctx context.Context, v *model.ProductVariant) error
	GetVariant(ctx context.Context, id int64) (*model.ProductVariant, error)
	ListVariantsByProduct(ctx context.Context, productID int64) ([]model.ProductVariant, error)

	// Locations
	CreateLocation(ctx context.Context, l *model.WarehouseLocation) error
	UpdateLocation(ctx context.Context, l *model.WarehouseLocation) error
	GetLocation(ctx context.Context, id int64) (*model.WarehouseLocation, error)
	ListLocations(ctx context.Context, filters *dto.LocationFilters) ([]model.WarehouseLocation, error)
}
