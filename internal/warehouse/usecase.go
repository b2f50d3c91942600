package warehouse

import (
	"context"

	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"github.com/fekuna/omnipos-warehouse-service/internal/warehouse/dto"
)

type UseCase interface {
	CreateVariant(ctx context.Context, input *dto.CreateVariantInput) (*model.ProductVariant, error)
	GetVariant(ctx context.Context, id int64) (*model.ProductVariant, error)
	Hierarchy(ctx context.Context, productID int64) (*Hierarchy, error)

	CreateLocation(ctx context.Context, input *dto.CreateLocationInput) (*model.WarehouseLocation, error)
	SetLocationActive(ctx context.Context, id int64, active bool) (*model.WarehouseLocation, error)
	GetLocation(ctx context.Context, id int64) (*model.WarehouseLocation, error)
	ListLocations(ctx context.Context, filters *dto.LocationFilters) ([]model.WarehouseLocation, error)
}
