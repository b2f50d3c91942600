package dto

import "github.com/fekuna/omnipos-warehouse-service/internal/model"

type LocationFilters struct {
	WarehouseID  *int64
	LocationType *model.LocationType
	PickableOnly bool
	ActiveOnly   bool
}
