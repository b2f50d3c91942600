package dto

import "github.com/fekuna/omnipos-warehouse-service/internal/model"

type CreateVariantInput struct {
	ProductID       int64
	ParentVariantID *int64
	SKU             string
	Name            string
	UnitsPerVariant int
	HierarchyLevel  int
	CubeCm3         *int64
}

type CreateLocationInput struct {
	WarehouseID      int64
	Code             string
	LocationType     model.LocationType
	IsPickable       bool
	ParentLocationID *int64
	CapacityCm3      *int64
}
