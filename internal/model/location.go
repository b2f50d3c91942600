package model

import "time"

type LocationType string

const (
	LocationPick      LocationType = "pick"
	LocationReserve   LocationType = "reserve"
	LocationReceiving LocationType = "receiving"
	LocationStaging   LocationType = "staging"
)

type WarehouseLocation struct {
	ID               int64        `db:"id" json:"id"`
	WarehouseID      int64        `db:"warehouse_id" json:"warehouse_id"`
	Code             string       `db:"code" json:"code"`
	LocationType     LocationType `db:"location_type" json:"location_type"`
	IsPickable       bool         `db:"is_pickable" json:"is_pickable"`
	ParentLocationID *int64       `db:"parent_location_id" json:"parent_location_id"` // Dedicated upstream bin
	CapacityCm3      *int64       `db:"capacity_cm3" json:"capacity_cm3"`             // Nil means unlimited
	IsActive         bool         `db:"is_active" json:"is_active"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`
}
