package dto

import (
	"time"

	"github.com/fekuna/omnipos-warehouse-service/internal/model"
)

type TransactionFilters struct {
	ProductVariantID *int64
	LocationID       *int64 // Matches either side of the transaction
	TransactionType  model.TransactionType
	ReferenceType    string
	ReferenceID      string
	Since            *time.Time
	Limit            int
}

// StockQuery selects levels joined with their locations.
type StockQuery struct {
	ProductVariantID  *int64
	WarehouseID       *int64
	LocationID        *int64
	LocationType      *model.LocationType
	ExcludeLocationID *int64
	PickableOnly      bool
	ActiveOnly        bool
	PositiveOnly      bool
	// OrderBy is fifo (oldest update first) or smallest_first. Empty orders by level id.
	OrderBy model.SourcePriority
	Limit   int
}

type BreakResult struct {
	SourceLevel    model.InventoryLevel `json:"source_level"`
	TargetLevel    model.InventoryLevel `json:"target_level"`
	SourceConsumed int                  `json:"source_consumed"`
	TargetProduced int                  `json:"target_produced"`
	RemainderUnits int                  `json:"remainder_units"` // Base units lost in conversion
	BreakTxnID     int64                `json:"break_txn_id"`
	ReplenishTxnID int64                `json:"replenish_txn_id"`
}
