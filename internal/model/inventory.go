package model

import "time"

type TransactionType string

const (
	TxnReceipt    TransactionType = "receipt"
	TxnPick       TransactionType = "pick"
	TxnShip       TransactionType = "ship"
	TxnAdjustment TransactionType = "adjustment"
	TxnReserve    TransactionType = "reserve"
	TxnUnreserve  TransactionType = "unreserve"
	TxnTransfer   TransactionType = "transfer"
	TxnBreak      TransactionType = "break"
	TxnReplenish  TransactionType = "replenish"
)

// Reference types attached to transactions.
const (
	RefOrder      = "order"
	RefCycleCount = "cycle_count"
	RefReplenTask = "replen_task"
	RefReceipt    = "receipt"
	RefManual     = "manual"
)

// InventoryLevel holds the quantity buckets for one (variant, location) pair.
// Rows are created on first movement and never deleted.
type InventoryLevel struct {
	ID                  int64     `db:"id" json:"id"`
	ProductVariantID    int64     `db:"product_variant_id" json:"product_variant_id"`
	WarehouseLocationID int64     `db:"warehouse_location_id" json:"warehouse_location_id"`
	VariantQty          int       `db:"variant_qty" json:"variant_qty"`
	ReservedQty         int       `db:"reserved_qty" json:"reserved_qty"`
	PickedQty           int       `db:"picked_qty" json:"picked_qty"`
	PackedQty           int       `db:"packed_qty" json:"packed_qty"`
	BackorderQty        int       `db:"backorder_qty" json:"backorder_qty"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// Available is on-hand minus what is already promised to orders.
func (l *InventoryLevel) Available() int {
	return l.VariantQty - l.ReservedQty
}

func (l *InventoryLevel) Buckets() Buckets {
	return Buckets{
		OnHand:    l.VariantQty,
		Reserved:  l.ReservedQty,
		Picked:    l.PickedQty,
		Packed:    l.PackedQty,
		Backorder: l.BackorderQty,
	}
}

// LevelDeltas are signed increments applied as "column = column + delta".
type LevelDeltas struct {
	VariantQty   int
	ReservedQty  int
	PickedQty    int
	PackedQty    int
	BackorderQty int
	// ReleaseReserved releases up to this many reserved units, never more than
	// the reservation that exists when the update runs.
	ReleaseReserved int
}

func (d LevelDeltas) IsZero() bool {
	return d == LevelDeltas{}
}

type GuardKind int

const (
	GuardNone GuardKind = iota
	// GuardOnHand requires variant_qty >= Min.
	GuardOnHand
	// GuardAvailable requires variant_qty - reserved_qty >= Min.
	GuardAvailable
	// GuardPicked requires picked_qty >= Min.
	GuardPicked
)

// Guard is the predicate evaluated by the same statement that applies deltas.
type Guard struct {
	Kind GuardKind
	Min  int
}

// LevelChange is the row before and after one guarded update.
type LevelChange struct {
	Before InventoryLevel
	After  InventoryLevel
}

// Buckets is the replayable part of a level.
type Buckets struct {
	OnHand    int `json:"on_hand"`
	Reserved  int `json:"reserved"`
	Picked    int `json:"picked"`
	Packed    int `json:"packed"`
	Backorder int `json:"backorder"`
}

// InventoryTransaction is an immutable audit row. VariantQtyBefore/After describe
// the bucket the delta applies to; for transfers that is the source bucket and
// the destination receives the negated delta.
type InventoryTransaction struct {
	ID                int64           `db:"id" json:"id"`
	ProductVariantID  int64           `db:"product_variant_id" json:"product_variant_id"`
	FromLocationID    *int64          `db:"from_location_id" json:"from_location_id"`
	ToLocationID      *int64          `db:"to_location_id" json:"to_location_id"`
	TransactionType   TransactionType `db:"transaction_type" json:"transaction_type"`
	VariantQtyDelta   int             `db:"variant_qty_delta" json:"variant_qty_delta"`
	VariantQtyBefore  int             `db:"variant_qty_before" json:"variant_qty_before"`
	VariantQtyAfter   int             `db:"variant_qty_after" json:"variant_qty_after"`
	ReservedQtyDelta  int             `db:"reserved_qty_delta" json:"reserved_qty_delta"`
	PickedQtyDelta    int             `db:"picked_qty_delta" json:"picked_qty_delta"`
	PackedQtyDelta    int             `db:"packed_qty_delta" json:"packed_qty_delta"`
	BackorderQtyDelta int             `db:"backorder_qty_delta" json:"backorder_qty_delta"`
	ReferenceType     *string         `db:"reference_type" json:"reference_type"`
	ReferenceID       *string         `db:"reference_id" json:"reference_id"`
	Notes             string          `db:"notes" json:"notes"`
	CreatedBy         *string         `db:"created_by" json:"created_by"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// DeltaAt returns the bucket change this transaction caused at locationID.
func (t *InventoryTransaction) DeltaAt(locationID int64) Buckets {
	from := t.FromLocationID != nil && *t.FromLocationID == locationID
	to := t.ToLocationID != nil && *t.ToLocationID == locationID

	if t.TransactionType == TxnTransfer {
		switch {
		case from:
			return Buckets{OnHand: t.VariantQtyDelta}
		case to:
			return Buckets{OnHand: -t.VariantQtyDelta}
		}
		return Buckets{}
	}
	if !from && !to {
		return Buckets{}
	}
	return Buckets{
		OnHand:    t.VariantQtyDelta,
		Reserved:  t.ReservedQtyDelta,
		Picked:    t.PickedQtyDelta,
		Packed:    t.PackedQtyDelta,
		Backorder: t.BackorderQtyDelta,
	}
}

// LocationStock is a level joined with the location it sits in.
type LocationStock struct {
	LevelID             int64        `db:"level_id" json:"level_id"`
	ProductVariantID    int64        `db:"product_variant_id" json:"product_variant_id"`
	WarehouseLocationID int64        `db:"warehouse_location_id" json:"warehouse_location_id"`
	WarehouseID         int64        `db:"warehouse_id" json:"warehouse_id"`
	LocationType        LocationType `db:"location_type" json:"location_type"`
	IsPickable          bool         `db:"is_pickable" json:"is_pickable"`
	VariantQty          int          `db:"variant_qty" json:"variant_qty"`
	ReservedQty         int          `db:"reserved_qty" json:"reserved_qty"`
	UpdatedAt           time.Time    `db:"updated_at" json:"updated_at"`
}
