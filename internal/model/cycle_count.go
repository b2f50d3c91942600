package model

import "time"

const (
	CycleCountPending   = "pending"
	CycleCountCompleted = "completed"

	CycleCountTypeSpot = "spot"
)

type CycleCount struct {
	ID           int64     `db:"id" json:"id"`
	WarehouseID  int64     `db:"warehouse_id" json:"warehouse_id"`
	Name         string    `db:"name" json:"name"`
	Status       string    `db:"status" json:"status"`
	CountType    string    `db:"count_type" json:"count_type"`
	ReplenTaskID *int64    `db:"replen_task_id" json:"replen_task_id"`
	Notes        string    `db:"notes" json:"notes"`
	CreatedBy    *string   `db:"created_by" json:"created_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

type CycleCountItem struct {
	ID                  int64     `db:"id" json:"id"`
	CycleCountID        int64     `db:"cycle_count_id" json:"cycle_count_id"`
	WarehouseLocationID int64     `db:"warehouse_location_id" json:"warehouse_location_id"`
	ProductVariantID    int64     `db:"product_variant_id" json:"product_variant_id"`
	ExpectedQty         int       `db:"expected_qty" json:"expected_qty"`
	CountedQty          *int      `db:"counted_qty" json:"counted_qty"`
	VarianceQty         *int      `db:"variance_qty" json:"variance_qty"`
	Status              string    `db:"status" json:"status"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}
