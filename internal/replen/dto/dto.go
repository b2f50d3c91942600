package dto

import "github.com/fekuna/omnipos-warehouse-service/internal/model"

type ConfigFilters struct {
	LocationID          *int64
	WarehouseID         *int64
	VariantSpecificOnly bool
	ActiveOnly          bool
}

type TaskFilters struct {
	WarehouseID     *int64
	Statuses        []model.TaskStatus
	PickVariantID   *int64
	ToLocationID    *int64
	DependsOnTaskID *int64
	CycleCountID    *int64
	ExecutionMode   model.ExecutionMode
	AssignedTo      string
	Limit           int
}

// FaceError records a pick face the scan could not process.
type FaceError struct {
	VariantID  int64  `json:"variant_id"`
	LocationID int64  `json:"location_id"`
	Error      string `json:"error"`
}

type ScanResult struct {
	Scanned       int                `json:"scanned"`
	Created       []model.ReplenTask `json:"created"`
	Unblocked     []model.ReplenTask `json:"unblocked"`
	AutoExecuted  []int64            `json:"auto_executed"`
	Blocked       []int64            `json:"blocked"`
	Cancelled     []int64            `json:"cancelled"`
	SkippedActive int                `json:"skipped_active"`
	Errors        []FaceError        `json:"errors"`
}

type ExceptionResult struct {
	Task       model.ReplenTask     `json:"task"`
	CycleCount model.CycleCount     `json:"cycle_count"`
	Item       model.CycleCountItem `json:"item"`
}
