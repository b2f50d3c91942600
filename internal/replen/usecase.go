package replen

import (
	"context"

	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen/dto"
)

// UseCase is the replenishment engine.
type UseCase interface {
	CheckThresholds(ctx context.Context, warehouseID *int64) (*dto.ScanResult, error)
	CheckAndTriggerAfterPick(ctx context.Context, variantID, locationID int64) (*model.ReplenTask, error)
	GenerateTasks(ctx context.Context, warehouseID *int64) (*dto.ScanResult, error)
	ResolveCycleCount(ctx context.Context, cycleCountID int64) ([]model.ReplenTask, error)

	ExecuteTask(ctx context.Context, taskID int64, userID string) (*model.ReplenTask, error)
	AssignTask(ctx context.Context, taskID int64, userID string) (*model.ReplenTask, error)
	CancelTask(ctx context.Context, taskID int64, reason string) (*model.ReplenTask, error)
	ReportException(ctx context.Context, input *dto.ExceptionInput) (*dto.ExceptionResult, error)

	GetTask(ctx context.Context, taskID int64) (*model.ReplenTask, error)
	ListTasks(ctx context.Context, filters *dto.TaskFilters) ([]model.ReplenTask, error)
}

// SettingsCache holds resolved warehouse settings between scans.
type SettingsCache interface {
	GetSettings(ctx context.Context, warehouseID int64) (*model.WarehouseSettings, bool)
	SetSettings(ctx context.Context, warehouseID int64, s *model.WarehouseSettings)
}
