package replen

import (
	"context"

	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen/dto"
)

type Repository interface {
	// Policy layers
	CreateLocationConfig(ctx context.Context, c *model.LocationReplenConfig) error
	ListLocationConfigs(ctx context.Context, filters *dto.ConfigFilters) ([]model.LocationReplenConfig, error)
	CreateRule(ctx context.Context, r *model.ReplenRule) error
	// GetRule returns the active rule for a pick variant, or nil.
	GetRule(ctx context.Context, pickVariantID int64) (*model.ReplenRule, error)
	CreateTierDefault(ctx context.Context, t *model.ReplenTierDefault) error
	// GetTierDefault matches warehouseID exactly; nil selects the global row.
	GetTierDefault(ctx context.Context, warehouseID *int64, hierarchyLevel int) (*model.ReplenTierDefault, error)
	SaveWarehouseSettings(ctx context.Context, s *model.WarehouseSettings) error
	// GetWarehouseSettings matches warehouseID exactly; nil selects the global row.
	GetWarehouseSettings(ctx context.Context, warehouseID *int64) (*model.WarehouseSettings, error)

	// Tasks
	CreateTask(ctx context.Context, t *model.ReplenTask) error
	UpdateTask(ctx context.Context, t *model.ReplenTask) error
	GetTask(ctx context.Context, id int64) (*model.ReplenTask, error)
	// LockTask reads a task and holds it until the surrounding transaction ends.
	LockTask(ctx context.Context, id int64) (*model.ReplenTask, error)
	ListTasks(ctx context.Context, filters *dto.TaskFilters) ([]model.ReplenTask, error)

	// Cycle counts
	CreateCycleCount(ctx context.Context, cc *model.CycleCount, items []model.CycleCountItem) error
	ListCycleCountItems(ctx context.Context, cycleCountID int64) ([]model.CycleCountItem, error)
}
