package inventory

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-warehouse-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-warehouse-service/internal/model"
)

type Repository interface {
	// Levels
	GetLevel(ctx context.Context, variantID, locationID int64) (*model.InventoryLevel, error)
	GetLevelByID(ctx context.Context, id int64) (*model.InventoryLevel, error)
	// UpsertLevel reports whether the row was created by this call.
	UpsertLevel(ctx context.Context, variantID, locationID int64, seed dto.LevelSeed) (*model.InventoryLevel, bool, error)
	// ApplyDeltas returns (nil, nil) when the guard rejects the update and
	// ErrLevelNotFound when the row does not exist.
	ApplyDeltas(ctx context.Context, levelID int64, deltas model.LevelDeltas, guard model.Guard) (*model.LevelChange, error)

	// Audit log
	InsertTransaction(ctx context.Context, txn *model.InventoryTransaction) error
	ListTransactions(ctx context.Context, filters *dto.TransactionFilters) ([]model.InventoryTransaction, error)

	// Read models
	FindStock(ctx context.Context, query *dto.StockQuery) ([]model.LocationStock, error)
	PickedQuantitySince(ctx context.Context, variantID, locationID int64, since time.Time) (int, error)
	UsedCube(ctx context.Context, locationID int64) (int64, error)
}
