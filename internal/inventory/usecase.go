package inventory

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-warehouse-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-warehouse-service/internal/model"
)

// UseCase is the inventory ledger. Every mutation commits together with its
// audit row or not at all.
//
// Corrections (AdjustInventory, AdjustLevel) are permissive and may drive
// on-hand negative. Consumption (PickItem, ReserveForOrder, Transfer,
// BreakCase) is guarded and never overdraws.
type UseCase interface {
	GetLevel(ctx context.Context, variantID, locationID int64) (*model.InventoryLevel, error)
	UpsertLevel(ctx context.Context, variantID, locationID int64, seed *dto.LevelSeed) (*model.InventoryLevel, error)
	AdjustLevel(ctx context.Context, levelID int64, deltas model.LevelDeltas) (*model.InventoryLevel, error)

	ReceiveInventory(ctx context.Context, input *dto.MovementInput) (*model.InventoryLevel, error)
	PickItem(ctx context.Context, input *dto.MovementInput) (bool, error)
	RecordShipment(ctx context.Context, input *dto.MovementInput) error
	AdjustInventory(ctx context.Context, input *dto.AdjustInput) (*model.InventoryLevel, error)
	ReserveForOrder(ctx context.Context, input *dto.MovementInput) (bool, error)
	ReleaseReservation(ctx context.Context, input *dto.MovementInput) (int, error)
	Transfer(ctx context.Context, input *dto.TransferInput) error
	BreakCase(ctx context.Context, input *dto.BreakCaseInput) (*dto.BreakResult, error)

	LogTransaction(ctx context.Context, txn *model.InventoryTransaction) error
	ListTransactions(ctx context.Context, filters *dto.TransactionFilters) ([]model.InventoryTransaction, error)

	FindStock(ctx context.Context, query *dto.StockQuery) ([]model.LocationStock, error)
	PickedQuantitySince(ctx context.Context, variantID, locationID int64, since time.Time) (int, error)
	UsedCube(ctx context.Context, locationID int64) (int64, error)
}
