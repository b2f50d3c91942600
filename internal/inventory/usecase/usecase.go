package usecase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/fekuna/omnipos-warehouse-service/internal/auth"
	"github.com/fekuna/omnipos-warehouse-service/internal/database"
	"github.com/fekuna/omnipos-warehouse-service/internal/events"
	"github.com/fekuna/omnipos-warehouse-service/internal/inventory"
	"github.com/fekuna/omnipos-warehouse-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"go.uber.org/zap"
)

type inventoryUseCase struct {
	repo      inventory.Repository
	tx        database.Transactor
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*inventoryUseCase)

// WithClock overrides the timestamp source for transaction rows.
func WithClock(now func() time.Time) Option {
	return func(uc *inventoryUseCase) { uc.now = now }
}

func NewInventoryUseCase(repo inventory.Repository, tx database.Transactor, publisher events.Publisher, log *zap.Logger, opts ...Option) inventory.UseCase {
	if publisher == nil {
		publisher = events.Noop
	}
	uc := &inventoryUseCase{
		repo:      repo,
		tx:        tx,
		publisher: publisher,
		logger:    log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *inventoryUseCase) GetLevel(ctx context.Context, variantID, locationID int64) (*model.InventoryLevel, error) {
	return uc.repo.GetLevel(ctx, variantID, locationID)
}

func (uc *inventoryUseCase) UpsertLevel(ctx context.Context, variantID, locationID int64, seed *dto.LevelSeed) (*model.InventoryLevel, error) {
	var s dto.LevelSeed
	if seed != nil {
		s = *seed
	}

	var lvl *model.InventoryLevel
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		created := false
		var err error
		lvl, created, err = uc.repo.UpsertLevel(ctx, variantID, locationID, s)
		if err != nil {
			return err
		}
		if !created || s == (dto.LevelSeed{}) {
			return nil
		}

		// Opening balances go through the log so the bucket stays replayable.
		txn := newTxn(model.TxnAdjustment, variantID, nil, &locationID)
		txn.VariantQtyDelta = s.VariantQty
		txn.VariantQtyAfter = s.VariantQty
		txn.ReservedQtyDelta = s.ReservedQty
		txn.PickedQtyDelta = s.PickedQty
		txn.PackedQtyDelta = s.PackedQty
		txn.BackorderQtyDelta = s.BackorderQty
		txn.ReferenceType = optString(model.RefManual)
		txn.Notes = "opening balance"
		return uc.LogTransaction(ctx, txn)
	})
	if err != nil {
		return nil, err
	}
	return lvl, nil
}

func (uc *inventoryUseCase) AdjustLevel(ctx context.Context, levelID int64, deltas model.LevelDeltas) (*model.InventoryLevel, error) {
	var out *model.InventoryLevel
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		lvl, err := uc.repo.GetLevelByID(ctx, levelID)
		if err != nil {
			return err
		}
		if lvl == nil {
			return fmt.Errorf("level %d: %w", levelID, inventory.ErrLevelNotFound)
		}
		if deltas.IsZero() {
			out = lvl
			return nil
		}

		change, err := uc.repo.ApplyDeltas(ctx, levelID, deltas, model.Guard{})
		if err != nil {
			return err
		}
		if change == nil {
			return fmt.Errorf("level %d: %w", levelID, inventory.ErrLevelNotFound)
		}

		txn := newTxn(model.TxnAdjustment, lvl.ProductVariantID, nil, &lvl.WarehouseLocationID)
		fillFromChange(txn, change)
		txn.ReferenceType = optString(model.RefManual)
		if err := uc.LogTransaction(ctx, txn); err != nil {
			return err
		}
		out = &change.After
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (uc *inventoryUseCase) ReceiveInventory(ctx context.Context, in *dto.MovementInput) (*model.InventoryLevel, error) {
	if in.Quantity <= 0 {
		return nil, inventory.ErrInvalidQuantity
	}

	var out *model.InventoryLevel
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		lvl, _, err := uc.repo.UpsertLevel(ctx, in.ProductVariantID, in.LocationID, dto.LevelSeed{})
		if err != nil {
			return err
		}
		change, err := uc.repo.ApplyDeltas(ctx, lvl.ID, model.LevelDeltas{VariantQty: in.Quantity}, model.Guard{})
		if err != nil {
			return err
		}
		if change == nil {
			return fmt.Errorf("level %d: %w", lvl.ID, inventory.ErrLevelNotFound)
		}

		txn := newTxn(model.TxnReceipt, in.ProductVariantID, nil, &in.LocationID)
		fillFromChange(txn, change)
		applyMovementRefs(ctx, txn, in.ReferenceType, in.ReferenceID, in.Notes, in.UserID)
		if err := uc.LogTransaction(ctx, txn); err != nil {
			return err
		}
		out = &change.After
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (uc *inventoryUseCase) PickItem(ctx context.Context, in *dto.MovementInput) (bool, error) {
	if in.Quantity <= 0 {
		return false, inventory.ErrInvalidQuantity
	}

	picked := false
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		lvl, err := uc.repo.GetLevel(ctx, in.ProductVariantID, in.LocationID)
		if err != nil || lvl == nil {
			return err
		}

		change, err := uc.repo.ApplyDeltas(ctx, lvl.ID, model.LevelDeltas{
			VariantQty:      -in.Quantity,
			PickedQty:       in.Quantity,
			ReleaseReserved: in.Quantity,
		}, model.Guard{Kind: model.GuardOnHand, Min: in.Quantity})
		if err != nil || change == nil {
			return err
		}

		txn := newTxn(model.TxnPick, in.ProductVariantID, &in.LocationID, nil)
		fillFromChange(txn, change)
		applyMovementRefs(ctx, txn, defaultString(in.ReferenceType, model.RefOrder), in.ReferenceID, in.Notes, in.UserID)
		if err := uc.LogTransaction(ctx, txn); err != nil {
			return err
		}
		picked = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !picked {
		uc.logger.Debug("pick rejected, insufficient on-hand",
			zap.Int64("variant_id", in.ProductVariantID),
			zap.Int64("location_id", in.LocationID),
			zap.Int("qty", in.Quantity),
		)
	}
	return picked, nil
}

func (uc *inventoryUseCase) RecordShipment(ctx context.Context, in *dto.MovementInput) error {
	if in.Quantity <= 0 {
		return inventory.ErrInvalidQuantity
	}

	return uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		lvl, err := uc.repo.GetLevel(ctx, in.ProductVariantID, in.LocationID)
		if err != nil {
			return err
		}
		if lvl == nil {
			return fmt.Errorf("variant %d at location %d: %w", in.ProductVariantID, in.LocationID, inventory.ErrLevelNotFound)
		}

		change, err := uc.repo.ApplyDeltas(ctx, lvl.ID, model.LevelDeltas{PickedQty: -in.Quantity},
			model.Guard{Kind: model.GuardPicked, Min: in.Quantity})
		if err != nil {
			return err
		}
		if change == nil {
			return fmt.Errorf("ship %d of variant %d at location %d: %w",
				in.Quantity, in.ProductVariantID, in.LocationID, inventory.ErrInsufficientPicked)
		}

		txn := newTxn(model.TxnShip, in.ProductVariantID, &in.LocationID, nil)
		fillFromChange(txn, change)
		applyMovementRefs(ctx, txn, defaultString(in.ReferenceType, model.RefOrder), in.ReferenceID, in.Notes, in.UserID)
		return uc.LogTransaction(ctx, txn)
	})
}

func (uc *inventoryUseCase) AdjustInventory(ctx context.Context, in *dto.AdjustInput) (*model.InventoryLevel, error) {
	if in.QuantityDelta == 0 {
		return nil, inventory.ErrInvalidQuantity
	}

	var out *model.InventoryLevel
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		lvl, _, err := uc.repo.UpsertLevel(ctx, in.ProductVariantID, in.LocationID, dto.LevelSeed{})
		if err != nil {
			return err
		}
		change, err := uc.repo.ApplyDeltas(ctx, lvl.ID, model.LevelDeltas{VariantQty: in.QuantityDelta}, model.Guard{})
		if err != nil {
			return err
		}
		if change == nil {
			return fmt.Errorf("level %d: %w", lvl.ID, inventory.ErrLevelNotFound)
		}

		txn := newTxn(model.TxnAdjustment, in.ProductVariantID, nil, &in.LocationID)
		fillFromChange(txn, change)
		applyMovementRefs(ctx, txn, defaultString(in.ReferenceType, model.RefManual), in.ReferenceID, in.Reason, in.UserID)
		if err := uc.LogTransaction(ctx, txn); err != nil {
			return err
		}
		out = &change.After
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.VariantQty < 0 {
		uc.logger.Warn("adjustment left on-hand negative",
			zap.Int64("variant_id", in.ProductVariantID),
			zap.Int64("location_id", in.LocationID),
			zap.Int("variant_qty", out.VariantQty),
		)
	}
	return out, nil
}

func (uc *inventoryUseCase) ReserveForOrder(ctx context.Context, in *dto.MovementInput) (bool, error) {
	if in.Quantity <= 0 {
		return false, inventory.ErrInvalidQuantity
	}

	reserved := false
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		lvl, err := uc.repo.GetLevel(ctx, in.ProductVariantID, in.LocationID)
		if err != nil || lvl == nil {
			return err
		}

		change, err := uc.repo.ApplyDeltas(ctx, lvl.ID, model.LevelDeltas{ReservedQty: in.Quantity},
			model.Guard{Kind: model.GuardAvailable, Min: in.Quantity})
		if err != nil || change == nil {
			return err
		}

		txn := newTxn(model.TxnReserve, in.ProductVariantID, &in.LocationID, nil)
		fillFromChange(txn, change)
		applyMovementRefs(ctx, txn, defaultString(in.ReferenceType, model.RefOrder), in.ReferenceID, in.Notes, in.UserID)
		if err := uc.LogTransaction(ctx, txn); err != nil {
			return err
		}
		reserved = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return reserved, nil
}

// ReleaseReservation releases up to Quantity reserved units and returns how many were released.
func (uc *inventoryUseCase) ReleaseReservation(ctx context.Context, in *dto.MovementInput) (int, error) {
	if in.Quantity <= 0 {
		return 0, inventory.ErrInvalidQuantity
	}

	released := 0
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		lvl, err := uc.repo.GetLevel(ctx, in.ProductVariantID, in.LocationID)
		if err != nil || lvl == nil || lvl.ReservedQty <= 0 {
			return err
		}

		change, err := uc.repo.ApplyDeltas(ctx, lvl.ID, model.LevelDeltas{ReleaseReserved: in.Quantity}, model.Guard{})
		if err != nil {
			return err
		}
		if change == nil {
			return fmt.Errorf("level %d: %w", lvl.ID, inventory.ErrLevelNotFound)
		}
		released = change.Before.ReservedQty - change.After.ReservedQty
		if released == 0 {
			return nil
		}

		txn := newTxn(model.TxnUnreserve, in.ProductVariantID, &in.LocationID, nil)
		fillFromChange(txn, change)
		applyMovementRefs(ctx, txn, defaultString(in.ReferenceType, model.RefOrder), in.ReferenceID, in.Notes, in.UserID)
		return uc.LogTransaction(ctx, txn)
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

func (uc *inventoryUseCase) Transfer(ctx context.Context, in *dto.TransferInput) error {
	if in.Quantity <= 0 {
		return inventory.ErrInvalidQuantity
	}
	if in.FromLocationID == in.ToLocationID {
		return inventory.ErrSameLocation
	}

	return uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		src, err := uc.repo.GetLevel(ctx, in.ProductVariantID, in.FromLocationID)
		if err != nil {
			return err
		}
		if src == nil {
			return fmt.Errorf("transfer %d of variant %d from location %d: %w",
				in.Quantity, in.ProductVariantID, in.FromLocationID, inventory.ErrInsufficientStock)
		}

		out, err := uc.repo.ApplyDeltas(ctx, src.ID, model.LevelDeltas{VariantQty: -in.Quantity},
			model.Guard{Kind: model.GuardOnHand, Min: in.Quantity})
		if err != nil {
			return err
		}
		if out == nil {
			return fmt.Errorf("transfer %d of variant %d from location %d: %w",
				in.Quantity, in.ProductVariantID, in.FromLocationID, inventory.ErrInsufficientStock)
		}

		dst, _, err := uc.repo.UpsertLevel(ctx, in.ProductVariantID, in.ToLocationID, dto.LevelSeed{})
		if err != nil {
			return err
		}
		in2, err := uc.repo.ApplyDeltas(ctx, dst.ID, model.LevelDeltas{VariantQty: in.Quantity}, model.Guard{})
		if err != nil {
			return err
		}
		if in2 == nil {
			return fmt.Errorf("level %d: %w", dst.ID, inventory.ErrLevelNotFound)
		}

		txn := newTxn(model.TxnTransfer, in.ProductVariantID, &in.FromLocationID, &in.ToLocationID)
		fillFromChange(txn, out)
		applyMovementRefs(ctx, txn, in.ReferenceType, in.ReferenceID, in.Notes, in.UserID)
		return uc.LogTransaction(ctx, txn)
	})
}

// BreakCase consumes whole source units with a guarded decrement and credits
// floor(n*U1/U2) target units. The remainder is recorded on the break row.
func (uc *inventoryUseCase) BreakCase(ctx context.Context, in *dto.BreakCaseInput) (*dto.BreakResult, error) {
	if in.SourceQuantity <= 0 {
		return nil, inventory.ErrInvalidQuantity
	}
	if in.SourceVariantID == in.TargetVariantID && in.SourceLocationID == in.TargetLocationID {
		return nil, inventory.ErrSameLocation
	}

	produced, remainder := inventory.ConvertUnits(in.SourceQuantity, in.SourceUnits, in.TargetUnits)
	res := &dto.BreakResult{
		SourceConsumed: in.SourceQuantity,
		TargetProduced: produced,
		RemainderUnits: remainder,
	}

	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		src, err := uc.repo.GetLevel(ctx, in.SourceVariantID, in.SourceLocationID)
		if err != nil {
			return err
		}
		if src == nil {
			return fmt.Errorf("break %d of variant %d at location %d: %w",
				in.SourceQuantity, in.SourceVariantID, in.SourceLocationID, inventory.ErrInsufficientStock)
		}

		out, err := uc.repo.ApplyDeltas(ctx, src.ID, model.LevelDeltas{VariantQty: -in.SourceQuantity},
			model.Guard{Kind: model.GuardOnHand, Min: in.SourceQuantity})
		if err != nil {
			return err
		}
		if out == nil {
			return fmt.Errorf("break %d of variant %d at location %d: %w",
				in.SourceQuantity, in.SourceVariantID, in.SourceLocationID, inventory.ErrInsufficientStock)
		}
		res.SourceLevel = out.After

		brk := newTxn(model.TxnBreak, in.SourceVariantID, &in.SourceLocationID, nil)
		fillFromChange(brk, out)
		brk.Notes = fmt.Sprintf("broke %d x variant %d (%d units each) into %d x variant %d (%d units each) for location %d; remainder %d base units lost in conversion",
			in.SourceQuantity, in.SourceVariantID, in.SourceUnits, produced, in.TargetVariantID, in.TargetUnits, in.TargetLocationID, remainder)
		applyMovementRefs(ctx, brk, in.ReferenceType, in.ReferenceID, brk.Notes, in.UserID)
		if err := uc.LogTransaction(ctx, brk); err != nil {
			return err
		}
		res.BreakTxnID = brk.ID

		if produced == 0 {
			lvl, err := uc.repo.GetLevel(ctx, in.TargetVariantID, in.TargetLocationID)
			if err != nil {
				return err
			}
			if lvl != nil {
				res.TargetLevel = *lvl
			}
			return nil
		}

		dst, _, err := uc.repo.UpsertLevel(ctx, in.TargetVariantID, in.TargetLocationID, dto.LevelSeed{})
		if err != nil {
			return err
		}
		into, err := uc.repo.ApplyDeltas(ctx, dst.ID, model.LevelDeltas{VariantQty: produced}, model.Guard{})
		if err != nil {
			return err
		}
		if into == nil {
			return fmt.Errorf("level %d: %w", dst.ID, inventory.ErrLevelNotFound)
		}
		res.TargetLevel = into.After

		rep := newTxn(model.TxnReplenish, in.TargetVariantID, nil, &in.TargetLocationID)
		fillFromChange(rep, into)
		applyMovementRefs(ctx, rep, in.ReferenceType, in.ReferenceID,
			fmt.Sprintf("from break of variant %d at location %d", in.SourceVariantID, in.SourceLocationID), in.UserID)
		if err := uc.LogTransaction(ctx, rep); err != nil {
			return err
		}
		res.ReplenishTxnID = rep.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if remainder > 0 {
		uc.logger.Info("case break left a remainder",
			zap.Int64("source_variant_id", in.SourceVariantID),
			zap.Int64("target_variant_id", in.TargetVariantID),
			zap.Int("remainder_units", remainder),
		)
	}
	return res, nil
}

// LogTransaction writes one audit row in the caller's transaction and
// publishes it once that transaction commits.
func (uc *inventoryUseCase) LogTransaction(ctx context.Context, txn *model.InventoryTransaction) error {
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = uc.now()
	}
	if err := uc.repo.InsertTransaction(ctx, txn); err != nil {
		return err
	}

	recorded := *txn
	uc.tx.AfterCommit(ctx, func() {
		uc.publisher.Publish(context.Background(),
			events.New(events.TransactionRecorded, strconv.FormatInt(recorded.ProductVariantID, 10), recorded))
	})
	return nil
}

func (uc *inventoryUseCase) ListTransactions(ctx context.Context, filters *dto.TransactionFilters) ([]model.InventoryTransaction, error) {
	if filters == nil {
		filters = &dto.TransactionFilters{}
	}
	return uc.repo.ListTransactions(ctx, filters)
}

func (uc *inventoryUseCase) FindStock(ctx context.Context, query *dto.StockQuery) ([]model.LocationStock, error) {
	if query == nil {
		query = &dto.StockQuery{}
	}
	return uc.repo.FindStock(ctx, query)
}

func (uc *inventoryUseCase) PickedQuantitySince(ctx context.Context, variantID, locationID int64, since time.Time) (int, error) {
	return uc.repo.PickedQuantitySince(ctx, variantID, locationID, since)
}

func (uc *inventoryUseCase) UsedCube(ctx context.Context, locationID int64) (int64, error) {
	return uc.repo.UsedCube(ctx, locationID)
}

func newTxn(typ model.TransactionType, variantID int64, from, to *int64) *model.InventoryTransaction {
	return &model.InventoryTransaction{
		ProductVariantID: variantID,
		FromLocationID:   from,
		ToLocationID:     to,
		TransactionType:  typ,
	}
}

func fillFromChange(txn *model.InventoryTransaction, c *model.LevelChange) {
	txn.VariantQtyBefore = c.Before.VariantQty
	txn.VariantQtyAfter = c.After.VariantQty
	txn.VariantQtyDelta = c.After.VariantQty - c.Before.VariantQty
	txn.ReservedQtyDelta = c.After.ReservedQty - c.Before.ReservedQty
	txn.PickedQtyDelta = c.After.PickedQty - c.Before.PickedQty
	txn.PackedQtyDelta = c.After.PackedQty - c.Before.PackedQty
	txn.BackorderQtyDelta = c.After.BackorderQty - c.Before.BackorderQty
}

func applyMovementRefs(ctx context.Context, txn *model.InventoryTransaction, refType, refID, notes, userID string) {
	if userID == "" {
		userID = auth.GetUserID(ctx)
	}
	txn.ReferenceType = optString(refType)
	txn.ReferenceID = optString(refID)
	txn.Notes = notes
	if userID != "" && userID != "unknown" {
		txn.CreatedBy = &userID
	}
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
