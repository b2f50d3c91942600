package subscriber

import (
	"context"
	"strconv"

	"github.com/fekuna/omnipos-warehouse-service/internal/events"
	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"go.uber.org/zap"
)

// Rechecker is the part of the replenishment engine a count correction drives.
type Rechecker interface {
	CheckAndTriggerAfterPick(ctx context.Context, variantID, locationID int64) (*model.ReplenTask, error)
	ResolveCycleCount(ctx context.Context, cycleCountID int64) ([]model.ReplenTask, error)
}

// CycleCountRecheck reacts to approved cycle count adjustments. Tasks held by
// the count are released, then the corrected location is re-evaluated.
type CycleCountRecheck struct {
	replen Rechecker
	logger *zap.Logger
}

func NewCycleCountRecheck(replen Rechecker, log *zap.Logger) *CycleCountRecheck {
	return &CycleCountRecheck{replen: replen, logger: log}
}

// Handle is subscribed to events.TransactionRecorded.
func (s *CycleCountRecheck) Handle(ctx context.Context, ev events.Event) error {
	var txn model.InventoryTransaction
	switch p := ev.Payload.(type) {
	case model.InventoryTransaction:
		txn = p
	case *model.InventoryTransaction:
		txn = *p
	default:
		return nil
	}

	if txn.TransactionType != model.TxnAdjustment || txn.ReferenceType == nil || *txn.ReferenceType != model.RefCycleCount {
		return nil
	}
	if txn.ReferenceID != nil {
		if id, err := strconv.ParseInt(*txn.ReferenceID, 10, 64); err == nil {
			tasks, err := s.replen.ResolveCycleCount(ctx, id)
			if err != nil {
				return err
			}
			if len(tasks) > 0 {
				s.logger.Info("cycle count released replenishment tasks",
					zap.Int64("cycle_count_id", id),
					zap.Int("tasks", len(tasks)),
				)
			}
		}
	}

	locationID := txn.ToLocationID
	if locationID == nil {
		locationID = txn.FromLocationID
	}
	if locationID == nil {
		return nil
	}

	task, err := s.replen.CheckAndTriggerAfterPick(ctx, txn.ProductVariantID, *locationID)
	if err != nil {
		return err
	}
	if task != nil {
		s.logger.Info("cycle count re-check produced replenishment",
			zap.Int64("task_id", task.ID),
			zap.String("status", string(task.Status)),
		)
	}
	return nil
}
