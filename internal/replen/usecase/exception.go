package usecase

import (
	"context"
	"fmt"

	"github.com/fekuna/omnipos-warehouse-service/internal/events"
	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen/dto"
	"go.uber.org/zap"
)

// ReportException records that a worker found the source bin of a task wrong.
// A one-bin spot count is opened with the system quantity as expected and
// the task is blocked until the count is resolved.
func (uc *replenUseCase) ReportException(ctx context.Context, in *dto.ExceptionInput) (*dto.ExceptionResult, error) {
	res := &dto.ExceptionResult{}
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := uc.lockTask(ctx, in.TaskID)
		if err != nil {
			return err
		}
		if t.Status.Terminal() {
			return fmt.Errorf("task %d is %s: %w", t.ID, t.Status, replen.ErrTaskTerminal)
		}
		if t.FromLocationID == nil {
			return fmt.Errorf("task %d: %w", t.ID, replen.ErrTaskHasNoSource)
		}

		variantID := t.PickProductVariantID
		if t.SourceProductVariantID != nil {
			variantID = *t.SourceProductVariantID
		}
		expected := 0
		lvl, err := uc.ledger.GetLevel(ctx, variantID, *t.FromLocationID)
		if err != nil {
			return err
		}
		if lvl != nil {
			expected = lvl.VariantQty
		}

		reason := defaultString(in.Reason, "unspecified")
		cc := &model.CycleCount{
			WarehouseID:  t.WarehouseID,
			Name:         fmt.Sprintf("Replenishment exception on task %d", t.ID),
			Status:       model.CycleCountPending,
			CountType:    model.CycleCountTypeSpot,
			ReplenTaskID: &t.ID,
			Notes:        reason,
		}
		if in.UserID != "" {
			cc.CreatedBy = &in.UserID
		}
		item := model.CycleCountItem{
			WarehouseLocationID: *t.FromLocationID,
			ProductVariantID:    variantID,
			ExpectedQty:         expected,
			CountedQty:          in.CountedQty,
			Status:              model.CycleCountPending,
		}
		if in.CountedQty != nil {
			variance := *in.CountedQty - expected
			item.VarianceQty = &variance
		}
		items := []model.CycleCountItem{item}
		if err := uc.repo.CreateCycleCount(ctx, cc, items); err != nil {
			return err
		}

		t.CycleCountID = &cc.ID
		t.Status = model.TaskBlocked
		t.AppendNote(uc.now(), fmt.Sprintf("exception reported (%s); cycle count %d opened", reason, cc.ID))
		if err := uc.repo.UpdateTask(ctx, t); err != nil {
			return err
		}
		uc.publishAfterCommit(ctx, events.TaskBlocked, t)

		res.Task, res.CycleCount, res.Item = *t, *cc, items[0]
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Warn("replenishment exception reported",
		zap.Int64("task_id", in.TaskID),
		zap.Int64("cycle_count_id", res.CycleCount.ID),
		zap.String("reason", in.Reason),
	)
	return res, nil
}
