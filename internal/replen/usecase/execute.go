package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/fekuna/omnipos-warehouse-service/internal/auth"
	"github.com/fekuna/omnipos-warehouse-service/internal/events"
	invdto "github.com/fekuna/omnipos-warehouse-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen/dto"
	"go.uber.org/zap"
)

// moveError marks a failure of the stock movement itself, as opposed to a
// task that was never eligible to run.
type moveError struct{ err error }

func (e *moveError) Error() string { return e.err.Error() }
func (e *moveError) Unwrap() error { return e.err }

// ExecuteTask moves the stock of one task and completes it in a single
// transaction. A failed movement demotes the task to blocked. Tasks waiting
// on this one are released afterwards.
func (uc *replenUseCase) ExecuteTask(ctx context.Context, taskID int64, userID string) (*model.ReplenTask, error) {
	userID = defaultString(userID, auth.GetUserID(ctx))
	var done *model.ReplenTask
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := uc.lockTask(ctx, taskID)
		if err != nil {
			return err
		}
		if !t.Status.Executable() {
			return fmt.Errorf("task %d is %s: %w", t.ID, t.Status, replen.ErrTaskNotExecutable)
		}
		if t.FromLocationID == nil || t.QtySourceUnits <= 0 {
			return fmt.Errorf("task %d: %w", t.ID, replen.ErrTaskHasNoSource)
		}

		t.Status = model.TaskInProgress
		completed, err := uc.move(ctx, t, userID)
		if err != nil {
			return &moveError{err: err}
		}

		now := uc.now()
		t.Status = model.TaskCompleted
		t.QtyCompleted = completed
		t.CompletedAt = &now
		if userID != "" {
			t.CompletedBy = &userID
		}
		t.AppendNote(now, fmt.Sprintf("completed by %s: %d units placed", defaultString(userID, systemUser), completed))
		if err := uc.repo.UpdateTask(ctx, t); err != nil {
			return err
		}
		uc.publishAfterCommit(ctx, events.TaskCompleted, t)
		done = t
		return nil
	})
	if err != nil {
		var me *moveError
		if errors.As(err, &me) {
			uc.demote(ctx, taskID, "execution failed: "+me.err.Error())
			return nil, fmt.Errorf("execute task %d: %w", taskID, me.err)
		}
		return nil, err
	}

	uc.logger.Info("replenishment task completed",
		zap.Int64("task_id", done.ID),
		zap.String("method", string(done.ReplenMethod)),
		zap.Int("qty_completed", done.QtyCompleted),
	)
	uc.releaseDependents(ctx, done)
	return done, nil
}

// move performs the ledger side of a task and returns the pick units placed.
func (uc *replenUseCase) move(ctx context.Context, t *model.ReplenTask, userID string) (int, error) {
	sourceID := t.PickProductVariantID
	if t.SourceProductVariantID != nil {
		sourceID = *t.SourceProductVariantID
	}
	ref := strconv.FormatInt(t.ID, 10)

	if t.ReplenMethod == model.MethodCaseBreak {
		source, err := uc.warehouse.GetVariant(ctx, sourceID)
		if err != nil {
			return 0, err
		}
		pick, err := uc.warehouse.GetVariant(ctx, t.PickProductVariantID)
		if err != nil {
			return 0, err
		}
		res, err := uc.ledger.BreakCase(ctx, &invdto.BreakCaseInput{
			SourceVariantID:  source.ID,
			SourceLocationID: *t.FromLocationID,
			SourceQuantity:   t.QtySourceUnits,
			SourceUnits:      source.Units(),
			TargetVariantID:  pick.ID,
			TargetLocationID: t.ToLocationID,
			TargetUnits:      pick.Units(),
			ReferenceType:    model.RefReplenTask,
			ReferenceID:      ref,
			UserID:           userID,
		})
		if err != nil {
			return 0, err
		}
		return res.TargetProduced, nil
	}

	err := uc.ledger.Transfer(ctx, &invdto.TransferInput{
		ProductVariantID: sourceID,
		FromLocationID:   *t.FromLocationID,
		ToLocationID:     t.ToLocationID,
		Quantity:         t.QtySourceUnits,
		ReferenceType:    model.RefReplenTask,
		ReferenceID:      ref,
		Notes:            fmt.Sprintf("%s replenishment", t.ReplenMethod),
		UserID:           userID,
	})
	if err != nil {
		return 0, err
	}
	return t.QtyTargetUnits, nil
}

// demote moves a non-terminal task to blocked with a note. Failures are
// logged; the caller already has an error to report.
func (uc *replenUseCase) demote(ctx context.Context, taskID int64, note string) {
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := uc.lockTask(ctx, taskID)
		if err != nil {
			return err
		}
		if t.Status.Terminal() {
			return nil
		}
		t.Status = model.TaskBlocked
		t.AppendNote(uc.now(), note)
		if err := uc.repo.UpdateTask(ctx, t); err != nil {
			return err
		}
		uc.publishAfterCommit(ctx, events.TaskBlocked, t)
		return nil
	})
	if err != nil {
		uc.logger.Error("failed to block task", zap.Int64("task_id", taskID), zap.Error(err))
		return
	}
	uc.logger.Warn("replenishment task blocked", zap.Int64("task_id", taskID), zap.String("note", note))
}

// autoExecute runs a pending inline task. Failures leave the task blocked
// and are not returned; the refreshed task is.
func (uc *replenUseCase) autoExecute(ctx context.Context, t *model.ReplenTask) *model.ReplenTask {
	if t.Status != model.TaskPending || t.ExecutionMode != model.ExecInline {
		return t
	}
	done, err := uc.ExecuteTask(ctx, t.ID, systemUser)
	if err == nil {
		return done
	}

	uc.logger.Warn("auto-execution failed", zap.Int64("task_id", t.ID), zap.Error(err))
	fresh, getErr := uc.repo.GetTask(ctx, t.ID)
	if getErr != nil || fresh == nil {
		return t
	}
	return fresh
}

// releaseDependents moves blocked tasks waiting on parent to pending and
// runs the inline ones.
func (uc *replenUseCase) releaseDependents(ctx context.Context, parent *model.ReplenTask) {
	deps, err := uc.repo.ListTasks(ctx, &dto.TaskFilters{DependsOnTaskID: &parent.ID, Statuses: []model.TaskStatus{model.TaskBlocked}})
	if err != nil {
		uc.logger.Error("failed to list dependent tasks", zap.Int64("task_id", parent.ID), zap.Error(err))
		return
	}

	for _, d := range deps {
		var released *model.ReplenTask
		err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
			t, err := uc.lockTask(ctx, d.ID)
			if err != nil {
				return err
			}
			if t.Status != model.TaskBlocked {
				return nil
			}
			t.Status = model.TaskPending
			t.AppendNote(uc.now(), fmt.Sprintf("upstream task %d completed", parent.ID))
			if err := uc.repo.UpdateTask(ctx, t); err != nil {
				return err
			}
			released = t
			return nil
		})
		if err != nil {
			uc.logger.Error("failed to release dependent task", zap.Int64("task_id", d.ID), zap.Error(err))
			continue
		}
		if released != nil {
			uc.autoExecute(ctx, released)
		}
	}
}
