package usecase

import (
	"context"
	"fmt"

	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen/locator"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen/policy"
	"go.uber.org/zap"
)

// cascadeOrBlock handles a face whose direct source is empty. When the tier
// above the source has stock it saves an in-place break at that bin plus the
// face task waiting on it; otherwise it saves the face task as blocked.
// down may already exist, in which case it is updated.
func (uc *replenUseCase) cascadeOrBlock(ctx context.Context, p *plan, down *model.ReplenTask) (face, upstream *model.ReplenTask, err error) {
	up, err := uc.planCascade(ctx, p, down)
	if err != nil {
		return nil, nil, err
	}
	if up == nil {
		down.Status = model.TaskBlocked
		if err := uc.persist(ctx, down); err != nil {
			return nil, nil, err
		}
		return down, nil, nil
	}
	return uc.saveCascade(ctx, up, down)
}

// saveCascade stores an upstream task and its waiting face task atomically,
// then runs the upstream when its mode allows.
func (uc *replenUseCase) saveCascade(ctx context.Context, up, down *model.ReplenTask) (face, upstream *model.ReplenTask, err error) {
	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := uc.persist(ctx, up); err != nil {
			return err
		}
		down.DependsOnTaskID = &up.ID
		down.AppendNote(uc.now(), fmt.Sprintf("waiting on upstream task %d", up.ID))
		return uc.persist(ctx, down)
	})
	if err != nil {
		return nil, nil, err
	}

	uc.logger.Info("cascade replenishment created",
		zap.Int64("upstream_task_id", up.ID),
		zap.Int64("downstream_task_id", down.ID),
		zap.Int64("bin_id", up.ToLocationID),
	)

	// Completing the upstream releases and possibly runs the face task.
	up = uc.autoExecute(ctx, up)
	fresh, err := uc.repo.GetTask(ctx, down.ID)
	if err != nil || fresh == nil {
		return down, up, err
	}
	return fresh, up, nil
}

// planCascade looks one tier above the source variant. It returns the
// unsaved upstream task and resizes down to draw from the upstream bin, or
// returns nil when the tier above has nothing usable.
func (uc *replenUseCase) planCascade(ctx context.Context, p *plan, down *model.ReplenTask) (*model.ReplenTask, error) {
	upper, ok := p.hierarchy.Above(p.source.HierarchyLevel)
	if !ok || upper.ID == p.source.ID {
		return nil, nil
	}

	stock, err := uc.locator.Find(ctx, locator.Request{
		SourceVariantID: upper.ID,
		WarehouseID:     p.location.WarehouseID,
		DestinationID:   p.location.ID,
		SourceType:      p.policy.SourceLocationType,
		Priority:        p.policy.SourcePriority,
	})
	if err != nil || stock == nil {
		return nil, err
	}

	// Intermediate units the whole upper stock can produce.
	capacity := policy.TargetUnits(stock.VariantQty, upper.Units(), p.source.Units())
	if capacity == 0 {
		return nil, nil
	}

	needed := policy.NeededUnits(p.policy.MaxQty, p.onHand)
	mid := policy.SourceUnits(needed, p.source.Units(), p.variant.Units(), capacity)
	upQty := policy.SourceUnits(mid, upper.Units(), p.source.Units(), stock.VariantQty)
	bin := stock.WarehouseLocationID

	upTarget := policy.TargetUnits(upQty, upper.Units(), p.source.Units())
	up := &model.ReplenTask{
		WarehouseID:            p.location.WarehouseID,
		FromLocationID:         &bin,
		ToLocationID:           bin,
		SourceProductVariantID: &upper.ID,
		PickProductVariantID:   p.source.ID,
		QtySourceUnits:         upQty,
		QtyTargetUnits:         upTarget,
		Status:                 model.TaskPending,
		Priority:               p.policy.TaskPriority,
		ReplenMethod:           model.MethodCaseBreak,
		TriggeredBy:            model.TriggerCascade,
		ExecutionMode:          p.decide(upTarget).ExecutionMode,
	}
	up.AppendNote(uc.now(), fmt.Sprintf("break %d x variant %d into variant %d for pick face %d",
		upQty, upper.ID, p.source.ID, p.location.ID))

	down.Status = model.TaskBlocked
	down.FromLocationID = &bin
	down.SourceProductVariantID = &p.source.ID
	down.QtySourceUnits = mid
	down.QtyTargetUnits = policy.TargetUnits(mid, p.source.Units(), p.variant.Units())
	down.ExecutionMode = p.decide(down.QtyTargetUnits).ExecutionMode
	return up, nil
}
