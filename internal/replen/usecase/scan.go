package usecase

import (
	"context"
	"fmt"

	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen/dto"
	"go.uber.org/zap"
)

type reviveOutcome int

const (
	stillBlocked reviveOutcome = iota
	unblocked
	cascaded
	cancelled
)

// CheckAndTriggerAfterPick re-evaluates one face right after stock left it.
// It returns the task that was created or unblocked, or nil.
func (uc *replenUseCase) CheckAndTriggerAfterPick(ctx context.Context, variantID, locationID int64) (*model.ReplenTask, error) {
	loc, err := uc.warehouse.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if !loc.IsPickable || !loc.IsActive {
		return nil, nil
	}

	active, err := uc.repo.ListTasks(ctx, &dto.TaskFilters{
		PickVariantID: &variantID,
		ToLocationID:  &locationID,
		Statuses:      model.ActiveTaskStatuses,
	})
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		for i := range active {
			t := &active[i]
			if t.Status != model.TaskBlocked || uc.waiting(ctx, t) {
				continue
			}
			task, outcome, err := uc.revive(ctx, t, model.TriggerPick)
			if err != nil {
				return nil, err
			}
			if outcome == unblocked || outcome == cascaded {
				return task, nil
			}
		}
		return nil, nil
	}

	p, err := uc.evaluate(ctx, variantID, locationID)
	if err != nil {
		return nil, err
	}
	if p == nil || !p.breached {
		return nil, nil
	}
	task, _, err := uc.replenishFace(ctx, p, model.TriggerPick)
	return task, err
}

// CheckThresholds scans every pick face. Blocked tasks are revived first,
// then breached faces without an active task get one, then queued tasks
// whose policy now allows inline execution are run. A failing face is
// recorded and the scan continues.
func (uc *replenUseCase) CheckThresholds(ctx context.Context, warehouseID *int64) (*dto.ScanResult, error) {
	res := &dto.ScanResult{}

	if err := uc.reviveBlocked(ctx, warehouseID, res); err != nil {
		return res, err
	}

	faces, err := uc.pickFaces(ctx, warehouseID)
	if err != nil {
		return res, err
	}
	active, err := uc.activeFaces(ctx, warehouseID)
	if err != nil {
		return res, err
	}

	for _, f := range faces {
		res.Scanned++
		if active[f] {
			res.SkippedActive++
			continue
		}

		p, err := uc.evaluate(ctx, f.variantID, f.locationID)
		if err != nil {
			res.Errors = append(res.Errors, faceError(f, err))
			continue
		}
		if p == nil || !p.breached {
			continue
		}

		task, upstream, err := uc.replenishFace(ctx, p, model.TriggerScan)
		if err != nil {
			res.Errors = append(res.Errors, faceError(f, err))
			continue
		}
		active[f] = true
		if upstream != nil {
			recordCreated(res, upstream)
		}
		recordCreated(res, task)
	}

	if err := uc.sweepQueued(ctx, warehouseID, res); err != nil {
		return res, err
	}

	uc.logger.Info("threshold scan finished",
		zap.Int("scanned", res.Scanned),
		zap.Int("created", len(res.Created)),
		zap.Int("unblocked", len(res.Unblocked)),
		zap.Int("auto_executed", len(res.AutoExecuted)),
		zap.Int("errors", len(res.Errors)),
	)
	return res, nil
}

// replenishFace creates the task for a breached face and runs it when its
// execution mode allows. An empty direct source falls through to a cascade.
func (uc *replenUseCase) replenishFace(ctx context.Context, p *plan, trigger model.TriggerSource) (face, upstream *model.ReplenTask, err error) {
	draft, err := uc.draftTask(ctx, p, trigger)
	if err != nil {
		return nil, nil, err
	}
	if draft.Status == model.TaskBlocked {
		return uc.cascadeOrBlock(ctx, p, draft)
	}

	if err := uc.persist(ctx, draft); err != nil {
		return nil, nil, err
	}
	return uc.autoExecute(ctx, draft), nil, nil
}

func (uc *replenUseCase) reviveBlocked(ctx context.Context, warehouseID *int64, res *dto.ScanResult) error {
	blocked, err := uc.repo.ListTasks(ctx, &dto.TaskFilters{WarehouseID: warehouseID, Statuses: []model.TaskStatus{model.TaskBlocked}})
	if err != nil {
		return err
	}

	for i := range blocked {
		t := &blocked[i]
		// Tasks under a cycle count wait for its approval to trigger a re-check.
		if t.CycleCountID != nil || uc.waiting(ctx, t) {
			continue
		}

		task, outcome, err := uc.revive(ctx, t, model.TriggerScan)
		if err != nil {
			res.Errors = append(res.Errors, faceError(faceKey{t.PickProductVariantID, t.ToLocationID}, err))
			continue
		}
		switch outcome {
		case unblocked:
			res.Unblocked = append(res.Unblocked, *task)
			if task.Status == model.TaskCompleted {
				res.AutoExecuted = append(res.AutoExecuted, task.ID)
			}
		case cascaded:
			recordCreated(res, task)
		case cancelled:
			res.Cancelled = append(res.Cancelled, t.ID)
		}
	}
	return nil
}

// revive re-evaluates a blocked task. When the face is no longer breached the
// task is cancelled; when a source has appeared the task goes back to pending
// and may run; otherwise a cascade is attempted with the task as its
// downstream. For a cascade the returned task is the new upstream.
func (uc *replenUseCase) revive(ctx context.Context, t *model.ReplenTask, trigger model.TriggerSource) (*model.ReplenTask, reviveOutcome, error) {
	p, err := uc.evaluate(ctx, t.PickProductVariantID, t.ToLocationID)
	if err != nil {
		return nil, stillBlocked, err
	}
	if p == nil || !p.breached {
		if _, err := uc.CancelTask(ctx, t.ID, "threshold no longer breached"); err != nil {
			return nil, stillBlocked, err
		}
		return nil, cancelled, nil
	}

	draft, err := uc.draftTask(ctx, p, trigger)
	if err != nil {
		return nil, stillBlocked, err
	}

	if draft.Status == model.TaskBlocked {
		down := *t
		up, err := uc.planCascade(ctx, p, &down)
		if err != nil || up == nil {
			return nil, stillBlocked, err
		}
		_, up, err = uc.saveCascade(ctx, up, &down)
		if err != nil {
			return nil, stillBlocked, err
		}
		return up, cascaded, nil
	}

	var revived *model.ReplenTask
	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		cur, err := uc.lockTask(ctx, t.ID)
		if err != nil {
			return err
		}
		if cur.Status != model.TaskBlocked {
			return nil
		}
		cur.Status = model.TaskPending
		cur.FromLocationID = draft.FromLocationID
		cur.SourceProductVariantID = draft.SourceProductVariantID
		cur.QtySourceUnits = draft.QtySourceUnits
		cur.QtyTargetUnits = draft.QtyTargetUnits
		cur.ReplenMethod = draft.ReplenMethod
		cur.Priority = draft.Priority
		cur.ExecutionMode = draft.ExecutionMode
		cur.AppendNote(uc.now(), fmt.Sprintf("unblocked: source found at location %d", *draft.FromLocationID))
		if err := uc.repo.UpdateTask(ctx, cur); err != nil {
			return err
		}
		revived = cur
		return nil
	})
	if err != nil {
		return nil, stillBlocked, err
	}
	if revived == nil {
		return nil, stillBlocked, nil
	}

	uc.logger.Info("replenishment task unblocked", zap.Int64("task_id", revived.ID))
	return uc.autoExecute(ctx, revived), unblocked, nil
}

// ResolveCycleCount releases the blocked tasks held by an approved cycle count
// and re-evaluates their faces against the corrected stock. Unblocked tasks
// and new cascade upstreams are returned.
func (uc *replenUseCase) ResolveCycleCount(ctx context.Context, cycleCountID int64) ([]model.ReplenTask, error) {
	held, err := uc.repo.ListTasks(ctx, &dto.TaskFilters{
		CycleCountID: &cycleCountID,
		Statuses:     []model.TaskStatus{model.TaskBlocked},
	})
	if err != nil {
		return nil, err
	}

	var out []model.ReplenTask
	for i := range held {
		t := &held[i]
		err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
			cur, err := uc.lockTask(ctx, t.ID)
			if err != nil {
				return err
			}
			if cur.Status != model.TaskBlocked {
				return nil
			}
			cur.CycleCountID = nil
			cur.AppendNote(uc.now(), fmt.Sprintf("cycle count %d approved", cycleCountID))
			if err := uc.repo.UpdateTask(ctx, cur); err != nil {
				return err
			}
			*t = *cur
			return nil
		})
		if err != nil {
			return out, err
		}
		if t.Status != model.TaskBlocked || uc.waiting(ctx, t) {
			continue
		}

		task, outcome, err := uc.revive(ctx, t, model.TriggerScan)
		if err != nil {
			return out, err
		}
		if outcome != cancelled && task != nil {
			out = append(out, *task)
		}
	}
	return out, nil
}

// sweepQueued runs pending queue tasks whose policy now resolves to inline.
func (uc *replenUseCase) sweepQueued(ctx context.Context, warehouseID *int64, res *dto.ScanResult) error {
	queued, err := uc.repo.ListTasks(ctx, &dto.TaskFilters{
		WarehouseID:   warehouseID,
		Statuses:      []model.TaskStatus{model.TaskPending},
		ExecutionMode: model.ExecQueue,
	})
	if err != nil {
		return err
	}

	for i := range queued {
		t := &queued[i]
		auto, err := uc.shouldAutoExecute(ctx, t)
		if err != nil {
			res.Errors = append(res.Errors, faceError(faceKey{t.PickProductVariantID, t.ToLocationID}, err))
			continue
		}
		if !auto {
			continue
		}

		var switched *model.ReplenTask
		err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
			cur, err := uc.lockTask(ctx, t.ID)
			if err != nil {
				return err
			}
			if cur.Status != model.TaskPending || cur.ExecutionMode != model.ExecQueue {
				return nil
			}
			cur.ExecutionMode = model.ExecInline
			cur.AppendNote(uc.now(), "execution mode changed to inline")
			if err := uc.repo.UpdateTask(ctx, cur); err != nil {
				return err
			}
			switched = cur
			return nil
		})
		if err != nil {
			res.Errors = append(res.Errors, faceError(faceKey{t.PickProductVariantID, t.ToLocationID}, err))
			continue
		}
		if switched == nil {
			continue
		}
		if done := uc.autoExecute(ctx, switched); done.Status == model.TaskCompleted {
			res.AutoExecuted = append(res.AutoExecuted, done.ID)
		}
	}
	return nil
}

// shouldAutoExecute resolves the execution decision for an existing task
// against the current policy and settings.
func (uc *replenUseCase) shouldAutoExecute(ctx context.Context, t *model.ReplenTask) (bool, error) {
	variant, err := uc.warehouse.GetVariant(ctx, t.PickProductVariantID)
	if err != nil {
		return false, err
	}
	loc, err := uc.warehouse.GetLocation(ctx, t.ToLocationID)
	if err != nil {
		return false, err
	}
	stack, _, _, err := uc.policyStack(ctx, variant, loc)
	if err != nil {
		return false, err
	}
	settings, err := uc.resolveSettings(ctx, loc.WarehouseID)
	if err != nil {
		return false, err
	}
	p := &plan{policy: stack.Resolve(), settings: settings}
	return p.decide(t.QtyTargetUnits).ShouldAutoExecute, nil
}

// waiting reports whether t depends on a task that has not finished yet.
func (uc *replenUseCase) waiting(ctx context.Context, t *model.ReplenTask) bool {
	if t.DependsOnTaskID == nil {
		return false
	}
	up, err := uc.repo.GetTask(ctx, *t.DependsOnTaskID)
	if err != nil {
		uc.logger.Warn("failed to load upstream task", zap.Int64("task_id", t.ID), zap.Error(err))
		return true
	}
	return up != nil && !up.Status.Terminal()
}

func recordCreated(res *dto.ScanResult, t *model.ReplenTask) {
	res.Created = append(res.Created, *t)
	switch t.Status {
	case model.TaskCompleted:
		res.AutoExecuted = append(res.AutoExecuted, t.ID)
	case model.TaskBlocked:
		res.Blocked = append(res.Blocked, t.ID)
	}
}

func faceError(f faceKey, err error) dto.FaceError {
	return dto.FaceError{VariantID: f.variantID, LocationID: f.locationID, Error: err.Error()}
}
