package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen/dto"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen/policy"
	whdto "github.com/fekuna/omnipos-warehouse-service/internal/warehouse/dto"
	"go.uber.org/zap"
)

var errNoCapacity = errors.New("pick face and overflow bins have no remaining capacity")

// GenerateTasks is the bulk sweep. It behaves like CheckThresholds for
// breached faces but sizes each move against the remaining cube of the pick
// face and routes what does not fit to an overflow bin.
func (uc *replenUseCase) GenerateTasks(ctx context.Context, warehouseID *int64) (*dto.ScanResult, error) {
	res := &dto.ScanResult{}

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

		tasks, err := uc.generateForFace(ctx, p)
		if err != nil {
			res.Errors = append(res.Errors, faceError(f, err))
			continue
		}
		active[f] = true
		for _, t := range tasks {
			recordCreated(res, t)
		}
	}

	uc.logger.Info("task generation finished",
		zap.Int("scanned", res.Scanned),
		zap.Int("created", len(res.Created)),
		zap.Int("errors", len(res.Errors)),
	)
	return res, nil
}

func (uc *replenUseCase) generateForFace(ctx context.Context, p *plan) ([]*model.ReplenTask, error) {
	draft, err := uc.draftTask(ctx, p, model.TriggerGenerate)
	if err != nil {
		return nil, err
	}
	if draft.Status == model.TaskBlocked {
		face, up, err := uc.cascadeOrBlock(ctx, p, draft)
		if err != nil {
			return nil, err
		}
		if up != nil {
			return []*model.ReplenTask{up, face}, nil
		}
		return []*model.ReplenTask{face}, nil
	}

	total := draft.QtySourceUnits
	fit, err := uc.sourceUnitsThatFit(ctx, p, draft)
	if err != nil {
		return nil, err
	}
	if fit == 0 {
		overflow, err := uc.overflowTask(ctx, p, draft, total)
		if err != nil {
			return nil, err
		}
		if overflow == nil {
			return nil, errNoCapacity
		}
		overflow.AppendNote(uc.now(), "pick face full: all source units routed to overflow")
		return uc.persistAndRun(ctx, overflow)
	}

	tasks := []*model.ReplenTask{draft}
	if fit < total {
		draft.QtySourceUnits = fit
		draft.QtyTargetUnits = policy.TargetUnits(fit, p.source.Units(), p.variant.Units())
		draft.ExecutionMode = p.decide(draft.QtyTargetUnits).ExecutionMode
		draft.AppendNote(uc.now(), fmt.Sprintf("split for capacity: %d of %d source units fit", fit, total))

		overflow, err := uc.overflowTask(ctx, p, draft, total-fit)
		if err != nil {
			return nil, err
		}
		if overflow != nil {
			tasks = append(tasks, overflow)
		} else {
			uc.logger.Warn("no overflow bin fits the remainder",
				zap.Int64("location_id", p.location.ID),
				zap.Int64("variant_id", p.source.ID),
				zap.Int("source_units", total-fit),
			)
		}
	}

	return uc.persistAndRun(ctx, tasks...)
}

func (uc *replenUseCase) persistAndRun(ctx context.Context, tasks ...*model.ReplenTask) ([]*model.ReplenTask, error) {
	if err := uc.persist(ctx, tasks...); err != nil {
		return nil, err
	}
	for i, t := range tasks {
		tasks[i] = uc.autoExecute(ctx, t)
	}
	return tasks, nil
}

// sourceUnitsThatFit caps a draft at the remaining cube of the pick face.
// A case break lands pick units, so the room is counted in pick units and
// only source units whose whole yield fits are broken; other methods land
// whole source units.
func (uc *replenUseCase) sourceUnitsThatFit(ctx context.Context, p *plan, draft *model.ReplenTask) (int, error) {
	total := draft.QtySourceUnits
	if p.location.CapacityCm3 == nil {
		return total, nil
	}
	landing := p.source
	if p.policy.ReplenMethod == model.MethodCaseBreak {
		landing = p.variant
	}
	if landing.CubeCm3 == nil || *landing.CubeCm3 <= 0 {
		return total, nil
	}

	used, err := uc.ledger.UsedCube(ctx, p.location.ID)
	if err != nil {
		return 0, err
	}
	remaining := *p.location.CapacityCm3 - used
	if remaining <= 0 {
		return 0, nil
	}
	room := int(remaining / *landing.CubeCm3)

	if p.policy.ReplenMethod == model.MethodCaseBreak {
		pickUnits := min(draft.QtyTargetUnits, room)
		return min(policy.SourceUnitsWithin(pickUnits, p.source.Units(), p.variant.Units()), total), nil
	}
	return min(room, total), nil
}

// overflowTask moves qty whole source units to the reserve bin whose
// remaining cube fits them most tightly. It returns nil when no bin fits.
func (uc *replenUseCase) overflowTask(ctx context.Context, p *plan, face *model.ReplenTask, qty int) (*model.ReplenTask, error) {
	bin, err := uc.findOverflowBin(ctx, p, *face.FromLocationID, qty)
	if err != nil || bin == nil {
		return nil, err
	}

	t := &model.ReplenTask{
		WarehouseID:            p.location.WarehouseID,
		FromLocationID:         face.FromLocationID,
		ToLocationID:           bin.ID,
		SourceProductVariantID: &p.source.ID,
		PickProductVariantID:   p.source.ID,
		QtySourceUnits:         qty,
		QtyTargetUnits:         qty,
		Status:                 model.TaskPending,
		Priority:               p.policy.TaskPriority,
		ReplenMethod:           model.MethodFullCase,
		TriggeredBy:            model.TriggerOverflow,
		ExecutionMode:          p.decide(qty).ExecutionMode,
	}
	t.AppendNote(uc.now(), fmt.Sprintf("overflow of %d source units for pick face %d", qty, p.location.ID))
	return t, nil
}

func (uc *replenUseCase) findOverflowBin(ctx context.Context, p *plan, sourceID int64, qty int) (*model.WarehouseLocation, error) {
	var need int64
	if p.source.CubeCm3 != nil {
		need = int64(qty) * *p.source.CubeCm3
	}

	reserve := model.LocationReserve
	bins, err := uc.warehouse.ListLocations(ctx, &whdto.LocationFilters{
		WarehouseID:  &p.location.WarehouseID,
		LocationType: &reserve,
		ActiveOnly:   true,
	})
	if err != nil {
		return nil, err
	}

	var best *model.WarehouseLocation
	var bestRoom int64
	for i := range bins {
		b := &bins[i]
		if b.IsPickable || b.ID == sourceID || b.ID == p.location.ID {
			continue
		}
		room := int64(math.MaxInt64)
		if b.CapacityCm3 != nil {
			used, err := uc.ledger.UsedCube(ctx, b.ID)
			if err != nil {
				return nil, err
			}
			room = *b.CapacityCm3 - used
		}
		if room < need {
			continue
		}
		if best == nil || room < bestRoom || (room == bestRoom && b.ID < best.ID) {
			best, bestRoom = b, room
		}
	}
	return best, nil
}
