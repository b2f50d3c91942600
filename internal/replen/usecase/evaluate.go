package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	invdto "github.com/fekuna/omnipos-warehouse-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen/dto"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen/locator"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen/policy"
	"github.com/fekuna/omnipos-warehouse-service/internal/warehouse"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// plan is everything the engine knows about one pick face at one moment.
type plan struct {
	variant  *model.ProductVariant
	location *model.WarehouseLocation
	onHand   int
	policy   policy.Effective
	settings model.WarehouseSettings
	velocity decimal.Decimal
	breached bool

	// Set only when breached.
	hierarchy *warehouse.Hierarchy
	source    *model.ProductVariant
}

func (p *plan) decide(qtyTargetUnits int) policy.Decision {
	return policy.ResolveAutoExecute(p.policy.SKUOverride, p.policy.TierOverride, p.settings, qtyTargetUnits)
}

type faceKey struct {
	variantID  int64
	locationID int64
}

// evaluate resolves policy and threshold state for a face. It returns nil
// when no layer configures a trigger for it.
func (uc *replenUseCase) evaluate(ctx context.Context, variantID, locationID int64) (*plan, error) {
	variant, err := uc.warehouse.GetVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}
	loc, err := uc.warehouse.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}

	stack, rule, tier, err := uc.policyStack(ctx, variant, loc)
	if err != nil {
		return nil, err
	}
	eff := stack.Resolve()
	if !eff.HasPolicy() {
		return nil, nil
	}

	settings, err := uc.resolveSettings(ctx, loc.WarehouseID)
	if err != nil {
		return nil, err
	}

	p := &plan{variant: variant, location: loc, policy: eff, settings: settings, velocity: decimal.Zero}
	lvl, err := uc.ledger.GetLevel(ctx, variantID, locationID)
	if err != nil {
		return nil, err
	}
	if lvl != nil {
		p.onHand = lvl.VariantQty
	}

	if eff.ReplenMethod == model.MethodPalletDrop {
		days := settings.VelocityLookbackDays
		since := uc.now().Add(-time.Duration(days) * 24 * time.Hour)
		picked, err := uc.ledger.PickedQuantitySince(ctx, variantID, locationID, since)
		if err != nil {
			return nil, err
		}
		p.velocity = policy.Velocity(picked, days)
	}

	p.breached = policy.BelowThreshold(eff.ReplenMethod, p.onHand, *eff.TriggerValue, p.velocity)
	if !p.breached {
		return p, nil
	}

	if p.hierarchy, err = uc.warehouse.Hierarchy(ctx, variant.ProductID); err != nil {
		return nil, err
	}
	if p.source, err = uc.sourceVariant(ctx, p.hierarchy, variant, rule, tier); err != nil {
		return nil, err
	}
	return p, nil
}

func (uc *replenUseCase) policyStack(ctx context.Context, variant *model.ProductVariant, loc *model.WarehouseLocation) (policy.Stack, *model.ReplenRule, *model.ReplenTierDefault, error) {
	configs, err := uc.repo.ListLocationConfigs(ctx, &dto.ConfigFilters{LocationID: &loc.ID, ActiveOnly: true})
	if err != nil {
		return nil, nil, nil, err
	}
	var locVariant, locWide *model.LocationReplenConfig
	for i := range configs {
		c := &configs[i]
		switch {
		case c.ProductVariantID == nil:
			if locWide == nil {
				locWide = c
			}
		case *c.ProductVariantID == variant.ID:
			if locVariant == nil {
				locVariant = c
			}
		}
	}

	rule, err := uc.repo.GetRule(ctx, variant.ID)
	if err != nil {
		return nil, nil, nil, err
	}

	tier, err := uc.repo.GetTierDefault(ctx, &loc.WarehouseID, variant.HierarchyLevel)
	if err != nil {
		return nil, nil, nil, err
	}
	if tier == nil {
		if tier, err = uc.repo.GetTierDefault(ctx, nil, variant.HierarchyLevel); err != nil {
			return nil, nil, nil, err
		}
	}

	return policy.NewStack(locVariant, locWide, rule, tier), rule, tier, nil
}

// sourceVariant picks what the face is refilled from: the rule's explicit
// source, then the tier's source level, then the next tier up. A variant at
// the top of its hierarchy is refilled with itself.
func (uc *replenUseCase) sourceVariant(ctx context.Context, h *warehouse.Hierarchy, pick *model.ProductVariant, rule *model.ReplenRule, tier *model.ReplenTierDefault) (*model.ProductVariant, error) {
	if rule != nil && rule.SourceProductVariantID != nil {
		return uc.warehouse.GetVariant(ctx, *rule.SourceProductVariantID)
	}
	if tier != nil && tier.SourceHierarchyLevel != nil {
		if v, ok := h.AtLevel(*tier.SourceHierarchyLevel); ok {
			return v, nil
		}
	}
	if v, ok := h.Above(pick.HierarchyLevel); ok {
		return v, nil
	}
	return pick, nil
}

// resolveSettings reads the warehouse row, then the global row, then the
// configured defaults. Unset numeric fields are taken from the defaults.
func (uc *replenUseCase) resolveSettings(ctx context.Context, warehouseID int64) (model.WarehouseSettings, error) {
	if uc.cache != nil {
		if s, ok := uc.cache.GetSettings(ctx, warehouseID); ok {
			return *s, nil
		}
	}

	s, err := uc.repo.GetWarehouseSettings(ctx, &warehouseID)
	if err != nil {
		return model.WarehouseSettings{}, err
	}
	if s == nil {
		if s, err = uc.repo.GetWarehouseSettings(ctx, nil); err != nil {
			return model.WarehouseSettings{}, err
		}
	}

	resolved := uc.defaults
	if s != nil {
		resolved = *s
		if resolved.ReplenMode == "" {
			resolved.ReplenMode = uc.defaults.ReplenMode
		}
		if resolved.InlineReplenMaxUnits <= 0 {
			resolved.InlineReplenMaxUnits = uc.defaults.InlineReplenMaxUnits
		}
		if resolved.VelocityLookbackDays <= 0 {
			resolved.VelocityLookbackDays = uc.defaults.VelocityLookbackDays
		}
	}

	if uc.cache != nil {
		uc.cache.SetSettings(ctx, warehouseID, &resolved)
	}
	return resolved, nil
}

// draftTask sizes a task for a breached face and looks for a source. The
// result is pending when stock was found and blocked with zero quantities
// otherwise. Nothing is persisted.
func (uc *replenUseCase) draftTask(ctx context.Context, p *plan, trigger model.TriggerSource) (*model.ReplenTask, error) {
	t := &model.ReplenTask{
		WarehouseID:            p.location.WarehouseID,
		ToLocationID:           p.location.ID,
		SourceProductVariantID: &p.source.ID,
		PickProductVariantID:   p.variant.ID,
		Priority:               p.policy.TaskPriority,
		ReplenMethod:           p.policy.ReplenMethod,
		TriggeredBy:            trigger,
	}

	src, err := uc.locator.Find(ctx, locator.Request{
		SourceVariantID: p.source.ID,
		WarehouseID:     p.location.WarehouseID,
		DestinationID:   p.location.ID,
		SourceType:      p.policy.SourceLocationType,
		Priority:        p.policy.SourcePriority,
	})
	if err != nil {
		return nil, err
	}

	if src == nil {
		t.Status = model.TaskBlocked
		t.ExecutionMode = p.decide(0).ExecutionMode
		t.AppendNote(uc.now(), fmt.Sprintf("no %s stock of variant %d found", p.policy.SourceLocationType, p.source.ID))
		return t, nil
	}

	needed := policy.NeededUnits(p.policy.MaxQty, p.onHand)
	t.FromLocationID = &src.WarehouseLocationID
	t.QtySourceUnits = policy.SourceUnits(needed, p.source.Units(), p.variant.Units(), src.VariantQty)
	t.QtyTargetUnits = policy.TargetUnits(t.QtySourceUnits, p.source.Units(), p.variant.Units())
	t.ExecutionMode = p.decide(t.QtyTargetUnits).ExecutionMode
	t.Status = model.TaskPending
	return t, nil
}

// pickFaces lists every stocked pickable (variant, location) pair plus the
// pairs that only exist as variant-specific configs.
func (uc *replenUseCase) pickFaces(ctx context.Context, warehouseID *int64) ([]faceKey, error) {
	rows, err := uc.ledger.FindStock(ctx, &invdto.StockQuery{WarehouseID: warehouseID, PickableOnly: true, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	seen := make(map[faceKey]bool, len(rows))
	var faces []faceKey
	for _, r := range rows {
		k := faceKey{r.ProductVariantID, r.WarehouseLocationID}
		if !seen[k] {
			seen[k] = true
			faces = append(faces, k)
		}
	}

	configs, err := uc.repo.ListLocationConfigs(ctx, &dto.ConfigFilters{WarehouseID: warehouseID, VariantSpecificOnly: true, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	for _, c := range configs {
		k := faceKey{*c.ProductVariantID, c.WarehouseLocationID}
		if seen[k] {
			continue
		}
		loc, err := uc.warehouse.GetLocation(ctx, c.WarehouseLocationID)
		if err != nil {
			uc.logger.Warn("skipping config for unknown location", zap.Int64("config_id", c.ID), zap.Error(err))
			continue
		}
		if !loc.IsPickable || !loc.IsActive {
			continue
		}
		seen[k] = true
		faces = append(faces, k)
	}

	sort.Slice(faces, func(i, j int) bool {
		if faces[i].locationID != faces[j].locationID {
			return faces[i].locationID < faces[j].locationID
		}
		return faces[i].variantID < faces[j].variantID
	})
	return faces, nil
}

// activeFaces indexes active tasks by the face they refill.
func (uc *replenUseCase) activeFaces(ctx context.Context, warehouseID *int64) (map[faceKey]bool, error) {
	tasks, err := uc.repo.ListTasks(ctx, &dto.TaskFilters{WarehouseID: warehouseID, Statuses: model.ActiveTaskStatuses})
	if err != nil {
		return nil, err
	}
	out := make(map[faceKey]bool, len(tasks))
	for _, t := range tasks {
		out[faceKey{t.PickProductVariantID, t.ToLocationID}] = true
	}
	return out, nil
}
