package policy

import (
	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"github.com/shopspring/decimal"
)

type Decision struct {
	ShouldAutoExecute bool
	ExecutionMode     model.ExecutionMode
}

var (
	autoDecision   = Decision{ShouldAutoExecute: true, ExecutionMode: model.ExecInline}
	manualDecision = Decision{ShouldAutoExecute: false, ExecutionMode: model.ExecQueue}
)

func fromOverride(o *int) (Decision, bool) {
	if o == nil {
		return Decision{}, false
	}
	switch *o {
	case model.AutoReplenForce:
		return autoDecision, true
	case model.AutoReplenManual:
		return manualDecision, true
	}
	return Decision{}, false
}

// ResolveAutoExecute applies the SKU override, then the tier override, then
// the warehouse mode. A zero or nil override defers to the next step.
func ResolveAutoExecute(skuOverride, tierOverride *int, settings model.WarehouseSettings, qtyTargetUnits int) Decision {
	if d, ok := fromOverride(skuOverride); ok {
		return d
	}
	if d, ok := fromOverride(tierOverride); ok {
		return d
	}

	switch settings.ReplenMode {
	case model.ModeInline:
		return autoDecision
	case model.ModeQueue:
		return manualDecision
	}

	limit := settings.InlineReplenMaxUnits
	if limit <= 0 {
		limit = model.DefaultInlineReplenMaxUnits
	}
	if qtyTargetUnits <= limit {
		return autoDecision
	}
	return manualDecision
}

// Velocity is average picked units per day over the lookback window.
func Velocity(pickedUnits, lookbackDays int) decimal.Decimal {
	if lookbackDays <= 0 {
		lookbackDays = model.DefaultVelocityLookbackDays
	}
	return decimal.NewFromInt(int64(pickedUnits)).Div(decimal.NewFromInt(int64(lookbackDays)))
}

// CoverageDays is how long onHand lasts at velocity. ok is false when nothing moves.
func CoverageDays(onHand int, velocity decimal.Decimal) (days decimal.Decimal, ok bool) {
	if !velocity.IsPositive() {
		return decimal.Zero, false
	}
	return decimal.NewFromInt(int64(onHand)).Div(velocity), true
}

// BelowThreshold compares on-hand with the trigger. For pallet_drop the
// trigger is in coverage days and a face with no pick history never fires;
// otherwise the trigger is a unit count and the comparison is inclusive.
func BelowThreshold(method model.ReplenMethod, onHand, trigger int, velocity decimal.Decimal) bool {
	if method == model.MethodPalletDrop {
		days, ok := CoverageDays(onHand, velocity)
		if !ok {
			return false
		}
		return days.LessThan(decimal.NewFromInt(int64(trigger)))
	}
	return onHand <= trigger
}

// NeededUnits is the shortfall against max in pick units. Without a max the
// face gets the minimum move.
func NeededUnits(maxQty *int, onHand int) int {
	if maxQty == nil {
		return 0
	}
	if n := *maxQty - onHand; n > 0 {
		return n
	}
	return 0
}

// SourceUnits converts a shortfall in pick units into whole source units,
// rounded up, at least one, and capped at what the source holds.
func SourceUnits(needed, sourceUnits, pickUnits, available int) int {
	sourceUnits, pickUnits = positive(sourceUnits), positive(pickUnits)
	n := ceilDiv(needed*pickUnits, sourceUnits)
	if n < 1 {
		n = 1
	}
	if n > available {
		n = available
	}
	if n < 0 {
		return 0
	}
	return n
}

// TargetUnits is how many pick units n source units yield.
func TargetUnits(n, sourceUnits, pickUnits int) int {
	return n * positive(sourceUnits) / positive(pickUnits)
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func positive(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// SourceUnitsWithin is the most whole source units whose yield does not
// exceed limit pick units.
func SourceUnitsWithin(limit, sourceUnits, pickUnits int) int {
	if limit <= 0 {
		return 0
	}
	return limit * positive(pickUnits) / positive(sourceUnits)
}
