// Package policy merges the replenishment configuration layers of a pick face
// into one effective policy and decides thresholds, quantities and execution mode.
package policy

import "github.com/fekuna/omnipos-warehouse-service/internal/model"

type LayerKind int

const (
	LayerNone LayerKind = iota
	LayerLocationVariant
	LayerLocation
	LayerRule
	LayerTier
)

func (k LayerKind) String() string {
	switch k {
	case LayerLocationVariant:
		return "location_variant"
	case LayerLocation:
		return "location"
	case LayerRule:
		return "rule"
	case LayerTier:
		return "tier"
	}
	return "none"
}

type Layer struct {
	Kind   LayerKind
	Values model.PolicyValues
}

// Stack is ordered most specific first. Each field resolves to the first layer
// that defines it.
type Stack []Layer

// NewStack builds the fixed precedence order. Nil layers are skipped.
func NewStack(locVariant, loc *model.LocationReplenConfig, rule *model.ReplenRule, tier *model.ReplenTierDefault) Stack {
	var s Stack
	if locVariant != nil {
		s = append(s, Layer{Kind: LayerLocationVariant, Values: locVariant.PolicyValues})
	}
	if loc != nil {
		s = append(s, Layer{Kind: LayerLocation, Values: loc.PolicyValues})
	}
	if rule != nil {
		s = append(s, Layer{Kind: LayerRule, Values: rule.PolicyValues})
	}
	if tier != nil {
		s = append(s, Layer{Kind: LayerTier, Values: tier.PolicyValues})
	}
	return s
}

const DefaultTaskPriority = 5

type Effective struct {
	TriggerValue       *int
	TriggerLayer       LayerKind
	MaxQty             *int
	SourceLocationType model.LocationType
	SourcePriority     model.SourcePriority
	ReplenMethod       model.ReplenMethod
	TaskPriority       int

	// SKUOverride is the first non-zero autoReplen above the tier layer.
	SKUOverride  *int
	TierOverride *int
}

func first[T any](s Stack, get func(*model.PolicyValues) *T) (*T, LayerKind) {
	for i := range s {
		if v := get(&s[i].Values); v != nil {
			return v, s[i].Kind
		}
	}
	return nil, LayerNone
}

func (s Stack) Resolve() Effective {
	e := Effective{
		SourceLocationType: model.LocationReserve,
		SourcePriority:     model.PriorityFIFO,
		ReplenMethod:       model.MethodFullCase,
		TaskPriority:       DefaultTaskPriority,
	}

	e.TriggerValue, e.TriggerLayer = first(s, func(v *model.PolicyValues) *int { return v.TriggerValue })
	e.MaxQty, _ = first(s, func(v *model.PolicyValues) *int { return v.MaxQty })
	if v, _ := first(s, func(v *model.PolicyValues) *model.LocationType { return v.SourceLocationType }); v != nil {
		e.SourceLocationType = *v
	}
	if v, _ := first(s, func(v *model.PolicyValues) *model.SourcePriority { return v.SourcePriority }); v != nil {
		e.SourcePriority = *v
	}
	if v, _ := first(s, func(v *model.PolicyValues) *model.ReplenMethod { return v.ReplenMethod }); v != nil {
		e.ReplenMethod = *v
	}
	if v, _ := first(s, func(v *model.PolicyValues) *int { return v.TaskPriority }); v != nil {
		e.TaskPriority = *v
	}

	for _, l := range s {
		a := l.Values.AutoReplen
		if a == nil || *a == model.AutoReplenDefer {
			continue
		}
		if l.Kind == LayerTier {
			if e.TierOverride == nil {
				e.TierOverride = a
			}
		} else if e.SKUOverride == nil {
			e.SKUOverride = a
		}
	}
	return e
}

// HasPolicy reports whether any layer configures a trigger for the face.
func (e Effective) HasPolicy() bool {
	return e.TriggerValue != nil
}
