package warehouse

import (
	"sort"

	"github.com/fekuna/omnipos-warehouse-service/internal/model"
)

// Hierarchy is the packaging tree of one product indexed by hierarchy level.
// When several active variants share a level the lowest id wins.
type Hierarchy struct {
	ProductID int64
	byLevel   map[int]model.ProductVariant
	levels    []int
}

func NewHierarchy(productID int64, variants []model.ProductVariant) *Hierarchy {
	h := &Hierarchy{ProductID: productID, byLevel: make(map[int]model.ProductVariant)}
	for _, v := range variants {
		if v.ProductID != productID || !v.IsActive {
			continue
		}
		if cur, ok := h.byLevel[v.HierarchyLevel]; ok && cur.ID < v.ID {
			continue
		}
		h.byLevel[v.HierarchyLevel] = v
	}
	for lvl := range h.byLevel {
		h.levels = append(h.levels, lvl)
	}
	sort.Ints(h.levels)
	return h
}

func (h *Hierarchy) AtLevel(level int) (*model.ProductVariant, bool) {
	v, ok := h.byLevel[level]
	if !ok {
		return nil, false
	}
	return &v, true
}

// Above returns the next larger packaging tier above level.
func (h *Hierarchy) Above(level int) (*model.ProductVariant, bool) {
	i := sort.SearchInts(h.levels, level+1)
	if i >= len(h.levels) {
		return nil, false
	}
	return h.AtLevel(h.levels[i])
}

func (h *Hierarchy) Levels() []int {
	out := make([]int, len(h.levels))
	copy(out, h.levels)
	return out
}
