package model

import "time"

// ProductVariant is one packaging tier of a product (each, pack, case, pallet).
// UnitsPerVariant converts one variant unit into base units.
type ProductVariant struct {
	ID              int64     `db:"id" json:"id"`
	ProductID       int64     `db:"product_id" json:"product_id"`
	ParentVariantID *int64    `db:"parent_variant_id" json:"parent_variant_id"`
	SKU             string    `db:"sku" json:"sku"`
	Name            string    `db:"name" json:"name"`
	UnitsPerVariant int       `db:"units_per_variant" json:"units_per_variant"`
	HierarchyLevel  int       `db:"hierarchy_level" json:"hierarchy_level"`
	CubeCm3         *int64    `db:"cube_cm3" json:"cube_cm3"` // Nullable
	IsActive        bool      `db:"is_active" json:"is_active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Units guards against unconfigured variants; a zero factor is treated as 1.
func (v *ProductVariant) Units() int {
	if v.UnitsPerVariant <= 0 {
		return 1
	}
	return v.UnitsPerVariant
}
