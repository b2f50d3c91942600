package inventory

import "github.com/fekuna/omnipos-warehouse-service/internal/model"

// Replay folds the audit log of one (variant, location) bucket in the order
// given. For a complete log in creation order the result equals the level.
func Replay(txns []model.InventoryTransaction, variantID, locationID int64) model.Buckets {
	var b model.Buckets
	for i := range txns {
		if txns[i].ProductVariantID != variantID {
			continue
		}
		d := txns[i].DeltaAt(locationID)
		b.OnHand += d.OnHand
		b.Reserved += d.Reserved
		b.Picked += d.Picked
		b.Packed += d.Packed
		b.Backorder += d.Backorder
	}
	return b
}

// ConvertUnits returns how many target units n source units break into and
// how many base units are left over.
func ConvertUnits(n, sourceUnits, targetUnits int) (produced, remainder int) {
	if sourceUnits <= 0 {
		sourceUnits = 1
	}
	if targetUnits <= 0 {
		targetUnits = 1
	}
	base := n * sourceUnits
	produced = base / targetUnits
	return produced, base - produced*targetUnits
}
