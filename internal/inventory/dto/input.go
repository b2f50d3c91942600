package dto

// LevelSeed holds the bucket values of a level created by UpsertLevel.
// Seeds never overwrite an existing row.
type LevelSeed struct {
	VariantQty   int
	ReservedQty  int
	PickedQty    int
	PackedQty    int
	BackorderQty int
}

// MovementInput describes a single-bucket movement (receive, pick, ship, reserve, release).
type MovementInput struct {
	ProductVariantID int64
	LocationID       int64
	Quantity         int
	ReferenceType    string
	ReferenceID      string
	Notes            string
	UserID           string
}

// AdjustInput is a signed correction. QuantityDelta may be negative.
type AdjustInput struct {
	ProductVariantID int64
	LocationID       int64
	QuantityDelta    int
	Reason           string
	ReferenceType    string
	ReferenceID      string
	UserID           string
}

type TransferInput struct {
	ProductVariantID int64
	FromLocationID   int64
	ToLocationID     int64
	Quantity         int
	ReferenceType    string
	ReferenceID      string
	Notes            string
	UserID           string
}

// BreakCaseInput converts SourceQuantity units of the source variant into
// units of the target variant. Unit factors are base units per variant.
type BreakCaseInput struct {
	SourceVariantID  int64
	SourceLocationID int64
	SourceQuantity   int
	SourceUnits      int
	TargetVariantID  int64
	TargetLocationID int64
	TargetUnits      int
	ReferenceType    string
	ReferenceID      string
	UserID           string
}
