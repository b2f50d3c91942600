package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-warehouse-service/internal/database"
	"github.com/fekuna/omnipos-warehouse-service/internal/inventory"
	"github.com/fekuna/omnipos-warehouse-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

var _ inventory.Repository = (*PGRepository)(nil)

func (r *PGRepository) GetLevel(ctx context.Context, variantID, locationID int64) (*model.InventoryLevel, error) {
	var lvl model.InventoryLevel
	query := `SELECT * FROM inventory_levels WHERE product_variant_id = $1 AND warehouse_location_id = $2`
	err := sqlx.GetContext(ctx, database.Executor(ctx, r.DB), &lvl, query, variantID, locationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &lvl, nil
}

func (r *PGRepository) GetLevelByID(ctx context.Context, id int64) (*model.InventoryLevel, error) {
	var lvl model.InventoryLevel
	err := sqlx.GetContext(ctx, database.Executor(ctx, r.DB), &lvl, `SELECT * FROM inventory_levels WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &lvl, nil
}

func (r *PGRepository) UpsertLevel(ctx context.Context, variantID, locationID int64, seed dto.LevelSeed) (*model.InventoryLevel, bool, error) {
	query := `
        INSERT INTO inventory_levels (
            product_variant_id, warehouse_location_id,
            variant_qty, reserved_qty, picked_qty, packed_qty, backorder_qty
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (product_variant_id, warehouse_location_id) DO NOTHING
        RETURNING *
    `
	var lvl model.InventoryLevel
	err := sqlx.GetContext(ctx, database.Executor(ctx, r.DB), &lvl, query,
		variantID, locationID,
		seed.VariantQty, seed.ReservedQty, seed.PickedQty, seed.PackedQty, seed.BackorderQty,
	)
	if err == nil {
		return &lvl, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to insert inventory level: %w", err)
	}

	// Conflict: the row already exists and is returned untouched.
	existing, err := r.GetLevel(ctx, variantID, locationID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, inventory.ErrLevelNotFound
	}
	return existing, false, nil
}

type levelChangeRow struct {
	model.InventoryLevel
	PrevVariantQty   int `db:"prev_variant_qty"`
	PrevReservedQty  int `db:"prev_reserved_qty"`
	PrevPickedQty    int `db:"prev_picked_qty"`
	PrevPackedQty    int `db:"prev_packed_qty"`
	PrevBackorderQty int `db:"prev_backorder_qty"`
}

func guardClause(g model.Guard) string {
	switch g.Kind {
	case model.GuardOnHand:
		return " AND l.variant_qty >= $8"
	case model.GuardAvailable:
		return " AND l.variant_qty - l.reserved_qty >= $8"
	case model.GuardPicked:
		return " AND l.picked_qty >= $8"
	}
	return " AND $8::int IS NOT NULL"
}

// ApplyDeltas runs the delta update and its guard as one statement against a
// row locked by the same statement, so concurrent callers serialize on the row.
func (r *PGRepository) ApplyDeltas(ctx context.Context, levelID int64, d model.LevelDeltas, g model.Guard) (*model.LevelChange, error) {
	query := `
        UPDATE inventory_levels l SET
            variant_qty   = l.variant_qty + $2,
            reserved_qty  = l.reserved_qty + $3 - LEAST(GREATEST(l.reserved_qty + $3, 0), $7),
            picked_qty    = l.picked_qty + $4,
            packed_qty    = l.packed_qty + $5,
            backorder_qty = l.backorder_qty + $6,
            updated_at    = NOW()
        FROM (
            SELECT id, variant_qty, reserved_qty, picked_qty, packed_qty, backorder_qty
            FROM inventory_levels WHERE id = $1 FOR UPDATE
        ) prev
        WHERE l.id = prev.id` + guardClause(g) + `
        RETURNING l.*,
            prev.variant_qty   AS prev_variant_qty,
            prev.reserved_qty  AS prev_reserved_qty,
            prev.picked_qty    AS prev_picked_qty,
            prev.packed_qty    AS prev_packed_qty,
            prev.backorder_qty AS prev_backorder_qty
    `
	exec := database.Executor(ctx, r.DB)

	var row levelChangeRow
	err := sqlx.GetContext(ctx, exec, &row, query,
		levelID, d.VariantQty, d.ReservedQty, d.PickedQty, d.PackedQty, d.BackorderQty, d.ReleaseReserved, g.Min,
	)
	if err == nil {
		before := row.InventoryLevel
		before.VariantQty = row.PrevVariantQty
		before.ReservedQty = row.PrevReservedQty
		before.PickedQty = row.PrevPickedQty
		before.PackedQty = row.PrevPackedQty
		before.BackorderQty = row.PrevBackorderQty
		return &model.LevelChange{Before: before, After: row.InventoryLevel}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to update inventory level: %w", err)
	}

	var exists bool
	if err := sqlx.GetContext(ctx, exec, &exists, `SELECT EXISTS (SELECT 1 FROM inventory_levels WHERE id = $1)`, levelID); err != nil {
		return nil, err
	}
	if !exists {
		return nil, inventory.ErrLevelNotFound
	}
	return nil, nil
}

func (r *PGRepository) InsertTransaction(ctx context.Context, t *model.InventoryTransaction) error {
	query := `
        INSERT INTO inventory_transactions (
            product_variant_id, from_location_id, to_location_id, transaction_type,
            variant_qty_delta, variant_qty_before, variant_qty_after,
            reserved_qty_delta, picked_qty_delta, packed_qty_delta, backorder_qty_delta,
            reference_type, reference_id, notes, created_by, created_at
        )
        VALUES (
            :product_variant_id, :from_location_id, :to_location_id, :transaction_type,
            :variant_qty_delta, :variant_qty_before, :variant_qty_after,
            :reserved_qty_delta, :picked_qty_delta, :packed_qty_delta, :backorder_qty_delta,
            :reference_type, :reference_id, :notes, :created_by, :created_at
        )
        RETURNING id
    `
	exec := database.Executor(ctx, r.DB)
	bound, args, err := sqlx.Named(query, t)
	if err != nil {
		return err
	}
	if err := exec.QueryRowxContext(ctx, exec.Rebind(bound), args...).Scan(&t.ID); err != nil {
		return fmt.Errorf("failed to log inventory transaction: %w", err)
	}
	return nil
}

func (r *PGRepository) ListTransactions(ctx context.Context, f *dto.TransactionFilters) ([]model.InventoryTransaction, error) {
	conditions := []string{}
	args := map[string]interface{}{}

	if f.ProductVariantID != nil {
		conditions = append(conditions, "product_variant_id = :product_variant_id")
		args["product_variant_id"] = *f.ProductVariantID
	}
	if f.LocationID != nil {
		conditions = append(conditions, "(from_location_id = :location_id OR to_location_id = :location_id)")
		args["location_id"] = *f.LocationID
	}
	if f.TransactionType != "" {
		conditions = append(conditions, "transaction_type = :transaction_type")
		args["transaction_type"] = f.TransactionType
	}
	if f.ReferenceType != "" {
		conditions = append(conditions, "reference_type = :reference_type")
		args["reference_type"] = f.ReferenceType
	}
	if f.ReferenceID != "" {
		conditions = append(conditions, "reference_id = :reference_id")
		args["reference_id"] = f.ReferenceID
	}
	if f.Since != nil {
		conditions = append(conditions, "created_at >= :since")
		args["since"] = *f.Since
	}

	query := "SELECT * FROM inventory_transactions" + where(conditions) + " ORDER BY id ASC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	var items []model.InventoryTransaction
	err := r.namedSelect(ctx, &items, query, args)
	return items, err
}

func (r *PGRepository) FindStock(ctx context.Context, q *dto.StockQuery) ([]model.LocationStock, error) {
	conditions := []string{}
	args := map[string]interface{}{}

	if q.ProductVariantID != nil {
		conditions = append(conditions, "l.product_variant_id = :product_variant_id")
		args["product_variant_id"] = *q.ProductVariantID
	}
	if q.WarehouseID != nil {
		conditions = append(conditions, "w.warehouse_id = :warehouse_id")
		args["warehouse_id"] = *q.WarehouseID
	}
	if q.LocationID != nil {
		conditions = append(conditions, "l.warehouse_location_id = :location_id")
		args["location_id"] = *q.LocationID
	}
	if q.LocationType != nil {
		conditions = append(conditions, "w.location_type = :location_type")
		args["location_type"] = string(*q.LocationType)
	}
	if q.ExcludeLocationID != nil {
		conditions = append(conditions, "l.warehouse_location_id <> :exclude_location_id")
		args["exclude_location_id"] = *q.ExcludeLocationID
	}
	if q.PickableOnly {
		conditions = append(conditions, "w.is_pickable")
	}
	if q.ActiveOnly {
		conditions = append(conditions, "w.is_active")
	}
	if q.PositiveOnly {
		conditions = append(conditions, "l.variant_qty > 0")
	}

	query := `
        SELECT l.id AS level_id, l.product_variant_id, l.warehouse_location_id,
               w.warehouse_id, w.location_type, w.is_pickable,
               l.variant_qty, l.reserved_qty, l.updated_at
        FROM inventory_levels l
        JOIN warehouse_locations w ON w.id = l.warehouse_location_id` + where(conditions)

	switch q.OrderBy {
	case model.PrioritySmallestFirst:
		query += " ORDER BY l.variant_qty ASC, l.id ASC"
	case model.PriorityFIFO:
		query += " ORDER BY l.updated_at ASC, l.id ASC"
	default:
		query += " ORDER BY l.id ASC"
	}
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	var items []model.LocationStock
	err := r.namedSelect(ctx, &items, query, args)
	return items, err
}

func (r *PGRepository) PickedQuantitySince(ctx context.Context, variantID, locationID int64, since time.Time) (int, error) {
	query := `
        SELECT COALESCE(SUM(ABS(picked_qty_delta)), 0)
        FROM inventory_transactions
        WHERE product_variant_id = $1
          AND from_location_id = $2
          AND transaction_type = $3
          AND created_at >= $4
    `
	var total int
	err := sqlx.GetContext(ctx, database.Executor(ctx, r.DB), &total, query, variantID, locationID, model.TxnPick, since)
	return total, err
}

func (r *PGRepository) UsedCube(ctx context.Context, locationID int64) (int64, error) {
	query := `
        SELECT COALESCE(SUM(GREATEST(l.variant_qty, 0)::bigint * COALESCE(v.cube_cm3, 0)), 0)
        FROM inventory_levels l
        JOIN product_variants v ON v.id = l.product_variant_id
        WHERE l.warehouse_location_id = $1
    `
	var used int64
	err := sqlx.GetContext(ctx, database.Executor(ctx, r.DB), &used, query, locationID)
	return used, err
}

func (r *PGRepository) namedSelect(ctx context.Context, dest interface{}, query string, args map[string]interface{}) error {
	exec := database.Executor(ctx, r.DB)
	bound, list, err := sqlx.Named(query, args)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, exec, dest, exec.Rebind(bound), list...)
}

func where(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}
