package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/fekuna/omnipos-warehouse-service/internal/database"
	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"github.com/fekuna/omnipos-warehouse-service/internal/warehouse"
	"github.com/fekuna/omnipos-warehouse-service/internal/warehouse/dto"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

var _ warehouse.Repository = (*PGRepository)(nil)

func (r *PGRepository) CreateVariant(ctx context.Context, v *model.ProductVariant) error {
	query := `
        INSERT INTO product_variants (
            product_id, parent_variant_id, sku, name, units_per_variant,
            hierarchy_level, cube_cm3, is_active, created_at, updated_at
        )
        VALUES (
            :product_id, :parent_variant_id, :sku, :name, :units_per_variant,
            :hierarchy_level, :cube_cm3, :is_active, :created_at, :updated_at
        )
        RETURNING id
    `
	return r.insertReturningID(ctx, query, v, &v.ID)
}

func (r *PGRepository) GetVariant(ctx context.Context, id int64) (*model.ProductVariant, error) {
	var v model.ProductVariant
	err := sqlx.GetContext(ctx, database.Executor(ctx, r.DB), &v, `SELECT * FROM product_variants WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

func (r *PGRepository) ListVariantsByProduct(ctx context.Context, productID int64) ([]model.ProductVariant, error) {
	var items []model.ProductVariant
	query := `SELECT * FROM product_variants WHERE product_id = $1 ORDER BY hierarchy_level ASC, id ASC`
	err := sqlx.SelectContext(ctx, database.Executor(ctx, r.DB), &items, query, productID)
	return items, err
}

func (r *PGRepository) CreateLocation(ctx context.Context, l *model.WarehouseLocation) error {
	query := `
        INSERT INTO warehouse_locations (
            warehouse_id, code, location_type, is_pickable, parent_location_id,
            capacity_cm3, is_active, created_at, updated_at
        )
        VALUES (
            :warehouse_id, :code, :location_type, :is_pickable, :parent_location_id,
            :capacity_cm3, :is_active, :created_at, :updated_at
        )
        RETURNING id
    `
	return r.insertReturningID(ctx, query, l, &l.ID)
}

func (r *PGRepository) UpdateLocation(ctx context.Context, l *model.WarehouseLocation) error {
	query := `
        UPDATE warehouse_locations SET
            code = :code,
            location_type = :location_type,
            is_pickable = :is_pickable,
            parent_location_id = :parent_location_id,
            capacity_cm3 = :capacity_cm3,
            is_active = :is_active,
            updated_at = :updated_at
        WHERE id = :id
    `
	_, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.DB), query, l)
	return err
}

func (r *PGRepository) GetLocation(ctx context.Context, id int64) (*model.WarehouseLocation, error) {
	var l model.WarehouseLocation
	err := sqlx.GetContext(ctx, database.Executor(ctx, r.DB), &l, `SELECT * FROM warehouse_locations WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

func (r *PGRepository) ListLocations(ctx context.Context, f *dto.LocationFilters) ([]model.WarehouseLocation, error) {
	conditions := []string{}
	args := map[string]interface{}{}

	if f.WarehouseID != nil {
		conditions = append(conditions, "warehouse_id = :warehouse_id")
		args["warehouse_id"] = *f.WarehouseID
	}
	if f.LocationType != nil {
		conditions = append(conditions, "location_type = :location_type")
		args["location_type"] = string(*f.LocationType)
	}
	if f.PickableOnly {
		conditions = append(conditions, "is_pickable")
	}
	if f.ActiveOnly {
		conditions = append(conditions, "is_active")
	}

	query := "SELECT * FROM warehouse_locations"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id ASC"

	exec := database.Executor(ctx, r.DB)
	bound, list, err := sqlx.Named(query, args)
	if err != nil {
		return nil, err
	}
	var items []model.WarehouseLocation
	err = sqlx.SelectContext(ctx, exec, &items, exec.Rebind(bound), list...)
	return items, err
}

func (r *PGRepository) insertReturningID(ctx context.Context, query string, arg interface{}, id *int64) error {
	exec := database.Executor(ctx, r.DB)
	bound, args, err := sqlx.Named(query, arg)
	if err != nil {
		return err
	}
	return exec.QueryRowxContext(ctx, exec.Rebind(bound), args...).Scan(id)
}
