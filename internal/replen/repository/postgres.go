package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fekuna/omnipos-warehouse-service/internal/database"
	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen/dto"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

var _ replen.Repository = (*PGRepository)(nil)

func (r *PGRepository) CreateLocationConfig(ctx context.Context, c *model.LocationReplenConfig) error {
	query := `
        INSERT INTO location_replen_configs (
            warehouse_location_id, product_variant_id,
            trigger_value, max_qty, source_location_type, source_priority,
            replen_method, auto_replen, task_priority, is_active
        )
        VALUES (
            :warehouse_location_id, :product_variant_id,
            :trigger_value, :max_qty, :source_location_type, :source_priority,
            :replen_method, :auto_replen, :task_priority, :is_active
        )
        RETURNING id, created_at, updated_at
    `
	if err := r.namedInsert(ctx, query, c, &c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create location replen config: %w", err)
	}
	return nil
}

func (r *PGRepository) ListLocationConfigs(ctx context.Context, f *dto.ConfigFilters) ([]model.LocationReplenConfig, error) {
	conditions := []string{}
	args := map[string]interface{}{}

	if f.LocationID != nil {
		conditions = append(conditions, "c.warehouse_location_id = :location_id")
		args["location_id"] = *f.LocationID
	}
	if f.WarehouseID != nil {
		conditions = append(conditions, "w.warehouse_id = :warehouse_id")
		args["warehouse_id"] = *f.WarehouseID
	}
	if f.VariantSpecificOnly {
		conditions = append(conditions, "c.product_variant_id IS NOT NULL")
	}
	if f.ActiveOnly {
		conditions = append(conditions, "c.is_active")
	}

	query := `
        SELECT c.* FROM location_replen_configs c
        JOIN warehouse_locations w ON w.id = c.warehouse_location_id` + where(conditions) + " ORDER BY c.id ASC"

	var items []model.LocationReplenConfig
	err := r.namedSelect(ctx, &items, query, args)
	return items, err
}

func (r *PGRepository) CreateRule(ctx context.Context, rule *model.ReplenRule) error {
	query := `
        INSERT INTO replen_rules (
            pick_product_variant_id, source_product_variant_id,
            trigger_value, max_qty, source_location_type, source_priority,
            replen_method, auto_replen, task_priority, is_active
        )
        VALUES (
            :pick_product_variant_id, :source_product_variant_id,
            :trigger_value, :max_qty, :source_location_type, :source_priority,
            :replen_method, :auto_replen, :task_priority, :is_active
        )
        RETURNING id, created_at, updated_at
    `
	if err := r.namedInsert(ctx, query, rule, &rule.ID, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create replen rule: %w", err)
	}
	return nil
}

func (r *PGRepository) GetRule(ctx context.Context, pickVariantID int64) (*model.ReplenRule, error) {
	var rule model.ReplenRule
	query := `SELECT * FROM replen_rules WHERE pick_product_variant_id = $1 AND is_active ORDER BY id ASC LIMIT 1`
	err := sqlx.GetContext(ctx, database.Executor(ctx, r.DB), &rule, query, pickVariantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

func (r *PGRepository) CreateTierDefault(ctx context.Context, t *model.ReplenTierDefault) error {
	query := `
        INSERT INTO replen_tier_defaults (
            warehouse_id, hierarchy_level, source_hierarchy_level,
            trigger_value, max_qty, source_location_type, source_priority,
            replen_method, auto_replen, task_priority, is_active
        )
        VALUES (
            :warehouse_id, :hierarchy_level, :source_hierarchy_level,
            :trigger_value, :max_qty, :source_location_type, :source_priority,
            :replen_method, :auto_replen, :task_priority, :is_active
        )
        RETURNING id, created_at, updated_at
    `
	if err := r.namedInsert(ctx, query, t, &t.ID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create replen tier default: %w", err)
	}
	return nil
}

func (r *PGRepository) GetTierDefault(ctx context.Context, warehouseID *int64, hierarchyLevel int) (*model.ReplenTierDefault, error) {
	var t model.ReplenTierDefault
	exec := database.Executor(ctx, r.DB)

	var err error
	if warehouseID == nil {
		query := `SELECT * FROM replen_tier_defaults WHERE warehouse_id IS NULL AND hierarchy_level = $1 AND is_active ORDER BY id ASC LIMIT 1`
		err = sqlx.GetContext(ctx, exec, &t, query, hierarchyLevel)
	} else {
		query := `SELECT * FROM replen_tier_defaults WHERE warehouse_id = $1 AND hierarchy_level = $2 AND is_active ORDER BY id ASC LIMIT 1`
		err = sqlx.GetContext(ctx, exec, &t, query, *warehouseID, hierarchyLevel)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// SaveWarehouseSettings upserts on the warehouse, treating nil as the global row.
func (r *PGRepository) SaveWarehouseSettings(ctx context.Context, s *model.WarehouseSettings) error {
	query := `
        INSERT INTO warehouse_settings (warehouse_id, replen_mode, inline_replen_max_units, velocity_lookback_days)
        VALUES (:warehouse_id, :replen_mode, :inline_replen_max_units, :velocity_lookback_days)
        ON CONFLICT ((COALESCE(warehouse_id, 0))) DO UPDATE SET
            replen_mode             = EXCLUDED.replen_mode,
            inline_replen_max_units = EXCLUDED.inline_replen_max_units,
            velocity_lookback_days  = EXCLUDED.velocity_lookback_days,
            updated_at              = NOW()
        RETURNING id, updated_at
    `
	if err := r.namedInsert(ctx, query, s, &s.ID, &s.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save warehouse settings: %w", err)
	}
	return nil
}

func (r *PGRepository) GetWarehouseSettings(ctx context.Context, warehouseID *int64) (*model.WarehouseSettings, error) {
	var s model.WarehouseSettings
	exec := database.Executor(ctx, r.DB)

	var err error
	if warehouseID == nil {
		err = sqlx.GetContext(ctx, exec, &s, `SELECT * FROM warehouse_settings WHERE warehouse_id IS NULL`)
	} else {
		err = sqlx.GetContext(ctx, exec, &s, `SELECT * FROM warehouse_settings WHERE warehouse_id = $1`, *warehouseID)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *PGRepository) CreateTask(ctx context.Context, t *model.ReplenTask) error {
	query := `
        INSERT INTO replen_tasks (
            warehouse_id, from_location_id, to_location_id,
            source_product_variant_id, pick_product_variant_id,
            qty_source_units, qty_target_units, qty_completed,
            status, priority, replen_method, triggered_by,
            depends_on_task_id, execution_mode, cycle_count_id, notes,
            assigned_to, completed_by, completed_at
        )
        VALUES (
            :warehouse_id, :from_location_id, :to_location_id,
            :source_product_variant_id, :pick_product_variant_id,
            :qty_source_units, :qty_target_units, :qty_completed,
            :status, :priority, :replen_method, :triggered_by,
            :depends_on_task_id, :execution_mode, :cycle_count_id, :notes,
            :assigned_to, :completed_by, :completed_at
        )
        RETURNING id, created_at, updated_at
    `
	if err := r.namedInsert(ctx, query, t, &t.ID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create replen task: %w", err)
	}
	return nil
}

func (r *PGRepository) UpdateTask(ctx context.Context, t *model.ReplenTask) error {
	query := `
        UPDATE replen_tasks SET
            from_location_id          = :from_location_id,
            source_product_variant_id = :source_product_variant_id,
            qty_source_units          = :qty_source_units,
            qty_target_units          = :qty_target_units,
            qty_completed             = :qty_completed,
            status                    = :status,
            priority                  = :priority,
            replen_method             = :replen_method,
            depends_on_task_id        = :depends_on_task_id,
            execution_mode            = :execution_mode,
            cycle_count_id            = :cycle_count_id,
            notes                     = :notes,
            assigned_to               = :assigned_to,
            completed_by              = :completed_by,
            completed_at              = :completed_at,
            updated_at                = NOW()
        WHERE id = :id
        RETURNING updated_at
    `
	err := r.namedInsert(ctx, query, t, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return replen.ErrTaskNotFound
		}
		return fmt.Errorf("failed to update replen task: %w", err)
	}
	return nil
}

func (r *PGRepository) GetTask(ctx context.Context, id int64) (*model.ReplenTask, error) {
	return r.getTask(ctx, `SELECT * FROM replen_tasks WHERE id = $1`, id)
}

func (r *PGRepository) LockTask(ctx context.Context, id int64) (*model.ReplenTask, error) {
	return r.getTask(ctx, `SELECT * FROM replen_tasks WHERE id = $1 FOR UPDATE`, id)
}

func (r *PGRepository) getTask(ctx context.Context, query string, id int64) (*model.ReplenTask, error) {
	var t model.ReplenTask
	err := sqlx.GetContext(ctx, database.Executor(ctx, r.DB), &t, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *PGRepository) ListTasks(ctx context.Context, f *dto.TaskFilters) ([]model.ReplenTask, error) {
	conditions := []string{}
	args := map[string]interface{}{}

	if f.WarehouseID != nil {
		conditions = append(conditions, "warehouse_id = :warehouse_id")
		args["warehouse_id"] = *f.WarehouseID
	}
	if f.PickVariantID != nil {
		conditions = append(conditions, "pick_product_variant_id = :pick_variant_id")
		args["pick_variant_id"] = *f.PickVariantID
	}
	if f.ToLocationID != nil {
		conditions = append(conditions, "to_location_id = :to_location_id")
		args["to_location_id"] = *f.ToLocationID
	}
	if f.DependsOnTaskID != nil {
		conditions = append(conditions, "depends_on_task_id = :depends_on_task_id")
		args["depends_on_task_id"] = *f.DependsOnTaskID
	}
	if f.CycleCountID != nil {
		conditions = append(conditions, "cycle_count_id = :cycle_count_id")
		args["cycle_count_id"] = *f.CycleCountID
	}
	if f.ExecutionMode != "" {
		conditions = append(conditions, "execution_mode = :execution_mode")
		args["execution_mode"] = string(f.ExecutionMode)
	}
	if f.AssignedTo != "" {
		conditions = append(conditions, "assigned_to = :assigned_to")
		args["assigned_to"] = f.AssignedTo
	}
	if len(f.Statuses) > 0 {
		names := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			key := fmt.Sprintf("status_%d", i)
			names[i] = ":" + key
			args[key] = string(s)
		}
		conditions = append(conditions, "status IN ("+strings.Join(names, ", ")+")")
	}

	query := "SELECT * FROM replen_tasks" + where(conditions) + " ORDER BY id ASC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	var items []model.ReplenTask
	err := r.namedSelect(ctx, &items, query, args)
	return items, err
}

func (r *PGRepository) CreateCycleCount(ctx context.Context, cc *model.CycleCount, items []model.CycleCountItem) error {
	query := `
        INSERT INTO cycle_counts (warehouse_id, name, status, count_type, replen_task_id, notes, created_by)
        VALUES (:warehouse_id, :name, :status, :count_type, :replen_task_id, :notes, :created_by)
        RETURNING id, created_at, updated_at
    `
	if err := r.namedInsert(ctx, query, cc, &cc.ID, &cc.CreatedAt, &cc.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create cycle count: %w", err)
	}

	itemQuery := `
        INSERT INTO cycle_count_items (
            cycle_count_id, warehouse_location_id, product_variant_id,
            expected_qty, counted_qty, variance_qty, status
        )
        VALUES (
            :cycle_count_id, :warehouse_location_id, :product_variant_id,
            :expected_qty, :counted_qty, :variance_qty, :status
        )
        RETURNING id, created_at
    `
	for i := range items {
		it := &items[i]
		it.CycleCountID = cc.ID
		if err := r.namedInsert(ctx, itemQuery, it, &it.ID, &it.CreatedAt); err != nil {
			return fmt.Errorf("failed to create cycle count item: %w", err)
		}
	}
	return nil
}

func (r *PGRepository) ListCycleCountItems(ctx context.Context, cycleCountID int64) ([]model.CycleCountItem, error) {
	var items []model.CycleCountItem
	query := `SELECT * FROM cycle_count_items WHERE cycle_count_id = $1 ORDER BY id ASC`
	err := sqlx.SelectContext(ctx, database.Executor(ctx, r.DB), &items, query, cycleCountID)
	return items, err
}

// namedInsert binds arg into a named statement and scans its RETURNING columns into dest.
func (r *PGRepository) namedInsert(ctx context.Context, query string, arg interface{}, dest ...interface{}) error {
	exec := database.Executor(ctx, r.DB)
	bound, args, err := sqlx.Named(query, arg)
	if err != nil {
		return err
	}
	return exec.QueryRowxContext(ctx, exec.Rebind(bound), args...).Scan(dest...)
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
