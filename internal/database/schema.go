package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Each entry is executed on its own so a failure names the offending statement.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS product_variants (
		id                BIGSERIAL PRIMARY KEY,
		product_id        BIGINT NOT NULL,
		parent_variant_id BIGINT REFERENCES product_variants(id),
		sku               VARCHAR(100) NOT NULL UNIQUE,
		name              VARCHAR(255) NOT NULL DEFAULT '',
		units_per_variant INT NOT NULL DEFAULT 1 CHECK (units_per_variant > 0),
		hierarchy_level   INT NOT NULL DEFAULT 1,
		cube_cm3          BIGINT,
		is_active         BOOLEAN NOT NULL DEFAULT TRUE,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_product_variants_product ON product_variants (product_id, hierarchy_level)`,

	`CREATE TABLE IF NOT EXISTS warehouse_locations (
		id                 BIGSERIAL PRIMARY KEY,
		warehouse_id       BIGINT NOT NULL,
		code               VARCHAR(50) NOT NULL,
		location_type      VARCHAR(20) NOT NULL,
		is_pickable        BOOLEAN NOT NULL DEFAULT FALSE,
		parent_location_id BIGINT REFERENCES warehouse_locations(id),
		capacity_cm3       BIGINT,
		is_active          BOOLEAN NOT NULL DEFAULT TRUE,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (warehouse_id, code)
	)`,

	`CREATE TABLE IF NOT EXISTS inventory_levels (
		id                    BIGSERIAL PRIMARY KEY,
		product_variant_id    BIGINT NOT NULL REFERENCES product_variants(id),
		warehouse_location_id BIGINT NOT NULL REFERENCES warehouse_locations(id),
		variant_qty           INT NOT NULL DEFAULT 0,
		reserved_qty          INT NOT NULL DEFAULT 0,
		picked_qty            INT NOT NULL DEFAULT 0,
		packed_qty            INT NOT NULL DEFAULT 0,
		backorder_qty         INT NOT NULL DEFAULT 0,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (product_variant_id, warehouse_location_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_levels_location ON inventory_levels (warehouse_location_id)`,

	`CREATE TABLE IF NOT EXISTS inventory_transactions (
		id                  BIGSERIAL PRIMARY KEY,
		product_variant_id  BIGINT NOT NULL REFERENCES product_variants(id),
		from_location_id    BIGINT REFERENCES warehouse_locations(id),
		to_location_id      BIGINT REFERENCES warehouse_locations(id),
		transaction_type    VARCHAR(20) NOT NULL,
		variant_qty_delta   INT NOT NULL DEFAULT 0,
		variant_qty_before  INT NOT NULL DEFAULT 0,
		variant_qty_after   INT NOT NULL DEFAULT 0,
		reserved_qty_delta  INT NOT NULL DEFAULT 0,
		picked_qty_delta    INT NOT NULL DEFAULT 0,
		packed_qty_delta    INT NOT NULL DEFAULT 0,
		backorder_qty_delta INT NOT NULL DEFAULT 0,
		reference_type      VARCHAR(30),
		reference_id        VARCHAR(100),
		notes               TEXT NOT NULL DEFAULT '',
		created_by          VARCHAR(100),
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_transactions_variant ON inventory_transactions (product_variant_id, id)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_transactions_type_time ON inventory_transactions (transaction_type, created_at)`,

	`CREATE TABLE IF NOT EXISTS location_replen_configs (
		id                    BIGSERIAL PRIMARY KEY,
		warehouse_location_id BIGINT NOT NULL REFERENCES warehouse_locations(id),
		product_variant_id    BIGINT REFERENCES product_variants(id),
		trigger_value         INT,
		max_qty               INT,
		source_location_type  VARCHAR(20),
		source_priority       VARCHAR(20),
		replen_method         VARCHAR(20),
		auto_replen           INT,
		task_priority         INT,
		is_active             BOOLEAN NOT NULL DEFAULT TRUE,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_location_replen_configs_location ON location_replen_configs (warehouse_location_id)`,

	`CREATE TABLE IF NOT EXISTS replen_rules (
		id                        BIGSERIAL PRIMARY KEY,
		pick_product_variant_id   BIGINT NOT NULL REFERENCES product_variants(id),
		source_product_variant_id BIGINT REFERENCES product_variants(id),
		trigger_value             INT,
		max_qty                   INT,
		source_location_type      VARCHAR(20),
		source_priority           VARCHAR(20),
		replen_method             VARCHAR(20),
		auto_replen               INT,
		task_priority             INT,
		is_active                 BOOLEAN NOT NULL DEFAULT TRUE,
		created_at                TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at                TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS replen_tier_defaults (
		id                     BIGSERIAL PRIMARY KEY,
		warehouse_id           BIGINT,
		hierarchy_level        INT NOT NULL,
		source_hierarchy_level INT,
		trigger_value          INT,
		max_qty                INT,
		source_location_type   VARCHAR(20),
		source_priority        VARCHAR(20),
		replen_method          VARCHAR(20),
		auto_replen            INT,
		task_priority          INT,
		is_active              BOOLEAN NOT NULL DEFAULT TRUE,
		created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS warehouse_settings (
		id                      BIGSERIAL PRIMARY KEY,
		warehouse_id            BIGINT,
		replen_mode             VARCHAR(10) NOT NULL DEFAULT 'hybrid',
		inline_replen_max_units INT NOT NULL DEFAULT 50,
		velocity_lookback_days  INT NOT NULL DEFAULT 14,
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_warehouse_settings_warehouse ON warehouse_settings (COALESCE(warehouse_id, 0))`,

	`CREATE TABLE IF NOT EXISTS replen_tasks (
		id                        BIGSERIAL PRIMARY KEY,
		warehouse_id              BIGINT NOT NULL,
		from_location_id          BIGINT REFERENCES warehouse_locations(id),
		to_location_id            BIGINT NOT NULL REFERENCES warehouse_locations(id),
		source_product_variant_id BIGINT REFERENCES product_variants(id),
		pick_product_variant_id   BIGINT NOT NULL REFERENCES product_variants(id),
		qty_source_units          INT NOT NULL DEFAULT 0,
		qty_target_units          INT NOT NULL DEFAULT 0,
		qty_completed             INT NOT NULL DEFAULT 0,
		status                    VARCHAR(20) NOT NULL,
		priority                  INT NOT NULL DEFAULT 0,
		replen_method             VARCHAR(20) NOT NULL,
		triggered_by              VARCHAR(20) NOT NULL,
		depends_on_task_id        BIGINT REFERENCES replen_tasks(id),
		execution_mode            VARCHAR(10) NOT NULL,
		cycle_count_id            BIGINT,
		notes                     TEXT NOT NULL DEFAULT '',
		assigned_to               VARCHAR(100),
		completed_by              VARCHAR(100),
		created_at                TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at                TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at              TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_replen_tasks_face ON replen_tasks (pick_product_variant_id, to_location_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_replen_tasks_depends ON replen_tasks (depends_on_task_id)`,

	`CREATE TABLE IF NOT EXISTS cycle_counts (
		id             BIGSERIAL PRIMARY KEY,
		warehouse_id   BIGINT NOT NULL,
		name           VARCHAR(255) NOT NULL,
		status         VARCHAR(20) NOT NULL,
		count_type     VARCHAR(20) NOT NULL,
		replen_task_id BIGINT REFERENCES replen_tasks(id),
		notes          TEXT NOT NULL DEFAULT '',
		created_by     VARCHAR(100),
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS cycle_count_items (
		id                    BIGSERIAL PRIMARY KEY,
		cycle_count_id        BIGINT NOT NULL REFERENCES cycle_counts(id),
		warehouse_location_id BIGINT NOT NULL REFERENCES warehouse_locations(id),
		product_variant_id    BIGINT NOT NULL REFERENCES product_variants(id),
		expected_qty          INT NOT NULL DEFAULT 0,
		counted_qty           INT,
		variance_qty          INT,
		status                VARCHAR(20) NOT NULL,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the schema if it does not exist. It is safe to run on every start.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
