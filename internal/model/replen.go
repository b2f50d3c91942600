package model

import "time"

type ReplenMethod string

const (
	MethodFullCase   ReplenMethod = "full_case"
	MethodCaseBreak  ReplenMethod = "case_break"
	MethodPalletDrop ReplenMethod = "pallet_drop"
)

type SourcePriority string

const (
	PriorityFIFO          SourcePriority = "fifo"
	PrioritySmallestFirst SourcePriority = "smallest_first"
)

// AutoReplen override values. AutoReplenDefer hands the decision to the next layer.
const (
	AutoReplenDefer  = 0
	AutoReplenForce  = 1
	AutoReplenManual = 2
)

type ReplenMode string

const (
	ModeInline ReplenMode = "inline"
	ModeQueue  ReplenMode = "queue"
	ModeHybrid ReplenMode = "hybrid"
)

type ExecutionMode string

const (
	ExecInline ExecutionMode = "inline"
	ExecQueue  ExecutionMode = "queue"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskAssigned   TaskStatus = "assigned"
	TaskInProgress TaskStatus = "in_progress"
	TaskBlocked    TaskStatus = "blocked"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// ActiveTaskStatuses are the states that block a new task for the same pick face.
var ActiveTaskStatuses = []TaskStatus{TaskPending, TaskAssigned, TaskInProgress, TaskBlocked}

func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskCancelled
}

func (s TaskStatus) Executable() bool {
	return s == TaskPending || s == TaskAssigned || s == TaskInProgress
}

func (s TaskStatus) Active() bool {
	for _, a := range ActiveTaskStatuses {
		if s == a {
			return true
		}
	}
	return false
}

type TriggerSource string

const (
	TriggerPick     TriggerSource = "pick"
	TriggerScan     TriggerSource = "scan"
	TriggerGenerate TriggerSource = "generate"
	TriggerCascade  TriggerSource = "cascade"
	TriggerOverflow TriggerSource = "overflow"
	TriggerManual   TriggerSource = "manual"
)

// PolicyValues is the set of optional fields every policy layer may define.
// A nil field means the layer has no opinion.
type PolicyValues struct {
	TriggerValue       *int            `db:"trigger_value" json:"trigger_value"`
	MaxQty             *int            `db:"max_qty" json:"max_qty"`
	SourceLocationType *LocationType   `db:"source_location_type" json:"source_location_type"`
	SourcePriority     *SourcePriority `db:"source_priority" json:"source_priority"`
	ReplenMethod       *ReplenMethod   `db:"replen_method" json:"replen_method"`
	AutoReplen         *int            `db:"auto_replen" json:"auto_replen"`
	TaskPriority       *int            `db:"task_priority" json:"task_priority"`
}

// LocationReplenConfig is the most specific layer: one bin, optionally one variant.
type LocationReplenConfig struct {
	ID                  int64  `db:"id" json:"id"`
	WarehouseLocationID int64  `db:"warehouse_location_id" json:"warehouse_location_id"`
	ProductVariantID    *int64 `db:"product_variant_id" json:"product_variant_id"`
	PolicyValues
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ReplenRule applies to a pick variant wherever it is slotted.
type ReplenRule struct {
	ID                     int64  `db:"id" json:"id"`
	PickProductVariantID   int64  `db:"pick_product_variant_id" json:"pick_product_variant_id"`
	SourceProductVariantID *int64 `db:"source_product_variant_id" json:"source_product_variant_id"`
	PolicyValues
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ReplenTierDefault applies to every variant at a packaging level. A nil
// WarehouseID makes it the global default for that level.
type ReplenTierDefault struct {
	ID                   int64  `db:"id" json:"id"`
	WarehouseID          *int64 `db:"warehouse_id" json:"warehouse_id"`
	HierarchyLevel       int    `db:"hierarchy_level" json:"hierarchy_level"`
	SourceHierarchyLevel *int   `db:"source_hierarchy_level" json:"source_hierarchy_level"`
	PolicyValues
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// WarehouseSettings is the execution-mode fallback. A nil WarehouseID is the global row.
type WarehouseSettings struct {
	ID                   int64      `db:"id" json:"id"`
	WarehouseID          *int64     `db:"warehouse_id" json:"warehouse_id"`
	ReplenMode           ReplenMode `db:"replen_mode" json:"replen_mode"`
	InlineReplenMaxUnits int        `db:"inline_replen_max_units" json:"inline_replen_max_units"`
	VelocityLookbackDays int        `db:"velocity_lookback_days" json:"velocity_lookback_days"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	DefaultInlineReplenMaxUnits = 50
	DefaultVelocityLookbackDays = 14
)

// DefaultWarehouseSettings is used only when neither a warehouse nor a global row exists.
func DefaultWarehouseSettings() WarehouseSettings {
	return WarehouseSettings{
		ReplenMode:           ModeHybrid,
		InlineReplenMaxUnits: DefaultInlineReplenMaxUnits,
		VelocityLookbackDays: DefaultVelocityLookbackDays,
	}
}

type ReplenTask struct {
	ID                     int64         `db:"id" json:"id"`
	WarehouseID            int64         `db:"warehouse_id" json:"warehouse_id"`
	FromLocationID         *int64        `db:"from_location_id" json:"from_location_id"`
	ToLocationID           int64         `db:"to_location_id" json:"to_location_id"`
	SourceProductVariantID *int64        `db:"source_product_variant_id" json:"source_product_variant_id"`
	PickProductVariantID   int64         `db:"pick_product_variant_id" json:"pick_product_variant_id"`
	QtySourceUnits         int           `db:"qty_source_units" json:"qty_source_units"`
	QtyTargetUnits         int           `db:"qty_target_units" json:"qty_target_units"`
	QtyCompleted           int           `db:"qty_completed" json:"qty_completed"`
	Status                 TaskStatus    `db:"status" json:"status"`
	Priority               int           `db:"priority" json:"priority"`
	ReplenMethod           ReplenMethod  `db:"replen_method" json:"replen_method"`
	TriggeredBy            TriggerSource `db:"triggered_by" json:"triggered_by"`
	DependsOnTaskID        *int64        `db:"depends_on_task_id" json:"depends_on_task_id"`
	ExecutionMode          ExecutionMode `db:"execution_mode" json:"execution_mode"`
	CycleCountID           *int64        `db:"cycle_count_id" json:"cycle_count_id"`
	Notes                  string        `db:"notes" json:"notes"`
	AssignedTo             *string       `db:"assigned_to" json:"assigned_to"`
	CompletedBy            *string       `db:"completed_by" json:"completed_by"`
	CreatedAt              time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time     `db:"updated_at" json:"updated_at"`
	CompletedAt            *time.Time    `db:"completed_at" json:"completed_at"`
}

// AppendNote adds a timestamped line to the task's audit notes.
func (t *ReplenTask) AppendNote(at time.Time, note string) {
	line := "[" + at.UTC().Format(time.RFC3339) + "] " + note
	if t.Notes == "" {
		t.Notes = line
		return
	}
	t.Notes += "\n" + line
}
