package usecase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/fekuna/omnipos-warehouse-service/internal/auth"
	"github.com/fekuna/omnipos-warehouse-service/internal/database"
	"github.com/fekuna/omnipos-warehouse-service/internal/events"
	"github.com/fekuna/omnipos-warehouse-service/internal/inventory"
	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen/dto"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen/locator"
	"github.com/fekuna/omnipos-warehouse-service/internal/warehouse"
	"go.uber.org/zap"
)

// systemUser is recorded on tasks the engine executes by itself.
const systemUser = "system"

type replenUseCase struct {
	repo      replen.Repository
	ledger    inventory.UseCase
	warehouse warehouse.UseCase
	locator   *locator.Locator
	tx        database.Transactor
	publisher events.Publisher
	cache     replen.SettingsCache
	defaults  model.WarehouseSettings
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*replenUseCase)

func WithClock(now func() time.Time) Option {
	return func(uc *replenUseCase) { uc.now = now }
}

// WithSettingsCache caches resolved warehouse settings between calls.
func WithSettingsCache(c replen.SettingsCache) Option {
	return func(uc *replenUseCase) { uc.cache = c }
}

// WithDefaultSettings replaces the settings used when neither a warehouse
// row nor a global row exists.
func WithDefaultSettings(s model.WarehouseSettings) Option {
	return func(uc *replenUseCase) { uc.defaults = s }
}

func NewReplenUseCase(
	repo replen.Repository,
	ledger inventory.UseCase,
	wh warehouse.UseCase,
	tx database.Transactor,
	publisher events.Publisher,
	log *zap.Logger,
	opts ...Option,
) replen.UseCase {
	if publisher == nil {
		publisher = events.Noop
	}
	uc := &replenUseCase{
		repo:      repo,
		ledger:    ledger,
		warehouse: wh,
		locator:   locator.New(ledger, wh),
		tx:        tx,
		publisher: publisher,
		defaults:  model.DefaultWarehouseSettings(),
		logger:    log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *replenUseCase) GetTask(ctx context.Context, taskID int64) (*model.ReplenTask, error) {
	t, err := uc.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("task %d: %w", taskID, replen.ErrTaskNotFound)
	}
	return t, nil
}

func (uc *replenUseCase) ListTasks(ctx context.Context, filters *dto.TaskFilters) ([]model.ReplenTask, error) {
	if filters == nil {
		filters = &dto.TaskFilters{}
	}
	return uc.repo.ListTasks(ctx, filters)
}

func (uc *replenUseCase) AssignTask(ctx context.Context, taskID int64, userID string) (*model.ReplenTask, error) {
	userID = defaultString(userID, auth.GetUserID(ctx))
	var out *model.ReplenTask
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := uc.lockTask(ctx, taskID)
		if err != nil {
			return err
		}
		if t.Status.Terminal() {
			return fmt.Errorf("task %d is %s: %w", t.ID, t.Status, replen.ErrTaskTerminal)
		}
		if t.Status != model.TaskPending && t.Status != model.TaskAssigned {
			return fmt.Errorf("task %d is %s: %w", t.ID, t.Status, replen.ErrTaskNotExecutable)
		}

		t.Status = model.TaskAssigned
		t.AssignedTo = &userID
		t.AppendNote(uc.now(), "assigned to "+userID)
		if err := uc.repo.UpdateTask(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CancelTask is allowed from any non-terminal state. Tasks waiting on the
// cancelled one are detached so a later scan can source them again.
func (uc *replenUseCase) CancelTask(ctx context.Context, taskID int64, reason string) (*model.ReplenTask, error) {
	var out *model.ReplenTask
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := uc.lockTask(ctx, taskID)
		if err != nil {
			return err
		}
		if t.Status.Terminal() {
			return fmt.Errorf("task %d is %s: %w", t.ID, t.Status, replen.ErrTaskTerminal)
		}

		now := uc.now()
		t.Status = model.TaskCancelled
		t.AppendNote(now, "cancelled: "+defaultString(reason, "no reason given"))
		if err := uc.repo.UpdateTask(ctx, t); err != nil {
			return err
		}

		deps, err := uc.repo.ListTasks(ctx, &dto.TaskFilters{DependsOnTaskID: &t.ID, Statuses: model.ActiveTaskStatuses})
		if err != nil {
			return err
		}
		for i := range deps {
			d := &deps[i]
			d.DependsOnTaskID = nil
			d.AppendNote(now, fmt.Sprintf("upstream task %d cancelled", t.ID))
			if err := uc.repo.UpdateTask(ctx, d); err != nil {
				return err
			}
		}

		uc.publishAfterCommit(ctx, events.TaskCancelled, t)
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("replenishment task cancelled", zap.Int64("task_id", taskID), zap.String("reason", reason))
	return out, nil
}

func (uc *replenUseCase) lockTask(ctx context.Context, taskID int64) (*model.ReplenTask, error) {
	t, err := uc.repo.LockTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("task %d: %w", taskID, replen.ErrTaskNotFound)
	}
	return t, nil
}

// persist creates new tasks and updates existing ones in one transaction.
func (uc *replenUseCase) persist(ctx context.Context, tasks ...*model.ReplenTask) error {
	return uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, t := range tasks {
			if t.ID == 0 {
				if err := uc.repo.CreateTask(ctx, t); err != nil {
					return err
				}
				uc.publishAfterCommit(ctx, events.TaskCreated, t)
			} else if err := uc.repo.UpdateTask(ctx, t); err != nil {
				return err
			}
			if t.Status == model.TaskBlocked {
				uc.publishAfterCommit(ctx, events.TaskBlocked, t)
			}
		}
		return nil
	})
}

func (uc *replenUseCase) publishAfterCommit(ctx context.Context, eventType string, t *model.ReplenTask) {
	snapshot := *t
	uc.tx.AfterCommit(ctx, func() {
		uc.publisher.Publish(context.Background(), events.New(eventType, strconv.FormatInt(snapshot.ID, 10), snapshot))
	})
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
