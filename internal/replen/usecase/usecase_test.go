package usecase

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/fekuna/omnipos-warehouse-service/internal/auth"
	"github.com/fekuna/omnipos-warehouse-service/internal/events"
	"github.com/fekuna/omnipos-warehouse-service/internal/inventory"
	invdto "github.com/fekuna/omnipos-warehouse-service/internal/inventory/dto"
	invusecase "github.com/fekuna/omnipos-warehouse-service/internal/inventory/usecase"
	"github.com/fekuna/omnipos-warehouse-service/internal/memstore"
	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen/dto"
	"github.com/fekuna/omnipos-warehouse-service/internal/warehouse"
	whdto "github.com/fekuna/omnipos-warehouse-service/internal/warehouse/dto"
	whusecase "github.com/fekuna/omnipos-warehouse-service/internal/warehouse/usecase"
	"go.uber.org/zap"
)

const productID = int64(100)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

type env struct {
	t      *testing.T
	ctx    context.Context
	store  *memstore.Store
	ledger inventory.UseCase
	wh     warehouse.UseCase
	uc     replen.UseCase
	pub    *recordingPublisher
}

func newEnv(t *testing.T, mode model.ReplenMode) *env {
	t.Helper()
	store := memstore.New()
	pub := &recordingPublisher{}
	log := zap.NewNop()
	ledger := invusecase.NewInventoryUseCase(store, store, pub, log)
	wh := whusecase.NewWarehouseUseCase(store, log)
	e := &env{
		t:      t,
		ctx:    context.Background(),
		store:  store,
		ledger: ledger,
		wh:     wh,
		uc:     NewReplenUseCase(store, ledger, wh, store, pub, log),
		pub:    pub,
	}
	e.setMode(mode)
	return e
}

func (e *env) setMode(mode model.ReplenMode) {
	e.t.Helper()
	if err := e.store.SaveWarehouseSettings(e.ctx, &model.WarehouseSettings{ReplenMode: mode, InlineReplenMaxUnits: 50}); err != nil {
		e.t.Fatalf("save settings: %v", err)
	}
}

func (e *env) variant(sku string, units, level int, cube *int64) *model.ProductVariant {
	e.t.Helper()
	v, err := e.wh.CreateVariant(e.ctx, &whdto.CreateVariantInput{
		ProductID: productID, SKU: sku, Name: sku, UnitsPerVariant: units, HierarchyLevel: level, CubeCm3: cube,
	})
	if err != nil {
		e.t.Fatalf("create variant %s: %v", sku, err)
	}
	return v
}

func (e *env) location(code string, typ model.LocationType, capacity *int64) *model.WarehouseLocation {
	e.t.Helper()
	loc, err := e.wh.CreateLocation(e.ctx, &whdto.CreateLocationInput{
		WarehouseID: 1, Code: code, LocationType: typ, IsPickable: typ == model.LocationPick, CapacityCm3: capacity,
	})
	if err != nil {
		e.t.Fatalf("create location %s: %v", code, err)
	}
	return loc
}

func (e *env) receive(v *model.ProductVariant, loc *model.WarehouseLocation, qty int) {
	e.t.Helper()
	if _, err := e.ledger.ReceiveInventory(e.ctx, &invdto.MovementInput{
		ProductVariantID: v.ID, LocationID: loc.ID, Quantity: qty, ReferenceType: model.RefReceipt, ReferenceID: "PO-1",
	}); err != nil {
		e.t.Fatalf("receive: %v", err)
	}
}

func (e *env) onHand(v *model.ProductVariant, loc *model.WarehouseLocation) int {
	e.t.Helper()
	lvl, err := e.ledger.GetLevel(e.ctx, v.ID, loc.ID)
	if err != nil {
		e.t.Fatalf("get level: %v", err)
	}
	if lvl == nil {
		return 0
	}
	return lvl.VariantQty
}

func (e *env) configure(loc *model.WarehouseLocation, v *model.ProductVariant, values model.PolicyValues) {
	e.t.Helper()
	if err := e.store.CreateLocationConfig(e.ctx, &model.LocationReplenConfig{
		WarehouseLocationID: loc.ID, ProductVariantID: &v.ID, PolicyValues: values, IsActive: true,
	}); err != nil {
		e.t.Fatalf("create config: %v", err)
	}
}

func (e *env) task(id int64) *model.ReplenTask {
	e.t.Helper()
	task, err := e.uc.GetTask(e.ctx, id)
	if err != nil {
		e.t.Fatalf("get task %d: %v", id, err)
	}
	return task
}

func (e *env) allTasks() []model.ReplenTask {
	e.t.Helper()
	tasks, err := e.uc.ListTasks(e.ctx, nil)
	if err != nil {
		e.t.Fatalf("list tasks: %v", err)
	}
	return tasks
}

func intPtr(n int) *int                                  { return &n }
func cube(n int64) *int64                                { return &n }
func methodPtr(m model.ReplenMethod) *model.ReplenMethod { return &m }

func TestPickWithoutSourceCreatesBlockedTask(t *testing.T) {
	e := newEnv(t, model.ModeHybrid)
	each := e.variant("EACH", 1, 1, nil)
	e.variant("BOX", 12, 2, nil)
	face := e.location("P-01", model.LocationPick, nil)
	e.configure(face, each, model.PolicyValues{TriggerValue: intPtr(5), ReplenMethod: methodPtr(model.MethodCaseBreak)})

	e.receive(each, face, 10)
	ok, err := e.ledger.PickItem(e.ctx, &invdto.MovementInput{ProductVariantID: each.ID, LocationID: face.ID, Quantity: 5, ReferenceType: model.RefOrder, ReferenceID: "SO-1"})
	if err != nil || !ok {
		t.Fatalf("expected pick to succeed, got %v, %v", ok, err)
	}

	task, err := e.uc.CheckAndTriggerAfterPick(e.ctx, each.ID, face.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if task == nil {
		t.Fatal("expected a task, got nil")
	}
	if task.Status != model.TaskBlocked {
		t.Errorf("expected blocked, got %s", task.Status)
	}
	if task.QtySourceUnits != 0 {
		t.Errorf("expected qtySourceUnits 0, got %d", task.QtySourceUnits)
	}
	if task.FromLocationID != nil {
		t.Errorf("expected no source location, got %d", *task.FromLocationID)
	}
	if task.TriggeredBy != model.TriggerPick {
		t.Errorf("expected trigger pick, got %s", task.TriggeredBy)
	}

	again, err := e.uc.CheckAndTriggerAfterPick(e.ctx, each.ID, face.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if again != nil {
		t.Errorf("expected nil while a blocked task exists, got task %d", again.ID)
	}
	if n := len(e.allTasks()); n != 1 {
		t.Errorf("expected 1 task, got %d", n)
	}
	if n := e.pub.count(events.TaskBlocked); n == 0 {
		t.Error("expected a task blocked event")
	}
}

func TestFullCaseSizing(t *testing.T) {
	tests := []struct {
		name       string
		mode       model.ReplenMode
		wantStatus model.TaskStatus
		wantExec   model.ExecutionMode
	}{
		{"queue leaves task pending", model.ModeQueue, model.TaskPending, model.ExecQueue},
		{"hybrid under limit runs inline", model.ModeHybrid, model.TaskCompleted, model.ExecInline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.mode)
			each := e.variant("EACH", 1, 1, nil)
			cs := e.variant("CASE", 12, 2, nil)
			face := e.location("P-01", model.LocationPick, nil)
			reserve := e.location("R-01", model.LocationReserve, nil)
			e.configure(face, each, model.PolicyValues{
				TriggerValue: intPtr(5), MaxQty: intPtr(20), ReplenMethod: methodPtr(model.MethodFullCase),
			})
			e.receive(each, face, 3)
			e.receive(cs, reserve, 2)

			task, err := e.uc.CheckAndTriggerAfterPick(e.ctx, each.ID, face.ID)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if task == nil {
				t.Fatal("expected a task, got nil")
			}
			if task.QtySourceUnits != 2 {
				t.Errorf("expected qtySourceUnits 2, got %d", task.QtySourceUnits)
			}
			if task.QtyTargetUnits != 24 {
				t.Errorf("expected qtyTargetUnits 24, got %d", task.QtyTargetUnits)
			}
			if task.FromLocationID == nil || *task.FromLocationID != reserve.ID {
				t.Errorf("expected source %d, got %v", reserve.ID, task.FromLocationID)
			}
			if task.Status != tt.wantStatus {
				t.Errorf("expected status %s, got %s", tt.wantStatus, task.Status)
			}
			if task.ExecutionMode != tt.wantExec {
				t.Errorf("expected execution mode %s, got %s", tt.wantExec, task.ExecutionMode)
			}

			if tt.wantStatus == model.TaskCompleted {
				if task.QtyCompleted != 24 {
					t.Errorf("expected qtyCompleted 24, got %d", task.QtyCompleted)
				}
				if got := e.onHand(cs, face); got != 2 {
					t.Errorf("expected 2 cases at the pick face, got %d", got)
				}
				if got := e.onHand(cs, reserve); got != 0 {
					t.Errorf("expected reserve emptied, got %d", got)
				}
			}
		})
	}
}

func TestTierDefaultAppliesWithoutLocationConfig(t *testing.T) {
	e := newEnv(t, model.ModeQueue)
	each := e.variant("EACH", 1, 1, nil)
	cs := e.variant("CASE", 6, 2, nil)
	face := e.location("P-01", model.LocationPick, nil)
	reserve := e.location("R-01", model.LocationReserve, nil)
	if err := e.store.CreateTierDefault(e.ctx, &model.ReplenTierDefault{
		HierarchyLevel: 1,
		PolicyValues:   model.PolicyValues{TriggerValue: intPtr(2), MaxQty: intPtr(12)},
		IsActive:       true,
	}); err != nil {
		t.Fatal(err)
	}
	e.receive(each, face, 2)
	e.receive(cs, reserve, 5)

	task, err := e.uc.CheckAndTriggerAfterPick(e.ctx, each.ID, face.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if task == nil {
		t.Fatal("expected a task, got nil")
	}
	if task.QtySourceUnits != 2 || task.QtyTargetUnits != 12 {
		t.Errorf("expected 2/12, got %d/%d", task.QtySourceUnits, task.QtyTargetUnits)
	}
	if task.ReplenMethod != model.MethodFullCase {
		t.Errorf("expected default method full_case, got %s", task.ReplenMethod)
	}
}

func TestPalletDropUsesCoverageDays(t *testing.T) {
	tests := []struct {
		name     string
		picked   int
		wantTask bool
	}{
		{"no pick history never fires", 0, false},
		{"short coverage fires", 28, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, model.ModeQueue)
			each := e.variant("EACH", 1, 1, nil)
			pallet := e.variant("PALLET", 100, 2, nil)
			face := e.location("P-01", model.LocationPick, nil)
			reserve := e.location("R-01", model.LocationReserve, nil)
			e.configure(face, each, model.PolicyValues{TriggerValue: intPtr(3), ReplenMethod: methodPtr(model.MethodPalletDrop)})
			e.receive(pallet, reserve, 1)
			e.receive(each, face, 30)
			if tt.picked > 0 {
				if ok, err := e.ledger.PickItem(e.ctx, &invdto.MovementInput{ProductVariantID: each.ID, LocationID: face.ID, Quantity: tt.picked}); err != nil || !ok {
					t.Fatalf("expected pick to succeed, got %v, %v", ok, err)
				}
			}

			task, err := e.uc.CheckAndTriggerAfterPick(e.ctx, each.ID, face.ID)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if (task != nil) != tt.wantTask {
				t.Errorf("expected task %v, got %+v", tt.wantTask, task)
			}
		})
	}
}

// cascadeSetup builds each (1) < box (12) < pallet (144) with the only stock
// a single pallet in reserve.
func cascadeSetup(t *testing.T, mode model.ReplenMode) (*env, *model.ProductVariant, *model.ProductVariant, *model.ProductVariant, *model.WarehouseLocation, *model.WarehouseLocation) {
	e := newEnv(t, mode)
	each := e.variant("EACH", 1, 1, nil)
	box := e.variant("BOX", 12, 2, nil)
	pallet := e.variant("PALLET", 144, 3, nil)
	face := e.location("P-01", model.LocationPick, nil)
	reserve := e.location("R-01", model.LocationReserve, nil)
	e.configure(face, each, model.PolicyValues{
		TriggerValue: intPtr(5), MaxQty: intPtr(20), ReplenMethod: methodPtr(model.MethodCaseBreak),
	})
	e.receive(each, face, 2)
	e.receive(pallet, reserve, 1)
	return e, each, box, pallet, face, reserve
}

func TestCascadeLinksAndReleases(t *testing.T) {
	e, each, box, pallet, face, reserve := cascadeSetup(t, model.ModeQueue)

	down, err := e.uc.CheckAndTriggerAfterPick(e.ctx, each.ID, face.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if down == nil {
		t.Fatal("expected a downstream task, got nil")
	}
	if down.Status != model.TaskBlocked {
		t.Errorf("expected downstream blocked, got %s", down.Status)
	}
	if down.DependsOnTaskID == nil {
		t.Fatal("expected downstream to depend on the upstream task")
	}
	if down.QtySourceUnits != 2 || down.QtyTargetUnits != 24 {
		t.Errorf("expected downstream 2/24, got %d/%d", down.QtySourceUnits, down.QtyTargetUnits)
	}

	up := e.task(*down.DependsOnTaskID)
	if up.FromLocationID == nil || *up.FromLocationID != reserve.ID || up.ToLocationID != reserve.ID {
		t.Errorf("expected upstream in place at %d, got %v -> %d", reserve.ID, up.FromLocationID, up.ToLocationID)
	}
	if *up.SourceProductVariantID != pallet.ID || up.PickProductVariantID != box.ID {
		t.Errorf("expected pallet -> box, got %d -> %d", *up.SourceProductVariantID, up.PickProductVariantID)
	}
	if up.ReplenMethod != model.MethodCaseBreak || up.TriggeredBy != model.TriggerCascade {
		t.Errorf("expected cascade case_break, got %s %s", up.TriggeredBy, up.ReplenMethod)
	}
	if up.Status != model.TaskPending {
		t.Errorf("expected upstream pending, got %s", up.Status)
	}

	done, err := e.uc.ExecuteTask(e.ctx, up.ID, "worker-1")
	if err != nil {
		t.Fatalf("execute upstream: expected no error, got %v", err)
	}
	if done.QtyCompleted != 12 {
		t.Errorf("expected 12 boxes produced, got %d", done.QtyCompleted)
	}
	if got := e.onHand(box, reserve); got != 12 {
		t.Errorf("expected 12 boxes at reserve, got %d", got)
	}
	if got := e.task(down.ID).Status; got != model.TaskPending {
		t.Fatalf("expected downstream pending after upstream completed, got %s", got)
	}

	if _, err := e.uc.ExecuteTask(e.ctx, down.ID, "worker-1"); err != nil {
		t.Fatalf("execute downstream: expected no error, got %v", err)
	}
	if got := e.onHand(each, face); got != 26 {
		t.Errorf("expected 26 eaches at the pick face, got %d", got)
	}
	if got := e.onHand(box, reserve); got != 10 {
		t.Errorf("expected 10 boxes left in reserve, got %d", got)
	}
}

func TestAfterPickReturnsCascadeForBlockedTask(t *testing.T) {
	e := newEnv(t, model.ModeQueue)
	each := e.variant("EACH", 1, 1, nil)
	box := e.variant("BOX", 12, 2, nil)
	pallet := e.variant("PALLET", 144, 3, nil)
	face := e.location("P-01", model.LocationPick, nil)
	reserve := e.location("R-01", model.LocationReserve, nil)
	e.configure(face, each, model.PolicyValues{
		TriggerValue: intPtr(5), MaxQty: intPtr(20), ReplenMethod: methodPtr(model.MethodCaseBreak),
	})
	e.receive(each, face, 2)

	blocked, err := e.uc.CheckAndTriggerAfterPick(e.ctx, each.ID, face.ID)
	if err != nil || blocked == nil || blocked.Status != model.TaskBlocked {
		t.Fatalf("expected a blocked task, got %v (err %v)", blocked, err)
	}

	e.receive(pallet, reserve, 1)
	up, err := e.uc.CheckAndTriggerAfterPick(e.ctx, each.ID, face.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if up == nil {
		t.Fatal("expected the new upstream task, got nil")
	}
	if up.TriggeredBy != model.TriggerCascade || up.PickProductVariantID != box.ID {
		t.Errorf("expected cascade upstream producing boxes, got %s of %d", up.TriggeredBy, up.PickProductVariantID)
	}
	down := e.task(blocked.ID)
	if down.DependsOnTaskID == nil || *down.DependsOnTaskID != up.ID {
		t.Errorf("expected task %d to wait on %d, got %v", blocked.ID, up.ID, down.DependsOnTaskID)
	}
}

func TestCascadeRunsThroughInline(t *testing.T) {
	e, each, _, _, face, _ := cascadeSetup(t, model.ModeInline)

	down, err := e.uc.CheckAndTriggerAfterPick(e.ctx, each.ID, face.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if down.Status != model.TaskCompleted {
		t.Errorf("expected downstream completed, got %s", down.Status)
	}
	if got := e.onHand(each, face); got != 26 {
		t.Errorf("expected 26 eaches at the pick face, got %d", got)
	}
	if n := e.pub.count(events.TaskCompleted); n != 2 {
		t.Errorf("expected 2 completed events, got %d", n)
	}
}

func TestCancelDetachesDependents(t *testing.T) {
	e, each, _, _, face, _ := cascadeSetup(t, model.ModeQueue)

	down, err := e.uc.CheckAndTriggerAfterPick(e.ctx, each.ID, face.ID)
	if err != nil || down == nil {
		t.Fatalf("expected a downstream task, got %v, %v", down, err)
	}
	upID := *down.DependsOnTaskID

	cancelledTask, err := e.uc.CancelTask(e.ctx, upID, "pallet damaged")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cancelledTask.Status != model.TaskCancelled {
		t.Errorf("expected cancelled, got %s", cancelledTask.Status)
	}
	if !strings.Contains(cancelledTask.Notes, "pallet damaged") {
		t.Errorf("expected reason in notes, got %q", cancelledTask.Notes)
	}
	if got := e.task(down.ID); got.DependsOnTaskID != nil {
		t.Errorf("expected downstream detached, got depends on %d", *got.DependsOnTaskID)
	}

	if _, err := e.uc.CancelTask(e.ctx, upID, "again"); !errors.Is(err, replen.ErrTaskTerminal) {
		t.Errorf("expected ErrTaskTerminal, got %v", err)
	}
}

func fullCaseTask(t *testing.T) (*env, *model.ReplenTask, *model.ProductVariant, *model.WarehouseLocation) {
	e := newEnv(t, model.ModeQueue)
	each := e.variant("EACH", 1, 1, nil)
	cs := e.variant("CASE", 12, 2, nil)
	face := e.location("P-01", model.LocationPick, nil)
	reserve := e.location("R-01", model.LocationReserve, nil)
	e.configure(face, each, model.PolicyValues{TriggerValue: intPtr(5), MaxQty: intPtr(20)})
	e.receive(each, face, 3)
	e.receive(cs, reserve, 2)

	task, err := e.uc.CheckAndTriggerAfterPick(e.ctx, each.ID, face.ID)
	if err != nil || task == nil {
		t.Fatalf("expected a pending task, got %v, %v", task, err)
	}
	return e, task, cs, reserve
}

func TestExecuteFailureBlocksTask(t *testing.T) {
	e, task, cs, reserve := fullCaseTask(t)

	// Someone else emptied the bin after the task was sized.
	if _, err := e.ledger.AdjustInventory(e.ctx, &invdto.AdjustInput{
		ProductVariantID: cs.ID, LocationID: reserve.ID, QuantityDelta: -2, Reason: "damage",
	}); err != nil {
		t.Fatal(err)
	}

	_, err := e.uc.ExecuteTask(e.ctx, task.ID, "worker-1")
	if !errors.Is(err, inventory.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	got := e.task(task.ID)
	if got.Status != model.TaskBlocked {
		t.Errorf("expected blocked, got %s", got.Status)
	}
	if !strings.Contains(got.Notes, "execution failed") {
		t.Errorf("expected failure note, got %q", got.Notes)
	}

	if _, err := e.uc.ExecuteTask(e.ctx, task.ID, "worker-1"); !errors.Is(err, replen.ErrTaskNotExecutable) {
		t.Errorf("expected ErrTaskNotExecutable for a blocked task, got %v", err)
	}
	if _, err := e.uc.ExecuteTask(e.ctx, 999, "worker-1"); !errors.Is(err, replen.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestAssignTask(t *testing.T) {
	e, task, _, _ := fullCaseTask(t)

	assigned, err := e.uc.AssignTask(e.ctx, task.ID, "worker-7")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if assigned.Status != model.TaskAssigned || assigned.AssignedTo == nil || *assigned.AssignedTo != "worker-7" {
		t.Errorf("expected assigned to worker-7, got %s %v", assigned.Status, assigned.AssignedTo)
	}

	mine, err := e.uc.ListTasks(e.ctx, &dto.TaskFilters{AssignedTo: "worker-7"})
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 {
		t.Errorf("expected 1 assigned task, got %d", len(mine))
	}

	done, err := e.uc.ExecuteTask(auth.WithUserID(e.ctx, "worker-7"), task.ID, "")
	if err != nil {
		t.Fatalf("expected assigned task to execute, got %v", err)
	}
	if done.CompletedBy == nil || *done.CompletedBy != "worker-7" {
		t.Errorf("expected completed by worker-7, got %v", done.CompletedBy)
	}
}

func TestReportException(t *testing.T) {
	e, task, cs, reserve := fullCaseTask(t)

	res, err := e.uc.ReportException(e.ctx, &dto.ExceptionInput{TaskID: task.ID, Reason: "empty", CountedQty: intPtr(0), UserID: "worker-1"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Task.Status != model.TaskBlocked {
		t.Errorf("expected blocked, got %s", res.Task.Status)
	}
	if res.Task.CycleCountID == nil || *res.Task.CycleCountID != res.CycleCount.ID {
		t.Errorf("expected task linked to cycle count %d, got %v", res.CycleCount.ID, res.Task.CycleCountID)
	}
	if res.CycleCount.CountType != model.CycleCountTypeSpot {
		t.Errorf("expected spot count, got %s", res.CycleCount.CountType)
	}
	if res.Item.WarehouseLocationID != reserve.ID || res.Item.ProductVariantID != cs.ID {
		t.Errorf("expected item at %d for variant %d, got %d/%d", reserve.ID, cs.ID, res.Item.WarehouseLocationID, res.Item.ProductVariantID)
	}
	if res.Item.ExpectedQty != 2 {
		t.Errorf("expected system quantity 2, got %d", res.Item.ExpectedQty)
	}
	if res.Item.VarianceQty == nil || *res.Item.VarianceQty != -2 {
		t.Errorf("expected variance -2, got %v", res.Item.VarianceQty)
	}

	items, err := e.store.ListCycleCountItems(e.ctx, res.CycleCount.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 count item, got %d", len(items))
	}
}

func TestResolveCycleCountReleasesTask(t *testing.T) {
	e, task, cs, reserve := fullCaseTask(t)

	res, err := e.uc.ReportException(e.ctx, &dto.ExceptionInput{TaskID: task.ID, Reason: "short", CountedQty: intPtr(1)})
	if err != nil {
		t.Fatalf("report exception: %v", err)
	}

	if _, err := e.uc.CheckThresholds(e.ctx, nil); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if got := e.task(task.ID); got.Status != model.TaskBlocked {
		t.Fatalf("expected task held by the count, got %s", got.Status)
	}

	ccRef := strconv.FormatInt(res.CycleCount.ID, 10)
	if _, err := e.ledger.AdjustInventory(e.ctx, &invdto.AdjustInput{
		ProductVariantID: cs.ID, LocationID: reserve.ID, QuantityDelta: *res.Item.VarianceQty,
		Reason: "cycle count approved", ReferenceType: model.RefCycleCount, ReferenceID: ccRef,
	}); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	released, err := e.uc.ResolveCycleCount(e.ctx, res.CycleCount.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(released) != 1 || released[0].ID != task.ID {
		t.Fatalf("expected task %d released, got %+v", task.ID, released)
	}
	got := e.task(task.ID)
	if got.Status != model.TaskPending {
		t.Errorf("expected pending, got %s", got.Status)
	}
	if got.CycleCountID != nil {
		t.Errorf("expected cycle count link cleared, got %v", *got.CycleCountID)
	}
	if got.QtySourceUnits != 1 {
		t.Errorf("expected 1 source unit after the correction, got %d", got.QtySourceUnits)
	}

	again, err := e.uc.ResolveCycleCount(e.ctx, res.CycleCount.ID)
	if err != nil || len(again) != 0 {
		t.Errorf("expected nothing left to release, got %v (err %v)", again, err)
	}
}

func TestCheckThresholdsLifecycle(t *testing.T) {
	e := newEnv(t, model.ModeQueue)
	each := e.variant("EACH", 1, 1, nil)
	cs := e.variant("CASE", 12, 2, nil)
	face := e.location("P-01", model.LocationPick, nil)
	reserve := e.location("R-01", model.LocationReserve, nil)
	e.configure(face, each, model.PolicyValues{TriggerValue: intPtr(5), MaxQty: intPtr(20)})
	e.receive(each, face, 3)

	first, err := e.uc.CheckThresholds(e.ctx, nil)
	if err != nil {
		t.Fatalf("scan 1: %v", err)
	}
	if len(first.Created) != 1 || len(first.Blocked) != 1 {
		t.Fatalf("scan 1: expected 1 blocked task, got %+v", first)
	}
	taskID := first.Created[0].ID

	second, err := e.uc.CheckThresholds(e.ctx, nil)
	if err != nil {
		t.Fatalf("scan 2: %v", err)
	}
	if len(second.Created) != 0 || second.SkippedActive != 1 {
		t.Errorf("scan 2: expected the face skipped, got %+v", second)
	}

	e.receive(cs, reserve, 2)
	third, err := e.uc.CheckThresholds(e.ctx, nil)
	if err != nil {
		t.Fatalf("scan 3: %v", err)
	}
	if len(third.Unblocked) != 1 || third.Unblocked[0].ID != taskID {
		t.Fatalf("scan 3: expected task %d unblocked, got %+v", taskID, third.Unblocked)
	}
	if got := e.task(taskID); got.Status != model.TaskPending || got.QtySourceUnits != 2 {
		t.Errorf("scan 3: expected pending with 2 source units, got %s with %d", got.Status, got.QtySourceUnits)
	}

	e.setMode(model.ModeInline)
	fourth, err := e.uc.CheckThresholds(e.ctx, nil)
	if err != nil {
		t.Fatalf("scan 4: %v", err)
	}
	if len(fourth.AutoExecuted) != 1 || fourth.AutoExecuted[0] != taskID {
		t.Errorf("scan 4: expected task %d auto-executed, got %v", taskID, fourth.AutoExecuted)
	}
	if got := e.task(taskID).Status; got != model.TaskCompleted {
		t.Errorf("scan 4: expected completed, got %s", got)
	}
	if n := len(e.allTasks()); n != 1 {
		t.Errorf("expected a single task over all scans, got %d", n)
	}
}

func TestCheckThresholdsCancelsStaleBlockedTask(t *testing.T) {
	e := newEnv(t, model.ModeQueue)
	each := e.variant("EACH", 1, 1, nil)
	e.variant("CASE", 12, 2, nil)
	face := e.location("P-01", model.LocationPick, nil)
	e.configure(face, each, model.PolicyValues{TriggerValue: intPtr(5)})
	e.receive(each, face, 1)

	first, err := e.uc.CheckThresholds(e.ctx, nil)
	if err != nil || len(first.Blocked) != 1 {
		t.Fatalf("expected a blocked task, got %+v, %v", first, err)
	}

	e.receive(each, face, 50)
	second, err := e.uc.CheckThresholds(e.ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Cancelled) != 1 || second.Cancelled[0] != first.Blocked[0] {
		t.Errorf("expected task %d cancelled, got %v", first.Blocked[0], second.Cancelled)
	}
}

func TestGenerateTasksSplitsForCapacity(t *testing.T) {
	e := newEnv(t, model.ModeQueue)
	each := e.variant("EACH", 1, 1, nil)
	cs := e.variant("CASE", 12, 2, cube(1000))
	face := e.location("P-01", model.LocationPick, cube(2500))
	reserve := e.location("R-01", model.LocationReserve, nil)
	e.location("O-SMALL", model.LocationReserve, cube(2000))
	best := e.location("O-FIT", model.LocationReserve, cube(5000))
	e.location("O-OPEN", model.LocationReserve, nil)
	e.configure(face, each, model.PolicyValues{TriggerValue: intPtr(5), MaxQty: intPtr(60)})
	e.receive(cs, reserve, 5)

	res, err := e.uc.GenerateTasks(e.ctx, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("expected no face errors, got %+v", res.Errors)
	}
	if len(res.Created) != 2 {
		t.Fatalf("expected face and overflow tasks, got %d", len(res.Created))
	}

	faceTask, overflow := res.Created[0], res.Created[1]
	if faceTask.ToLocationID != face.ID || faceTask.QtySourceUnits != 2 || faceTask.QtyTargetUnits != 24 {
		t.Errorf("expected 2 cases (24 units) to the face, got %d/%d to %d", faceTask.QtySourceUnits, faceTask.QtyTargetUnits, faceTask.ToLocationID)
	}
	if overflow.ToLocationID != best.ID {
		t.Errorf("expected overflow to %d, got %d", best.ID, overflow.ToLocationID)
	}
	if overflow.QtySourceUnits != 3 || overflow.TriggeredBy != model.TriggerOverflow {
		t.Errorf("expected 3 cases of overflow, got %d (%s)", overflow.QtySourceUnits, overflow.TriggeredBy)
	}
	if overflow.PickProductVariantID != cs.ID || overflow.ReplenMethod != model.MethodFullCase {
		t.Errorf("expected full_case move of variant %d, got %s of %d", cs.ID, overflow.ReplenMethod, overflow.PickProductVariantID)
	}

	again, err := e.uc.GenerateTasks(e.ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Created) != 0 || again.SkippedActive != 1 {
		t.Errorf("expected the face skipped on the second run, got %+v", again)
	}
}

func TestGenerateTasksCaseBreakStaysWithinCapacity(t *testing.T) {
	e := newEnv(t, model.ModeQueue)
	each := e.variant("EACH", 1, 1, cube(100))
	box := e.variant("BOX", 12, 2, cube(1300))
	face := e.location("P-01", model.LocationPick, cube(2500))
	reserve := e.location("R-01", model.LocationReserve, nil)
	overflowBin := e.location("O-01", model.LocationReserve, nil)
	e.configure(face, each, model.PolicyValues{
		TriggerValue: intPtr(5), MaxQty: intPtr(36), ReplenMethod: methodPtr(model.MethodCaseBreak),
	})
	e.receive(box, reserve, 3)

	res, err := e.uc.GenerateTasks(e.ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Created) != 2 {
		t.Fatalf("expected face and overflow tasks, got %d", len(res.Created))
	}
	// 25 eaches of room: two boxes (24) break into the face, the third overflows.
	faceTask, overflow := res.Created[0], res.Created[1]
	if faceTask.QtySourceUnits != 2 || faceTask.QtyTargetUnits != 24 {
		t.Errorf("expected 2 boxes (24 units) to the face, got %d/%d", faceTask.QtySourceUnits, faceTask.QtyTargetUnits)
	}
	if overflow.ToLocationID != overflowBin.ID || overflow.QtySourceUnits != 1 {
		t.Errorf("expected 1 box of overflow to %d, got %d to %d", overflowBin.ID, overflow.QtySourceUnits, overflow.ToLocationID)
	}

	if _, err := e.uc.ExecuteTask(e.ctx, faceTask.ID, "worker-1"); err != nil {
		t.Fatalf("execute face task: %v", err)
	}
	used, err := e.ledger.UsedCube(e.ctx, face.ID)
	if err != nil {
		t.Fatal(err)
	}
	if used > *face.CapacityCm3 {
		t.Errorf("expected face usage within %d, got %d", *face.CapacityCm3, used)
	}
	if got := e.onHand(each, face); got != 24 {
		t.Errorf("expected 24 eaches on the face, got %d", got)
	}
}

func TestGenerateTasksCaseBreakSmallerThanOneBoxOverflows(t *testing.T) {
	e := newEnv(t, model.ModeQueue)
	each := e.variant("EACH", 1, 1, cube(100))
	box := e.variant("BOX", 12, 2, cube(1300))
	face := e.location("P-01", model.LocationPick, cube(1000))
	reserve := e.location("R-01", model.LocationReserve, nil)
	overflowBin := e.location("O-01", model.LocationReserve, nil)
	e.configure(face, each, model.PolicyValues{
		TriggerValue: intPtr(5), MaxQty: intPtr(24), ReplenMethod: methodPtr(model.MethodCaseBreak),
	})
	e.receive(box, reserve, 3)

	res, err := e.uc.GenerateTasks(e.ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Ten eaches of room cannot take a whole box of twelve.
	if len(res.Created) != 1 {
		t.Fatalf("expected only an overflow task, got %d", len(res.Created))
	}
	got := res.Created[0]
	if got.ToLocationID != overflowBin.ID || got.QtySourceUnits != 2 || got.TriggeredBy != model.TriggerOverflow {
		t.Errorf("expected 2 boxes of overflow to %d, got %d to %d (%s)", overflowBin.ID, got.QtySourceUnits, got.ToLocationID, got.TriggeredBy)
	}
	if used, err := e.ledger.UsedCube(e.ctx, face.ID); err != nil || used != 0 {
		t.Errorf("expected the face untouched, got %d (err %v)", used, err)
	}
}

func TestGenerateTasksRoutesFullFaceToOverflow(t *testing.T) {
	e := newEnv(t, model.ModeQueue)
	each := e.variant("EACH", 1, 1, cube(100))
	cs := e.variant("CASE", 12, 2, cube(1000))
	face := e.location("P-01", model.LocationPick, cube(500))
	reserve := e.location("R-01", model.LocationReserve, nil)
	overflowBin := e.location("O-01", model.LocationReserve, nil)
	e.configure(face, each, model.PolicyValues{TriggerValue: intPtr(5), MaxQty: intPtr(10)})
	e.receive(each, face, 5)
	e.receive(cs, reserve, 1)

	res, err := e.uc.GenerateTasks(e.ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Errors) != 0 || len(res.Created) != 1 {
		t.Fatalf("expected one overflow task and no errors, got %+v", res)
	}
	got := res.Created[0]
	if got.ToLocationID != overflowBin.ID || got.QtySourceUnits != 1 {
		t.Errorf("expected 1 case to %d, got %d to %d", overflowBin.ID, got.QtySourceUnits, got.ToLocationID)
	}
	if got.TriggeredBy != model.TriggerOverflow || got.ReplenMethod != model.MethodFullCase {
		t.Errorf("expected full_case overflow, got %s (%s)", got.ReplenMethod, got.TriggeredBy)
	}
}

func TestGenerateTasksReportsNoCapacity(t *testing.T) {
	e := newEnv(t, model.ModeQueue)
	each := e.variant("EACH", 1, 1, cube(100))
	cs := e.variant("CASE", 12, 2, cube(1000))
	face := e.location("P-01", model.LocationPick, cube(500))
	reserve := e.location("R-01", model.LocationReserve, nil)
	e.location("O-TINY", model.LocationReserve, cube(400))
	e.configure(face, each, model.PolicyValues{TriggerValue: intPtr(5), MaxQty: intPtr(10)})
	e.receive(each, face, 5)
	e.receive(cs, reserve, 1)

	res, err := e.uc.GenerateTasks(e.ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Created) != 0 || len(res.Errors) != 1 {
		t.Fatalf("expected one face error and no tasks, got %+v", res)
	}
	if !strings.Contains(res.Errors[0].Error, "capacity") {
		t.Errorf("expected capacity error, got %q", res.Errors[0].Error)
	}
}
