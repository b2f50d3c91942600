package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/fekuna/omnipos-warehouse-service/internal/events"
	"github.com/fekuna/omnipos-warehouse-service/internal/inventory"
	"github.com/fekuna/omnipos-warehouse-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-warehouse-service/internal/memstore"
	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"go.uber.org/zap"
)

const (
	variantID = int64(1)
	locA      = int64(10)
	locB      = int64(20)
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func newLedger(t *testing.T) (inventory.UseCase, *memstore.Store, *recordingPublisher) {
	t.Helper()
	store := memstore.New()
	pub := &recordingPublisher{}
	return NewInventoryUseCase(store, store, pub, zap.NewNop()), store, pub
}

func receive(t *testing.T, uc inventory.UseCase, loc int64, qty int) {
	t.Helper()
	if _, err := uc.ReceiveInventory(context.Background(), &dto.MovementInput{
		ProductVariantID: variantID, LocationID: loc, Quantity: qty, ReferenceType: model.RefReceipt, ReferenceID: "PO-1",
	}); err != nil {
		t.Fatalf("receive: expected no error, got %v", err)
	}
}

func mustLevel(t *testing.T, uc inventory.UseCase, loc int64) model.InventoryLevel {
	t.Helper()
	lvl, err := uc.GetLevel(context.Background(), variantID, loc)
	if err != nil {
		t.Fatalf("get level: expected no error, got %v", err)
	}
	if lvl == nil {
		t.Fatalf("expected level at location %d, got none", loc)
	}
	return *lvl
}

func assertReplay(t *testing.T, uc inventory.UseCase, loc int64) {
	t.Helper()
	v := variantID
	txns, err := uc.ListTransactions(context.Background(), &dto.TransactionFilters{ProductVariantID: &v})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	lvl := mustLevel(t, uc, loc)
	got := inventory.Replay(txns, variantID, loc)
	if got != lvl.Buckets() {
		t.Fatalf("location %d: expected replay %+v, got %+v", loc, lvl.Buckets(), got)
	}
}

func TestReplayReproducesBuckets(t *testing.T) {
	ctx := context.Background()
	uc, _, _ := newLedger(t)

	steps := []struct {
		name string
		run  func() error
	}{
		{"receive", func() error { receive(t, uc, locA, 10); return nil }},
		{"reserve", func() error {
			_, err := uc.ReserveForOrder(ctx, &dto.MovementInput{ProductVariantID: variantID, LocationID: locA, Quantity: 4, ReferenceID: "SO-1"})
			return err
		}},
		{"pick", func() error {
			_, err := uc.PickItem(ctx, &dto.MovementInput{ProductVariantID: variantID, LocationID: locA, Quantity: 3, ReferenceID: "SO-1"})
			return err
		}},
		{"ship", func() error {
			return uc.RecordShipment(ctx, &dto.MovementInput{ProductVariantID: variantID, LocationID: locA, Quantity: 2, ReferenceID: "SO-1"})
		}},
		{"transfer", func() error {
			return uc.Transfer(ctx, &dto.TransferInput{ProductVariantID: variantID, FromLocationID: locA, ToLocationID: locB, Quantity: 2})
		}},
		{"release", func() error {
			_, err := uc.ReleaseReservation(ctx, &dto.MovementInput{ProductVariantID: variantID, LocationID: locA, Quantity: 5})
			return err
		}},
		{"negative adjust", func() error {
			_, err := uc.AdjustInventory(ctx, &dto.AdjustInput{ProductVariantID: variantID, LocationID: locA, QuantityDelta: -9, Reason: "damage"})
			return err
		}},
		{"transfer back", func() error {
			return uc.Transfer(ctx, &dto.TransferInput{ProductVariantID: variantID, FromLocationID: locB, ToLocationID: locA, Quantity: 1})
		}},
		{"adjust level", func() error {
			lvl := mustLevel(t, uc, locB)
			_, err := uc.AdjustLevel(ctx, lvl.ID, model.LevelDeltas{VariantQty: 3, PickedQty: 1})
			return err
		}},
		{"adjust packed and backorder", func() error {
			lvl := mustLevel(t, uc, locA)
			_, err := uc.AdjustLevel(ctx, lvl.ID, model.LevelDeltas{PackedQty: 2, BackorderQty: 5})
			return err
		}},
	}

	for _, step := range steps {
		if err := step.run(); err != nil {
			t.Fatalf("%s: expected no error, got %v", step.name, err)
		}
		assertReplay(t, uc, locA)
		if lvl, _ := uc.GetLevel(ctx, variantID, locB); lvl != nil {
			assertReplay(t, uc, locB)
		}
	}

	a := mustLevel(t, uc, locA)
	if a.VariantQty != -3 {
		t.Errorf("expected on-hand -3 after permissive adjustment, got %d", a.VariantQty)
	}
}

func TestPackedAndBackorderAreLogged(t *testing.T) {
	ctx := context.Background()
	uc, _, _ := newLedger(t)
	const locC = int64(30)

	lvl, err := uc.UpsertLevel(ctx, variantID, locC, &dto.LevelSeed{PackedQty: 4, BackorderQty: 2})
	if err != nil {
		t.Fatalf("upsert: expected no error, got %v", err)
	}
	assertReplay(t, uc, locC)

	if _, err := uc.AdjustLevel(ctx, lvl.ID, model.LevelDeltas{PackedQty: 3, BackorderQty: 1}); err != nil {
		t.Fatalf("adjust: expected no error, got %v", err)
	}
	assertReplay(t, uc, locC)

	got := mustLevel(t, uc, locC)
	if got.PackedQty != 7 || got.BackorderQty != 3 {
		t.Errorf("expected packed 7 backorder 3, got %d/%d", got.PackedQty, got.BackorderQty)
	}
	v := variantID
	txns, err := uc.ListTransactions(ctx, &dto.TransactionFilters{ProductVariantID: &v})
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 2 {
		t.Fatalf("expected opening balance and adjustment rows, got %d", len(txns))
	}
	if txns[1].PackedQtyDelta != 3 || txns[1].BackorderQtyDelta != 1 {
		t.Errorf("expected deltas +3/+1, got %+d/%+d", txns[1].PackedQtyDelta, txns[1].BackorderQtyDelta)
	}
}

func TestPickItemConcurrentNeverOverdraws(t *testing.T) {
	uc, _, _ := newLedger(t)
	receive(t, uc, locA, 10)

	const pickers = 40
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < pickers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := uc.PickItem(context.Background(), &dto.MovementInput{ProductVariantID: variantID, LocationID: locA, Quantity: 1})
			if err != nil {
				t.Errorf("expected no error, got %v", err)
				return
			}
			if ok {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Errorf("expected 10 successful picks, got %d", succeeded)
	}
	lvl := mustLevel(t, uc, locA)
	if lvl.VariantQty != 0 || lvl.PickedQty != 10 {
		t.Errorf("expected on-hand 0 and picked 10, got %d and %d", lvl.VariantQty, lvl.PickedQty)
	}
	assertReplay(t, uc, locA)
}

func TestPickItem(t *testing.T) {
	ctx := context.Background()

	t.Run("missing level returns false", func(t *testing.T) {
		uc, _, _ := newLedger(t)
		ok, err := uc.PickItem(ctx, &dto.MovementInput{ProductVariantID: variantID, LocationID: locA, Quantity: 1})
		if err != nil || ok {
			t.Errorf("expected false without error, got %v, %v", ok, err)
		}
	})

	t.Run("releases reservation up to quantity", func(t *testing.T) {
		uc, _, _ := newLedger(t)
		receive(t, uc, locA, 10)
		if ok, _ := uc.ReserveForOrder(ctx, &dto.MovementInput{ProductVariantID: variantID, LocationID: locA, Quantity: 6}); !ok {
			t.Fatal("expected reservation to succeed")
		}
		ok, err := uc.PickItem(ctx, &dto.MovementInput{ProductVariantID: variantID, LocationID: locA, Quantity: 4})
		if err != nil || !ok {
			t.Fatalf("expected pick to succeed, got %v, %v", ok, err)
		}
		lvl := mustLevel(t, uc, locA)
		if lvl.VariantQty != 6 || lvl.ReservedQty != 2 || lvl.PickedQty != 4 {
			t.Errorf("expected 6/2/4, got %d/%d/%d", lvl.VariantQty, lvl.ReservedQty, lvl.PickedQty)
		}
	})

	t.Run("rejects invalid quantity", func(t *testing.T) {
		uc, _, _ := newLedger(t)
		if _, err := uc.PickItem(ctx, &dto.MovementInput{ProductVariantID: variantID, LocationID: locA}); !errors.Is(err, inventory.ErrInvalidQuantity) {
			t.Errorf("expected ErrInvalidQuantity, got %v", err)
		}
	})
}

func TestUpsertLevelIsIdempotent(t *testing.T) {
	ctx := context.Background()
	uc, _, _ := newLedger(t)

	first, err := uc.UpsertLevel(ctx, variantID, locA, &dto.LevelSeed{VariantQty: 5})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	second, err := uc.UpsertLevel(ctx, variantID, locA, &dto.LevelSeed{VariantQty: 99, ReservedQty: 3})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected same row, got ids %d and %d", first.ID, second.ID)
	}
	if second.VariantQty != 5 || second.ReservedQty != 0 {
		t.Errorf("expected seed ignored (5/0), got %d/%d", second.VariantQty, second.ReservedQty)
	}
	assertReplay(t, uc, locA)
}

func TestReservationsNeverExceedOnHand(t *testing.T) {
	ctx := context.Background()
	uc, _, _ := newLedger(t)
	receive(t, uc, locA, 10)

	tests := []struct {
		qty  int
		want bool
	}{
		{6, true},
		{5, false},
		{4, true},
		{1, false},
	}
	for _, tt := range tests {
		ok, err := uc.ReserveForOrder(ctx, &dto.MovementInput{ProductVariantID: variantID, LocationID: locA, Quantity: tt.qty})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if ok != tt.want {
			t.Errorf("reserve %d: expected %v, got %v", tt.qty, tt.want, ok)
		}
		lvl := mustLevel(t, uc, locA)
		if lvl.ReservedQty > lvl.VariantQty {
			t.Fatalf("reserved %d exceeds on-hand %d", lvl.ReservedQty, lvl.VariantQty)
		}
	}

	released, err := uc.ReleaseReservation(ctx, &dto.MovementInput{ProductVariantID: variantID, LocationID: locA, Quantity: 25})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if released != 10 {
		t.Errorf("expected 10 released, got %d", released)
	}
	assertReplay(t, uc, locA)
}

func TestRecordShipmentRequiresPicked(t *testing.T) {
	ctx := context.Background()
	uc, _, _ := newLedger(t)
	receive(t, uc, locA, 5)
	if ok, _ := uc.PickItem(ctx, &dto.MovementInput{ProductVariantID: variantID, LocationID: locA, Quantity: 2}); !ok {
		t.Fatal("expected pick to succeed")
	}

	err := uc.RecordShipment(ctx, &dto.MovementInput{ProductVariantID: variantID, LocationID: locA, Quantity: 3})
	if !errors.Is(err, inventory.ErrInsufficientPicked) {
		t.Fatalf("expected ErrInsufficientPicked, got %v", err)
	}
	if err := uc.RecordShipment(ctx, &dto.MovementInput{ProductVariantID: variantID, LocationID: locA, Quantity: 2}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if lvl := mustLevel(t, uc, locA); lvl.PickedQty != 0 {
		t.Errorf("expected picked 0, got %d", lvl.PickedQty)
	}
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		from    int64
		to      int64
		qty     int
		wantErr error
	}{
		{"same location", locA, locA, 1, inventory.ErrSameLocation},
		{"insufficient stock", locA, locB, 8, inventory.ErrInsufficientStock},
		{"missing source", locB, locA, 1, inventory.ErrInsufficientStock},
		{"zero quantity", locA, locB, 0, inventory.ErrInvalidQuantity},
		{"moves stock", locA, locB, 7, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc, _, _ := newLedger(t)
			receive(t, uc, locA, 7)

			err := uc.Transfer(ctx, &dto.TransferInput{ProductVariantID: variantID, FromLocationID: tt.from, ToLocationID: tt.to, Quantity: tt.qty})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			v := variantID
			txns, _ := uc.ListTransactions(ctx, &dto.TransactionFilters{ProductVariantID: &v, TransactionType: model.TxnTransfer})
			if tt.wantErr != nil {
				if len(txns) != 0 {
					t.Errorf("expected no transfer rows, got %d", len(txns))
				}
				if lvl := mustLevel(t, uc, locA); lvl.VariantQty != 7 {
					t.Errorf("expected source untouched at 7, got %d", lvl.VariantQty)
				}
				return
			}
			if len(txns) != 1 {
				t.Fatalf("expected exactly 1 transfer row, got %d", len(txns))
			}
			if txns[0].VariantQtyDelta != -7 || txns[0].VariantQtyBefore != 7 || txns[0].VariantQtyAfter != 0 {
				t.Errorf("expected -7 (7 -> 0), got %d (%d -> %d)", txns[0].VariantQtyDelta, txns[0].VariantQtyBefore, txns[0].VariantQtyAfter)
			}
			assertReplay(t, uc, locA)
			assertReplay(t, uc, locB)
		})
	}
}

func TestBreakCaseConservation(t *testing.T) {
	ctx := context.Background()
	const caseVariant, eachVariant = int64(2), int64(1)

	tests := []struct {
		name          string
		source        int
		u1, u2        int
		wantProduced  int
		wantRemainder int
	}{
		{"exact", 2, 12, 1, 24, 0},
		{"inner packs", 3, 12, 5, 7, 1},
		{"smaller than one target", 1, 4, 6, 0, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memstore.New()
			uc := NewInventoryUseCase(store, store, nil, zap.NewNop())
			if _, err := uc.ReceiveInventory(ctx, &dto.MovementInput{ProductVariantID: caseVariant, LocationID: locA, Quantity: 5}); err != nil {
				t.Fatal(err)
			}

			res, err := uc.BreakCase(ctx, &dto.BreakCaseInput{
				SourceVariantID: caseVariant, SourceLocationID: locA, SourceQuantity: tt.source, SourceUnits: tt.u1,
				TargetVariantID: eachVariant, TargetLocationID: locB, TargetUnits: tt.u2,
				ReferenceType: model.RefReplenTask, ReferenceID: "1",
			})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if res.TargetProduced != tt.wantProduced || res.RemainderUnits != tt.wantRemainder {
				t.Errorf("expected %d produced / %d remainder, got %d / %d", tt.wantProduced, tt.wantRemainder, res.TargetProduced, res.RemainderUnits)
			}
			if got := res.TargetProduced*tt.u2 + res.RemainderUnits; got != tt.source*tt.u1 {
				t.Errorf("expected %d base units conserved, got %d", tt.source*tt.u1, got)
			}
			if res.SourceLevel.VariantQty != 5-tt.source {
				t.Errorf("expected source %d, got %d", 5-tt.source, res.SourceLevel.VariantQty)
			}
			if res.TargetLevel.VariantQty != tt.wantProduced {
				t.Errorf("expected target %d, got %d", tt.wantProduced, res.TargetLevel.VariantQty)
			}

			cv := caseVariant
			breaks, _ := uc.ListTransactions(ctx, &dto.TransactionFilters{ProductVariantID: &cv, TransactionType: model.TxnBreak})
			if len(breaks) != 1 {
				t.Fatalf("expected 1 break row, got %d", len(breaks))
			}
			if !strings.Contains(breaks[0].Notes, "remainder") {
				t.Errorf("expected remainder recorded in notes, got %q", breaks[0].Notes)
			}
		})
	}

	t.Run("insufficient source rolls back", func(t *testing.T) {
		store := memstore.New()
		uc := NewInventoryUseCase(store, store, nil, zap.NewNop())
		if _, err := uc.ReceiveInventory(ctx, &dto.MovementInput{ProductVariantID: caseVariant, LocationID: locA, Quantity: 1}); err != nil {
			t.Fatal(err)
		}
		_, err := uc.BreakCase(ctx, &dto.BreakCaseInput{
			SourceVariantID: caseVariant, SourceLocationID: locA, SourceQuantity: 2, SourceUnits: 12,
			TargetVariantID: eachVariant, TargetLocationID: locB, TargetUnits: 1,
		})
		if !errors.Is(err, inventory.ErrInsufficientStock) {
			t.Fatalf("expected ErrInsufficientStock, got %v", err)
		}
		txns, _ := uc.ListTransactions(ctx, nil)
		if len(txns) != 1 {
			t.Errorf("expected only the receipt row, got %d rows", len(txns))
		}
	})
}

func TestAdjustInventoryIsPermissive(t *testing.T) {
	ctx := context.Background()
	uc, _, _ := newLedger(t)

	lvl, err := uc.AdjustInventory(ctx, &dto.AdjustInput{ProductVariantID: variantID, LocationID: locA, QuantityDelta: -5, Reason: "shrinkage"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if lvl.VariantQty != -5 {
		t.Errorf("expected -5, got %d", lvl.VariantQty)
	}
	if ok, _ := uc.PickItem(ctx, &dto.MovementInput{ProductVariantID: variantID, LocationID: locA, Quantity: 1}); ok {
		t.Error("expected pick against negative on-hand to fail")
	}
	if _, err := uc.AdjustInventory(ctx, &dto.AdjustInput{ProductVariantID: variantID, LocationID: locA}); !errors.Is(err, inventory.ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity for zero delta, got %v", err)
	}
	if _, err := uc.AdjustLevel(ctx, 999, model.LevelDeltas{VariantQty: 1}); !errors.Is(err, inventory.ErrLevelNotFound) {
		t.Errorf("expected ErrLevelNotFound, got %v", err)
	}
}

func TestTransactionsPublishedAfterCommit(t *testing.T) {
	ctx := context.Background()
	uc, _, pub := newLedger(t)

	receive(t, uc, locA, 3)
	if pub.count() != 1 {
		t.Fatalf("expected 1 event, got %d", pub.count())
	}

	_ = uc.Transfer(ctx, &dto.TransferInput{ProductVariantID: variantID, FromLocationID: locA, ToLocationID: locB, Quantity: 9})
	if pub.count() != 1 {
		t.Errorf("expected failed transfer to publish nothing, got %d events", pub.count())
	}

	ev := pub.events[0]
	txn, ok := ev.Payload.(model.InventoryTransaction)
	if ev.Type != events.TransactionRecorded || !ok {
		t.Fatalf("expected transaction payload, got %s %T", ev.Type, ev.Payload)
	}
	if txn.TransactionType != model.TxnReceipt || txn.ID == 0 {
		t.Errorf("expected persisted receipt, got %s id=%d", txn.TransactionType, txn.ID)
	}
}
