package listener

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/fekuna/omnipos-warehouse-service/internal/inventory"
	"github.com/fekuna/omnipos-warehouse-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	EventItemPicked         = "ItemPicked"
	EventStockReceived      = "StockReceived"
	EventOrderShipped       = "OrderShipped"
	EventCycleCountApproved = "CycleCountApproved"
)

const systemUser = "system"

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Replenisher is the part of the replenishment engine floor events drive.
type Replenisher interface {
	CheckAndTriggerAfterPick(ctx context.Context, variantID, locationID int64) (*model.ReplenTask, error)
	ResolveCycleCount(ctx context.Context, cycleCountID int64) ([]model.ReplenTask, error)
}

// InventoryListener applies warehouse floor events to the ledger.
type InventoryListener struct {
	consumer MessageReader
	uc       inventory.UseCase
	replen   Replenisher
	logger   *zap.Logger
}

func NewInventoryListener(consumer MessageReader, uc inventory.UseCase, replen Replenisher, logger *zap.Logger) *InventoryListener {
	return &InventoryListener{
		consumer: consumer,
		uc:       uc,
		replen:   replen,
		logger:   logger,
	}
}

func (l *InventoryListener) Start(ctx context.Context) {
	l.logger.Info("Starting warehouse event listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping warehouse event listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}
			l.processMessage(ctx, msg.Value)
		}
	}
}

type WarehouseEvent struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// MovementPayload carries ItemPicked and StockReceived.
type MovementPayload struct {
	VariantID   int64  `json:"variant_id"`
	LocationID  int64  `json:"location_id"`
	Quantity    int    `json:"quantity"`
	ReferenceID string `json:"reference_id"`
	UserID      string `json:"user_id"`
}

type ShipmentPayload struct {
	OrderID string             `json:"order_id"`
	UserID  string             `json:"user_id"`
	Items   []ShipmentLineItem `json:"items"`
}

type ShipmentLineItem struct {
	VariantID  int64 `json:"variant_id"`
	LocationID int64 `json:"location_id"`
	Quantity   int   `json:"quantity"`
}

type CycleCountPayload struct {
	CycleCountID int64               `json:"cycle_count_id"`
	ApprovedBy   string              `json:"approved_by"`
	Items        []CycleCountVariant `json:"items"`
}

// CycleCountVariant is one approved line; Variance is counted minus expected.
type CycleCountVariant struct {
	VariantID  int64 `json:"variant_id"`
	LocationID int64 `json:"location_id"`
	Variance   int   `json:"variance"`
}

func (l *InventoryListener) processMessage(ctx context.Context, value []byte) {
	var event WarehouseEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return
	}

	var err error
	switch event.EventType {
	case EventItemPicked:
		err = l.handlePicked(ctx, event)
	case EventStockReceived:
		err = l.handleReceived(ctx, event)
	case EventOrderShipped:
		err = l.handleShipped(ctx, event)
	case EventCycleCountApproved:
		err = l.handleCycleCount(ctx, event)
	default:
		return
	}
	if err != nil {
		l.logger.Error("Failed to process warehouse event",
			zap.String("event_id", event.EventID),
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
	}
}

func (l *InventoryListener) handlePicked(ctx context.Context, event WarehouseEvent) error {
	var p MovementPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return err
	}

	ok, err := l.uc.PickItem(ctx, &dto.MovementInput{
		ProductVariantID: p.VariantID,
		LocationID:       p.LocationID,
		Quantity:         p.Quantity,
		ReferenceType:    model.RefOrder,
		ReferenceID:      p.ReferenceID,
		UserID:           defaultUser(p.UserID),
	})
	if err != nil {
		return err
	}
	if !ok {
		l.logger.Warn("Pick rejected for insufficient stock",
			zap.Int64("variant_id", p.VariantID),
			zap.Int64("location_id", p.LocationID),
			zap.Int("quantity", p.Quantity),
		)
		return nil
	}

	task, err := l.replen.CheckAndTriggerAfterPick(ctx, p.VariantID, p.LocationID)
	if err != nil {
		return err
	}
	if task != nil {
		l.logger.Info("Replenishment triggered by pick",
			zap.Int64("task_id", task.ID),
			zap.String("status", string(task.Status)),
		)
	}
	return nil
}

func (l *InventoryListener) handleReceived(ctx context.Context, event WarehouseEvent) error {
	var p MovementPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return err
	}
	_, err := l.uc.ReceiveInventory(ctx, &dto.MovementInput{
		ProductVariantID: p.VariantID,
		LocationID:       p.LocationID,
		Quantity:         p.Quantity,
		ReferenceType:    model.RefReceipt,
		ReferenceID:      p.ReferenceID,
		UserID:           defaultUser(p.UserID),
	})
	return err
}

// handleShipped records every line; one failing line does not stop the rest.
func (l *InventoryListener) handleShipped(ctx context.Context, event WarehouseEvent) error {
	var p ShipmentPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return err
	}
	for _, item := range p.Items {
		err := l.uc.RecordShipment(ctx, &dto.MovementInput{
			ProductVariantID: item.VariantID,
			LocationID:       item.LocationID,
			Quantity:         item.Quantity,
			ReferenceType:    model.RefOrder,
			ReferenceID:      p.OrderID,
			UserID:           defaultUser(p.UserID),
		})
		if err != nil {
			l.logger.Error("Failed to record shipment line",
				zap.String("order_id", p.OrderID),
				zap.Int64("variant_id", item.VariantID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// handleCycleCount posts approved variances as adjustments. The replenishment
// re-check follows from the recorded transactions; a count that changes
// nothing releases its held tasks here instead.
func (l *InventoryListener) handleCycleCount(ctx context.Context, event WarehouseEvent) error {
	var p CycleCountPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return err
	}
	ref := strconv.FormatInt(p.CycleCountID, 10)
	posted := 0
	for _, item := range p.Items {
		if item.Variance == 0 {
			continue
		}
		_, err := l.uc.AdjustInventory(ctx, &dto.AdjustInput{
			ProductVariantID: item.VariantID,
			LocationID:       item.LocationID,
			QuantityDelta:    item.Variance,
			Reason:           "cycle count approved",
			ReferenceType:    model.RefCycleCount,
			ReferenceID:      ref,
			UserID:           defaultUser(p.ApprovedBy),
		})
		if err != nil {
			l.logger.Error("Failed to apply cycle count variance",
				zap.Int64("cycle_count_id", p.CycleCountID),
				zap.Int64("variant_id", item.VariantID),
				zap.Error(err),
			)
			continue
		}
		posted++
	}

	if posted == 0 {
		_, err := l.replen.ResolveCycleCount(ctx, p.CycleCountID)
		return err
	}
	return nil
}

func defaultUser(id string) string {
	if id == "" {
		return systemUser
	}
	return id
}
