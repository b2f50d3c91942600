package search

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/fekuna/omnipos-warehouse-service/internal/events"
	"github.com/fekuna/omnipos-warehouse-service/internal/model"
)

const auditMapping = `{
	"mappings": {
		"properties": {
			"event_id": { "type": "keyword" },
			"product_variant_id": { "type": "long" },
			"from_location_id": { "type": "long" },
			"to_location_id": { "type": "long" },
			"transaction_type": { "type": "keyword" },
			"variant_qty_delta": { "type": "integer" },
			"variant_qty_before": { "type": "integer" },
			"variant_qty_after": { "type": "integer" },
			"reference_type": { "type": "keyword" },
			"reference_id": { "type": "keyword" },
			"notes": { "type": "text" },
			"created_by": { "type": "keyword" },
			"created_at": { "type": "date" }
		}
	}
}`

type auditDocument struct {
	EventID string `json:"event_id"`
	model.InventoryTransaction
	IndexedAt time.Time `json:"indexed_at"`
}

// AuditIndexer mirrors recorded inventory transactions into an index so the
// audit trail can be searched without touching the ledger database.
type AuditIndexer struct {
	client *Client
	index  string
}

func NewAuditIndexer(client *Client, index string) *AuditIndexer {
	return &AuditIndexer{client: client, index: index}
}

// EnsureIndex creates the audit index with its mapping.
func (a *AuditIndexer) EnsureIndex(ctx context.Context) error {
	return a.client.CreateIndex(ctx, a.index, auditMapping)
}

// Handle indexes one TransactionRecorded event. The transaction id is the
// document id, so redelivery overwrites instead of duplicating.
func (a *AuditIndexer) Handle(ctx context.Context, ev events.Event) error {
	var txn model.InventoryTransaction
	switch p := ev.Payload.(type) {
	case model.InventoryTransaction:
		txn = p
	case *model.InventoryTransaction:
		txn = *p
	default:
		return fmt.Errorf("unexpected payload %T for %s", ev.Payload, ev.Type)
	}

	doc := auditDocument{EventID: ev.ID, InventoryTransaction: txn, IndexedAt: time.Now().UTC()}
	return a.client.Index(ctx, a.index, strconv.FormatInt(txn.ID, 10), doc)
}
