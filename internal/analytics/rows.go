package analytics

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// SettlementEventRow is one row of the settlement_events warehouse table.
// Money is carried as its decimal text so no precision is lost in transit.
type SettlementEventRow struct {
	EventID       string              `bigquery:"event_id"`
	EventType     string              `bigquery:"event_type"`
	AggregateType string              `bigquery:"aggregate_type"`
	AggregateID   string              `bigquery:"aggregate_id"`
	OccurredAt    time.Time           `bigquery:"occurred_at"`
	Actor         bigquery.NullString `bigquery:"actor"`
	OrderID       bigquery.NullString `bigquery:"order_id"`
	ProductID     bigquery.NullString `bigquery:"product_id"`
	LocationID    bigquery.NullString `bigquery:"location_id"`
	Status        bigquery.NullString `bigquery:"status"`
	Amount        bigquery.NullString `bigquery:"amount"`
	Currency      bigquery.NullString `bigquery:"currency"`
	Quantity      bigquery.NullInt64  `bigquery:"quantity"`
	Payload       bigquery.NullJSON   `bigquery:"payload"`
}

type rowFiller func(row *SettlementEventRow, payload json.RawMessage) error

var rowFillers = map[enums.OutboxEventType]rowFiller{
	enums.EventOrderCreated: func(row *SettlementEventRow, raw json.RawMessage) error {
		var evt payloads.OrderCreatedEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return err
		}
		row.OrderID = uuidString(&evt.OrderID)
		row.LocationID = uuidString(evt.FranchiseLocationID)
		row.Amount = nullString(evt.Total.StringFixed(2))
		row.Currency = nullString(evt.Currency)
		row.Quantity = bigquery.NullInt64{Int64: int64(evt.LineItemCount), Valid: true}
		row.Status = nullString(string(enums.OrderStatusPending))
		return nil
	},
	enums.EventOrderStatusChanged: func(row *SettlementEventRow, raw json.RawMessage) error {
		var evt payloads.OrderStatusChangedEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return err
		}
		row.OrderID = uuidString(&evt.OrderID)
		row.Status = nullString(string(evt.To))
		return nil
	},
	enums.EventOrderStockInconsistent: func(row *SettlementEventRow, raw json.RawMessage) error {
		var evt payloads.OrderStockInconsistentEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return err
		}
		row.OrderID = uuidString(&evt.OrderID)
		row.Status = nullString("stock_inconsistent")
		row.Quantity = bigquery.NullInt64{Int64: int64(len(evt.FailedEntries)), Valid: true}
		return nil
	},
	enums.EventSettlementTaskDeadLettered: func(row *SettlementEventRow, raw json.RawMessage) error {
		var evt payloads.SettlementTaskDeadLetteredEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return err
		}
		row.OrderID = uuidString(&evt.OrderID)
		row.Status = nullString(string(evt.Kind))
		row.Quantity = bigquery.NullInt64{Int64: int64(evt.Attempts), Valid: true}
		return nil
	},
	enums.EventProcurementItemReceived: func(row *SettlementEventRow, raw json.RawMessage) error {
		var evt payloads.ProcurementItemReceivedEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return err
		}
		row.ProductID = uuidString(&evt.ProductID)
		row.LocationID = uuidString(&evt.LocationID)
		row.Status = nullString(string(enums.ProcurementStatusReceived))
		row.Quantity = bigquery.NullInt64{Int64: int64(evt.QuantityReceived), Valid: true}
		return nil
	},
}

// BuildRow flattens an envelope into a warehouse row. The raw payload is
// kept alongside the extracted columns.
func BuildRow(env Envelope) (*SettlementEventRow, error) {
	fill, ok := rowFillers[env.EventType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEventType, env.EventType)
	}
	if len(env.Payload) == 0 {
		return nil, fmt.Errorf("empty payload for %s", env.EventType)
	}

	payload, err := EncodeJSON(env.Payload)
	if err != nil {
		return nil, err
	}
	row := &SettlementEventRow{
		EventID:       env.EventID.String(),
		EventType:     string(env.EventType),
		AggregateType: string(env.AggregateType),
		AggregateID:   env.AggregateID,
		OccurredAt:    env.OccurredAt.UTC(),
		Payload:       payload,
	}
	if env.Actor != nil && !env.Actor.IsZero() {
		row.Actor = nullString(env.Actor.String())
	}
	if err := fill(row, env.Payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.EventType, err)
	}
	return row, nil
}

// EncodeJSON converts a payload into a BigQuery JSON column value.
func EncodeJSON(payload any) (bigquery.NullJSON, error) {
	switch value := payload.(type) {
	case nil:
		return bigquery.NullJSON{}, nil
	case json.RawMessage:
		if len(value) == 0 {
			return bigquery.NullJSON{}, nil
		}
		return bigquery.NullJSON{Valid: true, JSONVal: string(value)}, nil
	case []byte:
		if len(value) == 0 {
			return bigquery.NullJSON{}, nil
		}
		return bigquery.NullJSON{Valid: true, JSONVal: string(value)}, nil
	}
	marshaled, err := json.Marshal(payload)
	if err != nil {
		return bigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
	}
	return bigquery.NullJSON{Valid: true, JSONVal: string(marshaled)}, nil
}

func nullString(value string) bigquery.NullString {
	return bigquery.NullString{StringVal: value, Valid: value != ""}
}

func uuidString(id *uuid.UUID) bigquery.NullString {
	if id == nil || *id == uuid.Nil {
		return bigquery.NullString{}
	}
	return nullString(id.String())
}
