package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/hookline/hookline/catalog"
	"github.com/hookline/hookline/dlog"
	"github.com/hookline/hookline/event"
	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/internal/entity"
	"github.com/hookline/hookline/subscription"
)

// --- Event models ---

type eventModel struct {
	grove.BaseModel `grove:"table:hl_events"`

	ID             string          `grove:"id,pk"`
	IdempotencyKey string          `grove:"idempotency_key,unique"`
	EventType      string          `grove:"event_type"`
	Payload        json.RawMessage `grove:"payload,type:jsonb"`
	ReceivedAt     time.Time       `grove:"received_at"`
}

func toEventModel(evt *event.Event) *eventModel {
	return &eventModel{
		ID:             evt.ID.String(),
		IdempotencyKey: evt.IdempotencyKey,
		EventType:      evt.Type,
		Payload:        evt.Payload,
		ReceivedAt:     evt.ReceivedAt,
	}
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	evtID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.ID, err)
	}
	return &event.Event{
		ID:             evtID,
		IdempotencyKey: m.IdempotencyKey,
		Type:           m.EventType,
		Payload:        m.Payload,
		ReceivedAt:     m.ReceivedAt,
	}, nil
}

// --- Subscription models ---

type subscriptionModel struct {
	grove.BaseModel `grove:"table:hl_subscriptions"`

	ID        string    `grove:"id,pk"`
	EventType string    `grove:"event_type"`
	TargetURL string    `grove:"target_url"`
	Secret    string    `grove:"secret"`
	IsActive  bool      `grove:"is_active"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toSubscriptionModel(sub *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:        sub.ID.String(),
		EventType: sub.EventType,
		TargetURL: sub.TargetURL,
		Secret:    sub.Secret,
		IsActive:  sub.Active,
		CreatedAt: sub.CreatedAt,
		UpdatedAt: sub.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.ID, err)
	}
	return &subscription.Subscription{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        subID,
		EventType: m.EventType,
		TargetURL: m.TargetURL,
		Secret:    m.Secret,
		Active:    m.IsActive,
	}, nil
}

// --- Delivery log models ---

type deliveryLogModel struct {
	grove.BaseModel `grove:"table:hl_delivery_logs"`

	ID                 string    `grove:"id,pk"`
	EventID            string    `grove:"event_id"`
	SubscriptionID     string    `grove:"subscription_id"`
	Status             string    `grove:"status"`
	AttemptCount       int       `grove:"attempt_count"`
	AttemptedAt        time.Time `grove:"attempted_at"`
	ResponseStatusCode *int      `grove:"response_status_code"`
	ResponseBody       string    `grove:"response_body"`
	ErrorMessage       string    `grove:"error_message"`
	CreatedAt          time.Time `grove:"created_at"`
	UpdatedAt          time.Time `grove:"updated_at"`
}

func toDeliveryLogModel(row *dlog.Log) *deliveryLogModel {
	return &deliveryLogModel{
		ID:                 row.ID.String(),
		EventID:            row.EventID.String(),
		SubscriptionID:     row.SubscriptionID.String(),
		Status:             string(row.Status),
		AttemptCount:       row.AttemptCount,
		AttemptedAt:        row.AttemptedAt,
		ResponseStatusCode: row.ResponseStatusCode,
		ResponseBody:       row.ResponseBody,
		ErrorMessage:       row.ErrorMessage,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
}

func fromDeliveryLogModel(m *deliveryLogModel) (*dlog.Log, error) {
	logID, err := id.ParseDeliveryLogID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery log ID %q: %w", m.ID, err)
	}
	evtID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	subID, err := id.ParseSubscriptionID(m.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.SubscriptionID, err)
	}
	return &dlog.Log{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                 logID,
		EventID:            evtID,
		SubscriptionID:     subID,
		Status:             dlog.Status(m.Status),
		AttemptCount:       m.AttemptCount,
		AttemptedAt:        m.AttemptedAt,
		ResponseStatusCode: m.ResponseStatusCode,
		ResponseBody:       m.ResponseBody,
		ErrorMessage:       m.ErrorMessage,
	}, nil
}

// --- Event schema models ---

type eventSchemaModel struct {
	grove.BaseModel `grove:"table:hl_event_schemas"`

	EventType string          `grove:"event_type,pk"`
	Schema    json.RawMessage `grove:"schema,type:jsonb"`
	CreatedAt time.Time       `grove:"created_at"`
	UpdatedAt time.Time       `grove:"updated_at"`
}

func toEventSchemaModel(sch *catalog.Schema) *eventSchemaModel {
	return &eventSchemaModel{
		EventType: sch.EventType,
		Schema:    sch.Schema,
		CreatedAt: sch.CreatedAt,
		UpdatedAt: sch.UpdatedAt,
	}
}

func fromEventSchemaModel(m *eventSchemaModel) *catalog.Schema {
	return &catalog.Schema{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		EventType: m.EventType,
		Schema:    m.Schema,
	}
}
