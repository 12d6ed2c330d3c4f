package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NATS subjects for settlement events.
const (
	SubjectChargePaid     = "settlement.charge.paid"
	SubjectChargeRefunded = "settlement.charge.refunded"
)

// OutboxEvent is one pending downstream notification. Events are written in
// the same database transaction as the status transition that produced them,
// then delivered at-least-once by the outbox dispatcher. Consumers must
// deduplicate on EventID.
type OutboxEvent struct {
	ID        int64           `json:"id"`
	EventID   uuid.UUID       `json:"event_id"`
	Subject   string          `json:"subject"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
}

// ChargePaidEvent signals that dispensing may be unlocked for the listed
// prescriptions.
type ChargePaidEvent struct {
	ChargeNo        string      `json:"charge_no"`
	PatientID       uuid.UUID   `json:"patient_id"`
	TransactionNo   string      `json:"transaction_no"`
	ActualAmount    int64       `json:"actual_amount"`
	PrescriptionIDs []uuid.UUID `json:"prescription_ids,omitempty"`
	PaidAt          time.Time   `json:"paid_at"`
}

// ChargeRefundedEvent signals a completed refund, including whether stock was
// restored for its prescription lines.
type ChargeRefundedEvent struct {
	ChargeNo          string    `json:"charge_no"`
	PatientID         uuid.UUID `json:"patient_id"`
	Reason            string    `json:"reason"`
	RefundedAmount    int64     `json:"refunded_amount"`
	InventoryRestored bool      `json:"inventory_restored"`
	RefundedAt        time.Time `json:"refunded_at"`
}
