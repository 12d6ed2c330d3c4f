package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChargeStatus tracks the settlement lifecycle of a charge.
// Transitions only move forward: PENDING -> PAID -> REFUNDED, or PENDING -> CANCELLED.
type ChargeStatus int16

const (
	ChargeStatusPending   ChargeStatus = 0
	ChargeStatusPaid      ChargeStatus = 1
	ChargeStatusRefunded  ChargeStatus = 2
	ChargeStatusCancelled ChargeStatus = 3
)

func (s ChargeStatus) String() string {
	switch s {
	case ChargeStatusPending:
		return "PENDING"
	case ChargeStatusPaid:
		return "PAID"
	case ChargeStatusRefunded:
		return "REFUNDED"
	case ChargeStatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// ChargeType describes which kinds of billable sources a charge aggregates.
type ChargeType string

const (
	ChargeTypeRegistrationOnly ChargeType = "REGISTRATION_ONLY"
	ChargeTypePrescriptionOnly ChargeType = "PRESCRIPTION_ONLY"
	ChargeTypeMixed            ChargeType = "MIXED"
)

// PaymentMethod is how a charge was settled.
type PaymentMethod string

const (
	PaymentMethodCash      PaymentMethod = "CASH"
	PaymentMethodCard      PaymentMethod = "CARD"
	PaymentMethodMobile    PaymentMethod = "MOBILE"
	PaymentMethodInsurance PaymentMethod = "INSURANCE"
)

// ChargeItemType identifies the source of one charge line.
type ChargeItemType string

const (
	ChargeItemRegistration ChargeItemType = "REGISTRATION"
	ChargeItemPrescription ChargeItemType = "PRESCRIPTION"
)

// Charge is one settlement unit for a patient visit segment. All monetary
// amounts are in minor currency units (e.g. cents) to avoid float drift.
type Charge struct {
	ChargeNo      string         `json:"charge_no"`
	PatientID     uuid.UUID      `json:"patient_id"`
	ChargeType    ChargeType     `json:"charge_type"`
	TotalAmount   int64          `json:"total_amount"`
	ActualAmount  int64          `json:"actual_amount"` // After discount/insurance; 0 <= actual <= total.
	Status        ChargeStatus   `json:"status"`
	PaymentMethod *PaymentMethod `json:"payment_method,omitempty"`
	TransactionNo *string        `json:"transaction_no,omitempty"` // Idempotency key, set exactly once at payment.
	RefundReason  *string        `json:"refund_reason,omitempty"`
	PaidAt        *time.Time     `json:"paid_at,omitempty"`
	RefundedAt    *time.Time     `json:"refunded_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Details       []ChargeDetail `json:"details,omitempty"`
}

// ChargeDetail is one billable line within a charge. Details are created
// together with their parent and never mutated afterwards. Prescription lines
// carry the medicine and dispensed quantity so a refund can restore stock from
// what was originally recorded rather than re-deriving it.
type ChargeDetail struct {
	ID         uuid.UUID      `json:"id"`
	ChargeNo   string         `json:"charge_no"`
	ItemType   ChargeItemType `json:"item_type"`
	ItemRef    uuid.UUID      `json:"item_ref"` // Source registration or prescription detail row.
	ItemName   string         `json:"item_name"`
	ItemAmount int64          `json:"item_amount"` // > 0.
	MedicineID *uuid.UUID     `json:"medicine_id,omitempty"`
	Quantity   int32          `json:"quantity,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// SumDetails recomputes the charge total from its lines.
func (c *Charge) SumDetails() int64 {
	var sum int64
	for _, d := range c.Details {
		sum += d.ItemAmount
	}
	return sum
}

// PrescriptionLines returns the detail lines that reference prescription items.
func (c *Charge) PrescriptionLines() []ChargeDetail {
	var lines []ChargeDetail
	for _, d := range c.Details {
		if d.ItemType == ChargeItemPrescription {
			lines = append(lines, d)
		}
	}
	return lines
}

// DeriveChargeType classifies a charge from the mix of its line types.
func DeriveChargeType(details []ChargeDetail) ChargeType {
	var hasRegistration, hasPrescription bool
	for _, d := range details {
		switch d.ItemType {
		case ChargeItemRegistration:
			hasRegistration = true
		case ChargeItemPrescription:
			hasPrescription = true
		}
	}
	switch {
	case hasRegistration && hasPrescription:
		return ChargeTypeMixed
	case hasPrescription:
		return ChargeTypePrescriptionOnly
	default:
		return ChargeTypeRegistrationOnly
	}
}
