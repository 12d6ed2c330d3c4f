package domain

import (
	"time"

	"github.com/google/uuid"
)

// PrescriptionStatus mirrors the prescription workflow. The settlement engine
// only writes two transitions: AUDITED -> DISPENSABLE when the owning charge is
// paid, and DISPENSABLE -> RETURNED when it is refunded with stock restoration.
// Dispensing itself belongs to an external collaborator.
type PrescriptionStatus int16

const (
	PrescriptionStatusDraft       PrescriptionStatus = 1
	PrescriptionStatusSubmitted   PrescriptionStatus = 2
	PrescriptionStatusAudited     PrescriptionStatus = 3
	PrescriptionStatusReturned    PrescriptionStatus = 4
	PrescriptionStatusDispensable PrescriptionStatus = 5
	PrescriptionStatusDispensed   PrescriptionStatus = 6
)

func (s PrescriptionStatus) String() string {
	switch s {
	case PrescriptionStatusDraft:
		return "DRAFT"
	case PrescriptionStatusSubmitted:
		return "SUBMITTED"
	case PrescriptionStatusAudited:
		return "AUDITED"
	case PrescriptionStatusReturned:
		return "RETURNED"
	case PrescriptionStatusDispensable:
		return "DISPENSABLE"
	case PrescriptionStatusDispensed:
		return "DISPENSED"
	default:
		return "UNKNOWN"
	}
}

// Prescription is a billable source referenced, not owned, by the engine.
type Prescription struct {
	ID        uuid.UUID           `json:"id"`
	PatientID uuid.UUID           `json:"patient_id"`
	DoctorID  uuid.UUID           `json:"doctor_id"`
	Status    PrescriptionStatus  `json:"status"`
	ChargeNo  *string             `json:"charge_no,omitempty"` // Set when attached to a non-cancelled charge.
	CreatedAt time.Time           `json:"created_at"`
	Details   []PrescriptionDetail `json:"details,omitempty"`
}

// PrescriptionDetail is one medicine line on a prescription.
type PrescriptionDetail struct {
	ID             uuid.UUID `json:"id"`
	PrescriptionID uuid.UUID `json:"prescription_id"`
	MedicineID     uuid.UUID `json:"medicine_id"`
	MedicineName   string    `json:"medicine_name"`
	Quantity       int32     `json:"quantity"`
	UnitPrice      int64     `json:"unit_price"` // Minor units.
}

// Amount is the line total in minor units.
func (d PrescriptionDetail) Amount() int64 {
	return d.UnitPrice * int64(d.Quantity)
}

// Registration is the other billable source: a patient visit registration
// carrying a flat registration fee.
type Registration struct {
	ID           uuid.UUID `json:"id"`
	PatientID    uuid.UUID `json:"patient_id"`
	DepartmentID uuid.UUID `json:"department_id"`
	Fee          int64     `json:"fee"` // Minor units.
	Billable     bool      `json:"billable"`
	ChargeNo     *string   `json:"charge_no,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// SourceRef identifies one billable source handed to the charge aggregator.
type SourceRef struct {
	Type ChargeItemType `json:"type"`
	ID   uuid.UUID      `json:"id"`
}
