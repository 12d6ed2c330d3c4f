package domain

import (
	"time"

	"github.com/google/uuid"
)

// Medicine is the inventory item whose stock the refund processor restores.
type Medicine struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Stock     int32     `json:"stock"`
	UnitPrice int64     `json:"unit_price"` // Minor units.
	UpdatedAt time.Time `json:"updated_at"`
}

// InventoryAdjustment records one stock delta. Positive deltas restore stock
// (refund of undispensed items); negative deltas are consumed at dispense time.
type InventoryAdjustment struct {
	ID         uuid.UUID `json:"id"`
	MedicineID uuid.UUID `json:"medicine_id"`
	Delta      int32     `json:"delta"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}
