package domain

import "time"

// DailySettlementReport aggregates finalized charges over one calendar day.
// Read-only; built from whatever the write path has committed.
type DailySettlementReport struct {
	Date           time.Time `json:"date"`
	TotalCount     int64     `json:"total_count"`
	PendingCount   int64     `json:"pending_count"`
	PaidCount      int64     `json:"paid_count"`
	RefundedCount  int64     `json:"refunded_count"`
	CancelledCount int64     `json:"cancelled_count"`
	PaidAmount     int64     `json:"paid_amount"`     // Sum of actual_amount over PAID charges only.
	RefundedAmount int64     `json:"refunded_amount"` // Sum of actual_amount over REFUNDED charges.
}
