package http

import (
	"time"

	"github.com/google/uuid"

	"github.com/carelink/hospital-settlement/internal/settlement_service/domain"
)

type SourceRefDTO struct {
	Type string `json:"type" validate:"required,oneof=REGISTRATION PRESCRIPTION"`
	ID   string `json:"id" validate:"required,uuid"`
}

type CreateChargeRequestDTO struct {
	PatientID     string         `json:"patient_id" validate:"required,uuid"`
	Sources       []SourceRefDTO `json:"sources" validate:"required,min=1,dive"`
	DeclaredTotal *int64         `json:"declared_total,omitempty"`
}

type ProcessPaymentRequestDTO struct {
	PaymentMethod string `json:"payment_method" validate:"required,oneof=CASH CARD MOBILE INSURANCE"`
	// TransactionNo is the gateway's reference. When absent the mock provider
	// authorizes the payment and issues one; RequestID then deduplicates
	// repeated authorization attempts.
	TransactionNo string `json:"transaction_no,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
}

type ProcessRefundRequestDTO struct {
	Reason           string `json:"reason" validate:"required,max=500"`
	RestoreInventory bool   `json:"restore_inventory"`
}

type ChargeDetailDTO struct {
	ID         string `json:"id"`
	ItemType   string `json:"item_type"`
	ItemRef    string `json:"item_ref"`
	ItemName   string `json:"item_name"`
	ItemAmount int64  `json:"item_amount"`
	Quantity   int32  `json:"quantity,omitempty"`
}

type ChargeResponseDTO struct {
	ChargeNo      string            `json:"charge_no"`
	PatientID     string            `json:"patient_id"`
	ChargeType    string            `json:"charge_type"`
	TotalAmount   int64             `json:"total_amount"`
	ActualAmount  int64             `json:"actual_amount"`
	Status        string            `json:"status"`
	PaymentMethod *string           `json:"payment_method,omitempty"`
	TransactionNo *string           `json:"transaction_no,omitempty"`
	RefundReason  *string           `json:"refund_reason,omitempty"`
	PaidAt        *time.Time        `json:"paid_at,omitempty"`
	RefundedAt    *time.Time        `json:"refunded_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	Details       []ChargeDetailDTO `json:"details,omitempty"`
}

type ListChargesResponseDTO struct {
	Charges []ChargeResponseDTO `json:"charges"`
	Total   int                 `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

func toChargeResponse(c *domain.Charge) ChargeResponseDTO {
	resp := ChargeResponseDTO{
		ChargeNo:      c.ChargeNo,
		PatientID:     c.PatientID.String(),
		ChargeType:    string(c.ChargeType),
		TotalAmount:   c.TotalAmount,
		ActualAmount:  c.ActualAmount,
		Status:        c.Status.String(),
		RefundReason:  c.RefundReason,
		TransactionNo: c.TransactionNo,
		PaidAt:        c.PaidAt,
		RefundedAt:    c.RefundedAt,
		CreatedAt:     c.CreatedAt,
	}
	if c.PaymentMethod != nil {
		method := string(*c.PaymentMethod)
		resp.PaymentMethod = &method
	}
	for _, d := range c.Details {
		resp.Details = append(resp.Details, ChargeDetailDTO{
			ID:         d.ID.String(),
			ItemType:   string(d.ItemType),
			ItemRef:    d.ItemRef.String(),
			ItemName:   d.ItemName,
			ItemAmount: d.ItemAmount,
			Quantity:   d.Quantity,
		})
	}
	return resp
}

func parseSourceRefs(dtos []SourceRefDTO) ([]domain.SourceRef, error) {
	refs := make([]domain.SourceRef, 0, len(dtos))
	for _, dto := range dtos {
		id, err := uuid.Parse(dto.ID)
		if err != nil {
			return nil, err
		}
		refs = append(refs, domain.SourceRef{Type: domain.ChargeItemType(dto.Type), ID: id})
	}
	return refs, nil
}
