package domain

import "context"

// AuthorizeRequest asks the payment provider to approve a settlement.
// RequestID is the caller's deduplication handle: the provider must return the
// same transaction reference for a repeated RequestID (duplicate callback).
type AuthorizeRequest struct {
	RequestID string
	ChargeNo  string
	Amount    int64
	Method    PaymentMethod
}

// AuthorizeResponse is the provider's decision.
type AuthorizeResponse struct {
	TransactionNo string
	Approved      bool
	Message       string
}

// PaymentProvider abstracts the external payment gateway. The engine only
// needs synchronous authorization; settlement state lives in the Charge.
type PaymentProvider interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResponse, error)
}
