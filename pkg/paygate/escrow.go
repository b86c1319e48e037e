package paygate

import (
	"context"
	"net/http"
)

// EscrowStatus values reported by the gateway.
const (
	EscrowPending  = "pending"
	EscrowActive   = "active"
	EscrowDeclined = "declined"
)

type CreateEscrowRequest struct {
	ReferenceID string `json:"reference_id"` // contract ID on our side
	PayerID     string `json:"payer_id"`
	PayeeID     string `json:"payee_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type Escrow struct {
	ID          string `json:"id"`
	ReferenceID string `json:"reference_id"`
	Status      string `json:"status"`
}

// CreateEscrow opens an escrow for a contract. The gateway confirms
// asynchronously via webhook; the returned escrow is usually pending.
// Keyed on ReferenceID gateway-side, so re-creation is idempotent and safe
// to retry.
func (c *Client) CreateEscrow(ctx context.Context, req CreateEscrowRequest) (*Escrow, error) {
	var out Escrow
	err := c.call(ctx, true, func() error {
		return c.doRequest(ctx, http.MethodPost, "/v1/escrows", req, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetEscrow fetches the current gateway-side state of an escrow.
func (c *Client) GetEscrow(ctx context.Context, escrowID string) (*Escrow, error) {
	var out Escrow
	err := c.call(ctx, true, func() error {
		return c.doRequest(ctx, http.MethodGet, "/v1/escrows/"+escrowID, nil, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ReleaseEscrow cancels or refunds an escrow. Used by compensation flows when
// a downstream step fails after payment setup.
func (c *Client) ReleaseEscrow(ctx context.Context, escrowID string) error {
	return c.call(ctx, false, func() error {
		return c.doRequest(ctx, http.MethodDelete, "/v1/escrows/"+escrowID, nil, nil)
	})
}
