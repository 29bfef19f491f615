package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCompleted Status = "COMPLETED"
	StatusDenied    Status = "DENIED"
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCompleted, StatusDenied:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	return s == StatusPending || s.Terminal()
}

type Provider string

const (
	ProviderPayU   Provider = "payu"
	ProviderPayPal Provider = "paypal"
)

func (p Provider) Valid() bool {
	return p == ProviderPayU || p == ProviderPayPal
}

type BuyerContact struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type Order struct {
	ReferenceCode         string          `json:"reference_code"`
	Product               string          `json:"product"`
	Currency              string          `json:"currency"`
	Amount                decimal.Decimal `json:"amount"`
	Customization         json.RawMessage `json:"customization,omitempty"`
	BuyerContact          BuyerContact    `json:"buyer_contact"`
	Status                Status          `json:"status"`
	Provider              Provider        `json:"provider"`
	ProviderOrderID       string          `json:"provider_order_id,omitempty"`
	ApproveURL            string          `json:"approve_url,omitempty"`
	ProviderTransactionID string          `json:"provider_transaction_id,omitempty"`
	StatusReason          string          `json:"status_reason,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Transition describes a single PENDING -> terminal move. Stores apply it
// only while the stored status is still PENDING.
type Transition struct {
	ReferenceCode         string
	To                    Status
	ProviderTransactionID string
	Reason                string
}

// Redirect is the hidden-field form the storefront posts to a hosted checkout.
type Redirect struct {
	EndpointURL string            `json:"endpointUrl"`
	Method      string            `json:"method"`
	FormFields  map[string]string `json:"formFields"`
}

// RemoteOrder is the provider-side order a capture-style checkout is built on.
type RemoteOrder struct {
	ID         string `json:"id"`
	ApproveURL string `json:"approveUrl,omitempty"`
}

// OrderEvent announces that an order reached a terminal status.
type OrderEvent struct {
	ReferenceCode         string          `json:"reference_code"`
	Status                Status          `json:"status"`
	Provider              Provider        `json:"provider"`
	Product               string          `json:"product"`
	Currency              string          `json:"currency"`
	Amount                decimal.Decimal `json:"amount"`
	BuyerContact          BuyerContact    `json:"buyer_contact"`
	ProviderTransactionID string          `json:"provider_transaction_id,omitempty"`
	OccurredAt            time.Time       `json:"occurred_at"`
}

func NewOrderEvent(o *Order) OrderEvent {
	return OrderEvent{
		ReferenceCode:         o.ReferenceCode,
		Status:                o.Status,
		Provider:              o.Provider,
		Product:               o.Product,
		Currency:              o.Currency,
		Amount:                o.Amount,
		BuyerContact:          o.BuyerContact,
		ProviderTransactionID: o.ProviderTransactionID,
		OccurredAt:            o.UpdatedAt,
	}
}
