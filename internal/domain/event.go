package domain

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
	OutcomeDenied   Outcome = "denied"
	OutcomeNoOp     Outcome = "noop"
)

// NormalizedEvent is the only shape provider callbacks reach the coordinator in.
// Adapters build it; nothing downstream looks at raw provider fields.
type NormalizedEvent struct {
	Provider              Provider
	ReferenceCode         string
	Outcome               Outcome
	ProviderTransactionID string
	// DeclaredType is the provider's own event/state label, kept for the webhook log.
	DeclaredType string
	// Reason is diagnostic only.
	Reason string
	// Amount and Currency are set when the provider declares them.
	Amount   decimal.NullDecimal
	Currency string
}

// TargetStatus maps an outcome to the terminal status it settles an order of
// the given provider into. NoOp (and outcomes a provider never emits) return
// false.
func TargetStatus(p Provider, o Outcome) (Status, bool) {
	switch o {
	case OutcomeApproved:
		if p == ProviderPayPal {
			return StatusCompleted, true
		}
		return StatusApproved, true
	case OutcomeRejected:
		return StatusRejected, true
	case OutcomeDenied:
		if p == ProviderPayPal {
			return StatusDenied, true
		}
	}
	return "", false
}

// Callback is an inbound provider notification as received over HTTP.
type Callback struct {
	Provider    Provider
	ContentType string
	Header      http.Header
	Body        []byte
}

type Verdict string

const (
	VerdictTrusted   Verdict = "trusted"
	VerdictUntrusted Verdict = "untrusted"
	VerdictMalformed Verdict = "malformed"
	// VerdictUnverified marks callbacks whose verification could not be run.
	VerdictUnverified Verdict = "unverified"
)

// WebhookRecord is an append-only audit row for every inbound callback.
type WebhookRecord struct {
	ID            string    `json:"id"`
	Provider      Provider  `json:"provider"`
	EventType     string    `json:"event_type"`
	ReferenceCode string    `json:"reference_code,omitempty"`
	Payload       []byte    `json:"payload"`
	PayloadDigest string    `json:"payload_digest"`
	Verdict       Verdict   `json:"verdict"`
	ReceivedAt    time.Time `json:"received_at"`
}
