package paypal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/josepro66/CONFIGURATOR-sub000/internal/domain"
)

const (
	eventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	eventCaptureDenied    = "PAYMENT.CAPTURE.DENIED"
	eventCaptureDeclined  = "PAYMENT.CAPTURE.DECLINED"
)

type webhookEvent struct {
	ID           string `json:"id"`
	EventType    string `json:"event_type"`
	ResourceType string `json:"resource_type"`
	Resource     struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		CustomID string `json:"custom_id"`
		Amount   *money `json:"amount"`
	} `json:"resource"`
}

type verifyRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

// HandleCallback verifies a PayPal webhook with PayPal's own verification
// endpoint and maps capture events to outcomes. Unknown event types verify to
// a NoOp event.
func (c *Client) HandleCallback(ctx context.Context, cb domain.Callback) (domain.NormalizedEvent, error) {
	ev := domain.NormalizedEvent{Provider: domain.ProviderPayPal, Outcome: domain.OutcomeNoOp}

	var we webhookEvent
	if err := json.Unmarshal(cb.Body, &we); err != nil {
		return ev, fmt.Errorf("%w: %v", domain.ErrMalformedCallback, err)
	}
	if we.EventType == "" {
		return ev, fmt.Errorf("%w: missing event_type", domain.ErrMalformedCallback)
	}
	ev.DeclaredType = we.EventType
	ev.ReferenceCode = we.Resource.CustomID
	ev.ProviderTransactionID = we.Resource.ID

	if err := c.verifyWebhook(ctx, cb); err != nil {
		return ev, err
	}

	switch we.EventType {
	case eventCaptureCompleted:
		ev.Outcome = domain.OutcomeApproved
	case eventCaptureDenied, eventCaptureDeclined:
		ev.Outcome = domain.OutcomeDenied
		ev.Reason = "capture " + we.Resource.Status
	default:
		return ev, nil
	}
	if we.Resource.Amount != nil {
		if amt, err := decimal.NewFromString(we.Resource.Amount.Value); err == nil {
			ev.Amount = decimal.NewNullDecimal(amt)
			ev.Currency = we.Resource.Amount.CurrencyCode
		}
	}
	return ev, nil
}

func (c *Client) verifyWebhook(ctx context.Context, cb domain.Callback) error {
	h := cb.Header
	if h == nil {
		h = http.Header{}
	}
	req := verifyRequest{
		AuthAlgo:         h.Get("Paypal-Auth-Algo"),
		CertURL:          h.Get("Paypal-Cert-Url"),
		TransmissionID:   h.Get("Paypal-Transmission-Id"),
		TransmissionSig:  h.Get("Paypal-Transmission-Sig"),
		TransmissionTime: h.Get("Paypal-Transmission-Time"),
		WebhookID:        c.cfg.WebhookID,
		WebhookEvent:     json.RawMessage(cb.Body),
	}
	if req.AuthAlgo == "" || req.CertURL == "" || req.TransmissionID == "" || req.TransmissionSig == "" || req.TransmissionTime == "" {
		return fmt.Errorf("%w: missing transmission headers", domain.ErrUntrustedCallback)
	}
	if req.WebhookID == "" {
		return fmt.Errorf("%w: no webhook id configured", domain.ErrUntrustedCallback)
	}

	tok, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	status, body, err := c.call(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", tok, "", req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		if status >= 500 || status == http.StatusUnauthorized {
			return unavailable("verify webhook: %s", describe(status, body))
		}
		return fmt.Errorf("%w: verify webhook: %s", domain.ErrUntrustedCallback, describe(status, body))
	}
	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return unavailable("verify webhook: bad response")
	}
	if out.VerificationStatus != "SUCCESS" {
		return fmt.Errorf("%w: verification_status %q", domain.ErrUntrustedCallback, out.VerificationStatus)
	}
	return nil
}
