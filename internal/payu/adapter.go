// Package payu adapts orders to the PayU WebCheckout redirect flow and turns
// PayU confirmations back into normalized events.
package payu

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/josepro66/CONFIGURATOR-sub000/internal/domain"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/signature"
)

const DefaultCheckoutURL = "https://checkout.payulatam.com/ppp-web-gateway-payu/"

// state_pol values sent in confirmations.
const (
	stateApproved = "4"
	stateExpired  = "5"
	stateDeclined = "6"
	statePending  = "7"
	stateError    = "104"
)

type Config struct {
	AccountID       string
	CheckoutURL     string
	ResponseURL     string
	ConfirmationURL string
	Test            bool
}

type Adapter struct {
	cfg    Config
	signer *signature.Signer
}

func NewAdapter(cfg Config, signer *signature.Signer) *Adapter {
	if cfg.CheckoutURL == "" {
		cfg.CheckoutURL = DefaultCheckoutURL
	}
	return &Adapter{cfg: cfg, signer: signer}
}

// BuildRedirect describes the hosted-checkout form for o. It makes no network call.
func (a *Adapter) BuildRedirect(o *domain.Order) (domain.Redirect, error) {
	if o == nil || o.ReferenceCode == "" {
		return domain.Redirect{}, fmt.Errorf("%w: order without reference code", domain.ErrValidation)
	}
	if o.Provider != domain.ProviderPayU {
		return domain.Redirect{}, fmt.Errorf("%w: order %s is not a payu order", domain.ErrValidation, o.ReferenceCode)
	}

	test := "0"
	if a.cfg.Test {
		test = "1"
	}
	fields := map[string]string{
		"merchantId":      a.signer.MerchantID(),
		"accountId":       a.cfg.AccountID,
		"description":     "Custom " + o.Product,
		"referenceCode":   o.ReferenceCode,
		"amount":          signature.FormatAmount(o.Amount),
		"tax":             "0",
		"taxReturnBase":   "0",
		"currency":        o.Currency,
		"signature":       a.signer.Sign(o.ReferenceCode, o.Amount, o.Currency),
		"test":            test,
		"responseUrl":     a.cfg.ResponseURL,
		"confirmationUrl": a.cfg.ConfirmationURL,
	}
	if o.BuyerContact.Email != "" {
		fields["buyerEmail"] = o.BuyerContact.Email
	}
	if o.BuyerContact.Name != "" {
		fields["buyerFullName"] = o.BuyerContact.Name
	}
	return domain.Redirect{EndpointURL: a.cfg.CheckoutURL, Method: "POST", FormFields: fields}, nil
}

// HandleCallback parses and verifies a confirmation. The returned event has
// DeclaredType and ReferenceCode filled whenever the body parsed, even when the
// error is ErrUntrustedCallback, so the caller can log what was claimed.
func (a *Adapter) HandleCallback(_ context.Context, cb domain.Callback) (domain.NormalizedEvent, error) {
	ev := domain.NormalizedEvent{Provider: domain.ProviderPayU, Outcome: domain.OutcomeNoOp}

	form, err := url.ParseQuery(string(cb.Body))
	if err != nil {
		return ev, fmt.Errorf("%w: %v", domain.ErrMalformedCallback, err)
	}
	get := func(k string) string { return strings.TrimSpace(form.Get(k)) }

	ev.ReferenceCode = get("reference_sale")
	ev.DeclaredType = get("state_pol")
	ev.ProviderTransactionID = get("transaction_id")
	ev.Reason = get("response_message_pol")
	ev.Currency = strings.ToUpper(get("currency"))

	merchant, value, sign := get("merchant_id"), get("value"), get("sign")
	if ev.ReferenceCode == "" || ev.DeclaredType == "" || merchant == "" || value == "" || ev.Currency == "" || sign == "" {
		return ev, fmt.Errorf("%w: missing confirmation fields", domain.ErrMalformedCallback)
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return ev, fmt.Errorf("%w: value %q", domain.ErrMalformedCallback, value)
	}
	ev.Amount = decimal.NewNullDecimal(amount)

	if err := a.signer.Verify(signature.Fields{
		MerchantID:    merchant,
		ReferenceCode: ev.ReferenceCode,
		Amount:        amount,
		Currency:      ev.Currency,
	}, sign); err != nil {
		return ev, err
	}

	switch ev.DeclaredType {
	case stateApproved:
		ev.Outcome = domain.OutcomeApproved
	case stateDeclined, stateExpired, stateError:
		ev.Outcome = domain.OutcomeRejected
	case statePending:
		ev.Outcome = domain.OutcomeNoOp
	default:
		ev.Outcome = domain.OutcomeNoOp
		ev.Reason = "unknown state_pol " + ev.DeclaredType
	}
	return ev, nil
}
