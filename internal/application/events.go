package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/josepro66/CONFIGURATOR-sub000/internal/domain"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/logger"
)

// NoOp reasons reported in ApplyResult.Reason.
const (
	ReasonNoOpEvent        = "noop_event"
	ReasonUnknownReference = "unknown_reference"
	ReasonProviderMismatch = "provider_mismatch"
	ReasonAmountMismatch   = "amount_mismatch"
	ReasonAlreadyTerminal  = "already_terminal"
)

type ApplyResult struct {
	Order *domain.Order
	// Applied is true only for the call that persisted the terminal status.
	Applied bool
	Reason  string
}

// ApplyEvent applies a verified event to its order. Anything that cannot move
// a PENDING order is a NoOp, never an error.
func (c *Coordinator) ApplyEvent(ctx context.Context, ev domain.NormalizedEvent) (ApplyResult, error) {
	if ev.Outcome == domain.OutcomeNoOp {
		logger.Info("event ignored", "provider", ev.Provider, "reference", ev.ReferenceCode, "type", ev.DeclaredType, "reason", ev.Reason)
		return ApplyResult{Reason: ReasonNoOpEvent}, nil
	}
	target, ok := domain.TargetStatus(ev.Provider, ev.Outcome)
	if !ok {
		logger.Warn("outcome not valid for provider", "provider", ev.Provider, "outcome", ev.Outcome, "reference", ev.ReferenceCode)
		return ApplyResult{Reason: ReasonNoOpEvent}, nil
	}

	o, err := c.Get(ctx, ev.ReferenceCode)
	if errors.Is(err, domain.ErrOrderNotFound) {
		logger.Warn("event for unknown order", "provider", ev.Provider, "reference", ev.ReferenceCode, "outcome", ev.Outcome)
		return ApplyResult{Reason: ReasonUnknownReference}, nil
	}
	if err != nil {
		return ApplyResult{}, err
	}

	if o.Provider != ev.Provider {
		logger.Error("event provider does not match order", "reference", o.ReferenceCode, "order_provider", o.Provider, "event_provider", ev.Provider)
		return ApplyResult{Order: o, Reason: ReasonProviderMismatch}, nil
	}
	if mismatch := amountMismatch(o, ev); mismatch != "" {
		logger.Error("event amount does not match order", "reference", o.ReferenceCode, "detail", mismatch, "outcome", ev.Outcome)
		return ApplyResult{Order: o, Reason: ReasonAmountMismatch}, nil
	}
	if o.Status.Terminal() {
		logger.Info("event for settled order", "reference", o.ReferenceCode, "status", o.Status, "outcome", ev.Outcome)
		return ApplyResult{Order: o, Reason: ReasonAlreadyTerminal}, nil
	}

	updated, err := c.store.Transition(ctx, domain.Transition{
		ReferenceCode:         o.ReferenceCode,
		To:                    target,
		ProviderTransactionID: ev.ProviderTransactionID,
		Reason:                ev.Reason,
	})
	if errors.Is(err, domain.ErrIllegalTransition) {
		if updated == nil {
			updated = o
		}
		logger.Info("lost transition race", "reference", o.ReferenceCode, "status", updated.Status, "wanted", target)
		c.remember(updated)
		return ApplyResult{Order: updated, Reason: ReasonAlreadyTerminal}, nil
	}
	if err != nil {
		logger.Warn("transition failed", "reference", o.ReferenceCode, "to", target, "err", err)
		return ApplyResult{}, err
	}

	logger.Info("order settled", "reference", updated.ReferenceCode, "status", updated.Status, "provider_tx", updated.ProviderTransactionID)
	c.remember(updated)
	c.notify(updated)
	return ApplyResult{Order: updated, Applied: true}, nil
}

func amountMismatch(o *domain.Order, ev domain.NormalizedEvent) string {
	if ev.Amount.Valid && !ev.Amount.Decimal.Equal(o.Amount) {
		return fmt.Sprintf("amount %s, expected %s", ev.Amount.Decimal.String(), o.Amount.StringFixed(2))
	}
	if ev.Currency != "" && !strings.EqualFold(ev.Currency, o.Currency) {
		return fmt.Sprintf("currency %s, expected %s", ev.Currency, o.Currency)
	}
	return ""
}

type CallbackResult struct {
	Verdict   domain.Verdict
	Duplicate bool
	Event     domain.NormalizedEvent
	// Apply is set for trusted callbacks only.
	Apply *ApplyResult
}

func (c *Coordinator) callbackHandler(p domain.Provider) CallbackHandler {
	switch p {
	case domain.ProviderPayU:
		if c.payu != nil {
			return c.payu
		}
	case domain.ProviderPayPal:
		if c.paypal != nil {
			return c.paypal
		}
	}
	return nil
}

// Accepts reports whether callbacks for p can be handled.
func (c *Coordinator) Accepts(p domain.Provider) bool {
	return c.callbackHandler(p) != nil
}

// HandleCallback verifies, records and applies one inbound provider callback.
// Every callback is written to the webhook log whatever its verdict; only
// trusted ones reach ApplyEvent.
func (c *Coordinator) HandleCallback(ctx context.Context, cb domain.Callback) (CallbackResult, error) {
	h := c.callbackHandler(cb.Provider)
	if h == nil {
		return CallbackResult{}, fmt.Errorf("%w: unknown provider %q", domain.ErrValidation, cb.Provider)
	}

	ev, verr := h.HandleCallback(ctx, cb)
	ev.Provider = cb.Provider
	res := CallbackResult{Verdict: verdictOf(verr), Event: ev}

	// the record and the transition must not be lost if the provider hangs up
	ctx = context.WithoutCancel(ctx)
	dup, err := c.store.AppendWebhook(ctx, &domain.WebhookRecord{
		Provider:      cb.Provider,
		EventType:     ev.DeclaredType,
		ReferenceCode: ev.ReferenceCode,
		Payload:       cb.Body,
		Verdict:       res.Verdict,
		ReceivedAt:    time.Now().UTC(),
	})
	if err != nil {
		logger.Error("webhook log append failed", "provider", cb.Provider, "reference", ev.ReferenceCode, "err", err)
		return res, err
	}
	res.Duplicate = dup
	if dup {
		logger.Info("duplicate callback delivery", "provider", cb.Provider, "reference", ev.ReferenceCode, "type", ev.DeclaredType)
	}

	switch res.Verdict {
	case domain.VerdictUntrusted:
		logger.Error("untrusted callback discarded", "provider", cb.Provider, "reference", ev.ReferenceCode, "type", ev.DeclaredType, "err", verr)
		return res, nil
	case domain.VerdictMalformed:
		logger.Warn("malformed callback discarded", "provider", cb.Provider, "err", verr)
		return res, nil
	case domain.VerdictUnverified:
		logger.Error("callback could not be verified", "provider", cb.Provider, "reference", ev.ReferenceCode, "type", ev.DeclaredType, "err", verr)
		return res, nil
	}

	ar, err := c.ApplyEvent(ctx, ev)
	if err != nil {
		return res, err
	}
	res.Apply = &ar
	return res, nil
}

func verdictOf(err error) domain.Verdict {
	switch {
	case err == nil:
		return domain.VerdictTrusted
	case errors.Is(err, domain.ErrMalformedCallback):
		return domain.VerdictMalformed
	case errors.Is(err, domain.ErrUntrustedCallback):
		return domain.VerdictUntrusted
	}
	return domain.VerdictUnverified
}
