package paypal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/josepro66/CONFIGURATOR-sub000/internal/domain"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/logger"
)

type money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id"`
	CustomID    string `json:"custom_id"`
	Description string `json:"description,omitempty"`
	Amount      money  `json:"amount"`
}

type applicationContext struct {
	ReturnURL  string `json:"return_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
	UserAction string `json:"user_action,omitempty"`
}

type createOrderRequest struct {
	Intent             string              `json:"intent"`
	PurchaseUnits      []purchaseUnit      `json:"purchase_units"`
	ApplicationContext *applicationContext `json:"application_context,omitempty"`
}

type link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

type orderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Links         []link `json:"links"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		Payments    struct {
			Captures []capture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type capture struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	CustomID string `json:"custom_id"`
	Amount   *money `json:"amount"`
}

// CreateRemoteOrder registers o with PayPal using the server-computed amount.
// Retries reuse the same PayPal-Request-Id so PayPal returns the first result.
func (c *Client) CreateRemoteOrder(ctx context.Context, o *domain.Order) (domain.RemoteOrder, error) {
	if o.Provider != domain.ProviderPayPal {
		return domain.RemoteOrder{}, fmt.Errorf("%w: order %s is not a paypal order", domain.ErrValidation, o.ReferenceCode)
	}
	req := createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: o.ReferenceCode,
			CustomID:    o.ReferenceCode,
			Description: "Custom " + o.Product,
			Amount:      money{CurrencyCode: o.Currency, Value: o.Amount.StringFixed(2)},
		}},
	}
	if c.cfg.ReturnURL != "" || c.cfg.CancelURL != "" {
		req.ApplicationContext = &applicationContext{ReturnURL: c.cfg.ReturnURL, CancelURL: c.cfg.CancelURL, UserAction: "PAY_NOW"}
	}

	var out orderResponse
	err := retry.Do(ctx, c.backoff(2), func(ctx context.Context) error {
		tok, err := c.accessToken(ctx)
		if err != nil {
			return err
		}
		status, body, err := c.call(ctx, http.MethodPost, "/v2/checkout/orders", tok, "create-"+o.ReferenceCode, req)
		switch {
		case err != nil:
			return retry.RetryableError(err)
		case status == http.StatusUnauthorized:
			c.invalidateToken(tok)
			return retry.RetryableError(unavailable("create order: token rejected"))
		case status >= 500:
			return retry.RetryableError(unavailable("create order: %s", describe(status, body)))
		case status != http.StatusOK && status != http.StatusCreated:
			return fmt.Errorf("paypal: create order rejected: %s", describe(status, body))
		}
		if err := json.Unmarshal(body, &out); err != nil || out.ID == "" {
			return unavailable("create order: bad response")
		}
		return nil
	})
	if err != nil {
		return domain.RemoteOrder{}, err
	}

	ro := domain.RemoteOrder{ID: out.ID}
	for _, l := range out.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			ro.ApproveURL = l.Href
			break
		}
	}
	return ro, nil
}

// Capture issues that mean the buyer has not finished approving yet. The order
// stays capturable, so these are not settled.
var awaitingBuyer = map[string]bool{
	"ORDER_NOT_APPROVED":    true,
	"PAYER_ACTION_REQUIRED": true,
}

// Capture finalizes a buyer-approved PayPal order. The caller's context may
// abort before the first capture request goes out; after that the attempts run
// to completion. Retries exhausted after a request was sent settle as Rejected.
// Capturing before the buyer approved returns ErrValidation and no outcome.
func (c *Client) Capture(ctx context.Context, referenceCode, providerOrderID string) (domain.NormalizedEvent, error) {
	ev := domain.NormalizedEvent{
		Provider:      domain.ProviderPayPal,
		ReferenceCode: referenceCode,
		Outcome:       domain.OutcomeRejected,
		DeclaredType:  "capture",
	}
	if providerOrderID == "" {
		return ev, fmt.Errorf("%w: order %s has no paypal order id", domain.ErrValidation, referenceCode)
	}
	if err := ctx.Err(); err != nil {
		return ev, unavailable("capture not started: %v", err)
	}

	tok, err := c.accessToken(ctx)
	if err != nil {
		return ev, err
	}

	sctx := context.WithoutCancel(ctx)
	path := "/v2/checkout/orders/" + providerOrderID + "/capture"
	attempts := 0
	var (
		status int
		body   []byte
	)
	err = retry.Do(sctx, c.backoff(c.cfg.CaptureRetries), func(ctx context.Context) error {
		attempts++
		var cerr error
		status, body, cerr = c.call(ctx, http.MethodPost, path, tok, "capture-"+providerOrderID, nil)
		switch {
		case cerr != nil:
			return retry.RetryableError(cerr)
		case status == http.StatusUnauthorized:
			c.invalidateToken(tok)
			fresh, terr := c.accessToken(ctx)
			if terr != nil {
				return retry.RetryableError(terr)
			}
			tok = fresh
			return retry.RetryableError(unavailable("capture: token rejected"))
		case status >= 500:
			return retry.RetryableError(unavailable("capture: %s", describe(status, body)))
		}
		return nil
	})
	if err != nil {
		ev.Reason = fmt.Sprintf("provider unavailable after %d attempts: %v", attempts, err)
		logger.Error("paypal capture gave up", "reference", referenceCode, "paypal_order", providerOrderID, "attempts", attempts, "err", err)
		return ev, nil
	}

	if status == http.StatusUnprocessableEntity {
		for _, issue := range issues(body) {
			if awaitingBuyer[issue] {
				logger.Info("paypal capture before buyer approval", "reference", referenceCode, "paypal_order", providerOrderID, "issue", issue)
				return ev, fmt.Errorf("%w: paypal order %s is not approved by the buyer yet (%s)", domain.ErrValidation, providerOrderID, issue)
			}
		}
	}
	if status != http.StatusOK && status != http.StatusCreated {
		ev.Reason = describe(status, body)
		return ev, nil
	}

	var out orderResponse
	if err := json.Unmarshal(body, &out); err != nil {
		ev.Reason = "unreadable capture response"
		return ev, nil
	}
	ev.DeclaredType = "capture:" + out.Status
	var cp *capture
	for i := range out.PurchaseUnits {
		if caps := out.PurchaseUnits[i].Payments.Captures; len(caps) > 0 {
			cp = &caps[0]
			break
		}
	}
	if out.Status != "COMPLETED" || cp == nil || cp.Status != "COMPLETED" {
		ev.Reason = "order status " + out.Status
		if cp != nil {
			ev.Reason += ", capture status " + cp.Status
		}
		return ev, nil
	}

	ev.Outcome = domain.OutcomeApproved
	ev.ProviderTransactionID = cp.ID
	if cp.Amount != nil {
		if amt, err := decimal.NewFromString(cp.Amount.Value); err == nil {
			ev.Amount = decimal.NewNullDecimal(amt)
			ev.Currency = cp.Amount.CurrencyCode
		}
	}
	return ev, nil
}
