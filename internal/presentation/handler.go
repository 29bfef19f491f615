package presentation

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/josepro66/CONFIGURATOR-sub000/internal/application"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/domain"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/logger"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/pricing"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/presentation/helpers"
)

type OrdersHandler struct {
	svc     *application.Coordinator
	prices  *pricing.Authority
	limiter *IPRateLimiter
}

func NewOrdersHandler(svc *application.Coordinator, prices *pricing.Authority, limiter *IPRateLimiter) *OrdersHandler {
	return &OrdersHandler{svc: svc, prices: prices, limiter: limiter}
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(LimitBody)
		if h.limiter != nil {
			r.With(h.limiter.Middleware).Post("/orders", h.CreateOrder)
		} else {
			r.Post("/orders", h.CreateOrder)
		}
		r.Post("/orders/{ref}/capture", h.CaptureOrder)
		r.Post("/callbacks/{provider}", h.Callback)
	})
	r.Get("/orders/{ref}", h.GetOrder)
	r.Get("/orders/{ref}/checkout", h.Checkout)
	r.Get("/prices", h.Prices)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		helpers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

type createOrderRequest struct {
	Product       string              `json:"product"`
	Currency      string              `json:"currency"`
	Provider      string              `json:"provider"`
	Customization json.RawMessage     `json:"customization"`
	BuyerContact  domain.BuyerContact `json:"buyerContact"`
}

type orderResponse struct {
	ReferenceCode         string           `json:"referenceCode"`
	Status                domain.Status    `json:"status"`
	Provider              domain.Provider  `json:"provider"`
	Product               string           `json:"product"`
	Amount                string           `json:"amount"`
	Currency              string           `json:"currency"`
	ProviderTransactionID string           `json:"providerTransactionId,omitempty"`
	ProviderOrderID       string           `json:"providerOrderId,omitempty"`
	ApproveURL            string           `json:"approveUrl,omitempty"`
	Redirect              *domain.Redirect `json:"redirect,omitempty"`
	CreatedAt             time.Time        `json:"createdAt"`
	UpdatedAt             time.Time        `json:"updatedAt"`
}

func projection(o *domain.Order) orderResponse {
	return orderResponse{
		ReferenceCode:         o.ReferenceCode,
		Status:                o.Status,
		Provider:              o.Provider,
		Product:               o.Product,
		Amount:                o.Amount.StringFixed(2),
		Currency:              o.Currency,
		ProviderTransactionID: o.ProviderTransactionID,
		ProviderOrderID:       o.ProviderOrderID,
		ApproveURL:            o.ApproveURL,
		CreatedAt:             o.CreatedAt,
		UpdatedAt:             o.UpdatedAt,
	}
}

// Storefronts post either application/json or, through sendBeacon, a
// text/plain body holding the same JSON.
func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	mediatype, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediatype {
	case "application/json", "text/plain":
	default:
		helpers.HttpError(w, http.StatusUnsupportedMediaType, "unsupported content-type")
		return
	}

	var req createOrderRequest
	if err := helpers.DecodeJSON(r.Body, &req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			helpers.HttpError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		helpers.HttpError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	res, err := h.svc.Create(r.Context(), application.CreateOrderInput{
		Product:        req.Product,
		Currency:       req.Currency,
		Provider:       domain.Provider(req.Provider),
		Customization:  req.Customization,
		BuyerContact:   req.BuyerContact,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	out := projection(res.Order)
	out.Redirect = res.Redirect
	if res.RemoteOrder != nil {
		out.ProviderOrderID = res.RemoteOrder.ID
		out.ApproveURL = res.RemoteOrder.ApproveURL
	}
	status := http.StatusCreated
	if res.Resubmitted {
		status = http.StatusOK
	}
	helpers.WriteJSON(w, status, out)
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimSpace(chi.URLParam(r, "ref"))
	if ref == "" {
		helpers.HttpError(w, http.StatusBadRequest, "reference code is empty")
		return
	}
	o, err := h.svc.Get(r.Context(), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, projection(o))
}

func (h *OrdersHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	rd, err := h.svc.Redirect(r.Context(), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := renderCheckout(&buf, ref, rd); err != nil {
		logger.Error("checkout render failed", "reference", ref, "err", err)
		helpers.HttpError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *OrdersHandler) CaptureOrder(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	res, err := h.svc.Capture(r.Context(), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, projection(res.Order))
}

// Callback always acknowledges a known provider with 200. What happened to the
// callback is recorded in the webhook log and the service logs only.
func (h *OrdersHandler) Callback(w http.ResponseWriter, r *http.Request) {
	p := domain.Provider(strings.ToLower(chi.URLParam(r, "provider")))
	if !h.svc.Accepts(p) {
		helpers.HttpError(w, http.StatusNotFound, "unknown provider")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Warn("callback body unreadable", "provider", p, "err", err)
	}
	res, err := h.svc.HandleCallback(r.Context(), domain.Callback{
		Provider:    p,
		ContentType: r.Header.Get("Content-Type"),
		Header:      r.Header.Clone(),
		Body:        body,
	})
	if err != nil {
		logger.Error("callback processing failed", "provider", p, "verdict", res.Verdict, "err", err)
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *OrdersHandler) Prices(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"prices": h.prices.Entries()})
}

// writeError maps domain errors to responses. Only validation and pricing
// messages reach the buyer.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		helpers.HttpError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnsupportedPricing):
		helpers.HttpError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		helpers.HttpError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, domain.ErrProviderUnavailable):
		logger.Warn("provider unavailable", "err", err)
		helpers.HttpError(w, http.StatusServiceUnavailable, "payment provider unavailable, try again")
	default:
		logger.Error("request failed", "err", err)
		helpers.HttpError(w, http.StatusInternalServerError, "internal error")
	}
}
