package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josepro66/CONFIGURATOR-sub000/internal/domain"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/logger"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/repository"
)

type Pricer interface {
	Price(product, currency string) (decimal.Decimal, error)
}

// CallbackHandler verifies a provider callback and normalizes it. On error the
// returned event still carries whatever the payload declared.
type CallbackHandler interface {
	HandleCallback(ctx context.Context, cb domain.Callback) (domain.NormalizedEvent, error)
}

// RedirectProvider is the redirect-style checkout (PayU).
type RedirectProvider interface {
	CallbackHandler
	BuildRedirect(o *domain.Order) (domain.Redirect, error)
}

// CaptureProvider is the capture-style checkout (PayPal).
type CaptureProvider interface {
	CallbackHandler
	CreateRemoteOrder(ctx context.Context, o *domain.Order) (domain.RemoteOrder, error)
	Capture(ctx context.Context, referenceCode, providerOrderID string) (domain.NormalizedEvent, error)
}

// Notifier receives orders that reached a terminal status. Delivery is best effort.
type Notifier interface {
	NotifyTerminal(ctx context.Context, o *domain.Order) error
}

type Options struct {
	Store  repository.Store
	Prices Pricer
	// PayU and PayPal may be nil when the provider is disabled.
	PayU          RedirectProvider
	PayPal        CaptureProvider
	Notifier      Notifier
	NotifyTimeout time.Duration
	// CacheSize bounds the terminal-order read cache. Defaults to 1024.
	CacheSize int
}

// Coordinator drives orders through PENDING -> terminal. Every status write
// goes through the store's compare-and-set, so it holds no per-order locks.
type Coordinator struct {
	store    repository.Store
	prices   Pricer
	payu     RedirectProvider
	paypal   CaptureProvider
	notifier Notifier
	notifyTO time.Duration

	// read cache of terminal orders; they never change. Oldest entries are
	// evicted first once cacheCap is reached.
	mu       sync.RWMutex
	terminal map[string]*domain.Order
	cached   []string
	cacheCap int

	wg sync.WaitGroup
}

func NewCoordinator(opts Options) *Coordinator {
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 10 * time.Second
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	return &Coordinator{
		store:    opts.Store,
		prices:   opts.Prices,
		payu:     opts.PayU,
		paypal:   opts.PayPal,
		notifier: opts.Notifier,
		notifyTO: opts.NotifyTimeout,
		terminal: make(map[string]*domain.Order, opts.CacheSize),
		cacheCap: opts.CacheSize,
	}
}

// namespace for reference codes derived from a storefront Idempotency-Key
var referenceNamespace = uuid.MustParse("6f1c2b5e-8d3a-4e7b-9a41-2c5d7e9f0b13")

type CreateOrderInput struct {
	Product        string
	Currency       string
	Provider       domain.Provider
	Customization  json.RawMessage
	BuyerContact   domain.BuyerContact
	IdempotencyKey string
}

type CreateResult struct {
	Order       *domain.Order
	Redirect    *domain.Redirect
	RemoteOrder *domain.RemoteOrder
	// Resubmitted is set when the order already existed for this reference code.
	Resubmitted bool
}

// Create prices and persists a PENDING order, then prepares the provider
// checkout for it. Resubmissions return the stored order.
func (c *Coordinator) Create(ctx context.Context, in CreateOrderInput) (CreateResult, error) {
	in, err := c.validate(in)
	if err != nil {
		return CreateResult{}, err
	}
	amount, err := c.prices.Price(in.Product, in.Currency)
	if err != nil {
		return CreateResult{}, err
	}

	ref := uuid.NewString()
	if in.IdempotencyKey != "" {
		ref = uuid.NewSHA1(referenceNamespace, []byte(in.IdempotencyKey)).String()
	}
	now := time.Now().UTC()
	order := &domain.Order{
		ReferenceCode: ref,
		Product:       in.Product,
		Currency:      in.Currency,
		Amount:        amount,
		Customization: in.Customization,
		BuyerContact:  in.BuyerContact,
		Status:        domain.StatusPending,
		Provider:      in.Provider,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	res := CreateResult{Order: order}
	if err := c.store.AddOrder(ctx, order); err != nil {
		if !errors.Is(err, domain.ErrOrderAlreadyExists) {
			logger.Warn("add order failed", "reference", ref, "err", err)
			return CreateResult{}, err
		}
		existing, gerr := c.store.GetOrder(ctx, ref)
		if gerr != nil {
			return CreateResult{}, gerr
		}
		logger.Info("order resubmitted", "reference", ref, "status", existing.Status)
		res = CreateResult{Order: existing, Resubmitted: true}
	} else {
		logger.Info("order created", "reference", ref, "product", order.Product, "currency", order.Currency, "amount", order.Amount.StringFixed(2), "provider", order.Provider)
	}

	if res.Order.Status.Terminal() {
		return res, nil
	}
	if err := c.prepareCheckout(ctx, &res); err != nil {
		return CreateResult{}, err
	}
	return res, nil
}

func (c *Coordinator) prepareCheckout(ctx context.Context, res *CreateResult) error {
	o := res.Order
	if c.callbackHandler(o.Provider) == nil {
		return fmt.Errorf("%w: provider %s is not enabled", domain.ErrValidation, o.Provider)
	}
	switch o.Provider {
	case domain.ProviderPayU:
		rd, err := c.payu.BuildRedirect(o)
		if err != nil {
			return err
		}
		res.Redirect = &rd
	case domain.ProviderPayPal:
		if o.ProviderOrderID != "" {
			res.RemoteOrder = &domain.RemoteOrder{ID: o.ProviderOrderID, ApproveURL: o.ApproveURL}
			return nil
		}
		remote, err := c.paypal.CreateRemoteOrder(ctx, o)
		if err != nil {
			logger.Warn("paypal create order failed", "reference", o.ReferenceCode, "err", err)
			return err
		}
		stored, err := c.store.SetProviderOrderID(context.WithoutCancel(ctx), o.ReferenceCode, remote)
		if err != nil {
			return err
		}
		if stored.ProviderOrderID != remote.ID {
			// a concurrent resubmission stored its remote order first
			remote = domain.RemoteOrder{ID: stored.ProviderOrderID, ApproveURL: stored.ApproveURL}
		}
		res.Order = stored
		res.RemoteOrder = &remote
	}
	return nil
}

func (c *Coordinator) Get(ctx context.Context, referenceCode string) (*domain.Order, error) {
	c.mu.RLock()
	if o, ok := c.terminal[referenceCode]; ok {
		c.mu.RUnlock()
		return o, nil
	}
	c.mu.RUnlock()

	o, err := c.store.GetOrder(ctx, referenceCode)
	if err != nil {
		return nil, err
	}
	c.remember(o)
	return o, nil
}

func (c *Coordinator) remember(o *domain.Order) {
	if o == nil || !o.Status.Terminal() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.terminal[o.ReferenceCode]; ok {
		return
	}
	if len(c.cached) >= c.cacheCap {
		delete(c.terminal, c.cached[0])
		c.cached = c.cached[1:]
	}
	c.terminal[o.ReferenceCode] = o
	c.cached = append(c.cached, o.ReferenceCode)
}

// Redirect rebuilds the hosted-checkout form of a pending PayU order.
func (c *Coordinator) Redirect(ctx context.Context, referenceCode string) (domain.Redirect, error) {
	o, err := c.Get(ctx, referenceCode)
	if err != nil {
		return domain.Redirect{}, err
	}
	if o.Provider != domain.ProviderPayU {
		return domain.Redirect{}, fmt.Errorf("%w: order %s is not a payu order", domain.ErrValidation, referenceCode)
	}
	if o.Status != domain.StatusPending {
		return domain.Redirect{}, fmt.Errorf("%w: order %s is %s", domain.ErrValidation, referenceCode, o.Status)
	}
	if c.payu == nil {
		return domain.Redirect{}, fmt.Errorf("%w: payu is not enabled", domain.ErrValidation)
	}
	return c.payu.BuildRedirect(o)
}

// Capture settles a buyer-approved PayPal order. The request context can only
// abort the call before PayPal is reached; the resulting transition is always
// written.
func (c *Coordinator) Capture(ctx context.Context, referenceCode string) (ApplyResult, error) {
	o, err := c.Get(ctx, referenceCode)
	if err != nil {
		return ApplyResult{}, err
	}
	if o.Provider != domain.ProviderPayPal {
		return ApplyResult{}, fmt.Errorf("%w: capture is only available for paypal orders", domain.ErrValidation)
	}
	if o.Status.Terminal() {
		return ApplyResult{Order: o, Reason: ReasonAlreadyTerminal}, nil
	}
	if c.paypal == nil {
		return ApplyResult{}, fmt.Errorf("%w: paypal is not enabled", domain.ErrValidation)
	}

	ev, err := c.paypal.Capture(ctx, referenceCode, o.ProviderOrderID)
	if err != nil {
		return ApplyResult{}, err
	}
	return c.ApplyEvent(context.WithoutCancel(ctx), ev)
}

// Wait blocks until in-flight notifications finish.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) notify(o *domain.Order) {
	if c.notifier == nil {
		return
	}
	snapshot := *o
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.notifyTO)
		defer cancel()
		if err := c.notifier.NotifyTerminal(ctx, &snapshot); err != nil {
			logger.Warn("terminal notification failed", "reference", snapshot.ReferenceCode, "status", snapshot.Status, "err", err)
			return
		}
		logger.Debug("terminal notification sent", "reference", snapshot.ReferenceCode, "status", snapshot.Status)
	}()
}
