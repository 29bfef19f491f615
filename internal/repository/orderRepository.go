package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/josepro66/CONFIGURATOR-sub000/internal/domain"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/logger"
)

const (
	queryTimeout    = 5 * time.Second
	uniqueViolation = "23505"
)

const orderColumns = `reference_code, product, currency, amount::text, COALESCE(customization::text, ''),
	buyer_email, buyer_name, status, provider, provider_order_id, approve_url, provider_transaction_id,
	status_reason, created_at, updated_at`

// OrderRepository is the Postgres Store.
type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(p *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: p}
}

// Close is a no-op: the pool is owned by main.
func (p *OrderRepository) Close() error { return nil }

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o             domain.Order
		amount        string
		customization string
		status        string
		provider      string
	)
	err := row.Scan(&o.ReferenceCode, &o.Product, &o.Currency, &amount, &customization,
		&o.BuyerContact.Email, &o.BuyerContact.Name, &status, &provider, &o.ProviderOrderID,
		&o.ApproveURL, &o.ProviderTransactionID, &o.StatusReason, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	o.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("order %s: bad amount %q: %w", o.ReferenceCode, amount, err)
	}
	if customization != "" {
		o.Customization = []byte(customization)
	}
	o.Status = domain.Status(status)
	o.Provider = domain.Provider(provider)
	return &o, nil
}

func (p *OrderRepository) AddOrder(ctx context.Context, o *domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := p.pool.Exec(ctx, `
		INSERT INTO orders
			(reference_code, product, currency, amount, customization,
			 buyer_email, buyer_name, status, provider, created_at, updated_at)
		VALUES
			($1, $2, $3, $4::text::numeric, NULLIF($5::text, '')::jsonb,
			 $6, $7, $8, $9, $10, $11)
	`, o.ReferenceCode, o.Product, o.Currency, o.Amount.String(), string(o.Customization),
		o.BuyerContact.Email, o.BuyerContact.Name, string(o.Status), string(o.Provider),
		o.CreatedAt, o.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrOrderAlreadyExists
		}
		logger.Warn("insert order failed", "reference", o.ReferenceCode, "err", err)
		return err
	}
	return nil
}

func (p *OrderRepository) GetOrder(ctx context.Context, referenceCode string) (*domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return scanOrder(p.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE reference_code = $1`, referenceCode))
}

func (p *OrderRepository) SetProviderOrderID(ctx context.Context, referenceCode string, remote domain.RemoteOrder) (*domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	o, err := scanOrder(p.pool.QueryRow(ctx, `
		UPDATE orders SET provider_order_id = $2, approve_url = $3, updated_at = now()
		WHERE reference_code = $1 AND provider_order_id = ''
		RETURNING `+orderColumns, referenceCode, remote.ID, remote.ApproveURL))
	if errors.Is(err, domain.ErrOrderNotFound) {
		// already set, or no such order
		return p.GetOrder(ctx, referenceCode)
	}
	return o, err
}

func (p *OrderRepository) Transition(ctx context.Context, t domain.Transition) (*domain.Order, error) {
	if !t.To.Terminal() {
		return nil, fmt.Errorf("%w: target %s is not terminal", domain.ErrIllegalTransition, t.To)
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	o, err := scanOrder(p.pool.QueryRow(ctx, `
		UPDATE orders
		SET status = $2, provider_transaction_id = $3, status_reason = $4, updated_at = now()
		WHERE reference_code = $1 AND status = 'PENDING'
		RETURNING `+orderColumns,
		t.ReferenceCode, string(t.To), t.ProviderTransactionID, t.Reason))
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, domain.ErrOrderNotFound) {
		return nil, err
	}

	cur, err := p.GetOrder(ctx, t.ReferenceCode)
	if err != nil {
		return nil, err
	}
	return cur, domain.ErrIllegalTransition
}

func (p *OrderRepository) AppendWebhook(ctx context.Context, rec *domain.WebhookRecord) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.PayloadDigest == "" {
		rec.PayloadDigest = PayloadDigest(rec.Provider, rec.Payload)
	}

	var prior int64
	err := p.pool.QueryRow(ctx, `
		WITH prior AS (
			SELECT count(*) AS n FROM webhook_records WHERE payload_digest = $6
		)
		INSERT INTO webhook_records
			(id, provider, event_type, reference_code, payload, payload_digest, verdict, received_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING (SELECT n FROM prior)
	`, rec.ID, string(rec.Provider), rec.EventType, rec.ReferenceCode, rec.Payload,
		rec.PayloadDigest, string(rec.Verdict), rec.ReceivedAt).Scan(&prior)
	if err != nil {
		logger.Warn("append webhook failed", "provider", rec.Provider, "err", err)
		return false, err
	}
	return prior > 0, nil
}
