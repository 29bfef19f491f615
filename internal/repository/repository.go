package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/josepro66/CONFIGURATOR-sub000/internal/domain"
)

// OrderRepo is the durable order store. Implementations must make Transition
// a compare-and-set on status = PENDING.
type OrderRepo interface {
	// AddOrder inserts o, or returns domain.ErrOrderAlreadyExists.
	AddOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, referenceCode string) (*domain.Order, error)
	// SetProviderOrderID stores the remote order id and its approve link only if
	// no id is set yet, and returns the stored order.
	SetProviderOrderID(ctx context.Context, referenceCode string, remote domain.RemoteOrder) (*domain.Order, error)
	// Transition moves a PENDING order to t.To. If the order already left
	// PENDING it returns the current order and domain.ErrIllegalTransition.
	Transition(ctx context.Context, t domain.Transition) (*domain.Order, error)
}

// WebhookLog is the append-only callback audit log.
type WebhookLog interface {
	// AppendWebhook stores rec and reports whether an identical payload was seen before.
	AppendWebhook(ctx context.Context, rec *domain.WebhookRecord) (duplicate bool, err error)
}

type Store interface {
	OrderRepo
	WebhookLog
	Close() error
}

// PayloadDigest fingerprints a callback body for duplicate detection.
func PayloadDigest(p domain.Provider, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(p))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
