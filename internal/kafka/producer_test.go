package kafka

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josepro66/CONFIGURATOR-sub000/internal/domain"
)

func TestEventMessage_KeyedByReference(t *testing.T) {
	o := &domain.Order{
		ReferenceCode: "ref-1",
		Product:       "beato16",
		Currency:      "USD",
		Amount:        decimal.RequireFromString("320.00"),
		Status:        domain.StatusApproved,
		Provider:      domain.ProviderPayU,
		BuyerContact:  domain.BuyerContact{Email: "ana@example.com"},
		UpdatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	msg, err := encodeEvent(domain.NewOrderEvent(o))
	require.NoError(t, err)
	assert.Equal(t, "ref-1", string(msg.Key))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "order.approved", headers["event-type"])

	ev, err := decodeEvent(msg)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, ev.Status)
	assert.True(t, ev.Amount.Equal(o.Amount))
	assert.Equal(t, o.UpdatedAt, ev.OccurredAt)
	assert.Equal(t, "ana@example.com", ev.BuyerContact.Email)
}
