package application

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/josepro66/CONFIGURATOR-sub000/internal/domain"
)

func TestTerminalNotice(t *testing.T) {
	ev := domain.OrderEvent{
		ReferenceCode: "ref-1",
		Status:        domain.StatusCompleted,
		Product:       "beato16",
		Currency:      "USD",
		Amount:        decimal.RequireFromString("320"),
		BuyerContact:  domain.BuyerContact{Email: "ana@example.com", Name: "Ana"},
	}
	n, ok := TerminalNotice(ev)
	assert.True(t, ok)
	assert.Equal(t, "ana@example.com", n.To)
	assert.Contains(t, n.Subject, "Payment received")
	assert.Contains(t, n.Body, "320.00 USD")

	ev.Status = domain.StatusDenied
	n, ok = TerminalNotice(ev)
	assert.True(t, ok)
	assert.Contains(t, n.Subject, "not completed")
	assert.Contains(t, n.Body, "(denied)")

	ev.BuyerContact.Email = ""
	_, ok = TerminalNotice(ev)
	assert.False(t, ok)
}
