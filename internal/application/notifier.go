package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/josepro66/CONFIGURATOR-sub000/internal/domain"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/logger"
)

// LogNotifier stands in for a real Notifier when no broker is configured.
type LogNotifier struct{}

func (LogNotifier) NotifyTerminal(_ context.Context, o *domain.Order) error {
	logger.Info("order reached terminal status", "reference", o.ReferenceCode, "status", o.Status, "email", o.BuyerContact.Email)
	return nil
}

// Notice is the buyer-facing message for a terminal order event.
type Notice struct {
	To      string
	Subject string
	Body    string
}

// TerminalNotice renders the buyer message for ev. ok is false when the buyer
// left no email address.
func TerminalNotice(ev domain.OrderEvent) (Notice, bool) {
	if ev.BuyerContact.Email == "" {
		return Notice{}, false
	}
	name := ev.BuyerContact.Name
	if name == "" {
		name = "there"
	}
	n := Notice{To: ev.BuyerContact.Email}
	total := ev.Amount.StringFixed(2) + " " + ev.Currency
	switch ev.Status {
	case domain.StatusApproved, domain.StatusCompleted:
		n.Subject = "Payment received for order " + ev.ReferenceCode
		n.Body = fmt.Sprintf("Hi %s,\n\nwe received your payment of %s for %s. We will start building it now.\n", name, total, ev.Product)
	default:
		n.Subject = "Payment not completed for order " + ev.ReferenceCode
		n.Body = fmt.Sprintf("Hi %s,\n\nyour payment of %s for %s was not completed (%s). You were not charged for this order.\n", name, total, ev.Product, strings.ToLower(string(ev.Status)))
	}
	return n, true
}
