package application

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"

	"github.com/josepro66/CONFIGURATOR-sub000/internal/domain"
)

const (
	MaxCustomizationBytes = 16 << 10
	maxNameLen            = 200
	maxProductLen         = 64
	maxIdempotencyKeyLen  = 255
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}

// validate checks and normalizes buyer input. Price lookups happen after it.
func (c *Coordinator) validate(in CreateOrderInput) (CreateOrderInput, error) {
	in.Product = strings.ToLower(strings.TrimSpace(in.Product))
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	in.Provider = domain.Provider(strings.ToLower(strings.TrimSpace(string(in.Provider))))
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	in.BuyerContact.Email = strings.TrimSpace(in.BuyerContact.Email)
	in.BuyerContact.Name = strings.TrimSpace(in.BuyerContact.Name)

	if in.Product == "" {
		return in, invalid("product is required")
	}
	if len(in.Product) > maxProductLen {
		return in, invalid("product is too long")
	}
	if len(in.Currency) != 3 || strings.Trim(in.Currency, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") != "" {
		return in, invalid("currency must be a 3-letter ISO code")
	}
	if !in.Provider.Valid() {
		return in, invalid("provider must be %q or %q", domain.ProviderPayU, domain.ProviderPayPal)
	}
	if c.callbackHandler(in.Provider) == nil {
		return in, invalid("provider %s is not enabled", in.Provider)
	}

	if len(in.Customization) > MaxCustomizationBytes {
		return in, invalid("customization exceeds %d bytes", MaxCustomizationBytes)
	}
	trimmed := bytes.TrimSpace(in.Customization)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		in.Customization = nil
	} else if !json.Valid(trimmed) {
		return in, invalid("customization must be valid JSON")
	} else {
		in.Customization = trimmed
	}

	if e := in.BuyerContact.Email; e != "" {
		addr, err := mail.ParseAddress(e)
		if err != nil || addr.Address != e {
			return in, invalid("buyer email is not a valid address")
		}
	}
	if len(in.BuyerContact.Name) > maxNameLen {
		return in, invalid("buyer name is too long")
	}
	if len(in.IdempotencyKey) > maxIdempotencyKeyLen {
		return in, invalid("idempotency key is too long")
	}
	return in, nil
}
