package domain

import "errors"

var (
	// ErrValidation marks bad or missing buyer input.
	ErrValidation = errors.New("validation error")
	// ErrUnsupportedPricing is returned for a product/currency pair with no price.
	ErrUnsupportedPricing = errors.New("unsupported product/currency")
	// ErrUntrustedCallback marks a callback whose authenticity check failed.
	ErrUntrustedCallback = errors.New("untrusted callback")
	ErrMalformedCallback = errors.New("malformed callback")
	// ErrProviderUnavailable wraps network, timeout and 5xx failures talking to a provider.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	// ErrIllegalTransition is reported by stores when the order left PENDING first.
	ErrIllegalTransition = errors.New("illegal status transition")

	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAlreadyExists = errors.New("order already exists")
)
