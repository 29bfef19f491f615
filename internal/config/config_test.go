package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := FromLookup(lookup(map[string]string{
		"DB_STRING":        "postgres://localhost/orders",
		"PAYU_API_KEY":     "key",
		"PAYU_MERCHANT_ID": "508029",
		"PAYU_ACCOUNT_ID":  "512321",
	}))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTP_PORT)
	assert.Equal(t, DriverPostgres, cfg.STORE_DRIVER)
	assert.Equal(t, "orders.terminal", cfg.KAFKA_TOPIC)
	assert.Equal(t, "md5", cfg.PayU.SIGNATURE_ALGORITHM)
	assert.True(t, cfg.PayU.Enabled())
	assert.False(t, cfg.PayPal.Enabled())
	assert.Equal(t, 10*time.Second, cfg.PayPal.TIMEOUT)
	assert.Equal(t, 2, cfg.PayPal.CAPTURE_RETRIES)
}

func TestFromLookup_PayPalBolt(t *testing.T) {
	cfg, err := FromLookup(lookup(map[string]string{
		"STORE_DRIVER":           "BOLT",
		"BOLT_PATH":              "/tmp/orders.db",
		"PAYPAL_CLIENT_ID":       "id",
		"PAYPAL_CLIENT_SECRET":   "secret",
		"PAYPAL_WEBHOOK_ID":      "WH-1",
		"PAYPAL_TIMEOUT":         "3s",
		"PAYPAL_CAPTURE_RETRIES": "4",
		"RATE_LIMIT_RPS":         "0.5",
	}))
	require.NoError(t, err)
	assert.Equal(t, DriverBolt, cfg.STORE_DRIVER)
	assert.Equal(t, "WH-1", cfg.PayPal.WEBHOOK_ID)
	assert.Equal(t, 3*time.Second, cfg.PayPal.TIMEOUT)
	assert.Equal(t, 4, cfg.PayPal.CAPTURE_RETRIES)
	assert.Equal(t, 0.5, cfg.RATE_LIMIT_RPS)
}

func TestFromLookup_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"no provider": {"DB_STRING": "x"},
		"partial payu": {
			"DB_STRING":    "x",
			"PAYU_API_KEY": "key",
		},
		"paypal without secret": {
			"DB_STRING":        "x",
			"PAYPAL_CLIENT_ID": "id",
		},
		"paypal without webhook id": {
			"DB_STRING":            "x",
			"PAYPAL_CLIENT_ID":     "id",
			"PAYPAL_CLIENT_SECRET": "secret",
		},
		"postgres without dsn": {
			"PAYPAL_CLIENT_ID":     "id",
			"PAYPAL_CLIENT_SECRET": "secret",
			"PAYPAL_WEBHOOK_ID":    "WH-1",
		},
		"unknown driver": {
			"STORE_DRIVER":         "redis",
			"PAYPAL_CLIENT_ID":     "id",
			"PAYPAL_CLIENT_SECRET": "secret",
			"PAYPAL_WEBHOOK_ID":    "WH-1",
		},
		"bad duration": {
			"DB_STRING":            "x",
			"PAYPAL_CLIENT_ID":     "id",
			"PAYPAL_CLIENT_SECRET": "secret",
			"PAYPAL_WEBHOOK_ID":    "WH-1",
			"PAYPAL_TIMEOUT":       "soon",
		},
	}
	for name, vars := range cases {
		_, err := FromLookup(lookup(vars))
		assert.Error(t, err, name)
	}
}

func TestFromLookup_PayPalWebhookIDRequired(t *testing.T) {
	_, err := FromLookup(lookup(map[string]string{
		"DB_STRING":            "x",
		"PAYPAL_CLIENT_ID":     "id",
		"PAYPAL_CLIENT_SECRET": "secret",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAYPAL_WEBHOOK_ID")
}
