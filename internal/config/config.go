package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type PayU struct {
	API_KEY             string `env:"PAYU_API_KEY"`
	MERCHANT_ID         string `env:"PAYU_MERCHANT_ID"`
	ACCOUNT_ID          string `env:"PAYU_ACCOUNT_ID"`
	CHECKOUT_URL        string `env:"PAYU_CHECKOUT_URL"`
	RESPONSE_URL        string `env:"PAYU_RESPONSE_URL"`
	CONFIRMATION_URL    string `env:"PAYU_CONFIRMATION_URL"`
	TEST                bool   `env:"PAYU_TEST"`
	SIGNATURE_ALGORITHM string `env:"PAYU_SIGNATURE_ALGORITHM"`
}

func (p PayU) Enabled() bool {
	return p.API_KEY != "" || p.MERCHANT_ID != ""
}

type PayPal struct {
	BASE_URL        string        `env:"PAYPAL_BASE_URL"`
	CLIENT_ID       string        `env:"PAYPAL_CLIENT_ID"`
	CLIENT_SECRET   string        `env:"PAYPAL_CLIENT_SECRET"`
	WEBHOOK_ID      string        `env:"PAYPAL_WEBHOOK_ID"`
	RETURN_URL      string        `env:"PAYPAL_RETURN_URL"`
	CANCEL_URL      string        `env:"PAYPAL_CANCEL_URL"`
	TIMEOUT         time.Duration `env:"PAYPAL_TIMEOUT"`
	CAPTURE_RETRIES int           `env:"PAYPAL_CAPTURE_RETRIES"`
}

func (p PayPal) Enabled() bool {
	return p.CLIENT_ID != "" || p.CLIENT_SECRET != ""
}

type Config struct {
	HTTP_PORT        string  `env:"HTTP_PORT"`
	STORE_DRIVER     string  `env:"STORE_DRIVER"`
	DB_STRING        string  `env:"DB_STRING"`
	BOLT_PATH        string  `env:"BOLT_PATH"`
	KAFKA_BROKERS    string  `env:"KAFKA_BROKERS"`
	KAFKA_TOPIC      string  `env:"KAFKA_TOPIC"`
	KAFKA_GROUP_ID   string  `env:"KAFKA_GROUP_ID"`
	LOG_LEVEL        string  `env:"LOG_LEVEL"`
	RATE_LIMIT_RPS   float64 `env:"RATE_LIMIT_RPS"`
	RATE_LIMIT_BURST int     `env:"RATE_LIMIT_BURST"`

	PayU   PayU
	PayPal PayPal
}

const (
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
)

// LoadConfig reads .env (when present) and then the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// LoadWorkerConfig is LoadConfig for the notification worker, which only
// needs the Kafka and logging settings.
func LoadWorkerConfig() (*Config, error) {
	_ = godotenv.Load()
	cfg, err := parse(os.LookupEnv)
	if err != nil {
		return nil, err
	}
	if cfg.KAFKA_BROKERS == "" {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	return cfg, nil
}

// FromLookup builds and validates a Config from an arbitrary variable source.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	cfg, err := parse(lookup)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse(lookup func(string) (string, bool)) (*Config, error) {
	get := func(k, def string) string {
		if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}
	var errs []error
	getInt := func(k string, def int) int {
		v := get(k, "")
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
			return def
		}
		return n
	}
	getFloat := func(k string, def float64) float64 {
		v := get(k, "")
		if v == "" {
			return def
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
			return def
		}
		return f
	}
	getBool := func(k string, def bool) bool {
		v := get(k, "")
		if v == "" {
			return def
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
			return def
		}
		return b
	}
	getDuration := func(k string, def time.Duration) time.Duration {
		v := get(k, "")
		if v == "" {
			return def
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
			return def
		}
		return d
	}

	cfg := &Config{
		HTTP_PORT:        get("HTTP_PORT", "8080"),
		STORE_DRIVER:     strings.ToLower(get("STORE_DRIVER", DriverPostgres)),
		DB_STRING:        get("DB_STRING", ""),
		BOLT_PATH:        get("BOLT_PATH", "orders.db"),
		KAFKA_BROKERS:    get("KAFKA_BROKERS", ""),
		KAFKA_TOPIC:      get("KAFKA_TOPIC", "orders.terminal"),
		KAFKA_GROUP_ID:   get("KAFKA_GROUP_ID", "order-notifier"),
		LOG_LEVEL:        get("LOG_LEVEL", "info"),
		RATE_LIMIT_RPS:   getFloat("RATE_LIMIT_RPS", 2),
		RATE_LIMIT_BURST: getInt("RATE_LIMIT_BURST", 10),
		PayU: PayU{
			API_KEY:             get("PAYU_API_KEY", ""),
			MERCHANT_ID:         get("PAYU_MERCHANT_ID", ""),
			ACCOUNT_ID:          get("PAYU_ACCOUNT_ID", ""),
			CHECKOUT_URL:        get("PAYU_CHECKOUT_URL", ""),
			RESPONSE_URL:        get("PAYU_RESPONSE_URL", ""),
			CONFIRMATION_URL:    get("PAYU_CONFIRMATION_URL", ""),
			TEST:                getBool("PAYU_TEST", false),
			SIGNATURE_ALGORITHM: strings.ToLower(get("PAYU_SIGNATURE_ALGORITHM", "md5")),
		},
		PayPal: PayPal{
			BASE_URL:        get("PAYPAL_BASE_URL", ""),
			CLIENT_ID:       get("PAYPAL_CLIENT_ID", ""),
			CLIENT_SECRET:   get("PAYPAL_CLIENT_SECRET", ""),
			WEBHOOK_ID:      get("PAYPAL_WEBHOOK_ID", ""),
			RETURN_URL:      get("PAYPAL_RETURN_URL", ""),
			CANCEL_URL:      get("PAYPAL_CANCEL_URL", ""),
			TIMEOUT:         getDuration("PAYPAL_TIMEOUT", 10*time.Second),
			CAPTURE_RETRIES: getInt("PAYPAL_CAPTURE_RETRIES", 2),
		},
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks the store settings and the secrets of every enabled provider.
func (c *Config) Validate() error {
	var errs []error
	switch c.STORE_DRIVER {
	case DriverPostgres:
		if c.DB_STRING == "" {
			errs = append(errs, errors.New("DB_STRING is required for the postgres store"))
		}
	case DriverBolt:
		if c.BOLT_PATH == "" {
			errs = append(errs, errors.New("BOLT_PATH is required for the bolt store"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not one of postgres, bolt", c.STORE_DRIVER))
	}

	if !c.PayU.Enabled() && !c.PayPal.Enabled() {
		errs = append(errs, errors.New("no payment provider configured"))
	}
	if c.PayU.Enabled() {
		if c.PayU.API_KEY == "" || c.PayU.MERCHANT_ID == "" || c.PayU.ACCOUNT_ID == "" {
			errs = append(errs, errors.New("PAYU_API_KEY, PAYU_MERCHANT_ID and PAYU_ACCOUNT_ID are required for payu"))
		}
	}
	if c.PayPal.Enabled() {
		if c.PayPal.CLIENT_ID == "" || c.PayPal.CLIENT_SECRET == "" {
			errs = append(errs, errors.New("PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET are required for paypal"))
		}
		if c.PayPal.WEBHOOK_ID == "" {
			errs = append(errs, errors.New("PAYPAL_WEBHOOK_ID is required for paypal webhook verification"))
		}
		if c.PayPal.CAPTURE_RETRIES < 0 {
			errs = append(errs, errors.New("PAYPAL_CAPTURE_RETRIES must not be negative"))
		}
	}
	if c.RATE_LIMIT_RPS <= 0 || c.RATE_LIMIT_BURST <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	return errors.Join(errs...)
}
