// Package paypal is the capture-style provider: server-side order creation and
// capture against PayPal Orders v2, authenticated with a cached client-credentials
// bearer token.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	"github.com/josepro66/CONFIGURATOR-sub000/internal/domain"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/logger"
)

const (
	SandboxURL = "https://api-m.sandbox.paypal.com"

	// tokens this close to expiry are refreshed before use
	tokenSkew    = 60 * time.Second
	maxBodyBytes = 1 << 20
)

type Config struct {
	BaseURL        string
	ClientID       string
	ClientSecret   string
	WebhookID      string
	ReturnURL      string
	CancelURL      string
	Timeout        time.Duration
	CaptureRetries int
	// RetryBase is the first backoff step; later steps double.
	RetryBase time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	refresh   singleflight.Group
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = SandboxURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CaptureRetries < 0 {
		cfg.CaptureRetries = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 200 * time.Millisecond
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) backoff(retries int) retry.Backoff {
	return retry.WithMaxRetries(uint64(retries), retry.NewExponential(c.cfg.RetryBase))
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrProviderUnavailable, fmt.Sprintf(format, args...))
}

func (c *Client) cachedToken() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Add(tokenSkew).Before(c.expiresAt) {
		return c.token, true
	}
	return "", false
}

func (c *Client) invalidateToken(tok string) {
	c.mu.Lock()
	if c.token == tok {
		c.token = ""
	}
	c.mu.Unlock()
}

// accessToken returns a valid bearer token. At most one refresh is in flight;
// concurrent callers wait on it. The refresh itself is detached from any single
// caller's context so one impatient caller cannot fail the others.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	if tok, ok := c.cachedToken(); ok {
		return tok, nil
	}
	ch := c.refresh.DoChan("token", func() (interface{}, error) {
		if tok, ok := c.cachedToken(); ok {
			return tok, nil
		}
		rctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout*4)
		defer cancel()

		tok, ttl, err := c.fetchToken(rctx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.token = tok
		c.expiresAt = time.Now().Add(ttl)
		c.mu.Unlock()
		logger.Debug("paypal token refreshed", "ttl", ttl)
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return "", unavailable("waiting for token: %v", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *Client) fetchToken(ctx context.Context) (string, time.Duration, error) {
	var out tokenResponse
	err := retry.Do(ctx, c.backoff(2), func(ctx context.Context) error {
		form := url.Values{"grant_type": {"client_credentials"}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}
		req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")

		res, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(unavailable("token exchange: %v", err))
		}
		defer res.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))

		switch {
		case res.StatusCode >= 500:
			return retry.RetryableError(unavailable("token exchange status %d", res.StatusCode))
		case res.StatusCode != http.StatusOK:
			return unavailable("token exchange status %d: %s", res.StatusCode, bytes.TrimSpace(body))
		}
		if err := json.Unmarshal(body, &out); err != nil || out.AccessToken == "" {
			return unavailable("token exchange: bad response")
		}
		return nil
	})
	if err != nil {
		return "", 0, err
	}
	return out.AccessToken, time.Duration(out.ExpiresIn) * time.Second, nil
}

// call performs one authenticated JSON request. Transport failures are
// returned as ErrProviderUnavailable; any HTTP status is returned to the caller.
func (c *Client) call(ctx context.Context, method, path, token, requestID string, in any) (int, []byte, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return 0, nil, unavailable("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	out, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, unavailable("%s %s: reading body: %v", method, path, err)
	}
	return res.StatusCode, out, nil
}

type apiError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

// issues lists the detail issue codes of a PayPal error body.
func issues(body []byte) []string {
	var e apiError
	if json.Unmarshal(body, &e) != nil {
		return nil
	}
	out := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		if d.Issue != "" {
			out = append(out, d.Issue)
		}
	}
	return out
}

// describe turns a PayPal error body into a short diagnostic string.
func describe(status int, body []byte) string {
	var e apiError
	if json.Unmarshal(body, &e) == nil && e.Name != "" {
		if len(e.Details) > 0 && e.Details[0].Issue != "" {
			return fmt.Sprintf("%d %s: %s", status, e.Name, e.Details[0].Issue)
		}
		return fmt.Sprintf("%d %s", status, e.Name)
	}
	return fmt.Sprintf("status %d", status)
}
