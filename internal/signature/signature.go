// Package signature computes and checks the redirect-style checkout digest:
//
//	hash(apiKey "~" merchantId "~" referenceCode "~" amount "~" currency)
//
// with the amount rendered to exactly two decimals.
package signature

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/josepro66/CONFIGURATOR-sub000/internal/domain"
)

const (
	AlgorithmMD5    = "md5"
	AlgorithmSHA256 = "sha256"
)

type Config struct {
	APIKey     string
	MerchantID string
	Algorithm  string
}

// Fields are the values a digest is computed over.
type Fields struct {
	MerchantID    string
	ReferenceCode string
	Amount        decimal.Decimal
	Currency      string
}

type Signer struct {
	apiKey     string
	merchantID string
	newHash    func() hash.Hash
}

func NewSigner(cfg Config) (*Signer, error) {
	if cfg.APIKey == "" || cfg.MerchantID == "" {
		return nil, fmt.Errorf("signature: api key and merchant id are required")
	}
	s := &Signer{apiKey: cfg.APIKey, merchantID: cfg.MerchantID}
	switch strings.ToLower(cfg.Algorithm) {
	case "", AlgorithmMD5:
		s.newHash = md5.New
	case AlgorithmSHA256:
		s.newHash = sha256.New
	default:
		return nil, fmt.Errorf("signature: unknown algorithm %q", cfg.Algorithm)
	}
	return s, nil
}

func (s *Signer) MerchantID() string { return s.merchantID }

// FormatAmount renders an amount the way it enters the digest.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func (s *Signer) digest(merchantID, ref string, amount decimal.Decimal, currency string) string {
	h := s.newHash()
	h.Write([]byte(strings.Join([]string{s.apiKey, merchantID, ref, FormatAmount(amount), currency}, "~")))
	return hex.EncodeToString(h.Sum(nil))
}

// Sign returns the outbound digest for our own merchant account.
func (s *Signer) Sign(referenceCode string, amount decimal.Decimal, currency string) string {
	return s.digest(s.merchantID, referenceCode, amount, currency)
}

// Verify recomputes the digest from the declared fields and compares it with
// declared in constant time. Any mismatch is ErrUntrustedCallback.
func (s *Signer) Verify(f Fields, declared string) error {
	if subtle.ConstantTimeCompare([]byte(f.MerchantID), []byte(s.merchantID)) != 1 {
		return fmt.Errorf("%w: merchant mismatch", domain.ErrUntrustedCallback)
	}
	want := s.digest(f.MerchantID, f.ReferenceCode, f.Amount, f.Currency)
	got := strings.ToLower(strings.TrimSpace(declared))
	if subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return fmt.Errorf("%w: signature mismatch", domain.ErrUntrustedCallback)
	}
	return nil
}
