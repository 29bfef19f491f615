package signature

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josepro66/CONFIGURATOR-sub000/internal/domain"
)

const (
	testAPIKey   = "4Vj8eK4rloUd272L48hsrarnUA"
	testMerchant = "508029"
)

func newSigner(t *testing.T, algo string) *Signer {
	t.Helper()
	s, err := NewSigner(Config{APIKey: testAPIKey, MerchantID: testMerchant, Algorithm: algo})
	require.NoError(t, err)
	return s
}

func TestSign_KnownDigests(t *testing.T) {
	amt := decimal.RequireFromString("320")

	assert.Equal(t, "eefe9991af6f31ad2826c0e37f275cd4", newSigner(t, "").Sign("ref-1", amt, "USD"))
	assert.Equal(t,
		"42ad99940e94d62777d3a32e7d581703ad7f85f9139296eec594dbfe0f8e661b",
		newSigner(t, AlgorithmSHA256).Sign("ref-1", amt, "USD"))
}

func TestFormatAmount_TwoDecimals(t *testing.T) {
	assert.Equal(t, "320.00", FormatAmount(decimal.RequireFromString("320")))
	assert.Equal(t, "1280000.00", FormatAmount(decimal.RequireFromString("1280000")))
	assert.Equal(t, "0.10", FormatAmount(decimal.RequireFromString("0.1")))
}

func TestVerify(t *testing.T) {
	s := newSigner(t, AlgorithmMD5)
	amt := decimal.RequireFromString("320.00")
	good := s.Sign("ref-1", amt, "USD")
	f := Fields{MerchantID: testMerchant, ReferenceCode: "ref-1", Amount: amt, Currency: "USD"}

	require.NoError(t, s.Verify(f, good))
	require.NoError(t, s.Verify(f, strings.ToUpper(good)), "hex case must not matter")

	tampered := f
	tampered.Amount = decimal.RequireFromString("1.00")
	err := s.Verify(tampered, good)
	assert.True(t, errors.Is(err, domain.ErrUntrustedCallback))

	otherMerchant := f
	otherMerchant.MerchantID = "999"
	assert.True(t, errors.Is(s.Verify(otherMerchant, good), domain.ErrUntrustedCallback))

	assert.True(t, errors.Is(s.Verify(f, ""), domain.ErrUntrustedCallback))
}

func TestVerify_GuessedSecret(t *testing.T) {
	ours := newSigner(t, "")
	forger, err := NewSigner(Config{APIKey: "guessed", MerchantID: testMerchant})
	require.NoError(t, err)

	amt := decimal.RequireFromString("320.00")
	forged := forger.Sign("ref-1", amt, "USD")
	err = ours.Verify(Fields{MerchantID: testMerchant, ReferenceCode: "ref-1", Amount: amt, Currency: "USD"}, forged)
	assert.True(t, errors.Is(err, domain.ErrUntrustedCallback))
}

func TestNewSigner_Invalid(t *testing.T) {
	_, err := NewSigner(Config{MerchantID: testMerchant})
	assert.Error(t, err)
	_, err = NewSigner(Config{APIKey: testAPIKey, MerchantID: testMerchant, Algorithm: "crc32"})
	assert.Error(t, err)
}
