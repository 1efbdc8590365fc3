package helpers

import (
	"strings"
	"testing"
	"time"

	apierrors "mfaengine/internal/errors"
	"mfaengine/internal/models"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTOTPSecret(t *testing.T) {
	opts := DefaultTOTPOptions()

	t.Run("should generate valid secret and URL", func(t *testing.T) {
		result, err := GenerateTOTPSecret(opts, "test@example.com")

		require.NoError(t, err)
		assert.NotEmpty(t, result.Secret, "secret should not be empty")
		assert.True(t, strings.HasPrefix(result.URL, "otpauth://totp/"))
		assert.Contains(t, result.URL, "issuer="+opts.Issuer)
	})

	t.Run("should generate a 160-bit base32 secret", func(t *testing.T) {
		result, err := GenerateTOTPSecret(opts, "test@example.com")

		require.NoError(t, err)
		// 20 bytes encode to 32 base32 characters without padding
		assert.Len(t, result.Secret, 32)
		for _, char := range result.Secret {
			isBase32 := (char >= 'A' && char <= 'Z') || (char >= '2' && char <= '7')
			assert.True(t, isBase32, "secret should be base32 encoded, got char: %c", char)
		}
	})

	t.Run("should generate different secrets for same account", func(t *testing.T) {
		result1, err1 := GenerateTOTPSecret(opts, "test@example.com")
		result2, err2 := GenerateTOTPSecret(opts, "test@example.com")

		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.NotEqual(t, result1.Secret, result2.Secret)
	})
}

func TestTOTPOptionsFromSettings(t *testing.T) {
	t.Run("should map engine settings", func(t *testing.T) {
		opts := TOTPOptionsFromSettings(models.MFASettings{
			Issuer:        "Bank",
			TOTPPeriod:    60,
			TOTPDigits:    8,
			TOTPSkew:      2,
			TOTPAlgorithm: "SHA256",
		})

		assert.Equal(t, "Bank", opts.Issuer)
		assert.Equal(t, uint(60), opts.Period)
		assert.Equal(t, otp.DigitsEight, opts.Digits)
		assert.Equal(t, uint(2), opts.Skew)
		assert.Equal(t, otp.AlgorithmSHA256, opts.Algorithm)
	})
}

func TestMatchTOTPStep(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"
	opts := DefaultTOTPOptions()
	now := time.Unix(1_700_000_000, 0)
	period := time.Duration(opts.Period) * time.Second

	codeAt := func(t *testing.T, at time.Time) string {
		t.Helper()
		code, err := totp.GenerateCode(secret, at)
		require.NoError(t, err)
		return code
	}

	t.Run("should accept the current step and return it", func(t *testing.T) {
		step, ok, err := MatchTOTPStep(secret, codeAt(t, now), now, opts)

		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, TOTPStep(now, opts.Period), step)
	})

	t.Run("should accept a code one step in the past", func(t *testing.T) {
		past := now.Add(-period)

		step, ok, err := MatchTOTPStep(secret, codeAt(t, past), now, opts)

		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, TOTPStep(past, opts.Period), step)
	})

	t.Run("should accept a code one step in the future", func(t *testing.T) {
		_, ok, err := MatchTOTPStep(secret, codeAt(t, now.Add(period)), now, opts)

		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("should reject a code two steps in the past", func(t *testing.T) {
		old := codeAt(t, now.Add(-2*period))
		if old == codeAt(t, now) || old == codeAt(t, now.Add(-period)) || old == codeAt(t, now.Add(period)) {
			t.Skip("code collision inside the tolerance window")
		}

		_, ok, err := MatchTOTPStep(secret, old, now, opts)

		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("should widen the window with a larger skew", func(t *testing.T) {
		wide := opts
		wide.Skew = 2

		_, ok, err := MatchTOTPStep(secret, codeAt(t, now.Add(-2*period)), now, wide)

		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("should reject malformed codes without touching the secret", func(t *testing.T) {
		for _, code := range []string{"", "12345", "abcdef", "1234567"} {
			_, ok, err := MatchTOTPStep("not base32!", code, now, opts)

			require.NoError(t, err)
			assert.False(t, ok, code)
		}
	})

	t.Run("should report an invalid secret", func(t *testing.T) {
		_, _, err := MatchTOTPStep("not base32!", "123456", now, opts)

		require.Error(t, err)
		assert.Equal(t, apierrors.ErrInvalidSecretFormat, apierrors.KindOf(err))
	})
}
