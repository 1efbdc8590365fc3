package helpers

import (
	"errors"
	"time"

	"mfaengine/internal/configuration"
	apierrors "mfaengine/internal/errors"
	"mfaengine/internal/models"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPKey holds the generated TOTP key information.
type TOTPKey struct {
	Secret string // Base32-encoded secret
	URL    string // otpauth:// URL for QR code generation
}

// TOTPOptions are the RFC 6238 parameters shared by generation and verification.
type TOTPOptions struct {
	Issuer    string
	Period    uint
	Digits    otp.Digits
	Skew      uint
	Algorithm otp.Algorithm
}

func DefaultTOTPOptions() TOTPOptions {
	return TOTPOptions{
		Issuer:    configuration.AppName,
		Period:    configuration.DefaultTOTPPeriod,
		Digits:    otp.DigitsSix,
		Skew:      configuration.DefaultTOTPSkew,
		Algorithm: otp.AlgorithmSHA1,
	}
}

func TOTPOptionsFromSettings(settings models.MFASettings) TOTPOptions {
	opts := DefaultTOTPOptions()
	if settings.Issuer != "" {
		opts.Issuer = settings.Issuer
	}
	if settings.TOTPPeriod > 0 {
		opts.Period = settings.TOTPPeriod
	}
	if settings.TOTPDigits == 8 {
		opts.Digits = otp.DigitsEight
	}
	opts.Skew = settings.TOTPSkew
	switch settings.TOTPAlgorithm {
	case "SHA256":
		opts.Algorithm = otp.AlgorithmSHA256
	case "SHA512":
		opts.Algorithm = otp.AlgorithmSHA512
	}
	return opts
}

func (o TOTPOptions) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    o.Period,
		Digits:    o.Digits,
		Algorithm: o.Algorithm,
	}
}

// GenerateTOTPSecret creates a new 160-bit TOTP secret for the given account.
// Returns the secret and a URL that can be used to generate a QR code.
func GenerateTOTPSecret(opts TOTPOptions, accountName string) (*TOTPKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      opts.Issuer,
		AccountName: accountName,
		Period:      opts.Period,
		SecretSize:  configuration.TOTPSecretSize,
		Digits:      opts.Digits,
		Algorithm:   opts.Algorithm,
	})
	if err != nil {
		return nil, err
	}

	return &TOTPKey{
		Secret: key.Secret(),
		URL:    key.URL(),
	}, nil
}

// GenerateTOTPCode computes the code for the time step containing t.
func GenerateTOTPCode(secret string, t time.Time, opts TOTPOptions) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, t, opts.validateOpts())
	if err != nil {
		if errors.Is(err, otp.ErrValidateSecretInvalidBase32) {
			return "", apierrors.Wrap(500, apierrors.ErrInvalidSecretFormat, err)
		}
		return "", err
	}
	return code, nil
}

// TOTPStep returns the RFC 6238 counter for t.
func TOTPStep(t time.Time, period uint) int64 {
	return t.Unix() / int64(period)
}

// MatchTOTPStep checks code against every step within the drift tolerance and returns the matched step.
// All candidate steps are computed and compared in constant time, so the caller can enforce
// single consumption per step.
func MatchTOTPStep(secret string, code string, now time.Time, opts TOTPOptions) (int64, bool, error) {
	if len(code) != opts.Digits.Length() || !isDigits(code) {
		return 0, false, nil
	}

	current := TOTPStep(now, opts.Period)
	skew := int64(opts.Skew)

	var matched int64
	found := false
	for i := -skew; i <= skew; i++ {
		step := current + i
		expected, err := GenerateTOTPCode(secret, time.Unix(step*int64(opts.Period), 0), opts)
		if err != nil {
			return 0, false, err
		}
		if ConstantTimeEqual(expected, code) && !found {
			matched = step
			found = true
		}
	}

	return matched, found, nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}
