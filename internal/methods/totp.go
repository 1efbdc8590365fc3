package methods

import (
	"context"
	"time"

	apierrors "mfaengine/internal/errors"
	"mfaengine/internal/helpers"
	"mfaengine/internal/models"
	"mfaengine/internal/sql"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type TOTPStrategy struct {
	DB      *gorm.DB
	Cipher  helpers.SecretCipher
	Options helpers.TOTPOptions
	Now     func() time.Time
}

func (s *TOTPStrategy) Method() models.MFAMethod {
	return models.MFAMethodTOTP
}

func (s *TOTPStrategy) now() time.Time {
	return clock(s.Now)
}

func (s *TOTPStrategy) Issue(_ context.Context, _ models.MFAConfig) (IssueResult, error) {
	return IssueResult{}, nil
}

// Verify accepts a code from the current step or a neighbour within the skew, once per step.
func (s *TOTPStrategy) Verify(ctx context.Context, config models.MFAConfig, code string) (Outcome, error) {
	if !helpers.IsNumericCode(code, s.Options.Digits.Length()) {
		return failed(apierrors.ErrInvalidCodeFormat), nil
	}

	secret, err := s.Cipher.Decrypt(config.SecretEncrypted)
	if err != nil {
		return Outcome{}, apierrors.EncryptionFailure(err)
	}

	now := s.now()
	step, ok, err := helpers.MatchTOTPStep(secret, code, now, s.Options)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return failed(apierrors.ErrInvalidCode), nil
	}

	advanced, err := sql.AdvanceTOTPStep(s.DB.WithContext(ctx), config.ID, step, now)
	if err != nil {
		return Outcome{}, err
	}
	if !advanced {
		// Replayed step. Reported like a wrong code.
		return failed(apierrors.ErrInvalidCode), nil
	}

	s.reseal(ctx, config, secret)

	return verified(), nil
}

// reseal moves a secret still sealed under a retired key to the primary key.
// It runs after a successful verification and never fails it.
func (s *TOTPStrategy) reseal(ctx context.Context, config models.MFAConfig, secret string) {
	if !s.Cipher.Stale(config.SecretEncrypted) {
		return
	}

	sealed, err := s.Cipher.Encrypt(secret)
	if err == nil {
		_, err = sql.ResealSecret(s.DB.WithContext(ctx), config.ID, config.SecretEncrypted, sealed)
	}
	if err != nil {
		zap.L().Warn("Failed to reseal TOTP secret", zap.String("config_id", config.ID.String()), zap.Error(err))
	}
}
