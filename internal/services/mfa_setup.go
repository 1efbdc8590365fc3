package services

import (
	"context"

	"mfaengine/internal/activity"
	apierrors "mfaengine/internal/errors"
	"mfaengine/internal/events"
	"mfaengine/internal/helpers"
	"mfaengine/internal/models"
	"mfaengine/internal/ratelimit"
	"mfaengine/internal/sql"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SetupTOTP creates an unverified TOTP config and returns its secret with a fresh set of backup codes.
func (s MFAService) SetupTOTP(
	ctx context.Context,
	logger *zap.Logger,
	userID uuid.UUID,
	isPrimary bool,
) (models.TOTPSetupResult, error) {
	ctx, span := s.startSpan(ctx, "MFAService.SetupTOTP", userID)
	defer span.End()

	user, err := sql.GetUser(s.DB.WithContext(ctx), userID)
	if err != nil {
		return models.TOTPSetupResult{}, err
	}

	account := user.Email
	if account == "" {
		account = user.ID.String()
	}

	key, err := helpers.GenerateTOTPSecret(helpers.TOTPOptionsFromSettings(s.Settings), account)
	if err != nil {
		logger.Error("Failed to generate TOTP secret", zap.Error(err))
		return models.TOTPSetupResult{}, err
	}

	encrypted, err := s.Cipher.Encrypt(key.Secret)
	if err != nil {
		logger.Error("Failed to encrypt TOTP secret", zap.Error(err))
		return models.TOTPSetupResult{}, apierrors.EncryptionFailure(err)
	}

	config, codes, err := s.enroll(ctx, logger, userID, models.MFAMethodTOTP, sql.ConfigMaterial{
		SecretEncrypted: encrypted,
		PromoteOnVerify: isPrimary,
	})
	if err != nil {
		return models.TOTPSetupResult{}, err
	}

	return models.TOTPSetupResult{
		ConfigID:    config.ID,
		Secret:      key.Secret,
		QRPayload:   key.URL,
		BackupCodes: codes,
	}, nil
}

// SetupSMS enrolls a phone number and sends the first code so the user can complete VerifySetup.
func (s MFAService) SetupSMS(
	ctx context.Context,
	logger *zap.Logger,
	userID uuid.UUID,
	phoneNumber string,
	isPrimary bool,
) (models.SetupResult, error) {
	ctx, span := s.startSpan(ctx, "MFAService.SetupSMS", userID)
	defer span.End()

	phone, err := helpers.NormalizePhone(phoneNumber)
	if err != nil {
		return models.SetupResult{}, err
	}

	return s.setupOutOfBand(ctx, logger, userID, models.MFAMethodSMS, phone, isPrimary)
}

// SetupEmail enrolls an email address and sends the first code so the user can complete VerifySetup.
func (s MFAService) SetupEmail(
	ctx context.Context,
	logger *zap.Logger,
	userID uuid.UUID,
	email string,
	isPrimary bool,
) (models.SetupResult, error) {
	ctx, span := s.startSpan(ctx, "MFAService.SetupEmail", userID)
	defer span.End()

	address, err := helpers.NormalizeEmail(email)
	if err != nil {
		return models.SetupResult{}, err
	}

	return s.setupOutOfBand(ctx, logger, userID, models.MFAMethodEmail, address, isPrimary)
}

func (s MFAService) setupOutOfBand(
	ctx context.Context,
	logger *zap.Logger,
	userID uuid.UUID,
	method models.MFAMethod,
	target string,
	isPrimary bool,
) (models.SetupResult, error) {
	if _, err := sql.GetUser(s.DB.WithContext(ctx), userID); err != nil {
		return models.SetupResult{}, err
	}

	strategy, err := s.Registry.Get(method)
	if err != nil {
		return models.SetupResult{}, err
	}

	config, codes, err := s.enroll(ctx, logger, userID, method, sql.ConfigMaterial{
		Target:          target,
		PromoteOnVerify: isPrimary,
	})
	if err != nil {
		return models.SetupResult{}, err
	}

	if _, err = strategy.Issue(ctx, config); err != nil {
		logger.Warn("Failed to send setup code",
			zap.String("config_id", config.ID.String()),
			zap.String("method", string(method)),
			zap.Error(err))
		s.Metrics.IncChallenge(string(method), "unavailable")
		return models.SetupResult{}, err
	}
	s.Metrics.IncChallenge(string(method), "issued")

	return models.SetupResult{ConfigID: config.ID, BackupCodes: codes}, nil
}

// enroll persists a new unverified config together with its backup codes in one transaction.
func (s MFAService) enroll(
	ctx context.Context,
	logger *zap.Logger,
	userID uuid.UUID,
	method models.MFAMethod,
	material sql.ConfigMaterial,
) (models.MFAConfig, []string, error) {
	salt, err := helpers.NewBackupCodeSalt()
	if err != nil {
		return models.MFAConfig{}, nil, apierrors.EncryptionFailure(err)
	}
	material.BackupCodeSalt = salt

	codes, err := helpers.GenerateBackupCodes(s.Settings.BackupCodesCount, s.Settings.BackupCodeLength)
	if err != nil {
		return models.MFAConfig{}, nil, apierrors.EncryptionFailure(err)
	}

	var config models.MFAConfig
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		config, err = sql.CreateConfig(tx, userID, method, material)
		if err != nil {
			return err
		}
		return sql.ReplaceBackupCodes(tx, config.ID, hashBackupCodes(salt, codes))
	})
	if err != nil {
		if !apierrors.Is(err, apierrors.ErrDuplicateMethodForUser) {
			logger.Error("Failed to create MFA config", zap.String("method", string(method)), zap.Error(err))
		}
		return models.MFAConfig{}, nil, err
	}

	s.logConfigActivity(logger, activity.MFAMethodEnrolled, config)
	s.emit(logger, s.configEvent(events.TypeMethodEnrolled, config))
	s.Metrics.IncEnrollment(string(method), "setup")

	logger.Info("MFA method setup initiated",
		zap.String("user_id", userID.String()),
		zap.String("config_id", config.ID.String()),
		zap.String("method", string(method)))

	return config, displayBackupCodes(codes), nil
}

// VerifySetup checks a code against an enrolled config. The first success enables the config,
// promoting it when requested at setup or when the user has no enabled primary yet.
func (s MFAService) VerifySetup(
	ctx context.Context,
	logger *zap.Logger,
	configID uuid.UUID,
	code string,
	userID uuid.UUID,
) (models.SetupVerification, error) {
	ctx, span := s.startSpan(ctx, "MFAService.VerifySetup", userID)
	defer span.End()

	config, err := sql.GetConfig(s.DB.WithContext(ctx), userID, configID)
	if err != nil {
		return models.SetupVerification{}, err
	}

	strategy, err := s.Registry.Get(config.Method)
	if err != nil {
		return models.SetupVerification{}, err
	}

	reservation, err := s.Limiter.Reserve(ctx, ratelimit.Key{UserID: userID, Method: config.Method}, s.now())
	if err != nil {
		return models.SetupVerification{}, err
	}
	if reservation.Decision.Limited {
		s.Metrics.IncRateLimited(string(config.Method))
		if err = s.recordAttempt(ctx, logger, attempt{
			UserID:      userID,
			Method:      config.Method,
			ConfigID:    &config.ID,
			Outcome:     models.OutcomeLocked,
			Reservation: reservation,
		}); err != nil {
			return models.SetupVerification{}, err
		}
		return models.SetupVerification{Error: apierrors.ErrRateLimited}, nil
	}

	outcome, err := strategy.Verify(ctx, config, code)
	if err != nil {
		logger.Error("Setup verification failed on a hard fault",
			zap.String("config_id", config.ID.String()),
			zap.Error(err))
		s.release(ctx, logger, reservation)
		return models.SetupVerification{}, err
	}

	if err = s.recordAttempt(ctx, logger, attempt{
		UserID:      userID,
		Method:      config.Method,
		ConfigID:    &config.ID,
		Outcome:     outcome.Result,
		Reservation: reservation,
	}); err != nil {
		return models.SetupVerification{}, err
	}

	if !outcome.Verified() {
		return models.SetupVerification{Error: outcome.Error}, nil
	}

	wasEnabled := config.IsEnabled
	verified, err := sql.MarkVerified(s.DB.WithContext(ctx), userID, configID, config.PromoteOnVerify, s.now())
	if err != nil {
		return models.SetupVerification{}, err
	}

	if !wasEnabled {
		s.logConfigActivity(logger, activity.MFAMethodVerified, verified)
		s.emit(logger, s.configEvent(events.TypeMethodVerified, verified))
		s.Metrics.IncEnrollment(string(verified.Method), "verified")

		logger.Info("MFA method verified and enabled",
			zap.String("user_id", userID.String()),
			zap.String("config_id", configID.String()),
			zap.Bool("is_primary", verified.IsPrimary))
	}

	return models.SetupVerification{Success: true}, nil
}

func hashBackupCodes(salt string, codes []string) []string {
	hashes := make([]string, len(codes))
	for i, code := range codes {
		hashes[i] = helpers.HashBackupCode(salt, code)
	}
	return hashes
}

func displayBackupCodes(codes []string) []string {
	display := make([]string, len(codes))
	for i, code := range codes {
		display[i] = helpers.FormatBackupCode(code)
	}
	return display
}
