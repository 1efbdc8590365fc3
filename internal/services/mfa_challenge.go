package services

import (
	"context"
	"time"

	apierrors "mfaengine/internal/errors"
	"mfaengine/internal/helpers"
	"mfaengine/internal/methods"
	"mfaengine/internal/models"
	"mfaengine/internal/ratelimit"
	"mfaengine/internal/sql"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StartChallenge selects the primary enabled method and issues a code for out-of-band methods.
// A newer challenge supersedes any open one, so this also serves as a resend.
func (s MFAService) StartChallenge(
	ctx context.Context,
	logger *zap.Logger,
	userID uuid.UUID,
	reqCtx models.RequestContext,
) (models.ChallengeStart, error) {
	ctx, span := s.startSpan(ctx, "MFAService.StartChallenge", userID)
	defer span.End()

	config, found, err := s.resolvePrimary(ctx, userID)
	if err != nil {
		return models.ChallengeStart{}, err
	}
	if !found {
		return models.ChallengeStart{
			Method: models.MFAMethodNone,
			State:  models.StateUnchallenged,
			Error:  apierrors.ErrMethodNotEnabled,
		}, nil
	}

	strategy, err := s.Registry.Get(config.Method)
	if err != nil {
		return models.ChallengeStart{}, err
	}

	decision, err := s.Limiter.Check(ctx, ratelimit.Key{UserID: userID, Method: config.Method}, s.now())
	if err != nil {
		return models.ChallengeStart{}, err
	}
	if decision.Limited {
		s.Metrics.IncRateLimited(string(config.Method))
		s.Metrics.IncChallenge(string(config.Method), "locked")
		if err = s.recordAttempt(ctx, logger, attempt{
			UserID:   userID,
			Method:   config.Method,
			ConfigID: &config.ID,
			Outcome:  models.OutcomeLocked,
			Request:  reqCtx,
		}); err != nil {
			return models.ChallengeStart{}, err
		}
		return models.ChallengeStart{
			Method:        config.Method,
			ConfigID:      config.ID,
			State:         models.StateLocked,
			NextAttemptIn: decision.NextAttemptIn,
			Error:         apierrors.ErrRateLimited,
		}, nil
	}

	issued, err := strategy.Issue(ctx, config)
	if err != nil {
		logger.Warn("Failed to issue challenge",
			zap.String("config_id", config.ID.String()),
			zap.String("method", string(config.Method)),
			zap.Error(err))
		s.Metrics.IncChallenge(string(config.Method), "unavailable")
		return models.ChallengeStart{}, err
	}

	if issued.Issued {
		if err = s.recordAttempt(ctx, logger, attempt{
			UserID:   userID,
			Method:   config.Method,
			ConfigID: &config.ID,
			Outcome:  models.OutcomeIssued,
			Request:  reqCtx,
		}); err != nil {
			return models.ChallengeStart{}, err
		}
	}
	s.Metrics.IncChallenge(string(config.Method), "issued")

	return models.ChallengeStart{
		Method:    config.Method,
		ConfigID:  config.ID,
		State:     models.StateChallengeIssued,
		ExpiresAt: issued.ExpiresAt,
	}, nil
}

// verification carries one request through the pipeline.
type verification struct {
	userID     uuid.UUID
	code       string
	backupCode bool
	request    models.RequestContext

	method      models.MFAMethod
	configs     []models.MFAConfig
	reservation *ratelimit.Reservation
	outcome     methods.Outcome
	matched     *models.MFAConfig
}

// VerifyCode runs resolve, limiter, strategy and store update in order, stopping at the first
// step that settles the result. Unknown users and users without an enabled method get the same
// response shape as a wrong code.
func (s MFAService) VerifyCode(
	ctx context.Context,
	logger *zap.Logger,
	userID uuid.UUID,
	code string,
	isBackupCode bool,
	reqCtx models.RequestContext,
) (models.VerifyResult, error) {
	ctx, span := s.startSpan(ctx, "MFAService.VerifyCode", userID)
	defer span.End()

	started := time.Now()
	v := &verification{userID: userID, code: code, backupCode: isBackupCode, request: reqCtx}

	if err := s.resolve(ctx, v); err != nil {
		return models.VerifyResult{}, err
	}

	limited, err := s.applyLimiter(ctx, v)
	if err != nil {
		return models.VerifyResult{}, err
	}

	if !limited {
		if err = s.applyStrategy(ctx, v); err != nil {
			logger.Error("Verification failed on a hard fault",
				zap.String("user_id", userID.String()),
				zap.String("method", string(v.method)),
				zap.Error(err))
			s.release(ctx, logger, v.reservation)
			return models.VerifyResult{}, err
		}
	}

	result, err := s.settle(ctx, logger, v)
	if err != nil {
		return models.VerifyResult{}, err
	}

	s.Metrics.ObserveVerification(string(v.method), string(v.outcome.Result), time.Since(started))
	return result, nil
}

// resolve picks the configs the candidate is checked against.
func (s MFAService) resolve(ctx context.Context, v *verification) error {
	if v.backupCode {
		v.method = models.MFAMethodBackup
		configs, err := sql.ListEnabled(s.DB.WithContext(ctx), v.userID)
		if err != nil {
			return err
		}
		v.configs = configs
		return nil
	}

	config, found, err := s.resolvePrimary(ctx, v.userID)
	if err != nil {
		return err
	}
	if !found {
		v.method = models.MFAMethodNone
		return nil
	}
	v.method = config.Method
	v.configs = []models.MFAConfig{config}
	return nil
}

func (s MFAService) resolvePrimary(ctx context.Context, userID uuid.UUID) (models.MFAConfig, bool, error) {
	config, err := sql.GetPrimaryEnabled(s.DB.WithContext(ctx), userID)
	if err != nil {
		if apierrors.Is(err, apierrors.ErrMethodNotEnabled) {
			return models.MFAConfig{}, false, nil
		}
		return models.MFAConfig{}, false, err
	}
	return config, true, nil
}

// applyLimiter reserves the attempt's place in the window before any code is compared.
func (s MFAService) applyLimiter(ctx context.Context, v *verification) (bool, error) {
	reservation, err := s.Limiter.Reserve(ctx, ratelimit.Key{UserID: v.userID, Method: v.method}, s.now())
	if err != nil {
		return false, err
	}
	v.reservation = reservation
	decision := reservation.Decision
	if decision.Limited {
		v.outcome = methods.Outcome{Result: models.OutcomeLocked, Error: apierrors.ErrRateLimited}
		s.Metrics.IncRateLimited(string(v.method))
	}
	return decision.Limited, nil
}

func (s MFAService) applyStrategy(ctx context.Context, v *verification) error {
	if len(v.configs) == 0 {
		v.outcome = methods.Outcome{Result: models.OutcomeFailed, Error: s.compareAgainstNothing(v)}
		return nil
	}

	if v.backupCode {
		return s.redeemBackupCode(ctx, v)
	}

	config := v.configs[0]
	strategy, err := s.Registry.Get(config.Method)
	if err != nil {
		return err
	}

	outcome, err := strategy.Verify(ctx, config, v.code)
	if err != nil {
		return err
	}
	v.outcome = outcome
	if outcome.Verified() {
		v.matched = &config
	}
	return nil
}

// Stand-ins for users with nothing to check against. The secret is a valid base32 TOTP seed and
// the salt a valid hex backup code salt.
const (
	dummyTOTPSecret = "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"
	dummyBackupSalt = "00000000000000000000000000000000"
)

// compareAgainstNothing spends the work a wrong code costs against an enrolled user and returns
// the error that user would see.
func (s MFAService) compareAgainstNothing(v *verification) apierrors.Kind {
	if v.backupCode {
		code := helpers.CanonicalizeBackupCode(v.code)
		if !helpers.IsBackupCodeShape(code, s.Settings.BackupCodeLength) {
			helpers.CompareDummyHash(code)
			return apierrors.ErrInvalidCodeFormat
		}
		// One hash for the claim, one for the reuse lookup.
		_ = helpers.HashBackupCode(dummyBackupSalt, code)
		_ = helpers.HashBackupCode(dummyBackupSalt, code)
		return apierrors.ErrInvalidCode
	}

	opts := helpers.TOTPOptionsFromSettings(s.Settings)
	if !helpers.IsNumericCode(v.code, opts.Digits.Length()) {
		return apierrors.ErrInvalidCodeFormat
	}
	_, _, _ = helpers.MatchTOTPStep(dummyTOTPSecret, v.code, s.now(), opts)
	return apierrors.ErrInvalidCode
}

// redeemBackupCode claims the candidate against each enabled config, primary first.
func (s MFAService) redeemBackupCode(ctx context.Context, v *verification) error {
	db := s.DB.WithContext(ctx)
	code := helpers.CanonicalizeBackupCode(v.code)

	if !helpers.IsBackupCodeShape(code, s.Settings.BackupCodeLength) {
		helpers.CompareDummyHash(code)
		v.outcome = methods.Outcome{Result: models.OutcomeFailed, Error: apierrors.ErrInvalidCodeFormat}
		return nil
	}

	for i := range v.configs {
		config := v.configs[i]
		claimed, err := sql.ClaimBackupCode(db, config.ID, helpers.HashBackupCode(config.BackupCodeSalt, code), s.now())
		if err != nil {
			return err
		}
		if claimed {
			v.matched = &config
			v.outcome = methods.Outcome{Result: models.OutcomeVerified}
			return nil
		}
	}

	for _, config := range v.configs {
		exists, err := sql.BackupCodeExists(db, config.ID, helpers.HashBackupCode(config.BackupCodeSalt, code))
		if err != nil {
			return err
		}
		if exists {
			v.outcome = methods.Outcome{Result: models.OutcomeFailed, Error: apierrors.ErrCodeAlreadyUsed}
			return nil
		}
	}

	v.outcome = methods.Outcome{Result: models.OutcomeFailed, Error: apierrors.ErrInvalidCode}
	return nil
}

// settle scores the attempt, records it and builds the response.
func (s MFAService) settle(ctx context.Context, logger *zap.Logger, v *verification) (models.VerifyResult, error) {
	risk := s.assess(ctx, logger, v.userID, v.method, v.backupCode, v.request, v.reservation.Decision)

	var configID *uuid.UUID
	switch {
	case v.matched != nil:
		configID = &v.matched.ID
	case len(v.configs) > 0:
		configID = &v.configs[0].ID
	}

	if err := s.recordAttempt(ctx, logger, attempt{
		UserID:      v.userID,
		Method:      v.method,
		ConfigID:    configID,
		Outcome:     v.outcome.Result,
		Risk:        risk,
		Request:     v.request,
		Reservation: v.reservation,
	}); err != nil {
		return models.VerifyResult{}, err
	}

	result := models.VerifyResult{
		Success: v.outcome.Verified(),
		Error:   v.outcome.Error,
		State:   v.outcome.State(),
		Risk:    risk,
	}

	if v.outcome.Result == models.OutcomeLocked {
		result.RateLimited = true
		result.NextAttemptIn = v.reservation.Decision.NextAttemptIn
		return result, nil
	}

	if !result.Success {
		return result, nil
	}

	result.Method = v.method
	db := s.DB.WithContext(ctx)

	if v.backupCode || v.matched.Method != models.MFAMethodTOTP {
		if err := sql.TouchLastUsed(db, v.matched.ID, s.now()); err != nil {
			logger.Warn("Failed to update last used time", zap.Error(err))
		}
	}

	if v.backupCode {
		remaining, err := sql.CountRemainingBackupCodes(db, v.matched.ID)
		if err != nil {
			return models.VerifyResult{}, err
		}
		result.RemainingBackupCodes = &remaining
		s.Metrics.IncBackupCodeRedeemed()

		logger.Info("Backup code redeemed",
			zap.String("user_id", v.userID.String()),
			zap.String("config_id", v.matched.ID.String()),
			zap.Int("remaining", remaining))
	}

	return result, nil
}
