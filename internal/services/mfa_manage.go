package services

import (
	"context"
	"time"

	"mfaengine/internal/activity"
	apierrors "mfaengine/internal/errors"
	"mfaengine/internal/events"
	"mfaengine/internal/helpers"
	"mfaengine/internal/models"
	"mfaengine/internal/sql"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DisableMethod turns a config off without checking whether it is the user's last one.
// That policy belongs to the caller. It reports whether anything changed.
func (s MFAService) DisableMethod(
	ctx context.Context,
	logger *zap.Logger,
	userID uuid.UUID,
	configID uuid.UUID,
	reason string,
) (bool, error) {
	ctx, span := s.startSpan(ctx, "MFAService.DisableMethod", userID)
	defer span.End()

	db := s.DB.WithContext(ctx)
	changed, err := sql.Disable(db, userID, configID, reason, s.now())
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	config := models.MFAConfig{ID: configID, UserID: userID}
	if configs, listErr := sql.ListConfigs(db, userID); listErr == nil {
		for _, c := range configs {
			if c.ID == configID {
				config = c
			}
		}
	}

	s.logConfigActivity(logger, activity.MFAMethodDisabled, config)
	payload := s.configEvent(events.TypeMethodDisabled, config)
	payload.Reason = reason
	s.emit(logger, payload)
	s.Metrics.IncEnrollment(string(config.Method), "disabled")

	logger.Info("MFA method disabled",
		zap.String("user_id", userID.String()),
		zap.String("config_id", configID.String()),
		zap.String("reason", reason))

	return true, nil
}

// RegenerateBackupCodes replaces every code of a config. Old codes stop working immediately.
func (s MFAService) RegenerateBackupCodes(
	ctx context.Context,
	logger *zap.Logger,
	userID uuid.UUID,
	configID uuid.UUID,
) (models.BackupCodesResult, error) {
	ctx, span := s.startSpan(ctx, "MFAService.RegenerateBackupCodes", userID)
	defer span.End()

	db := s.DB.WithContext(ctx)
	config, err := sql.GetConfig(db, userID, configID)
	if err != nil {
		return models.BackupCodesResult{}, err
	}

	codes, err := helpers.GenerateBackupCodes(s.Settings.BackupCodesCount, s.Settings.BackupCodeLength)
	if err != nil {
		return models.BackupCodesResult{}, apierrors.EncryptionFailure(err)
	}

	if err = sql.ReplaceBackupCodes(db, config.ID, hashBackupCodes(config.BackupCodeSalt, codes)); err != nil {
		logger.Error("Failed to replace backup codes", zap.String("config_id", configID.String()), zap.Error(err))
		return models.BackupCodesResult{}, err
	}

	s.logConfigActivity(logger, activity.MFABackupCodesRegenerated, config)
	s.emit(logger, s.configEvent(events.TypeBackupCodesRegenerated, config))

	return models.BackupCodesResult{BackupCodes: displayBackupCodes(codes)}, nil
}

// GetUserMFAMethods lists enabled methods only. Unverified setups stay hidden.
func (s MFAService) GetUserMFAMethods(ctx context.Context, userID uuid.UUID) ([]models.MethodSummary, error) {
	ctx, span := s.startSpan(ctx, "MFAService.GetUserMFAMethods", userID)
	defer span.End()

	db := s.DB.WithContext(ctx)
	exists, err := sql.UserExists(db, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apierrors.NewAPIError(404, apierrors.ErrUserNotFound)
	}

	configs, err := sql.ListEnabled(db, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.MethodSummary, 0, len(configs))
	for _, c := range configs {
		summaries = append(summaries, models.MethodSummary{
			ConfigID:  c.ID,
			Method:    c.Method,
			IsPrimary: c.IsPrimary,
			IsEnabled: c.IsEnabled,
			LastUsed:  c.LastUsedAt,
			Target:    helpers.MaskTarget(c.Method, c.Target),
		})
	}

	return summaries, nil
}

// GetSecurityActivity reads the user's audit trail since the given time, newest first, together
// with attempt totals per outcome over the same period. A zero since means the last 30 days.
func (s MFAService) GetSecurityActivity(
	ctx context.Context,
	userID uuid.UUID,
	since time.Time,
	limit int,
) (models.SecurityActivity, error) {
	ctx, span := s.startSpan(ctx, "MFAService.GetSecurityActivity", userID)
	defer span.End()

	exists, err := sql.UserExists(s.DB.WithContext(ctx), userID)
	if err != nil {
		return models.SecurityActivity{}, err
	}
	if !exists {
		return models.SecurityActivity{}, apierrors.NewAPIError(404, apierrors.ErrUserNotFound)
	}

	if s.ActivityLogger == nil {
		return models.SecurityActivity{}, nil
	}

	query := models.AuditQuery{UserID: userID.String(), Since: since, Until: s.now(), Limit: limit}

	entries, err := s.ActivityLogger.Search(query)
	if err != nil {
		return models.SecurityActivity{}, apierrors.StoreUnavailable(err)
	}
	outcomes, err := s.ActivityLogger.CountByOutcome(query)
	if err != nil {
		return models.SecurityActivity{}, apierrors.StoreUnavailable(err)
	}

	return models.SecurityActivity{Entries: entries, Outcomes: outcomes}, nil
}
