package sql

import (
	"time"

	apierrors "mfaengine/internal/errors"
	"mfaengine/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var failureOutcomes = []models.AttemptOutcome{
	models.OutcomeFailed,
	models.OutcomeExpired,
	models.OutcomeLocked,
}

// AppendAttempt inserts one audit row. Rows are never updated.
func AppendAttempt(db *gorm.DB, attempt *models.VerificationAttempt) error {
	if err := db.Create(attempt).Error; err != nil {
		return apierrors.StoreUnavailable(err)
	}
	return nil
}

// FailuresSince returns, in receipt order, the failure timestamps for (user, method) recorded at or
// after since and after the key's latest success.
func FailuresSince(db *gorm.DB, userID uuid.UUID, method models.MFAMethod, since time.Time) ([]time.Time, error) {
	lastSuccess := db.Model(&models.VerificationAttempt{}).
		Select("COALESCE(MAX(id), 0)").
		Where("user_id = ? AND method = ? AND success = ?", userID, method, true)

	var timestamps []time.Time
	err := db.Model(&models.VerificationAttempt{}).
		Where("user_id = ? AND method = ? AND outcome IN ? AND created_at >= ?", userID, method, failureOutcomes, since).
		Where("id > (?)", lastSuccess).
		Order("id ASC").
		Pluck("created_at", &timestamps).Error
	if err != nil {
		return nil, apierrors.StoreUnavailable(err)
	}

	return timestamps, nil
}

// CountUserFailuresSince counts failures of a user across every method.
func CountUserFailuresSince(db *gorm.DB, userID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	if err := db.Model(&models.VerificationAttempt{}).
		Where("user_id = ? AND outcome IN ? AND created_at >= ?", userID, failureOutcomes, since).
		Count(&count).Error; err != nil {
		return 0, apierrors.StoreUnavailable(err)
	}
	return count, nil
}

// SuccessHistory summarizes past successful verifications of a user for risk scoring.
type SuccessHistory struct {
	Total          int64
	KnownIP        bool
	KnownUserAgent bool
}

func GetSuccessHistory(db *gorm.DB, userID uuid.UUID, ip string, userAgent string) (SuccessHistory, error) {
	var history SuccessHistory

	base := func() *gorm.DB {
		return db.Model(&models.VerificationAttempt{}).Where("user_id = ? AND success = ?", userID, true)
	}

	if err := base().Count(&history.Total).Error; err != nil {
		return SuccessHistory{}, apierrors.StoreUnavailable(err)
	}
	if history.Total == 0 {
		return history, nil
	}

	var count int64
	if err := base().Where("ip_address = ?", ip).Count(&count).Error; err != nil {
		return SuccessHistory{}, apierrors.StoreUnavailable(err)
	}
	history.KnownIP = count > 0

	if err := base().Where("user_agent = ?", userAgent).Count(&count).Error; err != nil {
		return SuccessHistory{}, apierrors.StoreUnavailable(err)
	}
	history.KnownUserAgent = count > 0

	return history, nil
}

// LastSuccessAt returns the time of the user's latest successful verification, if any.
func LastSuccessAt(db *gorm.DB, userID uuid.UUID) (*time.Time, error) {
	var attempt models.VerificationAttempt

	result := db.Where("user_id = ? AND success = ?", userID, true).Order("id DESC").Limit(1).Find(&attempt)
	if result.Error != nil {
		return nil, apierrors.StoreUnavailable(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}

	return &attempt.CreatedAt, nil
}

// DeleteAttemptsBefore prunes audit rows past the retention period.
func DeleteAttemptsBefore(db *gorm.DB, before time.Time, limit int) (int64, error) {
	batch := db.Model(&models.VerificationAttempt{}).
		Select("id").
		Where("created_at < ?", before).
		Limit(limit)

	result := db.Where("id IN (?)", batch).Delete(&models.VerificationAttempt{})
	if result.Error != nil {
		return 0, apierrors.StoreUnavailable(result.Error)
	}
	return result.RowsAffected, nil
}
