package sql

import (
	"errors"
	"time"

	apierrors "mfaengine/internal/errors"
	"mfaengine/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func CreateChallenge(db *gorm.DB, challenge *models.PendingChallenge) error {
	if err := db.Create(challenge).Error; err != nil {
		return apierrors.StoreUnavailable(err)
	}
	return nil
}

// DeleteOpenChallenges drops every unconsumed challenge of a config before a new issuance.
func DeleteOpenChallenges(db *gorm.DB, configID uuid.UUID) error {
	if err := db.Where("config_id = ? AND consumed_at IS NULL", configID).
		Delete(&models.PendingChallenge{}).Error; err != nil {
		return apierrors.StoreUnavailable(err)
	}
	return nil
}

// LatestOpenChallenge returns the newest unconsumed challenge. A missing challenge is reported
// as expired since the caller must issue a fresh one either way.
func LatestOpenChallenge(db *gorm.DB, configID uuid.UUID) (models.PendingChallenge, error) {
	var challenge models.PendingChallenge

	err := db.Where("config_id = ? AND consumed_at IS NULL", configID).
		Order("issued_at DESC").
		First(&challenge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.PendingChallenge{}, apierrors.NewAPIError(410, apierrors.ErrCodeExpired)
		}
		return models.PendingChallenge{}, apierrors.StoreUnavailable(err)
	}

	return challenge, nil
}

// IncrementChallengeAttempt reserves one attempt on the challenge. It fails once the cap is reached.
func IncrementChallengeAttempt(db *gorm.DB, challengeID uuid.UUID) (bool, error) {
	result := db.Model(&models.PendingChallenge{}).
		Where("id = ? AND consumed_at IS NULL AND attempt_count < max_attempts", challengeID).
		Update("attempt_count", gorm.Expr("attempt_count + 1"))
	if result.Error != nil {
		return false, apierrors.StoreUnavailable(result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ConsumeChallenge marks the challenge used. Only one concurrent verifier can consume it.
func ConsumeChallenge(db *gorm.DB, challengeID uuid.UUID, at time.Time) (bool, error) {
	result := db.Model(&models.PendingChallenge{}).
		Where("id = ? AND consumed_at IS NULL", challengeID).
		Update("consumed_at", at)
	if result.Error != nil {
		return false, apierrors.StoreUnavailable(result.Error)
	}
	return result.RowsAffected == 1, nil
}

func DeleteChallenge(db *gorm.DB, challengeID uuid.UUID) error {
	if err := db.Where("id = ?", challengeID).Delete(&models.PendingChallenge{}).Error; err != nil {
		return apierrors.StoreUnavailable(err)
	}
	return nil
}

// DeleteExpiredChallenges hard-deletes up to limit challenges that expired or were consumed.
func DeleteExpiredChallenges(db *gorm.DB, now time.Time, limit int) (int64, error) {
	batch := db.Model(&models.PendingChallenge{}).
		Select("id").
		Where("expires_at < ? OR consumed_at IS NOT NULL", now).
		Limit(limit)

	result := db.Where("id IN (?)", batch).Delete(&models.PendingChallenge{})
	if result.Error != nil {
		return 0, apierrors.StoreUnavailable(result.Error)
	}
	return result.RowsAffected, nil
}
