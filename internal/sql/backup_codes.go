package sql

import (
	"time"

	apierrors "mfaengine/internal/errors"
	"mfaengine/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReplaceBackupCodes swaps the whole code set of a config, invalidating every previous code.
func ReplaceBackupCodes(db *gorm.DB, configID uuid.UUID, hashes []string) error {
	codes := make([]models.BackupCode, len(hashes))
	for i, hash := range hashes {
		codes[i] = models.BackupCode{ConfigID: configID, Position: i, CodeHash: hash}
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("config_id = ?", configID).Delete(&models.BackupCode{}).Error; err != nil {
			return err
		}
		if len(codes) == 0 {
			return nil
		}
		return tx.Create(&codes).Error
	})
	if err != nil {
		return apierrors.StoreUnavailable(err)
	}

	return nil
}

// ClaimBackupCode marks a code as used with one conditional update.
// Exactly one of several concurrent claimants sees true.
func ClaimBackupCode(db *gorm.DB, configID uuid.UUID, hash string, at time.Time) (bool, error) {
	result := db.Model(&models.BackupCode{}).
		Where("config_id = ? AND code_hash = ? AND used_at IS NULL", configID, hash).
		Update("used_at", at)
	if result.Error != nil {
		return false, apierrors.StoreUnavailable(result.Error)
	}
	return result.RowsAffected == 1, nil
}

// BackupCodeExists reports whether hash belongs to the config's current set, used or not.
func BackupCodeExists(db *gorm.DB, configID uuid.UUID, hash string) (bool, error) {
	var count int64
	if err := db.Model(&models.BackupCode{}).
		Where("config_id = ? AND code_hash = ?", configID, hash).
		Count(&count).Error; err != nil {
		return false, apierrors.StoreUnavailable(err)
	}
	return count > 0, nil
}

func CountRemainingBackupCodes(db *gorm.DB, configID uuid.UUID) (int, error) {
	var count int64
	if err := db.Model(&models.BackupCode{}).
		Where("config_id = ? AND used_at IS NULL", configID).
		Count(&count).Error; err != nil {
		return 0, apierrors.StoreUnavailable(err)
	}
	return int(count), nil
}
