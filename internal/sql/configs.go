package sql

import (
	"errors"
	"time"

	apierrors "mfaengine/internal/errors"
	"mfaengine/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConfigMaterial is the method-specific data stored on a new config.
type ConfigMaterial struct {
	SecretEncrypted string
	Target          string
	BackupCodeSalt  string
	PromoteOnVerify bool
}

func GetUser(db *gorm.DB, userID uuid.UUID) (models.User, error) {
	var user models.User

	if err := db.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, apierrors.NewAPIError(404, apierrors.ErrUserNotFound)
		}
		return models.User{}, apierrors.StoreUnavailable(err)
	}

	return user, nil
}

func UserExists(db *gorm.DB, userID uuid.UUID) (bool, error) {
	var count int64
	if err := db.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return false, apierrors.StoreUnavailable(err)
	}
	return count > 0, nil
}

// CreateConfig inserts an unverified, disabled config. Existing configs are never touched.
func CreateConfig(
	db *gorm.DB,
	userID uuid.UUID,
	method models.MFAMethod,
	material ConfigMaterial,
) (models.MFAConfig, error) {
	var count int64
	if err := db.Model(&models.MFAConfig{}).
		Where("user_id = ? AND method = ? AND is_enabled = ?", userID, method, true).
		Count(&count).Error; err != nil {
		return models.MFAConfig{}, apierrors.StoreUnavailable(err)
	}
	if count > 0 {
		return models.MFAConfig{}, apierrors.NewAPIError(409, apierrors.ErrDuplicateMethodForUser)
	}

	config := models.MFAConfig{
		UserID:          userID,
		Method:          method,
		SecretEncrypted: material.SecretEncrypted,
		Target:          material.Target,
		BackupCodeSalt:  material.BackupCodeSalt,
		PromoteOnVerify: material.PromoteOnVerify,
	}
	if err := db.Create(&config).Error; err != nil {
		return models.MFAConfig{}, apierrors.StoreUnavailable(err)
	}

	return config, nil
}

// GetConfig returns a config owned by userID. Disabled configs are reported as missing.
func GetConfig(db *gorm.DB, userID uuid.UUID, configID uuid.UUID) (models.MFAConfig, error) {
	var config models.MFAConfig

	err := db.Where("id = ? AND user_id = ? AND disabled_at IS NULL", configID, userID).First(&config).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.MFAConfig{}, apierrors.NewAPIError(404, apierrors.ErrConfigNotFound)
		}
		return models.MFAConfig{}, apierrors.StoreUnavailable(err)
	}

	return config, nil
}

// ListEnabled returns enabled configs, primary first then oldest first.
func ListEnabled(db *gorm.DB, userID uuid.UUID) ([]models.MFAConfig, error) {
	var configs []models.MFAConfig

	if err := db.Where("user_id = ? AND is_enabled = ?", userID, true).
		Order("is_primary DESC, created_at ASC").
		Find(&configs).Error; err != nil {
		return nil, apierrors.StoreUnavailable(err)
	}

	return configs, nil
}

// ListConfigs returns every config of a user, including unverified and disabled ones.
func ListConfigs(db *gorm.DB, userID uuid.UUID) ([]models.MFAConfig, error) {
	var configs []models.MFAConfig

	if err := db.Where("user_id = ?", userID).Order("created_at ASC").Find(&configs).Error; err != nil {
		return nil, apierrors.StoreUnavailable(err)
	}

	return configs, nil
}

// GetPrimaryEnabled returns the config a new challenge should use.
func GetPrimaryEnabled(db *gorm.DB, userID uuid.UUID) (models.MFAConfig, error) {
	configs, err := ListEnabled(db, userID)
	if err != nil {
		return models.MFAConfig{}, err
	}
	if len(configs) == 0 {
		return models.MFAConfig{}, apierrors.NewAPIError(404, apierrors.ErrMethodNotEnabled)
	}
	return configs[0], nil
}

func lockUserConfigs(tx *gorm.DB, userID uuid.UUID) ([]models.MFAConfig, error) {
	var configs []models.MFAConfig
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&configs).Error
	if err != nil {
		return nil, apierrors.StoreUnavailable(err)
	}
	return configs, nil
}

// MarkVerified enables a config. When promote is set, or when the user has no enabled primary,
// the config becomes primary and any prior primary is demoted in the same transaction.
func MarkVerified(
	db *gorm.DB,
	userID uuid.UUID,
	configID uuid.UUID,
	promote bool,
	at time.Time,
) (models.MFAConfig, error) {
	var verified models.MFAConfig

	err := db.Transaction(func(tx *gorm.DB) error {
		configs, err := lockUserConfigs(tx, userID)
		if err != nil {
			return err
		}

		var target *models.MFAConfig
		hasPrimary := false
		for i := range configs {
			c := &configs[i]
			if c.ID == configID {
				target = c
				continue
			}
			if c.IsEnabled && c.IsPrimary {
				hasPrimary = true
			}
		}
		if target == nil || target.DisabledAt != nil {
			return apierrors.NewAPIError(404, apierrors.ErrConfigNotFound)
		}
		if target.IsEnabled {
			verified = *target
			return nil
		}

		for _, c := range configs {
			if c.ID != configID && c.IsEnabled && c.Method == target.Method {
				return apierrors.NewAPIError(409, apierrors.ErrDuplicateMethodForUser)
			}
		}

		makePrimary := promote || !hasPrimary
		if makePrimary && hasPrimary {
			if err = tx.Model(&models.MFAConfig{}).
				Where("user_id = ? AND id <> ? AND is_primary = ?", userID, configID, true).
				Update("is_primary", false).Error; err != nil {
				return apierrors.StoreUnavailable(err)
			}
		}

		if err = tx.Model(target).Updates(map[string]any{
			"is_enabled":   true,
			"is_primary":   makePrimary,
			"verified_at":  at,
			"last_used_at": at,
		}).Error; err != nil {
			return apierrors.StoreUnavailable(err)
		}

		verified = *target
		verified.IsEnabled = true
		verified.IsPrimary = makePrimary
		verified.VerifiedAt = &at
		verified.LastUsedAt = &at
		return nil
	})

	return verified, err
}

// Disable turns a config off unconditionally. If it was primary, the oldest remaining
// enabled config is promoted in the same transaction.
func Disable(db *gorm.DB, userID uuid.UUID, configID uuid.UUID, reason string, at time.Time) (bool, error) {
	changed := false

	err := db.Transaction(func(tx *gorm.DB) error {
		configs, err := lockUserConfigs(tx, userID)
		if err != nil {
			return err
		}

		var target *models.MFAConfig
		for i := range configs {
			if configs[i].ID == configID {
				target = &configs[i]
			}
		}
		if target == nil {
			return apierrors.NewAPIError(404, apierrors.ErrConfigNotFound)
		}
		if target.DisabledAt != nil {
			return nil
		}

		if err = tx.Model(target).Updates(map[string]any{
			"is_enabled":      false,
			"is_primary":      false,
			"disabled_at":     at,
			"disabled_reason": reason,
		}).Error; err != nil {
			return apierrors.StoreUnavailable(err)
		}

		if err = tx.Where("config_id = ?", configID).Delete(&models.PendingChallenge{}).Error; err != nil {
			return apierrors.StoreUnavailable(err)
		}

		if target.IsPrimary {
			for _, c := range configs {
				if c.ID != configID && c.IsEnabled {
					if err = tx.Model(&models.MFAConfig{}).
						Where("id = ?", c.ID).
						Update("is_primary", true).Error; err != nil {
						return apierrors.StoreUnavailable(err)
					}
					break
				}
			}
		}

		changed = true
		return nil
	})

	return changed, err
}

// AdvanceTOTPStep records step as the last accepted TOTP counter. It only succeeds when step is
// newer than the stored one, so a code is consumed at most once across the drift window.
func AdvanceTOTPStep(db *gorm.DB, configID uuid.UUID, step int64, at time.Time) (bool, error) {
	result := db.Model(&models.MFAConfig{}).
		Where("id = ? AND (last_totp_step IS NULL OR last_totp_step < ?)", configID, step).
		Updates(map[string]any{"last_totp_step": step, "last_used_at": at})
	if result.Error != nil {
		return false, apierrors.StoreUnavailable(result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ResealSecret swaps the stored secret ciphertext only if it still equals previous.
func ResealSecret(db *gorm.DB, configID uuid.UUID, previous string, next string) (bool, error) {
	result := db.Model(&models.MFAConfig{}).
		Where("id = ? AND secret_encrypted = ?", configID, previous).
		Update("secret_encrypted", next)
	if result.Error != nil {
		return false, apierrors.StoreUnavailable(result.Error)
	}
	return result.RowsAffected == 1, nil
}

func TouchLastUsed(db *gorm.DB, configID uuid.UUID, at time.Time) error {
	if err := db.Model(&models.MFAConfig{}).
		Where("id = ?", configID).
		Update("last_used_at", at).Error; err != nil {
		return apierrors.StoreUnavailable(err)
	}
	return nil
}

// DeleteStaleUnverified removes setup attempts that were never completed.
func DeleteStaleUnverified(db *gorm.DB, before time.Time, limit int) (int64, error) {
	var ids []uuid.UUID
	if err := db.Model(&models.MFAConfig{}).
		Where("is_enabled = ? AND verified_at IS NULL AND disabled_at IS NULL AND created_at < ?", false, before).
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return 0, apierrors.StoreUnavailable(err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("config_id IN ?", ids).Delete(&models.BackupCode{}).Error; err != nil {
			return err
		}
		if err := tx.Where("config_id IN ?", ids).Delete(&models.PendingChallenge{}).Error; err != nil {
			return err
		}
		result := tx.Where("id IN ? AND is_enabled = ?", ids, false).Delete(&models.MFAConfig{})
		deleted = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, apierrors.StoreUnavailable(err)
	}

	return deleted, nil
}
