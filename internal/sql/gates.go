package sql

import (
	"time"

	apierrors "mfaengine/internal/errors"
	"mfaengine/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReserveAttempt passes one attempt through the (user, method) gate and counts it in flight until
// lease. The upsert locks the gate row for the rest of the transaction, so concurrent callers see
// each other in order. It returns the window failures followed by one entry at now per attempt
// that was already in flight.
func ReserveAttempt(
	db *gorm.DB,
	userID uuid.UUID,
	method models.MFAMethod,
	since time.Time,
	now time.Time,
	lease time.Duration,
) ([]time.Time, error) {
	var prior []time.Time

	err := db.Transaction(func(tx *gorm.DB) error {
		gate := models.AttemptGate{UserID: userID, Method: method, LeaseUntil: now, TouchedAt: now}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "method"}},
			DoUpdates: clause.AssignmentColumns([]string{"touched_at"}),
		}).Create(&gate).Error; err != nil {
			return apierrors.StoreUnavailable(err)
		}

		var current models.AttemptGate
		if err := tx.Where("user_id = ? AND method = ?", userID, method).First(&current).Error; err != nil {
			return apierrors.StoreUnavailable(err)
		}

		inFlight := current.InFlight
		if current.LeaseUntil.Before(now) {
			inFlight = 0
		}

		failures, err := FailuresSince(tx, userID, method, since)
		if err != nil {
			return err
		}
		prior = failures
		for range inFlight {
			prior = append(prior, now)
		}

		if err := tx.Model(&models.AttemptGate{}).
			Where("user_id = ? AND method = ?", userID, method).
			Updates(map[string]any{"in_flight": inFlight + 1, "lease_until": now.Add(lease)}).Error; err != nil {
			return apierrors.StoreUnavailable(err)
		}
		return nil
	})
	if err != nil {
		if apierrors.KindOf(err) == "" {
			return nil, apierrors.StoreUnavailable(err)
		}
		return nil, err
	}

	return prior, nil
}

// ReleaseAttempt takes one attempt off the gate once its outcome is recorded or abandoned.
func ReleaseAttempt(db *gorm.DB, userID uuid.UUID, method models.MFAMethod) error {
	err := db.Model(&models.AttemptGate{}).
		Where("user_id = ? AND method = ? AND in_flight > 0", userID, method).
		UpdateColumn("in_flight", gorm.Expr("in_flight - 1")).Error
	if err != nil {
		return apierrors.StoreUnavailable(err)
	}
	return nil
}

// DeleteIdleGates removes gates whose lease ended before the cutoff.
func DeleteIdleGates(db *gorm.DB, before time.Time, limit int) (int64, error) {
	batch := db.Model(&models.AttemptGate{}).
		Select("user_id").
		Where("lease_until < ? AND touched_at < ?", before, before).
		Limit(limit)

	result := db.Where("user_id IN (?) AND lease_until < ? AND touched_at < ?", batch, before, before).
		Delete(&models.AttemptGate{})
	if result.Error != nil {
		return 0, apierrors.StoreUnavailable(result.Error)
	}
	return result.RowsAffected, nil
}
