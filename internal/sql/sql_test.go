package sql

import (
	"database/sql"
	"regexp"
	"sync"
	"testing"
	"time"

	"mfaengine/internal/database/dbtest"
	apierrors "mfaengine/internal/errors"
	"mfaengine/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func seedUser(t *testing.T, db *gorm.DB) models.User {
	t.Helper()
	user := models.User{ID: uuid.New(), Email: "user@example.com"}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func TestGetUser(t *testing.T) {
	db := dbtest.NewSQLite(t)
	user := seedUser(t, db)

	t.Run("should return existing user", func(t *testing.T) {
		found, err := GetUser(db, user.ID)
		require.NoError(t, err)
		assert.Equal(t, user.ID, found.ID)
	})

	t.Run("should report unknown user", func(t *testing.T) {
		_, err := GetUser(db, uuid.New())
		assert.True(t, apierrors.Is(err, apierrors.ErrUserNotFound))

		exists, err := UserExists(db, uuid.New())
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestConfigLifecycle(t *testing.T) {
	db := dbtest.NewSQLite(t)
	user := seedUser(t, db)
	now := time.Now().UTC()

	totpConfig, err := CreateConfig(db, user.ID, models.MFAMethodTOTP, ConfigMaterial{SecretEncrypted: "enc", BackupCodeSalt: "salt"})
	require.NoError(t, err)
	assert.False(t, totpConfig.IsEnabled)

	t.Run("should not list unverified configs", func(t *testing.T) {
		configs, err := ListEnabled(db, user.ID)
		require.NoError(t, err)
		assert.Empty(t, configs)

		_, err = GetPrimaryEnabled(db, user.ID)
		assert.True(t, apierrors.Is(err, apierrors.ErrMethodNotEnabled))
	})

	t.Run("should make the first verified config primary", func(t *testing.T) {
		verified, err := MarkVerified(db, user.ID, totpConfig.ID, false, now)
		require.NoError(t, err)
		assert.True(t, verified.IsEnabled)
		assert.True(t, verified.IsPrimary)
		assert.NotNil(t, verified.VerifiedAt)
	})

	t.Run("should be idempotent when verifying twice", func(t *testing.T) {
		verified, err := MarkVerified(db, user.ID, totpConfig.ID, false, now)
		require.NoError(t, err)
		assert.True(t, verified.IsPrimary)
	})

	t.Run("should reject a second enabled config of the same method", func(t *testing.T) {
		_, err := CreateConfig(db, user.ID, models.MFAMethodTOTP, ConfigMaterial{BackupCodeSalt: "salt"})
		assert.True(t, apierrors.Is(err, apierrors.ErrDuplicateMethodForUser))
	})

	var smsConfig models.MFAConfig
	t.Run("should keep the existing primary when promotion is not requested", func(t *testing.T) {
		smsConfig, err = CreateConfig(db, user.ID, models.MFAMethodSMS, ConfigMaterial{Target: "+14155550100", BackupCodeSalt: "salt"})
		require.NoError(t, err)

		verified, err := MarkVerified(db, user.ID, smsConfig.ID, false, now)
		require.NoError(t, err)
		assert.False(t, verified.IsPrimary)

		primary, err := GetPrimaryEnabled(db, user.ID)
		require.NoError(t, err)
		assert.Equal(t, totpConfig.ID, primary.ID)
	})

	t.Run("should demote the previous primary on promotion", func(t *testing.T) {
		emailConfig, err := CreateConfig(db, user.ID, models.MFAMethodEmail, ConfigMaterial{Target: "a@b.io", BackupCodeSalt: "salt"})
		require.NoError(t, err)

		_, err = MarkVerified(db, user.ID, emailConfig.ID, true, now)
		require.NoError(t, err)

		configs, err := ListEnabled(db, user.ID)
		require.NoError(t, err)
		require.Len(t, configs, 3)
		assert.Equal(t, emailConfig.ID, configs[0].ID)

		primaries := 0
		for _, c := range configs {
			if c.IsPrimary {
				primaries++
			}
		}
		assert.Equal(t, 1, primaries)

		changed, err := Disable(db, user.ID, emailConfig.ID, "lost device", now)
		require.NoError(t, err)
		assert.True(t, changed)

		primary, err := GetPrimaryEnabled(db, user.ID)
		require.NoError(t, err)
		assert.Equal(t, totpConfig.ID, primary.ID)
	})

	t.Run("should disable unconditionally and report no change the second time", func(t *testing.T) {
		changed, err := Disable(db, user.ID, totpConfig.ID, "user request", now)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = Disable(db, user.ID, totpConfig.ID, "user request", now)
		require.NoError(t, err)
		assert.False(t, changed)

		all, err := ListConfigs(db, user.ID)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		_, err = GetConfig(db, user.ID, totpConfig.ID)
		assert.True(t, apierrors.Is(err, apierrors.ErrConfigNotFound))

		primary, err := GetPrimaryEnabled(db, user.ID)
		require.NoError(t, err)
		assert.Equal(t, smsConfig.ID, primary.ID)
	})

	t.Run("should not find configs of another user", func(t *testing.T) {
		_, err := GetConfig(db, uuid.New(), smsConfig.ID)
		assert.True(t, apierrors.Is(err, apierrors.ErrConfigNotFound))

		_, err = Disable(db, uuid.New(), smsConfig.ID, "", now)
		assert.True(t, apierrors.Is(err, apierrors.ErrConfigNotFound))
	})
}

func TestAdvanceTOTPStep(t *testing.T) {
	db := dbtest.NewSQLite(t)
	user := seedUser(t, db)
	config, err := CreateConfig(db, user.ID, models.MFAMethodTOTP, ConfigMaterial{BackupCodeSalt: "salt"})
	require.NoError(t, err)
	now := time.Now().UTC()

	ok, err := AdvanceTOTPStep(db, config.ID, 100, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = AdvanceTOTPStep(db, config.ID, 100, now)
	require.NoError(t, err)
	assert.False(t, ok, "same step must not be accepted twice")

	ok, err = AdvanceTOTPStep(db, config.ID, 99, now)
	require.NoError(t, err)
	assert.False(t, ok, "older step must be rejected")

	ok, err = AdvanceTOTPStep(db, config.ID, 101, now)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBackupCodes(t *testing.T) {
	db := dbtest.NewSQLite(t)
	user := seedUser(t, db)
	config, err := CreateConfig(db, user.ID, models.MFAMethodTOTP, ConfigMaterial{BackupCodeSalt: "salt"})
	require.NoError(t, err)
	now := time.Now().UTC()

	require.NoError(t, ReplaceBackupCodes(db, config.ID, []string{"h1", "h2", "h3"}))

	remaining, err := CountRemainingBackupCodes(db, config.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)

	t.Run("should claim a code once", func(t *testing.T) {
		ok, err := ClaimBackupCode(db, config.ID, "h1", now)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = ClaimBackupCode(db, config.ID, "h1", now)
		require.NoError(t, err)
		assert.False(t, ok)

		exists, err := BackupCodeExists(db, config.ID, "h1")
		require.NoError(t, err)
		assert.True(t, exists)

		remaining, err := CountRemainingBackupCodes(db, config.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, remaining)
	})

	t.Run("should let exactly one concurrent claimant win", func(t *testing.T) {
		const claimants = 8
		var wg sync.WaitGroup
		wins := make(chan bool, claimants)

		for range claimants {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := ClaimBackupCode(db, config.ID, "h2", now)
				assert.NoError(t, err)
				wins <- ok
			}()
		}
		wg.Wait()
		close(wins)

		winners := 0
		for ok := range wins {
			if ok {
				winners++
			}
		}
		assert.Equal(t, 1, winners)
	})

	t.Run("should invalidate the old set on replace", func(t *testing.T) {
		require.NoError(t, ReplaceBackupCodes(db, config.ID, []string{"n1", "n2"}))

		exists, err := BackupCodeExists(db, config.ID, "h3")
		require.NoError(t, err)
		assert.False(t, exists)

		remaining, err := CountRemainingBackupCodes(db, config.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, remaining)
	})
}

func TestChallenges(t *testing.T) {
	db := dbtest.NewSQLite(t)
	user := seedUser(t, db)
	config, err := CreateConfig(db, user.ID, models.MFAMethodSMS, ConfigMaterial{Target: "+14155550100", BackupCodeSalt: "salt"})
	require.NoError(t, err)
	now := time.Now().UTC()

	t.Run("should report expired when nothing is open", func(t *testing.T) {
		_, err := LatestOpenChallenge(db, config.ID)
		assert.True(t, apierrors.Is(err, apierrors.ErrCodeExpired))
	})

	first := models.PendingChallenge{
		ConfigID: config.ID, UserID: user.ID, CodeHash: "a", Channel: models.ChannelSMS,
		MaxAttempts: 2, IssuedAt: now.Add(-time.Minute), ExpiresAt: now.Add(9 * time.Minute),
	}
	require.NoError(t, CreateChallenge(db, &first))

	t.Run("should supersede open challenges", func(t *testing.T) {
		require.NoError(t, DeleteOpenChallenges(db, config.ID))
		second := models.PendingChallenge{
			ConfigID: config.ID, UserID: user.ID, CodeHash: "b", Channel: models.ChannelSMS,
			MaxAttempts: 2, IssuedAt: now, ExpiresAt: now.Add(10 * time.Minute),
		}
		require.NoError(t, CreateChallenge(db, &second))

		open, err := LatestOpenChallenge(db, config.ID)
		require.NoError(t, err)
		assert.Equal(t, second.ID, open.ID)

		ok, err := IncrementChallengeAttempt(db, second.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = IncrementChallengeAttempt(db, second.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = IncrementChallengeAttempt(db, second.ID)
		require.NoError(t, err)
		assert.False(t, ok, "attempt cap reached")

		consumed, err := ConsumeChallenge(db, second.ID, now)
		require.NoError(t, err)
		assert.True(t, consumed)
		consumed, err = ConsumeChallenge(db, second.ID, now)
		require.NoError(t, err)
		assert.False(t, consumed)
	})

	t.Run("should delete expired and consumed challenges", func(t *testing.T) {
		expired := models.PendingChallenge{
			ConfigID: config.ID, UserID: user.ID, CodeHash: "c", Channel: models.ChannelSMS,
			MaxAttempts: 5, IssuedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-time.Minute),
		}
		require.NoError(t, CreateChallenge(db, &expired))

		deleted, err := DeleteExpiredChallenges(db, now, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)

		var count int64
		require.NoError(t, db.Model(&models.PendingChallenge{}).Count(&count).Error)
		assert.Zero(t, count)
	})
}

func TestAttempts(t *testing.T) {
	db := dbtest.NewSQLite(t)
	user := seedUser(t, db)
	now := time.Now().UTC()

	record := func(outcome models.AttemptOutcome, at time.Time, ip string) {
		require.NoError(t, AppendAttempt(db, &models.VerificationAttempt{
			UserID:    user.ID,
			Method:    models.MFAMethodTOTP,
			Outcome:   outcome,
			Success:   outcome == models.OutcomeVerified,
			IPAddress: ip,
			UserAgent: "agent",
			CreatedAt: at,
		}))
	}

	record(models.OutcomeFailed, now.Add(-4*time.Minute), "10.0.0.1")
	record(models.OutcomeVerified, now.Add(-3*time.Minute), "10.0.0.1")
	record(models.OutcomeFailed, now.Add(-2*time.Minute), "10.0.0.2")
	record(models.OutcomeLocked, now.Add(-time.Minute), "10.0.0.2")
	record(models.OutcomeIssued, now, "10.0.0.2")

	t.Run("should only count failures after the last success", func(t *testing.T) {
		failures, err := FailuresSince(db, user.ID, models.MFAMethodTOTP, now.Add(-time.Hour))
		require.NoError(t, err)
		require.Len(t, failures, 2)
		assert.True(t, failures[0].Before(failures[1]))
	})

	t.Run("should scope failures by method", func(t *testing.T) {
		failures, err := FailuresSince(db, user.ID, models.MFAMethodSMS, now.Add(-time.Hour))
		require.NoError(t, err)
		assert.Empty(t, failures)
	})

	t.Run("should count failures across methods", func(t *testing.T) {
		count, err := CountUserFailuresSince(db, user.ID, now.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})

	t.Run("should summarize success history", func(t *testing.T) {
		history, err := GetSuccessHistory(db, user.ID, "10.0.0.1", "agent")
		require.NoError(t, err)
		assert.Equal(t, int64(1), history.Total)
		assert.True(t, history.KnownIP)
		assert.True(t, history.KnownUserAgent)

		last, err := LastSuccessAt(db, user.ID)
		require.NoError(t, err)
		require.NotNil(t, last)

		history, err = GetSuccessHistory(db, user.ID, "10.0.0.9", "other")
		require.NoError(t, err)
		assert.False(t, history.KnownIP)
		assert.False(t, history.KnownUserAgent)
	})

	t.Run("should prune old attempts", func(t *testing.T) {
		deleted, err := DeleteAttemptsBefore(db, now.Add(-150*time.Second), 100)
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)
	})
}

func TestDeleteStaleUnverified(t *testing.T) {
	db := dbtest.NewSQLite(t)
	user := seedUser(t, db)

	stale, err := CreateConfig(db, user.ID, models.MFAMethodTOTP, ConfigMaterial{BackupCodeSalt: "salt"})
	require.NoError(t, err)
	require.NoError(t, ReplaceBackupCodes(db, stale.ID, []string{"x"}))

	deleted, err := DeleteStaleUnverified(db, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var codes int64
	require.NoError(t, db.Model(&models.BackupCode{}).Count(&codes).Error)
	assert.Zero(t, codes)
}

func TestClaimBackupCode_Query(t *testing.T) {
	t.Run("should issue a conditional update", func(t *testing.T) {
		db, mock := newMockDB(t)
		configID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "mfa_backup_codes" SET "used_at"=$1 WHERE config_id = $2 AND code_hash = $3 AND used_at IS NULL`)).
			WithArgs(sqlmock.AnyArg(), configID, "hash").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		ok, err := ClaimBackupCode(db, configID, "hash", time.Now())
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should surface store failures as unavailable", func(t *testing.T) {
		db, mock := newMockDB(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "mfa_backup_codes"`)).WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		_, err := ClaimBackupCode(db, uuid.New(), "hash", time.Now())
		assert.True(t, apierrors.Is(err, apierrors.ErrStoreUnavailable))
		assert.True(t, apierrors.IsHardFailure(err))
	})
}

func TestAdvanceTOTPStep_Query(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "mfa_configs" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := AdvanceTOTPStep(db, uuid.New(), 42, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupQueries_StoreUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		expect func(mock sqlmock.Sqlmock)
		run    func(db *gorm.DB) (int64, error)
	}{
		{
			name: "expired challenges",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "mfa_pending_challenges"`)).WillReturnError(sql.ErrConnDone)
				mock.ExpectRollback()
			},
			run: func(db *gorm.DB) (int64, error) {
				return DeleteExpiredChallenges(db, time.Now(), 10)
			},
		},
		{
			name: "old attempts",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "mfa_verification_attempts"`)).WillReturnError(sql.ErrConnDone)
				mock.ExpectRollback()
			},
			run: func(db *gorm.DB) (int64, error) {
				return DeleteAttemptsBefore(db, time.Now(), 10)
			},
		},
		{
			name: "stale setups lookup",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id" FROM "mfa_configs"`)).WillReturnError(sql.ErrConnDone)
			},
			run: func(db *gorm.DB) (int64, error) {
				return DeleteStaleUnverified(db, time.Now(), 10)
			},
		},
		{
			name: "stale setups delete",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id" FROM "mfa_configs"`)).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New().String()))
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "mfa_backup_codes"`)).WillReturnError(sql.ErrConnDone)
				mock.ExpectRollback()
			},
			run: func(db *gorm.DB) (int64, error) {
				return DeleteStaleUnverified(db, time.Now(), 10)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			tt.expect(mock)

			deleted, err := tt.run(db)
			assert.Zero(t, deleted)
			assert.True(t, apierrors.Is(err, apierrors.ErrStoreUnavailable))
			assert.True(t, apierrors.IsHardFailure(err))
		})
	}
}

func TestMarkVerified_ConcurrentPromotion(t *testing.T) {
	db := dbtest.NewSQLite(t)
	user := seedUser(t, db)
	now := time.Now().UTC()

	totpConfig, err := CreateConfig(db, user.ID, models.MFAMethodTOTP, ConfigMaterial{SecretEncrypted: "enc", BackupCodeSalt: "salt"})
	require.NoError(t, err)
	smsConfig, err := CreateConfig(db, user.ID, models.MFAMethodSMS, ConfigMaterial{Target: "+14155550100", BackupCodeSalt: "salt"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, id := range []uuid.UUID{totpConfig.ID, smsConfig.ID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := MarkVerified(db, user.ID, id, true, now)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	configs, err := ListEnabled(db, user.ID)
	require.NoError(t, err)
	require.Len(t, configs, 2)

	primaries := 0
	for _, c := range configs {
		if c.IsPrimary {
			primaries++
		}
	}
	assert.Equal(t, 1, primaries)
}
