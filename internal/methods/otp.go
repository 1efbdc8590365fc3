package methods

import (
	"context"
	"time"

	"mfaengine/internal/dispatcher"
	apierrors "mfaengine/internal/errors"
	"mfaengine/internal/helpers"
	"mfaengine/internal/models"
	"mfaengine/internal/sql"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OTPStrategy sends numeric codes over SMS or email and checks them against a pending challenge.
type OTPStrategy struct {
	DB          *gorm.DB
	Kind        models.MFAMethod
	Dispatcher  dispatcher.IDispatcher
	CodeLength  int
	TTL         time.Duration
	MaxAttempts int
	Now         func() time.Time
}

func (s *OTPStrategy) Method() models.MFAMethod {
	return s.Kind
}

func (s *OTPStrategy) now() time.Time {
	return clock(s.Now)
}

// Issue dispatches a fresh code and stores its hash. A failed dispatch leaves no usable challenge,
// and a successful one supersedes every older open challenge of the config.
func (s *OTPStrategy) Issue(ctx context.Context, config models.MFAConfig) (IssueResult, error) {
	code, err := helpers.GenerateNumericCode(s.CodeLength)
	if err != nil {
		return IssueResult{}, apierrors.EncryptionFailure(err)
	}

	hash, err := helpers.CreateHash(code)
	if err != nil {
		return IssueResult{}, apierrors.EncryptionFailure(err)
	}

	delivery, err := s.Dispatcher.Send(ctx, config.Target, code, s.Kind.Channel())
	if err != nil {
		return IssueResult{}, err
	}

	now := s.now()
	challenge := models.PendingChallenge{
		ConfigID:    config.ID,
		UserID:      config.UserID,
		CodeHash:    hash,
		Channel:     s.Kind.Channel(),
		ProviderRef: delivery.ProviderRef,
		MaxAttempts: s.MaxAttempts,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.TTL),
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := sql.DeleteOpenChallenges(tx, config.ID); err != nil {
			return err
		}
		return sql.CreateChallenge(tx, &challenge)
	})
	if err != nil {
		return IssueResult{}, err
	}

	zap.L().Debug("Challenge issued",
		zap.String("config_id", config.ID.String()),
		zap.String("channel", string(challenge.Channel)),
		zap.String("provider_ref", delivery.ProviderRef))

	return IssueResult{Issued: true, ExpiresAt: &challenge.ExpiresAt, ProviderRef: delivery.ProviderRef}, nil
}

func (s *OTPStrategy) Verify(ctx context.Context, config models.MFAConfig, code string) (Outcome, error) {
	db := s.DB.WithContext(ctx)

	challenge, err := sql.LatestOpenChallenge(db, config.ID)
	if err != nil {
		if apierrors.Is(err, apierrors.ErrCodeExpired) {
			helpers.CompareDummyHash(code)
			return expired(), nil
		}
		return Outcome{}, err
	}

	if challenge.IsExpired(s.now()) {
		if err = sql.DeleteChallenge(db, challenge.ID); err != nil {
			return Outcome{}, err
		}
		return expired(), nil
	}

	reserved, err := sql.IncrementChallengeAttempt(db, challenge.ID)
	if err != nil {
		return Outcome{}, err
	}
	if !reserved {
		if err = sql.DeleteChallenge(db, challenge.ID); err != nil {
			return Outcome{}, err
		}
		return expired(), nil
	}

	if !helpers.IsNumericCode(code, s.CodeLength) {
		return failed(apierrors.ErrInvalidCodeFormat), nil
	}

	match, err := helpers.CompareHash(code, challenge.CodeHash)
	if err != nil {
		return Outcome{}, apierrors.EncryptionFailure(err)
	}
	if !match {
		return failed(apierrors.ErrInvalidCode), nil
	}

	consumed, err := sql.ConsumeChallenge(db, challenge.ID, s.now())
	if err != nil {
		return Outcome{}, err
	}
	if !consumed {
		return failed(apierrors.ErrCodeAlreadyUsed), nil
	}

	if err = sql.DeleteChallenge(db, challenge.ID); err != nil {
		zap.L().Warn("Failed to delete consumed challenge", zap.String("challenge_id", challenge.ID.String()), zap.Error(err))
	}

	return verified(), nil
}
