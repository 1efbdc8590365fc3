package services

import (
	"context"
	"time"

	"mfaengine/internal/activity"
	"mfaengine/internal/events"
	"mfaengine/internal/helpers"
	"mfaengine/internal/messaging"
	"mfaengine/internal/methods"
	"mfaengine/internal/metrics"
	"mfaengine/internal/models"
	"mfaengine/internal/ratelimit"
	"mfaengine/internal/sql"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("mfaengine/services")

// MFAService is the public surface of the engine: enrollment, challenge issuance and verification.
type MFAService struct {
	DB             *gorm.DB
	Settings       models.MFASettings
	Cipher         helpers.SecretCipher
	Registry       *methods.Registry
	Limiter        *ratelimit.Limiter
	Risk           *ratelimit.RiskScorer
	Publisher      messaging.IPublisher
	ActivityLogger activity.IActivityLogger
	Metrics        *metrics.Metrics
	Now            func() time.Time
}

func (s MFAService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s MFAService) startSpan(ctx context.Context, name string, userID uuid.UUID) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("mfa.user_id", userID.String())))
}

// release gives back a reservation whose attempt ended on a hard fault.
func (s MFAService) release(ctx context.Context, logger *zap.Logger, r *ratelimit.Reservation) {
	if r == nil {
		return
	}
	if err := s.Limiter.Release(ctx, r); err != nil {
		logger.Warn("Failed to release limiter reservation", zap.Error(err))
	}
}

// attempt describes one state transition to persist and announce.
type attempt struct {
	UserID      uuid.UUID
	Method      models.MFAMethod
	ConfigID    *uuid.UUID
	Outcome     models.AttemptOutcome
	Risk        models.RiskAssessment
	Request     models.RequestContext
	Reservation *ratelimit.Reservation
}

// recordAttempt appends the attempt record, keeps the limiter store in sync and emits
// the security event. Only the append is allowed to fail the caller.
func (s MFAService) recordAttempt(ctx context.Context, logger *zap.Logger, a attempt) error {
	now := s.now()

	record := models.VerificationAttempt{
		UserID:    a.UserID,
		Method:    a.Method,
		ConfigID:  a.ConfigID,
		Outcome:   a.Outcome,
		Success:   a.Outcome == models.OutcomeVerified,
		IPAddress: a.Request.IPAddress,
		UserAgent: a.Request.UserAgent,
		RiskScore: a.Risk.Score,
		RiskLevel: a.Risk.Level,
		CreatedAt: now,
	}
	if err := sql.AppendAttempt(s.DB.WithContext(ctx), &record); err != nil {
		logger.Error("Failed to append verification attempt", zap.Error(err))
		s.release(ctx, logger, a.Reservation)
		return err
	}

	key := ratelimit.Key{UserID: a.UserID, Method: a.Method}
	switch {
	case a.Reservation != nil:
		if err := s.Limiter.Settle(ctx, a.Reservation, a.Outcome); err != nil {
			logger.Warn("Failed to settle limiter reservation", zap.Error(err))
		}
	case record.Success:
		if err := s.Limiter.Reset(ctx, key); err != nil {
			logger.Warn("Failed to reset limiter window", zap.Error(err))
		}
	case a.Outcome.CountsAsFailure():
		if err := s.Limiter.RecordFailure(ctx, key, now); err != nil {
			logger.Warn("Failed to record limiter failure", zap.Error(err))
		}
	}

	payload := events.SecurityEventPayload{
		Type:       events.TypeVerification,
		UserID:     a.UserID.String(),
		Method:     a.Method,
		Outcome:    a.Outcome,
		State:      methods.StateFor(a.Outcome),
		IPAddress:  a.Request.IPAddress,
		UserAgent:  a.Request.UserAgent,
		OccurredAt: now,
	}
	if a.Outcome == models.OutcomeIssued {
		payload.Type = events.TypeChallengeIssued
	}
	if a.Risk.Level != "" {
		risk := a.Risk
		payload.Risk = &risk
	}
	if a.ConfigID != nil {
		payload.ConfigID = a.ConfigID.String()
	}
	s.emit(logger, payload)

	return nil
}

// emit publishes a security event. Without a publisher the event goes straight to the audit sink.
func (s MFAService) emit(logger *zap.Logger, payload events.SecurityEventPayload) {
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = s.now()
	}

	if s.Publisher != nil {
		events.NewSecurityEvent(s.Publisher, payload).Trigger()
		return
	}

	if s.ActivityLogger == nil {
		return
	}
	if err := s.ActivityLogger.Send(payload.ToActivity()); err != nil {
		logger.Error("Failed to log security event", zap.String("type", payload.Type), zap.Error(err))
	}
}

// logConfigActivity writes a config lifecycle entry to the audit sink.
func (s MFAService) logConfigActivity(logger *zap.Logger, message string, config models.MFAConfig) {
	if s.ActivityLogger == nil {
		return
	}

	action := models.Activity{
		Message: message,
		Object:  config.ToActivity(),
		Filter: activity.NewLogFilterAt(map[string]string{
			"action":      message,
			"user_id":     config.UserID.String(),
			"object_type": activity.ObjectTypeMFAConfig,
			"method":      string(config.Method),
			"config_id":   config.ID.String(),
		}, s.now()),
	}
	if err := s.ActivityLogger.Send(action); err != nil {
		logger.Error("Failed to log MFA config activity", zap.String("message", message), zap.Error(err))
	}
}

func (s MFAService) configEvent(eventType string, config models.MFAConfig) events.SecurityEventPayload {
	return events.SecurityEventPayload{
		Type:       eventType,
		UserID:     config.UserID.String(),
		Method:     config.Method,
		ConfigID:   config.ID.String(),
		OccurredAt: s.now(),
	}
}

// assess scores an attempt. Scoring never blocks verification, so failures only log.
func (s MFAService) assess(
	ctx context.Context,
	logger *zap.Logger,
	userID uuid.UUID,
	method models.MFAMethod,
	backupCode bool,
	reqCtx models.RequestContext,
	decision ratelimit.Decision,
) models.RiskAssessment {
	if s.Risk == nil {
		return models.RiskAssessment{}
	}

	signals, err := s.Risk.Collect(ctx, userID, method, backupCode, reqCtx, decision, s.now())
	if err != nil {
		logger.Warn("Failed to collect risk signals", zap.Error(err))
		signals = ratelimit.Signals{Method: method, BackupCode: backupCode, RecentFailures: decision.Failures}
	}
	return s.Risk.Score(signals)
}
