package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"mfaengine/internal/activity"
	"mfaengine/internal/messaging"
	"mfaengine/internal/models"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

const SecurityEventName = "SecurityEvent"

// Security event types.
const (
	TypeMethodEnrolled         = "mfa.method_enrolled"
	TypeMethodVerified         = "mfa.method_verified"
	TypeMethodDisabled         = "mfa.method_disabled"
	TypeChallengeIssued        = "mfa.challenge_issued"
	TypeVerification           = "mfa.verification"
	TypeBackupCodesRegenerated = "mfa.backup_codes_regenerated"
)

// SecurityEventPayload is the risk-annotated record consumed by downstream policy.
// It never carries codes or secrets.
type SecurityEventPayload struct {
	Type       string                 `json:"type"`
	UserID     string                 `json:"user_id"`
	Method     models.MFAMethod       `json:"method"`
	ConfigID   string                 `json:"config_id,omitempty"`
	Outcome    models.AttemptOutcome  `json:"outcome,omitempty"`
	State      models.ChallengeState  `json:"state,omitempty"`
	Risk       *models.RiskAssessment `json:"risk,omitempty"`
	IPAddress  string                 `json:"ip_address,omitempty"`
	UserAgent  string                 `json:"user_agent,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

type SecurityEvent struct {
	Publisher messaging.IPublisher
	Payload   SecurityEventPayload
}

func NewSecurityEvent(publisher messaging.IPublisher, payload SecurityEventPayload) *SecurityEvent {
	return &SecurityEvent{Publisher: publisher, Payload: payload}
}

// Trigger publishes the event. Publication failures are logged and never fail the caller.
func (e *SecurityEvent) Trigger() {
	if e.Publisher == nil {
		return
	}

	data, err := json.Marshal(e.Payload)
	if err != nil {
		zap.L().Error("Failed to marshal security event", zap.Error(err))
		return
	}

	msg := messaging.NewEventMessage(SecurityEventName, e.Payload.Type, e.Payload.UserID, data)
	if err = e.Publisher.Publish(msg); err != nil {
		zap.L().Error("Failed to publish security event",
			zap.String("type", e.Payload.Type),
			zap.String("user_id", e.Payload.UserID),
			zap.Error(err))
	}
}

var activityMessages = map[string]string{
	TypeMethodEnrolled:         activity.MFAMethodEnrolled,
	TypeMethodVerified:         activity.MFAMethodVerified,
	TypeMethodDisabled:         activity.MFAMethodDisabled,
	TypeChallengeIssued:        activity.MFAChallengeIssued,
	TypeBackupCodesRegenerated: activity.MFABackupCodesRegenerated,
}

func (p SecurityEventPayload) activityMessage() string {
	if msg, ok := activityMessages[p.Type]; ok {
		return msg
	}
	switch {
	case p.Outcome == models.OutcomeVerified && p.Method == models.MFAMethodBackup:
		return activity.MFABackupCodeUsed
	case p.Outcome == models.OutcomeVerified:
		return activity.MFAVerificationSucceeded
	case p.Outcome == models.OutcomeLocked:
		return activity.MFAVerificationLocked
	default:
		return activity.MFAVerificationFailed
	}
}

// ToActivity converts the event into an audit index entry.
func (p SecurityEventPayload) ToActivity() models.Activity {
	fields := map[string]string{
		"action":      p.Type,
		"object_type": activity.ObjectTypeAttempt,
		"user_id":     p.UserID,
		"method":      string(p.Method),
		"config_id":   p.ConfigID,
		"outcome":     string(p.Outcome),
		"ip_address":  p.IPAddress,
	}
	if p.Risk != nil {
		fields["risk_level"] = string(p.Risk.Level)
	}

	timestamp := p.OccurredAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	return models.Activity{
		Message: p.activityMessage(),
		Object:  p,
		Filter: models.LogFilter{
			Fields:    fields,
			Timestamp: strconv.FormatInt(timestamp.UnixNano(), 10),
		},
	}
}

// HandleSecurityEvents indexes every received event into the audit sink until the stream closes
// or ctx is cancelled. Malformed messages are acknowledged and dropped; sink failures are nacked
// for redelivery.
func HandleSecurityEvents(ctx context.Context, activityLogger activity.IActivityLogger, messages <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			handleSecurityEvent(activityLogger, msg)
		}
	}
}

func handleSecurityEvent(activityLogger activity.IActivityLogger, msg *message.Message) {
	if eventType := msg.Metadata.Get(messaging.MetadataKind); eventType != SecurityEventName {
		zap.L().Warn("Ignoring message of unknown type", zap.String("type", eventType), zap.String("uuid", msg.UUID))
		msg.Ack()
		return
	}

	var payload SecurityEventPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		zap.L().Error("Security event is unprocessable", zap.String("uuid", msg.UUID), zap.Error(err))
		msg.Ack()
		return
	}

	if err := activityLogger.Send(payload.ToActivity()); err != nil {
		zap.L().Error("Failed to index security event", zap.String("uuid", msg.UUID), zap.Error(err))
		msg.Nack()
		return
	}

	msg.Ack()
}
