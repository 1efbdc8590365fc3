package models

import (
	"time"

	"github.com/google/uuid"
)

type AttemptOutcome string

const (
	OutcomeIssued   AttemptOutcome = "issued"
	OutcomeVerified AttemptOutcome = "verified"
	OutcomeFailed   AttemptOutcome = "failed"
	OutcomeExpired  AttemptOutcome = "expired"
	OutcomeLocked   AttemptOutcome = "locked"
)

// CountsAsFailure reports outcomes that feed the limiter's sliding window.
func (o AttemptOutcome) CountsAsFailure() bool {
	return o == OutcomeFailed || o == OutcomeExpired || o == OutcomeLocked
}

// VerificationAttempt is an append-only audit row. The auto-increment ID gives receipt order.
type VerificationAttempt struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement"                   json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_attempt_key,priority:1" json:"user_id"`
	Method    MFAMethod      `gorm:"type:varchar(16);not null;index:idx_attempt_key,priority:2" json:"method"`
	ConfigID  *uuid.UUID     `gorm:"type:uuid"                                  json:"config_id,omitempty"`
	Outcome   AttemptOutcome `gorm:"type:varchar(16);not null"                  json:"outcome"`
	Success   bool           `gorm:"not null"                                   json:"success"`
	IPAddress string         `gorm:"type:varchar(64)"                           json:"ip_address"`
	UserAgent string         `gorm:"type:varchar(512)"                          json:"user_agent"`
	RiskScore int            `gorm:"not null;default:0"                         json:"risk_score"`
	RiskLevel RiskLevel      `gorm:"type:varchar(16)"                           json:"risk_level"`
	CreatedAt time.Time      `gorm:"not null;index:idx_attempt_key,priority:3"  json:"created_at"`
}

func (VerificationAttempt) TableName() string {
	return "mfa_verification_attempts"
}

// AttemptGate serializes limiter decisions for one (user, method) key. InFlight counts attempts
// admitted past the gate whose outcome is not recorded yet; it is void once LeaseUntil passes.
type AttemptGate struct {
	UserID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	Method     MFAMethod `gorm:"type:varchar(16);primaryKey"`
	InFlight   int       `gorm:"not null"`
	LeaseUntil time.Time `gorm:"not null"`
	TouchedAt  time.Time `gorm:"not null;index"`
}

func (AttemptGate) TableName() string {
	return "mfa_attempt_gates"
}

// RequestContext carries client signals of a verification request.
type RequestContext struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

type RiskAssessment struct {
	Score   int       `json:"score"`
	Level   RiskLevel `json:"level"`
	Signals []string  `json:"signals,omitempty"`
}
