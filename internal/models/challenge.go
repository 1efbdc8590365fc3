package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Channel is an out-of-band delivery route for one-time codes.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// PendingChallenge is an issued SMS or email code awaiting verification.
// It is destroyed after success, after its TTL, or once its attempt cap is reached.
type PendingChallenge struct {
	ID           uuid.UUID  `gorm:"type:uuid;primarykey"        json:"id"`
	ConfigID     uuid.UUID  `gorm:"type:uuid;not null;index"    json:"config_id"`
	UserID       uuid.UUID  `gorm:"type:uuid;not null;index"    json:"user_id"`
	CodeHash     string     `gorm:"type:varchar(255);not null"  json:"-"`
	Channel      Channel    `gorm:"type:varchar(16);not null"   json:"channel"`
	ProviderRef  string     `gorm:"type:varchar(255)"           json:"-"`
	AttemptCount int        `gorm:"not null;default:0"          json:"attempt_count"`
	MaxAttempts  int        `gorm:"not null"                    json:"max_attempts"`
	IssuedAt     time.Time  `gorm:"not null"                    json:"issued_at"`
	ExpiresAt    time.Time  `gorm:"not null;index"              json:"expires_at"`
	ConsumedAt   *time.Time `                                   json:"consumed_at,omitempty"`
}

func (PendingChallenge) TableName() string {
	return "mfa_pending_challenges"
}

func (c *PendingChallenge) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (c *PendingChallenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

func (c *PendingChallenge) AttemptsExhausted() bool {
	return c.AttemptCount >= c.MaxAttempts
}

// ChallengeState is the position of a (user, method) attempt in the challenge flow.
type ChallengeState string

const (
	StateUnchallenged    ChallengeState = "UNCHALLENGED"
	StateChallengeIssued ChallengeState = "CHALLENGE_ISSUED"
	StateVerified        ChallengeState = "VERIFIED"
	StateFailed          ChallengeState = "FAILED"
	StateExpired         ChallengeState = "EXPIRED"
	StateLocked          ChallengeState = "LOCKED"
)

// IsTerminal reports states that require a new StartChallenge call to proceed.
func (s ChallengeState) IsTerminal() bool {
	return s == StateVerified || s == StateExpired || s == StateLocked
}
