package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MFAMethod represents the kind of second factor a config holds.
type MFAMethod string

const (
	MFAMethodTOTP      MFAMethod = "totp"
	MFAMethodSMS       MFAMethod = "sms"
	MFAMethodEmail     MFAMethod = "email"
	MFAMethodBiometric MFAMethod = "biometric" // reserved, no strategy yet
	MFAMethodBackup    MFAMethod = "backup_code"
	MFAMethodNone      MFAMethod = "none"
)

// Channel returns the dispatch channel for out-of-band methods.
func (m MFAMethod) Channel() Channel {
	switch m {
	case MFAMethodSMS:
		return ChannelSMS
	case MFAMethodEmail:
		return ChannelEmail
	default:
		return ""
	}
}

// MFAConfig is one enrolled second factor of a user.
// A config is unverified until its first successful verification flips IsEnabled.
type MFAConfig struct {
	ID              uuid.UUID  `gorm:"type:uuid;primarykey"                    json:"id"`
	UserID          uuid.UUID  `gorm:"type:uuid;not null;index"                json:"user_id"`
	Method          MFAMethod  `gorm:"type:varchar(16);not null"               json:"method"`
	SecretEncrypted string     `gorm:"type:text"                               json:"-"`
	Target          string     `gorm:"type:varchar(320)"                       json:"-"`
	IsPrimary       bool       `gorm:"not null;default:false"                  json:"is_primary"`
	IsEnabled       bool       `gorm:"not null;default:false;index"            json:"is_enabled"`
	PromoteOnVerify bool       `gorm:"not null;default:false"                  json:"-"`
	BackupCodeSalt  string     `gorm:"type:varchar(64);not null"               json:"-"`
	LastTOTPStep    *int64     `gorm:"column:last_totp_step"                   json:"-"`
	DisabledReason  string     `gorm:"type:varchar(255)"                       json:"-"`
	DisabledAt      *time.Time `                                               json:"disabled_at,omitempty"`
	CreatedAt       time.Time  `                                               json:"created_at"`
	UpdatedAt       time.Time  `                                               json:"updated_at"`
	VerifiedAt      *time.Time `                                               json:"verified_at,omitempty"`
	LastUsedAt      *time.Time `                                               json:"last_used_at,omitempty"`

	BackupCodes []BackupCode `gorm:"foreignKey:ConfigID;constraint:OnDelete:CASCADE" json:"-"`
}

func (MFAConfig) TableName() string {
	return "mfa_configs"
}

func (c *MFAConfig) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ToActivity returns the subset of fields safe to index in the audit sink.
func (c *MFAConfig) ToActivity() MFAConfigActivity {
	return MFAConfigActivity{
		ID:        c.ID,
		Method:    c.Method,
		IsPrimary: c.IsPrimary,
		IsEnabled: c.IsEnabled,
	}
}

type MFAConfigActivity struct {
	ID        uuid.UUID `json:"id"`
	Method    MFAMethod `json:"method"`
	IsPrimary bool      `json:"is_primary"`
	IsEnabled bool      `json:"is_enabled"`
}

// BackupCode is one entry of a config's ordered set of single-use recovery codes.
// Only the salted hash is persisted.
type BackupCode struct {
	ID        uuid.UUID  `gorm:"type:uuid;primarykey"                                   json:"id"`
	ConfigID  uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_backup_config_hash" json:"config_id"`
	Position  int        `gorm:"not null"                                               json:"position"`
	CodeHash  string     `gorm:"type:varchar(128);not null;uniqueIndex:idx_backup_config_hash" json:"-"`
	UsedAt    *time.Time `                                                              json:"used_at,omitempty"`
	CreatedAt time.Time  `                                                              json:"created_at"`
}

func (BackupCode) TableName() string {
	return "mfa_backup_codes"
}

func (b *BackupCode) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
