package models

import (
	"time"

	apierrors "mfaengine/internal/errors"

	"github.com/google/uuid"
)

type TOTPSetupResult struct {
	ConfigID    uuid.UUID `json:"config_id"`
	Secret      string    `json:"secret"`
	QRPayload   string    `json:"qr_payload"`
	BackupCodes []string  `json:"backup_codes"`
}

type SetupResult struct {
	ConfigID    uuid.UUID `json:"config_id"`
	BackupCodes []string  `json:"backup_codes"`
}

type SetupVerification struct {
	Success bool           `json:"success"`
	Error   apierrors.Kind `json:"error,omitempty"`
}

type ChallengeStart struct {
	Method        MFAMethod      `json:"method"`
	ConfigID      uuid.UUID      `json:"config_id"`
	State         ChallengeState `json:"challenge_state"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
	NextAttemptIn time.Duration  `json:"next_attempt_in,omitempty"`
	Error         apierrors.Kind `json:"error,omitempty"`
}

// VerifyResult is the uniform response of a verification request.
// Failures are described by Error, never by a Go error.
type VerifyResult struct {
	Success              bool           `json:"success"`
	Method               MFAMethod      `json:"method,omitempty"`
	RemainingBackupCodes *int           `json:"remaining_backup_codes,omitempty"`
	RateLimited          bool           `json:"rate_limited"`
	NextAttemptIn        time.Duration  `json:"next_attempt_in,omitempty"`
	Error                apierrors.Kind `json:"error,omitempty"`
	State                ChallengeState `json:"state"`
	Risk                 RiskAssessment `json:"risk"`
}

type BackupCodesResult struct {
	BackupCodes []string `json:"backup_codes"`
}

type MethodSummary struct {
	ConfigID  uuid.UUID  `json:"config_id"`
	Method    MFAMethod  `json:"method"`
	IsPrimary bool       `json:"is_primary"`
	IsEnabled bool       `json:"is_enabled"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
	Target    string     `json:"target,omitempty"`
}

// SecurityActivity is a user's recent audit trail with per-outcome attempt totals.
type SecurityActivity struct {
	Entries  []AuditEntry   `json:"entries"`
	Outcomes []OutcomeCount `json:"outcomes"`
}

type DispatchResult struct {
	Delivered   bool   `json:"delivered"`
	ProviderRef string `json:"provider_ref"`
}
