package activity

import (
	"strconv"
	"time"

	"mfaengine/internal/models"
)

// Messages written to the audit index.
const (
	MFAMethodEnrolled         = "MFA_METHOD_ENROLLED"
	MFAMethodVerified         = "MFA_METHOD_VERIFIED"
	MFAMethodDisabled         = "MFA_METHOD_DISABLED"
	MFAChallengeIssued        = "MFA_CHALLENGE_ISSUED"
	MFAVerificationSucceeded  = "MFA_VERIFICATION_SUCCEEDED"
	MFAVerificationFailed     = "MFA_VERIFICATION_FAILED"
	MFAVerificationLocked     = "MFA_VERIFICATION_LOCKED"
	MFABackupCodeUsed         = "MFA_BACKUP_CODE_USED"
	MFABackupCodesRegenerated = "MFA_BACKUP_CODES_REGENERATED"
	MFASetupAbandoned         = "MFA_SETUP_ABANDONED"
)

// Object types whose payload may be stored alongside the entry.
const (
	ObjectTypeMFAConfig = "mfa_config"
	ObjectTypeAttempt   = "attempt"
)

func isAuthorizedObject(objectType string) bool {
	return objectType == ObjectTypeMFAConfig || objectType == ObjectTypeAttempt
}

// NewLogFilter stamps fields with the current time in nanoseconds.
func NewLogFilter(fields map[string]string) models.LogFilter {
	return NewLogFilterAt(fields, time.Now())
}

func NewLogFilterAt(fields map[string]string, at time.Time) models.LogFilter {
	return models.LogFilter{
		Fields:    fields,
		Timestamp: strconv.FormatInt(at.UnixNano(), 10),
	}
}
