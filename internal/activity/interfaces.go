package activity

import "mfaengine/internal/models"

// IActivityLogger is the audit sink of the engine.
type IActivityLogger interface {
	Send(message models.Activity) error
	// Search returns matching entries, newest first.
	Search(q models.AuditQuery) ([]models.AuditEntry, error)
	// CountByOutcome reports how many attempt entries match q for each outcome.
	CountByOutcome(q models.AuditQuery) ([]models.OutcomeCount, error)
	Close() error
}
