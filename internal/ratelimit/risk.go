package ratelimit

import (
	"context"
	"time"

	"mfaengine/internal/models"
	"mfaengine/internal/sql"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Signals are the observations a risk assessment is computed from.
type Signals struct {
	Method         models.MFAMethod
	BackupCode     bool
	RecentFailures int
	UserFailures   int64
	HasHistory     bool
	KnownIP        bool
	KnownUserAgent bool
}

// RiskScorer annotates attempts. It never blocks them.
type RiskScorer struct {
	DB     *gorm.DB
	Window time.Duration
}

func NewRiskScorer(db *gorm.DB, window time.Duration) *RiskScorer {
	return &RiskScorer{DB: db, Window: window}
}

// Collect gathers the signals of an attempt from the attempt records.
func (r *RiskScorer) Collect(
	ctx context.Context,
	userID uuid.UUID,
	method models.MFAMethod,
	backupCode bool,
	reqCtx models.RequestContext,
	decision Decision,
	now time.Time,
) (Signals, error) {
	db := r.DB.WithContext(ctx)

	userFailures, err := sql.CountUserFailuresSince(db, userID, now.Add(-r.Window))
	if err != nil {
		return Signals{}, err
	}

	history, err := sql.GetSuccessHistory(db, userID, reqCtx.IPAddress, reqCtx.UserAgent)
	if err != nil {
		return Signals{}, err
	}

	return Signals{
		Method:         method,
		BackupCode:     backupCode,
		RecentFailures: decision.Failures,
		UserFailures:   userFailures,
		HasHistory:     history.Total > 0,
		KnownIP:        history.KnownIP,
		KnownUserAgent: history.KnownUserAgent,
	}, nil
}

var methodWeight = map[models.MFAMethod]int{
	models.MFAMethodTOTP:   0,
	models.MFAMethodEmail:  5,
	models.MFAMethodSMS:    10,
	models.MFAMethodBackup: 15,
	models.MFAMethodNone:   20,
}

// Score combines the signals into a bounded 0-100 score.
func (r *RiskScorer) Score(signals Signals) models.RiskAssessment {
	score := 0
	var reasons []string

	if signals.RecentFailures > 0 {
		score += min(signals.RecentFailures*10, 40)
		reasons = append(reasons, "failure_velocity")
	}
	if extra := signals.UserFailures - int64(signals.RecentFailures); extra > 0 {
		score += int(min(extra*5, 15))
		reasons = append(reasons, "cross_method_failures")
	}

	if !signals.HasHistory {
		score += 10
		reasons = append(reasons, "no_history")
	} else {
		if !signals.KnownIP {
			score += 20
			reasons = append(reasons, "new_ip")
		}
		if !signals.KnownUserAgent {
			score += 10
			reasons = append(reasons, "new_user_agent")
		}
	}

	method := signals.Method
	if signals.BackupCode {
		method = models.MFAMethodBackup
		reasons = append(reasons, "backup_code")
	}
	score += methodWeight[method]

	score = min(max(score, 0), 100)
	return models.RiskAssessment{Score: score, Level: LevelFor(score), Signals: reasons}
}

func LevelFor(score int) models.RiskLevel {
	switch {
	case score >= 75:
		return models.RiskCritical
	case score >= 50:
		return models.RiskHigh
	case score >= 25:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}
