// Package methods holds one verification strategy per second-factor method.
package methods

import (
	"context"
	"time"

	apierrors "mfaengine/internal/errors"
	"mfaengine/internal/models"
)

// IssueResult describes a challenge sent out-of-band. TOTP never issues anything.
type IssueResult struct {
	Issued      bool
	ExpiresAt   *time.Time
	ProviderRef string
}

// Outcome is the result of comparing a candidate code. User-facing failures live here;
// only hard faults are returned as errors.
type Outcome struct {
	Result models.AttemptOutcome
	Error  apierrors.Kind
}

func (o Outcome) Verified() bool {
	return o.Result == models.OutcomeVerified
}

func (o Outcome) State() models.ChallengeState {
	return StateFor(o.Result)
}

func verified() Outcome {
	return Outcome{Result: models.OutcomeVerified}
}

func failed(kind apierrors.Kind) Outcome {
	return Outcome{Result: models.OutcomeFailed, Error: kind}
}

// clock reads now, falling back to the wall clock when no source is set.
func clock(now func() time.Time) time.Time {
	if now == nil {
		return time.Now().UTC()
	}
	return now().UTC()
}

func expired() Outcome {
	return Outcome{Result: models.OutcomeExpired, Error: apierrors.ErrCodeExpired}
}

// StateFor maps an attempt outcome to the challenge state it leaves the key in.
func StateFor(outcome models.AttemptOutcome) models.ChallengeState {
	switch outcome {
	case models.OutcomeIssued:
		return models.StateChallengeIssued
	case models.OutcomeVerified:
		return models.StateVerified
	case models.OutcomeExpired:
		return models.StateExpired
	case models.OutcomeLocked:
		return models.StateLocked
	case models.OutcomeFailed:
		return models.StateFailed
	default:
		return models.StateUnchallenged
	}
}

type Strategy interface {
	Method() models.MFAMethod
	Issue(ctx context.Context, config models.MFAConfig) (IssueResult, error)
	Verify(ctx context.Context, config models.MFAConfig, code string) (Outcome, error)
}

// Registry is the closed lookup table of supported methods.
type Registry struct {
	strategies map[models.MFAMethod]Strategy
}

func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[models.MFAMethod]Strategy, len(strategies))}
	for _, s := range strategies {
		r.strategies[s.Method()] = s
	}
	return r
}

// Get returns the strategy for method. Reserved methods without a strategy are not enabled.
func (r *Registry) Get(method models.MFAMethod) (Strategy, error) {
	s, ok := r.strategies[method]
	if !ok {
		return nil, apierrors.NewAPIError(400, apierrors.ErrMethodNotEnabled)
	}
	return s, nil
}
