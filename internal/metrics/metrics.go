// Package metrics exposes engine counters in the Prometheus format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mfaengine"

// Metrics groups the engine collectors. A nil *Metrics records nothing.
type Metrics struct {
	Verifications        *prometheus.CounterVec
	VerificationDuration *prometheus.HistogramVec
	RateLimited          *prometheus.CounterVec
	Challenges           *prometheus.CounterVec
	Enrollments          *prometheus.CounterVec
	BackupCodesRedeemed  prometheus.Counter
	Reclaimed            *prometheus.CounterVec
	WorkerTaskFailures   *prometheus.CounterVec
	WorkerCycleDuration  *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Verification attempts by method and outcome.",
		}, []string{"method", "outcome"}),
		VerificationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verification_duration_seconds",
			Help:      "Time spent verifying a code, limiter included.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Attempts rejected by the limiter.",
		}, []string{"method"}),
		Challenges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenges_total",
			Help:      "Challenges started by method and result.",
		}, []string{"method", "result"}),
		Enrollments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollments_total",
			Help:      "Enrollment lifecycle transitions by method and stage.",
		}, []string{"method", "stage"}),
		BackupCodesRedeemed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_codes_redeemed_total",
			Help:      "Backup codes consumed.",
		}),
		Reclaimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "reclaimed_rows_total",
			Help:      "Rows removed by background workers, by worker and task.",
		}, []string{"worker", "task"}),
		WorkerTaskFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "task_failures_total",
			Help:      "Background worker tasks that returned an error.",
		}, []string{"worker", "task"}),
		WorkerCycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one background worker cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"worker"}),
	}

	reg.MustRegister(
		m.Verifications,
		m.VerificationDuration,
		m.RateLimited,
		m.Challenges,
		m.Enrollments,
		m.BackupCodesRedeemed,
		m.Reclaimed,
		m.WorkerTaskFailures,
		m.WorkerCycleDuration,
	)

	return m
}

func (m *Metrics) ObserveVerification(method string, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(method, outcome).Inc()
	m.VerificationDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) IncRateLimited(method string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(method).Inc()
}

func (m *Metrics) IncChallenge(method string, result string) {
	if m == nil {
		return
	}
	m.Challenges.WithLabelValues(method, result).Inc()
}

func (m *Metrics) IncEnrollment(method string, stage string) {
	if m == nil {
		return
	}
	m.Enrollments.WithLabelValues(method, stage).Inc()
}

func (m *Metrics) IncBackupCodeRedeemed() {
	if m == nil {
		return
	}
	m.BackupCodesRedeemed.Inc()
}

func (m *Metrics) ObserveWorkerTask(worker string, task string, reclaimed int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.WorkerTaskFailures.WithLabelValues(worker, task).Inc()
	}
	if reclaimed > 0 {
		m.Reclaimed.WithLabelValues(worker, task).Add(float64(reclaimed))
	}
}

func (m *Metrics) ObserveWorkerCycle(worker string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.WorkerCycleDuration.WithLabelValues(worker).Observe(elapsed.Seconds())
}
