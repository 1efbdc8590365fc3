package configuration

import "time"

const AppName = "mfaengine"

const (
	CacheAppWorkerLockKey = "mfaengine:worker:lock:%s" //nolint:gosec // not a credential
	CacheMFAAttemptsKey   = "mfaengine:attempts:%s:%s"
	CacheAppIdentityKey   = "mfaengine:identity"
)

// A singleton worker lock is refreshed well before it lapses; a lost lock stops the worker
// at the next refresh.
const (
	CacheAppWorkerLockTTL     = 60 * time.Second
	CacheAppWorkerLockRefresh = 20 * time.Second
	CacheAppIdentityRefresh   = 60 * time.Second
	CacheAppIdentityLifetime  = 3 * CacheAppIdentityRefresh
)

const (
	EventsSecurityEvents = "security_events"
)

// TOTP defaults. RFC 6238 with a one step drift tolerance.
const (
	DefaultTOTPPeriod = 30
	DefaultTOTPDigits = 6
	DefaultTOTPSkew   = 1
	TOTPSecretSize    = 20
)

const (
	DefaultBackupCodesCount     = 10
	DefaultBackupCodeLength     = 8
	DefaultOTPLength            = 6
	DefaultChallengeTTLSeconds  = 600
	DefaultChallengeMaxAttempts = 5
	DefaultSetupWindowMinutes   = 60
)

const (
	DefaultLimiterMaxAttempts   = 4
	DefaultLimiterWindowSeconds = 300
	DefaultLimiterBaseBackoff   = 30
	DefaultLimiterMaxBackoff    = 3600
)

const (
	DefaultDispatchMaxRetries   = 3
	DefaultDispatchRetryDelayMs = 200
	DefaultDispatchMaxElapsedMs = 3000
)

// Messaging provider types.
const (
	ProviderJetstream = "jetstream"
	ProviderGCP       = "gcp"
	ProviderAWS       = "aws"
	ProviderMemory    = "memory"
)

const (
	GCBatchSize                 = 500
	DefaultAttemptRetentionDays = 90
)

var ArrayConfigFields = []string{
	"cache.redis.hosts",
	"cache.valkey.hosts",
	"mfa.retired_keys",
}

var ConfigFileSearchPaths = []string{
	"./config.yaml",
	"templates/config.yaml",
}
