package configuration

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"mfaengine/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

// EnvPrefix scopes the environment overrides. MFAENGINE__LIMITER__MAX_ATTEMPTS sets
// limiter.max_attempts.
const EnvPrefix = "MFAENGINE__"

// ConfigFileEnv names a YAML file that replaces the search paths.
const ConfigFileEnv = "MFAENGINE_CONFIG_FILE"

// layer is one configuration source. Later layers override earlier ones.
type layer struct {
	name string
	load func(k *koanf.Koanf) error
}

func envKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(name, EnvPrefix)), "__", ".")
}

// envValue splits list fields given as "a,b" or "[a b]".
func envValue(key string, value string) any {
	if !slices.Contains(ArrayConfigFields, key) {
		return value
	}

	trimmed := strings.Trim(value, "[]")
	var items []string
	if strings.Contains(trimmed, ",") {
		items = strings.Split(trimmed, ",")
	} else {
		items = strings.Fields(trimmed)
	}
	for i := range items {
		items[i] = strings.TrimSpace(items[i])
	}
	return items
}

func loadEnv(k *koanf.Koanf) error {
	return k.Load(env.ProviderWithValue(EnvPrefix, ".", func(name string, value string) (string, any) {
		key := envKey(name)
		return key, envValue(key, value)
	}), nil)
}

func configFilePath() string {
	if path := os.Getenv(ConfigFileEnv); path != "" {
		return path
	}
	for _, path := range ConfigFileSearchPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func loadFile(k *koanf.Koanf) error {
	path := configFilePath()
	if path == "" {
		zap.L().Warn("No configuration file found", zap.Strings("searched", ConfigFileSearchPaths))
		return nil
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	zap.L().Info("Read configuration file", zap.String("path", path))
	return nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.profile":   ProfileDefault,
		"app.log_level": "info",

		"database.type": "postgres",
		"database.port": int32(5432),

		"cache.type": "none",

		"mfa.issuer":                 AppName,
		"mfa.totp.period":            uint(DefaultTOTPPeriod),
		"mfa.totp.digits":            DefaultTOTPDigits,
		"mfa.totp.skew":              uint(DefaultTOTPSkew),
		"mfa.totp.algorithm":         "SHA1",
		"mfa.backup_codes_count":     DefaultBackupCodesCount,
		"mfa.backup_code_length":     DefaultBackupCodeLength,
		"mfa.otp_length":             DefaultOTPLength,
		"mfa.challenge_ttl_seconds":  DefaultChallengeTTLSeconds,
		"mfa.challenge_max_attempts": DefaultChallengeMaxAttempts,
		"mfa.setup_window_minutes":   DefaultSetupWindowMinutes,

		"limiter.backend":              "database",
		"limiter.max_attempts":         DefaultLimiterMaxAttempts,
		"limiter.window_seconds":       DefaultLimiterWindowSeconds,
		"limiter.base_backoff_seconds": DefaultLimiterBaseBackoff,
		"limiter.max_backoff_seconds":  DefaultLimiterMaxBackoff,

		"dispatcher.max_retries":                DefaultDispatchMaxRetries,
		"dispatcher.retry_delay_ms":             DefaultDispatchRetryDelayMs,
		"dispatcher.max_elapsed_ms":             DefaultDispatchMaxElapsedMs,
		"dispatcher.email.smtp.enable_tls":      false,
		"dispatcher.email.smtp.skip_verify_tls": false,
		"dispatcher.sms.http.timeout_seconds":   5,

		"events.type":                        "memory",
		"events.queues.security_events.name": EventsSecurityEvents,

		"telemetry.service_name": AppName,

		"workers.garbage_collector_interval_seconds": 300,
		"workers.attempt_retention_days":             DefaultAttemptRetentionDays,
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}

func setIfMissing(k *koanf.Koanf, key string, value any) {
	if !k.Exists(key) {
		_ = k.Set(key, value)
	}
}

// loadConditionalDefaults fills settings that only make sense once a backend type is chosen.
func loadConditionalDefaults(k *koanf.Koanf) error {
	if k.String("database.type") == "postgres" {
		setIfMissing(k, "database.sslmode", "disable")
	}
	if k.String("events.type") == "gcp" {
		setIfMissing(k, "events.gcp.subscription_suffix", "-sub")
	}
	if k.String("dispatcher.email.type") == "filesystem" {
		setIfMissing(k, "dispatcher.email.filesystem.directory", "data/outbox/email")
	}
	if k.String("dispatcher.sms.type") == "filesystem" {
		setIfMissing(k, "dispatcher.sms.filesystem.directory", "data/outbox/sms")
	}
	if k.String("activity.type") == "filesystem" {
		setIfMissing(k, "activity.filesystem.directory", "data/activity")
	}
	return nil
}

var layers = []layer{
	{name: "defaults", load: loadDefaults},
	{name: "file", load: loadFile},
	{name: "environment", load: loadEnv},
	{name: "conditional defaults", load: loadConditionalDefaults},
}

// Load applies every layer in order, then decodes and validates the result.
func Load() (models.Configuration, error) {
	k := koanf.New(".")

	for _, l := range layers {
		if err := l.load(k); err != nil {
			return models.Configuration{}, fmt.Errorf("loading %s: %w", l.name, err)
		}
	}

	var config models.Configuration
	if err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{Tag: "mapstructure"}); err != nil {
		return models.Configuration{}, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := validator.New().Struct(config); err != nil {
		return models.Configuration{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func Read() models.Configuration {
	config, err := Load()
	if err != nil {
		zap.L().Fatal("Failed to read configuration", zap.Error(err))
	}
	return config
}
