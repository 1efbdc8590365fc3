package models

import "time"

type Configuration struct {
	App        AppConfiguration        `mapstructure:"app"        validate:"required"`
	Database   DatabaseConfiguration   `mapstructure:"database"   validate:"required"`
	Cache      CacheConfiguration      `mapstructure:"cache"      validate:"required"`
	MFA        MFAConfiguration        `mapstructure:"mfa"        validate:"required"`
	Limiter    LimiterConfiguration    `mapstructure:"limiter"    validate:"required"`
	Dispatcher DispatcherConfiguration `mapstructure:"dispatcher" validate:"required"`
	Events     EventsConfiguration     `mapstructure:"events"     validate:"required"`
	Activity   ActivityConfiguration   `mapstructure:"activity"   validate:"required"`
	Telemetry  TelemetryConfiguration  `mapstructure:"telemetry"`
	Workers    WorkersConfiguration    `mapstructure:"workers"`
}

type AppConfiguration struct {
	Profile  string       `mapstructure:"profile"   validate:"oneof=default engine worker indexer"`
	LogLevel string       `mapstructure:"log_level" validate:"oneof=debug info warn error fatal panic"`
	Workers  WorkerConfig `mapstructure:"workers"`
}

type DatabaseConfiguration struct {
	Type     string `mapstructure:"type"     validate:"required,oneof=postgres sqlite"`
	Host     string `mapstructure:"host"     validate:"required_if=Type postgres"`
	Port     int32  `mapstructure:"port"     validate:"omitempty,gte=80,lte=65535"`
	User     string `mapstructure:"user"     validate:"required_if=Type postgres"`
	Password string `mapstructure:"password" validate:"required_if=Type postgres"`
	Name     string `mapstructure:"name"     validate:"required_if=Type postgres"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"     validate:"required_if=Type sqlite"`
}

type CacheConfiguration struct {
	Type   string                    `mapstructure:"type"   validate:"required,oneof=none redis valkey"`
	Redis  *RedisCacheConfiguration  `mapstructure:"redis"  validate:"required_if=Type redis"`
	Valkey *ValkeyCacheConfiguration `mapstructure:"valkey" validate:"required_if=Type valkey"`
}

type RedisCacheConfiguration struct {
	Hosts         []string `mapstructure:"hosts"`
	Password      string   `mapstructure:"password"`
	TLSEnabled    bool     `mapstructure:"tls_enabled"`
	TLSServerName string   `mapstructure:"tls_server_name"`
}

type ValkeyCacheConfiguration struct {
	Hosts         []string `mapstructure:"hosts"`
	Password      string   `mapstructure:"password"`
	TLSEnabled    bool     `mapstructure:"tls_enabled"`
	TLSServerName string   `mapstructure:"tls_server_name"`
}

type MFAConfiguration struct {
	Issuer               string            `mapstructure:"issuer"                 validate:"required"`
	EncryptionKey        string            `mapstructure:"encryption_key"         validate:"len=32"`
	RetiredKeys          []string          `mapstructure:"retired_keys"           validate:"dive,len=32"`
	TOTP                 TOTPConfiguration `mapstructure:"totp"                   validate:"required"`
	BackupCodesCount     int               `mapstructure:"backup_codes_count"     validate:"gte=1,lte=32"`
	BackupCodeLength     int               `mapstructure:"backup_code_length"     validate:"gte=6,lte=16"`
	OTPLength            int               `mapstructure:"otp_length"             validate:"gte=4,lte=10"`
	ChallengeTTLSeconds  int               `mapstructure:"challenge_ttl_seconds"  validate:"gte=30,lte=3600"`
	ChallengeMaxAttempts int               `mapstructure:"challenge_max_attempts" validate:"gte=1,lte=20"`
	SetupWindowMinutes   int               `mapstructure:"setup_window_minutes"   validate:"gte=1"`
}

type TOTPConfiguration struct {
	Period    uint   `mapstructure:"period"    validate:"gte=15,lte=120"`
	Digits    int    `mapstructure:"digits"    validate:"oneof=6 8"`
	Skew      uint   `mapstructure:"skew"      validate:"lte=5"`
	Algorithm string `mapstructure:"algorithm" validate:"oneof=SHA1 SHA256 SHA512"`
}

type LimiterConfiguration struct {
	Backend            string `mapstructure:"backend"              validate:"required,oneof=database redis"`
	MaxAttempts        int    `mapstructure:"max_attempts"         validate:"gte=1"`
	WindowSeconds      int    `mapstructure:"window_seconds"       validate:"gte=1"`
	BaseBackoffSeconds int    `mapstructure:"base_backoff_seconds" validate:"gte=1"`
	MaxBackoffSeconds  int    `mapstructure:"max_backoff_seconds"  validate:"gtefield=BaseBackoffSeconds"`
}

type DispatcherConfiguration struct {
	Email        EmailDispatcherConfiguration `mapstructure:"email"          validate:"required"`
	SMS          SMSDispatcherConfiguration   `mapstructure:"sms"            validate:"required"`
	MaxRetries   int                          `mapstructure:"max_retries"    validate:"gte=0,lte=10"`
	RetryDelayMs int                          `mapstructure:"retry_delay_ms" validate:"gte=1"`
	MaxElapsedMs int                          `mapstructure:"max_elapsed_ms" validate:"gtefield=RetryDelayMs"`
}

type EmailDispatcherConfiguration struct {
	Type       string                          `mapstructure:"type"       validate:"required,oneof=smtp filesystem"`
	SMTP       *MailerConfiguration            `mapstructure:"smtp"       validate:"required_if=Type smtp"`
	Filesystem *FilesystemDispatchConfiguration `mapstructure:"filesystem" validate:"required_if=Type filesystem"`
}

type SMSDispatcherConfiguration struct {
	Type       string                          `mapstructure:"type"       validate:"required,oneof=http filesystem"`
	HTTP       *SMSGatewayConfiguration        `mapstructure:"http"       validate:"required_if=Type http"`
	Filesystem *FilesystemDispatchConfiguration `mapstructure:"filesystem" validate:"required_if=Type filesystem"`
}

type MailerConfiguration struct {
	Host          string `mapstructure:"host"            validate:"required"`
	Port          int    `mapstructure:"port"            validate:"required"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	Sender        string `mapstructure:"sender"          validate:"required"`
	EnableTLS     bool   `mapstructure:"enable_tls"`
	SkipVerifyTLS bool   `mapstructure:"skip_verify_tls"`
}

type SMSGatewayConfiguration struct {
	Endpoint       string `mapstructure:"endpoint"        validate:"required,http_url"`
	Token          string `mapstructure:"token"`
	Sender         string `mapstructure:"sender"          validate:"required"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gte=1"`
}

type FilesystemDispatchConfiguration struct {
	Directory string `mapstructure:"directory" validate:"required"`
}

type QueueConfig struct {
	Name string `mapstructure:"name" validate:"required"`
}

type EventsConfiguration struct {
	Type      string                 `mapstructure:"type"      validate:"required,oneof=jetstream gcp aws memory"`
	Queues    map[string]QueueConfig `mapstructure:"queues"    validate:"required"`
	Jetstream *JetStreamEventsConfig `mapstructure:"jetstream" validate:"required_if=Type jetstream"`
	PubSub    *PubSubConfiguration   `mapstructure:"gcp"       validate:"required_if=Type gcp"`
}

type PubSubConfiguration struct {
	ProjectID          string `mapstructure:"project_id"          validate:"required"`
	SubscriptionSuffix string `mapstructure:"subscription_suffix"`
}

type JetStreamEventsConfig struct {
	Host string `mapstructure:"host" validate:"required"`
	Port string `mapstructure:"port" validate:"required"`
}

type ActivityConfiguration struct {
	Type       string                           `mapstructure:"type"       validate:"required,oneof=filesystem"`
	Filesystem *FilesystemActivityConfiguration `mapstructure:"filesystem" validate:"required_if=Type filesystem"`
}

type FilesystemActivityConfiguration struct {
	Directory string `mapstructure:"directory" validate:"required"`
}

type TelemetryConfiguration struct {
	Enabled        bool   `mapstructure:"enabled"`
	Endpoint       string `mapstructure:"endpoint"        validate:"required_if=Enabled true"`
	Insecure       bool   `mapstructure:"insecure"`
	ServiceName    string `mapstructure:"service_name"`
	MetricsAddress string `mapstructure:"metrics_address" validate:"omitempty,hostname_port"`
}

type WorkersConfiguration struct {
	GarbageCollectorIntervalSeconds int `mapstructure:"garbage_collector_interval_seconds" validate:"omitempty,gte=1"`
	AttemptRetentionDays            int `mapstructure:"attempt_retention_days"             validate:"omitempty,gte=1"`
}

// MFASettings groups engine tuning handed to services.
// It keeps service structs stable when new knobs are added.
type MFASettings struct {
	Issuer               string
	EncryptionKey        string
	RetiredKeys          []string
	TOTPPeriod           uint
	TOTPDigits           int
	TOTPSkew             uint
	TOTPAlgorithm        string
	BackupCodesCount     int
	BackupCodeLength     int
	OTPLength            int
	ChallengeTTL         time.Duration
	ChallengeMaxAttempts int
}

// GetMFASettings extracts engine settings from MFAConfiguration.
func (c *MFAConfiguration) GetMFASettings() MFASettings {
	return MFASettings{
		Issuer:               c.Issuer,
		EncryptionKey:        c.EncryptionKey,
		RetiredKeys:          c.RetiredKeys,
		TOTPPeriod:           c.TOTP.Period,
		TOTPDigits:           c.TOTP.Digits,
		TOTPSkew:             c.TOTP.Skew,
		TOTPAlgorithm:        c.TOTP.Algorithm,
		BackupCodesCount:     c.BackupCodesCount,
		BackupCodeLength:     c.BackupCodeLength,
		OTPLength:            c.OTPLength,
		ChallengeTTL:         time.Duration(c.ChallengeTTLSeconds) * time.Second,
		ChallengeMaxAttempts: c.ChallengeMaxAttempts,
	}
}

type LimiterPolicy struct {
	MaxAttempts int
	Window      time.Duration
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func (c *LimiterConfiguration) GetPolicy() LimiterPolicy {
	return LimiterPolicy{
		MaxAttempts: c.MaxAttempts,
		Window:      time.Duration(c.WindowSeconds) * time.Second,
		BaseBackoff: time.Duration(c.BaseBackoffSeconds) * time.Second,
		MaxBackoff:  time.Duration(c.MaxBackoffSeconds) * time.Second,
	}
}
