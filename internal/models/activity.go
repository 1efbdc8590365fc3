package models

import "time"

type LogFilter struct {
	Fields    map[string]string `json:"fields"`
	Timestamp string            `json:"timestamp"`
}

// Activity is one audit entry as produced by the engine.
type Activity struct {
	Message string    `json:"message"`
	Object  any       `json:"object,omitempty"`
	Filter  LogFilter `json:"filter"`
}

// AuditQuery selects audit entries. Empty fields match everything and a zero Since
// means the last 30 days.
type AuditQuery struct {
	UserID     string
	Actions    []string
	Methods    []string
	Outcomes   []string
	RiskLevels []string
	Since      time.Time
	Until      time.Time
	Limit      int
}

// AuditEntry is an indexed audit entry read back from the sink.
type AuditEntry struct {
	Message    string         `json:"message"`
	Timestamp  time.Time      `json:"timestamp"`
	Action     string         `json:"action"`
	ObjectType string         `json:"object_type"`
	UserID     string         `json:"user_id"`
	Method     string         `json:"method"`
	ConfigID   string         `json:"config_id"`
	Outcome    string         `json:"outcome"`
	RiskLevel  string         `json:"risk_level"`
	IPAddress  string         `json:"ip_address"`
	Object     map[string]any `json:"object,omitempty"`
}

type OutcomeCount struct {
	Outcome AttemptOutcome `json:"outcome"`
	Count   uint64         `json:"count"`
}
