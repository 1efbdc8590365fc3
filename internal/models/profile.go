package models

// WorkerMode says where a background worker runs.
type WorkerMode string

const (
	WorkerModeDisabled  WorkerMode = "disabled"
	WorkerModeSingleton WorkerMode = "singleton" // one instance at a time, elected through the cache lock
	WorkerModeAll       WorkerMode = "all"
)

// Profile is a deployment role. Engine instances serve MFAService; workers reclaim storage
// and index security events.
type Profile struct {
	Name    string
	Engine  bool
	Workers WorkerConfig
}

type WorkerConfig struct {
	GarbageCollector WorkerMode `mapstructure:"garbage_collector" validate:"omitempty,oneof=disabled singleton all"`
	SecurityEvents   WorkerMode `mapstructure:"security_events"   validate:"omitempty,oneof=disabled singleton all"`
}

func (w WorkerConfig) AnyEnabled() bool {
	return w.GarbageCollector != WorkerModeDisabled || w.SecurityEvents != WorkerModeDisabled
}

// Override returns w with every mode set in o replacing its own.
func (w WorkerConfig) Override(o WorkerConfig) WorkerConfig {
	if o.GarbageCollector != "" {
		w.GarbageCollector = o.GarbageCollector
	}
	if o.SecurityEvents != "" {
		w.SecurityEvents = o.SecurityEvents
	}
	return w
}

// NeedsEvents reports whether the profile publishes or consumes security events.
func (p Profile) NeedsEvents() bool {
	return p.Engine || p.Workers.SecurityEvents != WorkerModeDisabled
}
