package configuration

import (
	"fmt"
	"slices"
	"strings"

	"mfaengine/internal/models"
)

const (
	ProfileDefault = "default"
	ProfileEngine  = "engine"
	ProfileWorker  = "worker"
	ProfileIndexer = "indexer"
)

// Profiles maps each deployment role to what it runs. A single "default" binary serves the
// engine and elects one garbage collector; larger deployments split engine and worker
// instances, and may scale audit indexing separately with "indexer".
var Profiles = map[string]models.Profile{
	ProfileDefault: {
		Name:   ProfileDefault,
		Engine: true,
		Workers: models.WorkerConfig{
			GarbageCollector: models.WorkerModeSingleton,
			SecurityEvents:   models.WorkerModeAll,
		},
	},
	ProfileEngine: {
		Name:   ProfileEngine,
		Engine: true,
		Workers: models.WorkerConfig{
			GarbageCollector: models.WorkerModeDisabled,
			SecurityEvents:   models.WorkerModeDisabled,
		},
	},
	ProfileWorker: {
		Name: ProfileWorker,
		Workers: models.WorkerConfig{
			GarbageCollector: models.WorkerModeSingleton,
			SecurityEvents:   models.WorkerModeSingleton,
		},
	},
	ProfileIndexer: {
		Name: ProfileIndexer,
		Workers: models.WorkerConfig{
			GarbageCollector: models.WorkerModeDisabled,
			SecurityEvents:   models.WorkerModeAll,
		},
	},
}

// GetProfile resolves a profile by name and applies the configured worker overrides.
// An empty name selects the default profile.
func GetProfile(name string, overrides models.WorkerConfig) (models.Profile, error) {
	if name == "" {
		name = ProfileDefault
	}

	profile, ok := Profiles[name]
	if !ok {
		available := make([]string, 0, len(Profiles))
		for n := range Profiles {
			available = append(available, n)
		}
		slices.Sort(available)
		return models.Profile{}, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(available, ", "))
	}

	profile.Workers = profile.Workers.Override(overrides)
	return profile, nil
}
