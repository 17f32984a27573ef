// Package registry computes, per request, the ordered set of upstream
// providers eligible to serve a chat: a static descriptor table
// narrowed against live signals — live env vars, live
// ProviderSettingsStore rows, and a live ModelsConfig read, recomputed
// on every call.
package registry

import (
	"os"
	"sort"
	"strings"

	"github.com/thotenn/aicarousel/internal/modelsconfig"
	"github.com/thotenn/aicarousel/internal/providerstore"
)

// ProviderDescriptor is a provider kind known at process start: its
// stable key, display name, and the environment variable holding its
// API key.
type ProviderDescriptor struct {
	Key           string
	Name          string
	APIKeyEnvName string
}

// ActiveProvider is a ProviderDescriptor that has passed every
// eligibility check for the current moment.
type ActiveProvider struct {
	Key            string
	Name           string
	Models         []string
	DefaultModel   string
	EnableFallback bool
	Priority       int
}

// Registry resolves the eligible provider set from a static descriptor
// table plus live settings and model config.
type Registry struct {
	descriptors []ProviderDescriptor
	settings    *providerstore.ProviderSettingsStore
	models      *modelsconfig.Store
}

func New(descriptors []ProviderDescriptor, settings *providerstore.ProviderSettingsStore, models *modelsconfig.Store) *Registry {
	return &Registry{descriptors: descriptors, settings: settings, models: models}
}

// ListActive returns the ActiveProvider set ordered ascending by
// priority, with providers lacking a settings row sorted last. Nothing
// here is cached: enablement, priority, and model lists may change
// between requests without a restart.
func (r *Registry) ListActive() ([]ActiveProvider, error) {
	settingRows, err := r.settings.List()
	if err != nil {
		return nil, err
	}

	bySettingsKey := make(map[string]providerstore.ProviderSettingRecord, len(settingRows))
	for _, row := range settingRows {
		bySettingsKey[row.ProviderKey] = row
	}

	snapshot, err := r.models.Read()
	if err != nil {
		return nil, err
	}

	type candidate struct {
		active   ActiveProvider
		priority int
		settled  bool // had an explicit settings row
	}

	candidates := make([]candidate, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		hasKey := strings.TrimSpace(os.Getenv(d.APIKeyEnvName)) != ""
		if !hasKey {
			continue
		}

		cfg, ok := snapshot[d.Key]
		if !ok || len(cfg.Models) == 0 {
			continue
		}

		// A provider with no settings row defaults to enabled: settings
		// rows are created lazily on first admin sync, not at boot.
		setting, settled := bySettingsKey[d.Key]
		if settled && !setting.Enabled {
			continue
		}

		candidates = append(candidates, candidate{
			active: ActiveProvider{
				Key:            d.Key,
				Name:           d.Name,
				Models:         append([]string{}, cfg.Models...),
				DefaultModel:   cfg.Default,
				EnableFallback: cfg.EnableFallback,
				Priority:       setting.Priority,
			},
			priority: setting.Priority,
			settled:  settled,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].settled != candidates[j].settled {
			return candidates[i].settled // settled providers sort before unsettled ones
		}
		if !candidates[i].settled {
			return false // both unsettled: preserve descriptor order
		}
		return candidates[i].priority < candidates[j].priority
	})

	actives := make([]ActiveProvider, len(candidates))
	for i, c := range candidates {
		actives[i] = c.active
	}
	return actives, nil
}
