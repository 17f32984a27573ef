// Package modelsconfig persists and validates the per-provider model
// lists that drive intra-provider fallback order (ProviderModelConfig).
// Writes go through an atomic write-to-temp-then-rename; reads are
// served from a short-lived, mutex-guarded snapshot cache.
package modelsconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ProviderModelConfig is one provider's model list and fallback policy.
type ProviderModelConfig struct {
	Default        string   `json:"default"`
	EnableFallback bool     `json:"enableFallback"`
	Models         []string `json:"models"`
}

// Snapshot is the full on-disk document: providerKey -> config.
type Snapshot map[string]ProviderModelConfig

// Clone returns a deep copy so callers can mutate it without
// corrupting the cache.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		models := make([]string, len(v.Models))
		copy(models, v.Models)
		out[k] = ProviderModelConfig{Default: v.Default, EnableFallback: v.EnableFallback, Models: models}
	}
	return out
}

// ConfigError reports a validation or lookup failure on a ModelsConfig
// operation.
type ConfigError struct {
	Op      string
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

func errf(op, format string, args ...any) *ConfigError {
	return &ConfigError{Op: op, Message: fmt.Sprintf(format, args...)}
}

const defaultCacheTTL = time.Second

// Store is the file-backed ModelsConfig. Reads are served from a
// short-lived cache; every successful write invalidates it.
type Store struct {
	path string
	ttl  time.Duration

	writeMu sync.Mutex // serializes read-modify-write mutations

	cacheMu  sync.RWMutex
	cache    Snapshot
	cachedAt time.Time

	group singleflight.Group
}

func NewStore(path string) *Store {
	return &Store{path: path, ttl: defaultCacheTTL}
}

// Read returns the current snapshot, served from cache when fresh.
func (s *Store) Read() (Snapshot, error) {
	s.cacheMu.RLock()
	fresh := s.cache != nil && time.Since(s.cachedAt) < s.ttl
	cached := s.cache
	s.cacheMu.RUnlock()
	if fresh {
		return cached.Clone(), nil
	}

	v, err, _ := s.group.Do("read", func() (any, error) {
		snap, err := s.loadFromDisk()
		if err != nil {
			return nil, err
		}
		s.cacheMu.Lock()
		s.cache = snap
		s.cachedAt = time.Now()
		s.cacheMu.Unlock()
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Snapshot).Clone(), nil
}

func (s *Store) invalidate() {
	s.cacheMu.Lock()
	s.cache = nil
	s.cacheMu.Unlock()
}

func (s *Store) loadFromDisk() (Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("modelsconfig: read %s: %w", s.path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("modelsconfig: parse %s: %w", s.path, err)
	}
	return snap, nil
}

// writeAtomic serializes the snapshot to a temp file in the same
// directory then renames it into place, so concurrent readers never
// observe a partial write.
func (s *Store) writeAtomic(snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("modelsconfig: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".modelsconfig-*.tmp")
	if err != nil {
		return fmt.Errorf("modelsconfig: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("modelsconfig: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("modelsconfig: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("modelsconfig: rename into place: %w", err)
	}
	return nil
}

// Save validates snap, then atomically replaces the on-disk document.
func (s *Store) Save(snap Snapshot) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := validate(snap); err != nil {
		return err
	}
	if err := s.writeAtomic(snap); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

func validate(snap Snapshot) error {
	if len(snap) == 0 {
		return errf("save", "models config must be a non-empty mapping of provider to config")
	}
	for key, cfg := range snap {
		if err := validateProviderConfig(key, cfg); err != nil {
			return err
		}
	}
	return nil
}

func validateProviderConfig(key string, cfg ProviderModelConfig) error {
	if strings.TrimSpace(cfg.Default) == "" {
		return errf("save", "provider %q: default model must be non-empty", key)
	}
	if len(cfg.Models) == 0 {
		return errf("save", "provider %q: models must be non-empty", key)
	}

	seen := make(map[string]bool, len(cfg.Models))
	foundDefault := false
	for _, m := range cfg.Models {
		if strings.TrimSpace(m) == "" {
			return errf("save", "provider %q: model names must be non-empty", key)
		}
		if seen[m] {
			return errf("save", "provider %q: duplicate model %q", key, m)
		}
		seen[m] = true
		if m == cfg.Default {
			foundDefault = true
		}
	}
	if !foundDefault {
		return errf("save", "provider %q: default %q must be one of models", key, cfg.Default)
	}
	return nil
}

func (s *Store) mutate(op string, providerKey string, fn func(cfg ProviderModelConfig) (ProviderModelConfig, error)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap, err := s.loadFromDisk()
	if err != nil {
		return err
	}

	cfg, ok := snap[providerKey]
	if !ok {
		return errf(op, "unknown provider %q", providerKey)
	}

	newCfg, err := fn(cfg)
	if err != nil {
		return err
	}

	next := snap.Clone()
	next[providerKey] = newCfg
	if err := validate(next); err != nil {
		return err
	}
	if err := s.writeAtomic(next); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// AddModel appends model to providerKey's list.
func (s *Store) AddModel(providerKey, model string) error {
	return s.mutate("addModel", providerKey, func(cfg ProviderModelConfig) (ProviderModelConfig, error) {
		for _, m := range cfg.Models {
			if m == model {
				return cfg, errf("addModel", "model %q already exists for provider %q", model, providerKey)
			}
		}
		cfg.Models = append(append([]string{}, cfg.Models...), model)
		return cfg, nil
	})
}

// RemoveModel deletes model from providerKey's list.
func (s *Store) RemoveModel(providerKey, model string) error {
	return s.mutate("removeModel", providerKey, func(cfg ProviderModelConfig) (ProviderModelConfig, error) {
		idx := indexOf(cfg.Models, model)
		if idx < 0 {
			return cfg, errf("removeModel", "unknown model %q for provider %q", model, providerKey)
		}
		if model == cfg.Default {
			return cfg, errf("removeModel", "cannot remove the default model %q", model)
		}
		if len(cfg.Models) == 1 {
			return cfg, errf("removeModel", "cannot remove the sole model of provider %q", providerKey)
		}
		cfg.Models = append(append([]string{}, cfg.Models[:idx:idx]...), cfg.Models[idx+1:]...)
		return cfg, nil
	})
}

// SetDefault changes providerKey's default model.
func (s *Store) SetDefault(providerKey, model string) error {
	return s.mutate("setDefault", providerKey, func(cfg ProviderModelConfig) (ProviderModelConfig, error) {
		if indexOf(cfg.Models, model) < 0 {
			return cfg, errf("setDefault", "model %q is not configured for provider %q", model, providerKey)
		}
		cfg.Default = model
		return cfg, nil
	})
}

// ToggleFallback flips providerKey's enableFallback flag, or sets it
// to desired when non-nil, and returns the resulting value.
func (s *Store) ToggleFallback(providerKey string, desired *bool) (bool, error) {
	var result bool
	err := s.mutate("toggleFallback", providerKey, func(cfg ProviderModelConfig) (ProviderModelConfig, error) {
		if desired != nil {
			cfg.EnableFallback = *desired
		} else {
			cfg.EnableFallback = !cfg.EnableFallback
		}
		result = cfg.EnableFallback
		return cfg, nil
	})
	return result, err
}

// ReorderModels replaces providerKey's model order; newOrder must be a
// permutation of the current model list.
func (s *Store) ReorderModels(providerKey string, newOrder []string) error {
	return s.mutate("reorderModels", providerKey, func(cfg ProviderModelConfig) (ProviderModelConfig, error) {
		if !isPermutation(cfg.Models, newOrder) {
			return cfg, errf("reorderModels", "new order is not a permutation of provider %q's current models", providerKey)
		}
		cfg.Models = append([]string{}, newOrder...)
		return cfg, nil
	})
}

// UpdateModel renames old to new in place, preserving position, and
// updates Default if it equaled old.
func (s *Store) UpdateModel(providerKey, old, new string) error {
	return s.mutate("updateModel", providerKey, func(cfg ProviderModelConfig) (ProviderModelConfig, error) {
		idx := indexOf(cfg.Models, old)
		if idx < 0 {
			return cfg, errf("updateModel", "unknown model %q for provider %q", old, providerKey)
		}
		if new != old && indexOf(cfg.Models, new) >= 0 {
			return cfg, errf("updateModel", "model %q already exists for provider %q", new, providerKey)
		}
		models := append([]string{}, cfg.Models...)
		models[idx] = new
		cfg.Models = models
		if cfg.Default == old {
			cfg.Default = new
		}
		return cfg, nil
	})
}

func indexOf(list []string, v string) int {
	for i, item := range list {
		if item == v {
			return i
		}
	}
	return -1
}

func isPermutation(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := append([]string{}, a...), append([]string{}, b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
