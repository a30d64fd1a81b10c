package services

import (
	"sync"

	"agentdash.server/internal/core/logger"
)

// FrameworkInfo describes one registered framework for discovery.
type FrameworkInfo struct {
	Framework string   `json:"framework"`
	Name      string   `json:"name"`
	Features  []string `json:"features"`
	Status    string   `json:"status"`
}

// Registry maps framework identifiers to their lifecycle managers. It is
// built explicitly at startup from a registration list and injected into
// whatever owns the HTTP boundary; there is no global instance and no
// directory scanning.
type Registry struct {
	mu          sync.RWMutex
	managers    map[string]*LifecycleManager
	defaultName string
}

func NewRegistry(defaultFramework string) *Registry {
	return &Registry{
		managers:    make(map[string]*LifecycleManager),
		defaultName: defaultFramework,
	}
}

// Register adds a manager under its framework name. Last write wins; a
// re-registration replaces the previous manager.
func (r *Registry) Register(manager *LifecycleManager) {
	name := manager.Framework()

	r.mu.Lock()
	if _, exists := r.managers[name]; exists {
		logger.Warn("replacing registered framework", "framework", name)
	}
	r.managers[name] = manager
	r.mu.Unlock()

	logger.Info("registered framework provider", "framework", name)
}

// Get returns the manager for a framework, or nil when unregistered.
func (r *Registry) Get(name string) *LifecycleManager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.managers[name]
}

// Default returns the configured default framework's manager, falling back
// to any registered manager, or nil when the registry is empty.
func (r *Registry) Default() *LifecycleManager {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.managers[r.defaultName]; ok {
		return m
	}
	for _, m := range r.managers {
		return m
	}
	return nil
}

// Names returns the registered framework identifiers.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.managers))
	for name := range r.managers {
		names = append(names, name)
	}
	return names
}

// List returns discovery details for every registered framework.
func (r *Registry) List() []FrameworkInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]FrameworkInfo, 0, len(r.managers))
	for name, manager := range r.managers {
		infos = append(infos, FrameworkInfo{
			Framework: name,
			Name:      title(name),
			Features:  manager.Adapter().Features(),
			Status:    "active",
		})
	}
	return infos
}

func title(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
