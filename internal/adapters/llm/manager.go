// Package llm resolves provider and model identifiers to live chat-capable
// handles. Providers are thin HTTP clients over the vendors' chat APIs; the
// lifecycle manager only sees the ports.ChatModel contract.
package llm

import (
	"fmt"
	"sync"

	"agentdash.server/internal/core/logger"
	"agentdash.server/internal/core/ports"
)

// Provider is one registered LLM backend.
type Provider interface {
	Name() string
	Models() []string
	Available() bool
	ChatModel(model string, temperature float64, maxTokens int) ports.ChatModel
}

// Manager implements ports.LLMManager over a set of registered providers.
type Manager struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	defaultName string
}

func NewManager() *Manager {
	return &Manager{providers: make(map[string]Provider)}
}

// Register adds a provider. Providers that report themselves unavailable
// (missing API key, unreachable host) are skipped so start attempts fail
// with a clear "could not initialize" instead of an auth error mid-query.
func (m *Manager) Register(p Provider) {
	if !p.Available() {
		logger.Warn("llm provider not configured, skipping", "provider", p.Name())
		return
	}

	m.mu.Lock()
	m.providers[p.Name()] = p
	if m.defaultName == "" || p.Name() == "openai" {
		m.defaultName = p.Name()
	}
	m.mu.Unlock()

	logger.Info("registered llm provider", "provider", p.Name(), "models", len(p.Models()))
}

// ChatModel returns a handle for provider+model. An empty provider name
// selects the default provider.
func (m *Manager) ChatModel(provider, model string, temperature float64, maxTokens int) (ports.ChatModel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var p Provider
	if provider != "" {
		p = m.providers[provider]
		if p == nil {
			return nil, fmt.Errorf("llm provider %q not registered", provider)
		}
	} else {
		p = m.providers[m.defaultName]
		if p == nil {
			return nil, fmt.Errorf("no llm provider available")
		}
	}

	handle := p.ChatModel(model, temperature, maxTokens)
	if handle == nil {
		return nil, fmt.Errorf("provider %q could not initialize model %q", p.Name(), model)
	}
	return handle, nil
}

// ListProviders returns discovery details for every registered provider.
func (m *Manager) ListProviders() []ports.ProviderInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]ports.ProviderInfo, 0, len(m.providers))
	for _, p := range m.providers {
		infos = append(infos, ports.ProviderInfo{
			Name:      p.Name(),
			Models:    p.Models(),
			Available: p.Available(),
		})
	}
	return infos
}
