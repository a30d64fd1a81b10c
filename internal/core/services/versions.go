package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentdash.server/internal/core/domain"
	"agentdash.server/internal/core/logger"
	"agentdash.server/internal/core/ports"
)

// VersionEntry is one row of an agent's version history.
type VersionEntry struct {
	ID            int            `json:"id,omitempty"`
	AgentID       int            `json:"agent_id"`
	VersionNumber int            `json:"version_number"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Framework     string         `json:"framework"`
	Model         string         `json:"model"`
	ModelSettings domain.JSONMap `json:"model_settings"`
	Fields        domain.JSONMap `json:"fields,omitempty"`
	CreatedAt     string         `json:"created_at,omitempty"`
	IsCurrent     bool           `json:"is_current"`
}

// VersionService exposes an agent's snapshot history and restores prior
// snapshots, keeping the lifecycle cache consistent with the store.
type VersionService struct {
	repo     ports.AgentRepository
	registry *Registry
	events   ports.EventBus // optional
}

func NewVersionService(repo ports.AgentRepository, registry *Registry, events ports.EventBus) *VersionService {
	return &VersionService{repo: repo, registry: registry, events: events}
}

// History returns the current configuration followed by all stored
// snapshots, newest first.
func (s *VersionService) History(ctx context.Context, agentID int) ([]VersionEntry, error) {
	agent, err := s.repo.Get(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if agent == nil {
		return nil, fmt.Errorf("%w: agent %d", domain.ErrNotFound, agentID)
	}

	versions, err := s.repo.Versions(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing versions: %v", domain.ErrPersistence, err)
	}

	history := make([]VersionEntry, 0, len(versions)+1)
	history = append(history, VersionEntry{
		AgentID:       agent.ID,
		VersionNumber: agent.Version,
		Name:          agent.Name,
		Description:   agent.Description,
		Framework:     agent.Framework,
		Model:         agent.Model,
		ModelSettings: agent.ModelSettings,
		CreatedAt:     agent.UpdatedAt.Format(time.RFC3339),
		IsCurrent:     true,
	})
	for _, v := range versions {
		history = append(history, VersionEntry{
			ID:            v.ID,
			AgentID:       v.AgentID,
			VersionNumber: v.VersionNumber,
			Name:          v.Name,
			Description:   v.Description,
			Framework:     v.Framework,
			Model:         v.Model,
			ModelSettings: v.ModelSettings,
			Fields:        v.Fields,
			CreatedAt:     v.CreatedAt.Format(time.RFC3339),
		})
	}
	return history, nil
}

// Restore rolls an agent back to a stored snapshot. The pre-restore state
// is snapshotted first, so the rollback itself can be rolled back. The
// lifecycle cache is refreshed afterwards.
func (s *VersionService) Restore(ctx context.Context, agentID, versionNumber int) (*domain.Agent, error) {
	agent, err := s.repo.Get(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if agent == nil {
		return nil, fmt.Errorf("%w: agent %d", domain.ErrNotFound, agentID)
	}

	target, err := s.repo.Version(ctx, agentID, versionNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: reading version %d: %v", domain.ErrPersistence, versionNumber, err)
	}
	if target == nil {
		return nil, fmt.Errorf("%w: version %d for agent %d", domain.ErrNotFound, versionNumber, agentID)
	}

	// Preserve the pre-restore state too.
	fields := domain.JSONMap{}
	if manager := s.registry.Get(agent.Framework); manager != nil {
		if f, ferr := manager.Adapter().Fields(ctx, agentID); ferr == nil {
			fields = f
		} else if !errors.Is(ferr, domain.ErrNoRecord) {
			return nil, fmt.Errorf("%w: reading framework fields: %v", domain.ErrPersistence, ferr)
		}
	}
	if err := s.repo.CreateVersion(ctx, domain.SnapshotAgent(agent, fields)); err != nil {
		return nil, fmt.Errorf("%w: snapshotting pre-restore state: %v", domain.ErrPersistence, err)
	}

	if err := s.repo.RestoreVersion(ctx, agentID, target); err != nil {
		return nil, fmt.Errorf("%w: restoring version %d: %v", domain.ErrPersistence, versionNumber, err)
	}

	if manager := s.registry.Get(agent.Framework); manager != nil {
		if len(target.Fields) > 0 {
			if err := manager.Adapter().UpdateFields(ctx, agentID, target.Fields); err != nil && !errors.Is(err, domain.ErrNoRecord) {
				logger.Error("failed to restore framework fields", "agent_id", agentID, "error", err)
			}
		}
		if err := manager.RefreshConfig(ctx, agentID); err != nil {
			logger.Error("failed to refresh cache after restore", "agent_id", agentID, "error", err)
		}
	}

	restored, err := s.repo.Get(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	logger.Info("restored agent version", "agent_id", agentID, "version", versionNumber)
	if s.events != nil {
		event := domain.AgentEvent{
			AgentID:   agentID,
			Framework: agent.Framework,
			Type:      domain.EventAgentRestored,
			Detail:    fmt.Sprintf("restored to version %d", versionNumber),
			Timestamp: time.Now(),
		}
		if err := s.events.Publish(ctx, event); err != nil {
			logger.Debug("failed to publish restore event", "agent_id", agentID, "error", err)
		}
	}
	return restored, nil
}
