package services

import (
	"context"
	"errors"
	"testing"

	"agentdash.server/internal/core/domain"
	"agentdash.server/internal/core/pool"
)

func versionFixture(t *testing.T) (*memRepo, *stubAdapter, *LifecycleManager, *VersionService, int) {
	t.Helper()
	repo := newMemRepo()
	adapter := newStubAdapter("stub")
	m := NewLifecycleManager(adapter, repo, &stubLLM{}, pool.New(1), nil, nil, LifecycleConfig{})

	registry := NewRegistry("stub")
	registry.Register(m)
	svc := NewVersionService(repo, registry, nil)

	id := createAgent(t, m)
	return repo, adapter, m, svc, id
}

func TestHistoryListsCurrentFirst(t *testing.T) {
	_, _, m, svc, id := versionFixture(t)

	if err := m.Update(context.Background(), id, map[string]any{"name": "v2"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := m.Update(context.Background(), id, map[string]any{"name": "v3"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	history, err := svc.History(context.Background(), id)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("Expected current + 2 snapshots, got %d entries", len(history))
	}
	if !history[0].IsCurrent {
		t.Error("First entry must be the current configuration")
	}
	if history[0].VersionNumber != 3 || history[0].Name != "v3" {
		t.Errorf("Expected current v3 named v3, got v%d %q", history[0].VersionNumber, history[0].Name)
	}
	if history[1].VersionNumber != 2 || history[2].VersionNumber != 1 {
		t.Errorf("Snapshots must be newest first, got v%d then v%d", history[1].VersionNumber, history[2].VersionNumber)
	}
	if history[2].Name != "researcher" {
		t.Errorf("Oldest snapshot must hold the original name, got %q", history[2].Name)
	}
}

func TestHistoryUnknownAgent(t *testing.T) {
	_, _, _, svc, _ := versionFixture(t)
	if _, err := svc.History(context.Background(), 99); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	repo, adapter, m, svc, id := versionFixture(t)

	if err := m.Update(context.Background(), id, map[string]any{"name": "v2", "role": "analyst"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	restored, err := svc.Restore(context.Background(), id, 1)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	if restored.Name != "researcher" {
		t.Errorf("Expected restored name researcher, got %q", restored.Name)
	}
	// Restore is a mutation: the version moves forward, never back.
	if restored.Version != 3 {
		t.Errorf("Expected version 3 after restore, got %d", restored.Version)
	}

	fields, _ := adapter.Fields(context.Background(), id)
	if fields["role"] != "researcher" {
		t.Errorf("Expected framework fields restored, got role %v", fields["role"])
	}

	// The pre-restore state was snapshotted, so it can be restored too.
	versions, _ := repo.Versions(context.Background(), id)
	if len(versions) != 2 {
		t.Fatalf("Expected 2 snapshots after restore, got %d", len(versions))
	}
	if versions[0].VersionNumber != 2 || versions[0].Name != "v2" {
		t.Errorf("Pre-restore snapshot must hold v2 state, got v%d %q", versions[0].VersionNumber, versions[0].Name)
	}
}

func TestRestoreRefreshesCache(t *testing.T) {
	_, _, m, svc, id := versionFixture(t)

	if err := m.Update(context.Background(), id, map[string]any{"name": "v2"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := svc.Restore(context.Background(), id, 1); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	agent, err := m.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if agent.Name != "researcher" {
		t.Errorf("Expected cache view refreshed to researcher, got %q", agent.Name)
	}
}

func TestRestoreUnknownVersion(t *testing.T) {
	_, _, _, svc, id := versionFixture(t)
	if _, err := svc.Restore(context.Background(), id, 42); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing version, got %v", err)
	}
}
