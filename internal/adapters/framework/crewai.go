package framework

import (
	"context"
	"fmt"
	"strings"

	"agentdash.server/internal/core/domain"
	"agentdash.server/internal/core/ports"
)

// CrewAIAdapter implements ports.FrameworkAdapter for role-playing agents
// defined by a role, a backstory and a task with an expected output shape.
type CrewAIAdapter struct {
	store ports.CrewAIStore
}

func NewCrewAIAdapter(store ports.CrewAIStore) *CrewAIAdapter {
	return &CrewAIAdapter{store: store}
}

func (a *CrewAIAdapter) Name() string {
	return "crewai"
}

func (a *CrewAIAdapter) Features() []string {
	return []string{"role_playing", "task_execution", "memory"}
}

func (a *CrewAIAdapter) ValidateConfig(cfg domain.AgentConfig) error {
	role, _ := stringField(cfg.Options, "role")
	if strings.TrimSpace(role) == "" {
		return fmt.Errorf("crewai agents require a role")
	}
	task, _ := stringField(cfg.Options, "task")
	if strings.TrimSpace(task) == "" {
		return fmt.Errorf("crewai agents require a task")
	}
	return nil
}

// crewAIInstance is a live crewai agent: an LLM handle plus the persona
// prompt assembled from the sub-record.
type crewAIInstance struct {
	llm    ports.ChatModel
	system string
	task   string
}

func (a *CrewAIAdapter) BuildInstance(ctx context.Context, agent *domain.Agent, fields domain.JSONMap, llm ports.ChatModel) (ports.FrameworkInstance, error) {
	role, _ := stringField(fields, "role")
	if role == "" {
		return nil, fmt.Errorf("agent %d has no crewai role configured", agent.ID)
	}
	backstory, _ := stringField(fields, "backstory")
	task, _ := stringField(fields, "task")
	expected, _ := stringField(fields, "expected_output")

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.", role)
	if backstory != "" {
		fmt.Fprintf(&b, "\n\nBackstory: %s", backstory)
	}
	if expected != "" {
		fmt.Fprintf(&b, "\n\nShape your answers as: %s", expected)
	}

	return &crewAIInstance{
		llm:    llm,
		system: b.String(),
		task:   task,
	}, nil
}

func (a *CrewAIAdapter) RunQuery(ctx context.Context, instance ports.FrameworkInstance, query string) (string, error) {
	inst, ok := instance.(*crewAIInstance)
	if !ok || inst == nil {
		return "", fmt.Errorf("not a crewai instance")
	}

	prompt := query
	if inst.task != "" {
		prompt = fmt.Sprintf("Your standing task: %s\n\nCurrent request: %s", inst.task, query)
	}
	return inst.llm.Chat(ctx, inst.system, prompt)
}

func (a *CrewAIAdapter) Cleanup(instance ports.FrameworkInstance) {
	if inst, ok := instance.(*crewAIInstance); ok && inst != nil {
		inst.llm = nil
	}
}

func (a *CrewAIAdapter) CreateRecord(ctx context.Context, agentID int, cfg domain.AgentConfig) error {
	rec := &domain.CrewAIAgent{AgentID: agentID}
	rec.Role, _ = stringField(cfg.Options, "role")
	rec.Backstory, _ = stringField(cfg.Options, "backstory")
	rec.Task, _ = stringField(cfg.Options, "task")
	rec.ExpectedOutput, _ = stringField(cfg.Options, "expected_output")
	rec.MemoryEnabled, _ = boolField(cfg.Options, "memory_enabled")
	return a.store.CreateCrewAI(ctx, rec)
}

func (a *CrewAIAdapter) Fields(ctx context.Context, agentID int) (domain.JSONMap, error) {
	rec, err := a.store.GetCrewAI(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.ErrNoRecord
	}
	return domain.JSONMap{
		"role":            rec.Role,
		"backstory":       rec.Backstory,
		"task":            rec.Task,
		"expected_output": rec.ExpectedOutput,
		"memory_enabled":  rec.MemoryEnabled,
	}, nil
}

func (a *CrewAIAdapter) UpdateFields(ctx context.Context, agentID int, patch map[string]any) error {
	rec, err := a.store.GetCrewAI(ctx, agentID)
	if err != nil {
		return err
	}
	if rec == nil {
		return domain.ErrNoRecord
	}

	if v, ok := stringField(patch, "role"); ok {
		rec.Role = v
	}
	if v, ok := stringField(patch, "backstory"); ok {
		rec.Backstory = v
	}
	if v, ok := stringField(patch, "task"); ok {
		rec.Task = v
	}
	if v, ok := stringField(patch, "expected_output"); ok {
		rec.ExpectedOutput = v
	}
	if v, ok := boolField(patch, "memory_enabled"); ok {
		rec.MemoryEnabled = v
	}
	return a.store.SaveCrewAI(ctx, rec)
}
