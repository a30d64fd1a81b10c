package framework

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"agentdash.server/internal/core/domain"
	"agentdash.server/internal/core/ports"
)

// AgnoAdapter implements ports.FrameworkAdapter for instruction-driven
// agents with optional markdown output.
type AgnoAdapter struct {
	store ports.AgnoStore
}

func NewAgnoAdapter(store ports.AgnoStore) *AgnoAdapter {
	return &AgnoAdapter{store: store}
}

func (a *AgnoAdapter) Name() string {
	return "agno"
}

func (a *AgnoAdapter) Features() []string {
	return []string{"instructions", "markdown", "tools"}
}

func (a *AgnoAdapter) ValidateConfig(cfg domain.AgentConfig) error {
	instructions, _ := stringField(cfg.Options, "instructions")
	if strings.TrimSpace(instructions) == "" {
		return fmt.Errorf("agno agents require instructions")
	}
	return nil
}

type agnoInstance struct {
	llm    ports.ChatModel
	system string
}

func (a *AgnoAdapter) BuildInstance(ctx context.Context, agent *domain.Agent, fields domain.JSONMap, llm ports.ChatModel) (ports.FrameworkInstance, error) {
	instructions, _ := stringField(fields, "instructions")
	if instructions == "" {
		return nil, fmt.Errorf("agent %d has no agno instructions configured", agent.ID)
	}

	var b strings.Builder
	b.WriteString(instructions)
	if markdown, _ := boolField(fields, "markdown"); markdown {
		b.WriteString("\n\nFormat every response as markdown.")
	}
	if tools, ok := mapField(fields, "tools"); ok && len(tools) > 0 {
		names := make([]string, 0, len(tools))
		for name := range tools {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(&b, "\n\nAvailable tools: %s.", strings.Join(names, ", "))
	}

	return &agnoInstance{llm: llm, system: b.String()}, nil
}

func (a *AgnoAdapter) RunQuery(ctx context.Context, instance ports.FrameworkInstance, query string) (string, error) {
	inst, ok := instance.(*agnoInstance)
	if !ok || inst == nil {
		return "", fmt.Errorf("not an agno instance")
	}
	return inst.llm.Chat(ctx, inst.system, query)
}

func (a *AgnoAdapter) Cleanup(instance ports.FrameworkInstance) {
	if inst, ok := instance.(*agnoInstance); ok && inst != nil {
		inst.llm = nil
	}
}

func (a *AgnoAdapter) CreateRecord(ctx context.Context, agentID int, cfg domain.AgentConfig) error {
	rec := &domain.AgnoAgent{AgentID: agentID}
	rec.Instructions, _ = stringField(cfg.Options, "instructions")
	rec.Markdown, _ = boolField(cfg.Options, "markdown")
	if tools, ok := mapField(cfg.Options, "tools"); ok {
		rec.Tools = tools
	} else {
		rec.Tools = domain.JSONMap{}
	}
	return a.store.CreateAgno(ctx, rec)
}

func (a *AgnoAdapter) Fields(ctx context.Context, agentID int) (domain.JSONMap, error) {
	rec, err := a.store.GetAgno(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.ErrNoRecord
	}
	return domain.JSONMap{
		"instructions": rec.Instructions,
		"markdown":     rec.Markdown,
		"tools":        rec.Tools,
	}, nil
}

func (a *AgnoAdapter) UpdateFields(ctx context.Context, agentID int, patch map[string]any) error {
	rec, err := a.store.GetAgno(ctx, agentID)
	if err != nil {
		return err
	}
	if rec == nil {
		return domain.ErrNoRecord
	}

	if v, ok := stringField(patch, "instructions"); ok {
		rec.Instructions = v
	}
	if v, ok := boolField(patch, "markdown"); ok {
		rec.Markdown = v
	}
	if v, ok := mapField(patch, "tools"); ok {
		rec.Tools = v
	}
	return a.store.SaveAgno(ctx, rec)
}
