package framework

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"agentdash.server/internal/core/domain"
	"agentdash.server/internal/core/ports"
)

// LangGraphAdapter implements ports.FrameworkAdapter for react-style agents
// built from a standing prompt and a tool set.
type LangGraphAdapter struct {
	store ports.LangGraphStore
}

func NewLangGraphAdapter(store ports.LangGraphStore) *LangGraphAdapter {
	return &LangGraphAdapter{store: store}
}

func (a *LangGraphAdapter) Name() string {
	return "langgraph"
}

func (a *LangGraphAdapter) Features() []string {
	return []string{"react", "graph_workflows", "tools"}
}

func (a *LangGraphAdapter) ValidateConfig(cfg domain.AgentConfig) error {
	prompt, _ := stringField(cfg.Options, "prompt")
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("langgraph agents require a prompt")
	}
	return nil
}

type langGraphInstance struct {
	llm    ports.ChatModel
	system string
}

func (a *LangGraphAdapter) BuildInstance(ctx context.Context, agent *domain.Agent, fields domain.JSONMap, llm ports.ChatModel) (ports.FrameworkInstance, error) {
	prompt, _ := stringField(fields, "prompt")
	if prompt == "" {
		return nil, fmt.Errorf("agent %d has no langgraph prompt configured", agent.ID)
	}

	var b strings.Builder
	b.WriteString(prompt)
	if tools, ok := mapField(fields, "tools"); ok && len(tools) > 0 {
		names := make([]string, 0, len(tools))
		for name := range tools {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("\n\nReason step by step. Tools you can call:")
		for _, name := range names {
			if desc, ok := tools[name].(string); ok && desc != "" {
				fmt.Fprintf(&b, "\n- %s: %s", name, desc)
			} else {
				fmt.Fprintf(&b, "\n- %s", name)
			}
		}
	}

	return &langGraphInstance{llm: llm, system: b.String()}, nil
}

func (a *LangGraphAdapter) RunQuery(ctx context.Context, instance ports.FrameworkInstance, query string) (string, error) {
	inst, ok := instance.(*langGraphInstance)
	if !ok || inst == nil {
		return "", fmt.Errorf("not a langgraph instance")
	}
	return inst.llm.Chat(ctx, inst.system, query)
}

func (a *LangGraphAdapter) Cleanup(instance ports.FrameworkInstance) {
	if inst, ok := instance.(*langGraphInstance); ok && inst != nil {
		inst.llm = nil
	}
}

func (a *LangGraphAdapter) CreateRecord(ctx context.Context, agentID int, cfg domain.AgentConfig) error {
	rec := &domain.LangGraphAgent{AgentID: agentID}
	rec.Prompt, _ = stringField(cfg.Options, "prompt")
	if tools, ok := mapField(cfg.Options, "tools"); ok {
		rec.Tools = tools
	} else {
		rec.Tools = domain.JSONMap{}
	}
	return a.store.CreateLangGraph(ctx, rec)
}

func (a *LangGraphAdapter) Fields(ctx context.Context, agentID int) (domain.JSONMap, error) {
	rec, err := a.store.GetLangGraph(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.ErrNoRecord
	}
	return domain.JSONMap{
		"prompt": rec.Prompt,
		"tools":  rec.Tools,
	}, nil
}

func (a *LangGraphAdapter) UpdateFields(ctx context.Context, agentID int, patch map[string]any) error {
	rec, err := a.store.GetLangGraph(ctx, agentID)
	if err != nil {
		return err
	}
	if rec == nil {
		return domain.ErrNoRecord
	}

	if v, ok := stringField(patch, "prompt"); ok {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("langgraph prompt cannot be empty")
		}
		rec.Prompt = v
	}
	if v, ok := mapField(patch, "tools"); ok {
		rec.Tools = v
	}
	return a.store.SaveLangGraph(ctx, rec)
}
