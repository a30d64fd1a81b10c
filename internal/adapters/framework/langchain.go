package framework

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"agentdash.server/internal/core/domain"
	"agentdash.server/internal/core/ports"
)

// LangChainAdapter implements ports.FrameworkAdapter for tool-describing
// conversational agents keyed by an agent type.
type LangChainAdapter struct {
	store ports.LangChainStore
}

func NewLangChainAdapter(store ports.LangChainStore) *LangChainAdapter {
	return &LangChainAdapter{store: store}
}

func (a *LangChainAdapter) Name() string {
	return "langchain"
}

func (a *LangChainAdapter) Features() []string {
	return []string{"conversational", "tools", "agent_types"}
}

var langChainAgentTypes = map[string]bool{
	"conversational":  true,
	"zero-shot-react": true,
	"structured-chat": true,
}

func (a *LangChainAdapter) ValidateConfig(cfg domain.AgentConfig) error {
	agentType, ok := stringField(cfg.Options, "agent_type")
	if !ok || strings.TrimSpace(agentType) == "" {
		return nil // defaults to conversational
	}
	if !langChainAgentTypes[agentType] {
		return fmt.Errorf("unknown langchain agent type %q", agentType)
	}
	return nil
}

type langChainInstance struct {
	llm    ports.ChatModel
	system string
}

func (a *LangChainAdapter) BuildInstance(ctx context.Context, agent *domain.Agent, fields domain.JSONMap, llm ports.ChatModel) (ports.FrameworkInstance, error) {
	agentType, _ := stringField(fields, "agent_type")
	if agentType == "" {
		agentType = "conversational"
	}
	if !langChainAgentTypes[agentType] {
		return nil, fmt.Errorf("unknown langchain agent type %q", agentType)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a %s assistant", agentType)
	if agent.Description != "" {
		fmt.Fprintf(&b, ": %s", agent.Description)
	} else {
		b.WriteString(".")
	}

	if tools, ok := mapField(fields, "tools"); ok && len(tools) > 0 {
		names := make([]string, 0, len(tools))
		for name := range tools {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("\n\nTools you can describe using:")
		for _, name := range names {
			if desc, ok := tools[name].(string); ok && desc != "" {
				fmt.Fprintf(&b, "\n- %s: %s", name, desc)
			} else {
				fmt.Fprintf(&b, "\n- %s", name)
			}
		}
	}

	return &langChainInstance{llm: llm, system: b.String()}, nil
}

func (a *LangChainAdapter) RunQuery(ctx context.Context, instance ports.FrameworkInstance, query string) (string, error) {
	inst, ok := instance.(*langChainInstance)
	if !ok || inst == nil {
		return "", fmt.Errorf("not a langchain instance")
	}
	return inst.llm.Chat(ctx, inst.system, query)
}

func (a *LangChainAdapter) Cleanup(instance ports.FrameworkInstance) {
	if inst, ok := instance.(*langChainInstance); ok && inst != nil {
		inst.llm = nil
	}
}

func (a *LangChainAdapter) CreateRecord(ctx context.Context, agentID int, cfg domain.AgentConfig) error {
	rec := &domain.LangChainAgent{AgentID: agentID}
	rec.AgentType, _ = stringField(cfg.Options, "agent_type")
	if rec.AgentType == "" {
		rec.AgentType = "conversational"
	}
	if tools, ok := mapField(cfg.Options, "tools"); ok {
		rec.Tools = tools
	} else {
		rec.Tools = domain.JSONMap{}
	}
	return a.store.CreateLangChain(ctx, rec)
}

func (a *LangChainAdapter) Fields(ctx context.Context, agentID int) (domain.JSONMap, error) {
	rec, err := a.store.GetLangChain(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.ErrNoRecord
	}
	return domain.JSONMap{
		"agent_type": rec.AgentType,
		"tools":      rec.Tools,
	}, nil
}

func (a *LangChainAdapter) UpdateFields(ctx context.Context, agentID int, patch map[string]any) error {
	rec, err := a.store.GetLangChain(ctx, agentID)
	if err != nil {
		return err
	}
	if rec == nil {
		return domain.ErrNoRecord
	}

	if v, ok := stringField(patch, "agent_type"); ok {
		if !langChainAgentTypes[v] {
			return fmt.Errorf("unknown langchain agent type %q", v)
		}
		rec.AgentType = v
	}
	if v, ok := mapField(patch, "tools"); ok {
		rec.Tools = v
	}
	return a.store.SaveLangChain(ctx, rec)
}
