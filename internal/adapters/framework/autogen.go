package framework

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"agentdash.server/internal/core/domain"
	"agentdash.server/internal/core/ports"
)

// AutoGenAdapter implements ports.FrameworkAdapter for assistant agents
// driven by a single system message.
type AutoGenAdapter struct {
	store ports.AutoGenStore
}

func NewAutoGenAdapter(store ports.AutoGenStore) *AutoGenAdapter {
	return &AutoGenAdapter{store: store}
}

func (a *AutoGenAdapter) Name() string {
	return "autogen"
}

func (a *AutoGenAdapter) Features() []string {
	return []string{"assistant", "system_message", "tools"}
}

func (a *AutoGenAdapter) ValidateConfig(cfg domain.AgentConfig) error {
	msg, _ := stringField(cfg.Options, "system_message")
	if strings.TrimSpace(msg) == "" {
		return fmt.Errorf("autogen agents require a system_message")
	}
	return nil
}

type autoGenInstance struct {
	llm    ports.ChatModel
	system string
}

func (a *AutoGenAdapter) BuildInstance(ctx context.Context, agent *domain.Agent, fields domain.JSONMap, llm ports.ChatModel) (ports.FrameworkInstance, error) {
	msg, _ := stringField(fields, "system_message")
	if msg == "" {
		return nil, fmt.Errorf("agent %d has no autogen system message configured", agent.ID)
	}

	var b strings.Builder
	if agent.Name != "" {
		fmt.Fprintf(&b, "You are %s.\n\n", agent.Name)
	}
	b.WriteString(msg)
	if tools, ok := mapField(fields, "tools"); ok && len(tools) > 0 {
		names := make([]string, 0, len(tools))
		for name := range tools {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(&b, "\n\nRegistered tools: %s.", strings.Join(names, ", "))
	}

	return &autoGenInstance{llm: llm, system: b.String()}, nil
}

func (a *AutoGenAdapter) RunQuery(ctx context.Context, instance ports.FrameworkInstance, query string) (string, error) {
	inst, ok := instance.(*autoGenInstance)
	if !ok || inst == nil {
		return "", fmt.Errorf("not an autogen instance")
	}
	return inst.llm.Chat(ctx, inst.system, query)
}

func (a *AutoGenAdapter) Cleanup(instance ports.FrameworkInstance) {
	if inst, ok := instance.(*autoGenInstance); ok && inst != nil {
		inst.llm = nil
	}
}

func (a *AutoGenAdapter) CreateRecord(ctx context.Context, agentID int, cfg domain.AgentConfig) error {
	rec := &domain.AutoGenAgent{AgentID: agentID}
	rec.SystemMessage, _ = stringField(cfg.Options, "system_message")
	if tools, ok := mapField(cfg.Options, "tools"); ok {
		rec.Tools = tools
	} else {
		rec.Tools = domain.JSONMap{}
	}
	return a.store.CreateAutoGen(ctx, rec)
}

func (a *AutoGenAdapter) Fields(ctx context.Context, agentID int) (domain.JSONMap, error) {
	rec, err := a.store.GetAutoGen(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.ErrNoRecord
	}
	return domain.JSONMap{
		"system_message": rec.SystemMessage,
		"tools":          rec.Tools,
	}, nil
}

func (a *AutoGenAdapter) UpdateFields(ctx context.Context, agentID int, patch map[string]any) error {
	rec, err := a.store.GetAutoGen(ctx, agentID)
	if err != nil {
		return err
	}
	if rec == nil {
		return domain.ErrNoRecord
	}

	if v, ok := stringField(patch, "system_message"); ok {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("autogen system_message cannot be empty")
		}
		rec.SystemMessage = v
	}
	if v, ok := mapField(patch, "tools"); ok {
		rec.Tools = v
	}
	return a.store.SaveAutoGen(ctx, rec)
}
