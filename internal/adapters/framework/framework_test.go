package framework

import (
	"context"
	"errors"
	"strings"
	"testing"

	"agentdash.server/internal/core/domain"
)

// memStore implements the three sub-record store interfaces in memory.
type memStore struct {
	crewai    map[int]*domain.CrewAIAgent
	langchain map[int]*domain.LangChainAgent
	agno      map[int]*domain.AgnoAgent
	langgraph map[int]*domain.LangGraphAgent
	autogen   map[int]*domain.AutoGenAgent
}

func newMemStore() *memStore {
	return &memStore{
		crewai:    make(map[int]*domain.CrewAIAgent),
		langchain: make(map[int]*domain.LangChainAgent),
		agno:      make(map[int]*domain.AgnoAgent),
		langgraph: make(map[int]*domain.LangGraphAgent),
		autogen:   make(map[int]*domain.AutoGenAgent),
	}
}

func (s *memStore) CreateCrewAI(ctx context.Context, rec *domain.CrewAIAgent) error {
	s.crewai[rec.AgentID] = rec
	return nil
}

func (s *memStore) GetCrewAI(ctx context.Context, agentID int) (*domain.CrewAIAgent, error) {
	return s.crewai[agentID], nil
}

func (s *memStore) SaveCrewAI(ctx context.Context, rec *domain.CrewAIAgent) error {
	s.crewai[rec.AgentID] = rec
	return nil
}

func (s *memStore) CreateLangChain(ctx context.Context, rec *domain.LangChainAgent) error {
	s.langchain[rec.AgentID] = rec
	return nil
}

func (s *memStore) GetLangChain(ctx context.Context, agentID int) (*domain.LangChainAgent, error) {
	return s.langchain[agentID], nil
}

func (s *memStore) SaveLangChain(ctx context.Context, rec *domain.LangChainAgent) error {
	s.langchain[rec.AgentID] = rec
	return nil
}

func (s *memStore) CreateAgno(ctx context.Context, rec *domain.AgnoAgent) error {
	s.agno[rec.AgentID] = rec
	return nil
}

func (s *memStore) GetAgno(ctx context.Context, agentID int) (*domain.AgnoAgent, error) {
	return s.agno[agentID], nil
}

func (s *memStore) SaveAgno(ctx context.Context, rec *domain.AgnoAgent) error {
	s.agno[rec.AgentID] = rec
	return nil
}

func (s *memStore) CreateLangGraph(ctx context.Context, rec *domain.LangGraphAgent) error {
	s.langgraph[rec.AgentID] = rec
	return nil
}

func (s *memStore) GetLangGraph(ctx context.Context, agentID int) (*domain.LangGraphAgent, error) {
	return s.langgraph[agentID], nil
}

func (s *memStore) SaveLangGraph(ctx context.Context, rec *domain.LangGraphAgent) error {
	s.langgraph[rec.AgentID] = rec
	return nil
}

func (s *memStore) CreateAutoGen(ctx context.Context, rec *domain.AutoGenAgent) error {
	s.autogen[rec.AgentID] = rec
	return nil
}

func (s *memStore) GetAutoGen(ctx context.Context, agentID int) (*domain.AutoGenAgent, error) {
	return s.autogen[agentID], nil
}

func (s *memStore) SaveAutoGen(ctx context.Context, rec *domain.AutoGenAgent) error {
	s.autogen[rec.AgentID] = rec
	return nil
}

// captureChat records the last system prompt and returns a fixed answer.
type captureChat struct {
	system string
	prompt string
}

func (c *captureChat) Chat(ctx context.Context, system, prompt string) (string, error) {
	c.system = system
	c.prompt = prompt
	return "answer", nil
}

// CrewAI

func TestCrewAIValidateConfig(t *testing.T) {
	a := NewCrewAIAdapter(newMemStore())

	err := a.ValidateConfig(domain.AgentConfig{Options: domain.JSONMap{"task": "do things"}})
	if err == nil || !strings.Contains(err.Error(), "role") {
		t.Errorf("Expected role error, got %v", err)
	}
	err = a.ValidateConfig(domain.AgentConfig{Options: domain.JSONMap{"role": "researcher"}})
	if err == nil || !strings.Contains(err.Error(), "task") {
		t.Errorf("Expected task error, got %v", err)
	}
	err = a.ValidateConfig(domain.AgentConfig{Options: domain.JSONMap{"role": "researcher", "task": "do things"}})
	if err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestCrewAIRecordRoundTrip(t *testing.T) {
	a := NewCrewAIAdapter(newMemStore())
	ctx := context.Background()

	err := a.CreateRecord(ctx, 1, domain.AgentConfig{Options: domain.JSONMap{
		"role":            "researcher",
		"backstory":       "expert analyst",
		"task":            "answer questions",
		"expected_output": "bullet points",
		"memory_enabled":  true,
	}})
	if err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}

	fields, err := a.Fields(ctx, 1)
	if err != nil {
		t.Fatalf("Fields failed: %v", err)
	}
	if fields["role"] != "researcher" || fields["memory_enabled"] != true {
		t.Errorf("Unexpected fields: %v", fields)
	}

	if err := a.UpdateFields(ctx, 1, map[string]any{"role": "analyst"}); err != nil {
		t.Fatalf("UpdateFields failed: %v", err)
	}
	fields, _ = a.Fields(ctx, 1)
	if fields["role"] != "analyst" {
		t.Errorf("Expected updated role analyst, got %v", fields["role"])
	}
	if fields["backstory"] != "expert analyst" {
		t.Errorf("Untouched fields must survive a partial update, got %v", fields["backstory"])
	}
}

func TestCrewAIMissingRecord(t *testing.T) {
	a := NewCrewAIAdapter(newMemStore())
	ctx := context.Background()

	if _, err := a.Fields(ctx, 42); !errors.Is(err, domain.ErrNoRecord) {
		t.Errorf("Expected ErrNoRecord from Fields, got %v", err)
	}
	if err := a.UpdateFields(ctx, 42, map[string]any{"role": "x"}); !errors.Is(err, domain.ErrNoRecord) {
		t.Errorf("Expected ErrNoRecord from UpdateFields, got %v", err)
	}
}

func TestCrewAIBuildAndQuery(t *testing.T) {
	a := NewCrewAIAdapter(newMemStore())
	ctx := context.Background()
	chat := &captureChat{}

	fields := domain.JSONMap{
		"role":            "researcher",
		"backstory":       "expert analyst",
		"task":            "answer questions",
		"expected_output": "bullet points",
	}
	instance, err := a.BuildInstance(ctx, &domain.Agent{ID: 1}, fields, chat)
	if err != nil {
		t.Fatalf("BuildInstance failed: %v", err)
	}

	out, err := a.RunQuery(ctx, instance, "what is Go?")
	if err != nil {
		t.Fatalf("RunQuery failed: %v", err)
	}
	if out != "answer" {
		t.Errorf("Expected answer, got %q", out)
	}
	if !strings.Contains(chat.system, "researcher") || !strings.Contains(chat.system, "expert analyst") {
		t.Errorf("System prompt missing persona: %q", chat.system)
	}
	if !strings.Contains(chat.prompt, "answer questions") || !strings.Contains(chat.prompt, "what is Go?") {
		t.Errorf("Prompt missing task or query: %q", chat.prompt)
	}
}

func TestCrewAIBuildRequiresRole(t *testing.T) {
	a := NewCrewAIAdapter(newMemStore())
	_, err := a.BuildInstance(context.Background(), &domain.Agent{ID: 1}, domain.JSONMap{}, &captureChat{})
	if err == nil {
		t.Error("Expected error without a role")
	}
}

// LangChain

func TestLangChainValidateConfig(t *testing.T) {
	a := NewLangChainAdapter(newMemStore())

	if err := a.ValidateConfig(domain.AgentConfig{}); err != nil {
		t.Errorf("Empty agent type should default, got %v", err)
	}
	if err := a.ValidateConfig(domain.AgentConfig{Options: domain.JSONMap{"agent_type": "zero-shot-react"}}); err != nil {
		t.Errorf("Expected valid agent type, got %v", err)
	}
	if err := a.ValidateConfig(domain.AgentConfig{Options: domain.JSONMap{"agent_type": "bogus"}}); err == nil {
		t.Error("Expected error for unknown agent type")
	}
}

func TestLangChainRecordDefaults(t *testing.T) {
	store := newMemStore()
	a := NewLangChainAdapter(store)
	ctx := context.Background()

	if err := a.CreateRecord(ctx, 1, domain.AgentConfig{}); err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}
	fields, _ := a.Fields(ctx, 1)
	if fields["agent_type"] != "conversational" {
		t.Errorf("Expected default agent type conversational, got %v", fields["agent_type"])
	}

	if err := a.UpdateFields(ctx, 1, map[string]any{"agent_type": "bogus"}); err == nil {
		t.Error("Expected error updating to unknown agent type")
	}
}

func TestLangChainBuildIncludesTools(t *testing.T) {
	a := NewLangChainAdapter(newMemStore())
	chat := &captureChat{}

	fields := domain.JSONMap{
		"agent_type": "conversational",
		"tools":      map[string]any{"search": "web search", "calculator": "math"},
	}
	instance, err := a.BuildInstance(context.Background(), &domain.Agent{ID: 1, Description: "helper"}, fields, chat)
	if err != nil {
		t.Fatalf("BuildInstance failed: %v", err)
	}
	if _, err := a.RunQuery(context.Background(), instance, "hi"); err != nil {
		t.Fatalf("RunQuery failed: %v", err)
	}
	if !strings.Contains(chat.system, "calculator: math") || !strings.Contains(chat.system, "search: web search") {
		t.Errorf("System prompt missing tools: %q", chat.system)
	}
}

// Agno

func TestAgnoValidateConfig(t *testing.T) {
	a := NewAgnoAdapter(newMemStore())

	if err := a.ValidateConfig(domain.AgentConfig{}); err == nil {
		t.Error("Expected error without instructions")
	}
	if err := a.ValidateConfig(domain.AgentConfig{Options: domain.JSONMap{"instructions": "be helpful"}}); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestAgnoBuildAndQuery(t *testing.T) {
	a := NewAgnoAdapter(newMemStore())
	chat := &captureChat{}

	fields := domain.JSONMap{
		"instructions": "be helpful",
		"markdown":     true,
	}
	instance, err := a.BuildInstance(context.Background(), &domain.Agent{ID: 1}, fields, chat)
	if err != nil {
		t.Fatalf("BuildInstance failed: %v", err)
	}
	if _, err := a.RunQuery(context.Background(), instance, "hi"); err != nil {
		t.Fatalf("RunQuery failed: %v", err)
	}
	if !strings.Contains(chat.system, "be helpful") {
		t.Errorf("System prompt missing instructions: %q", chat.system)
	}
	if !strings.Contains(chat.system, "markdown") {
		t.Errorf("System prompt missing markdown directive: %q", chat.system)
	}
}

func TestAgnoMissingRecord(t *testing.T) {
	a := NewAgnoAdapter(newMemStore())
	if err := a.UpdateFields(context.Background(), 42, map[string]any{"instructions": "x"}); !errors.Is(err, domain.ErrNoRecord) {
		t.Errorf("Expected ErrNoRecord, got %v", err)
	}
}

// LangGraph

func TestLangGraphValidateConfig(t *testing.T) {
	a := NewLangGraphAdapter(newMemStore())

	if err := a.ValidateConfig(domain.AgentConfig{}); err == nil {
		t.Error("Expected error without a prompt")
	}
	if err := a.ValidateConfig(domain.AgentConfig{Options: domain.JSONMap{"prompt": "answer concisely"}}); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestLangGraphBuildIncludesTools(t *testing.T) {
	a := NewLangGraphAdapter(newMemStore())
	chat := &captureChat{}

	fields := domain.JSONMap{
		"prompt": "answer concisely",
		"tools":  map[string]any{"search": "web search", "wiki": "encyclopedia"},
	}
	instance, err := a.BuildInstance(context.Background(), &domain.Agent{ID: 1}, fields, chat)
	if err != nil {
		t.Fatalf("BuildInstance failed: %v", err)
	}
	if _, err := a.RunQuery(context.Background(), instance, "hi"); err != nil {
		t.Fatalf("RunQuery failed: %v", err)
	}
	if !strings.Contains(chat.system, "answer concisely") {
		t.Errorf("System prompt missing the configured prompt: %q", chat.system)
	}
	if !strings.Contains(chat.system, "search: web search") || !strings.Contains(chat.system, "wiki: encyclopedia") {
		t.Errorf("System prompt missing tools: %q", chat.system)
	}
}

func TestLangGraphRecordRoundTrip(t *testing.T) {
	a := NewLangGraphAdapter(newMemStore())
	ctx := context.Background()

	err := a.CreateRecord(ctx, 1, domain.AgentConfig{Options: domain.JSONMap{
		"prompt": "answer concisely",
		"tools":  map[string]any{"search": "web search"},
	}})
	if err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}

	fields, err := a.Fields(ctx, 1)
	if err != nil {
		t.Fatalf("Fields failed: %v", err)
	}
	if fields["prompt"] != "answer concisely" {
		t.Errorf("Unexpected fields: %v", fields)
	}

	if err := a.UpdateFields(ctx, 1, map[string]any{"prompt": "be thorough"}); err != nil {
		t.Fatalf("UpdateFields failed: %v", err)
	}
	fields, _ = a.Fields(ctx, 1)
	if fields["prompt"] != "be thorough" {
		t.Errorf("Expected updated prompt, got %v", fields["prompt"])
	}

	if err := a.UpdateFields(ctx, 1, map[string]any{"prompt": "  "}); err == nil {
		t.Error("Expected error updating to an empty prompt")
	}
	if err := a.UpdateFields(ctx, 42, map[string]any{"prompt": "x"}); !errors.Is(err, domain.ErrNoRecord) {
		t.Errorf("Expected ErrNoRecord, got %v", err)
	}
}

// AutoGen

func TestAutoGenValidateConfig(t *testing.T) {
	a := NewAutoGenAdapter(newMemStore())

	if err := a.ValidateConfig(domain.AgentConfig{}); err == nil {
		t.Error("Expected error without a system_message")
	}
	if err := a.ValidateConfig(domain.AgentConfig{Options: domain.JSONMap{"system_message": "you review code"}}); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestAutoGenBuildAndQuery(t *testing.T) {
	a := NewAutoGenAdapter(newMemStore())
	chat := &captureChat{}

	fields := domain.JSONMap{
		"system_message": "you review code",
		"tools":          map[string]any{"linter": "static analysis"},
	}
	instance, err := a.BuildInstance(context.Background(), &domain.Agent{ID: 1, Name: "reviewer"}, fields, chat)
	if err != nil {
		t.Fatalf("BuildInstance failed: %v", err)
	}
	out, err := a.RunQuery(context.Background(), instance, "review this")
	if err != nil {
		t.Fatalf("RunQuery failed: %v", err)
	}
	if out != "answer" {
		t.Errorf("Expected answer, got %q", out)
	}
	if !strings.Contains(chat.system, "reviewer") || !strings.Contains(chat.system, "you review code") {
		t.Errorf("System prompt missing name or message: %q", chat.system)
	}
	if !strings.Contains(chat.system, "linter") {
		t.Errorf("System prompt missing tools: %q", chat.system)
	}
}

func TestAutoGenMissingRecord(t *testing.T) {
	a := NewAutoGenAdapter(newMemStore())
	ctx := context.Background()

	if _, err := a.Fields(ctx, 42); !errors.Is(err, domain.ErrNoRecord) {
		t.Errorf("Expected ErrNoRecord from Fields, got %v", err)
	}
	if err := a.UpdateFields(ctx, 42, map[string]any{"system_message": "x"}); !errors.Is(err, domain.ErrNoRecord) {
		t.Errorf("Expected ErrNoRecord from UpdateFields, got %v", err)
	}
}

func TestAdapterNames(t *testing.T) {
	store := newMemStore()
	cases := []struct {
		name string
		got  string
	}{
		{"crewai", NewCrewAIAdapter(store).Name()},
		{"langchain", NewLangChainAdapter(store).Name()},
		{"agno", NewAgnoAdapter(store).Name()},
		{"langgraph", NewLangGraphAdapter(store).Name()},
		{"autogen", NewAutoGenAdapter(store).Name()},
	}
	for _, c := range cases {
		if c.got != c.name {
			t.Errorf("Expected adapter name %s, got %s", c.name, c.got)
		}
	}
}
