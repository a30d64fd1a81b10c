package ports

import (
	"context"

	"agentdash.server/internal/core/domain"
)

// AgentRepository is the persistence gateway for agent records and version
// snapshots. Implementations own the transactional details; callers treat it
// as key-value-by-ID storage.
type AgentRepository interface {
	Create(ctx context.Context, agent *domain.Agent) error
	Get(ctx context.Context, id int) (*domain.Agent, error)
	Update(ctx context.Context, id int, fields map[string]any) error
	Delete(ctx context.Context, id int) error
	List(ctx context.Context, framework string) ([]*domain.Agent, error)
	UpdateStatus(ctx context.Context, id int, status domain.AgentStatus, errMsg string) error

	CreateVersion(ctx context.Context, version *domain.AgentVersion) error
	Versions(ctx context.Context, agentID int) ([]*domain.AgentVersion, error)
	Version(ctx context.Context, agentID, number int) (*domain.AgentVersion, error)
	RestoreVersion(ctx context.Context, agentID int, version *domain.AgentVersion) error
}

// CrewAIStore persists the crewai-specific sub-records.
type CrewAIStore interface {
	CreateCrewAI(ctx context.Context, rec *domain.CrewAIAgent) error
	GetCrewAI(ctx context.Context, agentID int) (*domain.CrewAIAgent, error)
	SaveCrewAI(ctx context.Context, rec *domain.CrewAIAgent) error
}

// LangChainStore persists the langchain-specific sub-records.
type LangChainStore interface {
	CreateLangChain(ctx context.Context, rec *domain.LangChainAgent) error
	GetLangChain(ctx context.Context, agentID int) (*domain.LangChainAgent, error)
	SaveLangChain(ctx context.Context, rec *domain.LangChainAgent) error
}

// AgnoStore persists the agno-specific sub-records.
type AgnoStore interface {
	CreateAgno(ctx context.Context, rec *domain.AgnoAgent) error
	GetAgno(ctx context.Context, agentID int) (*domain.AgnoAgent, error)
	SaveAgno(ctx context.Context, rec *domain.AgnoAgent) error
}

// LangGraphStore persists the langgraph-specific sub-records.
type LangGraphStore interface {
	CreateLangGraph(ctx context.Context, rec *domain.LangGraphAgent) error
	GetLangGraph(ctx context.Context, agentID int) (*domain.LangGraphAgent, error)
	SaveLangGraph(ctx context.Context, rec *domain.LangGraphAgent) error
}

// AutoGenStore persists the autogen-specific sub-records.
type AutoGenStore interface {
	CreateAutoGen(ctx context.Context, rec *domain.AutoGenAgent) error
	GetAutoGen(ctx context.Context, agentID int) (*domain.AutoGenAgent, error)
	SaveAutoGen(ctx context.Context, rec *domain.AutoGenAgent) error
}

// ChatModel is a live, chat-capable LLM handle.
type ChatModel interface {
	Chat(ctx context.Context, system, prompt string) (string, error)
}

// LLMManager resolves provider+model to a chat handle. A nil handle with a
// nil error never happens; callers abort start on any error.
type LLMManager interface {
	ChatModel(provider, model string, temperature float64, maxTokens int) (ChatModel, error)
	ListProviders() []ProviderInfo
}

// ProviderInfo describes one registered LLM provider for discovery.
type ProviderInfo struct {
	Name      string   `json:"name"`
	Models    []string `json:"models"`
	Available bool     `json:"available"`
}

// FrameworkInstance is an opaque live agent instance owned by an adapter.
type FrameworkInstance any

// FrameworkAdapter converts declarative agent configuration into a live,
// queryable instance for one framework and bridges the framework-specific
// sub-record. RunQuery does no retrying; the lifecycle manager owns that.
type FrameworkAdapter interface {
	// Name is the stable framework identifier, used as the registry key
	// and persisted on every agent record.
	Name() string

	// Features lists framework capabilities for discovery.
	Features() []string

	// ValidateConfig checks framework-specific required fields. It returns
	// a descriptive error and never panics.
	ValidateConfig(cfg domain.AgentConfig) error

	// BuildInstance constructs the live instance. Pure construction: it
	// must not mutate cfg.
	BuildInstance(ctx context.Context, agent *domain.Agent, fields domain.JSONMap, llm ChatModel) (FrameworkInstance, error)

	// RunQuery executes one query against a live instance, blocking until
	// the framework responds. Errors propagate to the caller.
	RunQuery(ctx context.Context, instance FrameworkInstance, query string) (string, error)

	// Cleanup releases framework-held resources. Safe on nil or already
	// cleaned-up instances.
	Cleanup(instance FrameworkInstance)

	// CreateRecord writes the framework-specific sub-record for a new agent.
	CreateRecord(ctx context.Context, agentID int, cfg domain.AgentConfig) error

	// Fields reads the framework-specific fields for an agent.
	Fields(ctx context.Context, agentID int) (domain.JSONMap, error)

	// UpdateFields merges and persists framework-specific fields. It fails
	// with domain.ErrNoRecord when the agent has no sub-record yet.
	UpdateFields(ctx context.Context, agentID int, patch map[string]any) error
}

// EventBus publishes agent lifecycle events for dashboard fan-out.
type EventBus interface {
	Publish(ctx context.Context, event domain.AgentEvent) error
	Subscribe(ctx context.Context) (<-chan domain.AgentEvent, error)
}

// OrphanTracker records query tasks abandoned by a timed-out waiter.
type OrphanTracker interface {
	Add(ctx context.Context, task domain.OrphanTask) error
	Remove(ctx context.Context, taskID string) error
	List(ctx context.Context, offset, limit int64) ([]*domain.OrphanTask, error)
	Count(ctx context.Context) (int64, error)
}
