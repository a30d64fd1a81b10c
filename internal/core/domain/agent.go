package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type AgentStatus string

const (
	AgentStatusStopped AgentStatus = "stopped"
	AgentStatusRunning AgentStatus = "running"
	AgentStatusError   AgentStatus = "error"
)

// JSONMap is a free-form JSON object stored in a jsonb column.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", value)
	}
	if len(data) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(data, m)
}

// Agent is the persisted configuration of a framework-backed agent.
// Runtime state (live instance, recent results) lives in the lifecycle
// manager's cache, never in the database.
type Agent struct {
	ID            int         `json:"id" gorm:"primaryKey"`
	Name          string      `json:"name" gorm:"not null"`
	Description   string      `json:"description"`
	Framework     string      `json:"framework" gorm:"index"`
	Model         string      `json:"model"` // optionally "provider:model"
	ModelSettings JSONMap     `json:"model_settings" gorm:"type:jsonb"`
	Status        AgentStatus `json:"status" gorm:"default:stopped"`
	Error         string      `json:"error,omitempty"`
	Version       int         `json:"version" gorm:"default:1"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

func (Agent) TableName() string {
	return "agents"
}

// SplitModel splits a "provider:model" string into its parts. The provider
// part is empty when the string carries no provider prefix.
func SplitModel(model string) (provider, name string) {
	if i := strings.Index(model, ":"); i >= 0 {
		return model[:i], model[i+1:]
	}
	return "", model
}

// Temperature reads the temperature tuning value, defaulting to 0.7.
func (a *Agent) Temperature() float64 {
	if v, ok := a.ModelSettings["temperature"]; ok {
		switch t := v.(type) {
		case float64:
			return t
		case int:
			return float64(t)
		}
	}
	return 0.7
}

// MaxTokens reads the max_tokens tuning value, 0 meaning unset.
func (a *Agent) MaxTokens() int {
	if v, ok := a.ModelSettings["max_tokens"]; ok {
		switch t := v.(type) {
		case float64:
			return int(t)
		case int:
			return t
		}
	}
	return 0
}

// AgentConfig is the declarative configuration callers supply on create.
// Options carries the framework-specific fields (role/backstory/task for
// crewai, agent_type/tools for langchain, and so on).
type AgentConfig struct {
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Framework     string  `json:"framework"`
	Model         string  `json:"model"`
	ModelSettings JSONMap `json:"model_settings"`
	Options       JSONMap `json:"options"`
}

// CrewAIAgent is the crewai-specific sub-record, one row per agent.
type CrewAIAgent struct {
	ID             int       `json:"id" gorm:"primaryKey"`
	AgentID        int       `json:"agent_id" gorm:"uniqueIndex;not null"`
	Agent          *Agent    `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Role           string    `json:"role"`
	Backstory      string    `json:"backstory"`
	Task           string    `json:"task"`
	ExpectedOutput string    `json:"expected_output"`
	MemoryEnabled  bool      `json:"memory_enabled"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (CrewAIAgent) TableName() string {
	return "crewai_agents"
}

// LangChainAgent is the langchain-specific sub-record.
type LangChainAgent struct {
	ID        int       `json:"id" gorm:"primaryKey"`
	AgentID   int       `json:"agent_id" gorm:"uniqueIndex;not null"`
	Agent     *Agent    `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	AgentType string    `json:"agent_type"`
	Tools     JSONMap   `json:"tools" gorm:"type:jsonb"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (LangChainAgent) TableName() string {
	return "langchain_agents"
}

// AgnoAgent is the agno-specific sub-record.
type AgnoAgent struct {
	ID           int       `json:"id" gorm:"primaryKey"`
	AgentID      int       `json:"agent_id" gorm:"uniqueIndex;not null"`
	Agent        *Agent    `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Instructions string    `json:"instructions"`
	Markdown     bool      `json:"markdown"`
	Tools        JSONMap   `json:"tools" gorm:"type:jsonb"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (AgnoAgent) TableName() string {
	return "agno_agents"
}

// LangGraphAgent is the langgraph-specific sub-record.
type LangGraphAgent struct {
	ID        int       `json:"id" gorm:"primaryKey"`
	AgentID   int       `json:"agent_id" gorm:"uniqueIndex;not null"`
	Agent     *Agent    `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Prompt    string    `json:"prompt"`
	Tools     JSONMap   `json:"tools" gorm:"type:jsonb"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (LangGraphAgent) TableName() string {
	return "langgraph_agents"
}

// AutoGenAgent is the autogen-specific sub-record.
type AutoGenAgent struct {
	ID            int       `json:"id" gorm:"primaryKey"`
	AgentID       int       `json:"agent_id" gorm:"uniqueIndex;not null"`
	Agent         *Agent    `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	SystemMessage string    `json:"system_message"`
	Tools         JSONMap   `json:"tools" gorm:"type:jsonb"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (AutoGenAgent) TableName() string {
	return "autogen_agents"
}
