package domain

import "time"

// AgentVersion is an immutable snapshot of an agent's full configuration,
// base fields plus the framework-specific fields flattened into Fields.
// A snapshot is written before every update and before every restore, so
// the pre-restore state is preserved too. Rows are never mutated and are
// cascade-deleted with their agent.
type AgentVersion struct {
	ID            int       `json:"id" gorm:"primaryKey"`
	AgentID       int       `json:"agent_id" gorm:"index;not null"`
	Agent         *Agent    `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	VersionNumber int       `json:"version_number" gorm:"not null"`
	Name          string    `json:"name" gorm:"not null"`
	Description   string    `json:"description"`
	Framework     string    `json:"framework"`
	Model         string    `json:"model"`
	ModelSettings JSONMap   `json:"model_settings" gorm:"type:jsonb"`
	Fields        JSONMap   `json:"fields" gorm:"type:jsonb"`
	CreatedAt     time.Time `json:"created_at"`
}

func (AgentVersion) TableName() string {
	return "agent_versions"
}

// SnapshotAgent captures an agent plus its framework fields at its current
// version number.
func SnapshotAgent(a *Agent, fields JSONMap) *AgentVersion {
	settings := JSONMap{}
	for k, v := range a.ModelSettings {
		settings[k] = v
	}
	snap := JSONMap{}
	for k, v := range fields {
		snap[k] = v
	}
	return &AgentVersion{
		AgentID:       a.ID,
		VersionNumber: a.Version,
		Name:          a.Name,
		Description:   a.Description,
		Framework:     a.Framework,
		Model:         a.Model,
		ModelSettings: settings,
		Fields:        snap,
	}
}
