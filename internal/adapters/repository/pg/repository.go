package pg

import (
	"context"
	"errors"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"agentdash.server/internal/core/domain"
)

// Repository is the gorm-backed persistence gateway. It implements
// ports.AgentRepository plus the per-framework sub-record stores.
type Repository struct {
	db *gorm.DB
}

func NewRepository(dsn string) (*Repository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&domain.Agent{},
		&domain.AgentVersion{},
		&domain.CrewAIAgent{},
		&domain.LangChainAgent{},
		&domain.AgnoAgent{},
		&domain.LangGraphAgent{},
		&domain.AutoGenAgent{},
	); err != nil {
		return nil, err
	}

	return &Repository{db: db}, nil
}

// NewWithDB wraps an existing gorm handle; used by tests.
func NewWithDB(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB returns the underlying gorm instance for health checks.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// Agent methods

func (r *Repository) Create(ctx context.Context, agent *domain.Agent) error {
	return r.db.WithContext(ctx).Create(agent).Error
}

func (r *Repository) Get(ctx context.Context, id int) (*domain.Agent, error) {
	var agent domain.Agent
	if err := r.db.WithContext(ctx).First(&agent, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &agent, nil
}

func (r *Repository) Update(ctx context.Context, id int, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&domain.Agent{}).Where("id = ?", id).Updates(fields).Error
}

func (r *Repository) Delete(ctx context.Context, id int) error {
	// Versions and sub-records cascade via their foreign keys.
	return r.db.WithContext(ctx).Delete(&domain.Agent{}, "id = ?", id).Error
}

func (r *Repository) List(ctx context.Context, framework string) ([]*domain.Agent, error) {
	var agents []*domain.Agent
	q := r.db.WithContext(ctx).Order("id asc")
	if framework != "" {
		q = q.Where("framework = ?", framework)
	}
	if err := q.Find(&agents).Error; err != nil {
		return nil, err
	}
	return agents, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id int, status domain.AgentStatus, errMsg string) error {
	return r.db.WithContext(ctx).Model(&domain.Agent{}).Where("id = ?", id).
		Updates(map[string]any{
			"status": status,
			"error":  errMsg,
		}).Error
}

// Version methods

func (r *Repository) CreateVersion(ctx context.Context, version *domain.AgentVersion) error {
	return r.db.WithContext(ctx).Create(version).Error
}

func (r *Repository) Versions(ctx context.Context, agentID int) ([]*domain.AgentVersion, error) {
	var versions []*domain.AgentVersion
	if err := r.db.WithContext(ctx).Where("agent_id = ?", agentID).
		Order("version_number desc").Find(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

func (r *Repository) Version(ctx context.Context, agentID, number int) (*domain.AgentVersion, error) {
	var version domain.AgentVersion
	if err := r.db.WithContext(ctx).Where("agent_id = ? AND version_number = ?", agentID, number).
		First(&version).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &version, nil
}

// RestoreVersion writes a snapshot's base fields back onto the agent row.
// The restore is a mutation in its own right, so the version counter moves
// forward rather than back.
func (r *Repository) RestoreVersion(ctx context.Context, agentID int, version *domain.AgentVersion) error {
	return r.db.WithContext(ctx).Model(&domain.Agent{}).Where("id = ?", agentID).
		Updates(map[string]any{
			"name":           version.Name,
			"description":    version.Description,
			"model":          version.Model,
			"model_settings": version.ModelSettings,
			"version":        gorm.Expr("version + 1"),
		}).Error
}

// CrewAI sub-records

func (r *Repository) CreateCrewAI(ctx context.Context, rec *domain.CrewAIAgent) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *Repository) GetCrewAI(ctx context.Context, agentID int) (*domain.CrewAIAgent, error) {
	var rec domain.CrewAIAgent
	if err := r.db.WithContext(ctx).First(&rec, "agent_id = ?", agentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) SaveCrewAI(ctx context.Context, rec *domain.CrewAIAgent) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

// LangChain sub-records

func (r *Repository) CreateLangChain(ctx context.Context, rec *domain.LangChainAgent) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *Repository) GetLangChain(ctx context.Context, agentID int) (*domain.LangChainAgent, error) {
	var rec domain.LangChainAgent
	if err := r.db.WithContext(ctx).First(&rec, "agent_id = ?", agentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) SaveLangChain(ctx context.Context, rec *domain.LangChainAgent) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

// Agno sub-records

func (r *Repository) CreateAgno(ctx context.Context, rec *domain.AgnoAgent) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *Repository) GetAgno(ctx context.Context, agentID int) (*domain.AgnoAgent, error) {
	var rec domain.AgnoAgent
	if err := r.db.WithContext(ctx).First(&rec, "agent_id = ?", agentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) SaveAgno(ctx context.Context, rec *domain.AgnoAgent) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

// LangGraph sub-records

func (r *Repository) CreateLangGraph(ctx context.Context, rec *domain.LangGraphAgent) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *Repository) GetLangGraph(ctx context.Context, agentID int) (*domain.LangGraphAgent, error) {
	var rec domain.LangGraphAgent
	if err := r.db.WithContext(ctx).First(&rec, "agent_id = ?", agentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) SaveLangGraph(ctx context.Context, rec *domain.LangGraphAgent) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

// AutoGen sub-records

func (r *Repository) CreateAutoGen(ctx context.Context, rec *domain.AutoGenAgent) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *Repository) GetAutoGen(ctx context.Context, agentID int) (*domain.AutoGenAgent, error) {
	var rec domain.AutoGenAgent
	if err := r.db.WithContext(ctx).First(&rec, "agent_id = ?", agentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) SaveAutoGen(ctx context.Context, rec *domain.AutoGenAgent) error {
	return r.db.WithContext(ctx).Save(rec).Error
}
