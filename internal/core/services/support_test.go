package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"agentdash.server/internal/core/domain"
	"agentdash.server/internal/core/ports"
)

// memRepo is an in-memory ports.AgentRepository for tests.
type memRepo struct {
	mu       sync.Mutex
	nextID   int
	agents   map[int]*domain.Agent
	versions []*domain.AgentVersion

	failCreate error
	failUpdate error
	failDelete error
}

func newMemRepo() *memRepo {
	return &memRepo{agents: make(map[int]*domain.Agent)}
}

func (r *memRepo) Create(ctx context.Context, agent *domain.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate != nil {
		return r.failCreate
	}
	r.nextID++
	agent.ID = r.nextID
	stored := *agent
	r.agents[agent.ID] = &stored
	return nil
}

func (r *memRepo) Get(ctx context.Context, id int) (*domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	agent, ok := r.agents[id]
	if !ok {
		return nil, nil
	}
	copied := *agent
	return &copied, nil
}

func (r *memRepo) Update(ctx context.Context, id int, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdate != nil {
		return r.failUpdate
	}
	agent, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("no row for agent %d", id)
	}
	for key, value := range fields {
		switch key {
		case "name":
			agent.Name = value.(string)
		case "description":
			agent.Description = value.(string)
		case "model":
			agent.Model = value.(string)
		case "model_settings":
			switch v := value.(type) {
			case domain.JSONMap:
				agent.ModelSettings = v
			case map[string]any:
				agent.ModelSettings = domain.JSONMap(v)
			}
		case "version":
			agent.Version = value.(int)
		}
	}
	return nil
}

func (r *memRepo) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failDelete != nil {
		return r.failDelete
	}
	delete(r.agents, id)
	kept := r.versions[:0]
	for _, v := range r.versions {
		if v.AgentID != id {
			kept = append(kept, v)
		}
	}
	r.versions = kept
	return nil
}

func (r *memRepo) List(ctx context.Context, framework string) ([]*domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Agent
	for _, agent := range r.agents {
		if framework == "" || agent.Framework == framework {
			copied := *agent
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) UpdateStatus(ctx context.Context, id int, status domain.AgentStatus, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	agent, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("no row for agent %d", id)
	}
	agent.Status = status
	agent.Error = errMsg
	return nil
}

func (r *memRepo) CreateVersion(ctx context.Context, version *domain.AgentVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	version.ID = len(r.versions) + 1
	r.versions = append(r.versions, version)
	return nil
}

func (r *memRepo) Versions(ctx context.Context, agentID int) ([]*domain.AgentVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.AgentVersion
	for _, v := range r.versions {
		if v.AgentID == agentID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber > out[j].VersionNumber })
	return out, nil
}

func (r *memRepo) Version(ctx context.Context, agentID, number int) (*domain.AgentVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.versions {
		if v.AgentID == agentID && v.VersionNumber == number {
			return v, nil
		}
	}
	return nil, nil
}

func (r *memRepo) RestoreVersion(ctx context.Context, agentID int, version *domain.AgentVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	agent, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("no row for agent %d", agentID)
	}
	agent.Name = version.Name
	agent.Description = version.Description
	agent.Model = version.Model
	agent.ModelSettings = version.ModelSettings
	agent.Version++
	return nil
}

// stubAdapter is a controllable ports.FrameworkAdapter.
type stubAdapter struct {
	name string

	validateErr  error
	buildErr     error
	recordErr    error
	updateErr    error
	runErr       error
	runResponse  string
	failAttempts int32 // first N RunQuery calls fail
	runFn        func(ctx context.Context, query string) (string, error)

	runCalls     atomic.Int32
	cleanupCalls atomic.Int32

	mu      sync.Mutex
	records map[int]domain.JSONMap
}

func newStubAdapter(name string) *stubAdapter {
	return &stubAdapter{
		name:        name,
		runResponse: "stub response",
		records:     make(map[int]domain.JSONMap),
	}
}

func (a *stubAdapter) Name() string       { return a.name }
func (a *stubAdapter) Features() []string { return []string{"stubbing"} }

func (a *stubAdapter) ValidateConfig(cfg domain.AgentConfig) error {
	return a.validateErr
}

type stubInstance struct {
	agentID int
}

func (a *stubAdapter) BuildInstance(ctx context.Context, agent *domain.Agent, fields domain.JSONMap, llm ports.ChatModel) (ports.FrameworkInstance, error) {
	if a.buildErr != nil {
		return nil, a.buildErr
	}
	return &stubInstance{agentID: agent.ID}, nil
}

func (a *stubAdapter) RunQuery(ctx context.Context, instance ports.FrameworkInstance, query string) (string, error) {
	call := a.runCalls.Add(1)
	if a.runFn != nil {
		return a.runFn(ctx, query)
	}
	if a.runErr != nil {
		return "", a.runErr
	}
	if call <= a.failAttempts {
		return "", fmt.Errorf("transient failure on call %d", call)
	}
	return a.runResponse, nil
}

func (a *stubAdapter) Cleanup(instance ports.FrameworkInstance) {
	a.cleanupCalls.Add(1)
}

func (a *stubAdapter) CreateRecord(ctx context.Context, agentID int, cfg domain.AgentConfig) error {
	if a.recordErr != nil {
		return a.recordErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	fields := domain.JSONMap{}
	for k, v := range cfg.Options {
		fields[k] = v
	}
	a.records[agentID] = fields
	return nil
}

func (a *stubAdapter) Fields(ctx context.Context, agentID int) (domain.JSONMap, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fields, ok := a.records[agentID]
	if !ok {
		return nil, domain.ErrNoRecord
	}
	out := domain.JSONMap{}
	for k, v := range fields {
		out[k] = v
	}
	return out, nil
}

func (a *stubAdapter) UpdateFields(ctx context.Context, agentID int, patch map[string]any) error {
	if a.updateErr != nil {
		return a.updateErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	fields, ok := a.records[agentID]
	if !ok {
		return domain.ErrNoRecord
	}
	for k, v := range patch {
		fields[k] = v
	}
	return nil
}

// stubLLM resolves every request to a no-op chat handle.
type stubLLM struct {
	resolveErr   error
	lastProvider string
	lastModel    string
}

type stubChat struct{}

func (stubChat) Chat(ctx context.Context, system, prompt string) (string, error) {
	return "chat: " + prompt, nil
}

func (l *stubLLM) ChatModel(provider, model string, temperature float64, maxTokens int) (ports.ChatModel, error) {
	l.lastProvider = provider
	l.lastModel = model
	if l.resolveErr != nil {
		return nil, l.resolveErr
	}
	return stubChat{}, nil
}

func (l *stubLLM) ListProviders() []ports.ProviderInfo {
	return []ports.ProviderInfo{{Name: "stub", Models: []string{"stub-1"}, Available: true}}
}

// memEvents collects published events in order.
type memEvents struct {
	mu     sync.Mutex
	events []domain.AgentEvent
}

func (b *memEvents) Publish(ctx context.Context, event domain.AgentEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *memEvents) Subscribe(ctx context.Context) (<-chan domain.AgentEvent, error) {
	ch := make(chan domain.AgentEvent)
	close(ch)
	return ch, nil
}

func (b *memEvents) types() []domain.AgentEventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.AgentEventType, len(b.events))
	for i, e := range b.events {
		out[i] = e.Type
	}
	return out
}

// memOrphans is an in-memory ports.OrphanTracker.
type memOrphans struct {
	mu    sync.Mutex
	tasks map[string]domain.OrphanTask
}

func newMemOrphans() *memOrphans {
	return &memOrphans{tasks: make(map[string]domain.OrphanTask)}
}

func (o *memOrphans) Add(ctx context.Context, task domain.OrphanTask) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tasks[task.TaskID] = task
	return nil
}

func (o *memOrphans) Remove(ctx context.Context, taskID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.tasks, taskID)
	return nil
}

func (o *memOrphans) List(ctx context.Context, offset, limit int64) ([]*domain.OrphanTask, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*domain.OrphanTask
	for _, task := range o.tasks {
		copied := task
		out = append(out, &copied)
	}
	return out, nil
}

func (o *memOrphans) Count(ctx context.Context) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return int64(len(o.tasks)), nil
}
