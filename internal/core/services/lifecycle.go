package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"agentdash.server/internal/core/circuitbreaker"
	"agentdash.server/internal/core/domain"
	"agentdash.server/internal/core/logger"
	"agentdash.server/internal/core/pool"
	"agentdash.server/internal/core/ports"
	"agentdash.server/internal/core/tracing"
)

// LifecycleConfig tunes query execution for one manager.
type LifecycleConfig struct {
	QueryTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	ResultCap    int
}

func (c LifecycleConfig) withDefaults() LifecycleConfig {
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 60 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.ResultCap <= 0 {
		c.ResultCap = domain.DefaultResultCap
	}
	return c
}

// QueryOutcome is the structured result of a query call. Exactly one of
// Response or Error is meaningful; errors are payloads, never panics.
type QueryOutcome struct {
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
	Attempts int    `json:"attempts"`
}

// StatusInfo is the runtime view of one agent.
type StatusInfo struct {
	Status  domain.AgentStatus   `json:"status"`
	Results []domain.QueryResult `json:"results"`
	Error   string               `json:"error,omitempty"`
}

// agentState is one entry in the runtime cache. The persisted agent record
// is the source of truth; this is a write-through view of it plus the
// runtime-only fields that are never persisted.
type agentState struct {
	agent    *domain.Agent
	instance ports.FrameworkInstance
	status   domain.AgentStatus
	errMsg   string
	results  *domain.ResultRing
}

// LifecycleManager orchestrates create/start/stop/query/update/delete for
// one framework's agents. It is the error boundary for everything below it:
// adapter and repository failures come back as classified errors or error
// payloads, never as panics.
type LifecycleManager struct {
	adapter ports.FrameworkAdapter
	repo    ports.AgentRepository
	llm     ports.LLMManager
	pool    *pool.Pool
	breaker *circuitbreaker.CircuitBreaker
	events  ports.EventBus      // optional
	orphans ports.OrphanTracker // optional
	cfg     LifecycleConfig

	mu     sync.RWMutex
	agents map[int]*agentState

	taskMu   sync.Mutex
	inflight map[int]string // agent ID -> in-flight task ID
}

func NewLifecycleManager(
	adapter ports.FrameworkAdapter,
	repo ports.AgentRepository,
	llm ports.LLMManager,
	workers *pool.Pool,
	events ports.EventBus,
	orphans ports.OrphanTracker,
	cfg LifecycleConfig,
) *LifecycleManager {
	return &LifecycleManager{
		adapter:  adapter,
		repo:     repo,
		llm:      llm,
		pool:     workers,
		breaker:  circuitbreaker.New("framework-" + adapter.Name()),
		events:   events,
		orphans:  orphans,
		cfg:      cfg.withDefaults(),
		agents:   make(map[int]*agentState),
		inflight: make(map[int]string),
	}
}

// Framework returns the stable identifier of the managed framework.
func (m *LifecycleManager) Framework() string {
	return m.adapter.Name()
}

// Adapter exposes the underlying adapter for discovery endpoints.
func (m *LifecycleManager) Adapter() ports.FrameworkAdapter {
	return m.adapter
}

// Create validates the configuration, persists a new agent in stopped
// status, delegates the framework sub-record to the adapter and inserts the
// cache entry. No cache entry survives a failed durable write.
func (m *LifecycleManager) Create(ctx context.Context, cfg domain.AgentConfig) (int, error) {
	if cfg.Name == "" {
		return 0, fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if cfg.Model == "" {
		return 0, fmt.Errorf("%w: model is required", domain.ErrValidation)
	}
	cfg.Framework = m.adapter.Name()

	if err := m.adapter.ValidateConfig(cfg); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	agent := &domain.Agent{
		Name:          cfg.Name,
		Description:   cfg.Description,
		Framework:     cfg.Framework,
		Model:         cfg.Model,
		ModelSettings: cfg.ModelSettings,
		Status:        domain.AgentStatusStopped,
		Version:       1,
	}
	if agent.ModelSettings == nil {
		agent.ModelSettings = domain.JSONMap{}
	}

	if err := m.repo.Create(ctx, agent); err != nil {
		return 0, fmt.Errorf("%w: creating agent record: %v", domain.ErrPersistence, err)
	}

	if err := m.adapter.CreateRecord(ctx, agent.ID, cfg); err != nil {
		// Roll the base record back so no half-created agent remains.
		if delErr := m.repo.Delete(ctx, agent.ID); delErr != nil {
			logger.Error("failed to roll back agent record", "agent_id", agent.ID, "error", delErr)
		}
		return 0, fmt.Errorf("%w: creating %s record: %v", domain.ErrPersistence, m.adapter.Name(), err)
	}

	m.mu.Lock()
	m.agents[agent.ID] = &agentState{
		agent:   agent,
		status:  domain.AgentStatusStopped,
		results: domain.NewResultRing(m.cfg.ResultCap),
	}
	m.mu.Unlock()

	logger.Info("created agent", "agent_id", agent.ID, "name", agent.Name, "framework", agent.Framework)
	m.publish(ctx, agent.ID, domain.EventAgentCreated, agent.Name)
	return agent.ID, nil
}

// Start resolves the LLM handle, builds the framework instance and flips
// the agent to running. Already-running agents are a no-op success. Any
// failure in the sequence marks the agent errored, persists that status and
// returns the failure; nothing propagates past this boundary.
func (m *LifecycleManager) Start(ctx context.Context, id int) error {
	m.mu.RLock()
	st, ok := m.agents[id]
	var agent *domain.Agent
	var status domain.AgentStatus
	if ok {
		agent = st.agent
		status = st.status
	}
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: agent %d", domain.ErrNotFound, id)
	}
	if status == domain.AgentStatusRunning {
		logger.Debug("agent already running", "agent_id", id)
		return nil
	}

	instance, err := m.buildInstance(ctx, agent)
	if err != nil {
		m.markError(ctx, id, err.Error())
		return err
	}

	m.mu.Lock()
	st.instance = instance
	st.status = domain.AgentStatusRunning
	st.errMsg = ""
	m.mu.Unlock()

	if err := m.repo.UpdateStatus(ctx, id, domain.AgentStatusRunning, ""); err != nil {
		logger.Error("failed to persist running status", "agent_id", id, "error", err)
	}

	logger.Info("started agent", "agent_id", id, "framework", m.adapter.Name())
	m.publish(ctx, id, domain.EventAgentStarted, "")
	return nil
}

func (m *LifecycleManager) buildInstance(ctx context.Context, agent *domain.Agent) (ports.FrameworkInstance, error) {
	provider, model := domain.SplitModel(agent.Model)

	llmHandle, err := m.llm.ChatModel(provider, model, agent.Temperature(), agent.MaxTokens())
	if err != nil {
		return nil, fmt.Errorf("%w: could not initialize LLM for model %q: %v", domain.ErrFrameworkUnavailable, agent.Model, err)
	}

	fields, err := m.adapter.Fields(ctx, agent.ID)
	if err != nil && !errors.Is(err, domain.ErrNoRecord) {
		return nil, fmt.Errorf("%w: loading %s fields: %v", domain.ErrFrameworkUnavailable, m.adapter.Name(), err)
	}

	instance, err := m.adapter.BuildInstance(ctx, agent, fields, llmHandle)
	if err != nil {
		return nil, fmt.Errorf("%w: building %s instance: %v", domain.ErrFrameworkUnavailable, m.adapter.Name(), err)
	}
	return instance, nil
}

func (m *LifecycleManager) markError(ctx context.Context, id int, msg string) {
	m.mu.Lock()
	if st, ok := m.agents[id]; ok {
		st.instance = nil
		st.status = domain.AgentStatusError
		st.errMsg = msg
	}
	m.mu.Unlock()

	if err := m.repo.UpdateStatus(ctx, id, domain.AgentStatusError, msg); err != nil {
		logger.Error("failed to persist error status", "agent_id", id, "error", err)
	}
	logger.Error("agent errored", "agent_id", id, "reason", msg)
	m.publish(ctx, id, domain.EventAgentErrored, msg)
}

// Stop discards the live instance, runs the adapter cleanup hook and
// persists the stopped status. Idempotent; only an unknown ID fails.
func (m *LifecycleManager) Stop(ctx context.Context, id int) error {
	m.mu.Lock()
	st, ok := m.agents[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: agent %d", domain.ErrNotFound, id)
	}
	instance := st.instance
	st.instance = nil
	st.status = domain.AgentStatusStopped
	st.errMsg = ""
	m.mu.Unlock()

	m.adapter.Cleanup(instance)

	if err := m.repo.UpdateStatus(ctx, id, domain.AgentStatusStopped, ""); err != nil {
		logger.Error("failed to persist stopped status", "agent_id", id, "error", err)
	}

	logger.Info("stopped agent", "agent_id", id)
	m.publish(ctx, id, domain.EventAgentStopped, "")
	return nil
}

// Query executes one query on the worker pool with bounded retries and a
// fixed backoff between attempts. Attempts are strictly sequential. The
// in-flight table entry is removed on every exit path.
func (m *LifecycleManager) Query(ctx context.Context, id int, query string) QueryOutcome {
	m.mu.RLock()
	st, ok := m.agents[id]
	var status domain.AgentStatus
	if ok {
		status = st.status
	}
	m.mu.RUnlock()

	if !ok {
		return QueryOutcome{Error: fmt.Sprintf("agent %d not found", id)}
	}
	if status != domain.AgentStatusRunning {
		return QueryOutcome{Error: fmt.Sprintf("agent %d not running, start it first", id)}
	}

	attempts := 0
	var lastErr error
	for attempts <= m.cfg.MaxRetries {
		attempts++
		response, err := m.runAttempt(ctx, id, query)
		if err == nil {
			m.mu.Lock()
			if st, ok := m.agents[id]; ok {
				st.results.Append(domain.QueryResult{
					Query:     query,
					Response:  response,
					Timestamp: time.Now(),
				})
			}
			m.mu.Unlock()

			m.publish(ctx, id, domain.EventQueryDone, "")
			return QueryOutcome{Response: response, Attempts: attempts}
		}

		lastErr = err
		logger.Warn("query attempt failed", "agent_id", id, "attempt", attempts, "error", err)
		if attempts <= m.cfg.MaxRetries {
			time.Sleep(m.cfg.RetryBackoff)
		}
	}

	logger.Error("query exhausted retries", "agent_id", id, "attempts", attempts, "error", lastErr)
	m.publish(ctx, id, domain.EventQueryFailed, lastErr.Error())
	return QueryOutcome{
		Error:    fmt.Sprintf("query failed after %d attempts: %v", attempts, lastErr),
		Attempts: attempts,
	}
}

// runAttempt submits a single execution to the worker pool and waits for it
// or the timeout, whichever comes first. A timed-out task is not cancelled;
// it is recorded as an orphan and removes its own record if it eventually
// completes.
func (m *LifecycleManager) runAttempt(ctx context.Context, id int, query string) (string, error) {
	taskID := uuid.NewString()

	m.taskMu.Lock()
	m.inflight[id] = taskID
	m.taskMu.Unlock()
	defer func() {
		m.taskMu.Lock()
		if m.inflight[id] == taskID {
			delete(m.inflight, id)
		}
		m.taskMu.Unlock()
	}()

	m.mu.RLock()
	var instance ports.FrameworkInstance
	if st, ok := m.agents[id]; ok {
		instance = st.instance
	}
	m.mu.RUnlock()
	if instance == nil {
		return "", fmt.Errorf("%w: no live instance for agent %d", domain.ErrNotRunning, id)
	}

	attemptCtx, span := tracing.StartSpan(ctx, "agent.query")
	span.SetAttributes(
		attribute.Int("agent.id", id),
		attribute.String("agent.framework", m.adapter.Name()),
	)
	defer span.End()

	submitted := time.Now()
	var orphaned atomic.Bool

	resCh, err := m.pool.Submit(attemptCtx, func(taskCtx context.Context) (string, error) {
		out, err := m.breaker.Execute(func() (string, error) {
			return m.adapter.RunQuery(taskCtx, instance, query)
		})
		if orphaned.Load() && m.orphans != nil {
			if remErr := m.orphans.Remove(context.Background(), taskID); remErr != nil {
				logger.Debug("failed to clear orphan record", "task_id", taskID, "error", remErr)
			}
		}
		return out, err
	})
	if err != nil {
		return "", fmt.Errorf("%w: submitting query: %v", domain.ErrExecution, err)
	}

	select {
	case res := <-resCh:
		if res.Err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrExecution, res.Err)
		}
		return res.Value, nil
	case <-time.After(m.cfg.QueryTimeout):
		orphaned.Store(true)
		if m.orphans != nil {
			if addErr := m.orphans.Add(context.Background(), domain.OrphanTask{
				TaskID:      taskID,
				AgentID:     id,
				Framework:   m.adapter.Name(),
				Query:       query,
				Reason:      fmt.Sprintf("waiter timed out after %s", m.cfg.QueryTimeout),
				SubmittedAt: submitted,
				OrphanedAt:  time.Now(),
			}); addErr != nil {
				logger.Error("failed to record orphaned query", "task_id", taskID, "error", addErr)
			}
		}
		return "", fmt.Errorf("%w: timed out after %s", domain.ErrExecution, m.cfg.QueryTimeout)
	}
}

// Update snapshots the current configuration, persists the merged base
// fields, delegates framework-specific fields to the adapter and refreshes
// the cache view. A running agent is stopped and restarted; a restart
// failure leaves it errored without failing the update. The framework
// fields are written before the base fields; if the base write fails they
// are put back from the pre-update state, so a failed update never leaves
// the agent half-changed.
func (m *LifecycleManager) Update(ctx context.Context, id int, patch map[string]any) error {
	m.mu.RLock()
	_, ok := m.agents[id]
	var wasRunning bool
	if ok {
		wasRunning = m.agents[id].status == domain.AgentStatusRunning
	}
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: agent %d", domain.ErrNotFound, id)
	}

	agent, err := m.repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: reading agent %d: %v", domain.ErrPersistence, id, err)
	}
	if agent == nil {
		return fmt.Errorf("%w: agent %d", domain.ErrNotFound, id)
	}

	// Snapshot the pre-update state before touching anything.
	fields, err := m.adapter.Fields(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNoRecord) {
		return fmt.Errorf("%w: reading %s fields: %v", domain.ErrPersistence, m.adapter.Name(), err)
	}
	if err := m.repo.CreateVersion(ctx, domain.SnapshotAgent(agent, fields)); err != nil {
		return fmt.Errorf("%w: creating version snapshot: %v", domain.ErrPersistence, err)
	}

	base, adapterPatch := splitPatch(patch)

	if len(adapterPatch) > 0 {
		if err := m.adapter.UpdateFields(ctx, id, adapterPatch); err != nil {
			if errors.Is(err, domain.ErrNoRecord) {
				return fmt.Errorf("%w: agent %d has no %s record", domain.ErrNoRecord, id, m.adapter.Name())
			}
			return fmt.Errorf("%w: updating %s fields: %v", domain.ErrPersistence, m.adapter.Name(), err)
		}
	}

	base["version"] = agent.Version + 1
	if err := m.repo.Update(ctx, id, base); err != nil {
		if len(adapterPatch) > 0 && len(fields) > 0 {
			if rbErr := m.adapter.UpdateFields(ctx, id, fields); rbErr != nil {
				logger.Error("failed to roll back framework fields", "agent_id", id, "error", rbErr)
			}
		}
		return fmt.Errorf("%w: updating agent %d: %v", domain.ErrPersistence, id, err)
	}

	if err := m.RefreshConfig(ctx, id); err != nil {
		logger.Error("failed to refresh cached config", "agent_id", id, "error", err)
	}

	logger.Info("updated agent", "agent_id", id, "version", agent.Version+1)
	m.publish(ctx, id, domain.EventAgentUpdated, "")

	if wasRunning {
		if err := m.Stop(ctx, id); err != nil {
			logger.Error("failed to stop agent for restart", "agent_id", id, "error", err)
		} else if err := m.Start(ctx, id); err != nil {
			// Restart failures surface through the start path: the agent is
			// already marked errored with the reason persisted.
			logger.Error("restart after update failed", "agent_id", id, "error", err)
		}
	}
	return nil
}

// splitPatch separates the common base fields from the framework-specific
// remainder of a partial configuration.
func splitPatch(patch map[string]any) (base map[string]any, rest map[string]any) {
	base = make(map[string]any)
	rest = make(map[string]any)
	for key, value := range patch {
		switch key {
		case "name", "description", "model":
			base[key] = value
		case "model_settings", "model_config":
			base["model_settings"] = value
		case "framework", "id", "status", "error", "version":
			// immutable through update
		default:
			rest[key] = value
		}
	}
	return base, rest
}

// RefreshConfig re-reads the persisted record into the cache. The cache is
// a read-through view, never the source of truth.
func (m *LifecycleManager) RefreshConfig(ctx context.Context, id int) error {
	agent, err := m.repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if agent == nil {
		return fmt.Errorf("%w: agent %d", domain.ErrNotFound, id)
	}

	m.mu.Lock()
	if st, ok := m.agents[id]; ok {
		st.agent = agent
	} else {
		m.agents[id] = &agentState{
			agent:   agent,
			status:  agent.Status,
			errMsg:  agent.Error,
			results: domain.NewResultRing(m.cfg.ResultCap),
		}
	}
	m.mu.Unlock()
	return nil
}

// Delete stops the agent if needed, removes the durable record (versions
// cascade) and drops the cache entry.
func (m *LifecycleManager) Delete(ctx context.Context, id int) error {
	m.mu.RLock()
	st, ok := m.agents[id]
	var running bool
	if ok {
		running = st.status == domain.AgentStatusRunning
	}
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: agent %d", domain.ErrNotFound, id)
	}

	if running {
		if err := m.Stop(ctx, id); err != nil {
			logger.Error("failed to stop agent before delete", "agent_id", id, "error", err)
		}
	}

	if err := m.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: deleting agent %d: %v", domain.ErrPersistence, id, err)
	}

	m.mu.Lock()
	delete(m.agents, id)
	m.mu.Unlock()

	logger.Info("deleted agent", "agent_id", id)
	m.publish(ctx, id, domain.EventAgentDeleted, "")
	return nil
}

// Status is a pure cache read.
func (m *LifecycleManager) Status(id int) (StatusInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.agents[id]
	if !ok {
		return StatusInfo{}, fmt.Errorf("%w: agent %d", domain.ErrNotFound, id)
	}
	return StatusInfo{
		Status:  st.status,
		Results: st.results.Items(),
		Error:   st.errMsg,
	}, nil
}

// Get returns the persisted record for one agent.
func (m *LifecycleManager) Get(ctx context.Context, id int) (*domain.Agent, error) {
	agent, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if agent == nil {
		return nil, fmt.Errorf("%w: agent %d", domain.ErrNotFound, id)
	}
	return agent, nil
}

// All lists this framework's agents from storage and reconciles the cache:
// records present in storage but missing from the cache are added with a
// nil instance. Entries deleted out-of-band are not evicted here; only an
// explicit Delete removes them.
func (m *LifecycleManager) All(ctx context.Context) ([]*domain.Agent, error) {
	agents, err := m.repo.List(ctx, m.adapter.Name())
	if err != nil {
		return nil, fmt.Errorf("%w: listing agents: %v", domain.ErrPersistence, err)
	}

	m.mu.Lock()
	for _, agent := range agents {
		if _, ok := m.agents[agent.ID]; !ok {
			m.agents[agent.ID] = &agentState{
				agent:   agent,
				status:  agent.Status,
				errMsg:  agent.Error,
				results: domain.NewResultRing(m.cfg.ResultCap),
			}
		}
	}
	m.mu.Unlock()

	return agents, nil
}

// Reload primes the cache from storage, typically at startup.
func (m *LifecycleManager) Reload(ctx context.Context) error {
	agents, err := m.All(ctx)
	if err != nil {
		return err
	}
	logger.Info("loaded agents from store", "framework", m.adapter.Name(), "count", len(agents))
	return nil
}

// InFlight reports whether a query is currently executing for the agent.
func (m *LifecycleManager) InFlight(id int) bool {
	m.taskMu.Lock()
	defer m.taskMu.Unlock()
	_, ok := m.inflight[id]
	return ok
}

func (m *LifecycleManager) publish(ctx context.Context, id int, typ domain.AgentEventType, detail string) {
	if m.events == nil {
		return
	}
	event := domain.AgentEvent{
		AgentID:   id,
		Framework: m.adapter.Name(),
		Type:      typ,
		Detail:    detail,
		Timestamp: time.Now(),
	}
	if err := m.events.Publish(ctx, event); err != nil {
		logger.Debug("failed to publish agent event", "agent_id", id, "type", typ, "error", err)
	}
}
