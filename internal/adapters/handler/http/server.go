package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"agentdash.server/internal/core/domain"
	"agentdash.server/internal/core/ports"
	"agentdash.server/internal/core/services"
)

type Server struct {
	router    *chi.Mux
	registry  *services.Registry
	versions  *services.VersionService
	llm       ports.LLMManager
	orphans   ports.OrphanTracker
	healthSvc *services.HealthService
	hub       *Hub
}

func NewServer(
	registry *services.Registry,
	versions *services.VersionService,
	llm ports.LLMManager,
	orphans ports.OrphanTracker,
	healthSvc *services.HealthService,
	hub *Hub,
) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		registry:  registry,
		versions:  versions,
		llm:       llm,
		orphans:   orphans,
		healthSvc: healthSvc,
		hub:       hub,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(MetricsMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Metrics endpoint
	s.router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		MetricsHandler().ServeHTTP(w, r)
	})

	// Kubernetes probes
	s.router.Get("/health/live", s.handleLiveness)
	s.router.Get("/health/ready", s.handleReadiness)

	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/health/detailed", s.handleDetailedHealth)
	s.router.Get("/api/ws", s.handleWS)

	s.router.Get("/api/frameworks", s.handleListFrameworks)
	s.router.Get("/api/providers", s.handleListProviders)
	s.router.Get("/api/orphans", s.handleListOrphans)

	s.router.Route("/api/agents", func(r chi.Router) {
		r.Post("/", s.handleCreateAgent)
		r.Get("/", s.handleListAgents)
		r.Get("/{id}", s.handleGetAgent)
		r.Put("/{id}", s.handleUpdateAgent)
		r.Delete("/{id}", s.handleDeleteAgent)
		r.Post("/{id}/start", s.handleStartAgent)
		r.Post("/{id}/stop", s.handleStopAgent)
		r.Post("/{id}/query", s.handleQueryAgent)
		r.Get("/{id}/status", s.handleAgentStatus)
		r.Get("/{id}/versions", s.handleAgentVersions)
		r.Post("/{id}/versions/{version}/restore", s.handleRestoreVersion)
	})
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Run(addr string) error {
	return http.ListenAndServe(addr, s.router)
}

// writeJSON is the single success serializer.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError maps classified domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrNoRecord):
		code = http.StatusConflict
	case errors.Is(err, domain.ErrNotRunning):
		code = http.StatusConflict
	case errors.Is(err, domain.ErrFrameworkUnavailable):
		code = http.StatusBadGateway
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// managerFor finds the manager owning an agent by asking each framework's
// cache-backed store in turn.
func (s *Server) managerFor(r *http.Request, id int) *services.LifecycleManager {
	if framework := r.URL.Query().Get("framework"); framework != "" {
		return s.registry.Get(framework)
	}
	for _, name := range s.registry.Names() {
		m := s.registry.Get(name)
		if m == nil {
			continue
		}
		if agent, err := m.Get(r.Context(), id); err == nil && agent.Framework == m.Framework() {
			return m
		}
	}
	return s.registry.Default()
}

func agentID(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}

// Agent handlers

type createAgentRequest struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Framework     string         `json:"framework"`
	Model         string         `json:"model"`
	ModelSettings domain.JSONMap `json:"model_settings"`
	Options       domain.JSONMap `json:"options"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	framework := req.Framework
	if framework == "" {
		framework = r.URL.Query().Get("framework")
	}
	var manager *services.LifecycleManager
	if framework != "" {
		manager = s.registry.Get(framework)
	} else {
		manager = s.registry.Default()
	}
	if manager == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown framework " + framework})
		return
	}

	id, err := manager.Create(r.Context(), domain.AgentConfig{
		Name:          req.Name,
		Description:   req.Description,
		Framework:     manager.Framework(),
		Model:         req.Model,
		ModelSettings: req.ModelSettings,
		Options:       req.Options,
	})
	if err != nil {
		RecordAgentOp(manager.Framework(), "create", "error")
		writeError(w, err)
		return
	}
	RecordAgentOp(manager.Framework(), "create", "ok")

	agent, err := manager.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	framework := r.URL.Query().Get("framework")

	var agents []*domain.Agent
	if framework != "" {
		manager := s.registry.Get(framework)
		if manager == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown framework " + framework})
			return
		}
		list, err := manager.All(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		agents = list
	} else {
		for _, name := range s.registry.Names() {
			manager := s.registry.Get(name)
			if manager == nil {
				continue
			}
			list, err := manager.All(r.Context())
			if err != nil {
				writeError(w, err)
				return
			}
			agents = append(agents, list...)
		}
	}

	if agents == nil {
		agents = []*domain.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, err := agentID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid agent id"})
		return
	}

	manager := s.managerFor(r, id)
	if manager == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no frameworks registered"})
		return
	}

	agent, err := manager.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	id, err := agentID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid agent id"})
		return
	}

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if len(patch) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty update"})
		return
	}

	manager := s.managerFor(r, id)
	if manager == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no frameworks registered"})
		return
	}

	if err := manager.Update(r.Context(), id, patch); err != nil {
		RecordAgentOp(manager.Framework(), "update", "error")
		writeError(w, err)
		return
	}
	RecordAgentOp(manager.Framework(), "update", "ok")

	agent, err := manager.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id, err := agentID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid agent id"})
		return
	}

	manager := s.managerFor(r, id)
	if manager == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no frameworks registered"})
		return
	}

	if err := manager.Delete(r.Context(), id); err != nil {
		RecordAgentOp(manager.Framework(), "delete", "error")
		writeError(w, err)
		return
	}
	RecordAgentOp(manager.Framework(), "delete", "ok")
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "agent_id": id})
}

func (s *Server) handleStartAgent(w http.ResponseWriter, r *http.Request) {
	id, err := agentID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid agent id"})
		return
	}

	manager := s.managerFor(r, id)
	if manager == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no frameworks registered"})
		return
	}

	if err := manager.Start(r.Context(), id); err != nil {
		RecordAgentOp(manager.Framework(), "start", "error")
		writeError(w, err)
		return
	}
	RecordAgentOp(manager.Framework(), "start", "ok")
	writeJSON(w, http.StatusOK, map[string]any{"status": "running", "agent_id": id})
}

func (s *Server) handleStopAgent(w http.ResponseWriter, r *http.Request) {
	id, err := agentID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid agent id"})
		return
	}

	manager := s.managerFor(r, id)
	if manager == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no frameworks registered"})
		return
	}

	if err := manager.Stop(r.Context(), id); err != nil {
		RecordAgentOp(manager.Framework(), "stop", "error")
		writeError(w, err)
		return
	}
	RecordAgentOp(manager.Framework(), "stop", "ok")
	writeJSON(w, http.StatusOK, map[string]any{"status": "stopped", "agent_id": id})
}

type queryRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleQueryAgent(w http.ResponseWriter, r *http.Request) {
	id, err := agentID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid agent id"})
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	manager := s.managerFor(r, id)
	if manager == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no frameworks registered"})
		return
	}

	// Failures are part of the response payload, not HTTP errors: the call
	// itself succeeded even when the query exhausted its retries.
	start := time.Now()
	outcome := manager.Query(r.Context(), id, req.Query)
	if outcome.Error != "" {
		RecordQuery(manager.Framework(), "error", outcome.Attempts, time.Since(start))
	} else {
		RecordQuery(manager.Framework(), "ok", outcome.Attempts, time.Since(start))
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := agentID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid agent id"})
		return
	}

	manager := s.managerFor(r, id)
	if manager == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no frameworks registered"})
		return
	}

	status, err := manager.Status(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Version handlers

func (s *Server) handleAgentVersions(w http.ResponseWriter, r *http.Request) {
	id, err := agentID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid agent id"})
		return
	}

	history, err := s.versions.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleRestoreVersion(w http.ResponseWriter, r *http.Request) {
	id, err := agentID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid agent id"})
		return
	}
	versionNumber, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid version number"})
		return
	}

	agent, err := s.versions.Restore(r.Context(), id, versionNumber)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// Discovery handlers

func (s *Server) handleListFrameworks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.llm.ListProviders())
}

func (s *Server) handleListOrphans(w http.ResponseWriter, r *http.Request) {
	if s.orphans == nil {
		writeJSON(w, http.StatusOK, map[string]any{"count": 0, "orphans": []any{}})
		return
	}

	var offset, limit int64 = 0, 50
	if o := r.URL.Query().Get("offset"); o != "" {
		if v, err := strconv.ParseInt(o, 10, 64); err == nil && v >= 0 {
			offset = v
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.ParseInt(l, 10, 64); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}

	orphans, err := s.orphans.List(r.Context(), offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	count, err := s.orphans.Count(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": count, "orphans": orphans})
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := s.healthSvc.SimpleHealthCheck(r.Context())
	w.WriteHeader(code)
	w.Write([]byte(status))
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	status, code := s.healthSvc.SimpleHealthCheck(r.Context())
	w.WriteHeader(code)
	w.Write([]byte(status))
}

func (s *Server) handleDetailedHealth(w http.ResponseWriter, r *http.Request) {
	report := s.healthSvc.CheckHealth(r.Context())

	statusCode := http.StatusOK
	if report.Status == services.HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, report)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ServeWs(s.hub, w, r)
}
