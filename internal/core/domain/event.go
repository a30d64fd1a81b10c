package domain

import "time"

type AgentEventType string

const (
	EventAgentCreated  AgentEventType = "agent_created"
	EventAgentStarted  AgentEventType = "agent_started"
	EventAgentStopped  AgentEventType = "agent_stopped"
	EventAgentUpdated  AgentEventType = "agent_updated"
	EventAgentDeleted  AgentEventType = "agent_deleted"
	EventAgentRestored AgentEventType = "agent_restored"
	EventAgentErrored  AgentEventType = "agent_error"
	EventQueryDone     AgentEventType = "query_completed"
	EventQueryFailed   AgentEventType = "query_failed"
)

// AgentEvent is published on every lifecycle transition and fanned out to
// dashboard clients over websocket and MQTT.
type AgentEvent struct {
	AgentID   int            `json:"agent_id"`
	Framework string         `json:"framework"`
	Type      AgentEventType `json:"type"`
	Detail    string         `json:"detail,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// OrphanTask records a query whose waiter timed out while the underlying
// framework call kept running. Tracked so operators can see leaked work;
// entries are removed if the task eventually completes.
type OrphanTask struct {
	TaskID      string    `json:"task_id"`
	AgentID     int       `json:"agent_id"`
	Framework   string    `json:"framework"`
	Query       string    `json:"query"`
	Reason      string    `json:"reason"`
	SubmittedAt time.Time `json:"submitted_at"`
	OrphanedAt  time.Time `json:"orphaned_at"`
}
