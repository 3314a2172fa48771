// Package events defines the notifications published while projects run.
package events

import (
	"time"

	"github.com/dukex/dataflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Typed is implemented by every event.
type Typed interface {
	GetType() EventType
	GetProjectID() string
}

// Topic carries every dataflow event.
const Topic = "dataflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"
const ProjectIDMetadataKey = "project_id"

const (
	// Node results.
	NodeExecutionFinishedEvent EventType = "node.execution.finished"
	NodeExecutionFailedEvent   EventType = "node.execution.failed"

	// Run lifecycle.
	ProjectRunStartedEvent   EventType = "project.run.started"
	ProjectRunCompletedEvent EventType = "project.run.completed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	ProjectID string         `json:"project_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, projectID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		ProjectID: projectID,
		Metadata:  make(map[string]any),
	}
}

func (b BaseEvent) GetProjectID() string {
	return b.ProjectID
}

// NodeExecutionFinished is published when a node produced its outputs.
type NodeExecutionFinished struct {
	BaseEvent

	NodeID     string         `json:"node_id"`
	ModuleID   string         `json:"module_id"`
	Outputs    map[string]any `json:"outputs"`
	Pinned     bool           `json:"pinned,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

func (n NodeExecutionFinished) GetType() EventType {
	return NodeExecutionFinishedEvent
}

// NodeExecutionFailed is published when a node ends in error, including
// failures propagated from upstream.
type NodeExecutionFailed struct {
	BaseEvent

	NodeID     string           `json:"node_id"`
	ModuleID   string           `json:"module_id"`
	Kind       models.ErrorKind `json:"kind"`
	Error      string           `json:"error"`
	RaisedBy   string           `json:"raised_by"`
	DurationMs int64            `json:"duration_ms"`
}

func (n NodeExecutionFailed) GetType() EventType {
	return NodeExecutionFailedEvent
}

// ProjectRunStarted is published when a run has been planned.
type ProjectRunStarted struct {
	BaseEvent

	Scope  string     `json:"scope"`
	Target string     `json:"target,omitempty"`
	Waves  [][]string `json:"waves"`
}

func (p ProjectRunStarted) GetType() EventType {
	return ProjectRunStartedEvent
}

// ProjectRunCompleted is published when a run ends, successfully or not.
type ProjectRunCompleted struct {
	BaseEvent

	Scope     string `json:"scope"`
	Target    string `json:"target,omitempty"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

func (p ProjectRunCompleted) GetType() EventType {
	return ProjectRunCompletedEvent
}

// NodeResultEvent converts a final node result into its event. It returns
// nil for pending and running results.
func NodeResultEvent(projectID, moduleID string, result *models.ExecutionResult) Typed {
	switch result.Status {
	case models.NodeStatusSuccess:
		return &NodeExecutionFinished{
			BaseEvent:  NewBaseEvent(NodeExecutionFinishedEvent, projectID),
			NodeID:     result.NodeID,
			ModuleID:   moduleID,
			Outputs:    result.Outputs,
			Pinned:     result.Pinned,
			DurationMs: result.DurationMs,
		}
	case models.NodeStatusError:
		event := &NodeExecutionFailed{
			BaseEvent:  NewBaseEvent(NodeExecutionFailedEvent, projectID),
			NodeID:     result.NodeID,
			ModuleID:   moduleID,
			DurationMs: result.DurationMs,
		}

		if result.Error != nil {
			event.Kind = result.Error.Kind
			event.Error = result.Error.Message
			event.RaisedBy = result.Error.RaisedBy
		}

		return event
	default:
		return nil
	}
}
