// Package events defines the lifecycle notifications emitted while executions are
// dispatched and processed.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every lifecycle event.
const Topic = "flowforge.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Dispatch events.
	ExecutionQueuedEvent EventType = "execution.queued"

	// Job lifecycle events, emitted by workers.
	JobActiveEvent    EventType = "job.active"
	JobCompletedEvent EventType = "job.completed"
	JobFailedEvent    EventType = "job.failed"
	JobStalledEvent   EventType = "job.stalled"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent stamps a new event of the given type.
func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

type ExecutionQueued struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	TriggeredBy string `json:"triggered_by"`
	TriggerID   string `json:"trigger_id,omitempty"`
}

func (e ExecutionQueued) GetType() EventType {
	return ExecutionQueuedEvent
}

type JobActive struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Attempt     int    `json:"attempt"`
}

func (e JobActive) GetType() EventType {
	return JobActiveEvent
}

type JobCompleted struct {
	BaseEvent

	ExecutionID    string `json:"execution_id"`
	Attempt        int    `json:"attempt"`
	StepsCompleted int    `json:"steps_completed"`
	DurationMs     int64  `json:"duration_ms"`
}

func (e JobCompleted) GetType() EventType {
	return JobCompletedEvent
}

// JobFailed is emitted for every failed attempt. Retrying tells whether the queue will
// run the job again.
type JobFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Attempt     int    `json:"attempt"`
	Error       string `json:"error"`
	Retrying    bool   `json:"retrying"`
}

func (e JobFailed) GetType() EventType {
	return JobFailedEvent
}

type JobStalled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Requeued    bool   `json:"requeued"`
}

func (e JobStalled) GetType() EventType {
	return JobStalledEvent
}
