package workflow

import (
	"encoding/json"
	"time"

	"tcflow/deal"
)

type TriggerType string

const (
	TriggerInEscrow    TriggerType = "in_escrow"
	TriggerManual      TriggerType = "manual"
	TriggerDealCreated TriggerType = "deal_created"
)

type ActionType string

const (
	ActionSendEmail    ActionType = "send_email"
	ActionCreateTask   ActionType = "create_task"
	ActionUpdateField  ActionType = "update_field"
	ActionWaitForEvent ActionType = "wait_for_event"
)

type RunStatus string

const (
	RunActive    RunStatus = "active"
	RunCompleted RunStatus = "completed"
)

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
	StepError     StepStatus = "error"
)

// Anchors for relative scheduling.
const (
	RelativeToCoeDate            = "coe_date"
	RelativeToInspectionDeadline = "inspection_deadline"
	RelativeToDealCreated        = "deal_created"
)

// Deal event types accepted by the engine.
const (
	EventSetEmdReceived                   = "set-emd-received"
	EventSetInspectionDeadline            = "set-inspection-deadline"
	EventMarkInspectionContingencyRemoved = "mark-inspection-contingency-removed"
	EventSetCoeDate                       = "set-coe-date"
	EventStatusChanged                    = "status-changed"
)

// EventTypes lists every accepted deal event type, in the order the HTTP
// surface documents them.
var EventTypes = []string{
	EventSetEmdReceived,
	EventSetInspectionDeadline,
	EventMarkInspectionContingencyRemoved,
	EventSetCoeDate,
	EventStatusChanged,
}

type Event struct {
	DealID    string
	EventType string
	Data      map[string]any
}

type Definition struct {
	ID          string
	Name        string
	Description *string
	Side        deal.Side
	TriggerType TriggerType
	IsActive    bool
}

type Step struct {
	ID           string
	DefinitionID string
	StepOrder    int
	Name         string
	RelativeTo   *string
	OffsetDays   int
	ActionType   ActionType
	ActionConfig json.RawMessage
}

type Run struct {
	ID           string
	DealID       string
	DefinitionID string
	Status       RunStatus
	StartedAt    time.Time
}

type RunStep struct {
	ID           string
	RunID        string
	StepID       string
	ScheduledFor time.Time
	ExecutedAt   *time.Time
	Status       StepStatus
	ErrorMessage *string
}

// PendingStep pairs a pending run step with its step template, for
// event-driven rescheduling.
type PendingStep struct {
	RunStep RunStep
	Step    Step
}

// DueStep is a pending run step joined with its step template and owning
// deal, ready for execution.
type DueStep struct {
	RunStep RunStep
	Step    Step
	DealID  string
}
