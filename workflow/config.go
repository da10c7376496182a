package workflow

import "encoding/json"

// ActionConfig is the closed set of step action payloads. A step's JSON
// config parses into exactly one of these or into nil; nothing else runs.
type ActionConfig interface {
	isActionConfig()
}

type SendEmailConfig struct {
	TemplateName string `json:"template_name"`
	Audience     string `json:"audience"`
}

type CreateTaskConfig struct {
	Title             string  `json:"title"`
	Description       *string `json:"description,omitempty"`
	DueDateOffsetDays *int    `json:"due_date_offset_days,omitempty"`
}

type UpdateFieldConfig struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

type WaitForEventConfig struct {
	EventType string `json:"event_type"`
}

func (SendEmailConfig) isActionConfig()    {}
func (CreateTaskConfig) isActionConfig()   {}
func (UpdateFieldConfig) isActionConfig()  {}
func (WaitForEventConfig) isActionConfig() {}

// ParseActionConfig validates a step's raw JSON config against its declared
// action type. Malformed or incomplete payloads yield nil rather than a
// partially-populated config.
func ParseActionConfig(actionType ActionType, raw json.RawMessage) ActionConfig {
	if len(raw) == 0 {
		return nil
	}

	switch actionType {
	case ActionSendEmail:
		var c SendEmailConfig
		if json.Unmarshal(raw, &c) != nil || c.TemplateName == "" || c.Audience == "" {
			return nil
		}
		return c
	case ActionCreateTask:
		var c CreateTaskConfig
		if json.Unmarshal(raw, &c) != nil || c.Title == "" {
			return nil
		}
		return c
	case ActionUpdateField:
		var probe map[string]json.RawMessage
		if json.Unmarshal(raw, &probe) != nil {
			return nil
		}
		// "value" must be present, though it may be JSON null.
		if _, ok := probe["value"]; !ok {
			return nil
		}
		var c UpdateFieldConfig
		if json.Unmarshal(raw, &c) != nil || c.Field == "" {
			return nil
		}
		return c
	case ActionWaitForEvent:
		var c WaitForEventConfig
		if json.Unmarshal(raw, &c) != nil || c.EventType == "" {
			return nil
		}
		return c
	default:
		return nil
	}
}
