package model

import (
	"fmt"
	"sort"
)

// ActionType is the closed set of actions a plan step can perform.
type ActionType string

const (
	ActionReadData         ActionType = "read_data"
	ActionAskDecision      ActionType = "ask_decision"
	ActionNotifyUser       ActionType = "notify_user"
	ActionSetReminder      ActionType = "set_reminder"
	ActionCreateRecord     ActionType = "create_record"
	ActionUpdateRecord     ActionType = "update_record"
	ActionSendEmail        ActionType = "send_email"
	ActionSendMessage      ActionType = "send_message"
	ActionHTTPRequest      ActionType = "http_request"
	ActionScheduleJob      ActionType = "schedule_job"
	ActionMonitorCondition ActionType = "monitor_condition"
	ActionCreateApp        ActionType = "create_app"
	ActionCreateTool       ActionType = "create_tool"
	ActionRunScript        ActionType = "run_script"
	ActionDeleteRecord     ActionType = "delete_record"
	ActionBulkUpdate       ActionType = "bulk_update"
	ActionDeploy           ActionType = "deploy"
	ActionTransferFunds    ActionType = "transfer_funds"
)

// ActionSpec describes an action type: its default risk and the parameters it requires.
type ActionSpec struct {
	Type           ActionType
	Description    string
	Risk           RiskLevel
	RequiredParams []string
	// SideEffects is false for actions that only read or wait.
	SideEffects bool
}

var actionCatalog = map[ActionType]ActionSpec{
	ActionReadData:         {Description: "Read data from a source", Risk: RiskLevelLow, RequiredParams: []string{"source"}},
	ActionAskDecision:      {Description: "Ask the user to choose an option", Risk: RiskLevelLow},
	ActionNotifyUser:       {Description: "Send a notification to the user", Risk: RiskLevelLow, RequiredParams: []string{"message"}, SideEffects: true},
	ActionSetReminder:      {Description: "Set a reminder", Risk: RiskLevelLow, RequiredParams: []string{"message", "at"}, SideEffects: true},
	ActionCreateRecord:     {Description: "Create a record", Risk: RiskLevelMedium, RequiredParams: []string{"table"}, SideEffects: true},
	ActionUpdateRecord:     {Description: "Update a record", Risk: RiskLevelMedium, RequiredParams: []string{"table", "id"}, SideEffects: true},
	ActionSendEmail:        {Description: "Send an email", Risk: RiskLevelMedium, RequiredParams: []string{"to", "subject"}, SideEffects: true},
	ActionSendMessage:      {Description: "Send a message to a channel", Risk: RiskLevelMedium, RequiredParams: []string{"channel", "message"}, SideEffects: true},
	ActionHTTPRequest:      {Description: "Call an external HTTP endpoint", Risk: RiskLevelMedium, RequiredParams: []string{"url", "method"}, SideEffects: true},
	ActionScheduleJob:      {Description: "Schedule a recurring job", Risk: RiskLevelMedium, RequiredParams: []string{"cron", "job"}, SideEffects: true},
	ActionMonitorCondition: {Description: "Watch a condition", Risk: RiskLevelLow, RequiredParams: []string{"condition"}},
	ActionCreateApp:        {Description: "Create an application", Risk: RiskLevelMedium, RequiredParams: []string{"name"}, SideEffects: true},
	ActionCreateTool:       {Description: "Create a tool", Risk: RiskLevelMedium, RequiredParams: []string{"name"}, SideEffects: true},
	ActionRunScript:        {Description: "Run a script", Risk: RiskLevelHigh, RequiredParams: []string{"script"}, SideEffects: true},
	ActionDeleteRecord:     {Description: "Delete a record", Risk: RiskLevelHigh, RequiredParams: []string{"table", "id"}, SideEffects: true},
	ActionBulkUpdate:       {Description: "Update many records", Risk: RiskLevelHigh, RequiredParams: []string{"table"}, SideEffects: true},
	ActionDeploy:           {Description: "Deploy to an environment", Risk: RiskLevelCritical, RequiredParams: []string{"target"}, SideEffects: true},
	ActionTransferFunds:    {Description: "Transfer funds", Risk: RiskLevelCritical, RequiredParams: []string{"amount", "to"}, SideEffects: true},
}

// LookupAction returns the catalog entry of an action type.
func LookupAction(t ActionType) (ActionSpec, bool) {
	spec, ok := actionCatalog[t]
	if !ok {
		return ActionSpec{}, false
	}
	spec.Type = t
	return spec, true
}

// ActionTypes returns all the known action types sorted by name.
func ActionTypes() []ActionType {
	types := make([]ActionType, 0, len(actionCatalog))
	for t := range actionCatalog {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Action is a concrete invocation of a plan step, what gets evaluated by the safety
// engine and dispatched to the runtime.
type Action struct {
	TaskID    string
	PlanID    string
	StepIndex int
	Type      ActionType
	Params    map[string]string
	Risk      RiskLevel
	// Mode is the execution mode of the task, empty when the action is never gated.
	Mode ExecutionMode
	// Acknowledged is set when a granted approval already covers this step.
	Acknowledged bool
}

// Gated returns true when an evaluation of the action with the outcome and risk
// must wait for a human approval before the action is dispatched.
func (a Action) Gated(outcome SafetyOutcome, risk RiskLevel) bool {
	if a.Acknowledged || a.Mode == "" {
		return false
	}
	return outcome == SafetyOutcomeWarning || (outcome == SafetyOutcomeAllowed && a.Mode.Gates(risk))
}

// IdempotencyKey identifies a step dispatch across retries and restarts.
func (a Action) IdempotencyKey() string {
	return fmt.Sprintf("%s/%d", a.TaskID, a.StepIndex)
}

// ActionFromStep returns the action of a plan step.
func ActionFromStep(taskID string, plan ExecutionPlan, step Step) Action {
	return Action{
		TaskID:    taskID,
		PlanID:    plan.ID,
		StepIndex: step.Index,
		Type:      step.Action,
		Params:    step.Params,
		Risk:      step.Risk,
	}
}
