package model

import (
	"fmt"
	"strings"
	"time"
)

// IntentType is the classified purpose of a user request.
type IntentType string

const (
	IntentTypeAppCreate IntentType = "APP_CREATE"
	IntentTypeTodo      IntentType = "TODO"
	IntentTypeMonitor   IntentType = "MONITOR"
	IntentTypeAction    IntentType = "ACTION"
	IntentTypeSchedule  IntentType = "SCHEDULE"
	IntentTypeGoal      IntentType = "GOAL"
	IntentTypeTool      IntentType = "TOOL"
	IntentTypeUnknown   IntentType = "UNKNOWN"
)

// IntentTypes is the closed intent taxonomy.
var IntentTypes = []IntentType{
	IntentTypeAppCreate,
	IntentTypeTodo,
	IntentTypeMonitor,
	IntentTypeAction,
	IntentTypeSchedule,
	IntentTypeGoal,
	IntentTypeTool,
	IntentTypeUnknown,
}

// ParseIntentType parses an intent type in a lenient way ("app-create", "appcreate", "App Create").
func ParseIntentType(s string) (IntentType, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	if norm == "APPCREATE" || norm == "APP" {
		norm = string(IntentTypeAppCreate)
	}

	for _, it := range IntentTypes {
		if string(it) == norm {
			return it, nil
		}
	}

	return IntentTypeUnknown, fmt.Errorf("unknown intent type %q: %w", s, ErrNotValid)
}

// IntentAlternative is a secondary interpretation of the intent.
type IntentAlternative struct {
	Type       IntentType
	Confidence float64
}

// IntentClassification is the immutable record of one classification.
// Only the feedback fields can be set after creation.
type IntentClassification struct {
	ID                    string
	SessionID             string
	OriginalText          string
	IntentType            IntentType
	Confidence            float64
	Entities              map[string]string
	SuggestedName         string
	Alternatives          []IntentAlternative
	RequiresClarification bool
	ClarificationQuestion string
	CreatedAt             time.Time

	// Calibration feedback.
	WasCorrect    *bool
	CorrectedType *IntentType
}

// Automatable returns true when the classification can be compiled into a plan.
func (c IntentClassification) Automatable() bool {
	return c.IntentType != IntentTypeUnknown && c.IntentType != ""
}
