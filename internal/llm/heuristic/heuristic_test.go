package heuristic_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/autotask/internal/llm"
	"github.com/slok/autotask/internal/llm/heuristic"
)

func TestClassify(t *testing.T) {
	tests := map[string]struct {
		text          string
		expIntent     string
		expConfidence float64
		expEntities   map[string]string
		expAlts       int
		expClarify    bool
	}{
		"App creation requests should be APP_CREATE.": {
			text:          "Build me a CRM for my dental clinic",
			expIntent:     "APP_CREATE",
			expConfidence: 0.75,
			expEntities:   map[string]string{},
		},
		"Reminders should be TODO.": {
			text:          "Remind me to call mom tomorrow at 6pm",
			expIntent:     "TODO",
			expConfidence: 0.70,
			expEntities:   map[string]string{"time": "6pm"},
		},
		"Recurring requests should be SCHEDULE with the time and frequency.": {
			text:          "Send the sales report to boss@example.com every day at 9:30 am",
			expIntent:     "SCHEDULE",
			expConfidence: 0.70,
			expEntities:   map[string]string{"recipient": "boss@example.com", "time": "9:30 am", "frequency": "every day"},
		},
		"Text matching several rules should return the rest as alternatives.": {
			text:          "Monitor the inventory and deploy when stock is low",
			expIntent:     "APP_CREATE",
			expConfidence: 0.75,
			expEntities:   map[string]string{},
			expAlts:       2,
		},
		"Watch requests should be MONITOR.": {
			text:          "Alert when https://status.example.com goes down",
			expIntent:     "MONITOR",
			expConfidence: 0.70,
			expEntities:   map[string]string{"url": "https://status.example.com"},
		},
		"Unmatched text should be UNKNOWN and ask for clarification.": {
			text:          "banana",
			expIntent:     "UNKNOWN",
			expConfidence: 0.3,
			expClarify:    true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			got := heuristic.Classify(test.text)
			assert.Equal(test.expIntent, got.IntentType)
			assert.Equal(test.expConfidence, got.Confidence)
			assert.Equal(test.expEntities, got.Entities)
			assert.Len(got.Alternatives, test.expAlts)
			assert.Equal(test.expClarify, got.RequiresClarification)
		})
	}
}

func TestClientComplete(t *testing.T) {
	c := heuristic.NewClient()
	out, err := c.Complete(context.Background(), llm.Request{Messages: []llm.Message{
		{Role: llm.RoleSystem, Content: "classify, monitor everything"},
		{Role: llm.RoleUser, Content: "Create app for inventory"},
	}})
	require.NoError(t, err)

	var ans heuristic.Answer
	require.NoError(t, json.Unmarshal([]byte(out), &ans))
	assert.Equal(t, "APP_CREATE", ans.IntentType)
	assert.Equal(t, "create-app-for-inventory", ans.SuggestedName)
}
