package plan_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/autotask/internal/llm"
	"github.com/slok/autotask/internal/llm/llmmock"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/plan"
)

func TestLLMProposerPropose(t *testing.T) {
	tests := map[string]struct {
		mock     func(m *llmmock.MockClient)
		expSteps []plan.ProposedStep
		expErr   bool
	}{
		"A valid answer should be parsed into steps.": {
			mock: func(m *llmmock.MockClient) {
				m.On("Complete", mock.Anything, mock.Anything).Once().Return("```json\n"+`{"steps": [
					{"name": "load", "action": "read_data", "params": {"source": "orders", "limit": 50}, "risk": "low"},
					{"name": "pick", "action": "ASK_DECISION", "decision": {"question": "Which?", "options": [{"id": "a", "label": "A"}, {"id": "b", "label": "B"}], "timeout": "2h", "fallback": "a"}},
					{"name": "mail", "action": "send_email", "params": {"to": ["a@example.com", "b@example.com"], "subject": "hi"}, "retryable": false}
				]}`+"\n```", nil)
			},
			expSteps: []plan.ProposedStep{
				{Name: "load", Action: model.ActionReadData, Params: map[string]string{"source": "orders", "limit": "50"}, Risk: model.RiskLevelLow},
				{Name: "pick", Action: model.ActionAskDecision, Params: map[string]string{}, Decision: &model.DecisionSpec{
					Question: "Which?",
					Options:  []model.DecisionOption{{ID: "a", Label: "A"}, {ID: "b", Label: "B"}},
					Timeout:  2 * time.Hour,
					Fallback: "a",
				}},
				{Name: "mail", Action: model.ActionSendEmail, Params: map[string]string{"to": `["a@example.com","b@example.com"]`, "subject": "hi"}, Retryable: new(bool)},
			},
		},

		"A model error should fail.": {
			mock: func(m *llmmock.MockClient) {
				m.On("Complete", mock.Anything, mock.Anything).Once().Return("", llm.ErrUnavailable)
			},
			expErr: true,
		},

		"An answer without JSON should fail.": {
			mock: func(m *llmmock.MockClient) {
				m.On("Complete", mock.Anything, mock.Anything).Once().Return("I can't help with that", nil)
			},
			expErr: true,
		},

		"An invalid risk should fail.": {
			mock: func(m *llmmock.MockClient) {
				m.On("Complete", mock.Anything, mock.Anything).Once().Return(`{"steps": [{"action": "read_data", "risk": "scary"}]}`, nil)
			},
			expErr: true,
		},

		"An invalid decision timeout should fail.": {
			mock: func(m *llmmock.MockClient) {
				m.On("Complete", mock.Anything, mock.Anything).Once().Return(`{"steps": [{"action": "ask_decision", "decision": {"question": "q", "timeout": "later"}}]}`, nil)
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			m := llmmock.NewMockClient(t)
			test.mock(m)

			p, err := plan.NewLLMProposer(plan.LLMProposerConfig{Model: m})
			require.NoError(err)

			got, err := p.Propose(context.TODO(), plan.ProposeRequest{
				Classification: classification(model.IntentTypeAction, "email the orders", map[string]string{"recipient": "a@example.com"}),
			})
			if test.expErr {
				assert.Error(err)
				return
			}
			require.NoError(err)
			assert.Equal(test.expSteps, got)
		})
	}
}

func TestLLMProposerPrompt(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	var gotReq llm.Request
	m := llm.ClientFunc(func(ctx context.Context, req llm.Request) (string, error) {
		gotReq = req
		return `{"steps": []}`, nil
	})
	p, err := plan.NewLLMProposer(plan.LLMProposerConfig{Model: m})
	require.NoError(err)

	_, err = p.Propose(context.TODO(), plan.ProposeRequest{
		Classification: classification(model.IntentTypeMonitor, "watch stock", map[string]string{"condition": "stock < 5"}),
		Context:        map[string]string{"tenant": "acme"},
	})
	require.NoError(err)

	require.Len(gotReq.Messages, 2)
	assert.True(gotReq.JSON)
	assert.Contains(gotReq.Messages[0].Content, "transfer_funds (critical)")
	assert.Contains(gotReq.Messages[1].Content, "INTENT TYPE: MONITOR")
	assert.Contains(gotReq.Messages[1].Content, "- condition: stock < 5")
	assert.Contains(gotReq.Messages[1].Content, "- tenant: acme")
}

func TestNewLLMProposer(t *testing.T) {
	_, err := plan.NewLLMProposer(plan.LLMProposerConfig{})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, model.ErrCompilation))
}
