package intent_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/autotask/internal/intent"
	"github.com/slok/autotask/internal/llm"
	"github.com/slok/autotask/internal/llm/heuristic"
	"github.com/slok/autotask/internal/llm/llmmock"
	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/storage/memory"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestNewClassifier(t *testing.T) {
	repo, _ := memory.NewRepository(memory.RepositoryConfig{})

	tests := map[string]struct {
		cfg    intent.ClassifierConfig
		expErr bool
	}{
		"A valid config should not fail.": {
			cfg: intent.ClassifierConfig{Model: heuristic.NewClient(), Repository: repo},
		},
		"Missing model should fail.": {
			cfg:    intent.ClassifierConfig{Repository: repo},
			expErr: true,
		},
		"Missing repository should fail.": {
			cfg:    intent.ClassifierConfig{Model: heuristic.NewClient()},
			expErr: true,
		},
		"An out of range floor should fail.": {
			cfg:    intent.ClassifierConfig{Model: heuristic.NewClient(), Repository: repo, ConfidenceFloor: 1.5},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := intent.NewClassifier(test.cfg)
			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClassifierClassify(t *testing.T) {
	tests := map[string]struct {
		text      string
		mock      func(m *llmmock.MockClient)
		exp       model.IntentClassification
		expNoCall bool
	}{
		"A confident model answer should be used.": {
			text: "Remind me to call mom tomorrow",
			mock: func(m *llmmock.MockClient) {
				m.On("Complete", mock.Anything, mock.Anything).Once().Return(`{
					"intent_type": "TODO",
					"confidence": 0.92,
					"entities": {"who": "mom", "when": "tomorrow", "tags": ["family", "call"]},
					"suggested_name": "call-mom",
					"alternatives": [{"type": "SCHEDULE", "confidence": 0.1}, {"type": "TODO", "confidence": 0.5}, {"type": "GOAL", "confidence": 0.2}]
				}`, nil)
			},
			exp: model.IntentClassification{
				OriginalText:  "Remind me to call mom tomorrow",
				IntentType:    model.IntentTypeTodo,
				Confidence:    0.92,
				Entities:      map[string]string{"who": "mom", "when": "tomorrow", "tags": "family,call"},
				SuggestedName: "call-mom",
				Alternatives: []model.IntentAlternative{
					{Type: model.IntentTypeGoal, Confidence: 0.2},
					{Type: model.IntentTypeSchedule, Confidence: 0.1},
				},
			},
		},
		"Flat entity fields and fenced answers should be accepted.": {
			text: "alert me when the server is down",
			mock: func(m *llmmock.MockClient) {
				m.On("Complete", mock.Anything, mock.Anything).Once().Return("```json\n"+`{"intent_type": "monitor", "confidence": 0.7, "condition": "server down", "recipient": null}`+"\n```", nil)
			},
			exp: model.IntentClassification{
				OriginalText: "alert me when the server is down",
				IntentType:   model.IntentTypeMonitor,
				Confidence:   0.7,
				Entities:     map[string]string{"condition": "server down"},
			},
		},
		"A confidence below the floor should be UNKNOWN with zero confidence.": {
			text: "do the thing",
			mock: func(m *llmmock.MockClient) {
				m.On("Complete", mock.Anything, mock.Anything).Once().Return(`{"intent_type": "ACTION", "confidence": 0.39}`, nil)
			},
			exp: model.IntentClassification{
				OriginalText:          "do the thing",
				IntentType:            model.IntentTypeUnknown,
				Confidence:            0,
				Entities:              map[string]string{},
				RequiresClarification: true,
				ClarificationQuestion: "Could you please clarify what you'd like me to do?",
			},
		},
		"A model failure should fail closed to UNKNOWN.": {
			text: "deploy the app",
			mock: func(m *llmmock.MockClient) {
				m.On("Complete", mock.Anything, mock.Anything).Once().Return("", llm.ErrUnavailable)
			},
			exp: model.IntentClassification{
				OriginalText:          "deploy the app",
				IntentType:            model.IntentTypeUnknown,
				Entities:              map[string]string{},
				RequiresClarification: true,
				ClarificationQuestion: "Could you please clarify what you'd like me to do?",
			},
		},
		"An unparsable answer should fail closed to UNKNOWN.": {
			text: "deploy the app",
			mock: func(m *llmmock.MockClient) {
				m.On("Complete", mock.Anything, mock.Anything).Once().Return("I think it's an ACTION", nil)
			},
			exp: model.IntentClassification{
				OriginalText:          "deploy the app",
				IntentType:            model.IntentTypeUnknown,
				Entities:              map[string]string{},
				RequiresClarification: true,
				ClarificationQuestion: "Could you please clarify what you'd like me to do?",
			},
		},
		"An unknown intent type should be UNKNOWN and keep the model question.": {
			text: "hmm",
			mock: func(m *llmmock.MockClient) {
				m.On("Complete", mock.Anything, mock.Anything).Once().Return(`{"intent_type": "UNKNOWN", "confidence": 0.9, "clarification_question": "What should I do?"}`, nil)
			},
			exp: model.IntentClassification{
				OriginalText:          "hmm",
				IntentType:            model.IntentTypeUnknown,
				Entities:              map[string]string{},
				RequiresClarification: true,
				ClarificationQuestion: "What should I do?",
			},
		},
		"Empty text should not call the model.": {
			text:      "   ",
			mock:      func(m *llmmock.MockClient) {},
			expNoCall: true,
			exp: model.IntentClassification{
				OriginalText:          "   ",
				IntentType:            model.IntentTypeUnknown,
				Entities:              map[string]string{},
				RequiresClarification: true,
				ClarificationQuestion: "Could you please clarify what you'd like me to do?",
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			m := &llmmock.MockClient{}
			test.mock(m)
			repo, err := memory.NewRepository(memory.RepositoryConfig{})
			require.NoError(err)

			c, err := intent.NewClassifier(intent.ClassifierConfig{
				Model:      m,
				Repository: repo,
				Logger:     log.Noop,
				TimeNow:    func() time.Time { return now },
			})
			require.NoError(err)

			got, err := c.Classify(context.Background(), intent.ClassifyRequest{Text: test.text, SessionID: "s1"})
			require.NoError(err)

			assert.NotEmpty(got.ID)
			assert.Equal("s1", got.SessionID)
			assert.Equal(now, got.CreatedAt)
			test.exp.ID = got.ID
			test.exp.SessionID = "s1"
			test.exp.CreatedAt = now
			assert.Equal(test.exp, *got)

			stored, err := repo.GetClassification(context.Background(), got.ID)
			require.NoError(err)
			assert.Equal(got.IntentType, stored.IntentType)

			m.AssertExpectations(t)
			if test.expNoCall {
				m.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestClassifierClassifySendsContext(t *testing.T) {
	m := &llmmock.MockClient{}
	m.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.JSON &&
			len(req.Messages) == 2 &&
			req.Messages[0].Role == llm.RoleSystem &&
			req.UserText() == "CONTEXT:\n- bot: sales\n- user: alice\n\nUSER REQUEST:\nexport leads"
	})).Once().Return(`{"intent_type": "ACTION", "confidence": 0.8}`, nil)

	repo, _ := memory.NewRepository(memory.RepositoryConfig{})
	c, err := intent.NewClassifier(intent.ClassifierConfig{Model: m, Repository: repo})
	require.NoError(t, err)

	got, err := c.Classify(context.Background(), intent.ClassifyRequest{
		Text:    "export leads",
		Context: map[string]string{"user": "alice", "bot": "sales"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.IntentTypeAction, got.IntentType)
	m.AssertExpectations(t)
}

func TestClassifierWithHeuristicModel(t *testing.T) {
	repo, _ := memory.NewRepository(memory.RepositoryConfig{})
	c, err := intent.NewClassifier(intent.ClassifierConfig{Model: heuristic.NewClient(), Repository: repo})
	require.NoError(t, err)

	got, err := c.Classify(context.Background(), intent.ClassifyRequest{Text: "Build an inventory management system"})
	require.NoError(t, err)
	assert.Equal(t, model.IntentTypeAppCreate, got.IntentType)
	assert.Equal(t, 0.75, got.Confidence)

	got, err = c.Classify(context.Background(), intent.ClassifyRequest{Text: "purple"})
	require.NoError(t, err)
	assert.Equal(t, model.IntentTypeUnknown, got.IntentType)
	assert.Equal(t, 0.0, got.Confidence)
}

func TestClassifierRecordFeedback(t *testing.T) {
	schedule := model.IntentTypeSchedule
	bad := model.IntentType("NOPE")

	tests := map[string]struct {
		wasCorrect bool
		corrected  *model.IntentType
		twice      bool
		expErr     error
	}{
		"A correction should be stored.": {
			wasCorrect: false,
			corrected:  &schedule,
		},
		"A correct classification with a correction should fail.": {
			wasCorrect: true,
			corrected:  &schedule,
			expErr:     model.ErrNotValid,
		},
		"An invalid corrected type should fail.": {
			corrected: &bad,
			expErr:    model.ErrNotValid,
		},
		"Feedback can only be set once.": {
			wasCorrect: true,
			twice:      true,
			expErr:     model.ErrConflict,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			repo, _ := memory.NewRepository(memory.RepositoryConfig{})
			c, err := intent.NewClassifier(intent.ClassifierConfig{Model: heuristic.NewClient(), Repository: repo})
			require.NoError(t, err)

			cl, err := c.Classify(context.Background(), intent.ClassifyRequest{Text: "remind me to pay rent"})
			require.NoError(t, err)

			if test.twice {
				require.NoError(t, c.RecordFeedback(context.Background(), cl.ID, test.wasCorrect, test.corrected))
			}
			err = c.RecordFeedback(context.Background(), cl.ID, test.wasCorrect, test.corrected)
			if test.expErr != nil {
				assert.True(t, errors.Is(err, test.expErr))
				return
			}
			require.NoError(t, err)

			stored, err := repo.GetClassification(context.Background(), cl.ID)
			require.NoError(t, err)
			require.NotNil(t, stored.WasCorrect)
			assert.Equal(t, test.wasCorrect, *stored.WasCorrect)
			assert.Equal(t, test.corrected, stored.CorrectedType)
		})
	}
}
