package classify_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/autotask/internal/app/apptest"
	"github.com/slok/autotask/internal/app/classify"
	"github.com/slok/autotask/internal/model"
)

func TestServiceRun(t *testing.T) {
	tests := map[string]struct {
		req       classify.Request
		expErr    error
		expIntent model.IntentType
		expClarif bool
	}{
		"Empty text should fail.": {
			req:    classify.Request{},
			expErr: model.ErrNotValid,
		},

		"A reminder should be a todo.": {
			req:       classify.Request{Text: "remind me to call mom tomorrow", SessionID: "s1"},
			expIntent: model.IntentTypeTodo,
		},

		"A vague request should need clarification.": {
			req:       classify.Request{Text: "hmm"},
			expIntent: model.IntentTypeUnknown,
			expClarif: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			stack := apptest.NewStack(t)
			svc, err := classify.NewService(classify.ServiceConfig{Classifier: stack.Classifier})
			require.NoError(t, err)

			cl, err := svc.Run(context.TODO(), test.req)
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expIntent, cl.IntentType)
			assert.Equal(t, test.expClarif, cl.RequiresClarification)

			stored, err := stack.Repo.GetClassification(context.TODO(), cl.ID)
			require.NoError(t, err)
			assert.Equal(t, test.req.SessionID, stored.SessionID)
		})
	}
}
