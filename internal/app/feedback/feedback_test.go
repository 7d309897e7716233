package feedback_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/autotask/internal/app/apptest"
	"github.com/slok/autotask/internal/app/feedback"
	"github.com/slok/autotask/internal/intent"
	"github.com/slok/autotask/internal/model"
)

func TestNewService(t *testing.T) {
	_, err := feedback.NewService(feedback.ServiceConfig{})
	assert.ErrorContains(t, err, "classifier is required")
}

func TestServiceRun(t *testing.T) {
	tests := map[string]struct {
		req          func(id string) feedback.Request
		expErr       error
		expCorrect   bool
		expCorrected *model.IntentType
	}{
		"Missing classification should fail.": {
			req:    func(id string) feedback.Request { return feedback.Request{WasCorrect: true} },
			expErr: model.ErrNotValid,
		},

		"Unknown classification should fail.": {
			req: func(id string) feedback.Request {
				return feedback.Request{ClassificationID: "missing", WasCorrect: true}
			},
			expErr: model.ErrNotFound,
		},

		"A correct classification should be recorded.": {
			req:        func(id string) feedback.Request { return feedback.Request{ClassificationID: id, WasCorrect: true} },
			expCorrect: true,
		},

		"A wrong classification should record the corrected type.": {
			req: func(id string) feedback.Request {
				return feedback.Request{ClassificationID: id, CorrectedType: "schedule"}
			},
			expCorrected: func() *model.IntentType { it := model.IntentTypeSchedule; return &it }(),
		},

		"An unknown corrected type should fail.": {
			req: func(id string) feedback.Request {
				return feedback.Request{ClassificationID: id, CorrectedType: "wizardry"}
			},
			expErr: model.ErrNotValid,
		},

		"A correct classification with a corrected type should fail.": {
			req: func(id string) feedback.Request {
				return feedback.Request{ClassificationID: id, WasCorrect: true, CorrectedType: "todo"}
			},
			expErr: model.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.TODO()
			stack := apptest.NewStack(t)
			cl, err := stack.Classifier.Classify(ctx, intent.ClassifyRequest{Text: "remind me to call mom tomorrow"})
			require.NoError(t, err)

			svc, err := feedback.NewService(feedback.ServiceConfig{Classifier: stack.Classifier})
			require.NoError(t, err)

			err = svc.Run(ctx, test.req(cl.ID))
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
				return
			}
			require.NoError(t, err)

			got, err := stack.Repo.GetClassification(ctx, cl.ID)
			require.NoError(t, err)
			require.NotNil(t, got.WasCorrect)
			assert.Equal(t, test.expCorrect, *got.WasCorrect)
			assert.Equal(t, test.expCorrected, got.CorrectedType)
		})
	}
}

func TestServiceRunOnlyOnce(t *testing.T) {
	ctx := context.TODO()
	stack := apptest.NewStack(t)
	cl, err := stack.Classifier.Classify(ctx, intent.ClassifyRequest{Text: "remind me to call mom tomorrow"})
	require.NoError(t, err)

	svc, err := feedback.NewService(feedback.ServiceConfig{Classifier: stack.Classifier})
	require.NoError(t, err)

	require.NoError(t, svc.Run(ctx, feedback.Request{ClassificationID: cl.ID, WasCorrect: true}))
	assert.Error(t, svc.Run(ctx, feedback.Request{ClassificationID: cl.ID, WasCorrect: false}))
}
