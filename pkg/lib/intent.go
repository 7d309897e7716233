package lib

import (
	"context"
	"fmt"

	"github.com/slok/autotask/internal/app/classify"
	"github.com/slok/autotask/internal/app/feedback"
)

// ClassifyOpts are optional classification settings. Pass nil to [Client.Classify] for defaults.
type ClassifyOpts struct {
	SessionID string
	Context   map[string]string
}

// Classify classifies a request without creating a task.
func (c *Client) Classify(ctx context.Context, text string, opts *ClassifyOpts) (*Classification, error) {
	svc, err := classify.NewService(classify.ServiceConfig{
		Classifier: c.sys.Classifier,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	req := classify.Request{Text: text}
	if opts != nil {
		req.SessionID = opts.SessionID
		req.Context = opts.Context
	}

	cl, err := svc.Run(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}

	result := fromInternalClassification(*cl)
	return &result, nil
}

// FeedbackOpts is the feedback on a classification.
type FeedbackOpts struct {
	WasCorrect bool
	// CorrectedType is the right intent type of a wrong classification (e.g. "TODO").
	CorrectedType string
}

// Feedback records if a classification was right. It can only be given once.
//
// Returns [ErrNotFound] if the classification does not exist and [ErrConflict]
// if it already has feedback.
func (c *Client) Feedback(ctx context.Context, classificationID string, opts FeedbackOpts) error {
	svc, err := feedback.NewService(feedback.ServiceConfig{
		Classifier: c.sys.Classifier,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	err = svc.Run(ctx, feedback.Request{
		ClassificationID: classificationID,
		WasCorrect:       opts.WasCorrect,
		CorrectedType:    opts.CorrectedType,
	})
	if err != nil {
		return mapError(err)
	}

	return nil
}
