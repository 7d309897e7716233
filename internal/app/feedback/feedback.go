package feedback

import (
	"context"
	"fmt"

	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
)

// Classifier records classification feedback.
type Classifier interface {
	RecordFeedback(ctx context.Context, id string, wasCorrect bool, corrected *model.IntentType) error
}

// ServiceConfig is the configuration for the feedback service.
type ServiceConfig struct {
	Classifier Classifier
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Classifier == nil {
		return fmt.Errorf("classifier is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service annotates classifications for calibration.
type Service struct {
	classifier Classifier
	logger     log.Logger
}

// NewService creates a new feedback service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		classifier: cfg.Classifier,
		logger:     cfg.Logger,
	}, nil
}

// Request represents the feedback request parameters.
type Request struct {
	ClassificationID string
	WasCorrect       bool
	// CorrectedType is the right intent type of a wrong classification, it's optional.
	CorrectedType string
}

// Run records the feedback, it can only be given once per classification.
func (s *Service) Run(ctx context.Context, req Request) error {
	if req.ClassificationID == "" {
		return fmt.Errorf("classification id is required: %w", model.ErrNotValid)
	}

	var corrected *model.IntentType
	if req.CorrectedType != "" {
		it, err := model.ParseIntentType(req.CorrectedType)
		if err != nil {
			return err
		}
		corrected = &it
	}

	if err := s.classifier.RecordFeedback(ctx, req.ClassificationID, req.WasCorrect, corrected); err != nil {
		return fmt.Errorf("could not record feedback: %w", err)
	}

	return nil
}
