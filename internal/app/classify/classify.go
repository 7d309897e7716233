package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/slok/autotask/internal/intent"
	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
)

// Classifier classifies the user text.
type Classifier interface {
	Classify(ctx context.Context, req intent.ClassifyRequest) (*model.IntentClassification, error)
}

// ServiceConfig is the configuration for the classify service.
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

// Service classifies requests without creating tasks.
type Service struct {
	classifier Classifier
	logger     log.Logger
}

// NewService creates a new classify service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		classifier: cfg.Classifier,
		logger:     cfg.Logger,
	}, nil
}

// Request represents the classify request parameters.
type Request struct {
	Text      string
	SessionID string
	Context   map[string]string
}

// Run classifies the text. The classification is stored so it can get feedback.
func (s *Service) Run(ctx context.Context, req Request) (*model.IntentClassification, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("text is required: %w", model.ErrNotValid)
	}

	cl, err := s.classifier.Classify(ctx, intent.ClassifyRequest{Text: req.Text, SessionID: req.SessionID, Context: req.Context})
	if err != nil {
		return nil, fmt.Errorf("could not classify: %w", err)
	}

	return cl, nil
}
