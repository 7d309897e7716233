package doctor

import (
	"context"
	"fmt"

	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
)

// Database is the store being checked.
type Database interface {
	Ping(ctx context.Context) error
	SchemaVersion(ctx context.Context) (version uint, dirty bool, err error)
}

// RuntimeChecker is a runtime with its own preflight checks.
type RuntimeChecker interface {
	Check(ctx context.Context) []model.CheckResult
}

// ServiceConfig is the configuration for the doctor service.
type ServiceConfig struct {
	Database Database
	// Runtime is nil when the in-memory runtime is used.
	Runtime RuntimeChecker
	// ModelProvider is the configured language model provider, empty means the offline heuristic model.
	ModelProvider string
	Policy        model.Policy
	Logger        log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Database == nil {
		return fmt.Errorf("database is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	return nil
}

// Service runs the preflight checks.
type Service struct {
	db            Database
	runtime       RuntimeChecker
	modelProvider string
	policy        model.Policy
	logger        log.Logger
}

// NewService creates a new doctor service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		db:            cfg.Database,
		runtime:       cfg.Runtime,
		modelProvider: cfg.ModelProvider,
		policy:        cfg.Policy,
		logger:        cfg.Logger,
	}, nil
}

// Run runs all the checks, failed checks are results and not errors.
func (s *Service) Run(ctx context.Context) []model.CheckResult {
	var results []model.CheckResult
	results = append(results, s.checkDatabase(ctx)...)
	results = append(results, s.checkModel())
	results = append(results, s.checkPolicy())
	results = append(results, s.checkRuntime(ctx)...)

	ok, warnings, errors := model.CountByStatus(results)
	s.logger.Debugf("Doctor checks: %d ok, %d warnings, %d errors", ok, warnings, errors)

	return results
}

func (s *Service) checkDatabase(ctx context.Context) []model.CheckResult {
	if err := s.db.Ping(ctx); err != nil {
		return []model.CheckResult{{ID: "db_reachable", Message: fmt.Sprintf("Database is not reachable: %s", err), Status: model.CheckStatusError}}
	}
	results := []model.CheckResult{{ID: "db_reachable", Message: "Database reachable", Status: model.CheckStatusOK}}

	version, dirty, err := s.db.SchemaVersion(ctx)
	switch {
	case err != nil:
		results = append(results, model.CheckResult{ID: "db_schema", Message: fmt.Sprintf("Could not read schema version: %s", err), Status: model.CheckStatusError})
	case dirty:
		results = append(results, model.CheckResult{ID: "db_schema", Message: fmt.Sprintf("Schema version %d is dirty, a migration failed half way", version), Status: model.CheckStatusError})
	case version == 0:
		results = append(results, model.CheckResult{ID: "db_schema", Message: "No migrations applied", Status: model.CheckStatusError})
	default:
		results = append(results, model.CheckResult{ID: "db_schema", Message: fmt.Sprintf("Schema at version %d", version), Status: model.CheckStatusOK})
	}

	return results
}

func (s *Service) checkModel() model.CheckResult {
	if s.modelProvider == "" {
		return model.CheckResult{
			ID:      "language_model",
			Message: "No language model configured, using the offline keyword model and plan templates",
			Status:  model.CheckStatusWarning,
		}
	}
	return model.CheckResult{ID: "language_model", Message: fmt.Sprintf("Language model provider %s configured", s.modelProvider), Status: model.CheckStatusOK}
}

func (s *Service) checkPolicy() model.CheckResult {
	if _, ok := s.policy.Approval.ChainFor(model.RiskLevelCritical); !ok {
		return model.CheckResult{
			ID:      "approval_chains",
			Message: "No approval chain for critical risk, any approver can approve critical steps",
			Status:  model.CheckStatusWarning,
		}
	}
	return model.CheckResult{ID: "approval_chains", Message: fmt.Sprintf("%d approval chains configured", len(s.policy.Approval.Chains)), Status: model.CheckStatusOK}
}

func (s *Service) checkRuntime(ctx context.Context) []model.CheckResult {
	if s.runtime == nil {
		return []model.CheckResult{{
			ID:      "runtime",
			Message: "In-memory runtime selected, actions are not executed for real",
			Status:  model.CheckStatusWarning,
		}}
	}
	return s.runtime.Check(ctx)
}
