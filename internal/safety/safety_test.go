package safety_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/runtime/fake"
	"github.com/slok/autotask/internal/safety"
	"github.com/slok/autotask/internal/storage"
	"github.com/slok/autotask/internal/storage/memory"
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newAction(t model.ActionType, params map[string]string) model.Action {
	spec, _ := model.LookupAction(t)
	return model.Action{TaskID: "task-1", PlanID: "plan-1", StepIndex: 0, Type: t, Params: params, Risk: spec.Risk}
}

func TestEngineEvaluate(t *testing.T) {
	tests := map[string]struct {
		policy       model.SafetyPolicy
		overrides    map[model.ActionType]model.RiskLevel
		mock         func(r *fake.Runtime)
		action       model.Action
		expOutcome   model.SafetyOutcome
		expRisk      model.RiskLevel
		expScore     int
		expEscalated bool
		expSim       bool
		expErrMsg    string
	}{
		"A low risk read should be allowed.": {
			action:     newAction(model.ActionReadData, map[string]string{"source": "inventory"}),
			expOutcome: model.SafetyOutcomeAllowed,
			expRisk:    model.RiskLevelLow,
			expScore:   10,
			expSim:     true,
		},

		"An action in the deny list should be blocked.": {
			policy: model.SafetyPolicy{DenyList: []model.DenyRule{
				{Name: "no-deploys", Actions: []model.ActionType{model.ActionDeploy}},
			}},
			action:     newAction(model.ActionDeploy, map[string]string{"target": "prod"}),
			expOutcome: model.SafetyOutcomeBlocked,
			expRisk:    model.RiskLevelCritical,
			expScore:   95,
		},

		"A warning deny pattern should escalate the risk.": {
			policy: model.SafetyPolicy{DenyList: []model.DenyRule{
				{Name: "urgent-emails", Actions: []model.ActionType{model.ActionSendEmail}, Param: "subject", Pattern: "(?i)urgent", Severity: model.ConstraintSeverityWarning},
			}},
			action:       newAction(model.ActionSendEmail, map[string]string{"to": "ops@example.com", "subject": "URGENT stock"}),
			expOutcome:   model.SafetyOutcomeWarning,
			expRisk:      model.RiskLevelHigh,
			expScore:     70,
			expEscalated: true,
			expSim:       true,
		},

		"A request out of scope should be blocked.": {
			policy: model.SafetyPolicy{Scope: model.ScopePolicy{
				DefaultDeny: true,
				Rules:       []model.ScopeRule{{Domain: "*.example.com", Allow: true}},
			}},
			action:     newAction(model.ActionHTTPRequest, map[string]string{"url": "https://evil.test/x", "method": "GET"}),
			expOutcome: model.SafetyOutcomeBlocked,
			expRisk:    model.RiskLevelMedium,
			expScore:   40,
		},

		"A request in scope should be allowed.": {
			policy: model.SafetyPolicy{Scope: model.ScopePolicy{
				DefaultDeny: true,
				Rules:       []model.ScopeRule{{Domain: "*.example.com", Allow: true}},
			}},
			action:     newAction(model.ActionHTTPRequest, map[string]string{"url": "https://api.example.com/x", "method": "GET"}),
			expOutcome: model.SafetyOutcomeAllowed,
			expRisk:    model.RiskLevelMedium,
			expScore:   35,
			expSim:     true,
		},

		"An action over the resource limits should be blocked.": {
			policy:     model.SafetyPolicy{Resources: model.ResourceLimits{MaxRecords: 100}},
			action:     newAction(model.ActionBulkUpdate, map[string]string{"table": "orders", "count": "500"}),
			expOutcome: model.SafetyOutcomeBlocked,
			expRisk:    model.RiskLevelHigh,
			expScore:   70,
		},

		"A negative record count should be blocked.": {
			policy:     model.SafetyPolicy{Resources: model.ResourceLimits{MaxRecords: 100}},
			action:     newAction(model.ActionBulkUpdate, map[string]string{"table": "orders", "count": "-5"}),
			expOutcome: model.SafetyOutcomeBlocked,
			expRisk:    model.RiskLevelHigh,
			expScore:   70,
		},

		"An amount over the max should be blocked.": {
			policy:     model.SafetyPolicy{Resources: model.ResourceLimits{MaxAmount: 100}},
			action:     newAction(model.ActionTransferFunds, map[string]string{"amount": "1000", "to": "acme"}),
			expOutcome: model.SafetyOutcomeBlocked,
			expRisk:    model.RiskLevelCritical,
			expScore:   95,
		},

		"A NaN amount should be blocked.": {
			policy:     model.SafetyPolicy{Resources: model.ResourceLimits{MaxAmount: 100}},
			action:     newAction(model.ActionTransferFunds, map[string]string{"amount": "NaN", "to": "acme"}),
			expOutcome: model.SafetyOutcomeBlocked,
			expRisk:    model.RiskLevelCritical,
			expScore:   95,
		},

		"An infinite amount should be blocked.": {
			policy:     model.SafetyPolicy{Resources: model.ResourceLimits{MaxAmount: 100}},
			action:     newAction(model.ActionTransferFunds, map[string]string{"amount": "-Inf", "to": "acme"}),
			expOutcome: model.SafetyOutcomeBlocked,
			expRisk:    model.RiskLevelCritical,
			expScore:   95,
		},

		"A negative amount should be blocked.": {
			policy:     model.SafetyPolicy{Resources: model.ResourceLimits{MaxAmount: 100}},
			action:     newAction(model.ActionTransferFunds, map[string]string{"amount": "-1e9", "to": "acme"}),
			expOutcome: model.SafetyOutcomeBlocked,
			expRisk:    model.RiskLevelCritical,
			expScore:   95,
		},

		"An amount under the max should be allowed.": {
			policy:     model.SafetyPolicy{Resources: model.ResourceLimits{MaxAmount: 100}},
			action:     newAction(model.ActionTransferFunds, map[string]string{"amount": "99.5", "to": "acme"}),
			expOutcome: model.SafetyOutcomeAllowed,
			expRisk:    model.RiskLevelCritical,
			expScore:   90,
			expSim:     true,
		},

		"A failing simulation should end with an error outcome.": {
			mock: func(r *fake.Runtime) {
				r.SetSimulationError(model.ActionReadData, errors.New("runtime unreachable"))
			},
			action:     newAction(model.ActionReadData, map[string]string{"source": "inventory"}),
			expOutcome: model.SafetyOutcomeError,
			expRisk:    model.RiskLevelLow,
			expScore:   10,
			expErrMsg:  "runtime unreachable",
		},

		"A simulation affecting too many records should escalate the risk.": {
			policy:       model.SafetyPolicy{MaxAffectedRecords: 100},
			action:       newAction(model.ActionCreateRecord, map[string]string{"table": "orders", "count": "500"}),
			expOutcome:   model.SafetyOutcomeWarning,
			expRisk:      model.RiskLevelHigh,
			expScore:     70,
			expEscalated: true,
			expSim:       true,
		},

		"An acknowledged warning should be allowed with the escalated risk.": {
			policy: model.SafetyPolicy{MaxAffectedRecords: 100},
			action: func() model.Action {
				a := newAction(model.ActionCreateRecord, map[string]string{"table": "orders", "count": "500"})
				a.Acknowledged = true
				return a
			}(),
			expOutcome:   model.SafetyOutcomeAllowed,
			expRisk:      model.RiskLevelHigh,
			expScore:     70,
			expEscalated: true,
			expSim:       true,
		},

		"Undeclared side effects on a read should escalate the risk.": {
			mock: func(r *fake.Runtime) {
				r.SetSimulation(model.ActionReadData, model.SimulationResult{Success: true, SideEffects: []string{"cache-write"}})
			},
			action:       newAction(model.ActionReadData, map[string]string{"source": "inventory"}),
			expOutcome:   model.SafetyOutcomeWarning,
			expRisk:      model.RiskLevelMedium,
			expScore:     40,
			expEscalated: true,
			expSim:       true,
		},

		"A simulation that predicts a failure should escalate the risk.": {
			mock: func(r *fake.Runtime) {
				r.SetSimulation(model.ActionReadData, model.SimulationResult{Success: false})
			},
			action:       newAction(model.ActionReadData, map[string]string{"source": "inventory"}),
			expOutcome:   model.SafetyOutcomeWarning,
			expRisk:      model.RiskLevelMedium,
			expScore:     40,
			expEscalated: true,
			expSim:       true,
		},

		"A risk override should raise the base risk.": {
			overrides:  map[model.ActionType]model.RiskLevel{model.ActionReadData: model.RiskLevelHigh},
			action:     newAction(model.ActionReadData, map[string]string{"source": "payroll"}),
			expOutcome: model.SafetyOutcomeAllowed,
			expRisk:    model.RiskLevelHigh,
			expScore:   65,
			expSim:     true,
		},

		"An unknown action should be blocked as critical.": {
			action:     model.Action{TaskID: "task-1", Type: "format_disk"},
			expOutcome: model.SafetyOutcomeBlocked,
			expRisk:    model.RiskLevelCritical,
			expScore:   95,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			rt, err := fake.NewRuntime(fake.RuntimeConfig{})
			require.NoError(err)
			if test.mock != nil {
				test.mock(rt)
			}
			repo, err := memory.NewRepository(memory.RepositoryConfig{})
			require.NoError(err)

			e, err := safety.NewEngine(safety.EngineConfig{
				Runtime:       rt,
				Repository:    repo,
				Policy:        test.policy,
				RiskOverrides: test.overrides,
				Logger:        log.Noop,
				TimeNow:       func() time.Time { return t0 },
			})
			require.NoError(err)

			gotEntry, err := e.Evaluate(context.TODO(), test.action)
			require.NoError(err)

			assert.Equal(test.expOutcome, gotEntry.Outcome)
			assert.Equal(test.expRisk, gotEntry.Risk.Level)
			assert.Equal(test.expScore, gotEntry.Risk.Score)
			assert.Equal(test.expEscalated, gotEntry.Risk.Escalated)
			assert.Equal(test.expSim, gotEntry.Simulation != nil)
			assert.Equal(test.expErrMsg, gotEntry.Error)
			assert.False(gotEntry.DryRun)
			assert.Equal(t0, gotEntry.CreatedAt)
			if test.expOutcome != model.SafetyOutcomeAllowed {
				_, failed := gotEntry.FailedCheck()
				assert.True(failed)
			}

			entries, err := repo.ListAuditEntries(context.TODO(), storage.AuditListOpts{TaskID: "task-1"})
			require.NoError(err)
			require.Len(entries, 1)
			assert.Equal(*gotEntry, entries[0])
		})
	}
}

func TestEngineRateLimitSimulateDoesNotConsume(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	rt, err := fake.NewRuntime(fake.RuntimeConfig{})
	require.NoError(err)
	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(err)
	e, err := safety.NewEngine(safety.EngineConfig{
		Runtime:    rt,
		Repository: repo,
		Policy: model.SafetyPolicy{RateLimits: []model.RateLimitRule{
			{Name: "emails", Action: model.ActionSendEmail, Max: 1, Window: time.Hour},
		}},
	})
	require.NoError(err)

	action := newAction(model.ActionSendEmail, map[string]string{"to": "ops@example.com", "subject": "stock"})

	// Dry runs only peek the limiter.
	for range 3 {
		entry, err := e.Simulate(context.TODO(), action)
		require.NoError(err)
		assert.Equal(model.SafetyOutcomeAllowed, entry.Outcome)
		assert.True(entry.DryRun)
	}

	entry, err := e.Evaluate(context.TODO(), action)
	require.NoError(err)
	assert.Equal(model.SafetyOutcomeAllowed, entry.Outcome)

	entry, err = e.Evaluate(context.TODO(), action)
	require.NoError(err)
	assert.Equal(model.SafetyOutcomeBlocked, entry.Outcome)
	check, _ := entry.FailedCheck()
	assert.Equal(model.ConstraintTypeRateLimit, check.Type)

	// Other actions are not limited.
	entry, err = e.Evaluate(context.TODO(), newAction(model.ActionReadData, map[string]string{"source": "x"}))
	require.NoError(err)
	assert.Equal(model.SafetyOutcomeAllowed, entry.Outcome)

	entries, err := repo.ListAuditEntries(context.TODO(), storage.AuditListOpts{})
	require.NoError(err)
	assert.Len(entries, 6)
}

func TestEngineRateLimitAdmission(t *testing.T) {
	scripts := model.RateLimitRule{Name: "scripts", Action: model.ActionRunScript, Max: 1, Window: time.Hour}
	transfers := model.RateLimitRule{Name: "transfers", Action: model.ActionTransferFunds, Max: 1, Window: time.Hour}
	everything := model.RateLimitRule{Name: "everything", Max: 2, Window: time.Hour}
	emails := model.RateLimitRule{Name: "emails", Action: model.ActionSendEmail, Max: 1, Window: time.Hour}

	script := func(mode model.ExecutionMode, acknowledged bool) model.Action {
		a := newAction(model.ActionRunScript, map[string]string{"script": "export.sh"})
		a.Mode = mode
		a.Acknowledged = acknowledged
		return a
	}
	transfer := func(amount string) model.Action {
		return newAction(model.ActionTransferFunds, map[string]string{"amount": amount, "to": "acme"})
	}
	email := newAction(model.ActionSendEmail, map[string]string{"to": "ops@example.com", "subject": "stock"})
	read := newAction(model.ActionReadData, map[string]string{"source": "x"})

	tests := map[string]struct {
		policy      model.SafetyPolicy
		actions     []model.Action
		expOutcomes []model.SafetyOutcome
	}{
		"Evaluations that end on an approval gate should not take tokens.": {
			policy: model.SafetyPolicy{RateLimits: []model.RateLimitRule{scripts}},
			actions: []model.Action{
				script(model.ExecutionModeSupervised, false),
				script(model.ExecutionModeSupervised, false),
				script(model.ExecutionModeSupervised, true),
				script(model.ExecutionModeSupervised, true),
			},
			expOutcomes: []model.SafetyOutcome{
				model.SafetyOutcomeAllowed,
				model.SafetyOutcomeAllowed,
				model.SafetyOutcomeAllowed,
				model.SafetyOutcomeBlocked,
			},
		},

		"Ungated evaluations should take tokens.": {
			policy: model.SafetyPolicy{RateLimits: []model.RateLimitRule{scripts}},
			actions: []model.Action{
				script(model.ExecutionModeAutonomous, false),
				script(model.ExecutionModeAutonomous, false),
			},
			expOutcomes: []model.SafetyOutcome{
				model.SafetyOutcomeAllowed,
				model.SafetyOutcomeBlocked,
			},
		},

		"Actions blocked by other constraints should not take tokens.": {
			policy: model.SafetyPolicy{
				Resources:  model.ResourceLimits{MaxAmount: 100},
				RateLimits: []model.RateLimitRule{transfers},
			},
			actions: []model.Action{transfer("1000"), transfer("NaN"), transfer("10"), transfer("10")},
			expOutcomes: []model.SafetyOutcome{
				model.SafetyOutcomeBlocked,
				model.SafetyOutcomeBlocked,
				model.SafetyOutcomeAllowed,
				model.SafetyOutcomeBlocked,
			},
		},

		"An action over one limit should not take the tokens of the other limits.": {
			policy:  model.SafetyPolicy{RateLimits: []model.RateLimitRule{everything, emails}},
			actions: []model.Action{email, email, read, read},
			expOutcomes: []model.SafetyOutcome{
				model.SafetyOutcomeAllowed,
				model.SafetyOutcomeBlocked,
				model.SafetyOutcomeAllowed,
				model.SafetyOutcomeBlocked,
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			rt, err := fake.NewRuntime(fake.RuntimeConfig{})
			require.NoError(err)
			repo, err := memory.NewRepository(memory.RepositoryConfig{})
			require.NoError(err)
			e, err := safety.NewEngine(safety.EngineConfig{
				Runtime:    rt,
				Repository: repo,
				Policy:     test.policy,
				TimeNow:    func() time.Time { return t0 },
			})
			require.NoError(err)

			gotOutcomes := []model.SafetyOutcome{}
			for _, a := range test.actions {
				entry, err := e.Evaluate(context.TODO(), a)
				require.NoError(err)
				assert.False(entry.DryRun)
				gotOutcomes = append(gotOutcomes, entry.Outcome)
			}
			assert.Equal(test.expOutcomes, gotOutcomes)
		})
	}
}

func TestEngineTracing(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	rt, err := fake.NewRuntime(fake.RuntimeConfig{})
	require.NoError(err)
	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(err)
	e, err := safety.NewEngine(safety.EngineConfig{Runtime: rt, Repository: repo, Tracer: tp.Tracer("test")})
	require.NoError(err)

	_, err = e.Evaluate(context.TODO(), newAction(model.ActionReadData, map[string]string{"source": "x"}))
	require.NoError(err)

	spans := sr.Ended()
	require.Len(spans, 1)
	assert.Equal("safety.Evaluate", spans[0].Name())
	assert.Contains(spans[0].Attributes(), attribute.String("autotask.safety.outcome", "allowed"))
	assert.Contains(spans[0].Attributes(), attribute.String("autotask.action", "read_data"))
}

type failingAuditRepo struct{ storage.AuditRepository }

func (failingAuditRepo) AppendAuditEntry(context.Context, model.SafetyAuditEntry) error {
	return errors.New("disk full")
}

func TestEngineAuditFailure(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	rt, err := fake.NewRuntime(fake.RuntimeConfig{})
	require.NoError(err)
	e, err := safety.NewEngine(safety.EngineConfig{Runtime: rt, Repository: failingAuditRepo{}})
	require.NoError(err)

	_, err = e.Evaluate(context.TODO(), newAction(model.ActionReadData, map[string]string{"source": "x"}))
	assert.Error(err)
}

func TestNewEngine(t *testing.T) {
	rt, _ := fake.NewRuntime(fake.RuntimeConfig{})
	repo, _ := memory.NewRepository(memory.RepositoryConfig{})

	tests := map[string]struct {
		cfg    safety.EngineConfig
		expErr bool
	}{
		"A valid config should not fail.": {
			cfg: safety.EngineConfig{Runtime: rt, Repository: repo},
		},

		"A missing runtime should fail.": {
			cfg:    safety.EngineConfig{Repository: repo},
			expErr: true,
		},

		"A missing repository should fail.": {
			cfg:    safety.EngineConfig{Runtime: rt},
			expErr: true,
		},

		"An invalid deny pattern should fail.": {
			cfg: safety.EngineConfig{Runtime: rt, Repository: repo, Policy: model.SafetyPolicy{
				DenyList: []model.DenyRule{{Name: "bad", Pattern: "(["}},
			}},
			expErr: true,
		},

		"An invalid rate limit should fail.": {
			cfg: safety.EngineConfig{Runtime: rt, Repository: repo, Policy: model.SafetyPolicy{
				RateLimits: []model.RateLimitRule{{Name: "bad", Max: 0, Window: time.Minute}},
			}},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := safety.NewEngine(test.cfg)
			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
