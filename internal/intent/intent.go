// Package intent classifies free text requests into the closed intent taxonomy.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/autotask/internal/llm"
	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/storage"
)

// DefaultConfidenceFloor is the minimum confidence for a non UNKNOWN classification.
const DefaultConfidenceFloor = 0.4

const defaultClarification = "Could you please clarify what you'd like me to do?"

// ClassifierConfig is the configuration of the classifier.
type ClassifierConfig struct {
	Model           llm.Client
	Repository      storage.ClassificationRepository
	ConfidenceFloor float64
	Logger          log.Logger
	TimeNow         func() time.Time
}

func (c *ClassifierConfig) defaults() error {
	if c.Model == nil {
		return fmt.Errorf("model is required")
	}
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.ConfidenceFloor == 0 {
		c.ConfidenceFloor = DefaultConfidenceFloor
	}
	if c.ConfidenceFloor < 0 || c.ConfidenceFloor > 1 {
		return fmt.Errorf("confidence floor must be between 0 and 1")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "intent.Classifier"})
	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}
	return nil
}

// Classifier classifies user requests.
type Classifier struct {
	model   llm.Client
	repo    storage.ClassificationRepository
	floor   float64
	logger  log.Logger
	timeNow func() time.Time
}

// NewClassifier returns a new classifier.
func NewClassifier(cfg ClassifierConfig) (*Classifier, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Classifier{
		model:   cfg.Model,
		repo:    cfg.Repository,
		floor:   cfg.ConfidenceFloor,
		logger:  cfg.Logger,
		timeNow: cfg.TimeNow,
	}, nil
}

// ClassifyRequest is the input of Classify.
type ClassifyRequest struct {
	Text      string
	SessionID string
	// Context is extra conversational context passed to the model.
	Context map[string]string
}

// Classify classifies the text and stores the classification.
// Model failures never fail the call, they produce an UNKNOWN classification.
func (c *Classifier) Classify(ctx context.Context, req ClassifyRequest) (*model.IntentClassification, error) {
	cl := model.IntentClassification{
		ID:           ulid.Make().String(),
		SessionID:    req.SessionID,
		OriginalText: req.Text,
		IntentType:   model.IntentTypeUnknown,
		Entities:     map[string]string{},
		CreatedAt:    c.timeNow().UTC(),
	}

	if strings.TrimSpace(req.Text) != "" {
		ans, err := c.ask(ctx, req)
		if err != nil {
			c.logger.Warningf("Classification fell back to UNKNOWN: %s", err)
		} else {
			c.apply(&cl, *ans)
		}
	}

	if cl.IntentType == model.IntentTypeUnknown {
		cl.Confidence = 0
		cl.RequiresClarification = true
		if cl.ClarificationQuestion == "" {
			cl.ClarificationQuestion = defaultClarification
		}
	}

	if err := c.repo.CreateClassification(ctx, cl); err != nil {
		return nil, fmt.Errorf("could not store classification: %w", err)
	}

	c.logger.Debugf("Classified %q as %s (%.2f)", req.Text, cl.IntentType, cl.Confidence)
	return &cl, nil
}

// answer is the JSON document expected from the model.
type answer struct {
	IntentType            string         `json:"intent_type"`
	Confidence            float64        `json:"confidence"`
	Entities              map[string]any `json:"entities"`
	SuggestedName         string         `json:"suggested_name"`
	RequiresClarification bool           `json:"requires_clarification"`
	ClarificationQuestion *string        `json:"clarification_question"`
	Alternatives          []struct {
		Type       string  `json:"type"`
		Confidence float64 `json:"confidence"`
	} `json:"alternatives"`

	// Flat entity fields some models answer with.
	Subject     *string `json:"subject"`
	Action      *string `json:"action"`
	Domain      *string `json:"domain"`
	Condition   *string `json:"condition"`
	Recipient   *string `json:"recipient"`
	TargetValue *string `json:"target_value"`
}

func (c *Classifier) ask(ctx context.Context, req ClassifyRequest) (*answer, error) {
	user := req.Text
	if len(req.Context) > 0 {
		keys := make([]string, 0, len(req.Context))
		for k := range req.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sb strings.Builder
		sb.WriteString("CONTEXT:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %s\n", k, req.Context[k])
		}
		sb.WriteString("\nUSER REQUEST:\n")
		sb.WriteString(req.Text)
		user = sb.String()
	}

	out, err := c.model.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: user},
		},
		Temperature: 0,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}

	raw, err := llm.ExtractJSON(out)
	if err != nil {
		return nil, err
	}

	var ans answer
	if err := json.Unmarshal([]byte(raw), &ans); err != nil {
		return nil, fmt.Errorf("could not parse model answer: %w", err)
	}

	return &ans, nil
}

func (c *Classifier) apply(cl *model.IntentClassification, ans answer) {
	it, err := model.ParseIntentType(ans.IntentType)
	if err != nil {
		return
	}
	conf := ans.Confidence
	if conf < c.floor || conf > 1 {
		return
	}

	cl.IntentType = it
	cl.Confidence = conf
	cl.SuggestedName = strings.TrimSpace(ans.SuggestedName)
	cl.RequiresClarification = ans.RequiresClarification
	if ans.ClarificationQuestion != nil {
		cl.ClarificationQuestion = *ans.ClarificationQuestion
	}

	for k, v := range ans.Entities {
		if s := entityString(v); s != "" {
			cl.Entities[k] = s
		}
	}
	flat := map[string]*string{
		"subject":      ans.Subject,
		"action":       ans.Action,
		"domain":       ans.Domain,
		"condition":    ans.Condition,
		"recipient":    ans.Recipient,
		"target_value": ans.TargetValue,
	}
	for k, v := range flat {
		if _, ok := cl.Entities[k]; !ok && v != nil && *v != "" {
			cl.Entities[k] = *v
		}
	}

	for _, a := range ans.Alternatives {
		at, err := model.ParseIntentType(a.Type)
		if err != nil || at == it || a.Confidence <= 0 || a.Confidence > 1 {
			continue
		}
		cl.Alternatives = append(cl.Alternatives, model.IntentAlternative{Type: at, Confidence: a.Confidence})
	}
	sort.SliceStable(cl.Alternatives, func(i, j int) bool {
		return cl.Alternatives[i].Confidence > cl.Alternatives[j].Confidence
	})
}

func entityString(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(tv)
	case []any:
		parts := make([]string, 0, len(tv))
		for _, p := range tv {
			if s := entityString(p); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ",")
	default:
		data, err := json.Marshal(tv)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// RecordFeedback stores whether a classification was correct. It can only be set once.
func (c *Classifier) RecordFeedback(ctx context.Context, id string, wasCorrect bool, corrected *model.IntentType) error {
	if wasCorrect && corrected != nil {
		return fmt.Errorf("a correct classification can't have a corrected type: %w", model.ErrNotValid)
	}
	if corrected != nil {
		if _, err := model.ParseIntentType(string(*corrected)); err != nil {
			return err
		}
	}

	if err := c.repo.SetClassificationFeedback(ctx, id, wasCorrect, corrected); err != nil {
		return fmt.Errorf("could not record feedback: %w", err)
	}

	c.logger.Infof("Feedback recorded for classification %s (correct: %t)", id, wasCorrect)
	return nil
}
