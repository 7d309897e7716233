// Package webhook posts prompts as JSON to an HTTP endpoint with retries.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/notify"
)

// NotifierConfig is the configuration of the webhook notifier.
type NotifierConfig struct {
	URL      string
	Headers  map[string]string
	Timeout  time.Duration
	RetryMax int
	// RetryWaitMin and RetryWaitMax bound the exponential backoff between retries.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       log.Logger
}

func (c *NotifierConfig) defaults() error {
	if c.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RetryMax == 0 {
		c.RetryMax = 4
	}
	if c.RetryWaitMin == 0 {
		c.RetryWaitMin = 500 * time.Millisecond
	}
	if c.RetryWaitMax == 0 {
		c.RetryWaitMax = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "notify.Webhook"})
	return nil
}

// Notifier posts prompts to a webhook.
type Notifier struct {
	url     string
	headers map[string]string
	client  *retryablehttp.Client
	logger  log.Logger
}

// NewNotifier returns a new webhook notifier.
func NewNotifier(cfg NotifierConfig) (*Notifier, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := retryablehttp.NewClient()
	c.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	c.RetryMax = cfg.RetryMax
	c.RetryWaitMin = cfg.RetryWaitMin
	c.RetryWaitMax = cfg.RetryWaitMax
	c.Logger = leveledLogger{logger: cfg.Logger}
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Notifier{
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  c,
		logger:  cfg.Logger,
	}, nil
}

// Notify satisfies notify.Notifier.
func (n *Notifier) Notify(ctx context.Context, p notify.Prompt) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("could not marshal prompt: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, n.url, payload)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", p.Token)
	for k, v := range n.headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	n.logger.Debugf("Delivered %s prompt %s for task %s", p.Kind, p.GateID, p.TaskID)
	return nil
}

// leveledLogger adapts the logger to retryablehttp.LeveledLogger.
type leveledLogger struct {
	logger log.Logger
}

func kv(keysAndValues []any) log.Kv {
	out := log.Kv{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return out
}

func (l leveledLogger) Error(msg string, keysAndValues ...any) {
	l.logger.WithValues(kv(keysAndValues)).Errorf("%s", msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...any) {
	l.logger.WithValues(kv(keysAndValues)).Infof("%s", msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.WithValues(kv(keysAndValues)).Debugf("%s", msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...any) {
	l.logger.WithValues(kv(keysAndValues)).Warningf("%s", msg)
}
