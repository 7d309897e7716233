// Package lognotify writes prompts to the logger, used when no channel is configured.
package lognotify

import (
	"context"
	"fmt"
	"strings"

	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/notify"
)

// Notifier logs prompts.
type Notifier struct {
	logger log.Logger
}

// NewNotifier returns a new log notifier.
func NewNotifier(logger log.Logger) Notifier {
	if logger == nil {
		logger = log.Noop
	}
	return Notifier{logger: logger.WithValues(log.Kv{"svc": "notify.Log"})}
}

// Notify satisfies notify.Notifier.
func (n Notifier) Notify(ctx context.Context, p notify.Prompt) error {
	opts := make([]string, 0, len(p.Options))
	for _, o := range p.Options {
		opts = append(opts, fmt.Sprintf("%s=%s", o.ID, o.Label))
	}

	n.logger.WithCtxValues(ctx).WithValues(log.Kv{
		"kind":    p.Kind,
		"gate":    p.GateID,
		"task":    p.TaskID,
		"step":    p.StepIndex,
		"token":   p.Token,
		"expires": p.ExpiresAt,
		"options": strings.Join(opts, ","),
	}).Infof("%s: %s", p.Title, p.Message)

	return nil
}
