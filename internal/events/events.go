// Package events delivers gate resolution events to the tasks waiting on them.
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
)

// Publisher publishes resume events. Publishing never blocks the caller.
type Publisher interface {
	Publish(ctx context.Context, ev model.ResumeEvent)
}

// PublisherFunc is a helper to use a function as a Publisher.
type PublisherFunc func(ctx context.Context, ev model.ResumeEvent)

func (f PublisherFunc) Publish(ctx context.Context, ev model.ResumeEvent) { f(ctx, ev) }

// Noop drops every event.
var Noop = PublisherFunc(func(context.Context, model.ResumeEvent) {})

// BusConfig is the configuration of the bus.
type BusConfig struct {
	// BufferSize is the channel buffer of each subscriber.
	BufferSize int
	Logger     log.Logger
}

func (c *BusConfig) defaults() error {
	if c.BufferSize == 0 {
		c.BufferSize = 64
	}
	if c.BufferSize < 0 {
		return fmt.Errorf("buffer size can't be negative")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "events.Bus"})
	return nil
}

type subscriber chan model.ResumeEvent

// allTasks is the subscription key of the global stream.
const allTasks = ""

// Bus is an in-memory pub/sub of resume events, per task and global.
// Slow subscribers lose events, the orchestrator reconciliation recovers them.
type Bus struct {
	subs    map[string]map[subscriber]struct{}
	mu      sync.RWMutex
	bufSize int
	logger  log.Logger
}

// NewBus returns a new bus.
func NewBus(cfg BusConfig) (*Bus, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Bus{
		subs:    map[string]map[subscriber]struct{}{},
		bufSize: cfg.BufferSize,
		logger:  cfg.Logger,
	}, nil
}

// Subscribe returns the events of one task and the function to unsubscribe.
func (b *Bus) Subscribe(taskID string) (<-chan model.ResumeEvent, func()) {
	return b.subscribe(taskID)
}

// SubscribeAll returns the events of every task and the function to unsubscribe.
func (b *Bus) SubscribeAll() (<-chan model.ResumeEvent, func()) {
	return b.subscribe(allTasks)
}

func (b *Bus) subscribe(key string) (<-chan model.ResumeEvent, func()) {
	ch := make(subscriber, b.bufSize)

	b.mu.Lock()
	set := b.subs[key]
	if set == nil {
		set = map[subscriber]struct{}{}
		b.subs[key] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[key]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(b.subs, key)
				}
			}
			close(ch)
		})
	}

	return ch, unsubscribe
}

// Publish satisfies Publisher.
func (b *Bus) Publish(ctx context.Context, ev model.ResumeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, key := range []string{ev.TaskID, allTasks} {
		for ch := range b.subs[key] {
			select {
			case ch <- ev:
			default:
				b.logger.Warningf("Dropped %s resume event of task %s, subscriber is full", ev.Kind, ev.TaskID)
			}
		}
	}
}
