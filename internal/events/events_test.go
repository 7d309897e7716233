package events_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/autotask/internal/events"
	"github.com/slok/autotask/internal/model"
)

func TestBusPublish(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	b, err := events.NewBus(events.BusConfig{BufferSize: 1})
	require.NoError(err)

	t1, unsub1 := b.Subscribe("task-1")
	t2, unsub2 := b.Subscribe("task-2")
	all, unsubAll := b.SubscribeAll()
	defer unsub2()
	defer unsubAll()

	ev := model.ResumeEvent{TaskID: "task-1", GateID: "gate-1", Kind: model.GateKindApproval}
	b.Publish(context.TODO(), ev)

	assert.Equal(ev, <-t1)
	assert.Equal(ev, <-all)
	assert.Len(t2, 0)

	// Full subscribers drop events without blocking.
	b.Publish(context.TODO(), ev)
	b.Publish(context.TODO(), ev)
	assert.Len(t1, 1)

	// Unsubscribing closes the channel and is idempotent.
	unsub1()
	unsub1()
	<-t1
	_, ok := <-t1
	assert.False(ok)

	b.Publish(context.TODO(), ev)
}

func TestPublisherFunc(t *testing.T) {
	var got []model.ResumeEvent
	p := events.PublisherFunc(func(ctx context.Context, ev model.ResumeEvent) { got = append(got, ev) })

	p.Publish(context.TODO(), model.ResumeEvent{TaskID: "task-1", Kind: model.GateKindDecision})
	events.Noop.Publish(context.TODO(), model.ResumeEvent{TaskID: "task-1"})

	assert.Equal(t, []model.ResumeEvent{{TaskID: "task-1", Kind: model.GateKindDecision}}, got)
}

func TestNewBus(t *testing.T) {
	_, err := events.NewBus(events.BusConfig{BufferSize: -1})
	assert.Error(t, err)
}
