package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBus_PublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()

	var got1, got2 []interface{}
	bus.Subscribe(func(ev interface{}) { got1 = append(got1, ev) })
	bus.Subscribe(func(ev interface{}) { got2 = append(got2, ev) })

	ev := KillSwitchChangedEvent{Active: true, Reason: "manual", Timestamp: time.Now()}
	bus.Publish(ev)

	require.Len(t, got1, 1)
	require.Len(t, got2, 1)
	require.Equal(t, ev, got1[0])
}

func TestBus_PanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	bus := NewBus()

	var delivered int
	bus.Subscribe(func(interface{}) { panic("boom") })
	bus.Subscribe(func(interface{}) { delivered++ })

	require.NotPanics(t, func() {
		bus.Publish(DailyResetEvent{PrevDailyPnL: "-12.5", Timestamp: time.Now()})
	})
	require.Equal(t, 1, delivered)
}

func TestBus_WakeSignalAfterPublish(t *testing.T) {
	bus := NewBus()

	bus.Publish(ThrottleChangedEvent{Active: true})

	select {
	case <-bus.Wake():
	default:
		t.Fatal("expected wake signal after publish")
	}
}

func TestBus_NilSafety(t *testing.T) {
	var bus *Bus
	require.NotPanics(t, func() {
		bus.Subscribe(func(interface{}) {})
		bus.Publish(KillSwitchChangedEvent{})
	})
	require.Nil(t, bus.Wake())

	// nil 事件与 nil 回调直接忽略
	b := NewBus()
	b.Subscribe(nil)
	require.NotPanics(t, func() { b.Publish(nil) })
}
