package eventbus_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redditpulse/scraper/internal/eventbus"
)

func TestBus_PublishDeliversToAllSubscribers(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	subA := bus.Subscribe()
	defer subA.Cleanup()
	subB := bus.Subscribe()
	defer subB.Cleanup()

	bus.Publish(eventbus.Event{Type: eventbus.EventProgress, SessionID: "s1"})

	for _, sub := range []*eventbus.Subscription{subA, subB} {
		select {
		case ev := <-sub.Events:
			assert.Equal(t, eventbus.EventProgress, ev.Type)
			assert.Equal(t, "s1", ev.SessionID)
		case <-time.After(time.Second):
			t.Fatal("expected event to be delivered")
		}
	}
}

func TestBus_SubscribeFiltersByType(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	sub := bus.Subscribe(eventbus.EventSessionFailed)
	defer sub.Cleanup()

	bus.Publish(eventbus.Event{Type: eventbus.EventProgress})
	bus.Publish(eventbus.Event{Type: eventbus.EventSessionFailed})

	select {
	case ev := <-sub.Events:
		assert.Equal(t, eventbus.EventSessionFailed, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected the filtered event to be delivered")
	}

	select {
	case ev := <-sub.Events:
		t.Fatalf("unexpected second event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_SlowSubscriberDropsIsolatedFromOthers(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	slow := bus.Subscribe()
	defer slow.Cleanup()
	fast := bus.Subscribe()
	defer fast.Cleanup()

	stop := make(chan struct{})
	drained := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-fast.Events:
				drained++
			case <-stop:
				return
			}
		}
	}()

	const overflow = 200
	for i := 0; i < overflow; i++ {
		bus.Publish(eventbus.Event{Type: eventbus.EventMetric})
	}
	close(stop)
	<-done

	require.Greater(t, slow.DropCount(), int64(0))
	assert.Greater(t, drained, 0)
	assert.Equal(t, int64(0), fast.DropCount())
}

func TestBus_CleanupStopsFurtherDelivery(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	sub := bus.Subscribe()
	sub.Cleanup()

	assert.Equal(t, 0, bus.SubscriberCount())
	bus.Publish(eventbus.Event{Type: eventbus.EventProgress}) // must not panic or block
}
