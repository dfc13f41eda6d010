package telemetry

import (
	"testing"

	"github.com/HerbHall/pulseboard/pkg/models"
	"go.uber.org/zap"
)

func TestBus_PublishDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var got1, got2 []string
	bus.Subscribe(func(s models.MetricSample) { got1 = append(got1, s.DeviceID) })
	bus.Subscribe(func(s models.MetricSample) { got2 = append(got2, s.DeviceID) })

	bus.Publish(models.MetricSample{DeviceID: "dev-a"})
	bus.Publish(models.MetricSample{DeviceID: "dev-b"})

	for i, got := range [][]string{got1, got2} {
		if len(got) != 2 || got[0] != "dev-a" || got[1] != "dev-b" {
			t.Errorf("subscriber %d received %v, want [dev-a dev-b]", i+1, got)
		}
	}
}

func TestBus_NoReplayForLateSubscriber(t *testing.T) {
	bus := NewBus(zap.NewNop())
	bus.Publish(models.MetricSample{DeviceID: "early"})

	var got []string
	bus.Subscribe(func(s models.MetricSample) { got = append(got, s.DeviceID) })

	if len(got) != 0 {
		t.Errorf("late subscriber received %v, want nothing", got)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var count int
	unsubscribe := bus.Subscribe(func(models.MetricSample) { count++ })

	bus.Publish(models.MetricSample{DeviceID: "one"})
	unsubscribe()
	bus.Publish(models.MetricSample{DeviceID: "two"})

	if count != 1 {
		t.Errorf("handler called %d times, want 1", count)
	}

	// Calling unsubscribe again is a no-op.
	unsubscribe()
	if got := bus.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount = %d, want 0", got)
	}
}

func TestBus_PanickingSubscriberDoesNotStopDispatch(t *testing.T) {
	bus := NewBus(zap.NewNop())

	bus.Subscribe(func(models.MetricSample) { panic("boom") })

	var delivered bool
	bus.Subscribe(func(models.MetricSample) { delivered = true })

	bus.Publish(models.MetricSample{DeviceID: "dev"})

	if !delivered {
		t.Error("second subscriber not reached after first panicked")
	}
}
