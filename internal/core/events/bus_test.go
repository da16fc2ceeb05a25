package events

import (
	"errors"
	"testing"
	"time"
)

type testObserver struct {
	publishCount   int
	deliveredCount int
	lastErr        error
}

func (o *testObserver) OnPublish(string, Event) {
	o.publishCount++
}

func (o *testObserver) OnDelivered(_ string, handlers int, err error, _ time.Duration) {
	o.deliveredCount += handlers
	o.lastErr = err
}

func TestBasicPublishSubscribe(t *testing.T) {
	b := New()
	var got Event
	_, err := b.Subscribe(TickApplied, func(e Event) error {
		got = e
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err = b.Publish(NewEvent(TickApplied, "replica", Applied{Tick: 4})); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got == nil {
		t.Fatal("handler not called")
	}
	if a, ok := got.Data().(Applied); !ok || a.Tick != 4 {
		t.Fatalf("unexpected payload %#v", got.Data())
	}
}

func TestHandlersRunInSubscriptionOrder(t *testing.T) {
	b := New()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		_, _ = b.Subscribe("ev", func(Event) error { order = append(order, i); return nil })
	}
	_ = b.Publish(NewEvent("ev", "src", nil))
	for i, v := range order {
		if v != i {
			t.Fatalf("order %v", order)
		}
	}
}

func TestSubscribeAllSeesEveryType(t *testing.T) {
	b := New()
	var types []string
	_, _ = b.SubscribeAll(func(e Event) error { types = append(types, e.Type()); return nil })
	_ = b.Publish(NewEvent(ReplicaDerived, "replica", nil))
	_ = b.Publish(NewEvent(RemoteDropped, "remote", nil))
	if len(types) != 2 || types[0] != ReplicaDerived || types[1] != RemoteDropped {
		t.Fatalf("got %v", types)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	b := New()
	count := 0
	sub, _ := b.Subscribe("ev", func(Event) error { count++; return nil })
	_ = b.Publish(NewEvent("ev", "src", nil))
	if err := b.Unsubscribe(sub); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	_ = sub.Cancel()
	_ = b.Publish(NewEvent("ev", "src", nil))
	if count != 1 || sub.IsActive() {
		t.Fatalf("count %d active %v", count, sub.IsActive())
	}
}

func TestHandlerErrorsAreJoined(t *testing.T) {
	b := New()
	e1, e2 := errors.New("one"), errors.New("two")
	_, _ = b.Subscribe("x", func(Event) error { return e1 })
	_, _ = b.Subscribe("x", func(Event) error { return e2 })
	err := b.Publish(NewEvent("x", "src", nil))
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Fatalf("expected both errors, got %v", err)
	}

	if err := <-b.PublishAsync(NewEvent("x", "src", nil)); err == nil {
		t.Fatal("expected async error")
	}
}

func TestFilterDropsEvent(t *testing.T) {
	b := New()
	count := 0
	_, _ = b.Subscribe("ev", func(Event) error { count++; return nil })
	obs := &testObserver{}
	b.AddObserver(obs)
	_ = b.PublishWithFilters(NewEvent("ev", "src", nil), func(e Event) bool { return e.Source() != "src" })
	if count != 0 {
		t.Fatal("filtered event was delivered")
	}
	if b.Metrics().DroppedByFilters != 1 {
		t.Fatalf("metrics %+v", b.Metrics())
	}
}

func TestObserverMetricsOptional(t *testing.T) {
	b := New()
	_, _ = b.Subscribe("e", func(Event) error { return nil })
	_ = b.Publish(NewEvent("e", "s", nil))
	if m := b.Metrics(); m.Published != 0 {
		t.Fatalf("metrics should be zero without observers: %+v", m)
	}

	obs := &testObserver{}
	b.AddObserver(obs)
	_ = b.Publish(NewEvent("e", "s", nil))
	if m := b.Metrics(); m.Published != 1 || m.DeliveredHandlers != 1 {
		t.Fatalf("metrics should update with observer: %+v", m)
	}
	if obs.publishCount != 1 || obs.deliveredCount != 1 {
		t.Fatalf("observer not called: %+v", obs)
	}

	b.RemoveObserver(obs)
	_ = b.Publish(NewEvent("e", "s", nil))
	if obs.publishCount != 1 {
		t.Fatal("removed observer still called")
	}
}
