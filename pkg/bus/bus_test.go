package bus

import (
	"context"
	"testing"
	"time"
)

func TestEventBus_EmitDropsWhenBufferFull(t *testing.T) {
	eb := NewEventBus()
	defer eb.Close()

	for i := 0; i < cap(eb.status); i++ {
		eb.Emit(StatusEvent{Type: EventStatusChange, Status: StatusIdle})
	}

	eb.Emit(StatusEvent{Type: EventStatusChange, Status: StatusIdle})
	if eb.DroppedStatus() != 1 {
		t.Fatalf("expected dropped status count 1, got %d", eb.DroppedStatus())
	}
}

func TestEventBus_SendControlDropsWhenBufferFull(t *testing.T) {
	eb := NewEventBus()
	defer eb.Close()

	for i := 0; i < cap(eb.control); i++ {
		eb.SendControl(ControlEvent{Type: EventShutdownRequest})
	}

	eb.SendControl(ControlEvent{Type: EventShutdownRequest})
	if eb.DroppedControl() != 1 {
		t.Fatalf("expected dropped control count 1, got %d", eb.DroppedControl())
	}
}

func TestEventBus_ClosedChannelsReturnFalse(t *testing.T) {
	eb := NewEventBus()
	eb.Close()

	if _, ok := eb.NextStatus(context.Background()); ok {
		t.Fatalf("expected closed status read to return ok=false")
	}
	if _, ok := eb.NextControl(context.Background()); ok {
		t.Fatalf("expected closed control read to return ok=false")
	}
}

func TestEventBus_StatusOrderPreserved(t *testing.T) {
	eb := NewEventBus()
	defer eb.Close()

	eb.Emit(StatusEvent{Type: EventWakeDetected})
	eb.Emit(StatusEvent{Type: EventListening})
	eb.Emit(StatusEvent{Type: EventCommandReceived})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	want := []EventType{EventWakeDetected, EventListening, EventCommandReceived}
	for _, w := range want {
		ev, ok := eb.NextStatus(ctx)
		if !ok {
			t.Fatalf("expected event %s, bus returned ok=false", w)
		}
		if ev.Type != w {
			t.Fatalf("expected event %s, got %s", w, ev.Type)
		}
	}
}

func TestEventBus_SubscriberSeesEvents(t *testing.T) {
	eb := NewEventBus()
	defer eb.Close()

	var seen []EventType
	eb.Subscribe("test", func(ev StatusEvent) {
		seen = append(seen, ev.Type)
	})

	eb.Emit(StatusEvent{Type: EventWakeDetected})
	eb.Emit(StatusEvent{Type: EventSessionEnded})

	if len(seen) != 2 || seen[0] != EventWakeDetected || seen[1] != EventSessionEnded {
		t.Fatalf("subscriber saw %v", seen)
	}

	eb.Unsubscribe("test")
	eb.Emit(StatusEvent{Type: EventError})
	if len(seen) != 2 {
		t.Fatalf("unsubscribed handler still called, saw %v", seen)
	}
}

func TestEventBus_EmitSetsTimestamp(t *testing.T) {
	eb := NewEventBus()
	defer eb.Close()

	eb.Emit(StatusEvent{Type: EventProcessing})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, ok := eb.NextStatus(ctx)
	if !ok {
		t.Fatal("expected event")
	}
	if ev.Timestamp.IsZero() {
		t.Fatal("expected non-zero timestamp")
	}
}
