package event

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var received Event
	var wg sync.WaitGroup
	wg.Add(1)

	unsub := bus.Subscribe(ApprovalRequested, func(e Event) {
		received = e
		wg.Done()
	})
	defer unsub()

	bus.Publish(Event{Type: ApprovalRequested, Data: "req-1"})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if received.Type != ApprovalRequested {
			t.Errorf("expected ApprovalRequested, got %v", received.Type)
		}
		if received.Data != "req-1" {
			t.Errorf("expected 'req-1', got %v", received.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int32
	var wg sync.WaitGroup
	wg.Add(3)

	unsub := bus.SubscribeAll(func(e Event) {
		atomic.AddInt32(&count, 1)
		wg.Done()
	})
	defer unsub()

	bus.Publish(Event{Type: ApprovalRequested, Data: nil})
	bus.Publish(Event{Type: ApprovalResolved, Data: nil})
	bus.Publish(Event{Type: SettingsUpdated, Data: nil})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if atomic.LoadInt32(&count) != 3 {
			t.Errorf("expected 3 events, got %d", count)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for events")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int32
	unsub := bus.Subscribe(ApprovalResolved, func(e Event) {
		atomic.AddInt32(&count, 1)
	})

	bus.PublishSync(Event{Type: ApprovalResolved})
	unsub()
	bus.PublishSync(Event{Type: ApprovalResolved})

	if got := atomic.LoadInt32(&count); got != 1 {
		t.Errorf("expected 1 delivery after unsubscribe, got %d", got)
	}
}

func TestBus_UnsubscribeDoesNotAffectOthers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var a, b int32
	unsubA := bus.Subscribe(ApprovalRequested, func(e Event) { atomic.AddInt32(&a, 1) })
	unsubB := bus.Subscribe(ApprovalRequested, func(e Event) { atomic.AddInt32(&b, 1) })
	defer unsubB()

	unsubA()
	bus.PublishSync(Event{Type: ApprovalRequested})

	if atomic.LoadInt32(&a) != 0 {
		t.Error("unsubscribed listener still received event")
	}
	if atomic.LoadInt32(&b) != 1 {
		t.Error("remaining listener missed event")
	}
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := NewBus()

	var count int32
	bus.Subscribe(ApprovalRequested, func(e Event) { atomic.AddInt32(&count, 1) })

	if err := bus.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Publishing after close must not panic or deliver.
	bus.PublishSync(Event{Type: ApprovalRequested})
	if atomic.LoadInt32(&count) != 0 {
		t.Error("listener received event after close")
	}
}
