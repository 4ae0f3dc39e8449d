package events

import (
	"context"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/macropulse/internal/interfaces"
)

func TestPublish_DeliversToSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	got := make(chan interfaces.Event, 1)
	err := svc.Subscribe(interfaces.EventSnapshotCaptured, func(ctx context.Context, e interfaces.Event) error {
		got <- e
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	event := interfaces.Event{Type: interfaces.EventSnapshotCaptured, Payload: "snap"}
	if err := svc.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case e := <-got:
		if e.Payload != "snap" {
			t.Errorf("payload = %v, want snap", e.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler was never invoked")
	}
}

func TestSubscribe_NilHandler(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	if err := svc.Subscribe(interfaces.EventSnapshotCaptured, nil); err == nil {
		t.Error("Subscribe(nil) = nil, want error")
	}
}

func TestPublish_NoSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	if err := svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventAnalysisRefreshed}); err != nil {
		t.Errorf("Publish() error = %v, want nil with no subscribers", err)
	}
}

func TestPublish_HandlerOutlivesPublisherContext(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	cancelled := make(chan struct{})
	ctxErr := make(chan error, 1)
	err := svc.Subscribe(interfaces.EventAnalysisRefreshed, func(ctx context.Context, e interfaces.Event) error {
		<-cancelled
		ctxErr <- ctx.Err()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := svc.Publish(ctx, interfaces.Event{Type: interfaces.EventAnalysisRefreshed}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	// Cancel the publisher's context while the handler is still running, as
	// a poll cycle does the moment it returns.
	cancel()
	close(cancelled)

	select {
	case err := <-ctxErr:
		if err != nil {
			t.Errorf("handler context error = %v, want nil after publisher cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler was never invoked")
	}
}
