package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/opensource-finance/discern/internal/analysis"
	"github.com/opensource-finance/discern/internal/bus"
	"github.com/opensource-finance/discern/internal/catalog"
	"github.com/opensource-finance/discern/internal/domain"
	"go.uber.org/goleak"
)

const highThreat = "Act now! Limited time, only today, exclusive last chance before the deadline, everyone is running out."

func newService(t *testing.T, b domain.EventBus) *analysis.Service {
	t.Helper()
	c, err := catalog.Load()
	if err != nil {
		t.Fatalf("failed to load catalog: %v", err)
	}
	return analysis.New(c, analysis.Options{Bus: b})
}

func submit(t *testing.T, b domain.EventBus, tenantID string, s Submission) Result {
	t.Helper()
	payload, _ := json.Marshal(s)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := b.Request(ctx, tenantID, domain.TopicTextSubmitted, payload)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatalf("bad reply %s: %v", raw, err)
	}
	return res
}

func TestWorker(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, newService(t, eventBus))
		if err := w.Start(Config{TenantIDs: []string{"tenant-001", "tenant-002"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions, got %d", stats.SubscriptionCount)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if stats := w.GetStats(); stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("DefaultTenant", func(t *testing.T) {
		w := NewWorker(eventBus, newService(t, eventBus))
		if err := w.Start(Config{}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		res := submit(t, eventBus, domain.DefaultTenant, Submission{Text: highThreat})
		if res.Report == nil || res.Report.ManipulationScore != 80 {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("DetectorSubmission", func(t *testing.T) {
		w := NewWorker(eventBus, newService(t, eventBus))
		if err := w.Start(Config{TenantIDs: []string{"tenant-001"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		res := submit(t, eventBus, "tenant-001", Submission{Detector: "love-bombing", Selected: []int{0, 1}})
		if res.Verdict == nil || res.Verdict.Count != 2 {
			t.Errorf("unexpected result: %+v", res)
		}

		res = submit(t, eventBus, "tenant-001", Submission{Detector: "missing", Text: "x"})
		if res.Error == "" {
			t.Error("expected error reply for unknown detector")
		}

		stats := w.GetStats()
		if stats.Processed != 1 || stats.Failed != 1 {
			t.Errorf("expected 1 processed and 1 failed, got %+v", stats)
		}
	})

	t.Run("PublishesCompletion", func(t *testing.T) {
		w := NewWorker(eventBus, newService(t, eventBus))
		if err := w.Start(Config{TenantIDs: []string{"tenant-003"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		completed := make(chan *domain.Message, 1)
		sub, _ := eventBus.Subscribe(context.Background(), "tenant-003", domain.TopicAnalysisCompleted, func(ctx context.Context, msg *domain.Message) error {
			completed <- msg
			return nil
		})
		defer sub.Unsubscribe()

		payload, _ := json.Marshal(Submission{Text: highThreat})
		if err := eventBus.Publish(context.Background(), "tenant-003", domain.TopicTextSubmitted, payload); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		select {
		case msg := <-completed:
			var a domain.Analysis
			if err := json.Unmarshal(msg.Payload, &a); err != nil {
				t.Fatalf("bad completion payload: %v", err)
			}
			if a.Kind != domain.KindDetect || a.Score != 80 {
				t.Errorf("unexpected completion: %+v", a)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for analysis.completed")
		}
	})
}
