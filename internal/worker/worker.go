// Package worker analyses texts submitted asynchronously over the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/discern/internal/domain"
	"github.com/opensource-finance/discern/internal/scoring"
)

// Processor is the part of the analysis service the worker drives.
type Processor interface {
	Detect(ctx context.Context, tenantID, text string) (*domain.ThreatReport, error)
	Analyze(ctx context.Context, tenantID, detectorID string, in scoring.Input) (*domain.Verdict, error)
}

// Worker consumes discern.text.submitted messages. The analysis service
// publishes discern.analysis.completed itself; the worker additionally
// answers submissions that were sent as requests.
type Worker struct {
	bus       domain.EventBus
	processor Processor

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs lists the tenants to consume for. Empty means the default tenant.
	TenantIDs []string
}

// Submission is the payload of discern.text.submitted.
// Without a detector the text runs through the multi-category threat scorer.
type Submission struct {
	Text     string `json:"text"`
	Detector string `json:"detector,omitempty"`
	Selected []int  `json:"selected,omitempty"`
}

// Result is the reply to a submission sent as a request.
type Result struct {
	Report  *domain.ThreatReport `json:"report,omitempty"`
	Verdict *domain.Verdict      `json:"verdict,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, processor Processor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		processor: processor,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to submissions for the configured tenants.
func (w *Worker) Start(cfg Config) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{domain.DefaultTenant}
	}

	started := 0
	for _, tenantID := range tenants {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicTextSubmitted, w.handleMessage)
		if err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		w.mu.Lock()
		w.subscriptions = append(w.subscriptions, sub)
		w.mu.Unlock()
		started++
	}

	if started == 0 {
		return fmt.Errorf("worker: no tenant subscriptions could be started")
	}

	slog.Info("workers started",
		"tenant_count", started,
		"topic", domain.TopicTextSubmitted,
	)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	result, err := w.process(ctx, msg)
	if err != nil {
		w.failed.Add(1)
		slog.Error("submission failed",
			"message_id", msg.ID,
			"tenant_id", msg.TenantID,
			"error", err,
		)
		result = &Result{Error: err.Error()}
	} else {
		w.processed.Add(1)
		slog.Debug("submission processed",
			"message_id", msg.ID,
			"tenant_id", msg.TenantID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	if msg.ReplyTo == "" {
		return err
	}
	payload, mErr := json.Marshal(result)
	if mErr != nil {
		return mErr
	}
	if rErr := w.bus.Reply(ctx, msg, payload); rErr != nil {
		slog.Warn("failed to reply to submission",
			"message_id", msg.ID,
			"error", rErr,
		)
	}
	return err
}

func (w *Worker) process(ctx context.Context, msg *domain.Message) (*Result, error) {
	var sub Submission
	if err := json.Unmarshal(msg.Payload, &sub); err != nil {
		return nil, fmt.Errorf("decode submission: %w", err)
	}

	if sub.Detector == "" {
		report, err := w.processor.Detect(ctx, msg.TenantID, sub.Text)
		if err != nil {
			return nil, err
		}
		return &Result{Report: report}, nil
	}

	verdict, err := w.processor.Analyze(ctx, msg.TenantID, sub.Detector, scoring.Input{
		Text:     sub.Text,
		Selected: sub.Selected,
	})
	if err != nil {
		return nil, err
	}
	return &Result{Verdict: verdict}, nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	slog.Info("workers stopped",
		"processed", w.processed.Load(),
		"failed", w.failed.Load(),
	)
	return nil
}

// Stats reports worker activity.
type Stats struct {
	SubscriptionCount int      `json:"subscription_count"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
	}
}
