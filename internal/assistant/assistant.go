// Package assistant reaches a conversational upstream over the event bus
// and builds the local pattern-analysis reply used when it is unavailable.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opensource-finance/discern/internal/domain"
)

// DefaultTimeout bounds a single upstream request.
const DefaultTimeout = 5 * time.Second

// Request is the payload sent to the assistant topic.
type Request struct {
	Message string            `json:"message"`
	History []domain.ChatTurn `json:"history,omitempty"`
}

// Response is the payload an assistant replies with.
type Response struct {
	Response string `json:"response"`
}

// BusAssistant forwards chat messages to whatever service answers
// request-reply messages on its topic.
type BusAssistant struct {
	bus     domain.EventBus
	topic   string
	timeout time.Duration
}

// NewBusAssistant creates an assistant client. It returns nil when the
// assistant is disabled or there is no bus to reach it through.
func NewBusAssistant(bus domain.EventBus, cfg domain.AssistantConfig) *BusAssistant {
	if !cfg.Enabled || bus == nil {
		return nil
	}
	topic := cfg.Topic
	if topic == "" {
		topic = domain.TopicAssistantRequest
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &BusAssistant{bus: bus, topic: topic, timeout: timeout}
}

// Reply asks the upstream to answer message. Every failure, including a
// timeout or an empty answer, is reported as domain.ErrUpstreamUnavailable.
func (a *BusAssistant) Reply(ctx context.Context, tenantID, message string, history []domain.ChatTurn) (string, error) {
	if a == nil {
		return "", domain.ErrUpstreamUnavailable
	}

	payload, err := json.Marshal(Request{Message: message, History: history})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", domain.ErrUpstreamUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.bus.Request(ctx, tenantID, a.topic, payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("%w: decode reply: %v", domain.ErrUpstreamUnavailable, err)
	}
	if strings.TrimSpace(resp.Response) == "" {
		return "", fmt.Errorf("%w: empty reply", domain.ErrUpstreamUnavailable)
	}
	return resp.Response, nil
}

// Handler answers one assistant request.
type Handler func(ctx context.Context, req Request) (string, error)

// Serve subscribes handler to the assistant topic of tenantID and replies
// to every request it receives.
func Serve(ctx context.Context, bus domain.EventBus, tenantID, topic string, handler Handler) (domain.Subscription, error) {
	if topic == "" {
		topic = domain.TopicAssistantRequest
	}
	return bus.Subscribe(ctx, tenantID, topic, func(ctx context.Context, msg *domain.Message) error {
		var req Request
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return fmt.Errorf("decode assistant request: %w", err)
		}

		text, err := handler(ctx, req)
		if err != nil {
			slog.Warn("assistant handler failed", "tenant_id", msg.TenantID, "error", err)
			return err
		}

		out, err := json.Marshal(Response{Response: text})
		if err != nil {
			return err
		}
		return bus.Reply(ctx, msg, out)
	})
}
