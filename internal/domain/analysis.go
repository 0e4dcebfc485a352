package domain

import (
	"encoding/json"
	"time"
)

// DefaultTenant is used when a caller does not identify a tenant.
const DefaultTenant = "public"

// AnalysisKind names the operation that produced an Analysis.
type AnalysisKind string

const (
	KindDetect    AnalysisKind = "detect"
	KindText      AnalysisKind = "text"
	KindChecklist AnalysisKind = "checklist"
	KindQuick     AnalysisKind = "quick"
	KindChat      AnalysisKind = "chat"
)

// Analysis is one audit log entry. Raw input text is never stored, only its hash.
type Analysis struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	Kind         AnalysisKind    `json:"kind"`
	DefinitionID string          `json:"definition_id,omitempty"`
	Tier         Tier            `json:"tier"`
	Score        int             `json:"score"`
	TextHash     string          `json:"text_hash"`
	Report       json.RawMessage `json:"report"`
	Alerts       []Alert         `json:"alerts,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// EscalationRule is an operator-defined CEL condition over a threat report.
type EscalationRule struct {
	ID          string    `json:"id" yaml:"id"`
	TenantID    string    `json:"tenant_id" yaml:"-"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Expression  string    `json:"expression" yaml:"expression"`
	Severity    Tier      `json:"severity" yaml:"severity"`
	Enabled     bool      `json:"enabled" yaml:"enabled"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
}

// Alert is a triggered escalation rule.
type Alert struct {
	RuleID   string `json:"rule_id"`
	Name     string `json:"name"`
	Severity Tier   `json:"severity"`
	Reason   string `json:"reason,omitempty"`
}

// ChatTurn is one prior message in a chat conversation.
type ChatTurn struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

// Chat reply modes.
const (
	ChatModeAssistant = "assistant"
	ChatModeFallback  = "pattern-analysis"
)

// ChatReply is the answer to a chat message together with the local
// truth analysis of that message.
type ChatReply struct {
	Response   string   `json:"response"`
	Mode       string   `json:"mode"`
	Analysis   *Verdict `json:"analysis"`
	AnalysisID string   `json:"analysis_id,omitempty"`
}
