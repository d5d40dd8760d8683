package main

import (
	"encoding/json"
	"strings"
)

// RiskLevel is the internal two-tier risk classification.
type RiskLevel string

const (
	RiskLow  RiskLevel = "low"
	RiskHigh RiskLevel = "high"
)

// Platform identifies which chat service an intercepted call targets.
type Platform string

const (
	PlatformChatGPT Platform = "ChatGPT"
	PlatformClaude  Platform = "Claude"
)

// Decision is the outcome of the high-risk confirmation.
type Decision int

const (
	DecisionBlock    Decision = iota // Confirmed: do not send
	DecisionOverride                 // Send anyway
)

func (d Decision) String() string {
	switch d {
	case DecisionBlock:
		return "BLOCK"
	default:
		return "OVERRIDE"
	}
}

// InterceptedCall is one outgoing call that matched a target platform.
type InterceptedCall struct {
	URL      string
	Body     []byte
	Platform Platform
}

// ExtractedPrompt holds the display fields pulled out of a request body.
type ExtractedPrompt struct {
	Text        string
	User        string
	Timestamp   string
	Model       string
	Attachments string
}

// Empty reports whether there is nothing worth scoring.
func (p ExtractedPrompt) Empty() bool {
	return strings.TrimSpace(p.Text) == ""
}

// RiskQuery is sent from the relay to the daemon via Unix socket.
type RiskQuery struct {
	Prompt    string `json:"prompt"`
	RequestID string `json:"request_id"`
}

// RiskResult is sent from the daemon back to the relay via Unix socket.
type RiskResult struct {
	Level   RiskLevel       `json:"level"`
	Score   int             `json:"score"`
	Details json.RawMessage `json:"details,omitempty"`
}

// lowRisk is the result every failure path degrades to.
func lowRisk() RiskResult {
	return RiskResult{Level: RiskLow, Score: 0}
}

// Message types carried on the Bus.
const (
	MessageRiskQuery = "risk-query"
	MessageRiskReply = "risk-reply"
)

// Message is the envelope posted on the Bus between the interceptor and the relay.
type Message struct {
	Origin    string      `json:"origin"`
	Type      string      `json:"type"`
	RequestID string      `json:"request_id"`
	Prompt    string      `json:"prompt,omitempty"`
	Result    *RiskResult `json:"result,omitempty"`
}
