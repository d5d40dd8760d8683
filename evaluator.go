package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/victorarias/claude-agent-sdk-go/sdk"
	"github.com/victorarias/claude-agent-sdk-go/types"
)

// DefaultModel is the default model used by the claude backend.
const DefaultModel = "claude-opus-4-5-20251101"

const systemPrompt = `You are a risk assessor for prompts that a user is about to send to a third-party AI chat service. Decide how risky it is to let the prompt leave the organization.

RESPOND WITH ONLY ONE JSON OBJECT AND NOTHING ELSE:
{"overall_risk_level": "<low|medium|high|critical>", "overall_score": <integer 0-100>, "reason": "<one short sentence>"}

# Raise the level for
- Credentials, API keys, tokens, private keys, passwords
- Personal data: names with contact details, government IDs, health or financial records
- Proprietary source code, internal hostnames, unreleased product or financial information
- Requests for instructions that facilitate physical harm, intrusion or fraud

# Keep the level low for
- General knowledge questions, public documentation, small generic code snippets
- Writing help that contains no sensitive data

# Calibration
- critical: secrets or regulated data are clearly present
- high: likely sensitive data or clearly harmful intent
- medium: ambiguous, possibly sensitive
- low: nothing sensitive`

// ClaudeScorer asks a Claude model for an assessment shaped like the Orcho
// API response.
type ClaudeScorer struct {
	model string
}

// NewClaudeScorer creates a scorer that uses the Claude API.
func NewClaudeScorer(model string) *ClaudeScorer {
	return &ClaudeScorer{model: model}
}

func (s *ClaudeScorer) Score(ctx context.Context, prompt string) (json.RawMessage, error) {
	messages, err := sdk.RunQuery(ctx, FormatPrompt(prompt),
		types.WithModel(s.model),
		types.WithMaxTurns(1),
		types.WithSystemPrompt(systemPrompt),
	)
	if err != nil {
		return nil, fmt.Errorf("SDK error: %w", err)
	}

	var responseText string
	for _, msg := range messages {
		if m, ok := msg.(*types.AssistantMessage); ok {
			responseText = m.Text()
			break
		}
	}

	if responseText == "" {
		return nil, fmt.Errorf("empty response")
	}

	return ParseAssessment(responseText)
}

func (s *ClaudeScorer) Close() error {
	return nil
}

// FormatPrompt creates the assessment prompt for Claude.
func FormatPrompt(prompt string) string {
	return fmt.Sprintf("Prompt to assess:\n<prompt>\n%s\n</prompt>\n\nRespond with the JSON object only.", prompt)
}

// ParseAssessment extracts the first JSON object from a model response.
// Models sometimes wrap the object in prose or a code fence.
func ParseAssessment(responseText string) (json.RawMessage, error) {
	start := strings.Index(responseText, "{")
	end := strings.LastIndex(responseText, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	candidate := responseText[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return nil, fmt.Errorf("invalid JSON in response")
	}
	return json.RawMessage(candidate), nil
}
