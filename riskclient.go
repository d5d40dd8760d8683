package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Scorer calls an upstream risk model and returns its raw JSON verdict.
type Scorer interface {
	Score(ctx context.Context, prompt string) (json.RawMessage, error)
	Close() error
}

// upstreamAssessment is the part of the upstream payload we interpret.
// Everything else passes through untouched as RiskResult.Details.
type upstreamAssessment struct {
	OverallRiskLevel *string        `json:"overall_risk_level"`
	OverallScore     assessmentScore `json:"overall_score"`
}

// assessmentScore accepts a JSON number or a string holding one. Any other
// value reads as zero without failing the assessment.
type assessmentScore float64

func (s *assessmentScore) UnmarshalJSON(data []byte) error {
	var f float64
	if json.Unmarshal(data, &f) == nil {
		*s = assessmentScore(f)
		return nil
	}
	var str string
	if json.Unmarshal(data, &str) == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(str), 64); err == nil {
			*s = assessmentScore(f)
			return nil
		}
	}
	*s = 0
	return nil
}

// RiskClient owns the call to the scoring backend and its failure policy.
// It only runs inside the daemon.
type RiskClient struct {
	scorer Scorer
}

// NewRiskClient creates a client around scorer.
func NewRiskClient(scorer Scorer) *RiskClient {
	return &RiskClient{scorer: scorer}
}

// Evaluate scores prompt once. It never returns an error: every failure
// degrades to the low-risk default.
func (c *RiskClient) Evaluate(ctx context.Context, prompt string) RiskResult {
	if strings.TrimSpace(prompt) == "" {
		return lowRisk()
	}

	raw, err := c.scorer.Score(ctx, prompt)
	if err != nil {
		logDecision("", "ALLOW", "fail-safe", "risk backend: "+err.Error())
		return lowRisk()
	}

	result, err := NormalizeAssessment(raw)
	if err != nil {
		logDecision("", "ALLOW", "fail-safe", err.Error())
		return lowRisk()
	}
	return result
}

// Close releases the scorer.
func (c *RiskClient) Close() error {
	return c.scorer.Close()
}

// NormalizeAssessment maps an upstream payload onto the internal two-level
// scale with a 0-100 score.
func NormalizeAssessment(raw json.RawMessage) (RiskResult, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return RiskResult{}, fmt.Errorf("assessment is not a JSON object")
	}

	var a upstreamAssessment
	if err := json.Unmarshal(trimmed, &a); err != nil {
		return RiskResult{}, fmt.Errorf("decode assessment: %w", err)
	}

	level := ""
	if a.OverallRiskLevel != nil {
		level = *a.OverallRiskLevel
	}
	return RiskResult{
		Level:   MapRiskLevel(level),
		Score:   NormalizeScore(float64(a.OverallScore)),
		Details: json.RawMessage(trimmed),
	}, nil
}

// MapRiskLevel collapses the upstream vocabulary: only "high" and "critical"
// (any case) are high.
func MapRiskLevel(upstream string) RiskLevel {
	switch strings.ToLower(upstream) {
	case "high", "critical":
		return RiskHigh
	default:
		return RiskLow
	}
}

// NormalizeScore converts a fractional score to percent, rounds it and
// clamps it to 0-100.
func NormalizeScore(score float64) int {
	if math.IsNaN(score) {
		return 0
	}
	if score > 0 && score < 1 {
		score *= 100
	}
	score = math.Round(score)
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return int(score)
}
