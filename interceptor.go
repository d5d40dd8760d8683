package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// BlockedMessage is the error body returned in place of a blocked request.
const BlockedMessage = "High risk request blocked by Orcho Risk Intelligence"

var blockedBody = []byte(`{"error":"` + BlockedMessage + `"}`)

// Querier obtains a risk assessment for a prompt. Implementations must not
// fail; they degrade to the low-risk default instead.
type Querier interface {
	Query(ctx context.Context, prompt string) RiskResult
}

// Interceptor is an http.RoundTripper that holds chat platform requests
// until their prompt has been risk-checked. All other traffic goes straight
// to Base.
type Interceptor struct {
	Base      http.RoundTripper
	Querier   Querier
	Confirmer Confirmer
	Now       func() time.Time
}

// NewInterceptor wraps base. A nil base means http.DefaultTransport.
func NewInterceptor(base http.RoundTripper, querier Querier, confirmer Confirmer) *Interceptor {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Interceptor{
		Base:      base,
		Querier:   querier,
		Confirmer: confirmer,
		Now:       time.Now,
	}
}

// RoundTrip implements http.RoundTripper.
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	extractor := DetectPlatform(req.URL.String())
	if extractor == nil || req.Body == nil || req.Body == http.NoBody {
		return i.Base.RoundTrip(req)
	}

	body, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	restoreBody(req, body)

	call := InterceptedCall{URL: req.URL.String(), Body: body, Platform: extractor.Platform()}
	if i.shouldBlock(req.Context(), extractor, call) {
		return blockedResponse(req), nil
	}

	return i.Base.RoundTrip(req)
}

// shouldBlock runs the decision for one matched call. Any internal fault
// resolves to false.
func (i *Interceptor) shouldBlock(ctx context.Context, extractor Extractor, call InterceptedCall) (block bool) {
	defer func() {
		if r := recover(); r != nil {
			logDecision(call.Platform, "ALLOW", "fail-safe", fmt.Sprintf("interceptor panic: %v", r))
			block = false
		}
	}()

	prompt, err := extractor.Extract(call.Body, i.Now())
	if err != nil {
		logDecision(call.Platform, "ALLOW", "parse-failure", err.Error())
		return false
	}
	if prompt.Empty() {
		logDecision(call.Platform, "ALLOW", "no-prompt", "no prompt detected")
		return false
	}

	result := i.Querier.Query(ctx, prompt.Text)
	if result.Level != RiskHigh {
		logDecision(call.Platform, "ALLOW", "risk", "low risk")
		return false
	}

	decision := i.Confirmer.Confirm(ctx, Confirmation{
		Platform: call.Platform,
		Score:    result.Score,
		Prompt:   prompt,
	})
	logDecision(call.Platform, decision.String(), "user", "high risk")
	return decision == DecisionBlock
}

// restoreBody makes the request readable again, byte for byte, by the
// real transport.
func restoreBody(req *http.Request, body []byte) {
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	req.ContentLength = int64(len(body))
}

// blockedResponse is the substitute returned when the user blocks a call.
func blockedResponse(req *http.Request) *http.Response {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("Content-Length", strconv.Itoa(len(blockedBody)))
	return &http.Response{
		Status:        "403 Forbidden",
		StatusCode:    http.StatusForbidden,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(blockedBody)),
		ContentLength: int64(len(blockedBody)),
		Request:       req,
	}
}
