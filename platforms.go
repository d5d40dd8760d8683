package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// displayTimeLayout mirrors the browser's default locale string.
const displayTimeLayout = "1/2/2006, 3:04:05 PM"

// Extractor recognizes one chat platform's API calls and pulls the prompt
// out of their request bodies.
type Extractor interface {
	Platform() Platform
	Match(url string) bool
	Extract(body []byte, now time.Time) (ExtractedPrompt, error)
}

// extractors is the closed set of supported platforms, checked in order.
var extractors = []Extractor{
	chatGPTExtractor{},
	claudeExtractor{},
}

// DetectPlatform returns the extractor whose URL markers match, or nil.
func DetectPlatform(url string) Extractor {
	for _, e := range extractors {
		if e.Match(url) {
			return e
		}
	}
	return nil
}

// --- ChatGPT ---

type chatGPTExtractor struct{}

func (chatGPTExtractor) Platform() Platform { return PlatformChatGPT }

func (chatGPTExtractor) Match(url string) bool {
	return strings.Contains(url, "/backend-api/conversation") ||
		strings.Contains(url, "/backend-api/f/conversation")
}

func (chatGPTExtractor) Extract(body []byte, now time.Time) (ExtractedPrompt, error) {
	req, err := decodeObject(body)
	if err != nil {
		return ExtractedPrompt{}, fmt.Errorf("parse chatgpt body: %w", err)
	}

	p := ExtractedPrompt{
		User:        "unknown",
		Timestamp:   "unknown",
		Model:       "N/A",
		Attachments: "None",
	}
	if model, ok := req.scalar("model"); ok && model != "" {
		p.Model = model
	}

	messages := req.array("messages")
	if len(messages) == 0 {
		return p, nil
	}
	msg, _ := decodeObject(messages[0])

	if role, ok := msg.object("author").str("role"); ok && role != "" {
		p.User = role
	}
	if ts, ok := msg.number("create_time"); ok && ts != 0 {
		p.Timestamp = formatEpoch(ts)
	}
	// Non-text parts (images, files) are objects; only a string part is a prompt.
	if parts := msg.object("content").array("parts"); len(parts) > 0 {
		var text string
		if json.Unmarshal(parts[0], &text) == nil {
			p.Text = text
		}
	}
	if n := len(msg.object("metadata").array("selected_github_repos")); n > 0 {
		p.Attachments = fmt.Sprintf("Yes (%d repos)", n)
	}
	return p, nil
}

func formatEpoch(seconds float64) string {
	sec := int64(seconds)
	nsec := int64((seconds - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).Local().Format(displayTimeLayout)
}

// --- Claude.ai ---

type claudeExtractor struct{}

func (claudeExtractor) Platform() Platform { return PlatformClaude }

func (claudeExtractor) Match(url string) bool {
	return strings.Contains(url, "claude.ai/api/") && strings.Contains(url, "/completion")
}

func (claudeExtractor) Extract(body []byte, now time.Time) (ExtractedPrompt, error) {
	req, err := decodeObject(body)
	if err != nil {
		return ExtractedPrompt{}, fmt.Errorf("parse claude body: %w", err)
	}

	prompt, _ := req.str("prompt")
	p := ExtractedPrompt{
		Text:        prompt,
		User:        "user",
		Timestamp:   now.Local().Format(displayTimeLayout),
		Model:       "Claude",
		Attachments: "None",
	}
	if n := len(req.array("attachments")) + len(req.array("files")); n > 0 {
		p.Attachments = fmt.Sprintf("%d attachment(s)", n)
	}
	return p, nil
}

// --- Lenient field access ---

// jsonObject gives field-by-field access to a request body. A field of the
// wrong type reads as absent, so only that field falls back to its default.
type jsonObject map[string]json.RawMessage

// decodeObject fails only when data is not a JSON object.
func decodeObject(data []byte) (jsonObject, error) {
	var o jsonObject
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("body is not a JSON object")
	}
	return o, nil
}

func (o jsonObject) object(key string) jsonObject {
	var v jsonObject
	if json.Unmarshal(o[key], &v) != nil {
		return nil
	}
	return v
}

func (o jsonObject) array(key string) []json.RawMessage {
	var v []json.RawMessage
	if json.Unmarshal(o[key], &v) != nil {
		return nil
	}
	return v
}

func (o jsonObject) str(key string) (string, bool) {
	var v string
	if json.Unmarshal(o[key], &v) != nil {
		return "", false
	}
	return v, true
}

// number accepts a JSON number or a string holding one.
func (o jsonObject) number(key string) (float64, bool) {
	var v float64
	if json.Unmarshal(o[key], &v) == nil {
		return v, true
	}
	if s, ok := o.str(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// scalar renders a string or number field as display text.
func (o jsonObject) scalar(key string) (string, bool) {
	if s, ok := o.str(key); ok {
		return s, true
	}
	var n json.Number
	if json.Unmarshal(o[key], &n) == nil {
		return n.String(), true
	}
	return "", false
}
