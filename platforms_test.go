package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		url  string
		want Platform
	}{
		{"https://chatgpt.com/backend-api/conversation", PlatformChatGPT},
		{"https://chatgpt.com/backend-api/f/conversation", PlatformChatGPT},
		{"https://chat.openai.com/backend-api/conversation/abc123", PlatformChatGPT},
		{"https://claude.ai/api/organizations/org-1/chat_conversations/c-1/completion", PlatformClaude},
		{"https://claude.ai/api/organizations/org-1/chat_conversations/c-1/completion?rendering_mode=messages", PlatformClaude},
		{"https://chatgpt.com/backend-api/models", ""},
		{"https://claude.ai/api/organizations/org-1/chat_conversations", ""},
		{"https://example.com/completion", ""},
		{"https://example.com/", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			e := DetectPlatform(tt.url)
			if tt.want == "" {
				assert.Nil(t, e)
				return
			}
			require.NotNil(t, e)
			assert.Equal(t, tt.want, e.Platform())
		})
	}
}

func TestChatGPTExtract(t *testing.T) {
	body := `{
		"action": "next",
		"model": "gpt-5",
		"messages": [{
			"id": "m-1",
			"author": {"role": "user"},
			"create_time": 1700000000.5,
			"content": {"content_type": "text", "parts": ["how do I pick a lock"]},
			"metadata": {"selected_github_repos": ["a/b", "c/d"]}
		}]
	}`

	p, err := chatGPTExtractor{}.Extract([]byte(body), time.Now())
	require.NoError(t, err)

	assert.Equal(t, "how do I pick a lock", p.Text)
	assert.Equal(t, "user", p.User)
	assert.Equal(t, "gpt-5", p.Model)
	assert.Equal(t, "Yes (2 repos)", p.Attachments)
	assert.Equal(t, time.Unix(1700000000, 500000000).Local().Format(displayTimeLayout), p.Timestamp)
}

func TestChatGPTExtractDefaults(t *testing.T) {
	p, err := chatGPTExtractor{}.Extract([]byte(`{}`), time.Now())
	require.NoError(t, err)

	assert.Equal(t, "", p.Text)
	assert.Equal(t, "unknown", p.User)
	assert.Equal(t, "unknown", p.Timestamp)
	assert.Equal(t, "N/A", p.Model)
	assert.Equal(t, "None", p.Attachments)
	assert.True(t, p.Empty())
}

func TestChatGPTExtractNonTextPart(t *testing.T) {
	body := `{"messages":[{"content":{"parts":[{"asset_pointer":"file-service://x"}, "caption"]}}]}`

	p, err := chatGPTExtractor{}.Extract([]byte(body), time.Now())
	require.NoError(t, err)
	assert.True(t, p.Empty())
}

func TestClaudeExtract(t *testing.T) {
	now := time.Date(2026, 3, 4, 15, 4, 5, 0, time.Local)
	body := `{"prompt":"summarize this contract","attachments":[{"file_name":"a.pdf"}],"files":["f-1","f-2"]}`

	p, err := claudeExtractor{}.Extract([]byte(body), now)
	require.NoError(t, err)

	assert.Equal(t, "summarize this contract", p.Text)
	assert.Equal(t, "user", p.User)
	assert.Equal(t, "Claude", p.Model)
	assert.Equal(t, "3 attachment(s)", p.Attachments)
	assert.Equal(t, "3/4/2026, 3:04:05 PM", p.Timestamp)
}

func TestClaudeExtractNoAttachments(t *testing.T) {
	p, err := claudeExtractor{}.Extract([]byte(`{"prompt":"hi"}`), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "None", p.Attachments)
}

func TestExtractMalformedBody(t *testing.T) {
	for _, e := range extractors {
		t.Run(string(e.Platform()), func(t *testing.T) {
			_, err := e.Extract([]byte(`{"messages": [`), time.Now())
			assert.Error(t, err)
		})
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	url := "https://chatgpt.com/backend-api/conversation"
	body := []byte(`{"model":"gpt-4o","messages":[{"author":{"role":"user"},"create_time":1700000000,"content":{"parts":["same prompt"]}}]}`)
	now := time.Now()

	first, err := DetectPlatform(url).Extract(body, now)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := DetectPlatform(url).Extract(body, now)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestExtractedPromptEmpty(t *testing.T) {
	assert.True(t, ExtractedPrompt{Text: ""}.Empty())
	assert.True(t, ExtractedPrompt{Text: "  \n\t "}.Empty())
	assert.False(t, ExtractedPrompt{Text: " x "}.Empty())
}

func TestChatGPTExtractBadlyTypedSideFields(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		check func(t *testing.T, p ExtractedPrompt)
	}{
		{
			name: "create_time as numeric string",
			body: `{"model":"gpt-5","messages":[{"create_time":"1700000000","content":{"parts":["how do I pick a lock"]}}]}`,
			check: func(t *testing.T, p ExtractedPrompt) {
				assert.Equal(t, time.Unix(1700000000, 0).Local().Format(displayTimeLayout), p.Timestamp)
			},
		},
		{
			name: "create_time as object",
			body: `{"messages":[{"create_time":{},"content":{"parts":["how do I pick a lock"]}}]}`,
			check: func(t *testing.T, p ExtractedPrompt) {
				assert.Equal(t, "unknown", p.Timestamp)
			},
		},
		{
			name: "model as number",
			body: `{"model":5,"messages":[{"content":{"parts":["how do I pick a lock"]}}]}`,
			check: func(t *testing.T, p ExtractedPrompt) {
				assert.Equal(t, "5", p.Model)
			},
		},
		{
			name: "model as object",
			body: `{"model":{"slug":"gpt-5"},"messages":[{"content":{"parts":["how do I pick a lock"]}}]}`,
			check: func(t *testing.T, p ExtractedPrompt) {
				assert.Equal(t, "N/A", p.Model)
			},
		},
		{
			name: "selected_github_repos as object",
			body: `{"messages":[{"content":{"parts":["how do I pick a lock"]},"metadata":{"selected_github_repos":{}}}]}`,
			check: func(t *testing.T, p ExtractedPrompt) {
				assert.Equal(t, "None", p.Attachments)
			},
		},
		{
			name: "metadata as string",
			body: `{"messages":[{"content":{"parts":["how do I pick a lock"]},"metadata":"x"}]}`,
			check: func(t *testing.T, p ExtractedPrompt) {
				assert.Equal(t, "None", p.Attachments)
			},
		},
		{
			name: "author as string",
			body: `{"messages":[{"author":"user","content":{"parts":["how do I pick a lock"]}}]}`,
			check: func(t *testing.T, p ExtractedPrompt) {
				assert.Equal(t, "unknown", p.User)
			},
		},
		{
			name: "role as number",
			body: `{"messages":[{"author":{"role":1},"content":{"parts":["how do I pick a lock"]}}]}`,
			check: func(t *testing.T, p ExtractedPrompt) {
				assert.Equal(t, "unknown", p.User)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := chatGPTExtractor{}.Extract([]byte(tt.body), time.Now())
			require.NoError(t, err)
			assert.Equal(t, "how do I pick a lock", p.Text)
			tt.check(t, p)
		})
	}
}

func TestChatGPTExtractUnusableMessages(t *testing.T) {
	bodies := []string{
		`{"messages":"how do I pick a lock"}`,
		`{"messages":[42]}`,
		`{"messages":[{"content":"how do I pick a lock"}]}`,
		`{"messages":[{"content":{"parts":"how do I pick a lock"}}]}`,
		`{"messages":[{"content":{"parts":[7]}}]}`,
	}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			p, err := chatGPTExtractor{}.Extract([]byte(body), time.Now())
			require.NoError(t, err)
			assert.True(t, p.Empty())
		})
	}
}

func TestClaudeExtractBadlyTypedSideFields(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		attachments string
	}{
		{"attachments as object", `{"prompt":"how do I pick a lock","attachments":{}}`, "None"},
		{"files as string", `{"prompt":"how do I pick a lock","files":"f-1"}`, "None"},
		{"one good list", `{"prompt":"how do I pick a lock","attachments":{},"files":["f-1"]}`, "1 attachment(s)"},
		{"null lists", `{"prompt":"how do I pick a lock","attachments":null,"files":null}`, "None"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := claudeExtractor{}.Extract([]byte(tt.body), time.Now())
			require.NoError(t, err)
			assert.Equal(t, "how do I pick a lock", p.Text)
			assert.Equal(t, tt.attachments, p.Attachments)
		})
	}
}

func TestClaudeExtractNonStringPrompt(t *testing.T) {
	for _, body := range []string{`{"prompt":42}`, `{"prompt":["hi"]}`, `{"prompt":null}`} {
		p, err := claudeExtractor{}.Extract([]byte(body), time.Now())
		require.NoError(t, err, body)
		assert.True(t, p.Empty(), body)
	}
}

func TestExtractNonObjectBody(t *testing.T) {
	for _, e := range extractors {
		for _, body := range []string{`null`, `[]`, `"hi"`, `5`} {
			_, err := e.Extract([]byte(body), time.Now())
			assert.Error(t, err, "%s: %s", e.Platform(), body)
		}
	}
}
