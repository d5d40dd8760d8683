package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Confirmation is what the user sees when a prompt is flagged high risk.
type Confirmation struct {
	Platform Platform
	Score    int
	Prompt   ExtractedPrompt
}

// Text renders the confirmation the way the modal dialog shows it.
func (c Confirmation) Text() string {
	var b strings.Builder
	b.WriteString("⚠️ HIGH RISK FLAGGED\n\n")
	fmt.Fprintf(&b, "Platform: %s\n", c.Platform)
	fmt.Fprintf(&b, "Risk Score: %d/100\n\n", c.Score)
	fmt.Fprintf(&b, "User: %s\n", c.Prompt.User)
	fmt.Fprintf(&b, "Time: %s\n", c.Prompt.Timestamp)
	fmt.Fprintf(&b, "Prompt: %s\n", c.Prompt.Text)
	fmt.Fprintf(&b, "Model: %s\n", c.Prompt.Model)
	fmt.Fprintf(&b, "Attachments: %s\n", c.Prompt.Attachments)
	return b.String()
}

// Confirmer asks whether a high-risk call should be blocked. It is the only
// user-visible surface of the system.
type Confirmer interface {
	Confirm(ctx context.Context, c Confirmation) Decision
}

// PolicyConfirmer answers every confirmation with a fixed decision.
type PolicyConfirmer struct {
	Decision Decision
}

func (p PolicyConfirmer) Confirm(ctx context.Context, c Confirmation) Decision {
	return p.Decision
}

// TerminalConfirmer shows the confirmation on a terminal and reads the
// answer. Only one confirmation is on screen at a time.
type TerminalConfirmer struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalConfirmer reads answers from in and writes prompts to out.
func NewTerminalConfirmer(in io.Reader, out io.Writer) *TerminalConfirmer {
	return &TerminalConfirmer{in: bufio.NewReader(in), out: out}
}

// Confirm blocks until the user answers. Enter or "y" blocks the request,
// "n" or "o" overrides. If no answer can be read the request is blocked.
func (t *TerminalConfirmer) Confirm(ctx context.Context, c Confirmation) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return DecisionBlock
		}

		fmt.Fprint(t.out, c.Text())
		fmt.Fprint(t.out, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\nBlock this request? [Y = block / n = override and send anyway]: ")

		line, err := t.in.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		if err != nil && answer == "" {
			fmt.Fprintln(t.out)
			return DecisionBlock
		}

		switch answer {
		case "", "y", "yes", "b", "block":
			return DecisionBlock
		case "n", "no", "o", "override":
			return DecisionOverride
		}
		fmt.Fprintf(t.out, "unrecognized answer %q\n\n", answer)
	}
}

// ParseDecision maps a configured policy word to a decision.
func ParseDecision(s string) (Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "block":
		return DecisionBlock, true
	case "override", "allow":
		return DecisionOverride, true
	}
	return DecisionBlock, false
}
