package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
)

// CheckInput is one outgoing call described on stdin.
type CheckInput struct {
	URL    string          `json:"url"`
	Method string          `json:"method,omitempty"`
	Body   json.RawMessage `json:"body"`
}

// CheckOutput is the verdict written to stdout.
type CheckOutput struct {
	Decision string   `json:"decision"` // "allow" or "block"
	Platform Platform `json:"platform,omitempty"`
	Status   int      `json:"status,omitempty"`
}

// bodyBytes returns the request body. A JSON string is taken as the literal
// body text, anything else as the body itself.
func (in CheckInput) bodyBytes() []byte {
	var s string
	if json.Unmarshal(in.Body, &s) == nil {
		return []byte(s)
	}
	return in.Body
}

// recordingTransport stands in for the network in check mode.
type recordingTransport struct {
	called bool
	body   []byte
}

func (t *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.called = true
	if req.Body != nil {
		t.body, _ = io.ReadAll(req.Body)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Header:     make(http.Header),
		Body:       http.NoBody,
		Request:    req,
	}, nil
}

func readCheckInput() (*CheckInput, error) {
	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, err
	}
	var checkInput CheckInput
	if err := json.Unmarshal(input, &checkInput); err != nil {
		return nil, err
	}
	return &checkInput, nil
}

// runCheck is the main check entry point: decide one call described on stdin.
func runCheck() {
	in, err := readCheckInput()
	if err != nil || in.URL == "" {
		reason := "empty url"
		if err != nil {
			reason = "failed to read input: " + err.Error()
		}
		logDecision("", "ALLOW", "passthrough", reason)
		writeCheckOutput(CheckOutput{Decision: "allow"})
		return
	}

	cfg, err := LoadConfig()
	if err != nil {
		logDecision("", "ALLOW", "passthrough", err.Error())
		writeCheckOutput(CheckOutput{Decision: "allow"})
		return
	}

	confirmer, closeConfirmer := newConfirmer(cfg)
	defer closeConfirmer()

	transport := &recordingTransport{}
	guard := NewGuard(transport, &DaemonForwarder{SocketPath: cfg.SocketPath, AutoStart: true}, confirmer, cfg)
	defer guard.Close()

	writeCheckOutput(checkCall(guard.Interceptor, transport, in))
}

func checkCall(interceptor *Interceptor, transport *recordingTransport, in *CheckInput) CheckOutput {
	method := in.Method
	if method == "" {
		method = http.MethodPost
	}

	var out CheckOutput
	if e := DetectPlatform(in.URL); e != nil {
		out.Platform = e.Platform()
	}

	req, err := http.NewRequest(method, in.URL, bytes.NewReader(in.bodyBytes()))
	if err != nil {
		out.Decision = "allow"
		return out
	}

	resp, err := interceptor.RoundTrip(req)
	if err != nil || transport.called {
		out.Decision = "allow"
		return out
	}
	defer resp.Body.Close()

	out.Decision = "block"
	out.Status = resp.StatusCode
	return out
}

func writeCheckOutput(out CheckOutput) {
	json.NewEncoder(os.Stdout).Encode(out)
}
